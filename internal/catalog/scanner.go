package catalog

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/MimeLyc/presentation-params/pkg/file"
)

var ImageExtensions = []string{".png", ".jpg", ".jpeg"}

// Entry is one scanned image and the directory key it is stored under.
type Entry struct {
	Filename string `json:"filename"`
	ImageDir string `json:"image_dir"`
	Name     string `json:"name"`
}

type Catalog struct {
	ImageDir string  `json:"image_dir"`
	Entries  []Entry `json:"entries"`
}

func (c Catalog) Filenames() []string {
	ret := make([]string, 0, len(c.Entries))
	for _, e := range c.Entries {
		ret = append(ret, e.Filename)
	}
	return ret
}

type scannerOptions struct {
	locale language.Tag
}

type Option func(*scannerOptions)

func WithLocale(tag language.Tag) Option {
	return func(o *scannerOptions) {
		o.locale = tag
	}
}

// Scanner lists image directories relative to a root. The root is where the
// catalog pages live, so keys match the relative image paths the pages use.
type Scanner struct {
	root   string
	locale language.Tag
}

func NewScanner(root string, opts ...Option) *Scanner {
	options := scannerOptions{locale: language.Chinese}
	for _, opt := range opts {
		opt(&options)
	}
	return &Scanner{root: root, locale: options.locale}
}

// DirKey derives the ImageDirKey for dir: the slash-separated path relative
// to the scanner root, in Unicode NFC so that keys produced on different
// filesystems compare equal.
func (s *Scanner) DirKey(dir string) (string, error) {
	absRoot, err := filepath.Abs(s.root)
	if err != nil {
		return "", err
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(absRoot, absDir)
	if err != nil {
		return "", fmt.Errorf("relative image dir: %w", err)
	}
	return norm.NFC.String(filepath.ToSlash(rel)), nil
}

func (s *Scanner) Scan(ctx context.Context, dir string) (*Catalog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, err := s.DirKey(dir)
	if err != nil {
		return nil, err
	}
	names, err := file.ListByExt(dir, ImageExtensions...)
	if err != nil {
		return nil, fmt.Errorf("list images in %s: %w", dir, err)
	}

	entries := make([]Entry, 0, len(names))
	for _, name := range names {
		display := strings.TrimSpace(strings.TrimSuffix(name, filepath.Ext(name)))
		if display == "" {
			continue
		}
		entries = append(entries, Entry{
			Filename: norm.NFC.String(name),
			ImageDir: key,
			Name:     norm.NFC.String(display),
		})
	}

	col := collate.New(s.locale)
	slices.SortFunc(entries, func(a, b Entry) int {
		return col.CompareString(a.Filename, b.Filename)
	})

	return &Catalog{ImageDir: key, Entries: entries}, nil
}

// ScanAll scans several directories concurrently, preserving input order.
func (s *Scanner) ScanAll(ctx context.Context, dirs []string) ([]*Catalog, error) {
	ret := make([]*Catalog, len(dirs))
	g, ctx := errgroup.WithContext(ctx)
	for i, dir := range dirs {
		g.Go(func() error {
			cat, err := s.Scan(ctx, dir)
			if err != nil {
				return err
			}
			ret[i] = cat
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ret, nil
}
