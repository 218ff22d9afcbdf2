package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/MimeLyc/presentation-params/internal/apperr"
	"github.com/MimeLyc/presentation-params/internal/params"
	"github.com/MimeLyc/presentation-params/pkg/file"
	"github.com/MimeLyc/presentation-params/pkg/log"
)

const DefaultFileName = "presentation_params.json"

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Store owns the canonical parameter document on disk. It is the only writer
// of that file; every load-modify-write cycle runs under mu so concurrent
// saves cannot overwrite each other's filenames.
type Store struct {
	path     string
	fileName string
	now      func() time.Time

	mu sync.Mutex
}

func NewStore(dir, fileName string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(fileName) == "" {
		fileName = DefaultFileName
	}
	if strings.ContainsAny(fileName, `/\`) {
		return nil, apperr.New(apperr.ErrConfig, "document file name must not contain a path separator").
			WithContext("file", fileName)
	}
	if strings.TrimSpace(dir) == "" {
		dir = "."
	}
	s := &Store{
		path:     filepath.Join(dir, fileName),
		fileName: fileName,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) FileName() string {
	return s.fileName
}

func (s *Store) Path() string {
	return s.path
}

// Load returns the stored document. A missing or unparsable file is an empty
// document; only I/O failures are reported.
func (s *Store) Load() (params.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Apply merges snap into the stored document and writes the result back.
func (s *Store) Apply(snap params.Snapshot) (params.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.load()
	if err != nil {
		return params.Document{}, err
	}
	merged := params.Merge(existing, snap, s.now())
	if err := s.write(merged); err != nil {
		return params.Document{}, err
	}
	return merged, nil
}

// Seed adds default parameters for catalog files the document has not seen.
// The file is only rewritten when something was added.
func (s *Store) Seed(imageDir string, filenames []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.load()
	if err != nil {
		return 0, err
	}
	seeded, added := params.Seed(existing, imageDir, filenames, s.now())
	if added == 0 {
		return 0, nil
	}
	if err := s.write(seeded); err != nil {
		return 0, err
	}
	return added, nil
}

func (s *Store) load() (params.Document, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return params.EmptyDocument(), nil
	}
	if err != nil {
		return params.Document{}, apperr.Wrap(err, apperr.ErrFileRead, "read params document").
			WithContext("path", s.path)
	}
	if len(bytes.TrimSpace(data)) > 0 && !json.Valid(data) {
		log.Warn("Params document %s is not valid JSON, starting from an empty document", s.path)
	}
	return params.ParseDocument(data), nil
}

func (s *Store) write(doc params.Document) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return apperr.Wrap(err, apperr.ErrFileWrite, "encode params document")
	}
	if err := file.WriteAtomic(s.path, buf.Bytes(), 0o644); err != nil {
		return apperr.Wrap(err, apperr.ErrFileWrite, fmt.Sprintf("write %s", s.fileName)).
			WithContext("path", s.path)
	}
	return nil
}
