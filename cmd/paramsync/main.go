// Command paramsync edits the presentation params of one image directory
// from the command line and delivers them to the params server, keeping an
// undelivered save in the local cache until the server is reachable again.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/MimeLyc/presentation-params/internal/cache"
	"github.com/MimeLyc/presentation-params/internal/catalog"
	"github.com/MimeLyc/presentation-params/internal/config"
	"github.com/MimeLyc/presentation-params/internal/localcache"
	"github.com/MimeLyc/presentation-params/internal/params"
	"github.com/MimeLyc/presentation-params/internal/syncclient"
	"github.com/MimeLyc/presentation-params/pkg/icron"
	"github.com/MimeLyc/presentation-params/pkg/log"
)

// edit is one -set flag: file:half:offset:zoom, where offset or zoom may be
// left empty to keep the current value.
type edit struct {
	File   string
	Half   params.Half
	Offset *int
	Zoom   *float64
}

func parseEdit(s string) (edit, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 4 {
		return edit{}, fmt.Errorf("edit %q: want file:half:offset:zoom", s)
	}
	n := len(parts)
	e := edit{File: strings.Join(parts[:n-3], ":")}
	if e.File == "" {
		return edit{}, fmt.Errorf("edit %q: empty file name", s)
	}
	half, err := params.ParseHalf(parts[n-3])
	if err != nil {
		return edit{}, fmt.Errorf("edit %q: %w", s, err)
	}
	e.Half = half
	if v := strings.TrimSpace(parts[n-2]); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil {
			return edit{}, fmt.Errorf("edit %q: offset: %w", s, err)
		}
		e.Offset = &offset
	}
	if v := strings.TrimSpace(parts[n-1]); v != "" {
		zoom, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return edit{}, fmt.Errorf("edit %q: zoom: %w", s, err)
		}
		e.Zoom = &zoom
	}
	return e, nil
}

type runOptions struct {
	Dir   string
	Edits []edit
	Watch bool
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn("Failed to load .env: %v", err)
	}

	var (
		opts      runOptions
		serverURL = flag.String("server", "", "params server base URL (default SYNC_SERVER_URL)")
		cacheDB   = flag.String("db", "", "local cache database (default SYNC_CACHE_DB)")
	)
	flag.StringVar(&opts.Dir, "dir", "", "image directory to edit (default first CATALOG_DIRS entry)")
	flag.BoolVar(&opts.Watch, "watch", false, "keep retrying a pending save until interrupted")
	flag.Func("set", "edit as file:half:offset:zoom, repeatable", func(s string) error {
		e, err := parseEdit(s)
		if err != nil {
			return err
		}
		opts.Edits = append(opts.Edits, e)
		return nil
	})
	flag.Parse()

	cfg, err := config.NewFromEnv(config.WithServerURL(*serverURL), config.WithCacheDB(*cacheDB))
	if err != nil {
		log.Fatal("Failed to load configuration: %v", err)
	}
	log.InitLogger(log.ParseLevel(cfg.Log.Level))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	state, err := run(ctx, cfg, opts)
	if err != nil {
		log.Fatal("%v", err)
	}
	fmt.Println(state)
}

func run(ctx context.Context, cfg *config.Config, opts runOptions) (syncclient.State, error) {
	dir, err := resolveDir(cfg, opts.Dir)
	if err != nil {
		return syncclient.StateIdle, err
	}

	local, err := localcache.NewSQLiteStore(cfg.Sync.CacheDB)
	if err != nil {
		return syncclient.StateIdle, fmt.Errorf("open local cache: %w", err)
	}
	defer local.Close()

	scanner := catalog.NewScanner(cfg.Catalog.Root, catalog.WithLocale(cfg.LocaleTag()))
	cat, err := scanner.Scan(ctx, dir)
	if err != nil {
		return syncclient.StateIdle, err
	}

	client := syncclient.NewClient(cfg.Sync.ServerURL, syncclient.WithPushTimeout(cfg.Sync.PushTimeout))
	syncer := syncclient.NewSyncer(client, local, syncclient.WithSchedule(cfg.Sync.RetrySchedule))
	session := cache.NewSession(cat.ImageDir, cat.Filenames(), local)
	hydrate(ctx, session, client, syncer, cfg.Store.FileName)

	for _, e := range opts.Edits {
		if !applyEdit(ctx, session, e) {
			log.Warn("Skipping %s: not an image in %q", e.File, cat.ImageDir)
		}
	}

	state := syncer.Save(ctx, session)
	if !opts.Watch {
		return state, nil
	}

	if err := syncer.Start(ctx); err != nil {
		return state, err
	}
	defer syncer.Stop()
	if info, err := icron.GetTriggerInfo(cfg.Sync.RetrySchedule, time.Now()); err == nil {
		log.Info("Retrying pending saves %s, next in %s (session %s)", info.Expression, info.TimeUntilNext, client.SessionID())
	}
	<-ctx.Done()
	return syncer.State(), nil
}

// hydrate layers what is known about the directory: the local cache, the
// shared document, then an undelivered save for the same directory.
func hydrate(ctx context.Context, session *cache.Session, client *syncclient.Client, syncer *syncclient.Syncer, fileName string) {
	if err := session.Hydrate(ctx); err != nil {
		log.Warn("Failed to read local cache: %v", err)
	}
	doc, err := client.FetchDocument(ctx, fileName)
	if err != nil {
		log.Warn("Params server unavailable, using local values: %v", err)
	} else {
		log.Debug("Loaded %d items from %s", session.ApplyDocument(doc), fileName)
	}
	if pending, ok := syncer.Pending(); ok && pending.ImageDir == session.ImageDir() {
		session.ApplyDocument(params.Merge(params.EmptyDocument(), pending, time.Now()))
	}
}

func applyEdit(ctx context.Context, session *cache.Session, e edit) bool {
	if e.Offset == nil && e.Zoom == nil {
		return true
	}
	ok := true
	if e.Offset != nil {
		ok = session.SetOffset(ctx, e.File, e.Half, *e.Offset)
	}
	if ok && e.Zoom != nil {
		ok = session.SetZoom(ctx, e.File, e.Half, *e.Zoom)
	}
	return ok
}

func resolveDir(cfg *config.Config, dir string) (string, error) {
	if dir != "" {
		return dir, nil
	}
	if len(cfg.Catalog.Dirs) == 0 {
		return "", errors.New("no image directory: pass -dir or set CATALOG_DIRS")
	}
	dir = cfg.Catalog.Dirs[0]
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(cfg.Catalog.Root, dir)
	}
	return dir, nil
}
