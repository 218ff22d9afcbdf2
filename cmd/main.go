package main

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/MimeLyc/presentation-params/internal/catalog"
	"github.com/MimeLyc/presentation-params/internal/config"
	"github.com/MimeLyc/presentation-params/internal/document"
	"github.com/MimeLyc/presentation-params/internal/httpapi"
	"github.com/MimeLyc/presentation-params/pkg/log"
)

const shutdownTimeout = 10 * time.Second

type httpServer interface {
	ListenAndServe(addr string) error
	Shutdown(ctx context.Context) error
}

type seeder interface {
	Seed(imageDir string, filenames []string) (int, error)
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn("Failed to load .env: %v", err)
	}

	cfg, err := config.NewFromEnv()
	if err != nil {
		log.Fatal("Failed to load configuration: %v", err)
	}
	log.InitLogger(log.ParseLevel(cfg.Log.Level))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := document.NewStore(cfg.Store.Dir, cfg.Store.FileName)
	if err != nil {
		log.Fatal("Failed to open params document: %v", err)
	}
	if err := seedCatalog(ctx, cfg, store); err != nil {
		log.Warn("Catalog seeding skipped: %v", err)
	}

	server := httpapi.NewServer(store,
		httpapi.WithStatic(cfg.HTTP.StaticDir),
		httpapi.WithAllowOrigin(cfg.HTTP.AllowOrigin),
	)
	if err := runWithComponents(ctx, cfg, server); err != nil {
		log.Fatal("Server stopped: %v", err)
	}
}

// runWithComponents serves until ctx is cancelled, then shuts down gracefully.
func runWithComponents(ctx context.Context, cfg *config.Config, server httpServer) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info("Serving %s on %s (params file %s)", cfg.HTTP.StaticDir, cfg.HTTP.Addr, cfg.DocumentPath())
		errCh <- server.ListenAndServe(cfg.HTTP.Addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// seedCatalog adds default params for every image in the configured catalog
// directories that the document does not know yet.
func seedCatalog(ctx context.Context, cfg *config.Config, store seeder) error {
	if len(cfg.Catalog.Dirs) == 0 {
		return nil
	}
	dirs := make([]string, len(cfg.Catalog.Dirs))
	for i, dir := range cfg.Catalog.Dirs {
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(cfg.Catalog.Root, dir)
		}
		dirs[i] = dir
	}

	scanner := catalog.NewScanner(cfg.Catalog.Root, catalog.WithLocale(cfg.LocaleTag()))
	catalogs, err := scanner.ScanAll(ctx, dirs)
	if err != nil {
		return err
	}
	for _, cat := range catalogs {
		added, err := store.Seed(cat.ImageDir, cat.Filenames())
		if err != nil {
			return err
		}
		log.Info("Catalog %q: %d images, %d new", cat.ImageDir, len(cat.Entries), added)
	}
	return nil
}
