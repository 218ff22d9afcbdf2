package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MimeLyc/presentation-params/internal/params"
)

const (
	SavePath            = "/save_params"
	defaultMaxBodyBytes = 8 << 20
)

// documentStore is the serialized read-merge-write owner of the params file.
type documentStore interface {
	Apply(snap params.Snapshot) (params.Document, error)
	FileName() string
}

type Server struct {
	store documentStore

	staticDir    string
	allowOrigin  string
	maxBodyBytes int64

	router chi.Router
	server *http.Server
}

type Option func(*Server)

// WithStatic serves files from dir for every request the API does not
// handle. Without it those requests get 404.
func WithStatic(dir string) Option {
	return func(s *Server) {
		s.staticDir = dir
	}
}

func WithAllowOrigin(origin string) Option {
	return func(s *Server) {
		if origin != "" {
			s.allowOrigin = origin
		}
	}
}

func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

func NewServer(store documentStore, opts ...Option) *Server {
	s := &Server{
		store:        store,
		allowOrigin:  "*",
		maxBodyBytes: defaultMaxBodyBytes,
		router:       chi.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() {
	s.router.Post(SavePath, s.handleSaveParams)
	s.router.Options(SavePath, s.handlePreflight)
	s.router.NotFound(s.handleStatic)
	s.router.MethodNotAllowed(s.handleStatic)
}

func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	if s.staticDir == "" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	http.FileServer(http.Dir(s.staticDir)).ServeHTTP(w, r)
}
