// ABOUTME: HTTP server publishing the home listing, post pages, the 404 page, and static assets behind a chi router.
// ABOUTME: Every unmatched path or method answers 307 to /404; shared state is read-only once the server is built.
package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/http"
	"net/url"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/2389-research/kes/metrics"
	"github.com/2389-research/kes/posts"
)

const (
	notFoundPath = "/404"

	// Requests waiting for a worker slot beyond this many are refused with 429.
	throttleBacklog = 1024
	throttleTimeout = 30 * time.Second

	shutdownTimeout = 10 * time.Second
)

// PostSource is the read side of the content store.
type PostSource interface {
	Get(key string) (string, bool)
	List() []posts.Item
}

// PageRenderer renders the pages that are not pre-rendered at startup.
type PageRenderer interface {
	RenderHome(items []posts.Item) (string, error)
	RenderNotFound() (string, error)
}

// ServerConfig holds the listen and asset settings for the site server.
type ServerConfig struct {
	Addr        string // listen address (default: "127.0.0.1:3000")
	MetricsAddr string // optional second listener for /metrics; empty disables it
	AssetsDir   string // served under /assets, resolved against the working directory
	Workers     int    // concurrently executing requests (default: 4)
}

// Server serves the site. It never mutates the store or the templates.
type Server struct {
	posts       PostSource
	pages       PageRenderer
	metrics     *metrics.Metrics
	logger      *zap.Logger
	router      chi.Router
	addr        string
	metricsAddr string
	workers     int
	assetsDir   string
}

// NewServer wires the router. m may be nil, in which case no metrics are
// recorded and MetricsAddr is ignored.
func NewServer(cfg ServerConfig, src PostSource, pages PageRenderer, m *metrics.Metrics, logger *zap.Logger) (*Server, error) {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:3000"
	}
	if cfg.Workers < 1 {
		cfg.Workers = 4
	}
	if cfg.AssetsDir == "" {
		cfg.AssetsDir = "assets"
	}
	assetsDir, err := filepath.Abs(cfg.AssetsDir)
	if err != nil {
		return nil, fmt.Errorf("resolving assets directory: %w", err)
	}

	s := &Server{
		posts:       src,
		pages:       pages,
		metrics:     m,
		logger:      logger,
		addr:        cfg.Addr,
		metricsAddr: cfg.MetricsAddr,
		workers:     cfg.Workers,
		assetsDir:   assetsDir,
	}
	s.router = s.buildRouter()
	return s, nil
}

// ServeHTTP delegates to the chi router, satisfying http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.ThrottleBacklog(s.workers, throttleBacklog, throttleTimeout))

	r.Get("/", s.handleHome)
	r.Get(notFoundPath, s.handleNotFound)
	r.Get("/post/{key}", s.handlePost)

	assets := http.StripPrefix("/assets", http.FileServer(assetFS{http.Dir(s.assetsDir)}))
	r.Get("/assets/*", assets.ServeHTTP)
	r.Head("/assets/*", assets.ServeHTTP)

	r.NotFound(redirectToNotFound)
	r.MethodNotAllowed(redirectToNotFound)

	return r
}

// handleHome renders the listing with the store's posts in scan order.
func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	page, err := s.pages.RenderHome(s.posts.List())
	if err != nil {
		s.renderFailed(w, "home", err)
		return
	}
	writeHTML(w, page)
}

// handleNotFound answers 200: the not-found page is an ordinary page that
// missing posts and unknown paths redirect to.
func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	page, err := s.pages.RenderNotFound()
	if err != nil {
		s.renderFailed(w, "404", err)
		return
	}
	writeHTML(w, page)
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	// chi matches on RawPath when it is set, leaving the param escaped.
	if r.URL.RawPath != "" {
		if unescaped, err := url.PathUnescape(key); err == nil {
			key = unescaped
		}
	}
	s.logger.Info("request to post", zap.String("key", key))

	page, ok := s.posts.Get(key)
	if !ok {
		redirectToNotFound(w, r)
		return
	}
	writeHTML(w, page)
}

func (s *Server) renderFailed(w http.ResponseWriter, page string, err error) {
	s.logger.Error("error rendering page", zap.String("page", page), zap.Error(err))
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

func redirectToNotFound(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, notFoundPath, http.StatusTemporaryRedirect)
}

func writeHTML(w http.ResponseWriter, page string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, page)
}

// assetFS hides directories so the file server never produces listings.
type assetFS struct {
	fs http.FileSystem
}

func (a assetFS) Open(name string) (http.File, error) {
	f, err := a.fs.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.IsDir() {
		f.Close()
		return nil, fs.ErrNotExist
	}
	return f, nil
}

// ListenAndServe binds the configured address and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("binding %s: %w", s.addr, err)
	}

	var metricsLn net.Listener
	if s.metrics != nil && s.metricsAddr != "" {
		metricsLn, err = net.Listen("tcp", s.metricsAddr)
		if err != nil {
			ln.Close()
			return fmt.Errorf("binding metrics %s: %w", s.metricsAddr, err)
		}
	}

	return s.Serve(ctx, ln, metricsLn)
}

// Serve runs the site on ln, and /metrics on metricsLn when it is non-nil,
// until ctx is cancelled or a listener fails. Shutdown is graceful.
func (s *Server) Serve(ctx context.Context, ln, metricsLn net.Listener) error {
	servers := []*http.Server{newHTTPServer(s)}
	listeners := []net.Listener{ln}

	if metricsLn != nil && s.metrics != nil {
		mux := chi.NewRouter()
		mux.Get("/metrics", s.metrics.Handler().ServeHTTP)
		servers = append(servers, newHTTPServer(mux))
		listeners = append(listeners, metricsLn)
	}

	errc := make(chan error, len(servers))
	for i, srv := range servers {
		s.logger.Info("listening", zap.String("addr", listeners[i].Addr().String()))
		go func(srv *http.Server, l net.Listener) {
			errc <- srv.Serve(l)
		}(srv, listeners[i])
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errc:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("shutdown", zap.Error(err))
		}
	}

	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return serveErr
	}
	return nil
}

func newHTTPServer(h http.Handler) *http.Server {
	return &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      time.Minute,
		IdleTimeout:       2 * time.Minute,
	}
}
