package desk

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// Server handles HTTP requests for the parcel desk
type Server struct {
	service *Service
	opts    Options
	mux     *http.ServeMux
}

// BasicAuth holds basic authentication credentials
type BasicAuth struct {
	Username string
	Password string
}

// Options configures a Server
type Options struct {
	BasicAuth BasicAuth
	// CORSOrigin is allowed to call /valet/*; empty allows any origin
	CORSOrigin string
	// UploadTimeout bounds one pipeline run started by an upload. Zero
	// leaves it to the client connection.
	UploadTimeout time.Duration
}

// NewServer creates a new Server with default mux
func NewServer(service *Service, opts Options) *Server {
	return NewServerWithMux(service, opts, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(service *Service, opts Options, mux *http.ServeMux) *Server {
	s := &Server{
		service: service,
		opts:    opts,
		mux:     mux,
	}
	s.registerRoutes()
	return s
}

// authenticate checks basic auth credentials
func (s *Server) authenticate(r *http.Request) bool {
	want := s.opts.BasicAuth
	if want.Username == "" && want.Password == "" {
		return true // No auth required if not configured
	}

	user, pass, ok := r.BasicAuth()
	if !ok {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(want.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(want.Password)) == 1
	return userOK && passOK
}

// requireAuth middleware
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			w.Header().Set("WWW-Authenticate", `Basic realm="Parcel Desk"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// cors middleware for the endpoints polled from the desk PC browser
func (s *Server) cors(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.setCORSHeaders(w)

		// Handle preflight OPTIONS requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next(w, r)
	}
}

// setCORSHeaders sets CORS headers on a response
func (s *Server) setCORSHeaders(w http.ResponseWriter) {
	origin := s.opts.CORSOrigin
	if origin == "" {
		origin = "*"
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// registerRoutes registers all routes on the server's mux
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /upload", s.requireAuth(s.handleUpload))

	// Notification queue, polled cross-origin by the desk PC
	s.mux.HandleFunc("OPTIONS /valet/", s.cors(func(w http.ResponseWriter, r *http.Request) {}))
	s.mux.HandleFunc("GET /valet/pending", s.cors(s.requireAuth(s.handlePending)))
	s.mux.HandleFunc("POST /valet/complete", s.cors(s.requireAuth(s.handleComplete)))
	s.mux.HandleFunc("GET /valet/queue-status", s.cors(s.requireAuth(s.handleQueueStatus)))
	s.mux.HandleFunc("POST /valet/clear-queue", s.cors(s.requireAuth(s.handleClearQueue)))

	// Camera page (register last as it's the catch-all)
	s.mux.HandleFunc("GET /index.html", s.requireAuth(s.handleIndex))
	s.mux.HandleFunc("GET /{$}", s.requireAuth(s.handleIndex))
}

// Run serves on addr until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("Starting server", "address", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Wait for cancellation, then drain in-flight uploads
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		slog.Info("Shutting down server")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
