// Package httpserver exposes the Runtime Facade over plain HTTP/JSON. It
// replaces the teacher's gRPC + grpc-gateway transport: the teacher's
// generated protobuf package is not part of this tree (see DESIGN.md), and
// this spec's wire contract is plain JSON with a custom error envelope
// rather than a gRPC-gateway-translated REST surface.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rexsandbox/rex-runtime/internal/logging"
	"github.com/rexsandbox/rex-runtime/internal/runtimefacade"
)

// Config holds the settings the HTTP surface needs at construction time.
type Config struct {
	Host   string
	Port   int
	APIKey string // empty disables the X-API-Key check
}

// Server is the HTTP control surface over a Facade.
type Server struct {
	cfg     Config
	facade  *runtimefacade.Facade
	httpSrv *http.Server
}

// New builds a Server with every route registered.
func New(cfg Config, facade *runtimefacade.Facade) *Server {
	s := &Server{cfg: cfg, facade: facade}

	mux := http.NewServeMux()
	mux.HandleFunc("/is_alive", s.withMiddleware(http.MethodGet, s.handleIsAlive))
	mux.HandleFunc("/create_session", s.withMiddleware(http.MethodPost, s.handleCreateSession))
	mux.HandleFunc("/run_in_session", s.withMiddleware(http.MethodPost, s.handleRunInSession))
	mux.HandleFunc("/close_session", s.withMiddleware(http.MethodPost, s.handleCloseSession))
	mux.HandleFunc("/execute", s.withMiddleware(http.MethodPost, s.handleExecute))
	mux.HandleFunc("/read_file", s.withMiddleware(http.MethodPost, s.handleReadFile))
	mux.HandleFunc("/write_file", s.withMiddleware(http.MethodPost, s.handleWriteFile))
	mux.HandleFunc("/upload", s.withMiddleware(http.MethodPost, s.handleUpload))
	mux.HandleFunc("/close", s.withMiddleware(http.MethodPost, s.handleClose))

	s.httpSrv = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: mux,
	}
	return s
}

// ListenAndServe blocks serving HTTP until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// Handler exposes the underlying http.Handler, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// withMiddleware enforces the method, checks the X-API-Key header, assigns a
// request id, logs one structured line per request that passed both checks,
// and recovers a handler panic into a 511 InternalError rather than crashing
// the process.
func (s *Server) withMiddleware(method string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		if s.cfg.APIKey != "" && r.Header.Get("X-API-Key") != s.cfg.APIKey {
			writeError(w, errUnauthorized)
			return
		}

		requestID := uuid.NewString()
		start := time.Now()

		defer func() {
			if rec := recover(); rec != nil {
				logging.Error("panic in http handler",
					logging.String("request_id", requestID),
					logging.String("path", r.URL.Path),
					logging.Any("panic", rec),
				)
				writeError(w, fmt.Errorf("internal error: %v", rec))
			}
		}()

		next(w, r)

		logging.Info("http request",
			logging.String("request_id", requestID),
			logging.String("path", r.URL.Path),
			logging.Duration("duration", time.Since(start)),
		)
	}
}

var errUnauthorized = errors.New("invalid or missing X-API-Key")
