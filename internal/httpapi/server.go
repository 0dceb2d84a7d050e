// Package httpapi serves the web API consumed by the frontend: story
// and post fetching, the media relay, image optimization, and session
// status.
package httpapi

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"igvault/pkg/config"
	"igvault/pkg/instagram"
	"igvault/pkg/logger"
	"igvault/pkg/optimizer"
	"igvault/pkg/relay"
	"igvault/pkg/service"
)

// HTTP is the server lifecycle contract.
type HTTP interface {
	Start() error
	Stop()
	GetAddr() net.Addr
}

type key int

const requestIDKey key = 0

// Server is the API server.
type Server struct {
	cfg       *config.Config
	service   *service.Service
	session   *instagram.Session
	relay     *relay.Relay
	optimizer *optimizer.Optimizer
	logger    logger.Logger

	server *http.Server
	quit   chan struct{}
	ln     net.Listener
}

// New builds the server and its routes.
func New(cfg *config.Config, svc *service.Service, session *instagram.Session,
	rly *relay.Relay, opt *optimizer.Optimizer, log logger.Logger) *Server {

	if log == nil {
		log = logger.GetLogger()
	}
	log = log.WithField("role", "http")

	s := &Server{
		cfg:       cfg,
		service:   svc,
		session:   session,
		relay:     rly,
		optimizer: opt,
		logger:    log,
		quit:      make(chan struct{}),
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/session/status", s.handleSessionStatus)
	mux.HandleFunc("GET /api/stories/{username}", s.handleStories)
	mux.HandleFunc("GET /api/posts/{username}", s.handlePosts)
	mux.HandleFunc("GET /api/results", s.handleRecentResults)
	mux.HandleFunc("GET /api/results/{username}", s.handleResults)
	mux.HandleFunc("DELETE /api/results/{username}", s.handleDeleteResults)
	mux.HandleFunc("GET /api/proxy/media", s.handleProxyMedia)
	mux.HandleFunc("POST /api/optimize", s.handleOptimize)
	mux.HandleFunc("POST /api/optimize/info", s.handleOptimizeInfo)

	// The static frontend is registered last so API routes win
	if cfg.Server.FrontendDir != "" {
		if _, err := os.Stat(cfg.Server.FrontendDir); err == nil {
			mux.Handle("/", http.FileServer(http.Dir(cfg.Server.FrontendDir)))
		} else {
			log.WarnWithFields("frontend directory not found, static serving disabled", map[string]interface{}{
				"dir": cfg.Server.FrontendDir,
			})
		}
	}

	s.server = &http.Server{
		Addr:         cfg.Server.Listen,
		Handler:      tracing()(logging(log)(cors(mux))),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s
}

// Handler exposes the fully wrapped handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start listens and serves until Stop is called. It blocks.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on '%s': %v", s.server.Addr, err)
	}

	s.ln = ln

	done := make(chan bool)

	go func() {
		<-s.quit
		s.logger.Info("server is shutting down")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		s.server.SetKeepAlivesEnabled(false)

		if err := s.server.Shutdown(ctx); err != nil {
			s.logger.WithError(err).Error("could not gracefully shutdown the server")
		}
		close(done)
	}()

	s.logger.InfoWithFields("server is ready to handle requests", map[string]interface{}{
		"addr": ln.Addr().String(),
	})

	err = s.server.Serve(ln)
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to serve on %s: %v", ln.Addr().String(), err)
	}

	<-done
	s.logger.Info("server stopped")

	return nil
}

// Stop triggers a graceful shutdown. Safe to call multiple times.
func (s *Server) Stop() {
	select {
	case s.quit <- struct{}{}:
	default:
	}
}

// GetAddr returns the bound address, or nil before Start.
func (s *Server) GetAddr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// exposedHeaders are the response headers browser clients may read.
var exposedHeaders = strings.Join([]string{
	"X-Request-Id",
	"X-Original-Size",
	"X-Optimized-Size",
	"X-Savings-Pct",
	"X-Output-Format",
	"X-Width",
	"X-Height",
	"X-Results",
	"Content-Disposition",
}, ", ")

// cors allows browser frontends served from other origins to call the
// API and read the optimization stat headers.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-Id")
		w.Header().Set("Access-Control-Expose-Headers", exposedHeaders)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// logging logs one line per request
func logging(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			defer func() {
				requestID, ok := r.Context().Value(requestIDKey).(string)
				if !ok {
					requestID = "unknown"
				}
				log.InfoWithFields("request", map[string]interface{}{
					"request_id":  requestID,
					"method":      r.Method,
					"url":         r.URL.Path,
					"remote_addr": r.RemoteAddr,
					"agent":       r.UserAgent(),
					"duration":    time.Since(start),
				})
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// tracing assigns each request an ID and echoes it in the response
func tracing() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-Id")
			if requestID == "" {
				requestID = uuid.NewString()
			}
			ctx := context.WithValue(r.Context(), requestIDKey, requestID)
			w.Header().Set("X-Request-Id", requestID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
