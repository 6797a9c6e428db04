package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/xhad/lectern/pkg/rag"
	"github.com/xhad/lectern/pkg/usage"
)

// Pipeline is the part of the RAG pipeline the server exposes.
type Pipeline interface {
	Ingest(ctx context.Context, query string, maxResults int) (int, error)
	QueryStream(ctx context.Context, question string, topK int, onChunk func(string)) (rag.Result, error)
}

type FeedbackSender interface {
	Submit(ctx context.Context, message string) error
}

type UsageReporter interface {
	Stats() (usage.Stats, error)
}

type Config struct {
	Addr              string
	DefaultMaxResults int
	DefaultTopK       int
	ShutdownTimeout   time.Duration

	Pipeline Pipeline
	Feedback FeedbackSender
	// Usage may be nil, in which case /usage reports 404.
	Usage UsageReporter
}

type Server struct {
	config Config
	http   *http.Server
}

func NewWithConfig(config Config) *Server {
	if config.Addr == "" {
		config.Addr = "0.0.0.0:8000"
	}
	if config.DefaultMaxResults <= 0 {
		config.DefaultMaxResults = 5
	}
	if config.DefaultTopK <= 0 {
		config.DefaultTopK = 5
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = 10 * time.Second
	}

	s := &Server{config: config}
	s.http = &http.Server{
		Addr:              config.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routed HTTP handler with permissive CORS applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /ingest", s.handleIngest)
	mux.HandleFunc("POST /query", s.handleQuery)
	mux.HandleFunc("POST /feedback", s.handleFeedback)
	mux.HandleFunc("GET /usage", s.handleUsage)
	mux.HandleFunc("/ws", s.handleWebSocket)
	return withCORS(mux)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Printf("Server listening on http://%s", s.config.Addr)
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		log.Printf("Shutting down server")
		return s.http.Shutdown(shutdownCtx)
	}
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
