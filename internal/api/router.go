package api

import (
	"context"
	"net/http"
	"time"

	"github.com/listfresh/listfresh/internal/resolver"
	"github.com/listfresh/listfresh/internal/storage"
	"go.uber.org/zap"
)

// ListResolver resolves a raw list URI. *resolver.Resolver implements it.
type ListResolver interface {
	ResolveURI(ctx context.Context, uri string) (*resolver.ListSummary, error)
}

// Metrics receives per-request observations. *telemetry.Metrics implements it.
type Metrics interface {
	ObserveResolution(outcome string, duration time.Duration)
	ObserveHTTPRequest(method string, status int)
}

// Dependencies holds shared state injected into all HTTP handlers.
type Dependencies struct {
	Resolver   ListResolver
	Writer     storage.EventWriter // lookup audit sink; defaults to a LogWriter
	Metrics    Metrics             // optional
	Logger     *zap.Logger
	CORSOrigin string // Access-Control-Allow-Origin; empty disables CORS headers
}

// NewRouter builds the HTTP mux with all routes wired up.
func NewRouter(deps *Dependencies) http.Handler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Writer == nil {
		deps.Writer = storage.NewLogWriter(deps.Logger)
	}

	mux := http.NewServeMux()

	mux.HandleFunc("POST "+corsPath, deps.handleListInfo)

	// Health check
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, HealthResp{Status: "ok"})
	})

	// Everything else, including other methods on known paths, is a plain 404.
	mux.HandleFunc("/", notFound)

	handler := corsMiddleware(mux, deps.CORSOrigin)
	handler = requestLogging(handler, deps.Logger, deps.Metrics)
	handler = requestID(handler)
	return securityHeaders(handler)
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte("Not Found"))
}
