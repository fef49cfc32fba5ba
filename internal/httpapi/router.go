// Package httpapi exposes the guard over HTTP.
package httpapi

import (
	"net/http"

	"github.com/danielpatrickdp/adaptive-state/policy-guard/internal/logging"
	"github.com/danielpatrickdp/adaptive-state/policy-guard/internal/service"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// maxBodyBytes caps snapshot documents accepted over HTTP.
const maxBodyBytes = 1 << 20

// Handlers serves the HTTP API on top of a service.
type Handlers struct {
	svc    *service.Service
	logger *zap.Logger
}

// NewRouter builds the API router.
func NewRouter(svc *service.Service, logger *zap.Logger) *mux.Router {
	h := &Handlers{svc: svc, logger: logging.OrNop(logger)}

	wrap := func(next http.HandlerFunc) http.HandlerFunc {
		return chain(next, h.withPanicRecovery, withRequestID, h.withRequestLogging)
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", wrap(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})).Methods(http.MethodGet)

	api := r.PathPrefix("/v1").Subrouter()
	api.HandleFunc("/evaluate", wrap(h.Evaluate)).Methods(http.MethodPost)
	api.HandleFunc("/ingest", wrap(h.Ingest)).Methods(http.MethodPost)
	api.HandleFunc("/summary", wrap(h.Summary)).Methods(http.MethodGet)
	api.HandleFunc("/audit/{id}", wrap(h.AuditEntry)).Methods(http.MethodGet)
	return r
}
