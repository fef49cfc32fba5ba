package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/danielpatrickdp/adaptive-state/policy-guard/internal/audit"
	"github.com/danielpatrickdp/adaptive-state/policy-guard/internal/guard"
	"github.com/danielpatrickdp/adaptive-state/policy-guard/internal/service"
	"github.com/danielpatrickdp/adaptive-state/policy-guard/internal/snapshot"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

type ingestResponse struct {
	ID      string        `json:"id"`
	Verdict guard.Verdict `json:"verdict"`
}

// Evaluate returns the verdict for the posted snapshot without recording it.
func (h *Handlers) Evaluate(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.readSnapshot(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.svc.Evaluate(r.Context(), snap))
}

// Ingest evaluates and records the posted snapshot.
func (h *Handlers) Ingest(w http.ResponseWriter, r *http.Request) {
	if !h.svc.AuditEnabled() {
		writeError(w, http.StatusServiceUnavailable, service.ErrAuditDisabled)
		return
	}
	snap, ok := h.readSnapshot(w, r)
	if !ok {
		return
	}
	v, id, err := h.svc.Ingest(r.Context(), snap)
	if err != nil {
		h.logger.Error("ingest failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, ingestResponse{ID: id, Verdict: v})
}

// Summary returns aggregate audit statistics.
func (h *Handlers) Summary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.svc.Summary(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// AuditEntry returns one recorded verdict.
func (h *Handlers) AuditEntry(w http.ResponseWriter, r *http.Request) {
	e, err := h.svc.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *Handlers) readSnapshot(w http.ResponseWriter, r *http.Request) (snapshot.AgentStateSnapshot, bool) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, err)
		} else {
			writeError(w, http.StatusBadRequest, err)
		}
		return snapshot.AgentStateSnapshot{}, false
	}
	snap, err := snapshot.Parse(data)
	if err != nil {
		h.logger.Debug("rejected snapshot", zap.String("kind", snapshot.Kind(err)), zap.Error(err))
		writeError(w, statusFor(err), err)
		return snapshot.AgentStateSnapshot{}, false
	}
	return snap, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, snapshot.ErrInputMalformed):
		return http.StatusBadRequest
	case errors.Is(err, snapshot.ErrSchemaMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrAuditDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, audit.ErrNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error(), Kind: snapshot.Kind(err)})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
