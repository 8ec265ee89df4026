package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/Simplici0/batchcost/internal/domain"
)

type errorResponse struct {
	Error  string `json:"error"`
	Entity string `json:"entity,omitempty"`
	Field  string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var conflict *domain.ConflictError
	switch {
	case domain.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrFrozen):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &conflict), errors.Is(err, domain.ErrDraftSetExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", requestIDFrom(r.Context())),
			zap.Error(err),
		)
		writeJSON(w, status, errorResponse{Error: "internal error"})
		return
	}

	resp := errorResponse{Error: err.Error()}
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		resp.Entity = ve.Entity
		resp.Field = ve.Field
	}
	var ce *domain.ConflictError
	if errors.As(err, &ce) {
		resp.Entity = domain.EntityRef(ce.Entity, ce.ID)
	}
	writeJSON(w, status, resp)
}
