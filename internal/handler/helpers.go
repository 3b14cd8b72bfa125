package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/boddenberg/cash-console-bfa/internal/domain"
	"github.com/boddenberg/cash-console-bfa/internal/infra/client"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// ============================================================
// Shared helper functions
// ============================================================

var validate = validator.New()

type errorResponse struct {
	Error      string `json:"error"`
	Field      string `json:"field,omitempty"`
	Permission bool   `json:"permission,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// decodeBody decodes the JSON body into v and runs its validate tags.
// Failures come back as *domain.ErrValidation.
func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &domain.ErrValidation{Field: "body", Message: "invalid request body"}
	}
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &domain.ErrValidation{Field: lowerFirst(fe.Field()), Message: "failed on '" + fe.Tag() + "'"}
		}
		return &domain.ErrValidation{Field: "body", Message: err.Error()}
	}
	return nil
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

// sessionLost reports whether err means the operator must log in again.
func sessionLost(err error) bool {
	var unauthorized *domain.ErrUnauthorized
	var apiErr *client.APIError
	return errors.As(err, &unauthorized) || (errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized)
}

// handleServiceError maps domain errors to HTTP responses. Backend
// rejections keep their status and message so the browser shows exactly
// what the backend said.
func handleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var notFound *domain.ErrNotFound
	var circuitOpen *domain.ErrCircuitOpen
	var external *domain.ErrExternalService
	var validation *domain.ErrValidation
	var forbidden *domain.ErrForbidden
	var unauthorized *domain.ErrUnauthorized
	var conflict *domain.ErrConflict
	var busy *domain.ErrBusy
	var apiErr *client.APIError

	switch {
	case errors.As(err, &apiErr):
		logger.Debug("backend rejected request",
			zap.Int("status", apiErr.Status),
			zap.String("path", apiErr.Path),
			zap.String("message", apiErr.Message),
		)
		writeJSON(w, apiErr.Status, errorResponse{Error: apiErr.Message, Permission: apiErr.Status == http.StatusForbidden})
	case errors.As(err, &notFound):
		logger.Debug("not found", zap.String("error", err.Error()))
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &circuitOpen):
		logger.Error("circuit breaker open", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &external):
		logger.Error("backend unreachable", zap.Error(err))
		writeError(w, http.StatusBadGateway, "backend unavailable")
	case errors.As(err, &validation):
		logger.Debug("validation error", zap.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: validation.Message, Field: validation.Field})
	case errors.As(err, &forbidden):
		logger.Warn("forbidden access", zap.String("error", err.Error()))
		writeJSON(w, http.StatusForbidden, errorResponse{Error: err.Error(), Permission: true})
	case errors.As(err, &unauthorized):
		logger.Warn("unauthorized", zap.String("error", err.Error()))
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.As(err, &conflict):
		logger.Debug("conflict", zap.String("error", err.Error()))
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &busy):
		logger.Debug("busy", zap.String("operation", busy.Operation))
		writeError(w, http.StatusConflict, err.Error())
	default:
		logger.Error("unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
