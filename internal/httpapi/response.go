package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/architectagent/architect/internal/orchestrator"
	"github.com/architectagent/architect/internal/plan"
	"github.com/architectagent/architect/internal/scheduler"
	"github.com/architectagent/architect/internal/service"
	"github.com/architectagent/architect/internal/session"
)

const (
	errorCodeInvalidRequest = "invalid_request"
	errorCodeInvalidPlan    = "invalid_plan"
	errorCodeNotFound       = "not_found"
	errorCodeConflict       = "conflict"
	errorCodeTooLarge       = "request_too_large"
	errorCodeUnavailable    = "unavailable"
	errorCodeRuntime        = "runtime_error"
)

var errBadBody = errors.New("invalid request body")

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type apiErrorResponse struct {
	Error apiError `json:"error"`
}

type startResponse struct {
	RunID  string         `json:"run_id"`
	Status session.Status `json:"status"`
}

type actionResponse struct {
	RunID  string `json:"run_id"`
	Action string `json:"action"`
}

type listResponse struct {
	Runs []session.Summary `json:"runs"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, apiErrorResponse{Error: apiError{Code: code, Message: message}})
}

func writeMappedError(w http.ResponseWriter, err error) {
	status, code := mapError(err)
	writeError(w, status, code, err.Error())
}

func decodeJSONBody(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return maxBytesErr
		}
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: body is required", errBadBody)
		}
		return fmt.Errorf("%w: %v", errBadBody, err)
	}
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: body must contain exactly one JSON object", errBadBody)
	}
	return nil
}

func mapError(err error) (int, string) {
	var (
		notFound   *session.SessionNotFoundError
		validation *plan.ValidationError
		cycle      *plan.CycleError
		duplicate  *plan.DuplicateNodeError
		tooLarge   *http.MaxBytesError
	)
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, errorCodeTooLarge
	case errors.Is(err, errBadBody), errors.Is(err, service.ErrInvalidRequest):
		return http.StatusBadRequest, errorCodeInvalidRequest
	case errors.As(err, &validation), errors.As(err, &cycle), errors.As(err, &duplicate):
		return http.StatusBadRequest, errorCodeInvalidPlan
	case errors.As(err, &notFound):
		return http.StatusNotFound, errorCodeNotFound
	case errors.Is(err, scheduler.ErrRunLocked),
		errors.Is(err, service.ErrNotActive),
		errors.Is(err, orchestrator.ErrNotResumable):
		return http.StatusConflict, errorCodeConflict
	case errors.Is(err, service.ErrClosed):
		return http.StatusServiceUnavailable, errorCodeUnavailable
	default:
		return http.StatusInternalServerError, errorCodeRuntime
	}
}
