package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/facelocker/server/internal/biometric"
	"github.com/facelocker/server/internal/locker/service"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeJSON encodes v before touching the response, so an unencodable
// value turns into a 500 instead of a truncated 200.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("encode response failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	writeBody(w, status, body)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	// Two strings always encode.
	body, _ := json.Marshal(errorResponse{Error: code, Message: msg})
	writeBody(w, status, body)
}

func writeBody(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

// errorStatus maps service and biometric errors to an HTTP status and a
// stable error code. Unknown errors are internal.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrInvalidIdentityID):
		return http.StatusBadRequest, "invalid_identity_id"
	case errors.Is(err, service.ErrInvalidAction):
		return http.StatusBadRequest, "invalid_action"
	case errors.Is(err, service.ErrNotEnrolled):
		return http.StatusBadRequest, "not_enrolled"
	case errors.Is(err, biometric.ErrDimensionMismatch):
		return http.StatusBadRequest, "dimension_mismatch"
	case errors.Is(err, biometric.ErrNonFinite):
		return http.StatusBadRequest, "invalid_vector"
	case errors.Is(err, biometric.ErrNoFaceDetected):
		return http.StatusBadRequest, "no_face_detected"
	case errors.Is(err, biometric.ErrBadEncoding):
		return http.StatusBadRequest, "bad_encoding"
	case errors.Is(err, service.ErrPermissionDenied):
		return http.StatusForbidden, "permission_denied"
	case errors.Is(err, service.ErrAlreadyOccupied):
		return http.StatusBadRequest, "already_occupied"
	case errors.Is(err, service.ErrNotOccupied):
		return http.StatusBadRequest, "not_occupied"
	case errors.Is(err, service.ErrAlreadyLocked):
		return http.StatusBadRequest, "already_locked"
	case errors.Is(err, service.ErrAlreadyUnlocked):
		return http.StatusBadRequest, "already_unlocked"
	case errors.Is(err, service.ErrLockerNotFound):
		return http.StatusNotFound, "locker_not_found"
	case errors.Is(err, service.ErrTooManyAttempts):
		return http.StatusTooManyRequests, "too_many_attempts"
	}
	return http.StatusInternalServerError, "internal_error"
}

// writeServiceError writes err with its mapped status. Internal errors are
// logged and their details withheld from the client.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, code := errorStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Error(op+" failed", "request_id", requestID(r.Context()), "err", err)
		writeError(w, status, code, "unexpected server error")
		return
	}
	writeError(w, status, code, err.Error())
}
