package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	authgate "github.com/hexlattice/authgate"
)

// maxBodyBytes caps request bodies. The largest legitimate payload is
// a sign-up request; anything past 64 KiB is abuse.
const maxBodyBytes = 64 << 10

type errorEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorEnvelope `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: errorEnvelope{Code: code, Message: message}})
}

// decodeJSON reads the body into dst, answering 400 itself on failure.
// Returns false when the handler should stop.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body is not valid JSON")
		return false
	}
	// Reject trailing garbage after the first JSON value.
	if dec.More() {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body must contain a single JSON object")
		return false
	}
	_, _ = io.Copy(io.Discard, r.Body)

	return true
}

// writeEngineError is the single translation point from engine
// sentinels to wire responses.
func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, authgate.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, authgate.ErrEmailInUse):
		writeError(w, http.StatusConflict, "email_in_use", "email address is already registered")
	case errors.Is(err, authgate.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")
	case errors.Is(err, authgate.ErrUnauthorized),
		errors.Is(err, authgate.ErrSessionNotFound),
		errors.Is(err, authgate.ErrSessionExpired):
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
	case errors.Is(err, authgate.ErrInvalidOrExpiredToken):
		writeError(w, http.StatusUnauthorized, "invalid_token", "token is invalid or has expired")
	case errors.Is(err, authgate.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "not_found", "user not found")
	case errors.Is(err, authgate.ErrStoreUnavailable):
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("storage unavailable")
		writeError(w, http.StatusServiceUnavailable, "unavailable", "service temporarily unavailable")
	default:
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("unhandled engine error")
		writeError(w, http.StatusInternalServerError, "internal", "internal server error")
	}
}
