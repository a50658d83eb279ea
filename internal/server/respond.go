package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/saadchadu/phrames"
	"github.com/saadchadu/phrames/store"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrInactive):
		return http.StatusNotFound
	case errors.Is(err, store.ErrExpired):
		return http.StatusGone
	case errors.Is(err, phrames.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, phrames.ErrNotImage):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, phrames.ErrEmptyImage),
		errors.Is(err, phrames.ErrBadDataURL),
		errors.Is(err, phrames.ErrNoPhoto),
		errors.Is(err, errBadMessage):
		return http.StatusBadRequest
	case errors.Is(err, phrames.ErrDecode):
		return http.StatusUnprocessableEntity
	case errors.Is(err, phrames.ErrFrameTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, phrames.ErrFrameUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage hides internal error detail from clients.
func publicMessage(err error) string {
	switch statusFor(err) {
	case http.StatusInternalServerError:
		return "internal error"
	case http.StatusBadGateway:
		return "the campaign frame could not be loaded, please try again"
	case http.StatusGatewayTimeout:
		return "loading the campaign frame timed out, please try again"
	default:
		return err.Error()
	}
}
