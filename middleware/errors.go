package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	leaseAuth "github.com/leasehub/leaseAuth"
)

// ErrorBody is the JSON error envelope shared by the auth endpoints.
type ErrorBody struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// WriteError writes the error envelope with the given status.
func WriteError(w http.ResponseWriter, status int, message, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorBody{Status: status, Message: message, Details: details})
}

// publicDetail names the rejection without leaking backend errors.
func publicDetail(err error) string {
	switch {
	case errors.Is(err, leaseAuth.ErrTokenExpired):
		return "token expired"
	case errors.Is(err, leaseAuth.ErrTokenRevoked):
		return "token revoked"
	case errors.Is(err, leaseAuth.ErrInvalidToken):
		return "invalid token"
	default:
		return "authentication failed"
	}
}
