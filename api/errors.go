package api

import (
	"fmt"
	"net/http"
)

// StatusError is a non-2xx response from the backend.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: status %d", e.Code)
	}
	return fmt.Sprintf("api: status %d: %s", e.Code, e.Message)
}

// Unauthorized reports whether the error is a 401 rejection.
func (e *StatusError) Unauthorized() bool {
	return e.Code == http.StatusUnauthorized
}
