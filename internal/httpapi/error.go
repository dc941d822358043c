package httpapi

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a non-2xx provider response.
type Error struct {
	Provider string
	Status   int
	Path     string
	Message  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: status=%d %s: %s", e.Provider, e.Status, e.Path, e.Message)
}

// IsAuthError reports whether err is a rejected credential.
func IsAuthError(err error) bool {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden
	}
	return false
}
