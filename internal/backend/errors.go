package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrNoToken is returned when a request needs a bearer token and there is none.
var ErrNoToken = errors.New("no bearer token")

// APIError is a non-2xx response. Message keeps what the server said.
type APIError struct {
	Status  int
	Message string
	Method  string
	Path    string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("%s %s: %d: %s", e.Method, e.Path, e.Status, msg)
}

// Unauthorized reports whether the token was rejected.
func (e *APIError) Unauthorized() bool {
	return e.Status == http.StatusUnauthorized
}

// NotFound reports whether the resource does not exist.
func (e *APIError) NotFound() bool {
	return e.Status == http.StatusNotFound
}

// IsUnauthorized reports whether err is an APIError for a rejected token.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Unauthorized()
}

// IsNotFound reports whether err is an APIError for a missing resource.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.NotFound()
}

// parseError builds an APIError from a response body. Backends put the
// reason under "message" or "error"; a non-JSON body is kept verbatim.
func parseError(status int, method, path string, body []byte) *APIError {
	e := &APIError{Status: status, Method: method, Path: path}
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil {
		e.Message = payload.Message
		if e.Message == "" {
			e.Message = payload.Error
		}
		return e
	}
	e.Message = strings.TrimSpace(string(body))
	if len(e.Message) > 200 {
		e.Message = e.Message[:200]
	}
	return e
}
