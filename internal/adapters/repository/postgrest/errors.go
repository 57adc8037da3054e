package postgrest

import (
	"errors"
	"fmt"
)

// ErrInvalidURL is returned by New for an unusable project URL.
var ErrInvalidURL = errors.New("postgrest: invalid url")

// APIError is a non-2xx answer from the REST endpoint.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "unexpected response"
	}
	if e.Code != "" {
		return fmt.Sprintf("%s (status %d, code %s)", msg, e.Status, e.Code)
	}
	return fmt.Sprintf("%s (status %d)", msg, e.Status)
}
