package apiclient

import (
	"net/http"

	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
)

// Error is a non-2xx response from the backend, or a transport failure when
// StatusCode is 0.
type Error struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) UpstreamStatus() int {
	return e.StatusCode
}

func newError(status int, body []byte) *Error {
	return &Error{
		StatusCode: status,
		Message:    messageFromBody(body, http.StatusText(status)),
		Body:       body,
	}
}

// messageFromBody pulls the backend's "error" or "message" field out of a
// JSON error body.
func messageFromBody(body []byte, fallback string) string {
	var payload struct {
		Error   interface{} `json:"error"`
		Message interface{} `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return fallback
	}
	for _, v := range []interface{}{payload.Error, payload.Message} {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return fallback
}

// StatusCode returns the backend status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// IsClientError reports whether the backend rejected the request with a 4xx.
func IsClientError(err error) bool {
	status := StatusCode(err)
	return status >= 400 && status < 500
}
