package embedder

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxErrorBody bounds how much of a failed response body is kept.
const maxErrorBody = 512

// StatusError is returned by the HTTP embedders when the provider answers
// with a non-2xx status. The retry policy keys its wait off StatusCode.
type StatusError struct {
	// Provider names the backend that failed (e.g. "huggingface").
	Provider string
	// StatusCode is the HTTP status returned by the provider.
	StatusCode int
	// Body is the start of the response body, for diagnostics.
	Body string
}

// Error implements error.
func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s embedder: HTTP %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s embedder: HTTP %d: %s", e.Provider, e.StatusCode, e.Body)
}

// statusCode extracts the HTTP status from err, or 0 when err is not a StatusError.
func statusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

// newStatusError reads a bounded snippet of resp's body into a StatusError.
func newStatusError(provider string, resp *http.Response) *StatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{
		Provider:   provider,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
	}
}
