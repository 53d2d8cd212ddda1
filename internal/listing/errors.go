package listing

import (
	"errors"
	"fmt"
)

var (
	// ErrStaleResponse marks a page that arrived for a superseded query. It never reaches views.
	ErrStaleResponse = errors.New("listing: stale response discarded")
	// ErrClosed is returned by Wait once the controller has been closed.
	ErrClosed = errors.New("listing: controller closed")
)

// FetchError reports a non-success HTTP response from the backend.
type FetchError struct {
	StatusCode int
	Message    string
}

func (e *FetchError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Message)
}

// DecodeError reports a response body that could not be decoded into records.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode backend response: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// UserMessage renders err for display in place of the list.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.Error()
	}
	var decodeErr *DecodeError
	if errors.As(err, &decodeErr) {
		return "The backend sent data that could not be read."
	}
	return err.Error()
}
