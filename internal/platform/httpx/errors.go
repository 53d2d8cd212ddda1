// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/regwatch/regwatch/internal/listing"
)

// Sentinel errors mapped to status codes.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
)

// RespondError maps domain and backend errors to RFC7807 responses.
func RespondError(w http.ResponseWriter, err error) {
	var fetchErr *listing.FetchError
	var decodeErr *listing.DecodeError
	switch {
	case errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrUnauthorized):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	case errors.As(err, &fetchErr):
		status := http.StatusBadGateway
		if fetchErr.StatusCode == http.StatusUnauthorized || fetchErr.StatusCode == http.StatusForbidden {
			status = fetchErr.StatusCode
		}
		Problem(w, status, "Backend Error", fetchErr.Error())
	case errors.As(err, &decodeErr):
		Problem(w, http.StatusBadGateway, "Backend Error", listing.UserMessage(err))
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
