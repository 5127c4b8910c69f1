package service

import (
	"errors"
	"net/http"
)

// Locally raised error kinds. Upstream errors are never wrapped in these.
var (
	ErrInvalidPayload       = errors.New("invalid request payload")
	ErrSheetNotFound        = errors.New("sheet not found")
	ErrUnsupportedOperation = errors.New("unsupported operation")
)

// StatusCode maps a locally raised error to its HTTP status. The second
// result is false for anything else.
func StatusCode(err error) (int, bool) {
	switch {
	case errors.Is(err, ErrSheetNotFound):
		return http.StatusNotFound, true
	case errors.Is(err, ErrInvalidPayload), errors.Is(err, ErrUnsupportedOperation):
		return http.StatusBadRequest, true
	default:
		return 0, false
	}
}
