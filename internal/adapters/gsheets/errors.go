package gsheets

import (
	"errors"
	"net/http"

	"google.golang.org/api/googleapi"
)

var (
	ErrNoHTTPClient = errors.New("gsheets: http client is required")
	ErrInitService  = errors.New("gsheets: init upstream service")
)

// UpstreamStatus extracts the HTTP status the upstream API answered with.
// The second result is false when err did not come from an upstream reply.
func UpstreamStatus(err error) (int, bool) {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code >= http.StatusBadRequest {
		return gerr.Code, true
	}
	return 0, false
}
