package electrolux

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrRefreshFailed marks requests aborted because the token could not be refreshed.
var ErrRefreshFailed = errors.New("access token refresh failed")

// RequestError describes a failed API call. StatusCode is zero when the
// request never produced a response.
type RequestError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
	Err        error
}

func (e *RequestError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("electrolux api %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("electrolux api %s %s: %v", e.Method, e.Path, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}
