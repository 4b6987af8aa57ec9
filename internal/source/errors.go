package source

import (
	"errors"
	"fmt"
)

// maxErrorBody caps the response body kept on a FetchError.
const maxErrorBody = 2048

// FetchError reports a page that could not be retrieved. StatusCode is 0
// when the request never got a response.
type FetchError struct {
	URL        string
	StatusCode int
	Body       string
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ParseError reports a page whose structure did not match expectations.
type ParseError struct {
	URL    string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %s", e.URL, e.Reason)
}

// PartialListError accompanies a listing that stopped early because a later
// page failed. The references collected before the failure are still valid.
type PartialListError struct {
	URL string
	Err error
}

func (e *PartialListError) Error() string {
	return fmt.Sprintf("listing incomplete at %s: %v", e.URL, e.Err)
}

func (e *PartialListError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is a FetchError for a 404 response.
func IsNotFound(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.StatusCode == 404
}

func truncateBody(body []byte) string {
	if len(body) > maxErrorBody {
		return string(body[:maxErrorBody])
	}
	return string(body)
}
