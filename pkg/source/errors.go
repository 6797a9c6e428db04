package source

import (
	"errors"
	"fmt"
)

// ErrUnexpectedStatus is wrapped by FetchError when the provider answered
// with a non-200 status.
var ErrUnexpectedStatus = errors.New("unexpected status from provider")

// FetchError reports a failed provider call. A FetchError is returned
// instead of a partial result set.
type FetchError struct {
	Source     string
	Query      string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s fetch for %q failed (status %d): %v", e.Source, e.Query, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s fetch for %q failed: %v", e.Source, e.Query, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsFetchError reports whether err came from a provider call.
func IsFetchError(err error) bool {
	var fetchErr *FetchError
	return errors.As(err, &fetchErr)
}
