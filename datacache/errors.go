package datacache

import "fmt"

// FetchError is a network or HTTP level failure loading a dataset.
type FetchError struct {
	Key        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetching dataset %q: unexpected status %d", e.Key, e.StatusCode)
	}
	return fmt.Sprintf("fetching dataset %q: %v", e.Key, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError is a malformed dataset payload.
type ParseError struct {
	Key string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing dataset %q: %v", e.Key, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
