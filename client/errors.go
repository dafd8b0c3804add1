package client

import (
	"errors"
	"fmt"
)

var (
	// ErrWaitFault is returned by Wait when the long-poll ended without a
	// change: the server closed it with an empty or truncated body.
	ErrWaitFault = errors.New("wait ended without a response")

	ErrRelativePath       = errors.New("path should have been absolute")
	ErrComparisonRequired = errors.New("compare operation requires a current value or index")

	errNoClientURL = errors.New("member has no client url")
)

// TransportError is a connection level failure: refused, reset or timed out.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("unable to reach %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// HTTPError is a response status that does not carry a node.
type HTTPError struct {
	URL        string
	StatusCode int
	Status     string
	Body       []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s for url: %s", e.Status, e.URL)
}

// BodyReadError is returned when the headers arrived but the body could not
// be read, as with a broken chunked encoding.
type BodyReadError struct {
	URL string
	Err error
}

func (e *BodyReadError) Error() string {
	return fmt.Sprintf("unable to read response from %s: %v", e.URL, e.Err)
}

func (e *BodyReadError) Unwrap() error {
	return e.Err
}

// AlreadyExistsError is returned when creating a directory that exists.
type AlreadyExistsError struct {
	Path string
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s already exists", e.Path)
}
