package collection

import "errors"

var (
	// ErrFetchFailed wraps an error returned by the fetch controller, such as
	// fetchctl.ErrNoContext. A fetch that still fails after its retries is not
	// returned as an error; it is recorded in the controller's state.
	ErrFetchFailed = errors.New("collection: fetch failed")

	// ErrClosed is returned by any mutating operation called after Close.
	ErrClosed = errors.New("collection: collection is closed")
)
