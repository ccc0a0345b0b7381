package storage

import "errors"

var (
	// Acquisition errors

	// ErrNoCompatibleScan is the not-found signal from AcquireScan: no access
	// path can serve the requested ordering. Callers treat it as an expected
	// negative outcome and fall back, never as a failure.
	ErrNoCompatibleScan = errors.New("no compatible scan for requested ordering")

	// ErrNotFound if the namespace does not exist at acquisition time.
	ErrNotFound = errors.New("namespace not found")

	// Iteration errors

	// ErrScanInvalidated if the collection or database disappeared while the
	// scan was suspended at a yield point. Fatal for the scan.
	ErrScanInvalidated = errors.New("collection or database disappeared when scan yielded")
)
