package planner

import "errors"

// ErrCursorInvalidated is returned when the collection backing a cursor
// disappeared while the cursor was suspended at a yield. It is a hard failure
// of the cursor, deliberately distinct from a clean end-of-stream.
var ErrCursorInvalidated = errors.New("cursor was invalidated")
