package followup

import "errors"

var (
	// ErrDirectoryUnavailable means the roster could not be fetched. No
	// state is generated or stored when it occurs.
	ErrDirectoryUnavailable = errors.New("contact directory unavailable")

	// ErrNoDataForMonth means the requested month was never generated.
	ErrNoDataForMonth = errors.New("no follow-up data for month")

	// ErrNotFound means no assignment matched a completion request.
	ErrNotFound = errors.New("follow-up not found")
)
