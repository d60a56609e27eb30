package attendance

import "errors"

// Sentinel errors returned by the service and repository. Handlers map these
// to HTTP statuses; anything else is treated as a store failure.
var (
	// ErrNotFound means a referenced subject or session does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidArgument means the request is missing or malformed fields.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrConflict means a concurrent writer hit the same (subject, date,
	// period) key. Retryable: a retry observes the existing session and
	// takes the update path.
	ErrConflict = errors.New("conflicting concurrent write")
)
