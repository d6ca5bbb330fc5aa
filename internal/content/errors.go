package content

import "errors"

var (
	// ErrUnauthorized is returned by writes when the context carries no admin
	ErrUnauthorized = errors.New("admin sign-in required")
	// ErrNotFound is returned when neither the remote store nor the sample
	// data has the requested item
	ErrNotFound = errors.New("content not found")
	// ErrInvalid wraps input validation failures
	ErrInvalid = errors.New("invalid content")
	// ErrUnknownDomain is returned by the registry for unregistered names
	ErrUnknownDomain = errors.New("unknown content domain")
)
