package domain

import "errors"

var (
	// ErrInvalidURL marks a candidate link that does not parse into scheme and host.
	// It is scoped to one link and never aborts a check.
	ErrInvalidURL = errors.New("invalid URL")
	// ErrFetch marks a transport failure, timeout or unresolvable host while fetching a link.
	ErrFetch = errors.New("network error")
)
