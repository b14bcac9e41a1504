package library

import "errors"

var (
	// ErrMalformed means a track identifier could not be decoded into a path.
	ErrMalformed = errors.New("malformed track identifier")
	// ErrForbidden means a decoded path would leave the library root.
	ErrForbidden = errors.New("path escapes library root")
	// ErrNotFound means the identifier is not present in the current index.
	ErrNotFound = errors.New("track not found")
)
