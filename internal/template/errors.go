package template

import "errors"

var (
	// ErrNotFound indicates the requested template name or id does not exist.
	ErrNotFound = errors.New("template: not found")

	// ErrInvalidName indicates an empty or malformed template name.
	ErrInvalidName = errors.New("template: invalid name")
)
