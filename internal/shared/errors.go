package shared

import "errors"

// ErrUnknownRole indicates a role outside the closed role set.
var ErrUnknownRole = errors.New("unknown role")
