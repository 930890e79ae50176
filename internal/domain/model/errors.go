package model

import "errors"

// ErrMissingField marks a record without one of its required keys.
var ErrMissingField = errors.New("missing required field")
