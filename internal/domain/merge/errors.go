package merge

import "errors"

// Sentinel kinds for merge errors.
var (
	ErrUnknownPolicy = errors.New("unknown merge policy")
)
