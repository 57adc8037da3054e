package service

import "errors"

// Service errors.
var (
	ErrNoStore      = errors.New("service has no store")
	ErrEmptyUserID  = errors.New("user_id must not be empty")
	ErrUnknownStore = errors.New("unknown store driver")
)
