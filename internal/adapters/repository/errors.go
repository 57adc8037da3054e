package repository

import "errors"

// Sentinel kinds for blocklist store errors.
var (
	ErrNotFound   = errors.New("block record not found")
	ErrConflict   = errors.New("concurrent update conflict")
	ErrNilStore   = errors.New("store is not initialized")
	ErrEmptyUser  = errors.New("empty user_id")
	ErrStoreClose = errors.New("store is closed")
)
