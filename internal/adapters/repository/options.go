// Package repository defines the blocklist store interface and errors.
package repository

import "github.com/okian/sift/internal/domain/model"

// Option applies a configuration option to the MemoryStore.
type Option func(*MemoryStore)

// WithRecords seeds the store. Records with an empty UserID are skipped.
func WithRecords(records ...model.BlockRecord) Option {
	return func(s *MemoryStore) {
		for _, r := range records {
			if r.UserID == "" {
				continue
			}
			if _, ok := s.records[r.UserID]; !ok {
				s.order = append(s.order, r.UserID)
			}
			s.records[r.UserID] = r
		}
	}
}

// WithFailure makes every call return err. Used to simulate an unreachable datastore.
func WithFailure(err error) Option {
	return func(s *MemoryStore) {
		s.failure = err
	}
}
