// Package sentinel defines infrastructure facts returned by stores.
//
// Stores return these (optionally wrapped) and services translate them into coded
// domain errors:
//   - ErrNotFound: no record for the key
//   - ErrConflict: a unique key is already taken
//   - ErrRevoked: the record exists but was revoked
//   - ErrUnavailable: the backing store could not answer in time
//
// For validation errors use pkg/domain-errors directly.
package sentinel

import "errors"

var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrRevoked     = errors.New("revoked")
	ErrUnavailable = errors.New("unavailable")
)

// IsUnavailable reports whether err should be treated as a store outage.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
