package core

import "errors"

// Sentinel errors shared by the external-store contracts. Adapters return
// these (wrapped) so callers can branch with errors.Is without knowing the
// backing store.
var (
	// ErrNotFound means the requested entity does not exist in the store.
	ErrNotFound = errors.New("not found")

	// ErrUnavailable means the backing store could not be reached. Callers
	// treat the affected sub-step as empty/partial rather than fatal.
	ErrUnavailable = errors.New("store unavailable")
)
