// Package apierrors collects the sentinel errors surfaced across the
// tablet lifecycle and transaction admission core (spec.md §7).
package apierrors

import "errors"

var (
	// ErrAlreadyPresent: CreateNewTablet on an identifier that is already
	// registered or already has a creation in progress.
	ErrAlreadyPresent = errors.New("tablet already present")
	// ErrNotFound: lookup by an unknown tablet identifier.
	ErrNotFound = errors.New("tablet not found")
	// ErrServiceUnavailable: admission rejected under memory pressure, or
	// DeleteTablet called on a peer that was already quiescing or shut down.
	ErrServiceUnavailable = errors.New("service unavailable")
	// ErrTimedOut: a drain deadline elapsed with transactions still pending.
	ErrTimedOut = errors.New("timed out")
)
