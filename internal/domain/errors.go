package domain

import "errors"

// ErrValidation is returned by factory functions when raw input violates a
// documented invariant (length bounds, format, enum membership, numeric range).
// Factories are all-or-nothing: no aggregate state is touched before the error.
var ErrValidation = errors.New("domain: validation failed")

// ErrInvariant is returned by mutating methods on an already-constructed
// aggregate (mismatched reply parent, vote value outside {-1,+1}, negative
// counters). The aggregate is left in its pre-call state.
var ErrInvariant = errors.New("domain: invariant violated")
