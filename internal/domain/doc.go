// Package domain defines the core domain types for the Black Paper discourse
// platform.
//
// This package contains the entities and value objects that represent
// evidence-based discussion: hypotheses, sources, votes, comments, and users.
//
// # Core Types
//
// Hypothesis is a published, falsifiable claim with a validated title, body,
// and category. Source and comment counters are cached aggregates maintained
// from the event stream; evidence balance and controversy are derived from
// them.
//
// Source is an evidence link attached to a hypothesis with a stance
// (supporting or refuting), a credibility-scored URL, and a per-voter vote
// map with overwrite semantics.
//
// Comment is a node in a threaded discussion with a tagged parent reference
// (hypothesis or comment), bounded nesting depth, and soft deletion.
// TreeBuilder reconstructs threads from the flat, unordered event stream.
//
// User is a participant identified by a secp256k1 public key, with derived
// reputation and activity metrics.
//
// # Construction
//
// All aggregates are built through factory functions that validate every
// field; there are no public constructors, so invariants cannot be bypassed.
// Factories return ErrValidation on bad input; mutators return ErrInvariant
// and leave the aggregate untouched.
//
// # Design Principles
//
//   - Immutable value objects; the vote map and reply list are the only
//     mutable state, reachable only through their invariant-checking methods
//   - No transport, storage, or wire-format dependencies
//   - Derived statistics recomputed from owned state, never cached stale
package domain
