package reasoningbank

import "errors"

// Error taxonomy for the ReasoningBank core. Every capability (repository,
// embedder, text generator) returns errors that either are, or wrap, one of
// these sentinels so callers can distinguish "my fault" from "store is down"
// without a bespoke error-code system.
var (
	// ErrInvalidRecord is returned by add/update when a record fails
	// validation (missing required field, bad enum member, out-of-range
	// count or rate). Embedding problems are reported as ErrInvalidEmbedding.
	ErrInvalidRecord = errors.New("reasoningbank: invalid record")

	// ErrInvalidEmbedding is a more specific validation failure, used where
	// callers benefit from distinguishing "bad shape entirely" from
	// "embedding dimension/finiteness problem".
	ErrInvalidEmbedding = errors.New("reasoningbank: invalid embedding")

	// ErrNotFound is returned by get/update/delete/archive when the id does
	// not resolve to a record.
	ErrNotFound = errors.New("reasoningbank: record not found")

	// ErrStoreUnavailable wraps any underlying storage failure (connection
	// refused, timeout, driver error) that isn't a validation or not-found
	// condition.
	ErrStoreUnavailable = errors.New("reasoningbank: store unavailable")

	// ErrEmbedder wraps failures from the Embedder capability.
	ErrEmbedder = errors.New("reasoningbank: embedder failed")
)
