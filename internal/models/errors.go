package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for the pipeline failure taxonomy. Stages wrap these with
// context via fmt.Errorf("%w") so callers can branch with errors.Is.
var (
	// ErrInvalidInput marks malformed or too-short article/query text.
	// Rejected before pipeline entry and never retried automatically.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDependencyUnavailable marks an unreachable embedding provider,
	// vector store, or structured store. Retried with backoff at the call
	// site; ingestion is deferred after retries are exhausted.
	ErrDependencyUnavailable = errors.New("dependency unavailable")

	// ErrProviderTimeout marks a stage-level timeout. Treated identically to
	// ErrDependencyUnavailable for retry purposes.
	ErrProviderTimeout = errors.New("provider timeout")
)

// EnrichmentError wraps a non-fatal failure from an enrichment stage (entity
// extraction, sentiment). The pipeline logs it and continues with a safe
// default so a partial record is still stored.
type EnrichmentError struct {
	Stage string
	Err   error
}

func (e *EnrichmentError) Error() string {
	return fmt.Sprintf("enrichment failed in %s: %v", e.Stage, e.Err)
}

func (e *EnrichmentError) Unwrap() error { return e.Err }

// PartialStorageError reports that exactly one of the two stores failed during
// indexing. The caller retries only the failed half; partial success is never
// collapsed into total success or total failure.
type PartialStorageError struct {
	VectorStored     bool
	StructuredStored bool
	Err              error
}

func (e *PartialStorageError) Error() string {
	switch {
	case e.VectorStored && !e.StructuredStored:
		return fmt.Sprintf("structured store write failed (vector store succeeded): %v", e.Err)
	case !e.VectorStored && e.StructuredStored:
		return fmt.Sprintf("vector store write failed (structured store succeeded): %v", e.Err)
	default:
		return fmt.Sprintf("partial storage failure: %v", e.Err)
	}
}

func (e *PartialStorageError) Unwrap() error { return e.Err }

// IsRetryable reports whether an error should be retried with backoff.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrDependencyUnavailable) || errors.Is(err, ErrProviderTimeout)
}
