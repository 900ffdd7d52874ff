package errors

import "errors"

var (
	// ErrValidation marks caller input that was rejected before any record was written.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrRetrievalUnavailable marks a failed embedding or vector index call.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")
	// ErrGenerationUnavailable marks a failed generative model call.
	ErrGenerationUnavailable = errors.New("generation unavailable")
	// ErrDispatchFailure marks a failed hand-off to the worker queue.
	ErrDispatchFailure = errors.New("dispatch failure")
	// ErrPersistence marks a failed job store read or write.
	ErrPersistence = errors.New("persistence failure")
	// ErrDecode marks a malformed worker payload.
	ErrDecode = errors.New("payload decode failed")
)

// Tag joins a taxonomy sentinel with its cause so both survive errors.Is.
func Tag(sentinel, cause error) error {
	if cause == nil {
		return nil
	}
	if errors.Is(cause, sentinel) {
		return cause
	}
	return errors.Join(sentinel, cause)
}
