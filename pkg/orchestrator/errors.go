package orchestrator

import (
	"errors"

	"github.com/libstaff/reqflow/pkg/payload"
	"github.com/libstaff/reqflow/pkg/resolve"
)

// The error taxonomy exposed to the UI layer. Every error leaving this
// package matches exactly one of these via errors.Is; raw transport
// errors never surface directly.
var (
	// ErrNotFound reports a lookup that matched zero records. It is a
	// field-level validation condition; other fields stay editable.
	ErrNotFound = errors.New("orchestrator: no matching record")

	// ErrResolutionFailed reports a transport or server failure during a
	// lookup. The previously resolved value, if any, is preserved and
	// the condition is retryable.
	ErrResolutionFailed = resolve.ErrResolutionFailed

	// ErrValidationIncomplete rejects a submission attempted before all
	// required entities are resolved. The submit collaborator is never
	// contacted.
	ErrValidationIncomplete = errors.New("orchestrator: submission requirements not met")

	// ErrSubmissionBlocked rejects a submission while the requester is
	// blocked and no override has been granted.
	ErrSubmissionBlocked = payload.ErrSubmissionBlocked

	// ErrSubmissionRejected wraps a structured server rejection from the
	// submit collaborator. Form state is left untouched.
	ErrSubmissionRejected = errors.New("orchestrator: submission rejected by server")

	// ErrDisposed reports an operation on a form instance that has been
	// closed. Late lookup results are silently dropped instead, so this
	// only surfaces on direct calls.
	ErrDisposed = errors.New("orchestrator: form instance disposed")
)
