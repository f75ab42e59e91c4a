package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/libstaff/reqflow/pkg/backend"
	"github.com/libstaff/reqflow/pkg/entity"
	"github.com/libstaff/reqflow/pkg/payload"
	"github.com/libstaff/reqflow/pkg/policy"
)

// Submit validates the session, shapes the payload, and hands it to the
// submit collaborator. Local gates run in order: required entities
// resolved for the decided level, chosen request type allowed, patron
// not blocked (or explicitly overridden), shaped payload schema-valid.
// Only then is the collaborator contacted. On rejection the form stays
// editable and no local state is cleared.
func (o *Orchestrator) Submit(ctx context.Context) (backend.Ack, error) {
	o.mu.Lock()
	if o.disposed {
		o.mu.Unlock()
		return backend.Ack{}, ErrDisposed
	}
	if o.initErr != nil {
		o.mu.Unlock()
		return backend.Ack{}, o.initErr
	}
	if o.submitting {
		o.mu.Unlock()
		return backend.Ack{}, fmt.Errorf("%w: submission already in progress", ErrValidationIncomplete)
	}

	in, err := o.shapeInputLocked()
	if err != nil {
		o.mu.Unlock()
		o.metrics.SubmissionFinished("incomplete")
		return backend.Ack{}, err
	}
	o.submitting = true
	o.mu.Unlock()

	ack, err := o.submitShaped(ctx, in)

	o.mu.Lock()
	o.submitting = false
	o.mu.Unlock()
	return ack, err
}

// shapeInputLocked assembles the shaping snapshot after running the
// local validation gates. Callers hold o.mu.
func (o *Orchestrator) shapeInputLocked() (payload.Input, error) {
	if o.identity.RequesterID == "" {
		return payload.Input{}, fmt.Errorf("%w: requester not resolved", ErrValidationIncomplete)
	}

	level, err := policy.FinalizeLevel(o.levelInputsLocked())
	if err != nil {
		return payload.Input{}, fmt.Errorf("%w: %w", ErrValidationIncomplete, err)
	}

	if o.form.Type == "" {
		return payload.Input{}, fmt.Errorf("%w: request type not chosen", ErrValidationIncomplete)
	}
	if len(o.allowedTypes) > 0 && !typeAllowed(o.form.Type, o.allowedTypes) {
		return payload.Input{}, fmt.Errorf("%w: request type %s not allowed for this target", ErrValidationIncomplete, o.form.Type)
	}

	in := payload.Input{
		Form:          o.form,
		Level:         level,
		Item:          o.item,
		Instance:      o.instance,
		Identity:      o.identity,
		Block:         o.block,
		InstanceID:    o.itemCtx.InstanceID,
		Location:      o.location,
		HoldShelfTime: o.holdShelfTime,
		Now:           o.clock(),
	}
	if o.mode == entity.ModeEdit && o.existing != nil {
		in.ExistingID = o.existing.ID
	}
	return in, nil
}

func (o *Orchestrator) submitShaped(ctx context.Context, in payload.Input) (backend.Ack, error) {
	shaped, err := payload.Shape(in)
	if err != nil {
		if errors.Is(err, payload.ErrSubmissionBlocked) {
			o.metrics.SubmissionFinished("blocked")
			return backend.Ack{}, err
		}
		o.metrics.SubmissionFinished("incomplete")
		return backend.Ack{}, fmt.Errorf("%w: %w", ErrValidationIncomplete, err)
	}

	if o.validator != nil {
		if err := o.validator.Validate(ctx, shaped); err != nil {
			o.metrics.SubmissionFinished("incomplete")
			return backend.Ack{}, fmt.Errorf("%w: %w", ErrValidationIncomplete, err)
		}
	}

	if o.submitter == nil {
		o.metrics.SubmissionFinished("incomplete")
		return backend.Ack{}, fmt.Errorf("%w: no submit collaborator configured", ErrValidationIncomplete)
	}

	ack, err := o.submitter.Submit(ctx, shaped)
	if err != nil {
		o.metrics.SubmissionFinished("rejected")
		var serverErr *backend.SubmitError
		if errors.As(err, &serverErr) {
			return backend.Ack{}, fmt.Errorf("%w: %w", ErrSubmissionRejected, serverErr)
		}
		return backend.Ack{}, fmt.Errorf("%w: %w", ErrSubmissionRejected, err)
	}

	o.metrics.SubmissionFinished("ok")
	o.logger.Info("request submitted",
		zap.String("requestId", ack.ID),
		zap.String("level", string(shaped.Level)),
		zap.Bool("overridden", shaped.Override != nil),
	)
	return ack, nil
}

// RejectionFields extracts field-keyed server messages from a submission
// error, for rendering inline. Returns nil for non-rejection errors.
func RejectionFields(err error) map[string][]string {
	var serverErr *backend.SubmitError
	if errors.As(err, &serverErr) && serverErr != nil {
		return serverErr.FieldErrors
	}
	return nil
}

func typeAllowed(t entity.RequestType, allowed []entity.RequestType) bool {
	for _, a := range allowed {
		if a == t {
			return true
		}
	}
	return false
}
