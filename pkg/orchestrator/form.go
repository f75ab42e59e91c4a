package orchestrator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/libstaff/reqflow/pkg/backend"
	"github.com/libstaff/reqflow/pkg/blocks"
	"github.com/libstaff/reqflow/pkg/entity"
	"github.com/libstaff/reqflow/pkg/policy"
	"github.com/libstaff/reqflow/pkg/resolve"
)

// SetRequestType records the chosen request type.
func (o *Orchestrator) SetRequestType(t entity.RequestType) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.disposed {
		return
	}
	o.form.Type = t
}

// SetTitleLevel toggles the "create title level request" flag. Ignored
// in edit mode, where the persisted record pins the level.
func (o *Orchestrator) SetTitleLevel(on bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.disposed || o.mode == entity.ModeEdit {
		return
	}
	o.form.TitleLevel = on
}

// SetFulfillment records the fulfillment preference. The field for the
// other mode is left in form state; the shaper prunes it at submission.
func (o *Orchestrator) SetFulfillment(pref entity.FulfillmentPreference) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.disposed {
		return
	}
	o.form.Fulfillment = pref
}

// SetPickupServicePoint records the hold shelf pickup location.
func (o *Orchestrator) SetPickupServicePoint(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.disposed {
		return
	}
	o.form.PickupServicePointID = id
}

// SetDeliveryAddressType records the delivery address choice.
func (o *Orchestrator) SetDeliveryAddressType(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.disposed {
		return
	}
	o.form.DeliveryAddressTypeID = id
}

// SetRequestExpirationDate records the request expiration date as an
// ISO date string; empty clears it.
func (o *Orchestrator) SetRequestExpirationDate(date string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.disposed {
		return
	}
	o.form.RequestExpirationDate = date
}

// SetHoldShelfExpiration records the separately edited date and time
// components. The shaper combines them into one instant at submission.
func (o *Orchestrator) SetHoldShelfExpiration(date, timeOfDay string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.disposed {
		return
	}
	o.form.HoldShelfExpirationDate = date
	o.form.HoldShelfExpirationTime = timeOfDay
}

// SetPatronComments records free-text comments.
func (o *Orchestrator) SetPatronComments(text string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.disposed {
		return
	}
	o.form.PatronComments = text
}

// SelectProxy records that the resolved requester is acting as proxy for
// the given sponsor. The sponsor becomes the requester of record, so the
// block state is re-evaluated; pass nil to clear the relationship.
func (o *Orchestrator) SelectProxy(ctx context.Context, sponsor *entity.User) error {
	o.mu.Lock()
	if o.disposed {
		o.mu.Unlock()
		return ErrDisposed
	}
	if sponsor != nil {
		s := *sponsor
		o.proxy = &s
	} else {
		o.proxy = nil
	}
	// The requester of record changed, so a granted override no longer
	// applies.
	o.overridden = false
	o.recomputeLocked()
	o.mu.Unlock()

	if err := o.RefreshBlocks(ctx); err != nil {
		return err
	}
	o.refreshAllowedTypes(ctx)
	return nil
}

// SetOverride grants or withdraws the explicit patron block override.
// The block lists are untouched; the flag only changes how they are
// evaluated, and the shaper turns it into an auditable payload marker.
func (o *Orchestrator) SetOverride(granted bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.disposed {
		return
	}
	o.overridden = granted
	o.recomputeLocked()
}

// SetBlocks pushes externally refreshed block lists into the session and
// re-evaluates. Manual blocks must be in most-recently-updated-first
// order.
func (o *Orchestrator) SetBlocks(manual []entity.ManualBlock, automated []entity.AutomatedBlock) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.disposed {
		return
	}
	o.manualBlocks = manual
	o.automatedBlocks = automated
	o.recomputeLocked()
}

// RefreshBlocks pulls current block lists from the block source for the
// requester of record and re-evaluates. With no requester resolved it
// just clears the lists.
func (o *Orchestrator) RefreshBlocks(ctx context.Context) error {
	o.mu.Lock()
	if o.disposed {
		o.mu.Unlock()
		return ErrDisposed
	}
	requesterID := o.identity.RequesterID
	o.mu.Unlock()

	if requesterID == "" {
		o.SetBlocks(nil, nil)
		return nil
	}
	if o.blockSource == nil {
		return nil
	}

	manual, err := o.blockSource.ManualBlocks(ctx, requesterID)
	if err != nil {
		return fmt.Errorf("orchestrator: manual blocks for %s: %w: %w", requesterID, ErrResolutionFailed, err)
	}
	automated, err := o.blockSource.AutomatedBlocks(ctx, requesterID)
	if err != nil {
		return fmt.Errorf("orchestrator: automated blocks for %s: %w: %w", requesterID, ErrResolutionFailed, err)
	}
	o.SetBlocks(manual, automated)
	return nil
}

// recomputeLocked refreshes the derived identity and block state from
// the current inputs. Callers hold o.mu.
func (o *Orchestrator) recomputeLocked() {
	if o.user != nil {
		o.identity = policy.ResolveRequester(*o.user, o.proxy)
	} else {
		o.identity = entity.RequesterIdentity{}
	}
	o.block = blocks.Evaluate(blocks.Inputs{
		ManualBlocks:    o.manualBlocks,
		AutomatedBlocks: o.automatedBlocks,
		RequesterID:     o.identity.RequesterID,
		Overridden:      o.overridden,
		Now:             o.clock(),
	})
}

// refreshAllowedTypes queries the allowed request types once requester
// and target are both known. Failures keep the previous list; an outage
// in the rules engine must not freeze the form.
func (o *Orchestrator) refreshAllowedTypes(ctx context.Context) {
	if o.typeSource == nil {
		return
	}

	o.mu.Lock()
	if o.disposed {
		o.mu.Unlock()
		return
	}
	q := backend.AllowedQuery{
		RequesterID: o.identity.RequesterID,
		Operation:   backend.OperationCreate,
	}
	if o.mode == entity.ModeEdit {
		q.Operation = backend.OperationReplace
	}
	level := policy.ResolveLevel(o.levelInputsLocked())
	switch level {
	case entity.LevelTitle:
		if o.instance != nil {
			q.InstanceID = o.instance.ID
		}
	default:
		if o.item != nil {
			q.ItemID = o.item.ID
		}
	}
	o.mu.Unlock()

	if q.RequesterID == "" || (q.ItemID == "" && q.InstanceID == "") {
		return
	}

	types, err := o.typeSource.FetchAllowed(ctx, q)
	if err != nil {
		o.logger.Warn("allowed request types", zap.Error(err))
		return
	}

	o.mu.Lock()
	if !o.disposed {
		o.allowedTypes = types
	}
	o.mu.Unlock()
}

func (o *Orchestrator) levelInputsLocked() policy.LevelInputs {
	in := policy.LevelInputs{
		TitleLevel: o.form.TitleLevel,
		Instance:   o.instance,
		Item:       o.item,
	}
	if o.mode == entity.ModeEdit {
		in.Existing = o.existing
	}
	return in
}

// Snapshot returns a read-only copy of the session for rendering.
func (o *Orchestrator) Snapshot() View {
	o.mu.Lock()
	defer o.mu.Unlock()

	form := o.form
	if len(form.RefreshSeq) > 0 {
		seq := make(map[string]int, len(form.RefreshSeq))
		for field, n := range form.RefreshSeq {
			seq[field] = n
		}
		form.RefreshSeq = seq
	}

	view := View{
		Mode:       o.mode,
		Form:       form,
		Identity:   o.identity,
		Block:      o.block,
		Submitting: o.submitting,
		States:     make(map[resolve.Kind]EntityState, len(o.states)),
	}
	for kind, state := range o.states {
		view.States[kind] = state
	}
	if o.item != nil {
		item := *o.item
		view.Item = &item
	}
	if o.user != nil {
		user := *o.user
		view.Requester = &user
	}
	if o.proxy != nil {
		proxy := *o.proxy
		view.Proxy = &proxy
	}
	if o.instance != nil {
		instance := *o.instance
		view.Instance = &instance
	}
	if o.itemCtx.Loan != nil {
		loan := *o.itemCtx.Loan
		view.Loan = &loan
	}
	view.AllowedTypes = append([]entity.RequestType(nil), o.allowedTypes...)
	return view
}
