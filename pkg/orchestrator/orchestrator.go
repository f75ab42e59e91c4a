// Package orchestrator owns the request form session: it sequences the
// asynchronous entity lookups triggered by field edits, applies their
// results in dispatch order through the resolver's token protocol, keeps
// the derived block and identity state current, and gates submission.
//
// The form state is exclusively owned here. The pure evaluators in
// pkg/blocks, pkg/policy, and pkg/payload receive snapshots and return
// derived values; the orchestrator stores what they return. UI
// collaborators observe everything through Snapshot.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/libstaff/reqflow/internal/debounce"
	"github.com/libstaff/reqflow/pkg/backend"
	"github.com/libstaff/reqflow/pkg/entity"
	"github.com/libstaff/reqflow/pkg/payload"
	"github.com/libstaff/reqflow/pkg/resolve"
)

const defaultDebounceWindow = 300 * time.Millisecond

// Orchestrator coordinates one request form session from first field
// edit to submission. Construct one per form instance and Dispose it
// when the form closes; a disposed instance drops all late lookup
// results.
type Orchestrator struct {
	lookup      backend.Lookup
	submitter   backend.Submitter
	blockSource backend.BlockSource
	typeSource  backend.RequestTypeSource

	resolver      *resolve.Resolver
	validator     *payload.Validator
	logger        *zap.Logger
	metrics       Metrics
	clock         func() time.Time
	location      *time.Location
	window        time.Duration
	holdShelfTime string

	defaultFulfillment entity.FulfillmentPreference
	initErr            error

	mu         sync.Mutex
	disposed   bool
	submitting bool

	mode     entity.FormMode
	existing *entity.Request
	form     entity.FormState

	item     *entity.Item
	itemCtx  resolve.ItemContext
	user     *entity.User
	proxy    *entity.User
	instance *entity.Instance

	manualBlocks    []entity.ManualBlock
	automatedBlocks []entity.AutomatedBlock
	overridden      bool

	identity     entity.RequesterIdentity
	block        entity.BlockState
	allowedTypes []entity.RequestType

	states     map[resolve.Kind]EntityState
	debouncers map[resolve.Kind]*debounce.Debouncer
}

// New constructs an orchestrator around the backend collaborators.
// Options override individual collaborators and tuning; missing pieces
// get working defaults so a single constructor call suffices.
func New(b backend.Backend, options ...Option) *Orchestrator {
	o := &Orchestrator{
		logger:             zap.NewNop(),
		metrics:            nopMetrics{},
		clock:              time.Now,
		location:           time.UTC,
		window:             defaultDebounceWindow,
		defaultFulfillment: entity.FulfillHoldShelf,
		mode:               entity.ModeCreate,
		states:             make(map[resolve.Kind]EntityState),
		debouncers:         make(map[resolve.Kind]*debounce.Debouncer),
	}
	if b != nil {
		o.lookup = b
		o.submitter = b
		o.blockSource = b
		o.typeSource = b
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(o)
	}
	if o.lookup == nil {
		o.initErr = fmt.Errorf("%w: backend lookup collaborator is required", ErrValidationIncomplete)
	}
	o.resolver = resolve.New(o.lookup, resolve.WithLogger(o.logger))

	validator, err := payload.NewValidator()
	if err != nil {
		// Embedded schema failures are build defects; submissions still
		// work, just without the local schema gate.
		o.logger.Warn("payload validator unavailable", zap.Error(err))
	}
	o.validator = validator

	o.form.Fulfillment = o.defaultFulfillment
	return o
}

// Begin resets the session for a fresh create-mode form.
func (o *Orchestrator) Begin() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.resetLocked(entity.ModeCreate, nil)
}

// BeginEdit seeds the session from a persisted record. The request level
// is pinned to the record's level for the lifetime of the session.
func (o *Orchestrator) BeginEdit(rec entity.Request) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.resetLocked(entity.ModeEdit, &rec)
}

// BeginDuplicate seeds the session from a persisted record but submits
// as a new request. Identifiers copied from the source skip existence
// validators until the operator edits them; a copied record id takes
// precedence over the copied barcode.
func (o *Orchestrator) BeginDuplicate(rec entity.Request) {
	o.mu.Lock()
	defer o.mu.Unlock()
	seed := rec
	seed.ID = ""
	o.resetLocked(entity.ModeDuplicate, &seed)
}

func (o *Orchestrator) resetLocked(mode entity.FormMode, rec *entity.Request) {
	o.mode = mode
	o.existing = rec
	o.item = nil
	o.itemCtx = resolve.ItemContext{}
	o.user = nil
	o.proxy = nil
	o.instance = nil
	o.manualBlocks = nil
	o.automatedBlocks = nil
	o.overridden = false
	o.allowedTypes = nil
	o.submitting = false
	o.states = make(map[resolve.Kind]EntityState)

	if rec != nil {
		o.form = entity.FormFromRequest(*rec)
		if o.form.Fulfillment == "" {
			o.form.Fulfillment = o.defaultFulfillment
		}
	} else {
		o.form = entity.FormState{Fulfillment: o.defaultFulfillment}
	}
	o.recomputeLocked()
}

// Hydrate resolves the identifiers seeded by BeginEdit or BeginDuplicate
// so the form opens with canonical records instead of raw copied ids.
func (o *Orchestrator) Hydrate(ctx context.Context) error {
	o.mu.Lock()
	if o.disposed {
		o.mu.Unlock()
		return ErrDisposed
	}
	hasRequester := o.form.CopiedRequesterID != "" || o.form.RequesterBarcode != ""
	hasItem := o.form.CopiedItemID != "" || o.form.ItemBarcode != ""
	hasInstance := o.form.CopiedInstanceID != "" || o.form.InstanceHRID != ""
	o.mu.Unlock()

	var firstErr error
	if hasRequester {
		if err := o.ResolveRequesterNow(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if hasItem {
		if err := o.ResolveItemNow(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if hasInstance {
		if err := o.ResolveInstanceNow(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Dispose marks the form closed. Late lookup results and debounced
// dispatches are dropped from here on.
func (o *Orchestrator) Dispose() {
	o.mu.Lock()
	o.disposed = true
	pending := make([]*debounce.Debouncer, 0, len(o.debouncers))
	for _, d := range o.debouncers {
		pending = append(pending, d)
	}
	o.mu.Unlock()

	for _, d := range pending {
		d.Cancel()
	}
}

func (o *Orchestrator) debouncer(kind resolve.Kind) *debounce.Debouncer {
	o.mu.Lock()
	defer o.mu.Unlock()
	d, ok := o.debouncers[kind]
	if !ok {
		d = debounce.New(o.window)
		o.debouncers[kind] = d
	}
	return d
}

// EditItemBarcode records a keystroke-level change to the item barcode
// field and schedules a debounced resolution. Editing clears any item id
// copied in duplicate mode, re-arming the existence validator.
func (o *Orchestrator) EditItemBarcode(value string) {
	o.mu.Lock()
	if o.disposed {
		o.mu.Unlock()
		return
	}
	o.form.ItemBarcode = entity.NormalizeBarcode(value)
	o.form.CopiedItemID = ""
	o.bumpRefreshLocked("itemBarcode")
	o.states[resolve.KindItem] = EntityState{Status: StatusResolving}
	o.mu.Unlock()

	o.debouncer(resolve.KindItem).Trigger(func() {
		if err := o.ResolveItemNow(context.Background()); err != nil {
			o.logger.Debug("debounced item resolution", zap.Error(err))
		}
	})
}

// EnterItemBarcode handles the explicit Enter action: any pending
// debounced dispatch is cancelled and the lookup runs immediately.
func (o *Orchestrator) EnterItemBarcode(ctx context.Context) error {
	var err error
	o.debouncer(resolve.KindItem).Flush(func() {
		err = o.ResolveItemNow(ctx)
	})
	return err
}

// EditRequesterBarcode mirrors EditItemBarcode for the requester field.
func (o *Orchestrator) EditRequesterBarcode(value string) {
	o.mu.Lock()
	if o.disposed {
		o.mu.Unlock()
		return
	}
	o.form.RequesterBarcode = entity.NormalizeBarcode(value)
	o.form.CopiedRequesterID = ""
	o.bumpRefreshLocked("requesterBarcode")
	o.states[resolve.KindUser] = EntityState{Status: StatusResolving}
	o.mu.Unlock()

	o.debouncer(resolve.KindUser).Trigger(func() {
		if err := o.ResolveRequesterNow(context.Background()); err != nil {
			o.logger.Debug("debounced requester resolution", zap.Error(err))
		}
	})
}

// EnterRequesterBarcode mirrors EnterItemBarcode for the requester.
func (o *Orchestrator) EnterRequesterBarcode(ctx context.Context) error {
	var err error
	o.debouncer(resolve.KindUser).Flush(func() {
		err = o.ResolveRequesterNow(ctx)
	})
	return err
}

// EditInstanceHRID mirrors EditItemBarcode for the instance field.
func (o *Orchestrator) EditInstanceHRID(value string) {
	o.mu.Lock()
	if o.disposed {
		o.mu.Unlock()
		return
	}
	o.form.InstanceHRID = entity.NormalizeBarcode(value)
	o.form.CopiedInstanceID = ""
	o.bumpRefreshLocked("instanceHrid")
	o.states[resolve.KindInstance] = EntityState{Status: StatusResolving}
	o.mu.Unlock()

	o.debouncer(resolve.KindInstance).Trigger(func() {
		if err := o.ResolveInstanceNow(context.Background()); err != nil {
			o.logger.Debug("debounced instance resolution", zap.Error(err))
		}
	})
}

// EnterInstanceHRID mirrors EnterItemBarcode for the instance.
func (o *Orchestrator) EnterInstanceHRID(ctx context.Context) error {
	var err error
	o.debouncer(resolve.KindInstance).Flush(func() {
		err = o.ResolveInstanceNow(ctx)
	})
	return err
}

func (o *Orchestrator) bumpRefreshLocked(field string) {
	if o.form.RefreshSeq == nil {
		o.form.RefreshSeq = make(map[string]int)
	}
	o.form.RefreshSeq[field]++
}

// ResolveItemNow dispatches the item lookup for the current field state
// and applies the result if it is still the latest. Copied ids from
// duplicate mode take precedence over the barcode.
func (o *Orchestrator) ResolveItemNow(ctx context.Context) error {
	o.mu.Lock()
	if o.disposed {
		o.mu.Unlock()
		return ErrDisposed
	}
	if o.initErr != nil {
		o.mu.Unlock()
		return o.initErr
	}
	ident := identifierFor(o.form.CopiedItemID, entity.Barcode(o.form.ItemBarcode))
	if ident.Zero() {
		o.item = nil
		o.itemCtx = resolve.ItemContext{}
		o.states[resolve.KindItem] = EntityState{Status: StatusIdle}
		o.mu.Unlock()
		return nil
	}
	o.states[resolve.KindItem] = EntityState{Status: StatusResolving}
	o.mu.Unlock()

	o.metrics.LookupDispatched(string(resolve.KindItem))
	res, err := o.resolver.ResolveItem(ctx, ident, resolve.Options{})
	return o.applyItem(ctx, ident, res, err)
}

func (o *Orchestrator) applyItem(ctx context.Context, ident entity.Identifier, res resolve.ItemResolution, err error) error {
	o.mu.Lock()
	if o.disposed {
		o.mu.Unlock()
		return nil
	}
	if !o.resolver.Current(resolve.KindItem, res.Token) {
		o.metrics.StaleDropped(string(resolve.KindItem))
		o.logger.Debug("stale item response dropped", zap.Uint64("token", uint64(res.Token)))
		o.mu.Unlock()
		return nil
	}
	if err != nil {
		// Prior resolved item, if any, stays untouched.
		o.metrics.LookupFailed(string(resolve.KindItem))
		o.states[resolve.KindItem] = EntityState{Status: StatusFailed, Err: err}
		o.mu.Unlock()
		return err
	}
	if !res.Found() {
		o.item = nil
		o.itemCtx = resolve.ItemContext{}
		notFound := fmt.Errorf("%w: item %s %q", ErrNotFound, ident.Kind, ident.Value)
		o.states[resolve.KindItem] = EntityState{Status: StatusNotFound, Err: notFound}
		o.mu.Unlock()
		return notFound
	}
	item := *res.Item
	o.item = &item
	o.states[resolve.KindItem] = EntityState{Status: StatusResolved}
	o.mu.Unlock()

	// Dependent chain: failures here never invalidate the item.
	itemCtx := o.resolver.LoadItemContext(ctx, item)
	o.mu.Lock()
	if !o.disposed && o.resolver.Current(resolve.KindItem, res.Token) {
		o.itemCtx = itemCtx
		o.form.OpenRequestCount = itemCtx.OpenRequests
	}
	o.mu.Unlock()

	o.refreshAllowedTypes(ctx)
	return nil
}

// ResolveRequesterNow dispatches the requester lookup. A successful
// resolution resets any granted override and re-evaluates the block
// state for the new requester.
func (o *Orchestrator) ResolveRequesterNow(ctx context.Context) error {
	o.mu.Lock()
	if o.disposed {
		o.mu.Unlock()
		return ErrDisposed
	}
	if o.initErr != nil {
		o.mu.Unlock()
		return o.initErr
	}
	ident := identifierFor(o.form.CopiedRequesterID, entity.Barcode(o.form.RequesterBarcode))
	if ident.Zero() {
		o.user = nil
		o.states[resolve.KindUser] = EntityState{Status: StatusIdle}
		o.recomputeLocked()
		o.mu.Unlock()
		return nil
	}
	o.states[resolve.KindUser] = EntityState{Status: StatusResolving}
	o.mu.Unlock()

	o.metrics.LookupDispatched(string(resolve.KindUser))
	res, err := o.resolver.ResolveUser(ctx, ident, resolve.Options{})
	return o.applyRequester(ctx, ident, res, err)
}

func (o *Orchestrator) applyRequester(ctx context.Context, ident entity.Identifier, res resolve.UserResolution, err error) error {
	o.mu.Lock()
	if o.disposed {
		o.mu.Unlock()
		return nil
	}
	if !o.resolver.Current(resolve.KindUser, res.Token) {
		o.metrics.StaleDropped(string(resolve.KindUser))
		o.logger.Debug("stale requester response dropped", zap.Uint64("token", uint64(res.Token)))
		o.mu.Unlock()
		return nil
	}
	if err != nil {
		o.metrics.LookupFailed(string(resolve.KindUser))
		o.states[resolve.KindUser] = EntityState{Status: StatusFailed, Err: err}
		o.mu.Unlock()
		return err
	}
	if !res.Found() {
		o.user = nil
		notFound := fmt.Errorf("%w: requester %s %q", ErrNotFound, ident.Kind, ident.Value)
		o.states[resolve.KindUser] = EntityState{Status: StatusNotFound, Err: notFound}
		o.recomputeLocked()
		o.mu.Unlock()
		return notFound
	}
	user := *res.User
	o.user = &user
	// An override never carries across a requester change.
	o.overridden = false
	o.states[resolve.KindUser] = EntityState{Status: StatusResolved}
	o.recomputeLocked()
	o.mu.Unlock()

	o.logger.Info("requester resolved", zap.String("userId", user.ID))
	if err := o.RefreshBlocks(ctx); err != nil {
		o.logger.Warn("block refresh after requester change", zap.Error(err))
	}
	o.refreshAllowedTypes(ctx)
	return nil
}

// ResolveInstanceNow dispatches the instance lookup for title-level
// requests.
func (o *Orchestrator) ResolveInstanceNow(ctx context.Context) error {
	o.mu.Lock()
	if o.disposed {
		o.mu.Unlock()
		return ErrDisposed
	}
	if o.initErr != nil {
		o.mu.Unlock()
		return o.initErr
	}
	ident := identifierFor(o.form.CopiedInstanceID, entity.HRID(o.form.InstanceHRID))
	if ident.Zero() {
		o.instance = nil
		o.states[resolve.KindInstance] = EntityState{Status: StatusIdle}
		o.mu.Unlock()
		return nil
	}
	o.states[resolve.KindInstance] = EntityState{Status: StatusResolving}
	o.mu.Unlock()

	o.metrics.LookupDispatched(string(resolve.KindInstance))
	res, err := o.resolver.ResolveInstance(ctx, ident, resolve.Options{})
	return o.applyInstance(ctx, ident, res, err)
}

func (o *Orchestrator) applyInstance(ctx context.Context, ident entity.Identifier, res resolve.InstanceResolution, err error) error {
	o.mu.Lock()
	if o.disposed {
		o.mu.Unlock()
		return nil
	}
	if !o.resolver.Current(resolve.KindInstance, res.Token) {
		o.metrics.StaleDropped(string(resolve.KindInstance))
		o.mu.Unlock()
		return nil
	}
	if err != nil {
		o.metrics.LookupFailed(string(resolve.KindInstance))
		o.states[resolve.KindInstance] = EntityState{Status: StatusFailed, Err: err}
		o.mu.Unlock()
		return err
	}
	if !res.Found() {
		o.instance = nil
		notFound := fmt.Errorf("%w: instance %s %q", ErrNotFound, ident.Kind, ident.Value)
		o.states[resolve.KindInstance] = EntityState{Status: StatusNotFound, Err: notFound}
		o.mu.Unlock()
		return notFound
	}
	instance := *res.Instance
	o.instance = &instance
	o.states[resolve.KindInstance] = EntityState{Status: StatusResolved}
	o.mu.Unlock()

	o.refreshAllowedTypes(ctx)
	return nil
}

// identifierFor prefers a copied record id over raw field input; ids
// from a duplicated or edited record are the stronger claim.
func identifierFor(copiedID string, fallback entity.Identifier) entity.Identifier {
	if copiedID != "" {
		return entity.ID(copiedID)
	}
	return fallback
}
