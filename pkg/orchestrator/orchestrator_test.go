package orchestrator_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/libstaff/reqflow/pkg/backend"
	"github.com/libstaff/reqflow/pkg/entity"
	"github.com/libstaff/reqflow/pkg/orchestrator"
	"github.com/libstaff/reqflow/pkg/resolve"
	"github.com/libstaff/reqflow/pkg/testsupport"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func seededBackend() *testsupport.FakeBackend {
	return &testsupport.FakeBackend{
		Items: []entity.Item{
			{ID: "I1", Barcode: "b1", Title: "First copy", HoldingsRecordID: "H1"},
			{ID: "I2", Barcode: "b2", Title: "Second copy", HoldingsRecordID: "H2"},
		},
		Users: []entity.User{
			{ID: "U1", Barcode: "u1", Active: true, LastName: "Reader"},
			{ID: "U2", Barcode: "u2", Active: true, LastName: "Sponsor"},
		},
		Instances: []entity.Instance{
			{ID: "IN1", HRID: "in0001", Title: "The Title"},
		},
		Holdings: map[string]entity.Holding{
			"H1": {ID: "H1", InstanceID: "IN1"},
			"H2": {ID: "H2", InstanceID: "IN1"},
		},
		OpenRequests: map[string]int{"I1": 2},
		Loans: map[string]*entity.Loan{
			"I1": {ID: "L1", ItemID: "I1", UserID: "U9", DueDate: testNow.Add(7 * 24 * time.Hour)},
		},
		Allowed: []entity.RequestType{entity.TypeHold, entity.TypeRecall},
	}
}

// newOrchestrator keeps the default debounce window: Edit* schedules a
// deferred dispatch and the Enter* flush in resolveAll cancels it and
// runs the lookup synchronously, so these tests never race on timers.
func newOrchestrator(fake *testsupport.FakeBackend) *orchestrator.Orchestrator {
	return orchestrator.New(fake, orchestrator.WithClock(fixedClock))
}

// newImmediate disables debouncing so every Edit* dispatches its lookup
// at once, for the tests that script in-flight completion order.
func newImmediate(fake *testsupport.FakeBackend) *orchestrator.Orchestrator {
	return orchestrator.New(fake,
		orchestrator.WithClock(fixedClock),
		orchestrator.WithDebounce(0),
	)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func resolveAll(t *testing.T, o *orchestrator.Orchestrator, requester, item string) {
	t.Helper()
	ctx := context.Background()
	if requester != "" {
		o.EditRequesterBarcode(requester)
		if err := o.EnterRequesterBarcode(ctx); err != nil {
			t.Fatalf("resolve requester %q: %v", requester, err)
		}
	}
	if item != "" {
		o.EditItemBarcode(item)
		if err := o.EnterItemBarcode(ctx); err != nil {
			t.Fatalf("resolve item %q: %v", item, err)
		}
	}
}

func TestResolveItem_PopulatesDependentContext(t *testing.T) {
	fake := seededBackend()
	o := newOrchestrator(fake)

	resolveAll(t, o, "", "b1")

	view := o.Snapshot()
	if view.Item == nil || view.Item.ID != "I1" {
		t.Fatalf("item = %+v, want I1", view.Item)
	}
	if view.StateOf(resolve.KindItem).Status != orchestrator.StatusResolved {
		t.Fatalf("item status = %v", view.StateOf(resolve.KindItem))
	}
	if view.Loan == nil || view.Loan.ID != "L1" {
		t.Fatalf("loan = %+v, want L1", view.Loan)
	}
	if view.Form.OpenRequestCount != 2 {
		t.Fatalf("open request count = %d, want 2", view.Form.OpenRequestCount)
	}
}

func TestResolveItem_NotFoundIsFieldLevel(t *testing.T) {
	fake := seededBackend()
	o := newOrchestrator(fake)

	o.EditItemBarcode("missing")
	err := o.EnterItemBarcode(context.Background())
	if !errors.Is(err, orchestrator.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	view := o.Snapshot()
	if view.StateOf(resolve.KindItem).Status != orchestrator.StatusNotFound {
		t.Fatalf("item status = %v", view.StateOf(resolve.KindItem))
	}

	// Other kinds stay editable and untouched.
	if view.StateOf(resolve.KindUser).Status != orchestrator.StatusIdle {
		t.Fatalf("user status = %v, want idle", view.StateOf(resolve.KindUser))
	}
}

func TestResolveItem_FailurePreservesPriorItem(t *testing.T) {
	fake := seededBackend()
	o := newOrchestrator(fake)

	resolveAll(t, o, "", "b1")

	fake.ItemsErr = errors.New("gateway exploded")
	o.EditItemBarcode("b2")
	err := o.EnterItemBarcode(context.Background())
	if !errors.Is(err, orchestrator.ErrResolutionFailed) {
		t.Fatalf("expected ErrResolutionFailed, got %v", err)
	}

	view := o.Snapshot()
	if view.StateOf(resolve.KindItem).Status != orchestrator.StatusFailed {
		t.Fatalf("item status = %v, want failed", view.StateOf(resolve.KindItem))
	}
	if view.Item == nil || view.Item.ID != "I1" {
		t.Fatalf("prior item lost on failure: %+v", view.Item)
	}
}

func TestStaleItemResponseNeverOverwritesNewer(t *testing.T) {
	fake := seededBackend()
	gate1 := make(chan struct{})
	gate2 := make(chan struct{})
	fake.ItemGates = map[string]chan struct{}{"b1": gate1, "b2": gate2}
	fake.Calls = make(chan string, 4)

	o := newImmediate(fake)

	// First edit dispatches the b1 lookup and parks it at the gate.
	o.EditItemBarcode("b1")
	if got := <-fake.Calls; got != "b1" {
		t.Fatalf("first dispatch = %q, want b1", got)
	}

	// Second edit supersedes it while b1 is still in flight.
	o.EditItemBarcode("b2")
	if got := <-fake.Calls; got != "b2" {
		t.Fatalf("second dispatch = %q, want b2", got)
	}

	// b2 completes first and is applied.
	close(gate2)
	waitFor(t, "b2 resolution", func() bool {
		view := o.Snapshot()
		return view.Item != nil && view.Item.ID == "I2"
	})

	// b1's late response must be discarded.
	close(gate1)
	time.Sleep(50 * time.Millisecond)

	view := o.Snapshot()
	if view.Item == nil || view.Item.ID != "I2" {
		t.Fatalf("stale response overwrote newer result: %+v", view.Item)
	}
	if view.StateOf(resolve.KindItem).Status != orchestrator.StatusResolved {
		t.Fatalf("item status = %v", view.StateOf(resolve.KindItem))
	}
}

func TestDispose_DropsLateResults(t *testing.T) {
	fake := seededBackend()
	gate := make(chan struct{})
	fake.ItemGates = map[string]chan struct{}{"b1": gate}
	fake.Calls = make(chan string, 2)

	o := newImmediate(fake)
	o.EditItemBarcode("b1")
	<-fake.Calls

	o.Dispose()
	close(gate)
	time.Sleep(50 * time.Millisecond)

	if view := o.Snapshot(); view.Item != nil {
		t.Fatalf("late result applied to disposed form: %+v", view.Item)
	}
}

func TestRequesterResolution_EvaluatesBlocks(t *testing.T) {
	fake := seededBackend()
	future := testNow.Add(24 * time.Hour)
	fake.Manual = map[string][]entity.ManualBlock{
		"U1": {{ID: "mb1", UserID: "U1", Requests: true, ExpirationDate: &future}},
	}

	o := newOrchestrator(fake)
	resolveAll(t, o, "u1", "")

	view := o.Snapshot()
	if view.Requester == nil || view.Requester.ID != "U1" {
		t.Fatalf("requester = %+v", view.Requester)
	}
	if !view.Block.Blocked {
		t.Fatalf("expected blocked state: %+v", view.Block)
	}
	if view.Block.ActiveManualBlock == nil || view.Block.ActiveManualBlock.ID != "mb1" {
		t.Fatalf("active block = %+v", view.Block.ActiveManualBlock)
	}
}

func TestBlockedSubmission_OverrideThenSucceedWithMarker(t *testing.T) {
	fake := seededBackend()
	future := testNow.Add(24 * time.Hour)
	fake.Manual = map[string][]entity.ManualBlock{
		"U1": {{ID: "mb1", UserID: "U1", Requests: true, ExpirationDate: &future}},
	}

	o := newOrchestrator(fake)
	o.SetRequestType(entity.TypeHold)
	resolveAll(t, o, "u1", "b1")

	_, err := o.Submit(context.Background())
	if !errors.Is(err, orchestrator.ErrSubmissionBlocked) {
		t.Fatalf("expected ErrSubmissionBlocked, got %v", err)
	}

	o.SetOverride(true)
	if view := o.Snapshot(); view.Block.Blocked {
		t.Fatalf("override did not lift block: %+v", view.Block)
	}

	ack, err := o.Submit(context.Background())
	if err != nil {
		t.Fatalf("submit after override: %v", err)
	}
	if ack.ID == "" {
		t.Fatal("expected ack id")
	}

	submitted, ok := fake.LastSubmitted()
	if !ok {
		t.Fatal("nothing submitted")
	}
	if submitted.Override == nil || submitted.Override.Token == "" {
		t.Fatalf("expected override marker, got %+v", submitted.Override)
	}
	if submitted.Override.PatronBlock == nil || submitted.Override.PatronBlock.ManualBlockID != "mb1" {
		t.Fatalf("override detail = %+v", submitted.Override.PatronBlock)
	}
}

func TestRequesterChange_ResetsOverride(t *testing.T) {
	fake := seededBackend()
	future := testNow.Add(24 * time.Hour)
	fake.Manual = map[string][]entity.ManualBlock{
		"U1": {{ID: "mb1", UserID: "U1", Requests: true, ExpirationDate: &future}},
	}

	o := newOrchestrator(fake)
	resolveAll(t, o, "u1", "")
	o.SetOverride(true)

	resolveAll(t, o, "u2", "")
	view := o.Snapshot()
	if view.Block.Overridden {
		t.Fatal("override carried across a requester change")
	}

	// Back to the blocked patron: the override must not resurface.
	resolveAll(t, o, "u1", "")
	view = o.Snapshot()
	if !view.Block.Blocked || view.Block.Overridden {
		t.Fatalf("expected fresh block for returning requester: %+v", view.Block)
	}
}

func TestSubmit_IncompleteWithoutRequiredEntities(t *testing.T) {
	fake := seededBackend()
	o := newOrchestrator(fake)
	o.SetRequestType(entity.TypeHold)

	// No requester, no item.
	if _, err := o.Submit(context.Background()); !errors.Is(err, orchestrator.ErrValidationIncomplete) {
		t.Fatalf("expected ErrValidationIncomplete, got %v", err)
	}

	// Requester only; item still unresolved.
	resolveAll(t, o, "u1", "")
	if _, err := o.Submit(context.Background()); !errors.Is(err, orchestrator.ErrValidationIncomplete) {
		t.Fatalf("expected ErrValidationIncomplete, got %v", err)
	}
	if len(fake.Submitted) != 0 {
		t.Fatalf("incomplete submission reached the backend: %d", len(fake.Submitted))
	}
}

func TestSubmit_DisallowedRequestType(t *testing.T) {
	fake := seededBackend()
	fake.Allowed = []entity.RequestType{entity.TypePage}

	o := newOrchestrator(fake)
	o.SetRequestType(entity.TypeHold)
	resolveAll(t, o, "u1", "b1")

	if _, err := o.Submit(context.Background()); !errors.Is(err, orchestrator.ErrValidationIncomplete) {
		t.Fatalf("expected ErrValidationIncomplete for disallowed type, got %v", err)
	}
}

func TestSubmit_ItemLevelPayloadShape(t *testing.T) {
	fake := seededBackend()
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}

	o := orchestrator.New(fake,
		orchestrator.WithClock(fixedClock),
		orchestrator.WithLocation(loc),
	)
	o.SetRequestType(entity.TypeRecall)
	o.SetPickupServicePoint("SP1")
	o.SetHoldShelfExpiration("2024-01-01", "14:30:00")
	resolveAll(t, o, "u1", "b1")

	if _, err := o.Submit(context.Background()); err != nil {
		t.Fatalf("submit: %v", err)
	}

	submitted, _ := fake.LastSubmitted()
	if submitted.Level != entity.LevelItem || submitted.ItemID != "I1" || submitted.HoldingsRecordID != "H1" {
		t.Fatalf("payload targeting wrong: %+v", submitted)
	}
	if submitted.InstanceID != "IN1" {
		t.Fatalf("instance id from holdings chain = %q, want IN1", submitted.InstanceID)
	}
	if submitted.HoldShelfExpirationDate != "2024-01-01T19:30:00Z" {
		t.Fatalf("hold shelf instant = %q", submitted.HoldShelfExpirationDate)
	}
	if submitted.RequestExpirationDate != "" {
		t.Fatalf("empty request expiration submitted as %q", submitted.RequestExpirationDate)
	}
}

func TestSubmit_TitleLevel(t *testing.T) {
	fake := seededBackend()
	o := newOrchestrator(fake)
	o.SetRequestType(entity.TypeHold)
	o.SetTitleLevel(true)
	resolveAll(t, o, "u1", "")
	o.EditInstanceHRID("in0001")
	if err := o.EnterInstanceHRID(context.Background()); err != nil {
		t.Fatalf("resolve instance: %v", err)
	}

	if _, err := o.Submit(context.Background()); err != nil {
		t.Fatalf("submit: %v", err)
	}

	submitted, _ := fake.LastSubmitted()
	if submitted.Level != entity.LevelTitle || submitted.InstanceID != "IN1" {
		t.Fatalf("payload = %+v", submitted)
	}
	if submitted.ItemID != "" || submitted.HoldingsRecordID != "" {
		t.Fatalf("title level payload carries item fields: %+v", submitted)
	}
}

func TestSubmit_ServerRejectionKeepsFormEditable(t *testing.T) {
	fake := seededBackend()
	fake.SubmitErr = &backend.SubmitError{
		Message:     "request already exists",
		FieldErrors: map[string][]string{"itemId": {"already requested by this patron"}},
	}

	o := newOrchestrator(fake)
	o.SetRequestType(entity.TypeHold)
	resolveAll(t, o, "u1", "b1")

	_, err := o.Submit(context.Background())
	if !errors.Is(err, orchestrator.ErrSubmissionRejected) {
		t.Fatalf("expected ErrSubmissionRejected, got %v", err)
	}
	fields := orchestrator.RejectionFields(err)
	if len(fields["itemId"]) != 1 {
		t.Fatalf("field errors = %+v", fields)
	}

	// Resolved state survives the rejection.
	view := o.Snapshot()
	if view.Item == nil || view.Requester == nil {
		t.Fatalf("rejection cleared local state: %+v", view)
	}
	if view.Submitting {
		t.Fatal("submitting flag stuck")
	}
}

func TestProxySelection_ChangesRequesterOfRecord(t *testing.T) {
	fake := seededBackend()
	future := testNow.Add(24 * time.Hour)
	// The sponsor, not the acting patron, carries the block.
	fake.Manual = map[string][]entity.ManualBlock{
		"U2": {{ID: "mb2", UserID: "U2", Requests: true, ExpirationDate: &future}},
	}

	o := newOrchestrator(fake)
	resolveAll(t, o, "u1", "")

	if view := o.Snapshot(); view.Block.Blocked {
		t.Fatalf("acting patron should be clear: %+v", view.Block)
	}

	sponsor := entity.User{ID: "U2", Barcode: "u2", LastName: "Sponsor"}
	if err := o.SelectProxy(context.Background(), &sponsor); err != nil {
		t.Fatalf("select proxy: %v", err)
	}

	view := o.Snapshot()
	if view.Identity.RequesterID != "U2" || view.Identity.ProxyUserID != "U1" {
		t.Fatalf("identity = %+v", view.Identity)
	}
	if !view.Block.Blocked {
		t.Fatalf("sponsor's block not applied: %+v", view.Block)
	}
}

func TestBeginDuplicate_CopiedIDTakesPrecedenceOverBarcode(t *testing.T) {
	fake := seededBackend()
	o := newOrchestrator(fake)
	defer o.Dispose()

	// The record's barcode is stale; its item id still resolves.
	o.BeginDuplicate(entity.Request{
		ID:          "R1",
		Level:       entity.LevelItem,
		Type:        entity.TypeHold,
		RequesterID: "U1",
		ItemID:      "I2",
		ItemBarcode: "retired-barcode",
	})
	if err := o.Hydrate(context.Background()); err != nil {
		t.Fatalf("hydrate: %v", err)
	}

	view := o.Snapshot()
	if view.Item == nil || view.Item.ID != "I2" {
		t.Fatalf("item = %+v, want I2 via copied id", view.Item)
	}

	// The copied barcode skips the existence validator until edited.
	if err := o.ValidateItemBarcode(context.Background(), "retired-barcode"); err != nil {
		t.Fatalf("copied barcode must skip validation: %v", err)
	}

	// Editing the field clears the copied id and re-arms the check.
	o.EditItemBarcode("retired-barcode")
	if err := o.ValidateItemBarcode(context.Background(), "retired-barcode"); !errors.Is(err, orchestrator.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after edit, got %v", err)
	}
}

func TestBeginEdit_PinsRequestLevel(t *testing.T) {
	fake := seededBackend()
	o := newOrchestrator(fake)

	o.BeginEdit(entity.Request{
		ID:          "R1",
		Level:       entity.LevelItem,
		Type:        entity.TypeHold,
		RequesterID: "U1",
		ItemID:      "I1",
	})
	if err := o.Hydrate(context.Background()); err != nil {
		t.Fatalf("hydrate: %v", err)
	}

	o.SetTitleLevel(true) // ignored in edit mode
	if _, err := o.Submit(context.Background()); err != nil {
		t.Fatalf("submit: %v", err)
	}

	submitted, _ := fake.LastSubmitted()
	if submitted.Level != entity.LevelItem {
		t.Fatalf("level = %q, want pinned Item", submitted.Level)
	}
	if submitted.ID != "R1" {
		t.Fatalf("payload id = %q, want R1", submitted.ID)
	}
}

func TestSubmit_ConfiguredHoldShelfTime(t *testing.T) {
	fake := seededBackend()
	o := orchestrator.New(fake,
		orchestrator.WithClock(fixedClock),
		orchestrator.WithHoldShelfTime("17:00:00"),
	)
	o.SetRequestType(entity.TypeHold)
	o.SetHoldShelfExpiration("2024-01-01", "")
	resolveAll(t, o, "u1", "b1")

	if _, err := o.Submit(context.Background()); err != nil {
		t.Fatalf("submit: %v", err)
	}

	submitted, _ := fake.LastSubmitted()
	if submitted.HoldShelfExpirationDate != "2024-01-01T17:00:00Z" {
		t.Fatalf("hold shelf instant = %q, want 2024-01-01T17:00:00Z", submitted.HoldShelfExpirationDate)
	}
}

func TestNilBackend_ResolutionErrorsInsteadOfPanicking(t *testing.T) {
	o := orchestrator.New(nil)
	defer o.Dispose()

	o.EditItemBarcode("b1")
	if err := o.EnterItemBarcode(context.Background()); !errors.Is(err, orchestrator.ErrValidationIncomplete) {
		t.Fatalf("item resolution = %v, want ErrValidationIncomplete", err)
	}

	o.EditRequesterBarcode("u1")
	if err := o.EnterRequesterBarcode(context.Background()); !errors.Is(err, orchestrator.ErrValidationIncomplete) {
		t.Fatalf("requester resolution = %v, want ErrValidationIncomplete", err)
	}

	o.EditInstanceHRID("in0001")
	if err := o.EnterInstanceHRID(context.Background()); !errors.Is(err, orchestrator.ErrValidationIncomplete) {
		t.Fatalf("instance resolution = %v, want ErrValidationIncomplete", err)
	}

	if err := o.ValidateItemBarcode(context.Background(), "b1"); !errors.Is(err, orchestrator.ErrValidationIncomplete) {
		t.Fatalf("item validator = %v, want ErrValidationIncomplete", err)
	}
	if err := o.ValidateRequesterBarcode(context.Background(), "u1"); !errors.Is(err, orchestrator.ErrValidationIncomplete) {
		t.Fatalf("requester validator = %v, want ErrValidationIncomplete", err)
	}

	if _, err := o.Submit(context.Background()); !errors.Is(err, orchestrator.ErrValidationIncomplete) {
		t.Fatalf("submit = %v, want ErrValidationIncomplete", err)
	}
}

func TestValidateRequesterBarcode(t *testing.T) {
	fake := seededBackend()
	o := newOrchestrator(fake)

	if err := o.ValidateRequesterBarcode(context.Background(), "u1"); err != nil {
		t.Fatalf("existing barcode: %v", err)
	}
	if err := o.ValidateRequesterBarcode(context.Background(), "ghost"); !errors.Is(err, orchestrator.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := o.ValidateRequesterBarcode(context.Background(), "  "); err != nil {
		t.Fatalf("blank input should not error: %v", err)
	}
}
