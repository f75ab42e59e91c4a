// Package testsupport provides a scripted in-memory backend for tests
// and the demo CLI: record seeding, per-value gates for reproducing
// out-of-order lookup completion, and failure injection per collaborator
// method.
package testsupport

import (
	"context"
	"sync"

	"github.com/libstaff/reqflow/pkg/backend"
	"github.com/libstaff/reqflow/pkg/entity"
)

// FakeBackend implements backend.Backend against in-memory records.
// The zero value is usable; seed the exported fields before use.
type FakeBackend struct {
	mu sync.Mutex

	Items     []entity.Item
	Users     []entity.User
	Instances []entity.Instance

	// Keyed by item id.
	Loans        map[string]*entity.Loan
	OpenRequests map[string]int
	// Keyed by holdings record id.
	Holdings map[string]entity.Holding
	// Keyed by user id.
	Manual    map[string][]entity.ManualBlock
	Automated map[string][]entity.AutomatedBlock

	Allowed []entity.RequestType

	// Failure injection, one per collaborator method.
	ItemsErr     error
	UsersErr     error
	InstancesErr error
	LoanErr      error
	RequestsErr  error
	HoldingErr   error
	ManualErr    error
	AutomatedErr error
	AllowedErr   error
	SubmitErr    error

	// ItemGates blocks FindItems for a given identifier value until the
	// gate channel is closed, to script out-of-order completion. Calls
	// receives the identifier value as soon as FindItems is entered, so
	// tests can sequence dispatches deterministically.
	ItemGates map[string]chan struct{}
	Calls     chan string

	// Submitted collects every payload handed to Submit, in order.
	Submitted []entity.RequestPayload
}

var _ backend.Backend = (*FakeBackend)(nil)

// FindItems matches items by barcode or id per the identifier kind.
func (f *FakeBackend) FindItems(ctx context.Context, id entity.Identifier) ([]entity.Item, error) {
	f.mu.Lock()
	gate := f.ItemGates[id.Value]
	calls := f.Calls
	items := append([]entity.Item(nil), f.Items...)
	err := f.ItemsErr
	f.mu.Unlock()

	if calls != nil {
		calls <- id.Value
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	var out []entity.Item
	for _, item := range items {
		if matchItem(item, id) {
			out = append(out, item)
		}
	}
	return out, nil
}

// FindUsers matches users by barcode or id.
func (f *FakeBackend) FindUsers(_ context.Context, id entity.Identifier) ([]entity.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.UsersErr != nil {
		return nil, f.UsersErr
	}
	var out []entity.User
	for _, user := range f.Users {
		if matchUser(user, id) {
			out = append(out, user)
		}
	}
	return out, nil
}

// FindInstances matches instances by hrid or id.
func (f *FakeBackend) FindInstances(_ context.Context, id entity.Identifier) ([]entity.Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.InstancesErr != nil {
		return nil, f.InstancesErr
	}
	var out []entity.Instance
	for _, instance := range f.Instances {
		if matchInstance(instance, id) {
			out = append(out, instance)
		}
	}
	return out, nil
}

// FindOpenLoan returns the seeded loan for an item, if any.
func (f *FakeBackend) FindOpenLoan(_ context.Context, itemID string) (*entity.Loan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.LoanErr != nil {
		return nil, f.LoanErr
	}
	if loan, ok := f.Loans[itemID]; ok && loan != nil {
		loanCopy := *loan
		return &loanCopy, nil
	}
	return nil, nil
}

// CountOpenRequests returns the seeded queue length for an item.
func (f *FakeBackend) CountOpenRequests(_ context.Context, itemID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RequestsErr != nil {
		return 0, f.RequestsErr
	}
	return f.OpenRequests[itemID], nil
}

// FindHolding returns the seeded holdings record.
func (f *FakeBackend) FindHolding(_ context.Context, holdingsRecordID string) (*entity.Holding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.HoldingErr != nil {
		return nil, f.HoldingErr
	}
	if holding, ok := f.Holdings[holdingsRecordID]; ok {
		return &holding, nil
	}
	return nil, nil
}

// ManualBlocks returns the seeded manual blocks for a user.
func (f *FakeBackend) ManualBlocks(_ context.Context, userID string) ([]entity.ManualBlock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ManualErr != nil {
		return nil, f.ManualErr
	}
	return append([]entity.ManualBlock(nil), f.Manual[userID]...), nil
}

// AutomatedBlocks returns the seeded automated blocks for a user.
func (f *FakeBackend) AutomatedBlocks(_ context.Context, userID string) ([]entity.AutomatedBlock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.AutomatedErr != nil {
		return nil, f.AutomatedErr
	}
	return append([]entity.AutomatedBlock(nil), f.Automated[userID]...), nil
}

// FetchAllowed returns the seeded allowed request types.
func (f *FakeBackend) FetchAllowed(_ context.Context, _ backend.AllowedQuery) ([]entity.RequestType, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.AllowedErr != nil {
		return nil, f.AllowedErr
	}
	return append([]entity.RequestType(nil), f.Allowed...), nil
}

// Submit records the payload and acknowledges it, or returns the
// injected error.
func (f *FakeBackend) Submit(_ context.Context, p entity.RequestPayload) (backend.Ack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SubmitErr != nil {
		return backend.Ack{}, f.SubmitErr
	}
	f.Submitted = append(f.Submitted, p)
	id := p.ID
	if id == "" {
		id = entity.NewRequestID()
	}
	return backend.Ack{ID: id, Status: "Open - Not yet filled", Position: len(f.Submitted)}, nil
}

// LastSubmitted returns the most recent payload, or false when none.
func (f *FakeBackend) LastSubmitted() (entity.RequestPayload, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Submitted) == 0 {
		return entity.RequestPayload{}, false
	}
	return f.Submitted[len(f.Submitted)-1], true
}

func matchItem(item entity.Item, id entity.Identifier) bool {
	switch id.Kind {
	case entity.IdentifierBarcode:
		return item.Barcode == id.Value
	case entity.IdentifierID:
		return item.ID == id.Value
	default:
		return false
	}
}

func matchUser(user entity.User, id entity.Identifier) bool {
	switch id.Kind {
	case entity.IdentifierBarcode:
		return user.Barcode == id.Value
	case entity.IdentifierID:
		return user.ID == id.Value
	default:
		return false
	}
}

func matchInstance(instance entity.Instance, id entity.Identifier) bool {
	switch id.Kind {
	case entity.IdentifierHRID:
		return instance.HRID == id.Value
	case entity.IdentifierID:
		return instance.ID == id.Value
	default:
		return false
	}
}
