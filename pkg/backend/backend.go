// Package backend declares the collaborator interfaces the orchestrator
// is wired with. The module never talks to the network itself; callers
// supply implementations backed by their platform client, and tests use
// the scripted fake in pkg/testsupport.
package backend

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/libstaff/reqflow/pkg/entity"
)

// Operation names the submit intent when querying allowed request types.
type Operation string

const (
	OperationCreate  Operation = "create"
	OperationReplace Operation = "replace"
)

// Lookup resolves identifiers to canonical records. Implementations
// return the full match set; zero matches is not an error. The resolver
// decides what multiple or missing matches mean.
type Lookup interface {
	// FindItems searches inventory items by the given identifier.
	FindItems(ctx context.Context, id entity.Identifier) ([]entity.Item, error)

	// FindUsers searches patron records by the given identifier.
	FindUsers(ctx context.Context, id entity.Identifier) ([]entity.User, error)

	// FindInstances searches bibliographic instances by the given
	// identifier.
	FindInstances(ctx context.Context, id entity.Identifier) ([]entity.Instance, error)

	// FindOpenLoan returns the open loan on an item, or nil when the
	// item is not checked out.
	FindOpenLoan(ctx context.Context, itemID string) (*entity.Loan, error)

	// CountOpenRequests returns how many open requests already target
	// the item.
	CountOpenRequests(ctx context.Context, itemID string) (int, error)

	// FindHolding fetches the holdings record that owns an item, used to
	// recover the instance id for item-level requests.
	FindHolding(ctx context.Context, holdingsRecordID string) (*entity.Holding, error)
}

// Ack is the backend's acknowledgement of a persisted request.
type Ack struct {
	ID       string
	Status   string
	Position int
}

// Submitter persists a shaped request payload.
type Submitter interface {
	Submit(ctx context.Context, p entity.RequestPayload) (Ack, error)
}

// BlockSource fetches the patron block inputs the evaluator consumes.
// Manual blocks are expected in the backend's most-recently-updated-first
// order; the evaluator preserves that order rather than re-sorting.
type BlockSource interface {
	ManualBlocks(ctx context.Context, userID string) ([]entity.ManualBlock, error)
	AutomatedBlocks(ctx context.Context, userID string) ([]entity.AutomatedBlock, error)
}

// AllowedQuery identifies the requester/target pair to fetch allowed
// request types for. Exactly one of ItemID or InstanceID is set,
// matching the resolved request level.
type AllowedQuery struct {
	RequesterID string
	ItemID      string
	InstanceID  string
	Operation   Operation
}

// RequestTypeSource reports which request types the circulation rules
// allow for a requester/target pair.
type RequestTypeSource interface {
	FetchAllowed(ctx context.Context, q AllowedQuery) ([]entity.RequestType, error)
}

// Backend bundles the four collaborators the orchestrator needs.
type Backend interface {
	Lookup
	Submitter
	BlockSource
	RequestTypeSource
}

// SubmitError is a structured rejection from the submit collaborator:
// field-keyed messages where the server localised the problem, plus an
// optional form-level message. It implements error so transports can
// return it directly.
type SubmitError struct {
	Message     string
	FieldErrors map[string][]string
}

// Error summarises the rejection, listing field keys in stable order.
func (e *SubmitError) Error() string {
	if e == nil {
		return "backend: submit rejected"
	}
	msg := strings.TrimSpace(e.Message)
	if len(e.FieldErrors) == 0 {
		if msg == "" {
			return "backend: submit rejected"
		}
		return fmt.Sprintf("backend: submit rejected: %s", msg)
	}
	keys := make([]string, 0, len(e.FieldErrors))
	for key := range e.FieldErrors {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	if msg == "" {
		return fmt.Sprintf("backend: submit rejected: fields %s", strings.Join(keys, ", "))
	}
	return fmt.Sprintf("backend: submit rejected: %s (fields %s)", msg, strings.Join(keys, ", "))
}
