package orchestrator

import (
	"github.com/libstaff/reqflow/pkg/entity"
	"github.com/libstaff/reqflow/pkg/resolve"
)

// ResolutionStatus tracks one entity kind through its lifecycle. Each
// kind moves independently; a failed requester lookup never touches the
// item's state.
type ResolutionStatus string

const (
	// StatusIdle means no lookup has been dispatched for the kind, or
	// the field was cleared.
	StatusIdle ResolutionStatus = "idle"
	// StatusResolving means the latest dispatched lookup has not
	// completed yet.
	StatusResolving ResolutionStatus = "resolving"
	// StatusResolved means the latest lookup matched a record.
	StatusResolved ResolutionStatus = "resolved"
	// StatusNotFound means the latest lookup matched nothing.
	StatusNotFound ResolutionStatus = "notFound"
	// StatusFailed means the latest lookup failed; any previously
	// resolved record is retained.
	StatusFailed ResolutionStatus = "failed"
)

// EntityState pairs a status with the surfaced error, if any.
type EntityState struct {
	Status ResolutionStatus
	Err    error
}

// View is a read-only snapshot for the UI collaborator: per-kind
// resolution states for spinners and errors, the block verdict for the
// modal, and the resolved records for display.
type View struct {
	Mode entity.FormMode
	Form entity.FormState

	Item      *entity.Item
	Requester *entity.User
	Proxy     *entity.User
	Instance  *entity.Instance
	Loan      *entity.Loan

	Identity     entity.RequesterIdentity
	Block        entity.BlockState
	AllowedTypes []entity.RequestType

	States     map[resolve.Kind]EntityState
	Submitting bool
}

// StateOf returns the resolution state for a kind, defaulting to idle.
func (v View) StateOf(kind resolve.Kind) EntityState {
	if s, ok := v.States[kind]; ok {
		return s
	}
	return EntityState{Status: StatusIdle}
}
