// Package payload turns in-progress form state into the canonical
// create/update body, pruning everything inapplicable to the resolved
// request level and fulfillment mode, and validates the result against
// the embedded circulation API schema before it leaves the process.
package payload

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/libstaff/reqflow/pkg/entity"
)

// ErrSubmissionBlocked short-circuits shaping while the requester is
// blocked and no override has been granted. Nothing is transformed and
// nothing reaches the submit collaborator.
var ErrSubmissionBlocked = errors.New("payload: requester is blocked from placing requests")

// holdShelfDefaultTime is the time-of-day applied when the operator set a
// hold shelf expiration date without a time component.
const holdShelfDefaultTime = "23:59:59"

// Input is the shaping snapshot. The orchestrator assembles it from its
// resolved state; Shape itself reads nothing else and mutates nothing.
type Input struct {
	Form     entity.FormState
	Level    entity.RequestLevel
	Item     *entity.Item
	Instance *entity.Instance
	Identity entity.RequesterIdentity
	Block    entity.BlockState

	// ExistingID is the record id when editing; empty on create.
	ExistingID string
	// InstanceID is the instance recovered for item-level requests via
	// the holdings chain. Ignored when Instance is resolved directly.
	InstanceID string
	// Location interprets the separately edited hold shelf date and time
	// components. Defaults to UTC.
	Location *time.Location
	// HoldShelfTime is the time-of-day applied when the operator entered
	// a hold shelf expiration date without a time component, in 15:04:05
	// form. Empty means end of day.
	HoldShelfTime string
	// Now stamps the request date on create.
	Now time.Time
}

// Shape builds the submission payload. The block gate runs first: a
// blocked state returns ErrSubmissionBlocked untransformed, and an
// overridden one attaches the auditable override marker instead.
func Shape(in Input) (entity.RequestPayload, error) {
	if in.Block.Blocked {
		return entity.RequestPayload{}, ErrSubmissionBlocked
	}

	p := entity.RequestPayload{
		ID:             in.ExistingID,
		Level:          in.Level,
		Type:           in.Form.Type,
		RequesterID:    in.Identity.RequesterID,
		ProxyUserID:    in.Identity.ProxyUserID,
		Fulfillment:    in.Form.Fulfillment,
		PatronComments: in.Form.PatronComments,
	}

	if in.ExistingID == "" && !in.Now.IsZero() {
		p.RequestDate = in.Now.UTC().Format(time.RFC3339)
	}

	applyLevel(&p, in)
	applyFulfillment(&p, in.Form)

	if err := applyDates(&p, in); err != nil {
		return entity.RequestPayload{}, err
	}

	if in.Block.Overridden {
		p.Override = overrideMarker(in.Block)
	}

	return p, nil
}

// applyLevel sources the target fields from the resolved entity the
// level requires and guarantees the other level's fields stay absent.
func applyLevel(p *entity.RequestPayload, in Input) {
	switch in.Level {
	case entity.LevelTitle:
		if in.Instance != nil {
			p.InstanceID = in.Instance.ID
		}
	default:
		if in.Item != nil {
			p.ItemID = in.Item.ID
			p.HoldingsRecordID = in.Item.HoldingsRecordID
		}
		if in.Instance != nil {
			p.InstanceID = in.Instance.ID
		} else {
			p.InstanceID = in.InstanceID
		}
	}
}

// applyFulfillment keeps exactly one of the pickup/delivery fields, even
// when stale values for the other linger in form state.
func applyFulfillment(p *entity.RequestPayload, form entity.FormState) {
	switch form.Fulfillment {
	case entity.FulfillDelivery:
		p.DeliveryAddressTypeID = form.DeliveryAddressTypeID
	default:
		p.PickupServicePointID = form.PickupServicePointID
	}
}

// applyDates normalises the two expiration fields: an empty request
// expiration is omitted rather than submitted empty, and the hold shelf
// expiration is recombined from its date and time components into one
// UTC instant, or omitted entirely when the date component is absent.
func applyDates(p *entity.RequestPayload, in Input) error {
	form := in.Form
	if form.RequestExpirationDate != "" {
		if _, err := time.Parse("2006-01-02", form.RequestExpirationDate); err != nil {
			return fmt.Errorf("payload: request expiration date %q: %w", form.RequestExpirationDate, err)
		}
		p.RequestExpirationDate = form.RequestExpirationDate
	}

	if form.HoldShelfExpirationDate == "" {
		return nil
	}

	clock := form.HoldShelfExpirationTime
	if clock == "" {
		clock = in.HoldShelfTime
	}
	if clock == "" {
		clock = holdShelfDefaultTime
	}
	loc := in.Location
	if loc == nil {
		loc = time.UTC
	}
	combined, err := time.ParseInLocation("2006-01-02 15:04:05", form.HoldShelfExpirationDate+" "+clock, loc)
	if err != nil {
		return fmt.Errorf("payload: hold shelf expiration %q %q: %w", form.HoldShelfExpirationDate, clock, err)
	}
	p.HoldShelfExpirationDate = combined.UTC().Format(time.RFC3339)
	return nil
}

func overrideMarker(block entity.BlockState) *entity.BlockOverride {
	marker := &entity.BlockOverride{Token: uuid.NewString()}
	pb := &entity.PatronBlockOverride{AutomatedMessages: block.AutomatedMessages}
	if block.ActiveManualBlock != nil {
		pb.ManualBlockID = block.ActiveManualBlock.ID
	}
	if pb.ManualBlockID != "" || len(pb.AutomatedMessages) > 0 {
		marker.PatronBlock = pb
	}
	return marker
}
