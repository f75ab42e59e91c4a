package entity

// FormMode distinguishes how the form session was opened. Duplicate mode
// changes validator behaviour for identifiers copied from the source
// record; edit mode freezes the request level.
type FormMode string

const (
	ModeCreate    FormMode = "create"
	ModeEdit      FormMode = "edit"
	ModeDuplicate FormMode = "duplicate"
)

// FormState is the in-progress request form as the operator sees it. The
// orchestrator owns the single mutable copy; evaluators and the shaper
// receive value snapshots and never write back.
//
// Identifier fields hold raw operator input. Resolved records live beside
// the form in the orchestrator, not here, so a re-entered barcode never
// masquerades as a resolved entity.
type FormState struct {
	Type       RequestType
	TitleLevel bool

	RequesterBarcode string
	ItemBarcode      string
	InstanceHRID     string

	// Ids copied from the source record in duplicate/edit mode. Cleared
	// when the operator edits the corresponding barcode field.
	CopiedRequesterID string
	CopiedItemID      string
	CopiedInstanceID  string

	Fulfillment           FulfillmentPreference
	PickupServicePointID  string
	DeliveryAddressTypeID string

	// RequestExpirationDate is an ISO date (2006-01-02) or empty.
	RequestExpirationDate string
	// HoldShelfExpirationDate and HoldShelfExpirationTime are edited as
	// separate components and recombined at submission.
	HoldShelfExpirationDate string
	HoldShelfExpirationTime string

	PatronComments string

	// UI-only helpers, stripped by the shaper.
	OpenRequestCount int
	RefreshSeq       map[string]int
}

// FormFromRequest seeds form state from a persisted record, for edit and
// duplicate flows.
func FormFromRequest(rec Request) FormState {
	return FormState{
		Type:                  rec.Type,
		TitleLevel:            rec.Level == LevelTitle,
		RequesterBarcode:      rec.RequesterBarcode,
		ItemBarcode:           rec.ItemBarcode,
		InstanceHRID:          rec.InstanceHRID,
		CopiedRequesterID:     rec.RequesterID,
		CopiedItemID:          rec.ItemID,
		CopiedInstanceID:      rec.InstanceID,
		Fulfillment:           rec.Fulfillment,
		PickupServicePointID:  rec.PickupServicePointID,
		DeliveryAddressTypeID: rec.DeliveryAddressTypeID,
		RequestExpirationDate: rec.RequestExpirationDate,
		PatronComments:        rec.PatronComments,
	}
}
