package entity

// BlockOverride is the auditable marker attached to a payload when staff
// explicitly override a patron block. Its presence is the only way a
// blocked patron's request reaches the backend.
type BlockOverride struct {
	// Token correlates the override with the block modal interaction.
	Token string `json:"token"`
	// Comment is the staff-entered justification, if any.
	Comment string `json:"comment,omitempty"`
	// PatronBlock is set when a manual or automated patron block was
	// overridden, carrying the block ids shown to the operator.
	PatronBlock *PatronBlockOverride `json:"patronBlock,omitempty"`
}

// PatronBlockOverride records which blocks were in force when staff
// overrode them.
type PatronBlockOverride struct {
	ManualBlockID     string   `json:"manualBlockId,omitempty"`
	AutomatedMessages []string `json:"automatedMessages,omitempty"`
}

// RequestPayload is the canonical create/update body handed to the
// submit collaborator. Omitted fields are omitted on the wire, never sent
// as null or empty strings; the shaper in pkg/payload is responsible for
// deciding which fields apply.
type RequestPayload struct {
	ID                      string                `json:"id,omitempty"`
	Level                   RequestLevel          `json:"requestLevel"`
	Type                    RequestType           `json:"requestType"`
	RequestDate             string                `json:"requestDate,omitempty"`
	RequesterID             string                `json:"requesterId"`
	ProxyUserID             string                `json:"proxyUserId,omitempty"`
	ItemID                  string                `json:"itemId,omitempty"`
	HoldingsRecordID        string                `json:"holdingsRecordId,omitempty"`
	InstanceID              string                `json:"instanceId,omitempty"`
	Fulfillment             FulfillmentPreference `json:"fulfillmentPreference"`
	PickupServicePointID    string                `json:"pickupServicePointId,omitempty"`
	DeliveryAddressTypeID   string                `json:"deliveryAddressTypeId,omitempty"`
	RequestExpirationDate   string                `json:"requestExpirationDate,omitempty"`
	HoldShelfExpirationDate string                `json:"holdShelfExpirationDate,omitempty"`
	PatronComments          string                `json:"patronComments,omitempty"`
	Override                *BlockOverride        `json:"requestProcessingOverride,omitempty"`
}
