package entity

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// RequestLevel distinguishes a request against a specific physical copy
// from one against the bibliographic instance as a whole.
type RequestLevel string

const (
	// LevelItem targets one physical copy; the payload must carry the
	// item id and its holdings record id.
	LevelItem RequestLevel = "Item"
	// LevelTitle targets the instance; the payload must not carry item
	// or holdings fields.
	LevelTitle RequestLevel = "Title"
)

// RequestType is the circulation action requested.
type RequestType string

const (
	TypeHold   RequestType = "Hold"
	TypeRecall RequestType = "Recall"
	TypePage   RequestType = "Page"
)

// FulfillmentPreference selects how a filled request reaches the patron.
type FulfillmentPreference string

const (
	// FulfillHoldShelf holds the item at a pickup service point.
	FulfillHoldShelf FulfillmentPreference = "Hold Shelf"
	// FulfillDelivery delivers the item to a patron address.
	FulfillDelivery FulfillmentPreference = "Delivery"
)

// Item is the canonical inventory record for one physical copy.
type Item struct {
	ID               string `json:"id"`
	Barcode          string `json:"barcode,omitempty"`
	Title            string `json:"title,omitempty"`
	HoldingsRecordID string `json:"holdingsRecordId,omitempty"`
	CallNumber       string `json:"callNumber,omitempty"`
	Status           string `json:"status,omitempty"`
	LocationName     string `json:"effectiveLocationName,omitempty"`
}

// User is the canonical patron record.
type User struct {
	ID          string `json:"id"`
	Barcode     string `json:"barcode,omitempty"`
	Active      bool   `json:"active"`
	FirstName   string `json:"firstName,omitempty"`
	LastName    string `json:"lastName,omitempty"`
	PatronGroup string `json:"patronGroup,omitempty"`
}

// DisplayName renders "Last, First" the way picklists show patrons.
func (u User) DisplayName() string {
	switch {
	case u.LastName == "":
		return u.FirstName
	case u.FirstName == "":
		return u.LastName
	default:
		return u.LastName + ", " + u.FirstName
	}
}

// Instance is the canonical bibliographic record.
type Instance struct {
	ID           string   `json:"id"`
	HRID         string   `json:"hrid,omitempty"`
	Title        string   `json:"title,omitempty"`
	Contributors []string `json:"contributorNames,omitempty"`
}

// Holding links an item to its owning instance.
type Holding struct {
	ID         string `json:"id"`
	InstanceID string `json:"instanceId"`
}

// Loan is the open loan on an item, if any.
type Loan struct {
	ID      string    `json:"id"`
	ItemID  string    `json:"itemId"`
	UserID  string    `json:"userId"`
	DueDate time.Time `json:"dueDate"`
}

// ManualBlock is a staff-entered restriction on a patron. It is relevant
// to this module only while Requests is true and the block has not
// expired.
type ManualBlock struct {
	ID             string     `json:"id"`
	UserID         string     `json:"userId"`
	Desc           string     `json:"desc,omitempty"`
	Requests       bool       `json:"requests"`
	ExpirationDate *time.Time `json:"expirationDate,omitempty"`
}

// ExpiredAt reports whether the block has lapsed at the given instant.
// Blocks without an expiration date never lapse.
func (b ManualBlock) ExpiredAt(now time.Time) bool {
	return b.ExpirationDate != nil && b.ExpirationDate.Before(now)
}

// AutomatedBlock is a system-computed restriction, typically from fee or
// loan-count thresholds. Message is server-supplied display text.
type AutomatedBlock struct {
	BlockRequests bool   `json:"blockRequests"`
	Message       string `json:"message,omitempty"`
}

// BlockState is the derived verdict on whether the current requester may
// place requests. It is recomputed from scratch on every relevant input
// change; it never caches across requester switches.
type BlockState struct {
	Blocked           bool
	Overridden        bool
	ActiveManualBlock *ManualBlock
	AutomatedMessages []string
}

// RequesterIdentity is the reconciled requester-of-record pairing. When a
// proxy relationship is in effect, RequesterID names the person the
// request is for and ProxyUserID names the patron acting on their behalf.
type RequesterIdentity struct {
	RequesterID string
	ProxyUserID string
}

// Request is a persisted circulation request as returned by the backend,
// used when editing or duplicating an existing record.
type Request struct {
	ID                      string                `json:"id"`
	Level                   RequestLevel          `json:"requestLevel"`
	Type                    RequestType           `json:"requestType"`
	Status                  string                `json:"status,omitempty"`
	Position                int                   `json:"position,omitempty"`
	RequesterID             string                `json:"requesterId"`
	RequesterBarcode        string                `json:"requesterBarcode,omitempty"`
	ProxyUserID             string                `json:"proxyUserId,omitempty"`
	ItemID                  string                `json:"itemId,omitempty"`
	ItemBarcode             string                `json:"itemBarcode,omitempty"`
	HoldingsRecordID        string                `json:"holdingsRecordId,omitempty"`
	InstanceID              string                `json:"instanceId,omitempty"`
	InstanceHRID            string                `json:"instanceHrid,omitempty"`
	Fulfillment             FulfillmentPreference `json:"fulfillmentPreference,omitempty"`
	PickupServicePointID    string                `json:"pickupServicePointId,omitempty"`
	DeliveryAddressTypeID   string                `json:"deliveryAddressTypeId,omitempty"`
	RequestExpirationDate   string                `json:"requestExpirationDate,omitempty"`
	HoldShelfExpirationDate string                `json:"holdShelfExpirationDate,omitempty"`
	PatronComments          string                `json:"patronComments,omitempty"`
}

// NewRequestID mints a client-side id for payload correlation and audit
// markers.
func NewRequestID() string {
	return uuid.NewString()
}

// NormalizeBarcode trims operator input the same way Identifier
// constructors do, so comparisons against resolved records are stable.
func NormalizeBarcode(value string) string {
	return strings.TrimSpace(value)
}
