package entity

import "strings"

// IdentifierKind names the identifier namespace a lookup should search.
type IdentifierKind string

const (
	// IdentifierBarcode matches the scannable barcode printed on an item
	// or a patron card.
	IdentifierBarcode IdentifierKind = "barcode"
	// IdentifierID matches the record UUID.
	IdentifierID IdentifierKind = "id"
	// IdentifierHRID matches the human-readable identifier assigned to
	// instances.
	IdentifierHRID IdentifierKind = "hrid"
)

// Identifier is a tagged lookup key: which namespace to search plus the
// raw value as entered or scanned. Values are trimmed on construction so
// scanner suffixes (trailing whitespace, CR) never reach the backend.
type Identifier struct {
	Kind  IdentifierKind
	Value string
}

// Barcode builds a barcode identifier.
func Barcode(value string) Identifier {
	return Identifier{Kind: IdentifierBarcode, Value: strings.TrimSpace(value)}
}

// ID builds a record-id identifier.
func ID(value string) Identifier {
	return Identifier{Kind: IdentifierID, Value: strings.TrimSpace(value)}
}

// HRID builds a human-readable-id identifier.
func HRID(value string) Identifier {
	return Identifier{Kind: IdentifierHRID, Value: strings.TrimSpace(value)}
}

// Zero reports whether the identifier carries no usable value.
func (i Identifier) Zero() bool {
	return strings.TrimSpace(i.Value) == ""
}
