// Package policy holds the pure decision functions that sit between
// entity resolution and payload shaping: which level a request is placed
// at, and who the requester of record is when a proxy is involved.
package policy

import (
	"errors"

	"github.com/libstaff/reqflow/pkg/entity"
)

// ErrIncompleteSelection signals that the entity required by the decided
// level has not been resolved yet. It is a validation-time condition, not
// a hard failure; editing continues and the check re-runs on the next
// resolution.
var ErrIncompleteSelection = errors.New("policy: required entity not yet resolved for request level")

// LevelInputs is the snapshot ResolveLevel decides from.
type LevelInputs struct {
	// TitleLevel is the operator's "create title level request" toggle.
	TitleLevel bool
	// Existing is set when editing a persisted record; level is fixed
	// after creation.
	Existing *entity.Request
	// Instance and Item are the currently resolved entities, nil when
	// unresolved.
	Instance *entity.Instance
	Item     *entity.Item
}

// ResolveLevel decides the request level. An existing record pins the
// level regardless of the toggle; otherwise the toggle chooses Title and
// everything else is Item.
func ResolveLevel(in LevelInputs) entity.RequestLevel {
	if in.Existing != nil && in.Existing.Level != "" {
		return in.Existing.Level
	}
	if in.TitleLevel {
		return entity.LevelTitle
	}
	return entity.LevelItem
}

// FinalizeLevel resolves the level and verifies the entity that level
// requires is present: an Item (with its holdings record id) for
// item-level, an Instance for title-level. Callers run this before
// shaping a submission.
func FinalizeLevel(in LevelInputs) (entity.RequestLevel, error) {
	level := ResolveLevel(in)
	switch level {
	case entity.LevelTitle:
		if in.Instance == nil || in.Instance.ID == "" {
			return level, ErrIncompleteSelection
		}
	case entity.LevelItem:
		if in.Item == nil || in.Item.ID == "" || in.Item.HoldingsRecordID == "" {
			return level, ErrIncompleteSelection
		}
	}
	return level, nil
}
