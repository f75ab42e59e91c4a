// Package blocks decides whether the current requester is blocked from
// placing requests. Evaluation is a pure function over snapshots the
// orchestrator passes in; the block lists themselves are fetched by a
// backend collaborator and never mutated here.
package blocks

import (
	"time"

	"github.com/libstaff/reqflow/pkg/entity"
)

// Inputs is the evaluation snapshot. ManualBlocks must arrive in the
// backend's most-recently-updated-first order; the first live block wins.
type Inputs struct {
	ManualBlocks    []entity.ManualBlock
	AutomatedBlocks []entity.AutomatedBlock
	RequesterID     string
	Overridden      bool
	Now             time.Time
}

// Evaluate derives the block verdict for a requester. With no requester
// resolved yet the verdict is always unblocked: blocking is only
// meaningful once we know who is asking. Override is an input, not a
// mutation; the underlying lists are untouched and a later evaluation
// with Overridden=false sees the block again.
func Evaluate(in Inputs) entity.BlockState {
	state := entity.BlockState{Overridden: in.Overridden}

	if in.RequesterID == "" {
		return state
	}

	state.ActiveManualBlock = firstLiveBlock(in.ManualBlocks, in.Now)
	state.AutomatedMessages = blockingMessages(in.AutomatedBlocks)

	manualApplies := state.ActiveManualBlock != nil && state.ActiveManualBlock.UserID == in.RequesterID
	state.Blocked = (manualApplies || len(state.AutomatedMessages) > 0) && !in.Overridden
	return state
}

// firstLiveBlock returns the first block that restricts requests and has
// not expired, preserving caller order.
func firstLiveBlock(manual []entity.ManualBlock, now time.Time) *entity.ManualBlock {
	for i := range manual {
		b := manual[i]
		if !b.Requests || b.ExpiredAt(now) {
			continue
		}
		live := b
		return &live
	}
	return nil
}

func blockingMessages(automated []entity.AutomatedBlock) []string {
	var out []string
	for _, b := range automated {
		if !b.BlockRequests {
			continue
		}
		if msg := SanitizeMessage(b.Message); msg != "" {
			out = append(out, msg)
		} else {
			// A blocking entry with no displayable message still blocks;
			// the UI shows a generic notice for the empty string.
			out = append(out, "")
		}
	}
	return out
}
