package resolve

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/libstaff/reqflow/pkg/entity"
)

// ItemContext carries the dependent lookups that follow a successful
// item resolution: the open loan, the open-request count, and the owning
// instance id recovered through the holdings record.
//
// Each facet fails independently. A failed facet leaves its error in
// place and the zero value for its data; the resolved item itself is
// never invalidated by a dependent failure.
type ItemContext struct {
	Loan         *entity.Loan
	OpenRequests int
	InstanceID   string

	LoanErr     error
	RequestsErr error
	HoldingErr  error
}

// Complete reports whether every facet loaded.
func (c ItemContext) Complete() bool {
	return c.LoanErr == nil && c.RequestsErr == nil && c.HoldingErr == nil
}

// LoadItemContext runs the dependent lookup chain for a resolved item.
// The three lookups run concurrently; the group never cancels siblings
// on a facet failure, because partial context is still useful (a loan
// lookup outage must not hide the request queue length).
func (r *Resolver) LoadItemContext(ctx context.Context, item entity.Item) ItemContext {
	var out ItemContext

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		loan, err := r.lookup.FindOpenLoan(gctx, item.ID)
		if err != nil {
			out.LoanErr = fmt.Errorf("resolve: open loan for item %s: %w: %w", item.ID, ErrResolutionFailed, err)
			return nil
		}
		out.Loan = loan
		return nil
	})
	g.Go(func() error {
		count, err := r.lookup.CountOpenRequests(gctx, item.ID)
		if err != nil {
			out.RequestsErr = fmt.Errorf("resolve: open requests for item %s: %w: %w", item.ID, ErrResolutionFailed, err)
			return nil
		}
		out.OpenRequests = count
		return nil
	})
	g.Go(func() error {
		if item.HoldingsRecordID == "" {
			out.HoldingErr = fmt.Errorf("resolve: item %s has no holdings record: %w", item.ID, ErrResolutionFailed)
			return nil
		}
		holding, err := r.lookup.FindHolding(gctx, item.HoldingsRecordID)
		if err != nil {
			out.HoldingErr = fmt.Errorf("resolve: holding %s: %w: %w", item.HoldingsRecordID, ErrResolutionFailed, err)
			return nil
		}
		if holding == nil {
			out.HoldingErr = fmt.Errorf("resolve: holding %s not found: %w", item.HoldingsRecordID, ErrResolutionFailed)
			return nil
		}
		out.InstanceID = holding.InstanceID
		return nil
	})

	// Closures only ever return nil; Wait is for joining.
	_ = g.Wait()

	if !out.Complete() {
		r.logger.Warn("item context incomplete",
			zap.String("itemId", item.ID),
			zap.NamedError("loan", out.LoanErr),
			zap.NamedError("requests", out.RequestsErr),
			zap.NamedError("holding", out.HoldingErr),
		)
	}
	return out
}
