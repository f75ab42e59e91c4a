// Package reqflow re-exports the request form orchestration API from the
// module root so most callers need a single import.
package reqflow

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/libstaff/reqflow/internal/metrics"
	"github.com/libstaff/reqflow/pkg/backend"
	"github.com/libstaff/reqflow/pkg/entity"
	"github.com/libstaff/reqflow/pkg/orchestrator"
)

// Orchestrator coordinates one request form session; see
// pkg/orchestrator for the full API.
type Orchestrator = orchestrator.Orchestrator

// Option customises orchestrator construction.
type Option = orchestrator.Option

// View is the read-only session snapshot handed to UI collaborators.
type View = orchestrator.View

// EntityState pairs a per-kind resolution status with its error.
type EntityState = orchestrator.EntityState

// Backend bundles the collaborator interfaces a full deployment
// implements against the circulation platform.
type Backend = backend.Backend

// Ack is the backend's submission acknowledgement.
type Ack = backend.Ack

// Request is a persisted circulation request, for edit and duplicate
// flows.
type Request = entity.Request

// RequestPayload is the canonical create/update body.
type RequestPayload = entity.RequestPayload

// Sentinel errors for errors.Is checks on orchestrator results.
var (
	ErrNotFound             = orchestrator.ErrNotFound
	ErrResolutionFailed     = orchestrator.ErrResolutionFailed
	ErrValidationIncomplete = orchestrator.ErrValidationIncomplete
	ErrSubmissionBlocked    = orchestrator.ErrSubmissionBlocked
	ErrSubmissionRejected   = orchestrator.ErrSubmissionRejected
	ErrDisposed             = orchestrator.ErrDisposed
)

// New constructs an orchestrator around the backend collaborators,
// mirroring pkg/orchestrator.New.
func New(b backend.Backend, options ...Option) *Orchestrator {
	return orchestrator.New(b, options...)
}

// Re-exported options, so root-level callers can configure the
// orchestrator without importing pkg/orchestrator directly.
var (
	WithLogger             = orchestrator.WithLogger
	WithMetrics            = orchestrator.WithMetrics
	WithClock              = orchestrator.WithClock
	WithDebounce           = orchestrator.WithDebounce
	WithLocation           = orchestrator.WithLocation
	WithHoldShelfTime      = orchestrator.WithHoldShelfTime
	WithDefaultFulfillment = orchestrator.WithDefaultFulfillment
	WithSubmitter          = orchestrator.WithSubmitter
	WithBlockSource        = orchestrator.WithBlockSource
	WithRequestTypeSource  = orchestrator.WithRequestTypeSource
)

// NewPrometheusMetrics registers the orchestrator's activity counters
// with reg and returns a recorder suitable for WithMetrics. Pass
// prometheus.DefaultRegisterer for process-wide metrics.
func NewPrometheusMetrics(reg prometheus.Registerer) orchestrator.Metrics {
	return metrics.New(reg)
}

// RejectionFields extracts field-keyed server messages from a
// submission error, for rendering inline.
func RejectionFields(err error) map[string][]string {
	return orchestrator.RejectionFields(err)
}
