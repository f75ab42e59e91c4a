package orchestrator

import (
	"time"

	"go.uber.org/zap"

	"github.com/libstaff/reqflow/pkg/backend"
	"github.com/libstaff/reqflow/pkg/entity"
)

// Metrics receives orchestrator activity counts. internal/metrics
// provides a prometheus-backed implementation; the default discards
// everything.
type Metrics interface {
	LookupDispatched(kind string)
	StaleDropped(kind string)
	LookupFailed(kind string)
	SubmissionFinished(outcome string)
}

type nopMetrics struct{}

func (nopMetrics) LookupDispatched(string)   {}
func (nopMetrics) StaleDropped(string)       {}
func (nopMetrics) LookupFailed(string)       {}
func (nopMetrics) SubmissionFinished(string) {}

// Option customises the orchestrator configuration.
type Option func(*Orchestrator)

// WithLogger attaches a logger; the default is a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics attaches an activity recorder.
func WithMetrics(m Metrics) Option {
	return func(o *Orchestrator) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithClock overrides the time source, for block-expiry evaluation and
// request-date stamping in tests.
func WithClock(clock func() time.Time) Option {
	return func(o *Orchestrator) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithDebounce sets the trailing-edge window for coalescing field edits.
// Zero disables coalescing; every edit dispatches immediately.
func WithDebounce(window time.Duration) Option {
	return func(o *Orchestrator) {
		o.window = window
	}
}

// WithLocation sets the timezone used to combine hold shelf expiration
// date and time components. Defaults to UTC.
func WithLocation(loc *time.Location) Option {
	return func(o *Orchestrator) {
		if loc != nil {
			o.location = loc
		}
	}
}

// WithHoldShelfTime sets the time-of-day applied when a hold shelf
// expiration date is entered without a time component, in 15:04:05
// form. Defaults to end of day.
func WithHoldShelfTime(timeOfDay string) Option {
	return func(o *Orchestrator) {
		if timeOfDay != "" {
			o.holdShelfTime = timeOfDay
		}
	}
}

// WithDefaultFulfillment sets the preference preselected on new forms.
func WithDefaultFulfillment(pref entity.FulfillmentPreference) Option {
	return func(o *Orchestrator) {
		if pref != "" {
			o.defaultFulfillment = pref
		}
	}
}

// WithSubmitter overrides the submit collaborator from the bundled
// backend, for callers that route submissions separately.
func WithSubmitter(s backend.Submitter) Option {
	return func(o *Orchestrator) {
		if s != nil {
			o.submitter = s
		}
	}
}

// WithBlockSource overrides the patron block collaborator.
func WithBlockSource(s backend.BlockSource) Option {
	return func(o *Orchestrator) {
		if s != nil {
			o.blockSource = s
		}
	}
}

// WithRequestTypeSource overrides the allowed request type collaborator.
func WithRequestTypeSource(s backend.RequestTypeSource) Option {
	return func(o *Orchestrator) {
		if s != nil {
			o.typeSource = s
		}
	}
}
