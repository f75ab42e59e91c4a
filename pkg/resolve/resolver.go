// Package resolve turns typed identifiers into canonical records through
// the injected lookup collaborator, and owns the query-token protocol
// that keeps rapid repeated lookups from applying out of order.
//
// The token protocol is the module's central correctness property: a
// token is assigned when a lookup is dispatched, and the caller applies
// the result to shared state only while that token is still the latest
// for its entity kind. Superseded responses are ignored, never aborted;
// the transport is not assumed to support cancellation.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/libstaff/reqflow/pkg/backend"
	"github.com/libstaff/reqflow/pkg/entity"
)

// Kind names an independently tracked resolution target. Each kind has
// its own token sequence; item edits never invalidate an in-flight
// requester lookup.
type Kind string

const (
	KindItem     Kind = "item"
	KindUser     Kind = "user"
	KindInstance Kind = "instance"
)

// Token identifies one dispatched lookup within its kind's sequence.
// Tokens increase monotonically; zero is never issued.
type Token uint64

// ErrResolutionFailed wraps transport or server failures during a
// lookup. The previously resolved value for the kind, if any, remains
// valid; callers surface a retryable condition instead of clearing it.
var ErrResolutionFailed = errors.New("resolve: lookup failed")

// Option customises the resolver.
type Option func(*Resolver)

// WithLogger attaches a logger; the default is a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Resolver dispatches lookups and tracks the latest token per kind.
type Resolver struct {
	lookup backend.Lookup
	logger *zap.Logger

	mu     sync.Mutex
	latest map[Kind]Token
}

// New constructs a Resolver around the given lookup collaborator.
func New(lookup backend.Lookup, options ...Option) *Resolver {
	r := &Resolver{
		lookup: lookup,
		logger: zap.NewNop(),
		latest: make(map[Kind]Token),
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(r)
	}
	return r
}

// Begin assigns the next token for a kind, marking every earlier
// in-flight lookup of that kind stale.
func (r *Resolver) Begin(kind Kind) Token {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.latest[kind]++
	return r.latest[kind]
}

// Current reports whether the token is still the latest for its kind.
// Callers must check this immediately before applying a result to shared
// state, not when the response arrives.
func (r *Resolver) Current(kind Kind, token Token) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return token != 0 && r.latest[kind] == token
}

// Options adjusts a single resolution.
type Options struct {
	// Silent suppresses token assignment: the lookup still runs and the
	// result is returned, but nothing in flight is superseded. Used for
	// pure existence checks during field validation.
	Silent bool
}

func (r *Resolver) begin(kind Kind, opts Options) Token {
	if opts.Silent {
		return 0
	}
	return r.Begin(kind)
}

// ItemResolution carries a resolved item, or no item when the lookup
// matched nothing, plus the token the caller compares before applying.
type ItemResolution struct {
	Token Token
	Item  *entity.Item
}

// Found reports whether the lookup matched a record.
func (res ItemResolution) Found() bool { return res.Item != nil }

// ResolveItem looks up an inventory item. Zero matches is not an error;
// the caller maps an empty resolution to a field-level validation
// message. Lookup failures wrap ErrResolutionFailed.
func (r *Resolver) ResolveItem(ctx context.Context, id entity.Identifier, opts Options) (ItemResolution, error) {
	token := r.begin(KindItem, opts)
	records, err := r.lookup.FindItems(ctx, id)
	if err != nil {
		r.logger.Warn("item lookup failed", zap.String("idKind", string(id.Kind)), zap.Error(err))
		return ItemResolution{Token: token}, fmt.Errorf("resolve: item by %s: %w: %w", id.Kind, ErrResolutionFailed, err)
	}
	if len(records) == 0 {
		return ItemResolution{Token: token}, nil
	}
	item := records[0]
	return ItemResolution{Token: token, Item: &item}, nil
}

// UserResolution mirrors ItemResolution for patron lookups.
type UserResolution struct {
	Token Token
	User  *entity.User
}

// Found reports whether the lookup matched a record.
func (res UserResolution) Found() bool { return res.User != nil }

// ResolveUser looks up a patron record.
func (r *Resolver) ResolveUser(ctx context.Context, id entity.Identifier, opts Options) (UserResolution, error) {
	token := r.begin(KindUser, opts)
	records, err := r.lookup.FindUsers(ctx, id)
	if err != nil {
		r.logger.Warn("user lookup failed", zap.String("idKind", string(id.Kind)), zap.Error(err))
		return UserResolution{Token: token}, fmt.Errorf("resolve: user by %s: %w: %w", id.Kind, ErrResolutionFailed, err)
	}
	if len(records) == 0 {
		return UserResolution{Token: token}, nil
	}
	user := records[0]
	return UserResolution{Token: token, User: &user}, nil
}

// InstanceResolution mirrors ItemResolution for instance lookups.
type InstanceResolution struct {
	Token    Token
	Instance *entity.Instance
}

// Found reports whether the lookup matched a record.
func (res InstanceResolution) Found() bool { return res.Instance != nil }

// ResolveInstance looks up a bibliographic instance.
func (r *Resolver) ResolveInstance(ctx context.Context, id entity.Identifier, opts Options) (InstanceResolution, error) {
	token := r.begin(KindInstance, opts)
	records, err := r.lookup.FindInstances(ctx, id)
	if err != nil {
		r.logger.Warn("instance lookup failed", zap.String("idKind", string(id.Kind)), zap.Error(err))
		return InstanceResolution{Token: token}, fmt.Errorf("resolve: instance by %s: %w: %w", id.Kind, ErrResolutionFailed, err)
	}
	if len(records) == 0 {
		return InstanceResolution{Token: token}, nil
	}
	instance := records[0]
	return InstanceResolution{Token: token, Instance: &instance}, nil
}
