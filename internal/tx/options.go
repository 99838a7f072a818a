package tx

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LookupRefPolicy decides what a lookup ref naming no entity does.
type LookupRefPolicy int

const (
	// LookupRefFail aborts the transaction with lookup_ref_not_found.
	LookupRefFail LookupRefPolicy = iota
	// LookupRefCreate allocates a new entity and asserts the pair on it.
	LookupRefCreate
)

func (p LookupRefPolicy) String() string {
	if p == LookupRefCreate {
		return "create"
	}
	return "fail"
}

// ParseLookupRefPolicy accepts "fail" or "create".
func ParseLookupRefPolicy(s string) (LookupRefPolicy, error) {
	switch s {
	case "", "fail":
		return LookupRefFail, nil
	case "create":
		return LookupRefCreate, nil
	}
	return 0, fmt.Errorf("unknown lookup ref policy %q (want fail or create)", s)
}

// Clock returns the wall time stamped on transactions.
type Clock func() time.Time

type options struct {
	logger     *slog.Logger
	clock      Clock
	lookupRefs LookupRefPolicy
	registerer prometheus.Registerer
}

// Option configures a Store.
type Option func(*options)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock sets the source of :db/txInstant values.
func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLookupRefPolicy sets what unresolvable lookup refs do.
func WithLookupRefPolicy(p LookupRefPolicy) Option {
	return func(o *options) { o.lookupRefs = p }
}

// WithRegisterer registers the store's metrics with r. Without it the
// metrics are kept but not exported.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(o *options) { o.registerer = r }
}

func buildOptions(opts []Option) options {
	o := options{
		logger: slog.Default(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
