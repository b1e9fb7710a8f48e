package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nao1215/mentionscan/internal/analytics"
	"github.com/nao1215/mentionscan/internal/model"
	"github.com/nao1215/mentionscan/internal/retry"
	"github.com/nao1215/mentionscan/internal/session"
)

// Counter is the slice of the analytics client the resolver uses: the
// primary count endpoint and the search-page fallback.
type Counter interface {
	Count(ctx context.Context, sess session.Session, term string, r model.Range) (int, error)
	CountFromSearchPage(ctx context.Context, sess session.Session, term string, r model.Range) (int, error)
}

// SessionProvider is the slice of the session manager the resolver
// uses. Refresh must collapse concurrent calls into a single login;
// the manager does.
type SessionProvider interface {
	Current(ctx context.Context) (session.Session, error)
	Refresh(ctx context.Context, stale session.Session) (session.Session, error)
}

// CountResolver resolves one query through the tiered acquisition
// chain:
//
//  1. the count API, retried on rate limiting per the policy;
//  2. on a rejected session, one refresh and one more API pass;
//  3. on any other terminal API failure, the search-page fallback under
//     the same policy;
//  4. the explicit unavailable marker.
//
// A recurring auth failure skips the fallback: the search page sits
// behind the same credentials, so it would only repeat the rejection.
type CountResolver struct {
	counter  Counter
	sessions SessionProvider
	policy   retry.Policy
	logger   *slog.Logger
}

// ResolverOption configures a CountResolver.
type ResolverOption func(*CountResolver)

// WithResolverLogger sets a custom logger for per-query resolution.
func WithResolverLogger(logger *slog.Logger) ResolverOption {
	return func(r *CountResolver) {
		r.logger = logger
	}
}

// NewCountResolver creates a resolver over the given client slice and
// session provider.
func NewCountResolver(counter Counter, sessions SessionProvider, policy retry.Policy, opts ...ResolverOption) *CountResolver {
	r := &CountResolver{
		counter:  counter,
		sessions: sessions,
		policy:   policy,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Resolve implements Resolver. It never returns a fabricated value: a
// query that all tiers failed comes back as an unavailable count whose
// reason names the terminal failures.
func (r *CountResolver) Resolve(ctx context.Context, query model.Query) model.Count {
	attempts := 0

	sess, err := r.sessions.Current(ctx)
	if err != nil {
		return model.UnavailableCount(fmt.Sprintf("no session: %v", err), attempts)
	}

	value, n, err := r.countAPI(ctx, sess, query)
	attempts += n
	if err == nil {
		return model.NewCount(value, model.CountSourceAPI, attempts)
	}

	if analytics.Classify(err) == analytics.ClassAuth {
		fresh, rerr := r.sessions.Refresh(ctx, sess)
		if rerr != nil {
			return model.UnavailableCount(fmt.Sprintf("session refresh failed: %v", rerr), attempts)
		}
		r.logger.Debug("session refreshed, repeating count",
			"subject", query.Subject.Handle(),
			"session", fresh.Fingerprint(),
		)

		value, n, err = r.countAPI(ctx, fresh, query)
		attempts += n
		if err == nil {
			return model.NewCount(value, model.CountSourceAPI, attempts)
		}
		if analytics.Classify(err) == analytics.ClassAuth {
			return model.UnavailableCount("authentication rejected after refresh", attempts)
		}
		sess = fresh
	}

	r.logger.Debug("count API failed, trying search page",
		"subject", query.Subject.Handle(),
		"error", err.Error(),
	)

	value, n, ferr := r.countPage(ctx, sess, query)
	attempts += n
	if ferr == nil {
		return model.NewCount(value, model.CountSourceFallback, attempts)
	}

	return model.UnavailableCount(unavailableReason(err, ferr), attempts)
}

// countAPI runs the primary tier under the retry policy.
func (r *CountResolver) countAPI(ctx context.Context, sess session.Session, query model.Query) (int, int, error) {
	var value int
	attempts, err := r.policy.Do(ctx, "count "+query.Subject.Handle(), func(ctx context.Context) error {
		v, err := r.counter.Count(ctx, sess, query.Term(), query.Range)
		if err != nil {
			return err
		}
		value = v
		return nil
	})
	return value, attempts, err
}

// countPage runs the fallback tier under the same retry policy.
func (r *CountResolver) countPage(ctx context.Context, sess session.Session, query model.Query) (int, int, error) {
	var value int
	attempts, err := r.policy.Do(ctx, "search page "+query.Subject.Handle(), func(ctx context.Context) error {
		v, err := r.counter.CountFromSearchPage(ctx, sess, query.Term(), query.Range)
		if err != nil {
			return err
		}
		value = v
		return nil
	})
	return value, attempts, err
}

// unavailableReason names both terminal failures so the report shows
// why a subject has no count.
func unavailableReason(apiErr, pageErr error) string {
	return fmt.Sprintf("count API: %v; search page: %v", apiErr, pageErr)
}
