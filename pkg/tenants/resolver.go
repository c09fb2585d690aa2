package tenants

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/origolabs/origo/pkg/async"
	"github.com/origolabs/origo/pkg/auth"
	"github.com/origolabs/origo/pkg/observability"
)

// ResolverStore is the lookup surface resolution runs against.
type ResolverStore interface {
	TenantByID(ctx context.Context, id int64) (*Tenant, error)
	TenantByDomain(ctx context.Context, domain string) (*Tenant, error)
	TenantBySubdomain(ctx context.Context, subdomain string) (*Tenant, error)
	IsMember(ctx context.Context, subjectID, tenantID int64) (bool, error)
	FirstMembershipTenant(ctx context.Context, subjectID int64) (*Tenant, error)
}

// SessionPins is the session-pin surface resolution reads and writes.
type SessionPins interface {
	PinnedTenant(ctx context.Context, sessionID string) (int64, bool, error)
	PinTenant(ctx context.Context, sessionID string, tenantID int64) error
}

// Request carries the tenant signals extracted from one HTTP request.
type Request struct {
	// ExplicitTenantID is a tenant id the caller attached directly
	// (header or route segment). Zero means none.
	ExplicitTenantID int64
	// SessionID identifies the caller's session, empty if anonymous.
	SessionID string
	// Host is the request Host header, port included or not.
	Host string
}

// Resolver turns a request into exactly one tenant. Rules run in a fixed
// order and the first that produces a tenant wins; later rules are not
// consulted as tie breakers.
type Resolver struct {
	store      ResolverStore
	sessions   SessionPins
	hostCache  *HostCache
	baseDomain string
	logger     *observability.Logger
	metrics    *observability.Metrics
}

// Resolution rule labels, as recorded on metrics.
const (
	ruleExplicit  = "explicit"
	rulePin       = "pin"
	ruleDomain    = "domain"
	ruleSubdomain = "subdomain"
	ruleFallback  = "fallback"
	ruleNone      = "none"
)

// NewResolver creates a tenant resolver. baseDomain is the platform's
// shared suffix for tenant subdomains (e.g. "origo.site"). sessions,
// hostCache and metrics may be nil; the corresponding rules and
// instrumentation degrade gracefully.
func NewResolver(store ResolverStore, sessions SessionPins, hostCache *HostCache, baseDomain string, logger *observability.Logger, metrics *observability.Metrics) *Resolver {
	return &Resolver{
		store:      store,
		sessions:   sessions,
		hostCache:  hostCache,
		baseDomain: strings.TrimSuffix(strings.ToLower(baseDomain), "."),
		logger:     logger,
		metrics:    metrics,
	}
}

// Resolve determines the active tenant for a request.
//
// Precedence:
//  1. explicit tenant id attached to the request
//  2. session pin, re-validated against current memberships
//  3. verified custom domain matching the Host header
//  4. platform subdomain matching the Host header
//  5. the subject's oldest membership
//
// An explicit id naming a tenant the subject does not belong to is a hard
// AccessDeniedError. A stale session pin is silently discarded instead;
// the pin is a convenience, not a claim the caller made.
func (r *Resolver) Resolve(ctx context.Context, subject *auth.Subject, req Request) (*Tenant, error) {
	start := time.Now()
	tenant, rule, err := r.resolve(ctx, subject, req)
	r.observe(rule, start, err)
	return tenant, err
}

// resolve runs the rule chain and reports which rule answered.
func (r *Resolver) resolve(ctx context.Context, subject *auth.Subject, req Request) (*Tenant, string, error) {
	if req.ExplicitTenantID != 0 {
		tenant, err := r.resolveExplicit(ctx, subject, req.ExplicitTenantID)
		return tenant, ruleExplicit, err
	}

	if subject != nil && req.SessionID != "" && r.sessions != nil {
		tenant, err := r.resolvePinned(ctx, subject, req.SessionID)
		if err != nil {
			return nil, rulePin, err
		}
		if tenant != nil {
			return tenant, rulePin, nil
		}
	}

	if req.Host != "" {
		tenant, rule, err := r.resolveHost(ctx, req.Host)
		if err != nil {
			return nil, rule, err
		}
		if tenant != nil {
			if subject != nil {
				r.writeBackPin(ctx, req.SessionID, tenant.ID)
			}
			return tenant, rule, nil
		}
	}

	if subject != nil {
		tenant, err := r.store.FirstMembershipTenant(ctx, subject.ID)
		if err == nil {
			// Remember the choice so the next request skips the fallback.
			r.writeBackPin(ctx, req.SessionID, tenant.ID)
			return tenant, ruleFallback, nil
		}
		if !errors.Is(err, ErrTenantNotFound) {
			return nil, ruleFallback, err
		}
	}

	return nil, ruleNone, ErrNoResolution
}

// observe records the resolution outcome. Rule is which rule answered
// (or reached the error), status folds the error into a small label set.
func (r *Resolver) observe(rule string, start time.Time, err error) {
	if r.metrics == nil {
		return
	}
	status := "resolved"
	switch {
	case errors.Is(err, ErrNoResolution):
		status = "none"
	case IsAccessDenied(err):
		status = "denied"
	case errors.Is(err, ErrTenantNotFound):
		status = "not_found"
	case err != nil:
		status = "error"
	}
	r.metrics.ResolutionsTotal.WithLabelValues(rule, status).Inc()
	r.metrics.ResolutionDuration.WithLabelValues(rule).Observe(time.Since(start).Seconds())
}

func (r *Resolver) resolveExplicit(ctx context.Context, subject *auth.Subject, tenantID int64) (*Tenant, error) {
	tenant, err := r.store.TenantByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if subject == nil {
		return nil, &AccessDeniedError{TenantID: tenantID}
	}
	if subject.IsSuperadmin() {
		return tenant, nil
	}
	member, err := r.store.IsMember(ctx, subject.ID, tenantID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, &AccessDeniedError{SubjectID: subject.ID, TenantID: tenantID}
	}
	return tenant, nil
}

func (r *Resolver) resolvePinned(ctx context.Context, subject *auth.Subject, sessionID string) (*Tenant, error) {
	pinned, ok, err := r.sessions.PinnedTenant(ctx, sessionID)
	if err != nil {
		// A session-store outage must not take resolution down; the
		// remaining rules still apply.
		r.log().WithError(err).Warn("session pin lookup failed, skipping")
		return nil, nil
	}
	if !ok {
		return nil, nil
	}

	tenant, err := r.store.TenantByID(ctx, pinned)
	if errors.Is(err, ErrTenantNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	member, err := r.store.IsMember(ctx, subject.ID, pinned)
	if err != nil {
		return nil, err
	}
	if !member && !subject.IsSuperadmin() {
		// Membership was revoked since the pin was written.
		return nil, nil
	}
	return tenant, nil
}

func (r *Resolver) resolveHost(ctx context.Context, host string) (*Tenant, string, error) {
	host = normalizeHost(host)
	if host == "" || host == r.baseDomain {
		return nil, ruleNone, nil
	}

	rule := ruleDomain
	label, isSubdomain := r.subdomainLabel(host)
	if isSubdomain {
		rule = ruleSubdomain
	}

	if r.hostCache != nil {
		if id, ok := r.hostCache.Get(host); ok {
			r.countHostCache(true)
			tenant, err := r.store.TenantByID(ctx, id)
			if err == nil {
				return tenant, rule, nil
			}
			if !errors.Is(err, ErrTenantNotFound) {
				return nil, rule, err
			}
			r.hostCache.Forget(host)
		} else {
			r.countHostCache(false)
		}
	}

	var tenant *Tenant
	var err error
	if isSubdomain {
		tenant, err = r.store.TenantBySubdomain(ctx, label)
	} else {
		tenant, err = r.store.TenantByDomain(ctx, host)
	}
	if errors.Is(err, ErrTenantNotFound) {
		return nil, rule, nil
	}
	if err != nil {
		return nil, rule, err
	}

	if r.hostCache != nil {
		r.hostCache.Put(host, tenant.ID)
	}
	return tenant, rule, nil
}

func (r *Resolver) countHostCache(hit bool) {
	if r.metrics == nil {
		return
	}
	if hit {
		r.metrics.HostCacheHitsTotal.Inc()
	} else {
		r.metrics.HostCacheMissesTotal.Inc()
	}
}

// writeBackPin persists a host or fallback resolution off the request
// path, so the next request short-circuits at the pin rule. Losing the
// write is harmless, the same rule recomputes the same tenant.
func (r *Resolver) writeBackPin(ctx context.Context, sessionID string, tenantID int64) {
	if r.sessions == nil || sessionID == "" {
		return
	}
	logger := r.log()
	async.SafeGo(ctx, 5*time.Second, "session-pin-writeback", func(ctx context.Context) error {
		if err := r.sessions.PinTenant(ctx, sessionID, tenantID); err != nil {
			logger.WithError(err).Warn("failed to write back session pin")
		}
		return nil
	})
}

// subdomainLabel extracts the tenant label when host is a direct child of
// the platform base domain. Nested labels do not match.
func (r *Resolver) subdomainLabel(host string) (string, bool) {
	if r.baseDomain == "" {
		return "", false
	}
	suffix := "." + r.baseDomain
	if !strings.HasSuffix(host, suffix) {
		return "", false
	}
	label := strings.TrimSuffix(host, suffix)
	if label == "" || strings.Contains(label, ".") {
		return "", false
	}
	return label, true
}

func (r *Resolver) log() *observability.Logger {
	if r.logger != nil {
		return r.logger
	}
	return observability.FromContext(context.Background())
}

func normalizeHost(host string) string {
	host = strings.TrimSpace(strings.ToLower(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.TrimSuffix(host, ".")
}

// Describe renders the resolution signals for diagnostics.
func (req Request) String() string {
	return fmt.Sprintf("explicit=%d session=%q host=%q", req.ExplicitTenantID, req.SessionID, req.Host)
}
