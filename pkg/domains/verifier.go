package domains

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/origolabs/origo/pkg/observability"
	"github.com/origolabs/origo/pkg/tenants"
)

// Store is the persistence surface for domain verification.
type Store interface {
	TenantByID(ctx context.Context, id int64) (*tenants.Tenant, error)
	TenantByDomainAnyState(ctx context.Context, domain string) (*tenants.Tenant, error)
	UpdateDomain(ctx context.Context, t *tenants.Tenant) error
	ListPendingDomainTenants(ctx context.Context) ([]tenants.Tenant, error)
}

// Verifier drives the custom-domain lifecycle: attach, prove ownership
// via a DNS TXT record, detach.
type Verifier struct {
	store     Store
	dns       TXTResolver
	hostCache *tenants.HostCache
	logger    *observability.Logger
	metrics   *observability.Metrics
}

// NewVerifier creates a domain verifier. hostCache and metrics may be nil.
func NewVerifier(store Store, dns TXTResolver, hostCache *tenants.HostCache, logger *observability.Logger, metrics *observability.Metrics) *Verifier {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Verifier{store: store, dns: dns, hostCache: hostCache, logger: logger, metrics: metrics}
}

// Configure attaches a custom domain to a tenant and immediately probes
// DNS, so an operator who published the record ahead of time is verified
// in one step.
//
// A domain verified by another tenant is refused with AlreadyBoundError.
// Another tenant's unverified claim on the same domain is displaced; an
// unproven claim holds no ground against a new one.
//
// Re-configuring the tenant's current domain keeps its existing token,
// so instructions already handed to the operator stay valid.
func (v *Verifier) Configure(ctx context.Context, tenantID int64, domain string) (*Result, error) {
	domain = strings.ToLower(strings.TrimSpace(strings.TrimSuffix(domain, ".")))
	if err := ValidateDomain(domain); err != nil {
		return nil, err
	}

	tenant, err := v.store.TenantByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if tenant.Domain == domain && tenant.DomainState == tenants.DomainVerified {
		return &Result{Domain: domain, State: tenants.DomainVerified, Verified: true}, nil
	}

	holder, err := v.store.TenantByDomainAnyState(ctx, domain)
	if err != nil && !errors.Is(err, tenants.ErrTenantNotFound) {
		return nil, err
	}
	if holder != nil && holder.ID != tenantID {
		if holder.DomainState == tenants.DomainVerified {
			return nil, &AlreadyBoundError{Domain: domain, TenantID: holder.ID}
		}
		if err := v.detach(ctx, holder); err != nil {
			return nil, fmt.Errorf("failed to displace pending claim: %w", err)
		}
		v.logger.WithFields(map[string]interface{}{
			"domain":          domain,
			"displaced_tenant": holder.ID,
			"tenant_id":       tenantID,
		}).Info("displaced pending domain claim")
	}

	if tenant.Domain != domain || tenant.VerificationToken == "" {
		token, err := generateToken()
		if err != nil {
			return nil, err
		}
		tenant.VerificationToken = token
	}
	if tenant.Domain != domain {
		v.forgetHost(tenant.Domain)
	}
	tenant.Domain = domain
	tenant.DomainState = tenants.DomainPending
	tenant.VerifiedAt = nil
	tenant.LastDomainAttempt = nil
	if err := v.store.UpdateDomain(ctx, tenant); err != nil {
		return nil, err
	}

	return v.attempt(ctx, tenant)
}

// Verify runs one verification attempt for the tenant's pending domain.
// Verifying an already-verified domain is a no-op success; no DNS query
// runs and the token is never rotated.
func (v *Verifier) Verify(ctx context.Context, tenantID int64) (*Result, error) {
	tenant, err := v.store.TenantByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if tenant.Domain == "" {
		return nil, ErrNoDomainConfigured
	}
	if tenant.DomainState == tenants.DomainVerified {
		return &Result{Domain: tenant.Domain, State: tenants.DomainVerified, Verified: true}, nil
	}
	return v.attempt(ctx, tenant)
}

// Status reports the tenant's current domain configuration, including
// the DNS instruction while verification is pending.
func (v *Verifier) Status(ctx context.Context, tenantID int64) (*Result, error) {
	tenant, err := v.store.TenantByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if tenant.Domain == "" {
		return &Result{State: tenants.DomainUnconfigured}, nil
	}
	result := &Result{
		Domain:   tenant.Domain,
		State:    tenant.DomainState,
		Verified: tenant.DomainState == tenants.DomainVerified,
	}
	if tenant.DomainState == tenants.DomainPending {
		result.Failure = &Failure{
			Reason:      "verification record not yet confirmed",
			Retryable:   true,
			Remediation: RemediationFor(tenant.Domain, tenant.VerificationToken),
		}
	}
	return result, nil
}

// Remove detaches the tenant's custom domain.
func (v *Verifier) Remove(ctx context.Context, tenantID int64) error {
	tenant, err := v.store.TenantByID(ctx, tenantID)
	if err != nil {
		return err
	}
	if tenant.Domain == "" {
		return nil
	}
	return v.detach(ctx, tenant)
}

// attempt probes DNS for the verification token and persists the
// outcome. The dedicated _origo-verify label is checked first, then the
// domain apex; a token anywhere in either answer set counts.
func (v *Verifier) attempt(ctx context.Context, tenant *tenants.Tenant) (*Result, error) {
	now := time.Now()
	tenant.LastDomainAttempt = &now

	probeStart := time.Now()
	found, transportErr := v.probe(ctx, tenant.Domain, tenant.VerificationToken)
	if v.metrics != nil {
		v.metrics.DNSProbeDuration.Observe(time.Since(probeStart).Seconds())
	}
	v.countAttempt(found, transportErr)
	if found {
		tenant.DomainState = tenants.DomainVerified
		tenant.VerifiedAt = &now
		if err := v.store.UpdateDomain(ctx, tenant); err != nil {
			return nil, err
		}
		v.forgetHost(tenant.Domain)
		v.logger.WithFields(map[string]interface{}{
			"tenant_id": tenant.ID,
			"domain":    tenant.Domain,
		}).Info("custom domain verified")
		return &Result{Domain: tenant.Domain, State: tenants.DomainVerified, Verified: true}, nil
	}

	tenant.DomainState = tenants.DomainPending
	if err := v.store.UpdateDomain(ctx, tenant); err != nil {
		return nil, err
	}

	failure := &Failure{
		Reason:      "verification record not found",
		Retryable:   true,
		Remediation: RemediationFor(tenant.Domain, tenant.VerificationToken),
	}
	if transportErr != nil {
		failure.Reason = fmt.Sprintf("dns lookup failed: %v", transportErr)
	}
	return &Result{Domain: tenant.Domain, State: tenants.DomainPending, Failure: failure}, nil
}

// probe returns whether the token was found, and the transport error if
// any lookup failed for reasons other than the name not existing.
func (v *Verifier) probe(ctx context.Context, domain, token string) (bool, error) {
	var transportErr error
	for _, name := range []string{VerificationHostPrefix + domain, domain} {
		records, err := v.dns.LookupTXT(ctx, name)
		if err != nil {
			if !isNXDomain(err) {
				transportErr = err
			}
			continue
		}
		for _, record := range records {
			if token != "" && strings.Contains(record, token) {
				return true, nil
			}
		}
	}
	return false, transportErr
}

func (v *Verifier) detach(ctx context.Context, tenant *tenants.Tenant) error {
	domain := tenant.Domain
	tenant.Domain = ""
	tenant.DomainState = tenants.DomainUnconfigured
	tenant.VerificationToken = ""
	tenant.VerifiedAt = nil
	tenant.LastDomainAttempt = nil
	if err := v.store.UpdateDomain(ctx, tenant); err != nil {
		return err
	}
	v.forgetHost(domain)
	return nil
}

func (v *Verifier) countAttempt(found bool, transportErr error) {
	if v.metrics == nil {
		return
	}
	outcome := "failed"
	switch {
	case found:
		outcome = "verified"
	case transportErr != nil:
		outcome = "error"
	}
	v.metrics.DomainVerificationsTotal.WithLabelValues(outcome).Inc()
}

func (v *Verifier) forgetHost(domain string) {
	if v.hostCache != nil && domain != "" {
		v.hostCache.Forget(domain)
	}
}

// generateToken builds a fresh verification token with 128 bits of
// entropy.
func generateToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate verification token: %w", err)
	}
	return TokenPrefix + hex.EncodeToString(buf), nil
}
