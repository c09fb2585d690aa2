// Package tenants implements tenant records and request-to-tenant
// resolution for the multi-tenant platform.
package tenants

import (
	"errors"
	"fmt"
	"time"

	"github.com/origolabs/origo/pkg/plans"
)

// DomainState tracks the lifecycle of a tenant's custom domain.
type DomainState string

const (
	// DomainUnconfigured means no custom domain is attached.
	DomainUnconfigured DomainState = "unconfigured"
	// DomainPending means a domain is attached but ownership is unproven.
	DomainPending DomainState = "pending"
	// DomainVerified means ownership was proven via DNS. Only verified
	// domains participate in request resolution.
	DomainVerified DomainState = "verified"
)

// Tenant is one isolated site on the platform.
type Tenant struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Slug      string     `json:"slug"`
	Subdomain string     `json:"subdomain"`
	Tier      plans.Tier `json:"tier"`

	// Custom domain lifecycle. Domain is empty while unconfigured.
	Domain            string      `json:"domain,omitempty"`
	DomainState       DomainState `json:"domain_state"`
	VerificationToken string      `json:"-"`
	VerifiedAt        *time.Time  `json:"verified_at,omitempty"`
	LastDomainAttempt *time.Time  `json:"last_domain_attempt,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasVerifiedDomain reports whether the tenant's custom domain is usable
// for routing.
func (t *Tenant) HasVerifiedDomain() bool {
	return t.Domain != "" && t.DomainState == DomainVerified
}

// ErrTenantNotFound is returned when no tenant matches a lookup.
var ErrTenantNotFound = errors.New("tenant not found")

// ErrNoResolution is returned when no resolution rule produces a tenant
// for a request. It wraps ErrTenantNotFound, so callers matching the
// broader class catch it too.
var ErrNoResolution = fmt.Errorf("no tenant resolved for request: %w", ErrTenantNotFound)

// AccessDeniedError reports a subject explicitly addressing a tenant it
// does not belong to. A stale session pin never produces this error; only
// an id the caller attached to the request does.
type AccessDeniedError struct {
	SubjectID int64
	TenantID  int64
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("subject %d has no access to tenant %d", e.SubjectID, e.TenantID)
}

// IsAccessDenied checks if an error is an AccessDeniedError.
func IsAccessDenied(err error) bool {
	var target *AccessDeniedError
	return errors.As(err, &target)
}
