// Package domains implements custom-domain attachment and DNS ownership
// verification for tenants.
package domains

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/origolabs/origo/pkg/tenants"
)

// TokenPrefix is the fixed prefix of every verification token.
const TokenPrefix = "origo-verify-"

// VerificationHostPrefix is the DNS label probed first, ahead of the
// domain apex.
const VerificationHostPrefix = "_origo-verify."

// ErrInvalidDomainFormat is returned when a domain fails syntax checks.
var ErrInvalidDomainFormat = errors.New("invalid domain format")

// ErrNoDomainConfigured is returned by verification when the tenant has
// no custom domain attached.
var ErrNoDomainConfigured = errors.New("no custom domain configured")

// AlreadyBoundError reports a domain already verified by another tenant.
// Pending claims do not produce this error; they are displaced instead.
type AlreadyBoundError struct {
	Domain   string
	TenantID int64
}

func (e *AlreadyBoundError) Error() string {
	return fmt.Sprintf("domain %s is already verified by tenant %d", e.Domain, e.TenantID)
}

// IsAlreadyBound checks if an error is an AlreadyBoundError.
func IsAlreadyBound(err error) bool {
	var target *AlreadyBoundError
	return errors.As(err, &target)
}

// Remediation tells the tenant operator exactly which DNS record to
// publish.
type Remediation struct {
	RecordType string `json:"record_type"`
	Host       string `json:"host"`
	Value      string `json:"value"`
}

// Failure describes why a verification attempt did not succeed. Both a
// missing record and a DNS transport error are retryable; the Reason
// tells the operator which one happened.
type Failure struct {
	Reason      string      `json:"reason"`
	Retryable   bool        `json:"retryable"`
	Remediation Remediation `json:"remediation"`
}

// Result is the outcome of one verification attempt.
type Result struct {
	Domain   string              `json:"domain"`
	State    tenants.DomainState `json:"state"`
	Verified bool                `json:"verified"`
	Failure  *Failure            `json:"failure,omitempty"`
}

// domainPattern accepts lowercase dotted hostnames: letters, digits and
// hyphens per label, at least two labels, no leading or trailing hyphen.
var domainPattern = regexp.MustCompile(`^([a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?\.)+[a-z]{2,}$`)

// ValidateDomain checks the syntax of a candidate custom domain.
func ValidateDomain(domain string) error {
	if len(domain) == 0 || len(domain) > 253 {
		return ErrInvalidDomainFormat
	}
	if !domainPattern.MatchString(domain) {
		return ErrInvalidDomainFormat
	}
	return nil
}

// RemediationFor builds the TXT record instruction for a tenant's
// pending domain.
func RemediationFor(domain, token string) Remediation {
	return Remediation{
		RecordType: "TXT",
		Host:       VerificationHostPrefix + domain,
		Value:      token,
	}
}
