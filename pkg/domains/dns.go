package domains

import (
	"context"
	"net"
	"time"
)

// TXTResolver looks up TXT records for a name. The production
// implementation wraps net.Resolver; tests substitute a fake.
type TXTResolver interface {
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// netTXTResolver resolves through the system DNS with a bounded timeout
// per lookup.
type netTXTResolver struct {
	resolver *net.Resolver
	timeout  time.Duration
}

// NewTXTResolver creates a DNS TXT resolver. A zero timeout defaults to
// five seconds.
func NewTXTResolver(timeout time.Duration) TXTResolver {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &netTXTResolver{resolver: &net.Resolver{}, timeout: timeout}
}

func (r *netTXTResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.resolver.LookupTXT(ctx, name)
}

// isNXDomain reports whether a lookup error means "name does not exist"
// as opposed to a transport failure. A missing name is a definitive
// answer; a timeout is not.
func isNXDomain(err error) bool {
	if dnsErr, ok := err.(*net.DNSError); ok {
		return dnsErr.IsNotFound
	}
	return false
}
