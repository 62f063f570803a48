package endpoint

import (
	"context"
	"fmt"
	"net"
)

// Resolver produces the current set of reachable endpoints for a profile.
// DNSResolver backs production profiles; StaticResolver backs tests and
// profiles configured with a fixed endpoint list.
type Resolver interface {
	Resolve(ctx context.Context) ([]string, error)
}

// DNSResolver resolves a host:port pair to one endpoint string per A/AAAA
// record returned, refreshed on every call to Resolve.
type DNSResolver struct {
	host     string
	port     string
	resolver *net.Resolver
}

// NewDNSResolver builds a resolver for host:port using the standard
// library's resolver (no ecosystem DNS client in the corpus fits this
// narrowly; see DESIGN.md).
func NewDNSResolver(host, port string) *DNSResolver {
	return &DNSResolver{host: host, port: port, resolver: net.DefaultResolver}
}

func (r *DNSResolver) Resolve(ctx context.Context) ([]string, error) {
	addrs, err := r.resolver.LookupHost(ctx, r.host)
	if err != nil {
		return nil, fmt.Errorf("endpoint: dns lookup for %s failed: %w", r.host, err)
	}
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, net.JoinHostPort(a, r.port))
	}
	return out, nil
}

// StaticResolver always returns the same fixed list; the tests use it in
// place of DNS.
type StaticResolver struct {
	Endpoints []string
}

func (r *StaticResolver) Resolve(context.Context) ([]string, error) {
	out := make([]string, len(r.Endpoints))
	copy(out, r.Endpoints)
	return out, nil
}
