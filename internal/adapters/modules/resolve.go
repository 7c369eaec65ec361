package modules

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"sort"

	"github.com/Abhracodec/osint-recon/internal/domain/model"
)

// Resolver is the subset of *net.Resolver the resolve module uses.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
	LookupAddr(ctx context.Context, addr string) ([]string, error)
}

// Resolve checks that the target exists in DNS. It is blocking: a target that
// does not resolve fails the job before any other module runs against it.
type Resolve struct {
	resolver Resolver
}

// NewResolve builds the module; a nil resolver uses net.DefaultResolver.
func NewResolve(r Resolver) *Resolve {
	if r == nil {
		r = net.DefaultResolver
	}
	return &Resolve{resolver: r}
}

// Name implements Module.
func (m *Resolve) Name() string { return NameResolve }

// Blocking implements Module.
func (m *Resolve) Blocking() bool { return true }

// Active implements Module.
func (m *Resolve) Active() bool { return false }

// Execute implements Module.
func (m *Resolve) Execute(ctx context.Context, req model.JobRequest, progress ProgressFunc) ([]model.Finding, error) {
	if req.TargetType == model.TargetTypeIP {
		return m.reverse(ctx, req.Target, progress)
	}
	host := hostOf(req)
	if host == "" {
		progress(1)
		return nil, nil
	}

	addrs, err := m.resolver.LookupHost(ctx, host)
	progress(1)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
			return nil, &Error{Kind: model.ErrorKindModule, Msg: "target does not resolve: " + host}
		}
		return nil, &Error{Kind: model.ErrorKindModule, Msg: "dns lookup failed", Err: err}
	}
	sort.Strings(addrs)

	findings := []model.Finding{{
		Type:       "dns",
		Title:      "Target resolves",
		Severity:   model.SeverityInfo,
		Confidence: 100,
		Source:     "dns",
		Evidence:   map[string]any{"host": host, "addresses": addrs},
	}}
	for _, a := range addrs {
		ip, perr := netip.ParseAddr(a)
		if perr == nil && (ip.IsPrivate() || ip.IsLoopback()) {
			findings = append(findings, model.Finding{
				Type:        "dns",
				Title:       "Public name resolves to a non-routable address",
				Description: host + " points at " + a,
				Severity:    model.SeverityMedium,
				Confidence:  100,
				Source:      "dns",
				Evidence:    map[string]any{"host": host, "address": a},
				Recommendations: []string{
					"Remove internal addresses from public DNS zones",
				},
			})
		}
	}
	return findings, nil
}

func (m *Resolve) reverse(ctx context.Context, ip string, progress ProgressFunc) ([]model.Finding, error) {
	names, err := m.resolver.LookupAddr(ctx, ip)
	progress(1)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
			// IPs without PTR records are still valid targets.
			return nil, nil
		}
		return nil, &Error{Kind: model.ErrorKindModule, Msg: "reverse lookup failed", Err: err}
	}
	if len(names) == 0 {
		return nil, nil
	}
	sort.Strings(names)
	return []model.Finding{{
		Type:       "dns",
		Title:      "Reverse DNS names",
		Severity:   model.SeverityInfo,
		Confidence: 100,
		Source:     "dns",
		Evidence:   map[string]any{"address": ip, "names": names},
	}}, nil
}
