package modules

import (
	"context"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/Abhracodec/osint-recon/internal/domain/model"
)

// Module names known to the default registry.
const (
	NameResolve         = "resolve"
	NameSubdomains      = "subdomains"
	NameTechFingerprint = "techFingerprint"
	NameSSLScan         = "sslScan"
	NameWhois           = "whois"
	NamePortScan        = "portScan"
	NameWebSearch       = "webSearch"
)

const simulatedSteps = 4

// Simulated is a demo module that waits for a configured delay, scaled by the
// request's rate profile, then returns canned findings built from the target.
type Simulated struct {
	name     string
	weight   float64
	blocking bool
	active   bool
	delay    time.Duration
	build    func(req model.JobRequest) []model.Finding
}

// Name implements Module.
func (s *Simulated) Name() string { return s.name }

// Blocking implements Module.
func (s *Simulated) Blocking() bool { return s.blocking }

// Active implements Module.
func (s *Simulated) Active() bool { return s.active }

// Execute implements Module.
func (s *Simulated) Execute(ctx context.Context, req model.JobRequest, progress ProgressFunc) ([]model.Finding, error) {
	total := time.Duration(float64(s.delay) * s.weight * req.RateProfile.DelayFactor())
	step := total / simulatedSteps
	for i := 1; i <= simulatedSteps; i++ {
		if err := sleepCtx(ctx, step); err != nil {
			return nil, err
		}
		progress(float64(i) / simulatedSteps)
	}
	return s.build(req), nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// DemoModules returns the simulated module set. delay is the unit pause; each
// module weighs it the way the demo pipeline always has.
func DemoModules(delay time.Duration) []Module {
	return []Module{
		&Simulated{name: NameResolve, weight: 0.5, blocking: true, delay: delay, build: demoResolve},
		&Simulated{name: NameSubdomains, weight: 2, delay: delay, build: demoSubdomains},
		&Simulated{name: NameTechFingerprint, weight: 2, delay: delay, build: demoTech},
		&Simulated{name: NameSSLScan, weight: 1, delay: delay, build: demoSSL},
		&Simulated{name: NameWhois, weight: 1, delay: delay, build: demoWhois},
		&Simulated{name: NamePortScan, weight: 2, active: true, delay: delay, build: demoPorts},
		&Simulated{name: NameWebSearch, weight: 1, delay: delay, build: demoWebSearch},
	}
}

// hostOf returns the DNS name a target refers to, or "" when it has none.
func hostOf(req model.JobRequest) string {
	switch req.TargetType {
	case model.TargetTypeDomain:
		return req.Target
	case model.TargetTypeEmail:
		if at := strings.LastIndexByte(req.Target, '@'); at >= 0 {
			return req.Target[at+1:]
		}
	}
	return ""
}

func apexOf(host string) string {
	apex, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return apex
}

func demoResolve(req model.JobRequest) []model.Finding {
	host := hostOf(req)
	if host == "" {
		return nil
	}
	return []model.Finding{{
		Type:       "dns",
		Title:      "Target resolves",
		Severity:   model.SeverityInfo,
		Confidence: 100,
		Source:     "dns",
		Evidence:   map[string]any{"host": host, "addresses": []string{"93.184.216.34"}},
	}}
}

func demoSubdomains(req model.JobRequest) []model.Finding {
	host := hostOf(req)
	if host == "" {
		return nil
	}
	apex := apexOf(host)
	return []model.Finding{
		{
			Type:       "subdomain",
			Title:      "www." + apex,
			Severity:   model.SeverityInfo,
			Confidence: 90,
			Source:     "crt.sh",
			Evidence:   map[string]any{"host": "www." + apex, "ip": "93.184.216.34"},
		},
		{
			Type:       "subdomain",
			Title:      "mail." + apex,
			Severity:   model.SeverityLow,
			Confidence: 80,
			Source:     "certificate-transparency",
			Evidence:   map[string]any{"host": "mail." + apex, "ip": "93.184.216.34"},
			Recommendations: []string{
				"Confirm the mail host is intended to be publicly discoverable",
			},
		},
	}
}

func demoTech(req model.JobRequest) []model.Finding {
	if hostOf(req) == "" {
		return nil
	}
	return []model.Finding{
		{
			Type:       "technology",
			Title:      "Apache",
			Severity:   model.SeverityInfo,
			Confidence: 90,
			Evidence:   map[string]any{"category": "Web Server"},
		},
		{
			Type:        "technology",
			Title:       "PHP",
			Description: "Server-side language version is disclosed in response headers",
			Severity:    model.SeverityMedium,
			Confidence:  85,
			Evidence:    map[string]any{"category": "Language"},
			Recommendations: []string{
				"Suppress the X-Powered-By header",
			},
		},
	}
}

func demoSSL(req model.JobRequest) []model.Finding {
	host := hostOf(req)
	if host == "" {
		return nil
	}
	return []model.Finding{{
		Type:        "ssl",
		Title:       "Certificate issued by DigiCert Inc",
		Description: "Certificate validity window has lapsed",
		Severity:    model.SeverityHigh,
		Confidence:  95,
		Evidence: map[string]any{
			"issuer":    "DigiCert Inc",
			"validFrom": "2023-01-01",
			"validTo":   "2024-01-01",
			"sans":      []string{host, "www." + host},
		},
		Recommendations: []string{"Renew the certificate"},
	}}
}

func demoWhois(req model.JobRequest) []model.Finding {
	host := hostOf(req)
	if host == "" {
		return nil
	}
	return []model.Finding{{
		Type:       "whois",
		Title:      "Registration record for " + apexOf(host),
		Severity:   model.SeverityInfo,
		Confidence: 100,
		Evidence:   map[string]any{"registrar": "Example Registrar", "created": "2010-01-01"},
	}}
}

func demoPorts(req model.JobRequest) []model.Finding {
	if req.TargetType == model.TargetTypePerson {
		return nil
	}
	return []model.Finding{
		{
			Type:       "port",
			Title:      "80/tcp http",
			Severity:   model.SeverityLow,
			Confidence: 100,
			Evidence:   map[string]any{"port": 80, "proto": "tcp", "service": "http"},
			Recommendations: []string{
				"Redirect plain HTTP to HTTPS",
			},
		},
		{
			Type:       "port",
			Title:      "443/tcp https",
			Severity:   model.SeverityInfo,
			Confidence: 100,
			Evidence:   map[string]any{"port": 443, "proto": "tcp", "service": "https"},
		},
	}
}

func demoWebSearch(model.JobRequest) []model.Finding {
	return []model.Finding{{
		Type:        "mock",
		Title:       "Demo result",
		Description: "No real results available (demo fallback)",
		Severity:    model.SeverityInfo,
		Source:      "mock",
	}}
}
