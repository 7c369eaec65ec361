package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRequest() JobRequest {
	return JobRequest{
		Target:     "example.com",
		TargetType: TargetTypeDomain,
		Modules:    []string{"subdomains", "whois"},
	}
}

func TestJobRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *JobRequest)
		field   string
		wantErr bool
	}{
		{name: "valid domain", mutate: func(*JobRequest) {}},
		{name: "missing target", mutate: func(r *JobRequest) { r.Target = "" }, field: "target", wantErr: true},
		{name: "missing target type", mutate: func(r *JobRequest) { r.TargetType = "" }, field: "target_type", wantErr: true},
		{name: "unknown target type", mutate: func(r *JobRequest) { r.TargetType = "host" }, field: "target_type", wantErr: true},
		{name: "no modules", mutate: func(r *JobRequest) { r.Modules = nil }, field: "modules", wantErr: true},
		{name: "blank module", mutate: func(r *JobRequest) { r.Modules = []string{"whois", ""} }, field: "modules", wantErr: true},
		{name: "duplicate module", mutate: func(r *JobRequest) { r.Modules = []string{"whois", "whois"} }, field: "modules", wantErr: true},
		{name: "domain with path", mutate: func(r *JobRequest) { r.Target = "example.com/x" }, field: "target", wantErr: true},
		{name: "bare tld", mutate: func(r *JobRequest) { r.Target = "com" }, field: "target", wantErr: true},
		{
			name:   "valid ip",
			mutate: func(r *JobRequest) { r.Target, r.TargetType = "192.0.2.10", TargetTypeIP },
		},
		{
			name:    "invalid ip",
			mutate:  func(r *JobRequest) { r.Target, r.TargetType = "300.1.1.1", TargetTypeIP },
			field:   "target",
			wantErr: true,
		},
		{
			name:   "valid email",
			mutate: func(r *JobRequest) { r.Target, r.TargetType = "ops@example.com", TargetTypeEmail },
		},
		{
			name:    "invalid email",
			mutate:  func(r *JobRequest) { r.Target, r.TargetType = "Ops <ops@example.com>", TargetTypeEmail },
			field:   "target",
			wantErr: true,
		},
		{
			name:   "person is free text",
			mutate: func(r *JobRequest) { r.Target, r.TargetType = "Jane Doe", TargetTypePerson },
		},
		{
			name:    "bad rate profile",
			mutate:  func(r *JobRequest) { r.RateProfile = "extreme" },
			field:   "rate_profile",
			wantErr: true,
		},
		{
			name:    "ip-range scope without cidr",
			mutate:  func(r *JobRequest) { r.Scope = &Scope{Type: ScopeTypeIPRange} },
			field:   "scope.cidr_range",
			wantErr: true,
		},
		{
			name:   "ip-range scope with cidr",
			mutate: func(r *JobRequest) { r.Scope = &Scope{Type: ScopeTypeIPRange, CIDRRange: "10.0.0.0/24"} },
		},
		{
			name:    "scope depth too large",
			mutate:  func(r *JobRequest) { r.Scope = &Scope{MaxDepth: 9} },
			field:   "scope.max_depth",
			wantErr: true,
		},
		{
			name:    "consent without value",
			mutate:  func(r *JobRequest) { r.Consent = &Consent{Type: ConsentTypeTyped} },
			field:   "consent.value",
			wantErr: true,
		},
		{
			name:    "target too long",
			mutate:  func(r *JobRequest) { r.Target, r.TargetType = strings.Repeat("a", 300), TargetTypePerson },
			field:   "target",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)
			err := req.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var fe *FieldError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tt.field, fe.Field)
		})
	}
}

func TestJobRequest_Normalize(t *testing.T) {
	req := JobRequest{
		Target:     "  Example.COM. ",
		TargetType: " Domain ",
		Modules:    []string{" whois "},
	}

	req.Normalize()

	assert.Equal(t, "example.com", req.Target)
	assert.Equal(t, TargetTypeDomain, req.TargetType)
	assert.Equal(t, []string{"whois"}, req.Modules)
	assert.Equal(t, RateProfileLow, req.RateProfile)
	assert.NoError(t, req.Validate())
}

func TestDecodeJobRequest_RejectsUnknownFields(t *testing.T) {
	_, err := DecodeJobRequest(strings.NewReader(`{"target":"example.com","target_type":"domain","modules":["whois"],"priority":5}`))
	var fe *FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "request", fe.Field)

	req, err := DecodeJobRequest(strings.NewReader(`{"target":"example.com","target_type":"domain","modules":["whois"]}`))
	require.NoError(t, err)
	assert.Equal(t, "example.com", req.Target)
}

func TestJobRequest_ConsentHashStable(t *testing.T) {
	a := validRequest()
	a.Consent = &Consent{Type: ConsentTypeTyped, Value: "I AGREE"}
	b := a.Clone()

	assert.Equal(t, a.ConsentHash(), b.ConsentHash())
	assert.Len(t, a.ConsentHash(), 64)

	b.Consent.Value = "other"
	assert.NotEqual(t, a.ConsentHash(), b.ConsentHash())

	c := validRequest()
	assert.Empty(t, c.ConsentHash())
}

func TestRateProfile_DelayFactor(t *testing.T) {
	assert.InDelta(t, 1.0, RateProfileLow.DelayFactor(), 0.001)
	assert.InDelta(t, 0.5, RateProfileMedium.DelayFactor(), 0.001)
	assert.InDelta(t, 0.25, RateProfileHigh.DelayFactor(), 0.001)
}
