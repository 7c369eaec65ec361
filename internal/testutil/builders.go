package testutil

import (
	"time"

	"github.com/Abhracodec/osint-recon/internal/domain/model"
)

// JobRequestBuilder provides a fluent interface for building JobRequest values for testing.
type JobRequestBuilder struct {
	req model.JobRequest
}

// NewJobRequest creates a new JobRequestBuilder with sensible defaults.
func NewJobRequest() *JobRequestBuilder {
	return &JobRequestBuilder{
		req: model.JobRequest{
			Target:      "example.com",
			TargetType:  model.TargetTypeDomain,
			Modules:     []string{"whois", "dns"},
			RateProfile: model.RateProfileLow,
		},
	}
}

// WithTarget sets the target and its type.
func (b *JobRequestBuilder) WithTarget(target string, targetType model.TargetType) *JobRequestBuilder {
	b.req.Target = target
	b.req.TargetType = targetType
	return b
}

// WithModules replaces the module list.
func (b *JobRequestBuilder) WithModules(modules ...string) *JobRequestBuilder {
	b.req.Modules = append([]string(nil), modules...)
	return b
}

// WithRateProfile sets the rate profile.
func (b *JobRequestBuilder) WithRateProfile(p model.RateProfile) *JobRequestBuilder {
	b.req.RateProfile = p
	return b
}

// WithTypedConsent attaches a typed consent attestation.
func (b *JobRequestBuilder) WithTypedConsent(value string) *JobRequestBuilder {
	b.req.Consent = &model.Consent{
		Type:      model.ConsentTypeTyped,
		Value:     value,
		Timestamp: TestTime(),
	}
	return b
}

// WithMetadata sets one metadata entry.
func (b *JobRequestBuilder) WithMetadata(key, value string) *JobRequestBuilder {
	if b.req.Metadata == nil {
		b.req.Metadata = map[string]string{}
	}
	b.req.Metadata[key] = value
	return b
}

// Build returns a copy of the built request.
func (b *JobRequestBuilder) Build() model.JobRequest {
	return b.req.Clone()
}

// TestTime returns a consistent timestamp for tests.
func TestTime() time.Time {
	return time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
}
