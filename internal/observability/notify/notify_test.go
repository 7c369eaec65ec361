package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abhracodec/osint-recon/internal/domain/model"
	"github.com/Abhracodec/osint-recon/internal/testutil"
)

func failedRecord(kind model.ErrorKind) *model.JobRecord {
	req := testutil.NewJobRequest().WithTypedConsent("I AGREE").Build()
	req.Metadata = map[string]string{"ticket": "SEC-1"}
	rec := model.NewJobRecord("job-1", req, testutil.TestTime(), time.Hour)
	done := testutil.TestTime().Add(time.Minute)
	rec.Status = model.JobStatusFailed
	rec.CompletedAt = &done
	rec.Attempts = 2
	rec.Error = &model.JobError{Kind: kind, Message: "boom", Module: "whois"}
	return rec
}

func TestPayloadFromRecord(t *testing.T) {
	rec := failedRecord(model.ErrorKindModule)
	p := PayloadFromRecord(rec)

	assert.Equal(t, "job-1", p.JobID)
	assert.Equal(t, "example.com", p.Target)
	assert.Equal(t, "domain", p.TargetType)
	assert.Equal(t, "whois", p.Module)
	assert.Equal(t, "ModuleError", p.ErrorKind)
	assert.Equal(t, "boom", p.Error)
	assert.Equal(t, 2, p.Attempts)
	assert.Equal(t, SeverityError, p.Severity)
	assert.Equal(t, *rec.CompletedAt, p.OccurredAt)
	assert.Equal(t, "SEC-1", p.Metadata["ticket"])

	p.Metadata["ticket"] = "changed"
	assert.Equal(t, "SEC-1", rec.Request.Metadata["ticket"], "metadata is copied")
}

func TestPayloadFromRecord_InfrastructureFailuresAreCritical(t *testing.T) {
	assert.Equal(t, SeverityCritical, PayloadFromRecord(failedRecord(model.ErrorKindInternal)).Severity)

	rec := failedRecord(model.ErrorKindInternal)
	rec.Error = nil
	rec.CompletedAt = nil
	p := PayloadFromRecord(rec)
	assert.Equal(t, SeverityCritical, p.Severity)
	assert.Equal(t, rec.UpdatedAt, p.OccurredAt)
	assert.Empty(t, p.ErrorKind)
}

func TestPoster_RetriesUntilSuccess(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	p := NewPoster("hook", srv.Client(), time.Second, 2)
	require.NoError(t, p.PostJSON(context.Background(), srv.URL, map[string]string{"a": "b"}))
	assert.Equal(t, int32(3), calls.Load())
}

func TestPoster_StopsOnContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	p := NewPoster("hook", srv.Client(), time.Second, 5)
	p.Client.Transport = roundTripFunc(func(r *http.Request) (*http.Response, error) {
		cancel()
		return http.DefaultTransport.RoundTrip(r)
	})

	err := p.PostJSON(ctx, srv.URL, map[string]string{})
	require.ErrorIs(t, err, context.Canceled)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestNewPoster_Defaults(t *testing.T) {
	p := NewPoster("hook", nil, 0, -1)
	assert.Equal(t, DefaultTimeout, p.Client.Timeout)
	assert.Zero(t, p.RetryLimit)
	assert.Equal(t, "fallback", Fallback("  ", "fallback"))
	assert.Equal(t, "v", Fallback("v", "fallback"))
}
