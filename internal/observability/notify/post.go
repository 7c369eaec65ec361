package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout bounds one delivery attempt when a sink is built without a client.
const DefaultTimeout = 5 * time.Second

// retryStep is the linear backoff unit between delivery attempts.
const retryStep = 200 * time.Millisecond

// Poster delivers JSON documents to a webhook-style endpoint with retries.
type Poster struct {
	Client     *http.Client
	RetryLimit int
	// Name labels errors, e.g. "slack".
	Name string
}

// NewPoster returns a Poster with a timeout-bound client when hc is nil.
func NewPoster(name string, hc *http.Client, timeout time.Duration, retryLimit int) Poster {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	return Poster{Client: hc, RetryLimit: max(retryLimit, 0), Name: name}
}

// PostJSON encodes doc and posts it to url, retrying non-2xx responses and
// transport errors up to RetryLimit more times.
func (p Poster) PostJSON(ctx context.Context, url string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", p.Name, err)
	}

	attempts := p.RetryLimit + 1
	var lastErr error
	for attempt := range attempts {
		if lastErr = p.post(ctx, url, body); lastErr == nil {
			return nil
		}
		if attempt == attempts-1 {
			break
		}
		timer := time.NewTimer(time.Duration(attempt+1) * retryStep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}

func (p Poster) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", p.Name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", p.Name, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096))
		closeErr := resp.Body.Close()
		if readErr != nil {
			return errors.Join(fmt.Errorf("read %s error response: %w", p.Name, readErr), closeErr)
		}
		return fmt.Errorf("%s %s: %s", p.Name, resp.Status, strings.TrimSpace(string(respBody)))
	}

	_, drainErr := io.Copy(io.Discard, resp.Body)
	closeErr := resp.Body.Close()
	if drainErr != nil {
		return errors.Join(fmt.Errorf("drain %s response body: %w", p.Name, drainErr), closeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close response body: %w", closeErr)
	}
	return nil
}

// Fallback returns def when value is blank.
func Fallback(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return value
}
