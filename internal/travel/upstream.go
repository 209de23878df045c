// Package travel holds the clients for the third-party travel services and
// the plumbing they share: per-call timeouts, bounded retries and a circuit
// breaker per upstream.
package travel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/flynn-ai/tripwise/internal/errors"
)

// Options configures an Upstream.
type Options struct {
	// Timeout bounds each outbound attempt
	Timeout time.Duration

	// Retries is the number of extra attempts for transient failures
	Retries int

	// BreakerThreshold is the consecutive failures that open the breaker (0 = 5)
	BreakerThreshold int

	// HTTPClient overrides the default client (tests)
	HTTPClient *http.Client
}

// Upstream performs HTTP calls against one third-party service.
type Upstream struct {
	name    string
	code    string
	client  *http.Client
	timeout time.Duration
	policy  *errors.Policy
	breaker *errors.CircuitBreaker
}

// NewUpstream creates an Upstream. code is the AppError code used for failures.
func NewUpstream(name, code string, opts Options) *Upstream {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	threshold := opts.BreakerThreshold
	if threshold <= 0 {
		threshold = 5
	}

	return &Upstream{
		name:    name,
		code:    code,
		client:  client,
		timeout: timeout,
		policy:  errors.APIPolicy(opts.Retries),
		breaker: errors.NewCircuitBreaker(name, &errors.CircuitBreakerConfig{
			MaxFailures:      threshold,
			ResetTimeout:     30 * time.Second,
			HalfOpenAttempts: 1,
		}),
	}
}

// Name returns the service name.
func (u *Upstream) Name() string {
	return u.name
}

// Breaker exposes the circuit breaker state.
func (u *Upstream) Breaker() *errors.CircuitBreaker {
	return u.breaker
}

// GetJSON issues a GET and decodes a 2xx JSON body into out.
func (u *Upstream) GetJSON(ctx context.Context, url string, out any) error {
	body, err := u.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	})
	if err != nil {
		return err
	}
	return u.decode(body, out)
}

// PostJSON issues a POST with a JSON payload and decodes the response into out.
func (u *Upstream) PostJSON(ctx context.Context, url string, headers map[string]string, payload, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, u.code, "failed to encode "+u.name+" request", errors.CategoryPermanent)
	}

	body, err := u.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		return req, nil
	})
	if err != nil {
		return err
	}
	return u.decode(body, out)
}

// Response is a fully read 2xx response.
type Response struct {
	Body        []byte
	ContentType string
}

// Do runs one logical request through the breaker and retry policy. build is
// called once per attempt with a context bounded by the per-call timeout.
func (u *Upstream) Do(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) (*Response, error) {
	return errors.ExecuteCircuitBreakerWithResult(u.breaker, func() (*Response, error) {
		return errors.DoWithResult(ctx, u.policy, func() (*Response, error) {
			return u.attempt(ctx, build)
		})
	})
}

func (u *Upstream) attempt(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	req, err := build(ctx)
	if err != nil {
		return nil, errors.Wrap(err, u.code, "failed to build "+u.name+" request", errors.CategoryPermanent)
	}
	req.Header.Set("User-Agent", "tripwise/1.0 (+https://github.com/flynn-ai/tripwise)")

	resp, err := u.client.Do(req)
	if err != nil {
		if errors.IsTimeout(err) {
			return nil, errors.Wrap(err, errors.CodeNetworkTimeout, fmt.Sprintf("%s timed out after %v", u.name, u.timeout), errors.CategoryTemporary)
		}
		return nil, errors.Wrap(err, errors.CodeNetworkUnavailable, u.name+" unreachable", errors.CategoryTemporary)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeNetworkUnavailable, "failed to read "+u.name+" response", errors.CategoryTemporary)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.FromStatus(u.code, u.name, resp.StatusCode, body)
	}
	return &Response{Body: body, ContentType: resp.Header.Get("Content-Type")}, nil
}

func (u *Upstream) decode(resp *Response, out any) error {
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return errors.NewBuilder(u.code, "failed to parse "+u.name+" response").
			Permanent().
			Wrap(err).
			Build()
	}
	return nil
}
