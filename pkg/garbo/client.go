// Package garbo provides a client for the extraction pipeline's company and
// job-queue REST APIs.
package garbo

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/extraction-ops/internal/config"
	"github.com/sells-group/extraction-ops/internal/model"
	"github.com/sells-group/extraction-ops/internal/resilience"
)

// Environment selects which company API to read.
type Environment string

const (
	Staging    Environment = "staging"
	Production Environment = "production"
)

// Valid reports whether e is a known environment.
func (e Environment) Valid() bool {
	return e == Staging || e == Production
}

// queueService names the breaker guarding the queue API.
const queueService = "queue"

// Client defines the pipeline API operations.
type Client interface {
	// ListCompanies returns every company with its reporting periods.
	ListCompanies(ctx context.Context, env Environment) ([]model.Company, error)
	// ListQueues returns the pipeline queues and their job counts.
	ListQueues(ctx context.Context) ([]QueueInfo, error)
	// ListJobs returns the jobs of a queue, optionally filtered by queue state.
	ListJobs(ctx context.Context, queue string, states ...string) ([]model.Job, error)
	// RerunJob re-queues a job.
	RerunJob(ctx context.Context, queue, jobID string) error
	// ApproveJob records an approval decision on a job.
	ApproveJob(ctx context.Context, queue, jobID string, approved bool) error
}

// QueueInfo is a queue and its job counts by queue state.
type QueueInfo struct {
	Name   string         `json:"name"`
	Counts map[string]int `json:"counts,omitempty"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets the company API base URL of env.
func WithBaseURL(env Environment, u string) Option {
	return func(c *httpClient) {
		c.baseURLs[env] = strings.TrimRight(u, "/")
	}
}

// WithQueueURL sets the queue API base URL.
func WithQueueURL(u string) Option {
	return func(c *httpClient) {
		c.queueURL = strings.TrimRight(u, "/")
	}
}

// WithToken sets the bearer token sent with every request.
func WithToken(token string) Option {
	return func(c *httpClient) {
		c.token = token
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithMinInterval spaces outgoing requests at least d apart. Zero disables
// the limit.
func WithMinInterval(d time.Duration) Option {
	return func(c *httpClient) {
		if d <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

// WithRetry sets the retry policy for transient failures.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

// WithBreakers sets the circuit breakers, one per environment plus one for
// the queue API.
func WithBreakers(b *resilience.Breakers) Option {
	return func(c *httpClient) {
		c.breakers = b
	}
}

type httpClient struct {
	baseURLs map[Environment]string
	queueURL string
	token    string
	http     *http.Client
	limiter  *rate.Limiter
	retry    resilience.RetryConfig
	breakers *resilience.Breakers
}

// NewClient creates a pipeline API client.
func NewClient(opts ...Option) Client {
	breaker := resilience.DefaultCircuitBreakerConfig()
	breaker.ShouldTrip = resilience.IsTransient
	c := &httpClient{
		baseURLs: map[Environment]string{
			Staging:    "https://stage-api.klimatkollen.se/api",
			Production: "https://api.klimatkollen.se/api",
		},
		queueURL: "https://stage-api.klimatkollen.se/api/queues",
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter:  rate.NewLimiter(rate.Every(250*time.Millisecond), 1),
		retry:    resilience.DefaultRetryConfig(),
		breakers: resilience.NewBreakers(breaker),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FromConfig creates a client from the api config section. opts are applied
// after the configured values.
func FromConfig(api config.APIConfig, opts ...Option) Client {
	retry, breaker := resilience.FromAPIConfig(api)
	base := []Option{
		WithRetry(retry),
		WithBreakers(resilience.NewBreakers(breaker)),
		WithMinInterval(time.Duration(api.MinIntervalMs) * time.Millisecond),
		WithToken(api.Token),
	}
	if api.StagingURL != "" {
		base = append(base, WithBaseURL(Staging, api.StagingURL))
	}
	if api.ProductionURL != "" {
		base = append(base, WithBaseURL(Production, api.ProductionURL))
	}
	if api.QueueURL != "" {
		base = append(base, WithQueueURL(api.QueueURL))
	}
	if api.TimeoutSecs > 0 {
		base = append(base, WithHTTPClient(&http.Client{Timeout: time.Duration(api.TimeoutSecs) * time.Second}))
	}
	return NewClient(append(base, opts...)...)
}

// Breakers returns the circuit breakers used by a client built with
// NewClient, or nil for other implementations.
func Breakers(c Client) *resilience.Breakers {
	if hc, ok := c.(*httpClient); ok {
		return hc.breakers
	}
	return nil
}

// call sends one logical request through the breaker of service, retrying
// transient failures, and returns the response body.
func (c *httpClient) call(ctx context.Context, service, method, u string, payload any) ([]byte, error) {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, eris.Wrap(err, "garbo: marshal request")
		}
	}

	retry := c.retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("garbo."+service, method+" "+u)
	}

	return resilience.ExecuteVal(ctx, c.breakers.Get(service), func(ctx context.Context) ([]byte, error) {
		return resilience.DoVal(ctx, retry, func(ctx context.Context) ([]byte, error) {
			return c.do(ctx, method, u, body)
		})
	})
}

// do performs a single rate-limited HTTP round trip.
func (c *httpClient) do(ctx context.Context, method, u string, body []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "garbo: rate limit wait")
	}

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return nil, eris.Wrap(err, "garbo: create request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		wrapped := eris.Wrap(err, "garbo: send request")
		if ctx.Err() == nil && resilience.IsTransient(err) {
			return nil, resilience.NewTransientError(wrapped, 0)
		}
		return nil, wrapped
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "garbo: read response body"), resp.StatusCode)
	}

	zap.L().Debug("garbo request",
		zap.String("method", method),
		zap.String("url", u),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if err := resilience.CheckStatus(resp.StatusCode, data); err != nil {
		return nil, err
	}
	return data, nil
}

func (c *httpClient) ListCompanies(ctx context.Context, env Environment) ([]model.Company, error) {
	base, ok := c.baseURLs[env]
	if !ok {
		return nil, eris.Errorf("garbo: unknown environment %q", env)
	}

	data, err := c.call(ctx, string(env), http.MethodGet, base+"/companies", nil)
	if err != nil {
		return nil, eris.Wrapf(err, "garbo: list %s companies", env)
	}

	var companies []model.Company
	if err := json.Unmarshal(data, &companies); err != nil {
		return nil, eris.Wrapf(err, "garbo: decode %s companies", env)
	}
	return companies, nil
}

func (c *httpClient) ListQueues(ctx context.Context) ([]QueueInfo, error) {
	data, err := c.call(ctx, queueService, http.MethodGet, c.queueURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "garbo: list queues")
	}

	// The queue API returns either queue names or queue objects.
	var names []string
	if err := json.Unmarshal(data, &names); err == nil {
		out := make([]QueueInfo, 0, len(names))
		for _, n := range names {
			out = append(out, QueueInfo{Name: n})
		}
		return out, nil
	}
	var queues []QueueInfo
	if err := json.Unmarshal(data, &queues); err != nil {
		return nil, eris.Wrap(err, "garbo: decode queues")
	}
	return queues, nil
}

func (c *httpClient) ListJobs(ctx context.Context, queue string, states ...string) ([]model.Job, error) {
	u := c.queueURL + "/" + url.PathEscape(queue)
	if len(states) > 0 {
		u += "?" + url.Values{"status": {strings.Join(states, ",")}}.Encode()
	}

	data, err := c.call(ctx, queueService, http.MethodGet, u, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "garbo: list jobs in %s", queue)
	}

	var jobs []model.Job
	if err := json.Unmarshal(data, &jobs); err != nil {
		return nil, eris.Wrapf(err, "garbo: decode jobs in %s", queue)
	}
	for i := range jobs {
		if jobs[i].Queue == "" {
			jobs[i].Queue = queue
		}
	}
	return jobs, nil
}

func (c *httpClient) RerunJob(ctx context.Context, queue, jobID string) error {
	u := c.jobURL(queue, jobID) + "/rerun"
	if _, err := c.call(ctx, queueService, http.MethodPost, u, struct{}{}); err != nil {
		return eris.Wrapf(err, "garbo: rerun job %s in %s", jobID, queue)
	}
	return nil
}

func (c *httpClient) ApproveJob(ctx context.Context, queue, jobID string, approved bool) error {
	u := c.jobURL(queue, jobID) + "/approve"
	payload := map[string]bool{"approved": approved}
	if _, err := c.call(ctx, queueService, http.MethodPost, u, payload); err != nil {
		return eris.Wrapf(err, "garbo: approve job %s in %s", jobID, queue)
	}
	return nil
}

func (c *httpClient) jobURL(queue, jobID string) string {
	return c.queueURL + "/" + url.PathEscape(queue) + "/" + url.PathEscape(jobID)
}
