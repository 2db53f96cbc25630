// Package controlplane implements the REST client against the external
// job-orchestration control plane: fetching a runner-group snapshot,
// updating runner status, and deregistering runners.
package controlplane

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/stackguardian/runner-autoscaler/internal/audit"
	"github.com/stackguardian/runner-autoscaler/internal/metrics"
	"github.com/stackguardian/runner-autoscaler/pkg/runner"
)

const (
	// DefaultTimeout is the default HTTP client timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultRateLimit is the default rate limit (requests per minute).
	DefaultRateLimit = 100

	// MaxResponseBodySize caps response bodies read into memory (10MB).
	MaxResponseBodySize = 10 * 1024 * 1024

	// DefaultMaxRetries is the default maximum number of retries for transient errors.
	DefaultMaxRetries = 3

	// DefaultInitialBackoff is the initial backoff duration for retries.
	DefaultInitialBackoff = 100 * time.Millisecond

	// DefaultMaxBackoff is the maximum backoff duration between retries.
	DefaultMaxBackoff = 10 * time.Second

	// DefaultBackoffMultiplier is the multiplier for exponential backoff.
	DefaultBackoffMultiplier = 2.0

	// DefaultJitterFactor is the maximum jitter as a fraction of backoff (0.0-1.0).
	DefaultJitterFactor = 0.2
)

// RetryConfig configures the retry behavior with exponential backoff.
type RetryConfig struct {
	MaxRetries           int
	InitialBackoff       time.Duration
	MaxBackoff           time.Duration
	BackoffMultiplier    float64
	JitterFactor         float64
	RetryableStatusCodes []int
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        DefaultMaxRetries,
		InitialBackoff:    DefaultInitialBackoff,
		MaxBackoff:        DefaultMaxBackoff,
		BackoffMultiplier: DefaultBackoffMultiplier,
		JitterFactor:      DefaultJitterFactor,
		RetryableStatusCodes: []int{
			http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		},
	}
}

func (r RetryConfig) isRetryable(statusCode int) bool {
	for _, code := range r.RetryableStatusCodes {
		if code == statusCode {
			return true
		}
	}
	return false
}

func (r RetryConfig) backoff(attempt int) time.Duration {
	d := float64(r.InitialBackoff) * pow(r.BackoffMultiplier, attempt)
	if d > float64(r.MaxBackoff) {
		d = float64(r.MaxBackoff)
	}
	jitter := d * r.JitterFactor * rand.Float64()
	return time.Duration(d + jitter)
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

// Client is the control-plane REST client.
type Client struct {
	httpClient     *http.Client
	rateLimiter    *rate.Limiter
	circuitBreaker *CircuitBreaker
	retryConfig    RetryConfig
	baseURL        string
	org            string
	runnerGroup    string
	apiKey         string
	userAgent      string
	logger         *zap.Logger
	audit          *audit.Logger
	mu             sync.RWMutex
}

// ClientOptions configures a new Client.
type ClientOptions struct {
	HTTPClient           *http.Client
	Timeout              time.Duration
	RateLimit            int
	UserAgent            string
	Logger               *zap.Logger
	RetryConfig          *RetryConfig
	CircuitBreakerConfig *CircuitBreakerConfig
}

// NewClient builds a Client authorized against baseURL with apiKey,
// scoped to the given organization and runner group.
func NewClient(baseURL, apiKey, org, runnerGroup string, opts *ClientOptions) *Client {
	if opts == nil {
		opts = &ClientOptions{}
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.RateLimit == 0 {
		opts.RateLimit = DefaultRateLimit
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "runner-autoscaler/1.0"
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	retryConfig := DefaultRetryConfig()
	if opts.RetryConfig != nil {
		retryConfig = *opts.RetryConfig
	}

	cbConfig := DefaultCircuitBreakerConfig()
	if opts.CircuitBreakerConfig != nil {
		cbConfig = *opts.CircuitBreakerConfig
	}

	return &Client{
		httpClient:     httpClient,
		rateLimiter:    rate.NewLimiter(rate.Limit(float64(opts.RateLimit)/60.0), opts.RateLimit),
		circuitBreaker: NewCircuitBreaker(cbConfig, opts.Logger),
		retryConfig:    retryConfig,
		baseURL:        baseURL,
		org:            org,
		runnerGroup:    runnerGroup,
		apiKey:         apiKey,
		userAgent:      opts.UserAgent,
		logger:         opts.Logger,
		audit:          audit.Global(),
	}
}

func (c *Client) runnerGroupPath() string {
	return fmt.Sprintf("/api/v1/orgs/%s/runnergroups/%s/", c.org, c.runnerGroup)
}

// GetRunnerGroup fetches the runner-group snapshot: runners plus queued-job count.
func (c *Client) GetRunnerGroup(ctx context.Context) (runner.Snapshot, error) {
	path := c.runnerGroupPath() + "?getActiveWorkflows=true"

	resp, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return runner.Snapshot{}, err
	}
	defer resp.Body.Close()

	var body runnerGroupResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, MaxResponseBodySize)).Decode(&body); err != nil {
		return runner.Snapshot{}, fmt.Errorf("controlplane: decode runner group response: %w", err)
	}

	if body.Msg.QueuedWorkflowsCount == nil {
		return runner.Snapshot{}, fmt.Errorf("controlplane: runner group response is missing QueuedWorkflowsCount")
	}

	runners := make([]runner.Runner, 0, len(body.Msg.ContainerInstances))
	for _, ci := range body.Msg.ContainerInstances {
		runners = append(runners, toRunner(ci))
	}

	return runner.Snapshot{Runners: runners, QueuedJobs: *body.Msg.QueuedWorkflowsCount}, nil
}

func toRunner(ci containerInstance) runner.Runner {
	r := runner.Runner{
		RunnerID:       ci.RunnerID,
		Status:         runner.Status(ci.Status),
		RunningTasks:   ci.RunningTasksCount,
		PendingTasks:   ci.PendingTasksCount,
		AgentConnected: ci.AgentConnected,
	}
	if len(ci.InstanceDetails) > 0 {
		r.ComputerName = ci.InstanceDetails[0].ComputerName
		r.IPAddress = ci.InstanceDetails[0].IPAddress
		r.ContainerName = ci.InstanceDetails[0].ContainerName
	}
	return r
}

// UpdateRunnerStatus sets a runner's status on the control plane.
func (c *Client) UpdateRunnerStatus(ctx context.Context, runnerID string, status runner.Status) error {
	path := c.runnerGroupPath() + "runner_status/"
	body := updateRunnerStatusRequest{Status: string(status), RunnerID: runnerID}

	resp, err := c.doRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// DeregisterRunner removes a runner from the control plane's runner group.
func (c *Client) DeregisterRunner(ctx context.Context, runnerID string) error {
	path := c.runnerGroupPath() + "deregister/"
	body := deregisterRunnerRequest{RunnerID: runnerID}

	resp, err := c.doRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// doRequest performs an authorized HTTP request, retrying transient
// failures with exponential backoff and tracking everything through the
// circuit breaker and rate limiter.
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	startTime := time.Now()

	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("controlplane: marshal request body: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.retryConfig.MaxRetries; attempt++ {
		if attempt > 0 {
			metrics.RecordRetryAttempt(method)
			select {
			case <-time.After(c.retryConfig.backoff(attempt - 1)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		resp, err := c.attempt(ctx, method, path, bodyBytes)
		duration := time.Since(startTime)

		if err == nil {
			metrics.RecordControlPlaneRequest(method, fmt.Sprintf("%d", resp.StatusCode), duration)
			c.audit.LogAPICall(ctx, method, path, resp.StatusCode, duration, "success")
			return resp, nil
		}

		lastErr = err

		var apiErr *APIError
		if ok := asAPIError(err, &apiErr); ok && c.retryConfig.isRetryable(apiErr.StatusCode) && attempt < c.retryConfig.MaxRetries {
			metrics.RecordControlPlaneError(method, errorType(apiErr.StatusCode))
			continue
		}

		metrics.RecordControlPlaneRequest(method, "error", duration)
		break
	}

	statusCode := 0
	var apiErr *APIError
	if ok := asAPIError(lastErr, &apiErr); ok {
		statusCode = apiErr.StatusCode
	}
	c.audit.LogAPICall(ctx, method, path, statusCode, time.Since(startTime), "failure")

	return nil, lastErr
}

func asAPIError(err error, target **APIError) bool {
	apiErr, ok := err.(*APIError)
	if !ok {
		return false
	}
	*target = apiErr
	return true
}

func errorType(statusCode int) string {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return "rate_limited"
	case statusCode == http.StatusNotFound:
		return "not_found"
	case statusCode >= 500:
		return "server_error"
	default:
		return "client_error"
	}
}

func (c *Client) attempt(ctx context.Context, method, path string, bodyBytes []byte) (*http.Response, error) {
	rateLimitStart := time.Now()
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("controlplane: rate limiter: %w", err)
	}
	rateLimitWait := time.Since(rateLimitStart)
	metrics.ControlPlaneRateLimitWaitDuration.WithLabelValues(method).Observe(rateLimitWait.Seconds())
	if rateLimitWait > 10*time.Millisecond {
		metrics.ControlPlaneRateLimitedTotal.WithLabelValues(method).Inc()
	}

	var bodyReader io.Reader
	if bodyBytes != nil {
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("controlplane: build request: %w", err)
	}

	req.Header.Set("Authorization", "apikey "+c.apiKey)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if bodyBytes != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	var resp *http.Response
	cbErr := c.circuitBreaker.Call(func() error {
		var doErr error
		resp, doErr = c.httpClient.Do(req)
		return doErr
	})
	if cbErr != nil {
		if cbErr == ErrCircuitOpen {
			return nil, fmt.Errorf("controlplane: %w", cbErr)
		}
		return nil, fmt.Errorf("controlplane: request failed: %w", cbErr)
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBodySize))

		var errResp errorResponse
		requestID := resp.Header.Get("X-Request-ID")
		if err := json.Unmarshal(bodyBytes, &errResp); err == nil && errResp.Message != "" {
			return nil, newAPIError(resp.StatusCode, errResp.Error, errResp.Message, requestID)
		}
		return nil, newAPIError(resp.StatusCode, http.StatusText(resp.StatusCode), string(bodyBytes), requestID)
	}

	return resp, nil
}
