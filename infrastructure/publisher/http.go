package publisher

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

	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/retry"

	"github.com/felixgeelhaar/agent-registry/domain/registry"
)

// errRejected marks responses that must not be retried.
var errRejected = errors.New("facts document rejected")

// HTTPConfig configures the remote facts publisher.
type HTTPConfig struct {
	// Endpoint receives the facts document as a JSON POST.
	Endpoint string
	// RetrievalBaseURL builds the facts URL when the response has none.
	RetrievalBaseURL string
	// Timeout is the HTTP request timeout.
	Timeout time.Duration
	// MaxRetries is the maximum number of attempts.
	MaxRetries int
	// RetryDelay is the initial delay between attempts.
	RetryDelay time.Duration
	// CircuitBreakerThreshold is consecutive failures before opening.
	CircuitBreakerThreshold int
	// CircuitBreakerTimeout is how long the circuit stays open.
	CircuitBreakerTimeout time.Duration
	// UserAgent is the User-Agent header value.
	UserAgent string
	// Headers are added to every request.
	Headers map[string]string
}

// DefaultHTTPConfig returns the default remote publisher configuration.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Timeout:                 10 * time.Second,
		MaxRetries:              3,
		RetryDelay:              200 * time.Millisecond,
		CircuitBreakerThreshold: 5,
		CircuitBreakerTimeout:   30 * time.Second,
		UserAgent:               "agent-registry/0.1",
	}
}

// HTTPPublisher posts facts documents to a remote facts service.
type HTTPPublisher struct {
	config  HTTPConfig
	client  *http.Client
	breaker circuitbreaker.CircuitBreaker[string]
	retrier retry.Retry[string]
}

// NewHTTPPublisher creates a remote facts publisher.
func NewHTTPPublisher(config HTTPConfig) (*HTTPPublisher, error) {
	if config.Endpoint == "" {
		return nil, errors.New("facts endpoint is required")
	}
	if config.RetrievalBaseURL == "" {
		return nil, errors.New("retrieval base url is required")
	}

	defaults := DefaultHTTPConfig()
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = defaults.MaxRetries
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = defaults.RetryDelay
	}
	if config.CircuitBreakerThreshold <= 0 {
		config.CircuitBreakerThreshold = defaults.CircuitBreakerThreshold
	}
	if config.CircuitBreakerTimeout <= 0 {
		config.CircuitBreakerTimeout = defaults.CircuitBreakerTimeout
	}
	if config.UserAgent == "" {
		config.UserAgent = defaults.UserAgent
	}

	threshold := config.CircuitBreakerThreshold
	return &HTTPPublisher{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		breaker: circuitbreaker.New[string](circuitbreaker.Config{
			MaxRequests: 1,
			Interval:    config.CircuitBreakerTimeout,
			Timeout:     config.CircuitBreakerTimeout,
			ReadyToTrip: func(counts circuitbreaker.Counts) bool {
				return counts.ConsecutiveFailures >= uint32(threshold) // #nosec G115 -- threshold is positive
			},
			// Rejected documents do not count against the endpoint.
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, errRejected)
			},
		}),
		retrier: retry.New[string](retry.Config{
			MaxAttempts:        config.MaxRetries,
			InitialDelay:       config.RetryDelay,
			BackoffPolicy:      retry.BackoffExponential,
			Multiplier:         2.0,
			NonRetryableErrors: []error{errRejected},
		}),
	}, nil
}

// Publish posts facts to the endpoint and returns the retrieval URL.
// Network failures, timeouts, 429 and 5xx responses are retried and
// reported as transient; other responses are permanent.
func (p *HTTPPublisher) Publish(ctx context.Context, facts *registry.AgentFacts) (string, error) {
	payload, err := json.Marshal(facts)
	if err != nil {
		return "", registry.Permanent(fmt.Errorf("failed to serialize facts: %w", err))
	}

	url, err := p.breaker.Execute(ctx, func(ctx context.Context) (string, error) {
		return p.retrier.Do(ctx, func(ctx context.Context) (string, error) {
			return p.post(ctx, payload, facts.Username)
		})
	})
	if err != nil {
		if errors.Is(err, errRejected) {
			return "", registry.Permanent(err)
		}
		return "", registry.Transient(err)
	}
	return url, nil
}

func (p *HTTPPublisher) post(ctx context.Context, payload []byte, username string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%w: failed to create request: %v", errRejected, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", p.config.UserAgent)
	for key, value := range p.config.Headers {
		req.Header.Set(key, value)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("facts service unavailable: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return p.resolveURL(body, username)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return "", fmt.Errorf("facts service error %d: %s", resp.StatusCode, truncate(body))
	default:
		return "", fmt.Errorf("%w: status %d: %s", errRejected, resp.StatusCode, truncate(body))
	}
}

// resolveURL takes the url field of a JSON response body, falling back to
// the configured retrieval base URL.
func (p *HTTPPublisher) resolveURL(body []byte, username string) (string, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return FactsURL(p.config.RetrievalBaseURL, username), nil
	}

	var decoded struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("%w: malformed response: %v", errRejected, err)
	}
	if u := strings.TrimSpace(decoded.URL); u != "" {
		return u, nil
	}
	return FactsURL(p.config.RetrievalBaseURL, username), nil
}

// BreakerState returns the circuit breaker state.
func (p *HTTPPublisher) BreakerState() string {
	return p.breaker.State().String()
}

func truncate(body []byte) string {
	const limit = 256
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}

var _ registry.Publisher = (*HTTPPublisher)(nil)
