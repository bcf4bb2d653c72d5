package reasoning

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/andresuchdata/autopo-engine/internal/config"
	"github.com/andresuchdata/autopo-engine/internal/domain"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2/google"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// Client calls the remote reasoning endpoint.
type Client struct {
	url         string
	httpClient  *http.Client
	timeout     time.Duration
	maxAttempts int
	backoff     time.Duration
	maxBackoff  time.Duration
}

type narrateRequest struct {
	Instruction string              `json:"instruction"`
	Trace       domain.NumericTrace `json:"trace"`
}

type narrateResponse struct {
	Rationale string `json:"rationale"`
}

// statusError is a non-2xx answer from the endpoint.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("reasoning service returned %d: %s", e.code, e.body)
}

func (e *statusError) retryable() bool {
	return e.code == http.StatusTooManyRequests || e.code >= 500
}

// New builds the narrator described by cfg. A disabled or unconfigured
// service yields Disabled.
func New(ctx context.Context, cfg config.ReasoningConfig) (Narrator, error) {
	if !cfg.Enabled || cfg.URL == "" {
		return Disabled{}, nil
	}

	httpClient := &http.Client{}
	if cfg.CredentialsFile != "" {
		credentialsJSON, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("unable to read reasoning credentials: %w", err)
		}

		// Service-account JWT client, as used for other Google APIs
		jwtConfig, err := google.JWTConfigFromJSON(credentialsJSON, cloudPlatformScope)
		if err != nil {
			return nil, fmt.Errorf("unable to parse reasoning credentials: %w", err)
		}
		if cfg.Audience != "" {
			jwtConfig.Audience = cfg.Audience
		}
		httpClient = jwtConfig.Client(ctx)
	}

	return NewClient(cfg.URL, httpClient, cfg), nil
}

func NewClient(url string, httpClient *http.Client, cfg config.ReasoningConfig) *Client {
	c := &Client{
		url:         url,
		httpClient:  httpClient,
		timeout:     cfg.Timeout,
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.Backoff,
		maxBackoff:  cfg.MaxBackoff,
	}
	if c.timeout <= 0 {
		c.timeout = 10 * time.Second
	}
	if c.maxAttempts < 1 {
		c.maxAttempts = 3
	}
	if c.backoff <= 0 {
		c.backoff = 500 * time.Millisecond
	}
	if c.maxBackoff < c.backoff {
		c.maxBackoff = c.backoff
	}
	return c
}

// Narrate posts the trace and returns the rationale text. Network errors,
// 429 and 5xx answers are retried with exponential backoff.
func (c *Client) Narrate(ctx context.Context, trace domain.NumericTrace) (string, error) {
	body, err := json.Marshal(narrateRequest{
		Instruction: "Explain this inventory recommendation using only the numbers in the trace.",
		Trace:       trace,
	})
	if err != nil {
		return "", fmt.Errorf("encode reasoning request: %w", err)
	}

	var prose string
	attempts := 0
	operation := func() error {
		attempts++
		out, err := c.attempt(ctx, body)
		if err != nil {
			var se *statusError
			if errors.As(err, &se) && !se.retryable() {
				return backoff.Permanent(err)
			}
			return err
		}
		prose = out
		return nil
	}
	notify := func(err error, wait time.Duration) {
		log.Debug().Err(err).Int("attempt", attempts).Dur("backoff", wait).Msg("reasoning call failed, retrying")
	}

	if err := backoff.RetryNotify(operation, c.newBackOff(ctx), notify); err != nil {
		var se *statusError
		if errors.As(err, &se) && !se.retryable() {
			return "", err
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("reasoning service failed after %d attempts: %w", attempts, err)
	}
	return prose, nil
}

// newBackOff doubles the wait from backoff up to maxBackoff and stops after
// maxAttempts calls or when ctx ends.
func (c *Client) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.backoff
	b.MaxInterval = c.maxBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.maxAttempts-1)), ctx)
}

func (c *Client) attempt(ctx context.Context, body []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build reasoning request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("reasoning request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read reasoning response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &statusError{code: resp.StatusCode, body: string(bytes.TrimSpace(payload))}
	}

	var out narrateResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return "", fmt.Errorf("decode reasoning response: %w", err)
	}
	if out.Rationale == "" {
		return "", errors.New("reasoning service returned an empty rationale")
	}
	return out.Rationale, nil
}
