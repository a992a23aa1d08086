// Package callback delivers terminal task results to the orchestrator's
// callback endpoints. Delivery is retried per endpoint with exponential
// backoff; the legacy endpoint is only tried once the primary is exhausted.
package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"github.com/shield4u/pagescope/internal/scope"
)

const (
	defaultTimeout = 10 * time.Second
	tokenLifetime  = 5 * time.Minute
)

// Wire statuses for the delivery payload.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Result carries one terminal task outcome to the orchestrator.
type Result struct {
	TaskID       string `json:"task_id"`
	ParentID     string `json:"parent_id"`
	ServiceName  string `json:"service_name"`
	Status       string `json:"status"`
	ResultData   any    `json:"result_data,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// Completed builds a delivery payload for a finished task.
func Completed(taskID, parentID, serviceName string, report any) *Result {
	return &Result{
		TaskID:      taskID,
		ParentID:    parentID,
		ServiceName: serviceName,
		Status:      StatusCompleted,
		ResultData:  report,
	}
}

// Failed builds a delivery payload for a failed task. The message is carried
// verbatim.
func Failed(taskID, parentID, serviceName, message string) *Result {
	return &Result{
		TaskID:       taskID,
		ParentID:     parentID,
		ServiceName:  serviceName,
		Status:       StatusFailed,
		ErrorMessage: message,
	}
}

// Config holds the callback endpoints and signing settings.
type Config struct {
	// PrimaryURL receives every delivery first.
	PrimaryURL string
	// LegacyURL is tried only after the primary endpoint is exhausted.
	LegacyURL string
	// Timeout bounds each delivery attempt (default 10s).
	Timeout time.Duration
	// JWTSecret enables HS256 request signing when non-empty.
	JWTSecret string
	// ServiceName is the issuer claim on signed requests.
	ServiceName string
}

// DeliveryError reports that every configured endpoint was exhausted.
type DeliveryError struct {
	TaskID   string
	Attempts int
	Err      error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("callback delivery for task %s failed after %d attempts: %v", e.TaskID, e.Attempts, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Client posts results to the configured endpoints.
type Client struct {
	config     *Config
	retry      scope.RetryPolicy
	httpClient *http.Client
}

// NewClient creates a delivery client with the given retry policy.
func NewClient(config *Config, retry scope.RetryPolicy) *Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		config: config,
		retry:  retry,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Deliver posts the result, trying the primary endpoint MaxRetries+1 times
// before falling back to the legacy endpoint. Any 2xx response counts as
// delivered. When every endpoint is exhausted a *DeliveryError wrapping the
// last attempt's error is returned.
func (c *Client) Deliver(ctx context.Context, result *Result) error {
	body, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("callback: failed to marshal result: %w", err)
	}

	endpoints := c.endpoints()
	if len(endpoints) == 0 {
		return fmt.Errorf("callback: no endpoint configured")
	}

	attempts := 0
	var lastErr error
	for _, endpoint := range endpoints {
		for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
			if attempt > 0 {
				select {
				case <-ctx.Done():
					return &DeliveryError{TaskID: result.TaskID, Attempts: attempts, Err: ctx.Err()}
				case <-time.After(c.backoff(attempt - 1)):
				}
			}
			attempts++

			if err := c.post(ctx, endpoint, result.TaskID, body); err != nil {
				lastErr = err
				log.Debug().
					Err(err).
					Str("task_id", result.TaskID).
					Str("endpoint", endpoint).
					Int("attempt", attempt+1).
					Msg("Callback attempt failed")
				continue
			}

			log.Debug().
				Str("task_id", result.TaskID).
				Str("endpoint", endpoint).
				Str("status", result.Status).
				Msg("Callback delivered")
			return nil
		}
	}

	return &DeliveryError{TaskID: result.TaskID, Attempts: attempts, Err: lastErr}
}

func (c *Client) post(ctx context.Context, endpoint, taskID string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("callback: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if c.config.JWTSecret != "" {
		token, err := c.signToken(taskID)
		if err != nil {
			return fmt.Errorf("callback: failed to sign request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("callback: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	message, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("callback: endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(message)))
}

// signToken issues a short-lived HS256 token identifying the service and the
// task being reported.
func (c *Client) signToken(taskID string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    c.config.ServiceName,
		Subject:   taskID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(tokenLifetime)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(c.config.JWTSecret))
}

func (c *Client) endpoints() []string {
	endpoints := make([]string, 0, 2)
	if c.config.PrimaryURL != "" {
		endpoints = append(endpoints, c.config.PrimaryURL)
	}
	if c.config.LegacyURL != "" {
		endpoints = append(endpoints, c.config.LegacyURL)
	}
	return endpoints
}

// backoff returns the delay before retry n, capped by the policy.
func (c *Client) backoff(n int) time.Duration {
	seconds := c.retry.BackoffFactor * math.Pow(2, float64(n))
	if seconds > c.retry.BackoffMax {
		seconds = c.retry.BackoffMax
	}
	return time.Duration(seconds * float64(time.Second))
}
