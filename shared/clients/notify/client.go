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

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"facility-compliance-system/shared/config"
	"facility-compliance-system/shared/metricsx"
)

var ErrCircuitOpen = errors.New("notify circuit open")

// Client posts notification records to the delivery service. Delivery itself happens there.
type Client struct {
	baseURL  string
	timeout  time.Duration
	retryMax int
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker
	// initial retry interval, shortened in tests
	interval time.Duration
}

type Notification struct {
	UserID          string `json:"user_id"`
	Type            string `json:"type"`
	RelatedEntityID string `json:"related_entity_id,omitempty"`
	Message         string `json:"message"`
	Priority        string `json:"priority"`
}

type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("notify service returned %d: %s", e.StatusCode, e.Body)
}

func New(cfg config.Config) (*Client, error) {
	if strings.TrimSpace(cfg.NotifyServiceURL) == "" {
		return nil, errors.New("NOTIFY_SERVICE_URL is required")
	}
	timeout := time.Duration(cfg.NotifyTimeoutMS) * time.Millisecond
	return newClient(cfg.NotifyServiceURL, timeout, cfg.NotifyRetryMax, 200*time.Millisecond), nil
}

func newClient(baseURL string, timeout time.Duration, retryMax int, interval time.Duration) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		timeout:  timeout,
		retryMax: retryMax,
		http:     &http.Client{Timeout: timeout},
		interval: interval,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "notify",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			// a rejected record says nothing about service health
			IsSuccessful: func(err error) bool {
				var statusErr *StatusError
				return err == nil || (errors.As(err, &statusErr) && statusErr.StatusCode < 500)
			},
		}),
	}
}

// Send delivers one record. 5xx and transport errors are retried with exponential backoff;
// 4xx responses are returned at once.
func (c *Client) Send(ctx context.Context, n Notification) error {
	if c == nil || c.http == nil {
		return errors.New("notify client not initialized")
	}
	body, err := json.Marshal(n)
	if err != nil {
		return err
	}

	start := time.Now()
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.interval
	policy.MaxElapsedTime = 0
	retry := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(max(c.retryMax, 0))), ctx)

	err = backoff.Retry(func() error {
		_, err := c.breaker.Execute(func() (interface{}, error) {
			return nil, c.post(ctx, body)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(ErrCircuitOpen)
		}
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode < 500 {
			return backoff.Permanent(err)
		}
		return err
	}, retry)

	result := "ok"
	switch {
	case errors.Is(err, ErrCircuitOpen):
		result = "circuit_open"
	case err != nil:
		result = "error"
	}
	metricsx.ObserveNotifyClient(result, time.Since(start))
	return err
}

func (c *Client) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/notifications", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
}

func (c *Client) State() string {
	if c == nil || c.breaker == nil {
		return ""
	}
	return c.breaker.State().String()
}
