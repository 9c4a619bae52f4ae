package client

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

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/LeventeLantos/order-confirm/internal/template"
)

// ErrNotConfigured is returned before any network call when the provider
// token or sender id is missing.
var ErrNotConfigured = errors.New("whatsapp provider credentials not configured")

// ProviderError is a non-2xx answer from the messaging provider.
type ProviderError struct {
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("unexpected status code: %d body=%q", e.StatusCode, e.Body)
}

// Temporary reports whether the failure is on the provider side rather than
// caused by the request itself.
func (e *ProviderError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

type Config struct {
	BaseURL       string
	APIVersion    string
	Token         string
	PhoneNumberID string
	Timeout       time.Duration
}

type SendResult struct {
	StatusCode int
	Body       string
	MessageID  string
}

type WhatsAppClient struct {
	cfg     Config
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	log     *zap.Logger
}

func NewWhatsAppClient(cfg Config, log *zap.Logger) *WhatsAppClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}

	c := &WhatsAppClient{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		log: log,
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "whatsapp",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			var pe *ProviderError
			if errors.As(err, &pe) {
				return !pe.Temporary()
			}
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return c
}

func (c *WhatsAppClient) Configured() bool {
	return c.cfg.Token != "" && c.cfg.PhoneNumberID != ""
}

func (c *WhatsAppClient) endpoint() string {
	return fmt.Sprintf("%s/%s/%s/messages",
		strings.TrimRight(c.cfg.BaseURL, "/"),
		strings.Trim(c.cfg.APIVersion, "/"),
		c.cfg.PhoneNumberID,
	)
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// Send posts one template message. On a provider error the returned result
// still carries the status code and body for the audit trail.
func (c *WhatsAppClient) Send(ctx context.Context, payload template.Payload) (SendResult, error) {
	if !c.Configured() {
		return SendResult{}, ErrNotConfigured
	}

	reqBody, err := json.Marshal(payload)
	if err != nil {
		return SendResult{}, err
	}

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.post(ctx, reqBody)
	})

	res, _ := out.(SendResult)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return res, fmt.Errorf("whatsapp provider unavailable: %w", err)
		}
		return res, err
	}
	return res, nil
}

func (c *WhatsAppClient) post(ctx context.Context, reqBody []byte) (SendResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(reqBody))
	if err != nil {
		return SendResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)

	resp, err := c.client.Do(req)
	if err != nil {
		return SendResult{}, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	res := SendResult{StatusCode: resp.StatusCode, Body: string(body)}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return res, &ProviderError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var sr sendResponse
	if err := json.Unmarshal(body, &sr); err != nil || len(sr.Messages) == 0 || sr.Messages[0].ID == "" {
		c.log.Warn("provider accepted message without an id", zap.Int("status", resp.StatusCode), zap.String("body", res.Body))
		return res, nil
	}

	res.MessageID = sr.Messages[0].ID
	return res, nil
}
