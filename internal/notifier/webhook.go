// Copyright 2025 James Ross
// Package notifier posts alert notifications to a chat webhook.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/driftguard/driftguard/internal/resilience"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Message is the webhook payload contract: a plain text body with an
// optional rich-formatting blocks array.
type Message struct {
	Text   string        `json:"text"`
	Blocks []interface{} `json:"blocks,omitempty"`
}

// Notifier posts Messages to a single configured webhook URL. Outbound
// requests are rate limited and circuit-broken so a flaky or misconfigured
// webhook cannot back up alert evaluation.
type Notifier struct {
	httpClient *http.Client
	url        string
	limiter    *rate.Limiter
	breaker    *resilience.CircuitBreaker
	log        *zap.Logger
}

func New(url string, timeout time.Duration, breaker *resilience.CircuitBreaker, log *zap.Logger) *Notifier {
	return &Notifier{
		httpClient: &http.Client{Timeout: timeout, Transport: &http.Transport{MaxIdleConns: 10, IdleConnTimeout: 90 * time.Second}},
		url:        url,
		limiter:    rate.NewLimiter(rate.Limit(5), 10),
		breaker:    breaker,
		log:        log,
	}
}

// Send posts msg to the configured webhook. A failure is never surfaced as
// the originating action's error: the drift compute_all handler reports it
// as slack_alert_sent=false with a slack_note, and the worker logs it as a
// warning and continues.
func (n *Notifier) Send(ctx context.Context, msg Message) error {
	if n.url == "" {
		return fmt.Errorf("notifier: no webhook url configured")
	}
	if !n.breaker.Allow() {
		return fmt.Errorf("notifier: circuit breaker open")
	}
	if err := n.limiter.Wait(ctx); err != nil {
		return err
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		n.breaker.Record(false)
		if n.log != nil {
			n.log.Warn("webhook delivery failed", zap.Error(err))
		}
		return fmt.Errorf("notifier: delivery failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		n.breaker.Record(false)
		return fmt.Errorf("notifier: webhook returned status %d", resp.StatusCode)
	}
	n.breaker.Record(true)
	return nil
}

// TestMessage returns a fixed diagnostic message for the /alerts/slack/test endpoint.
func TestMessage() Message {
	return Message{Text: "driftguard: this is a test notification."}
}
