// Copyright 2025 James Ross
// Package costs is a mechanical client against an external billing API: it
// fetches per-project daily spend and stores it. Out of scope per the
// service's design - a collaborator interface, not part of the drift engine.
package costs

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/driftguard/driftguard/internal/resilience"
	"go.uber.org/zap"
)

// Store is the persistence surface this client needs.
type Store interface {
	UpsertDailyCost(ctx context.Context, projectID, day string, amount float64, currency string) error
}

type dailySpend struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// Client fetches and stores daily costs from a billing API, guarded by a
// circuit breaker so a flaky billing endpoint cannot stall the worker.
type Client struct {
	httpClient *http.Client
	baseURL    string
	breaker    *resilience.CircuitBreaker
	log        *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, breaker *resilience.CircuitBreaker, log *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		breaker:    breaker,
		log:        log,
	}
}

// FetchAndStoreDailyCosts pulls one project's spend for day and upserts it.
// Failures are best-effort from the worker's perspective: the caller logs
// them as warnings and continues, per §4.8 step 6.
func (c *Client) FetchAndStoreDailyCosts(ctx context.Context, store Store, projectID, day string) error {
	if c.baseURL == "" {
		return nil
	}
	if !c.breaker.Allow() {
		return fmt.Errorf("costs: circuit breaker open, skipping project %s", projectID)
	}
	url := fmt.Sprintf("%s/v1/spend?project_id=%s&day=%s", c.baseURL, projectID, day)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		c.breaker.Record(false)
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.breaker.Record(false)
		return fmt.Errorf("costs: fetch failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		c.breaker.Record(false)
		return fmt.Errorf("costs: fetch returned status %d", resp.StatusCode)
	}
	var spend dailySpend
	if err := json.NewDecoder(resp.Body).Decode(&spend); err != nil {
		c.breaker.Record(false)
		return fmt.Errorf("costs: decode failed: %w", err)
	}
	c.breaker.Record(true)
	return store.UpsertDailyCost(ctx, projectID, day, spend.Amount, spend.Currency)
}
