// Package apiclient is the agent's only gateway to the remote LabAI API.
// Every call is JSON over HTTPS; authenticated calls carry a bearer token.
// Non-2xx responses collapse into a fixed per-call error message; server
// error detail is deliberately not surfaced to UI callers.
package apiclient

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

	"go.uber.org/zap"

	"github.com/labai-app/tracking-agent/api/schemas"
	"github.com/labai-app/tracking-agent/internal/config"
	"github.com/labai-app/tracking-agent/internal/network"
)

// ErrUnauthorized marks a 401 from any authenticated call. The caller is
// expected to surface a re-login prompt; the agent never refreshes tokens.
var ErrUnauthorized = errors.New("apiclient: unauthorized")

// Client talks to the remote API.
type Client struct {
	baseURL string
	http    *network.Client
	log     *zap.Logger
}

// New builds a client for the configured API endpoint.
func New(cfg config.APIConfig, logger *zap.Logger) *Client {
	clientCfg := network.NewDefaultClientConfig()
	clientCfg.RequestTimeout = cfg.RequestTimeout
	clientCfg.IgnoreTLSErrors = cfg.IgnoreTLSErrors
	clientCfg.Logger = logger.Named("httpclient")

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    network.NewClient(clientCfg),
		log:     logger.Named("apiclient"),
	}
}

// Identity is the successful auth response.
type Identity struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Token  string `json:"token"`
}

// Login exchanges credentials for an identity. All failure modes fold into
// the same coarse error so the UI never leaks auth specifics.
func (c *Client) Login(ctx context.Context, email, password string) (Identity, error) {
	var identity Identity
	err := c.do(ctx, http.MethodPost, "/api/extension/auth", "",
		map[string]string{"email": email, "password": password}, &identity)
	if err != nil {
		c.log.Debug("Auth request failed", zap.Error(err))
		return Identity{}, errors.New("Login failed")
	}
	if identity.Token == "" || identity.UserID == "" {
		return Identity{}, errors.New("Login failed")
	}
	return identity, nil
}

// ListWebsites fetches the caller's tracked websites.
func (c *Client) ListWebsites(ctx context.Context, token string) ([]schemas.Website, error) {
	var websites []schemas.Website
	if err := c.do(ctx, http.MethodGet, "/api/tracked-websites", token, nil, &websites); err != nil {
		return nil, fmt.Errorf("failed to fetch tracked websites: %w", err)
	}
	return websites, nil
}

// RegisterWebsite registers a new domain for tracking. Settings travel as a
// JSON string, mirroring the API contract.
func (c *Client) RegisterWebsite(ctx context.Context, token, domain, name string, settings map[string]string) (schemas.Website, error) {
	encoded, err := json.Marshal(settings)
	if err != nil {
		return schemas.Website{}, fmt.Errorf("failed to encode settings: %w", err)
	}

	var website schemas.Website
	err = c.do(ctx, http.MethodPost, "/api/tracked-websites", token, map[string]string{
		"domain":   domain,
		"name":     name,
		"settings": string(encoded),
	}, &website)
	if err != nil {
		return schemas.Website{}, fmt.Errorf("failed to register website: %w", err)
	}
	return website, nil
}

// SaveAnalysis persists an on-demand analysis result. Best-effort at the
// call sites; this method just reports the outcome.
func (c *Client) SaveAnalysis(ctx context.Context, token, url string, analysis json.RawMessage) error {
	body := map[string]any{
		"url":          url,
		"analysisData": analysis,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	}
	if err := c.do(ctx, http.MethodPost, "/api/extension/analysis", token, body, nil); err != nil {
		return fmt.Errorf("failed to save analysis: %w", err)
	}
	return nil
}

// Analytics fetches the aggregated analytics payload for one website.
func (c *Client) Analytics(ctx context.Context, token string, websiteID int64, timeRange string) (json.RawMessage, error) {
	var payload json.RawMessage
	path := fmt.Sprintf("/api/extension/analytics/%d", websiteID)
	err := c.do(ctx, http.MethodPost, path, token, map[string]string{"timeRange": timeRange}, &payload)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch analytics: %w", err)
	}
	return payload, nil
}

// IngestEvents delivers a batch of tracked events to the ingestion endpoint.
// Events are keyed by their embedded tracking ids; the bearer token is
// attached when the agent has one.
func (c *Client) IngestEvents(ctx context.Context, token string, events []schemas.Event) error {
	if len(events) == 0 {
		return nil
	}
	body := map[string]any{"events": events}
	if err := c.do(ctx, http.MethodPost, "/api/extension/events", token, body, nil); err != nil {
		return fmt.Errorf("failed to ingest events: %w", err)
	}
	return nil
}

// do performs one JSON request/response round trip.
func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused; the detail is not surfaced.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
