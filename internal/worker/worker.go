// Package worker is the agent's background service: sole owner of the auth
// lifecycle and the only component that talks to the remote API on behalf of
// UI surfaces. Bridge messages are dispatched over a closed set of actions;
// an unknown action is an explicit error, never a silent fallthrough.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/labai-app/tracking-agent/api/schemas"
	"github.com/labai-app/tracking-agent/internal/apiclient"
	"github.com/labai-app/tracking-agent/internal/auth"
	"github.com/labai-app/tracking-agent/internal/tracker"
)

// API is the remote surface the worker depends on. The concrete
// implementation lives in apiclient; tests substitute a fake.
type API interface {
	Login(ctx context.Context, email, password string) (apiclient.Identity, error)
	ListWebsites(ctx context.Context, token string) ([]schemas.Website, error)
	RegisterWebsite(ctx context.Context, token, domain, name string, settings map[string]string) (schemas.Website, error)
	SaveAnalysis(ctx context.Context, token, url string, analysis json.RawMessage) error
	Analytics(ctx context.Context, token string, websiteID int64, timeRange string) (json.RawMessage, error)
}

// PageAnalyzer produces an on-demand analysis of a page. In production the
// bridge forwards the request back to the extension's content layer.
type PageAnalyzer interface {
	Analyze(ctx context.Context, url string) (json.RawMessage, error)
}

// Worker routes bridge messages to their handlers.
type Worker struct {
	auth     *auth.Service
	api      API
	tracker  *tracker.Tracker
	analyzer PageAnalyzer
	log      *zap.Logger
}

// Option configures a Worker.
type Option func(*Worker)

// WithAnalyzer injects the page-analysis backend.
func WithAnalyzer(analyzer PageAnalyzer) Option {
	return func(w *Worker) {
		w.analyzer = analyzer
	}
}

// New creates a worker bound to its collaborators.
func New(authSvc *auth.Service, api API, trk *tracker.Tracker, logger *zap.Logger, opts ...Option) *Worker {
	w := &Worker{
		auth:    authSvc,
		api:     api,
		tracker: trk,
		log:     logger.Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Dispatch decodes and routes one bridge message. Handler errors never
// escape: they come back as {success:false, error} responses, so nothing at
// this layer is fatal.
func (w *Worker) Dispatch(ctx context.Context, msg schemas.Message) any {
	switch msg.Action {
	case schemas.ActionInit:
		var p schemas.InitPayload
		if err := decode(msg.Payload, &p); err != nil {
			return failure(err)
		}
		return w.handleInit(ctx, p)
	case schemas.ActionTrackEvent:
		var p schemas.TrackEventPayload
		if err := decode(msg.Payload, &p); err != nil {
			return failure(err)
		}
		return w.handleTrackEvent(ctx, p)
	case schemas.ActionObservation:
		var p schemas.Observation
		if err := decode(msg.Payload, &p); err != nil {
			return failure(err)
		}
		return w.handleObservation(ctx, p)
	case schemas.ActionLogin:
		var p schemas.LoginPayload
		if err := decode(msg.Payload, &p); err != nil {
			return failure(err)
		}
		return w.HandleLogin(ctx, p)
	case schemas.ActionLogout:
		return w.HandleLogout(ctx)
	case schemas.ActionActivateTracking:
		var p schemas.ActivateTrackingPayload
		if err := decode(msg.Payload, &p); err != nil {
			return failure(err)
		}
		return w.HandleActivateTracking(ctx, p)
	case schemas.ActionAnalyzeWebsite:
		var p schemas.AnalyzeWebsitePayload
		if err := decode(msg.Payload, &p); err != nil {
			return failure(err)
		}
		return w.HandleAnalyzeWebsite(ctx, p)
	case schemas.ActionGetAuthStatus:
		return w.HandleGetAuthStatus()
	case schemas.ActionGetAnalyticsData:
		var p schemas.GetAnalyticsPayload
		if err := decode(msg.Payload, &p); err != nil {
			return failure(err)
		}
		return w.HandleGetAnalyticsData(ctx, p)
	default:
		w.log.Warn("Rejected message with unknown action", zap.String("action", string(msg.Action)))
		return failure(fmt.Errorf("unknown action %q", msg.Action))
	}
}

func decode(raw json.RawMessage, out any) error {
	if len(raw) == 0 {
		return fmt.Errorf("missing payload")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}

func failure(err error) schemas.Response {
	return schemas.Response{Success: false, Error: err.Error()}
}

// -- Tracking Handlers --

func (w *Worker) handleInit(ctx context.Context, p schemas.InitPayload) schemas.Response {
	if err := w.tracker.Initialize(ctx, p); err != nil {
		if errors.Is(err, tracker.ErrAlreadyInitialized) {
			// First init wins; the duplicate is reported but changes nothing.
			return schemas.Response{Success: false, Error: err.Error()}
		}
		return failure(err)
	}
	return schemas.Response{Success: true}
}

func (w *Worker) handleTrackEvent(ctx context.Context, p schemas.TrackEventPayload) schemas.Response {
	err := w.tracker.TrackEvent(ctx, p.Type, p.Data, p.URL)
	if errors.Is(err, tracker.ErrNotInitialized) {
		// Pre-init tracking calls are silent no-ops by contract.
		w.log.Debug("Dropped trackEvent before initialization", zap.String("type", string(p.Type)))
		return schemas.Response{Success: true}
	}
	if err != nil {
		return failure(err)
	}
	return schemas.Response{Success: true}
}

func (w *Worker) handleObservation(ctx context.Context, p schemas.Observation) schemas.Response {
	if err := w.tracker.Observe(ctx, p); err != nil {
		return failure(err)
	}
	return schemas.Response{Success: true}
}

// -- Auth Handlers --

// HandleLogin authenticates against the remote API and, on success, fully
// populates and persists the auth state before kicking off a website-list
// refresh. Failure detail stays coarse by design.
func (w *Worker) HandleLogin(ctx context.Context, p schemas.LoginPayload) schemas.LoginResponse {
	identity, err := w.api.Login(ctx, p.Email, p.Password)
	if err != nil {
		return schemas.LoginResponse{Response: failure(err)}
	}

	if err := w.auth.SetLoggedIn(ctx, identity.UserID, identity.Email, identity.Token); err != nil {
		return schemas.LoginResponse{Response: failure(err)}
	}

	// Refresh the website cache; a degraded refresh never fails the login.
	if _, err := w.FetchTrackedWebsites(ctx); err != nil {
		w.log.Warn("Website refresh after login degraded", zap.Error(err))
	}

	return schemas.LoginResponse{
		Response: schemas.Response{Success: true},
		User:     &schemas.UserIdentity{UserID: identity.UserID, Email: identity.Email},
	}
}

// HandleLogout resets the auth state to its all-empty shape. The in-memory
// reset always happens; only a storage failure turns the reply negative.
func (w *Worker) HandleLogout(ctx context.Context) schemas.Response {
	if err := w.auth.SetLoggedOut(ctx); err != nil {
		return failure(err)
	}
	return schemas.Response{Success: true}
}

// HandleGetAuthStatus replies synchronously with the current snapshot.
func (w *Worker) HandleGetAuthStatus() schemas.AuthStatusResponse {
	snap := w.auth.Snapshot()
	resp := schemas.AuthStatusResponse{
		Response:        schemas.Response{Success: true},
		IsLoggedIn:      snap.IsLoggedIn,
		TrackedWebsites: snap.TrackedWebsites,
	}
	if snap.IsLoggedIn {
		resp.User = &schemas.UserIdentity{UserID: snap.UserID, Email: snap.UserEmail}
	}
	return resp
}

// -- Website Handlers --

// FetchTrackedWebsites refreshes the website cache from the API. When logged
// out it is a no-op. On failure it returns the cached list together with the
// error, so callers can tell "empty" from "degraded".
func (w *Worker) FetchTrackedWebsites(ctx context.Context) ([]schemas.Website, error) {
	snap := w.auth.Snapshot()
	if !snap.IsLoggedIn {
		return nil, nil
	}

	websites, err := w.api.ListWebsites(ctx, snap.Token)
	if err != nil {
		w.log.Warn("Failed to fetch tracked websites, serving cache", zap.Error(err))
		return snap.TrackedWebsites, fmt.Errorf("website list degraded: %w", err)
	}

	// Wholesale replacement, last write wins: the cache mirrors server truth.
	if err := w.auth.SetWebsites(ctx, websites); err != nil {
		return websites, fmt.Errorf("website cache update failed: %w", err)
	}
	return websites, nil
}

// domainsOverlap implements the three-way substring match used to treat
// near-duplicate domains (example.com vs www.example.com) as already
// tracked. Known to be over-broad for unrelated substring domains; kept for
// parity with the registration server's own dedup heuristic.
func domainsOverlap(a, b string) bool {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return false
	}
	return a == b || strings.Contains(a, b) || strings.Contains(b, a)
}

// HandleActivateTracking registers a domain for tracking unless a matching
// domain is already cached.
func (w *Worker) HandleActivateTracking(ctx context.Context, p schemas.ActivateTrackingPayload) schemas.ActivateTrackingResponse {
	snap := w.auth.Snapshot()
	if !snap.IsLoggedIn {
		return schemas.ActivateTrackingResponse{
			Response: schemas.Response{Success: false, Error: "Authentication required"},
		}
	}

	for _, site := range snap.TrackedWebsites {
		if domainsOverlap(site.Domain, p.Domain) {
			return schemas.ActivateTrackingResponse{
				Response:   schemas.Response{Success: true, Message: "Website already tracked"},
				WebsiteID:  site.ID,
				TrackingID: site.TrackingID,
			}
		}
	}

	name := p.Name
	if name == "" {
		name = p.Domain
	}
	website, err := w.api.RegisterWebsite(ctx, snap.Token, p.Domain, name, p.Options)
	if err != nil {
		return schemas.ActivateTrackingResponse{Response: failure(err)}
	}

	if _, err := w.FetchTrackedWebsites(ctx); err != nil {
		w.log.Warn("Website refresh after registration degraded", zap.Error(err))
	}

	return schemas.ActivateTrackingResponse{
		Response:   schemas.Response{Success: true},
		WebsiteID:  website.ID,
		TrackingID: website.TrackingID,
	}
}

// -- Analysis Handlers --

// HandleAnalyzeWebsite runs an on-demand page analysis and, only when
// authenticated, best-effort persists the result to the API. A persistence
// failure is logged, not fatal.
func (w *Worker) HandleAnalyzeWebsite(ctx context.Context, p schemas.AnalyzeWebsitePayload) schemas.AnalyzeWebsiteResponse {
	if w.analyzer == nil {
		return schemas.AnalyzeWebsiteResponse{
			Response: schemas.Response{Success: false, Error: "analysis backend unavailable"},
		}
	}

	analysis, err := w.analyzer.Analyze(ctx, p.URL)
	if err != nil {
		return schemas.AnalyzeWebsiteResponse{Response: failure(err)}
	}

	resp := schemas.AnalyzeWebsiteResponse{
		Response: schemas.Response{Success: true},
		Analysis: analysis,
	}

	snap := w.auth.Snapshot()
	if snap.IsLoggedIn {
		if err := w.api.SaveAnalysis(ctx, snap.Token, p.URL, analysis); err != nil {
			w.log.Warn("Failed to save analysis result", zap.String("url", p.URL), zap.Error(err))
		} else {
			resp.Saved = true
		}
	}
	return resp
}

// HandleGetAnalyticsData fetches the aggregated analytics for one website.
func (w *Worker) HandleGetAnalyticsData(ctx context.Context, p schemas.GetAnalyticsPayload) schemas.AnalyticsResponse {
	snap := w.auth.Snapshot()
	if !snap.IsLoggedIn {
		return schemas.AnalyticsResponse{
			Response: schemas.Response{Success: false, Error: "Authentication required"},
		}
	}

	data, err := w.api.Analytics(ctx, snap.Token, p.WebsiteID, p.TimeRange)
	if err != nil {
		return schemas.AnalyticsResponse{Response: failure(err)}
	}
	return schemas.AnalyticsResponse{
		Response: schemas.Response{Success: true},
		Data:     data,
	}
}
