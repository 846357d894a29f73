// Package tracker normalizes raw browser observations into analytics events.
//
// A Tracker is bound to one page visit (one browser tab). It is constructed
// unstarted and armed exactly once by Initialize; every tracked interaction
// funnels through TrackEvent, which stamps session and tracking metadata,
// appends to the in-memory session log and hands the event to the sink.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/labai-app/tracking-agent/api/schemas"
	"github.com/labai-app/tracking-agent/internal/config"
)

var (
	// ErrAlreadyInitialized is returned when a second init handshake arrives.
	// The first initialization wins; nothing is re-attached.
	ErrAlreadyInitialized = errors.New("tracker: already initialized")
	// ErrNotInitialized is returned by tracking calls before the handshake.
	ErrNotInitialized = errors.New("tracker: not initialized")
)

// Sink receives every event the tracker emits. In production this is the
// spool; tests substitute a recorder.
type Sink interface {
	Deliver(ctx context.Context, event schemas.Event) error
}

// Tracker holds the state for one tracked page visit.
type Tracker struct {
	mu sync.Mutex

	cfg   config.TrackerConfig
	log   *zap.Logger
	sink  Sink
	cache SessionCache

	initialized bool
	trackingID  string
	websiteID   int64
	session     schemas.Session

	// scrollHighWater is the highest scroll percentage already reported.
	scrollHighWater int
}

// New creates an uninitialized tracker. No events are produced until
// Initialize runs.
func New(cfg config.TrackerConfig, sink Sink, cache SessionCache, logger *zap.Logger) *Tracker {
	return &Tracker{
		cfg:   cfg,
		log:   logger.Named("tracker"),
		sink:  sink,
		cache: cache,
	}
}

// Initialize performs the one-time tracking handshake: it binds the tracker
// to a registered website, builds the session record and fires the initial
// page_view. A second call is rejected with ErrAlreadyInitialized and leaves
// the existing session untouched.
func (t *Tracker) Initialize(ctx context.Context, p schemas.InitPayload) error {
	t.mu.Lock()
	if t.initialized {
		t.mu.Unlock()
		return ErrAlreadyInitialized
	}
	if p.TrackingID == "" || p.WebsiteID == 0 {
		t.mu.Unlock()
		return fmt.Errorf("tracker: init requires trackingId and websiteId")
	}

	t.trackingID = p.TrackingID
	t.websiteID = p.WebsiteID
	t.session = schemas.Session{
		SessionID:    resolveSessionID(ctx, t.cache, p.TabID, t.log),
		StartTime:    time.Now(),
		Referrer:     p.Referrer,
		LandingPage:  p.URL,
		UserAgent:    p.UserAgent,
		ScreenWidth:  p.ScreenWidth,
		ScreenHeight: p.ScreenHeight,
		DeviceType:   ClassifyDevice(p.UserAgent),
		BrowserName:  ClassifyBrowser(p.UserAgent),
	}
	t.initialized = true
	t.mu.Unlock()

	t.log.Info("Tracking initialized",
		zap.String("tracking_id", p.TrackingID),
		zap.Int64("website_id", p.WebsiteID),
		zap.String("session_id", t.session.SessionID))

	return t.TrackPageView(ctx, p.URL)
}

// Initialized reports whether the handshake has run.
func (t *Tracker) Initialized() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.initialized
}

// Session returns a snapshot of the current session record.
func (t *Tracker) Session() schemas.Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	snapshot := t.session
	snapshot.Events = append([]schemas.Event(nil), t.session.Events...)
	return snapshot
}

// TrackEvent is the single funnel every tracked interaction passes through.
// It builds the event, appends it to the session log and forwards it to the
// sink. Calls before Initialize return ErrNotInitialized and emit nothing.
func (t *Tracker) TrackEvent(ctx context.Context, eventType schemas.EventType, data map[string]any, url string) error {
	t.mu.Lock()
	if !t.initialized {
		t.mu.Unlock()
		return ErrNotInitialized
	}

	event := schemas.Event{
		Type:       eventType,
		Data:       data,
		Timestamp:  time.Now(),
		TrackingID: t.trackingID,
		WebsiteID:  t.websiteID,
		SessionID:  t.session.SessionID,
		URL:        url,
	}
	if t.cfg.MaxSessionEvents <= 0 || len(t.session.Events) < t.cfg.MaxSessionEvents {
		t.session.Events = append(t.session.Events, event)
	}
	t.mu.Unlock()

	if err := t.sink.Deliver(ctx, event); err != nil {
		return fmt.Errorf("tracker: failed to deliver %s event: %w", eventType, err)
	}
	return nil
}

// TrackPageView emits a page_view for the given URL.
func (t *Tracker) TrackPageView(ctx context.Context, url string) error {
	t.mu.Lock()
	data := map[string]any{
		"referrer":     t.session.Referrer,
		"screenWidth":  t.session.ScreenWidth,
		"screenHeight": t.session.ScreenHeight,
		"deviceType":   string(t.session.DeviceType),
		"browserName":  string(t.session.BrowserName),
	}
	t.mu.Unlock()
	return t.TrackEvent(ctx, schemas.EventPageView, data, url)
}

// TrackConversion emits a conversion event for a page-declared goal.
func (t *Tracker) TrackConversion(ctx context.Context, url, goal string, value float64, extra map[string]any) error {
	data := map[string]any{"goal": goal}
	if value != 0 {
		data["value"] = value
	}
	for k, v := range extra {
		data[k] = v
	}
	return t.TrackEvent(ctx, schemas.EventConversion, data, url)
}

// TrackFormSubmission emits a form_submit event unless the form contains any
// sensitive field, in which case the whole submission is dropped. Only field
// names cross this boundary, and only for non-sensitive fields.
func (t *Tracker) TrackFormSubmission(ctx context.Context, url string, form schemas.FormObservation) error {
	if ContainsSensitiveFields(form) {
		t.log.Debug("Dropping form submission with sensitive fields", zap.String("form_id", form.FormID))
		return nil
	}

	names := make([]string, 0, len(form.Fields))
	for _, field := range form.Fields {
		if field.Name != "" {
			names = append(names, field.Name)
		}
	}

	return t.TrackEvent(ctx, schemas.EventFormSubmit, map[string]any{
		"formId": form.FormID,
		"action": form.Action,
		"method": form.Method,
		"fields": names,
	}, url)
}

// Observe routes one raw browser observation to its handler. Observations
// arriving before initialization are discarded silently; the page context is
// simply not being tracked yet.
func (t *Tracker) Observe(ctx context.Context, obs schemas.Observation) error {
	if !t.Initialized() {
		return nil
	}

	switch obs.Kind {
	case schemas.ObserveClick:
		if obs.Click == nil {
			return fmt.Errorf("tracker: click observation missing payload")
		}
		return t.observeClick(ctx, obs.URL, *obs.Click)
	case schemas.ObserveFormSubmit:
		if obs.Form == nil {
			return fmt.Errorf("tracker: form observation missing payload")
		}
		return t.TrackFormSubmission(ctx, obs.URL, *obs.Form)
	case schemas.ObserveVisibility:
		if obs.Visibility == nil {
			return fmt.Errorf("tracker: visibility observation missing payload")
		}
		return t.observeVisibility(ctx, obs.URL, *obs.Visibility)
	case schemas.ObserveScroll:
		if obs.Scroll == nil {
			return fmt.Errorf("tracker: scroll observation missing payload")
		}
		return t.observeScroll(ctx, obs.URL, *obs.Scroll)
	case schemas.ObserveUnload:
		return t.observeUnload(ctx, obs.URL)
	case schemas.ObserveConversion:
		if obs.Conversion == nil {
			return fmt.Errorf("tracker: conversion observation missing payload")
		}
		return t.TrackConversion(ctx, obs.URL, obs.Conversion.Goal, obs.Conversion.Value, obs.Conversion.Data)
	case schemas.ObservePageView:
		return t.TrackPageView(ctx, obs.URL)
	default:
		return fmt.Errorf("tracker: unknown observation kind %q", obs.Kind)
	}
}

func (t *Tracker) observeClick(ctx context.Context, url string, click schemas.ClickObservation) error {
	text := click.InnerText
	if limit := t.cfg.ClickTextLimit; limit > 0 && len(text) > limit {
		text = text[:limit]
	}

	data := map[string]any{
		"element": strings.ToLower(click.TagName),
		"text":    text,
		"id":      click.ID,
		"classes": click.Classes,
	}
	if click.Href != "" {
		data["href"] = click.Href
	}
	return t.TrackEvent(ctx, schemas.EventClick, data, url)
}

func (t *Tracker) observeVisibility(ctx context.Context, url string, vis schemas.VisibilityObservation) error {
	eventType := schemas.EventPageShow
	if vis.Hidden {
		eventType = schemas.EventPageHide
	}
	return t.TrackEvent(ctx, eventType, map[string]any{}, url)
}

// observeScroll keeps a monotonically increasing high-water mark and emits
// scroll_depth only when a 25% threshold is crossed for the first time.
func (t *Tracker) observeScroll(ctx context.Context, url string, scroll schemas.ScrollObservation) error {
	percent := scroll.Percent
	if percent < 0 || percent > 100 {
		return nil
	}

	t.mu.Lock()
	emit := percent > t.scrollHighWater && percent%25 == 0 && percent > 0
	if emit {
		t.scrollHighWater = percent
	}
	t.mu.Unlock()

	if !emit {
		return nil
	}
	return t.TrackEvent(ctx, schemas.EventScrollDepth, map[string]any{"depth": percent}, url)
}

func (t *Tracker) observeUnload(ctx context.Context, url string) error {
	t.mu.Lock()
	duration := time.Since(t.session.StartTime).Seconds()
	t.mu.Unlock()
	return t.TrackEvent(ctx, schemas.EventPageExit, map[string]any{
		"duration": int64(duration),
	}, url)
}
