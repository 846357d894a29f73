package tracker_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/labai-app/tracking-agent/api/schemas"
	"github.com/labai-app/tracking-agent/internal/config"
	"github.com/labai-app/tracking-agent/internal/tracker"
)

// recordingSink captures every delivered event.
type recordingSink struct {
	mu     sync.Mutex
	events []schemas.Event
}

func (s *recordingSink) Deliver(_ context.Context, event schemas.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) all() []schemas.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]schemas.Event(nil), s.events...)
}

// memoryCache is an in-memory SessionCache.
type memoryCache struct {
	mu  sync.Mutex
	ids map[string]string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{ids: make(map[string]string)}
}

func (c *memoryCache) SessionID(_ context.Context, tabID string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.ids[tabID]
	return id, ok, nil
}

func (c *memoryCache) SaveSessionID(_ context.Context, tabID, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.ids[tabID]; !ok {
		c.ids[tabID] = sessionID
	}
	return nil
}

func testConfig() config.TrackerConfig {
	return config.TrackerConfig{ClickTextLimit: 100, MaxSessionEvents: 5000}
}

func initPayload() schemas.InitPayload {
	return schemas.InitPayload{
		TrackingID: "trk_abc123",
		WebsiteID:  42,
		TabID:      "tab-1",
		PageContext: schemas.PageContext{
			URL:          "https://example.com/",
			Referrer:     "https://google.com/",
			UserAgent:    uaChromeForTest,
			ScreenWidth:  1920,
			ScreenHeight: 1080,
		},
	}
}

const uaChromeForTest = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func newTestTracker(t *testing.T) (*tracker.Tracker, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	trk := tracker.New(testConfig(), sink, newMemoryCache(), zap.NewNop())
	return trk, sink
}

func TestTrackEvent_BeforeInitialize(t *testing.T) {
	trk, sink := newTestTracker(t)

	err := trk.TrackEvent(context.Background(), schemas.EventClick, nil, "https://example.com/")
	assert.ErrorIs(t, err, tracker.ErrNotInitialized)
	assert.Empty(t, sink.all(), "no event may leave an uninitialized tracker")
	assert.Empty(t, trk.Session().Events)
}

func TestInitialize_FiresPageView(t *testing.T) {
	trk, sink := newTestTracker(t)

	require.NoError(t, trk.Initialize(context.Background(), initPayload()))

	events := sink.all()
	require.Len(t, events, 1)
	assert.Equal(t, schemas.EventPageView, events[0].Type)
	assert.Equal(t, "trk_abc123", events[0].TrackingID)
	assert.Equal(t, int64(42), events[0].WebsiteID)
	assert.Equal(t, "https://example.com/", events[0].URL)
	assert.NotEmpty(t, events[0].SessionID)

	session := trk.Session()
	assert.Equal(t, schemas.DeviceDesktop, session.DeviceType)
	assert.Equal(t, schemas.BrowserChrome, session.BrowserName)
	assert.Equal(t, "https://google.com/", session.Referrer)
}

func TestInitialize_SecondInitRejected(t *testing.T) {
	trk, sink := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, trk.Initialize(ctx, initPayload()))
	firstSession := trk.Session().SessionID

	second := initPayload()
	second.TrackingID = "trk_other"
	err := trk.Initialize(ctx, second)
	assert.ErrorIs(t, err, tracker.ErrAlreadyInitialized)

	// No second page_view, no session change.
	assert.Len(t, sink.all(), 1)
	assert.Equal(t, firstSession, trk.Session().SessionID)
}

func TestInitialize_RequiresIdentifiers(t *testing.T) {
	trk, _ := newTestTracker(t)
	p := initPayload()
	p.TrackingID = ""
	assert.Error(t, trk.Initialize(context.Background(), p))
	assert.False(t, trk.Initialized())
}

func TestSessionID_StableAcrossTrackers(t *testing.T) {
	cache := newMemoryCache()
	ctx := context.Background()

	first := tracker.New(testConfig(), &recordingSink{}, cache, zap.NewNop())
	require.NoError(t, first.Initialize(ctx, initPayload()))
	firstID := first.Session().SessionID

	// A syntactically valid v4 UUID on first generation.
	parsed, err := uuid.Parse(firstID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(4), parsed.Version())

	// Same tab, new tracker (page reload): cached id is reused.
	second := tracker.New(testConfig(), &recordingSink{}, cache, zap.NewNop())
	require.NoError(t, second.Initialize(ctx, initPayload()))
	assert.Equal(t, firstID, second.Session().SessionID)
}

func TestObserve_Click(t *testing.T) {
	trk, sink := newTestTracker(t)
	ctx := context.Background()
	require.NoError(t, trk.Initialize(ctx, initPayload()))

	longText := ""
	for i := 0; i < 30; i++ {
		longText += "clickme"
	}

	err := trk.Observe(ctx, schemas.Observation{
		Kind: schemas.ObserveClick,
		URL:  "https://example.com/pricing",
		Click: &schemas.ClickObservation{
			TagName:   "BUTTON",
			InnerText: longText,
			ID:        "cta",
			Classes:   "btn btn-primary",
			Href:      "",
		},
	})
	require.NoError(t, err)

	events := sink.all()
	require.Len(t, events, 2) // page_view + click
	click := events[1]
	assert.Equal(t, schemas.EventClick, click.Type)
	assert.Equal(t, "button", click.Data["element"], "tag name is lower-cased")
	assert.Len(t, click.Data["text"], 100, "inner text is truncated")
	assert.Equal(t, "cta", click.Data["id"])
	assert.NotContains(t, click.Data, "href", "empty href is omitted")
}

func TestObserve_SensitiveFormDropped(t *testing.T) {
	trk, sink := newTestTracker(t)
	ctx := context.Background()
	require.NoError(t, trk.Initialize(ctx, initPayload()))
	baseline := len(sink.all())

	err := trk.Observe(ctx, schemas.Observation{
		Kind: schemas.ObserveFormSubmit,
		URL:  "https://example.com/signup",
		Form: &schemas.FormObservation{
			FormID: "signup",
			Action: "/signup",
			Method: "post",
			Fields: []schemas.FormField{
				{Name: "username", Type: "text"},
				{Name: "password", Type: "password"},
			},
		},
	})
	require.NoError(t, err)

	assert.Len(t, sink.all(), baseline, "sensitive form emits nothing at all")
	assert.Len(t, trk.Session().Events, baseline)
}

func TestObserve_CleanFormEmitsFieldNames(t *testing.T) {
	trk, sink := newTestTracker(t)
	ctx := context.Background()
	require.NoError(t, trk.Initialize(ctx, initPayload()))

	err := trk.Observe(ctx, schemas.Observation{
		Kind: schemas.ObserveFormSubmit,
		URL:  "https://example.com/search",
		Form: &schemas.FormObservation{
			FormID: "search",
			Action: "/search",
			Method: "get",
			Fields: []schemas.FormField{
				{Name: "q", Type: "text"},
				{Name: "category", Type: "select"},
			},
		},
	})
	require.NoError(t, err)

	events := sink.all()
	submit := events[len(events)-1]
	assert.Equal(t, schemas.EventFormSubmit, submit.Type)
	assert.Equal(t, "search", submit.Data["formId"])
	assert.Equal(t, []string{"q", "category"}, submit.Data["fields"])
}

func TestObserve_ScrollHighWaterMark(t *testing.T) {
	trk, sink := newTestTracker(t)
	ctx := context.Background()
	require.NoError(t, trk.Initialize(ctx, initPayload()))
	baseline := len(sink.all())

	scroll := func(percent int) {
		require.NoError(t, trk.Observe(ctx, schemas.Observation{
			Kind:   schemas.ObserveScroll,
			URL:    "https://example.com/",
			Scroll: &schemas.ScrollObservation{Percent: percent},
		}))
	}

	// Only exact multiples of 25 above the high-water mark emit, each once.
	for _, percent := range []int{10, 25, 24, 25, 30, 50, 50, 75, 60, 100, 100, 120} {
		scroll(percent)
	}

	var depths []int
	for _, event := range sink.all()[baseline:] {
		assert.Equal(t, schemas.EventScrollDepth, event.Type)
		depths = append(depths, event.Data["depth"].(int))
	}
	assert.Equal(t, []int{25, 50, 75, 100}, depths)
}

func TestObserve_VisibilityAndUnload(t *testing.T) {
	trk, sink := newTestTracker(t)
	ctx := context.Background()
	require.NoError(t, trk.Initialize(ctx, initPayload()))

	require.NoError(t, trk.Observe(ctx, schemas.Observation{
		Kind:       schemas.ObserveVisibility,
		URL:        "https://example.com/",
		Visibility: &schemas.VisibilityObservation{Hidden: true},
	}))
	require.NoError(t, trk.Observe(ctx, schemas.Observation{
		Kind:       schemas.ObserveVisibility,
		URL:        "https://example.com/",
		Visibility: &schemas.VisibilityObservation{Hidden: false},
	}))
	require.NoError(t, trk.Observe(ctx, schemas.Observation{
		Kind: schemas.ObserveUnload,
		URL:  "https://example.com/",
	}))

	events := sink.all()
	require.Len(t, events, 4)
	assert.Equal(t, schemas.EventPageHide, events[1].Type)
	assert.Equal(t, schemas.EventPageShow, events[2].Type)
	assert.Equal(t, schemas.EventPageExit, events[3].Type)
	duration, ok := events[3].Data["duration"].(int64)
	require.True(t, ok)
	assert.GreaterOrEqual(t, duration, int64(0))
}

func TestObserve_BeforeInitIsSilentNoop(t *testing.T) {
	trk, sink := newTestTracker(t)

	err := trk.Observe(context.Background(), schemas.Observation{
		Kind:   schemas.ObserveScroll,
		URL:    "https://example.com/",
		Scroll: &schemas.ScrollObservation{Percent: 50},
	})
	require.NoError(t, err)
	assert.Empty(t, sink.all())
}

func TestObserve_UnknownKind(t *testing.T) {
	trk, _ := newTestTracker(t)
	ctx := context.Background()
	require.NoError(t, trk.Initialize(ctx, initPayload()))

	err := trk.Observe(ctx, schemas.Observation{Kind: "telepathy"})
	assert.Error(t, err)
}

func TestTrackConversion(t *testing.T) {
	trk, sink := newTestTracker(t)
	ctx := context.Background()
	require.NoError(t, trk.Initialize(ctx, initPayload()))

	require.NoError(t, trk.TrackConversion(ctx, "https://example.com/thanks", "signup", 49.99, map[string]any{"plan": "pro"}))

	events := sink.all()
	conv := events[len(events)-1]
	assert.Equal(t, schemas.EventConversion, conv.Type)
	assert.Equal(t, "signup", conv.Data["goal"])
	assert.Equal(t, 49.99, conv.Data["value"])
	assert.Equal(t, "pro", conv.Data["plan"])
}
