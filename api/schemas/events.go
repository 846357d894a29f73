// -- api/schemas/events.go --
package schemas

import "time"

// EventType names a tracked interaction.
type EventType string

const (
	EventPageView    EventType = "page_view"
	EventClick       EventType = "click"
	EventFormSubmit  EventType = "form_submit"
	EventScrollDepth EventType = "scroll_depth"
	EventPageHide    EventType = "page_hide"
	EventPageShow    EventType = "page_show"
	EventPageExit    EventType = "page_exit"
	EventConversion  EventType = "conversion"
)

// Event is one tracked interaction. Events are immutable once built; they are
// appended to the session log and handed to the relay in the same step.
type Event struct {
	Type       EventType      `json:"type"`
	Data       map[string]any `json:"data"`
	Timestamp  time.Time      `json:"timestamp"`
	TrackingID string         `json:"trackingId"`
	WebsiteID  int64          `json:"websiteId"`
	SessionID  string         `json:"sessionId"`
	URL        string         `json:"url"`
}

// DeviceType classifies the visitor's device from its user agent.
type DeviceType string

const (
	DeviceDesktop DeviceType = "desktop"
	DeviceMobile  DeviceType = "mobile"
	DeviceTablet  DeviceType = "tablet"
)

// BrowserName classifies the visitor's browser from its user agent.
type BrowserName string

const (
	BrowserChrome  BrowserName = "Chrome"
	BrowserFirefox BrowserName = "Firefox"
	BrowserSafari  BrowserName = "Safari"
	BrowserEdge    BrowserName = "Edge"
	BrowserOpera   BrowserName = "Opera"
	BrowserIE      BrowserName = "Internet Explorer"
	BrowserUnknown BrowserName = "Unknown"
)

// Session is the activity record for one browser-tab visit.
type Session struct {
	SessionID    string      `json:"sessionId"`
	StartTime    time.Time   `json:"startTime"`
	Referrer     string      `json:"referrer"`
	LandingPage  string      `json:"landingPage"`
	UserAgent    string      `json:"userAgent"`
	ScreenWidth  int         `json:"screenWidth"`
	ScreenHeight int         `json:"screenHeight"`
	DeviceType   DeviceType  `json:"deviceType"`
	BrowserName  BrowserName `json:"browserName"`
	Events       []Event     `json:"events"`
}

// -- Observations --

// ObservationKind discriminates the raw browser observations the extension
// forwards before they are normalized into events.
type ObservationKind string

const (
	ObserveClick      ObservationKind = "click"
	ObserveFormSubmit ObservationKind = "form_submit"
	ObserveVisibility ObservationKind = "visibility"
	ObserveScroll     ObservationKind = "scroll"
	ObserveUnload     ObservationKind = "unload"
	ObserveConversion ObservationKind = "conversion"
	ObservePageView   ObservationKind = "page_view"
)

// Observation is a tagged union over the raw observation kinds. Exactly one
// of the kind-specific fields is populated.
type Observation struct {
	Kind       ObservationKind        `json:"kind"`
	URL        string                 `json:"url"`
	Click      *ClickObservation      `json:"click,omitempty"`
	Form       *FormObservation       `json:"form,omitempty"`
	Visibility *VisibilityObservation `json:"visibility,omitempty"`
	Scroll     *ScrollObservation     `json:"scroll,omitempty"`
	Conversion *ConversionObservation `json:"conversion,omitempty"`
}

// ClickObservation captures a click target as seen in the page.
type ClickObservation struct {
	TagName   string `json:"tagName"`
	InnerText string `json:"innerText"`
	ID        string `json:"id"`
	Classes   string `json:"classes"`
	Href      string `json:"href,omitempty"`
}

// FormField describes one input of an observed form. Field values are never
// transmitted; only structural attributes cross the bridge.
type FormField struct {
	Name string `json:"name"`
	ID   string `json:"id"`
	Type string `json:"type"`
}

// FormObservation captures a form submission. Values stay in the page.
type FormObservation struct {
	FormID string      `json:"formId"`
	Action string      `json:"action"`
	Method string      `json:"method"`
	Fields []FormField `json:"fields"`
}

// VisibilityObservation reports a document visibility change.
type VisibilityObservation struct {
	Hidden bool `json:"hidden"`
}

// ScrollObservation reports the current scroll position as a percentage of
// the full page height.
type ScrollObservation struct {
	Percent int `json:"percent"`
}

// ConversionObservation reports a page-declared conversion goal.
type ConversionObservation struct {
	Goal  string         `json:"goal"`
	Value float64        `json:"value,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
}
