// -- api/schemas/messages.go --
package schemas

import "encoding/json"

// Action identifies the kind of a bridge message. The set is closed; the
// dispatcher matches every member and rejects anything else.
type Action string

const (
	ActionInit             Action = "init"
	ActionTrackEvent       Action = "trackEvent"
	ActionObservation      Action = "observation"
	ActionLogin            Action = "login"
	ActionLogout           Action = "logout"
	ActionActivateTracking Action = "activateTracking"
	ActionAnalyzeWebsite   Action = "analyzeWebsite"
	ActionGetAuthStatus    Action = "getAuthStatus"
	ActionGetAnalyticsData Action = "getAnalyticsData"
)

// Message is the envelope every bridge request arrives in. Payload is decoded
// into the action-specific struct by the dispatcher.
type Message struct {
	Action  Action          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// -- Action Payloads --

// InitPayload carries the one-time tracker initialization handshake.
type InitPayload struct {
	TrackingID string `json:"trackingId"`
	WebsiteID  int64  `json:"websiteId"`
	TabID      string `json:"tabId"`
	PageContext
}

// PageContext describes the page and browser environment the extension
// observed at session start. It seeds the tracker's session record.
type PageContext struct {
	URL          string `json:"url"`
	Referrer     string `json:"referrer"`
	UserAgent    string `json:"userAgent"`
	ScreenWidth  int    `json:"screenWidth"`
	ScreenHeight int    `json:"screenHeight"`
}

// TrackEventPayload is the page-facing trackEvent call: an arbitrary event
// type with a caller-supplied data map.
type TrackEventPayload struct {
	Type EventType      `json:"type"`
	Data map[string]any `json:"data"`
	URL  string         `json:"url"`
}

// LoginPayload carries user credentials for the remote API.
type LoginPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ActivateTrackingPayload requests registration of a domain for tracking.
type ActivateTrackingPayload struct {
	Domain  string            `json:"domain"`
	Name    string            `json:"name,omitempty"`
	Options map[string]string `json:"options,omitempty"`
}

// AnalyzeWebsitePayload requests an on-demand page analysis.
type AnalyzeWebsitePayload struct {
	URL string `json:"url"`
}

// GetAnalyticsPayload requests aggregated analytics for one website.
type GetAnalyticsPayload struct {
	WebsiteID int64  `json:"websiteId"`
	TimeRange string `json:"timeRange"`
}

// -- Responses --

// Response is the generic handler reply. Handlers never let an error escape
// the dispatch layer; failures come back as Success=false with a message.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// LoginResponse reports the outcome of a login attempt.
type LoginResponse struct {
	Response
	User *UserIdentity `json:"user,omitempty"`
}

// UserIdentity is the authenticated identity as reported to UI surfaces.
// The bearer token is deliberately absent.
type UserIdentity struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

// AuthStatusResponse is the synchronous auth snapshot.
type AuthStatusResponse struct {
	Response
	IsLoggedIn      bool      `json:"isLoggedIn"`
	User            *UserIdentity `json:"user,omitempty"`
	TrackedWebsites []Website `json:"trackedWebsites,omitempty"`
}

// ActivateTrackingResponse reports a registration outcome. For an
// already-tracked domain Success is true and Message explains why no new
// registration happened.
type ActivateTrackingResponse struct {
	Response
	WebsiteID  int64  `json:"websiteId,omitempty"`
	TrackingID string `json:"trackingId,omitempty"`
}

// AnalyticsResponse wraps the raw analytics payload from the remote API.
type AnalyticsResponse struct {
	Response
	Data json.RawMessage `json:"data,omitempty"`
}

// AnalyzeWebsiteResponse reports an on-demand analysis result.
type AnalyzeWebsiteResponse struct {
	Response
	Analysis json.RawMessage `json:"analysis,omitempty"`
	Saved    bool            `json:"saved"`
}
