// -- api/schemas/websites.go --
package schemas

// Website is a site registered for tracking with the remote API. Created
// server-side; the agent only caches it.
type Website struct {
	ID         int64  `json:"id"`
	Domain     string `json:"domain"`
	TrackingID string `json:"trackingId"`
	Name       string `json:"name"`
	Settings   string `json:"settings,omitempty"`
}
