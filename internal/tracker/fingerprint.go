package tracker

import (
	"strings"

	"github.com/labai-app/tracking-agent/api/schemas"
)

// ClassifyDevice derives a device class from a user-agent string. Tablets are
// distinguished from phones by the iPad/Tablet tokens; anything unmatched
// falls back to desktop.
func ClassifyDevice(userAgent string) schemas.DeviceType {
	switch {
	case strings.Contains(userAgent, "iPad"), strings.Contains(userAgent, "Tablet"):
		return schemas.DeviceTablet
	case strings.Contains(userAgent, "Mobile"),
		strings.Contains(userAgent, "Android"),
		strings.Contains(userAgent, "iPhone"):
		return schemas.DeviceMobile
	default:
		return schemas.DeviceDesktop
	}
}

// ClassifyBrowser derives a browser name from a user-agent string. Match
// order matters: Edge and Opera carry "Chrome" in their UA, and Chrome
// carries "Safari".
func ClassifyBrowser(userAgent string) schemas.BrowserName {
	switch {
	case strings.Contains(userAgent, "Edg"):
		return schemas.BrowserEdge
	case strings.Contains(userAgent, "OPR"), strings.Contains(userAgent, "Opera"):
		return schemas.BrowserOpera
	case strings.Contains(userAgent, "Firefox"):
		return schemas.BrowserFirefox
	case strings.Contains(userAgent, "MSIE"), strings.Contains(userAgent, "Trident"):
		return schemas.BrowserIE
	case strings.Contains(userAgent, "Chrome"):
		return schemas.BrowserChrome
	case strings.Contains(userAgent, "Safari"):
		return schemas.BrowserSafari
	default:
		return schemas.BrowserUnknown
	}
}
