package tracker

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/labai-app/tracking-agent/api/schemas"
)

const (
	uaChromeDesktop = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	uaFirefox       = "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0"
	uaSafariMac     = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15"
	uaEdge          = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0"
	uaOpera         = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36 OPR/105.0.0.0"
	uaIE11          = "Mozilla/5.0 (Windows NT 10.0; Trident/7.0; rv:11.0) like Gecko"
	uaIPhone        = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1"
	uaIPad          = "Mozilla/5.0 (iPad; CPU OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1"
	uaAndroidPhone  = "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36"
)

func TestClassifyBrowser(t *testing.T) {
	tests := []struct {
		name      string
		userAgent string
		want      schemas.BrowserName
	}{
		{"chrome", uaChromeDesktop, schemas.BrowserChrome},
		{"firefox", uaFirefox, schemas.BrowserFirefox},
		{"safari", uaSafariMac, schemas.BrowserSafari},
		{"edge carries chrome token", uaEdge, schemas.BrowserEdge},
		{"opera carries chrome token", uaOpera, schemas.BrowserOpera},
		{"internet explorer", uaIE11, schemas.BrowserIE},
		{"empty", "", schemas.BrowserUnknown},
		{"bot", "curl/8.4.0", schemas.BrowserUnknown},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyBrowser(tc.userAgent))
		})
	}
}

func TestClassifyDevice(t *testing.T) {
	tests := []struct {
		name      string
		userAgent string
		want      schemas.DeviceType
	}{
		{"desktop chrome", uaChromeDesktop, schemas.DeviceDesktop},
		{"iphone", uaIPhone, schemas.DeviceMobile},
		{"android phone", uaAndroidPhone, schemas.DeviceMobile},
		{"ipad is tablet not mobile", uaIPad, schemas.DeviceTablet},
		{"generic tablet token", "SomeBrowser/1.0 Tablet", schemas.DeviceTablet},
		{"empty falls back to desktop", "", schemas.DeviceDesktop},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyDevice(tc.userAgent))
		})
	}
}
