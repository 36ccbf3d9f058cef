package utils

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/smarttransit/seat-inventory/internal/models"
	"github.com/stretchr/testify/assert"
)

const (
	androidChrome = "Mozilla/5.0 (Linux; Android 12; SM-G991B) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/112.0.0.0 Mobile Safari/537.36"
	desktopChrome = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/118.0.0.0 Safari/537.36"
	ipadSafari    = "Mozilla/5.0 (iPad; CPU OS 16_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.0 Mobile/15E148 Safari/604.1"
	nativeApp     = "SmartTransit/2.3.1 (Android 13) okhttp/4.11.0"
)

func TestParseUserAgent(t *testing.T) {
	t.Run("Android phone", func(t *testing.T) {
		info := ParseUserAgent(androidChrome)
		assert.Equal(t, "mobile", info.DeviceType)
		assert.Equal(t, "android", info.Platform)
		assert.Equal(t, "Chrome", info.Browser)
		assert.False(t, info.IsBot)
	})

	t.Run("Desktop", func(t *testing.T) {
		info := ParseUserAgent(desktopChrome)
		assert.Equal(t, "desktop", info.DeviceType)
		assert.Equal(t, "windows", info.Platform)
	})

	t.Run("Tablet", func(t *testing.T) {
		info := ParseUserAgent(ipadSafari)
		assert.Equal(t, "tablet", info.DeviceType)
	})

	t.Run("Empty", func(t *testing.T) {
		info := ParseUserAgent("")
		assert.Equal(t, "unknown", info.DeviceType)
		assert.Equal(t, "unknown", info.Platform)
	})
}

func TestResolveBookingSource(t *testing.T) {
	assert.Equal(t, models.BookingSourceApp, ResolveBookingSource("", ParseUserAgent(nativeApp), false))
	assert.Equal(t, models.BookingSourceWeb, ResolveBookingSource("", ParseUserAgent(desktopChrome), false))
	assert.Equal(t, models.BookingSourceKiosk, ResolveBookingSource("kiosk", ParseUserAgent(desktopChrome), false))
	assert.Equal(t, models.BookingSourceAgent, ResolveBookingSource("", ParseUserAgent(desktopChrome), true))
	// only agents may claim the agent channel
	assert.Equal(t, models.BookingSourceWeb, ResolveBookingSource("agent", ParseUserAgent(desktopChrome), false))
}

func TestToBookingDeviceInfo(t *testing.T) {
	info := ParseUserAgent(androidChrome).ToBookingDeviceInfo("203.0.113.9")
	assert.Equal(t, "mobile", info["device_type"])
	assert.Equal(t, "203.0.113.9", info["ip"])
	assert.Contains(t, info, "browser_version")
}

func TestClientIP(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name     string
		headers  map[string]string
		expected string
	}{
		{"X-Real-IP public", map[string]string{"X-Real-IP": "203.0.113.7"}, "203.0.113.7"},
		{"Forwarded skips private hops", map[string]string{"X-Forwarded-For": "10.0.0.4, 198.51.100.20"}, "198.51.100.20"},
		{"No proxy headers", map[string]string{}, "192.0.2.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				c.Request.Header.Set(k, v)
			}
			assert.Equal(t, tt.expected, ClientIP(c))
		})
	}
}
