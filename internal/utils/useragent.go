package utils

import (
	"strings"

	ua "github.com/mssola/user_agent"
	"github.com/smarttransit/seat-inventory/internal/models"
)

// DeviceInfo holds parsed information from a User-Agent string
type DeviceInfo struct {
	DeviceType string // mobile, tablet, desktop, unknown
	OS         string // Android 12, iOS 15, Windows 10, etc.
	Browser    string // Chrome, Safari, Firefox, etc.
	BrowserVer string
	IsBot      bool
	Platform   string // android, ios, windows, mac, linux, unknown
	Raw        string
}

// appMarkers identify the native booking apps, which send their own User-Agent
var appMarkers = []string{"smarttransit", "okhttp", "dart:io", "cfnetwork"}

// ParseUserAgent parses a User-Agent string and extracts device information
func ParseUserAgent(userAgent string) DeviceInfo {
	if strings.TrimSpace(userAgent) == "" {
		return DeviceInfo{DeviceType: "unknown", OS: "Unknown", Browser: "Unknown", Platform: "unknown"}
	}

	parser := ua.New(userAgent)
	browser, version := parser.Browser()
	if browser == "" {
		browser = "Unknown"
	}

	info := DeviceInfo{
		DeviceType: "desktop",
		OS:         osName(parser),
		Browser:    browser,
		BrowserVer: version,
		IsBot:      parser.Bot(),
		Platform:   platform(parser),
		Raw:        userAgent,
	}

	if parser.Mobile() {
		info.DeviceType = "mobile"
		if isTablet(userAgent) {
			info.DeviceType = "tablet"
		}
	}

	return info
}

// IsNativeApp reports whether the request came from one of the booking apps
func (d DeviceInfo) IsNativeApp() bool {
	lower := strings.ToLower(d.Raw)
	for _, marker := range appMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// ToBookingDeviceInfo converts the parsed agent into the JSONB stored on the booking
func (d DeviceInfo) ToBookingDeviceInfo(ip string) models.DeviceInfo {
	info := models.DeviceInfo{
		"device_type": d.DeviceType,
		"os":          d.OS,
		"browser":     d.Browser,
		"platform":    d.Platform,
		"is_bot":      d.IsBot,
	}
	if d.BrowserVer != "" {
		info["browser_version"] = d.BrowserVer
	}
	if ip != "" {
		info["ip"] = ip
	}
	return info
}

// ResolveBookingSource picks the booking source. An explicit, known source wins;
// agents are always "agent"; native apps are "app"; everything else is "web".
func ResolveBookingSource(explicit string, device DeviceInfo, isAgent bool) models.BookingSource {
	switch models.BookingSource(strings.ToLower(strings.TrimSpace(explicit))) {
	case models.BookingSourceApp:
		return models.BookingSourceApp
	case models.BookingSourceWeb:
		return models.BookingSourceWeb
	case models.BookingSourceKiosk:
		return models.BookingSourceKiosk
	case models.BookingSourceAgent:
		if isAgent {
			return models.BookingSourceAgent
		}
	}

	if isAgent {
		return models.BookingSourceAgent
	}
	if device.IsNativeApp() {
		return models.BookingSourceApp
	}
	return models.BookingSourceWeb
}

func isTablet(userAgent string) bool {
	lower := strings.ToLower(userAgent)
	for _, indicator := range []string{"ipad", "tablet", "kindle", "nexus 7", "nexus 9", "nexus 10", "sm-t"} {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return false
}

func osName(parser *ua.UserAgent) string {
	osInfo := parser.OSInfo()
	if osInfo.Name == "" {
		return "Unknown"
	}
	if osInfo.Version != "" {
		return osInfo.Name + " " + osInfo.Version
	}
	return osInfo.Name
}

func platform(parser *ua.UserAgent) string {
	lower := strings.ToLower(parser.OS() + " " + parser.Platform())
	switch {
	case strings.Contains(lower, "android"):
		return "android"
	case strings.Contains(lower, "iphone"), strings.Contains(lower, "ipad"), strings.Contains(lower, "ios"):
		return "ios"
	case strings.Contains(lower, "windows"):
		return "windows"
	case strings.Contains(lower, "mac"):
		return "mac"
	case strings.Contains(lower, "linux"):
		return "linux"
	default:
		return "unknown"
	}
}
