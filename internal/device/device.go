// Package device turns raw User-Agent strings into the short, stable device
// descriptions recorded in audit metadata.
package device

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/mssola/useragent"
)

// ParseUserAgent returns a human-readable "Browser on Platform" name for a
// raw User-Agent header. Unknown or empty agents become "Unknown Device".
func ParseUserAgent(ua string) string {
	if strings.TrimSpace(ua) == "" {
		return "Unknown Device"
	}
	parsed := useragent.New(ua)
	browser, _ := parsed.Browser()
	platform := parsed.Platform()
	if parsed.Mobile() && parsed.Model() != "" {
		platform = parsed.Model()
	}
	if browser == "" && platform == "" {
		return "Unknown Device"
	}
	if browser == "" {
		return platform
	}
	if platform == "" {
		return browser
	}
	return browser + " on " + platform
}

// Fingerprint derives a stable hash for a (user-agent, client IP) pair. Used
// to correlate audit entries from the same device without storing the raw
// header.
func Fingerprint(ua, clientIP string) string {
	sum := sha256.Sum256([]byte(ua + "|" + clientIP))
	return hex.EncodeToString(sum[:16])
}
