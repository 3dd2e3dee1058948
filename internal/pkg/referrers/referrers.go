// Package referrers classifies page-view traffic into acquisition channels.
package referrers

import (
	"net/url"
	"strings"
)

// Source is an acquisition channel.
type Source string

const (
	Direct Source = "direct"
	Social Source = "social"
	Search Source = "search"
	Other  Source = "other"
)

// Host fragments, matched anywhere in the referrer host.
var (
	socialFragments = []string{"facebook", "twitter", "instagram", "linkedin", "tiktok"}
	searchFragments = []string{"google", "bing", "yahoo", "duckduckgo"}
)

// Short hosts that cannot be matched by fragment without false positives.
var socialHosts = map[string]bool{
	"t.co":    true,
	"x.com":   true,
	"fb.com":  true,
	"lnkd.in": true,
}

// Classify applies the channel rules in order: an empty referrer is direct,
// then social (by utm_medium or host), then search, otherwise other.
func Classify(referrer, utmMedium string) Source {
	referrer = strings.TrimSpace(referrer)
	if referrer == "" {
		return Direct
	}

	host := Host(referrer)
	if strings.EqualFold(strings.TrimSpace(utmMedium), "social") || isSocial(host) {
		return Social
	}
	if containsAny(host, searchFragments) {
		return Search
	}
	return Other
}

// Host returns the lowercased hostname of a referrer without a leading
// "www.". Values that do not parse as an absolute URL are returned lowercased.
func Host(referrer string) string {
	raw := strings.ToLower(strings.TrimSpace(referrer))
	if raw == "" {
		return ""
	}

	candidate := raw
	if !strings.Contains(candidate, "://") {
		candidate = "https://" + candidate
	}
	if parsed, err := url.Parse(candidate); err == nil && parsed.Hostname() != "" {
		return strings.TrimPrefix(parsed.Hostname(), "www.")
	}
	return raw
}

func isSocial(host string) bool {
	if socialHosts[host] {
		return true
	}
	return containsAny(host, socialFragments)
}

func containsAny(host string, fragments []string) bool {
	for _, fragment := range fragments {
		if strings.Contains(host, fragment) {
			return true
		}
	}
	return false
}
