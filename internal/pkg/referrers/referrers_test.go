package referrers

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		referrer  string
		utmMedium string
		expected  Source
	}{
		{"empty referrer", "", "", Direct},
		{"whitespace referrer", "   ", "", Direct},
		{"empty referrer wins over utm", "", "social", Direct},
		{"facebook", "https://www.facebook.com/", "", Social},
		{"facebook link shim", "https://l.facebook.com/l.php?u=x", "", Social},
		{"linkedin", "https://www.linkedin.com/feed/", "", Social},
		{"short twitter host", "https://t.co/abc", "", Social},
		{"x.com", "https://x.com/someone/status/1", "", Social},
		{"tiktok", "https://www.tiktok.com/@me", "", Social},
		{"social utm beats search host", "https://www.google.com/", "social", Social},
		{"social utm is case insensitive", "https://example.com/", "Social", Social},
		{"google", "https://www.google.com/search?q=me", "", Search},
		{"google country domain", "https://www.google.co.uk/", "", Search},
		{"bing", "https://bing.com/", "", Search},
		{"duckduckgo", "https://duckduckgo.com/", "", Search},
		{"yahoo", "https://search.yahoo.com/", "", Search},
		{"other site", "https://news.ycombinator.com/item?id=1", "", Other},
		{"email utm is not social", "https://example.com/", "email", Other},
		{"search keyword in path only", "https://example.com/?ref=google", "", Other},
		{"box.com is not x.com", "https://box.com/", "", Other},
		{"bare host", "github.com", "", Other},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.referrer, tt.utmMedium); got != tt.expected {
				t.Errorf("Classify(%q, %q) = %q, want %q", tt.referrer, tt.utmMedium, got, tt.expected)
			}
		})
	}
}

func TestHost(t *testing.T) {
	tests := []struct {
		referrer string
		expected string
	}{
		{"https://www.Google.com/search", "google.com"},
		{"http://m.facebook.com", "m.facebook.com"},
		{"github.com/karlos", "github.com"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := Host(tt.referrer); got != tt.expected {
			t.Errorf("Host(%q) = %q, want %q", tt.referrer, got, tt.expected)
		}
	}
}
