package v1

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeIP(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"79.144.65.173", "79.144.65.173"},
		{" \"79.144.65.173:1234\" ", "79.144.65.173"},
		{"[2001:db8::1]:8443", "2001:db8::1"},
		{"fe80::1%eth0", "fe80::1"},
		{"::ffff:203.0.113.9", "203.0.113.9"},
		{"not-an-ip", ""},
		{"   ", ""},
	}

	for _, tc := range tests {
		got, parsed := normalizeIP(tc.raw)
		assert.Equal(t, tc.want, got, tc.raw)
		if tc.want == "" {
			assert.Nil(t, parsed, tc.raw)
			continue
		}
		require.NotNil(t, parsed, tc.raw)
		assert.Equal(t, tc.want, parsed.String())
	}
}

func TestSelectPreferredIP(t *testing.T) {
	assert.Equal(t, "203.0.113.20", selectPreferredIP([]string{"2001:db8::1", "203.0.113.20"}))
	assert.Equal(t, "198.51.100.7", selectPreferredIP([]string{"192.168.1.10", "::1", "198.51.100.7"}))
	assert.Equal(t, "2001:db8::2", selectPreferredIP([]string{"2001:db8::2"}))
	assert.Empty(t, selectPreferredIP([]string{"", "not-an-ip", "10.0.0.5"}))
}

func TestParseForwardedHeader(t *testing.T) {
	got := parseForwardedHeader(`for=192.0.2.60;proto=http;by=203.0.113.43, for="[2001:db8:cafe::17]:4711"`)
	assert.Equal(t, []string{"192.0.2.60", `"[2001:db8:cafe::17]:4711"`}, got)
	assert.Empty(t, parseForwardedHeader("proto=https"))
}

func TestGetClientIP(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(getClientIP(c))
	})

	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"forwarded for skips private hops", map[string]string{"X-Forwarded-For": "10.0.0.1, 203.0.113.5"}, "203.0.113.5"},
		{"real ip header", map[string]string{"X-Real-IP": "198.51.100.2"}, "198.51.100.2"},
		{"cloudflare header", map[string]string{"CF-Connecting-IP": "198.51.100.3"}, "198.51.100.3"},
		{"forwarded header", map[string]string{"Forwarded": `for="[2001:db8::7]:4711"`}, "2001:db8::7"},
		{"private only falls back to loopback", map[string]string{"X-Forwarded-For": "192.168.0.9"}, "127.0.0.1"},
		{"no headers falls back to loopback", nil, "127.0.0.1"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			body, _ := io.ReadAll(resp.Body)
			assert.Equal(t, tc.want, string(body))
		})
	}
}
