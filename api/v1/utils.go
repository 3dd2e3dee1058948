package v1

import (
	"log/slog"
	"net"
	"net/netip"
	"strings"

	"github.com/gofiber/fiber/v2"

	"portfolio/internal/pkg/geoip"
)

var isPrivateIP = geoip.IsPrivateIP

// getClientIP prefers the first public address reported by a proxy header.
// Without one it returns the loopback address, which geolocation resolves as
// a local request.
func getClientIP(c *fiber.Ctx) string {
	// Try standard headers first
	if ip := selectPreferredIP(strings.Split(c.Get("X-Forwarded-For"), ",")); ip != "" {
		return ip
	}

	// Other reverse-proxy headers
	for _, header := range []string{
		"X-Real-IP",
		"CF-Connecting-IP",
		"True-Client-IP",
		"X-Client-IP",
	} {
		if value := c.Get(header); value != "" {
			if ip := selectPreferredIP([]string{value}); ip != "" {
				return ip
			}
		}
	}

	if forwarded := c.Get("Forwarded"); forwarded != "" {
		if ip := selectPreferredIP(parseForwardedHeader(forwarded)); ip != "" {
			return ip
		}
	}

	// Try the remote address from the request directly
	remoteAddr := c.Context().RemoteAddr().String()
	if remoteAddr != "" {
		host, _, err := net.SplitHostPort(remoteAddr)
		if err != nil {
			host = remoteAddr
		}
		if routable(net.ParseIP(host)) {
			return host
		}
	}

	// Finally, use Fiber's built-in method
	if ip := strings.TrimSpace(c.IP()); routable(net.ParseIP(ip)) {
		return ip
	}

	slog.Default().Debug("Fallback to loopback IP for request",
		slog.String("path", c.Path()))
	return "127.0.0.1"
}

// routable reports whether ip can identify a remote visitor.
func routable(ip net.IP) bool {
	return ip != nil && !ip.IsUnspecified() && !isPrivateIP(ip)
}

func selectPreferredIP(values []string) string {
	var ipv6Fallback string

	for _, raw := range values {
		clean, parsed := normalizeIP(raw)
		if parsed == nil || isPrivateIP(parsed) {
			continue
		}

		if parsed.To4() != nil {
			return clean
		}

		if ipv6Fallback == "" {
			ipv6Fallback = clean
		}
	}

	return ipv6Fallback
}

func normalizeIP(raw string) (string, net.IP) {
	clean := strings.TrimSpace(raw)
	clean = strings.Trim(clean, "\"")
	if clean == "" {
		return "", nil
	}

	// Remove zone identifier if present (e.g. fe80::1%eth0)
	if percent := strings.Index(clean, "%"); percent != -1 {
		clean = clean[:percent]
	}

	// Try parsing addr:port (handles both IPv4:port and [IPv6]:port)
	if addrPort, err := netip.ParseAddrPort(clean); err == nil {
		addr := addrPort.Addr()
		if addr.Is4In6() {
			addr = addr.Unmap()
		}
		ipStr := addr.String()
		return ipStr, net.ParseIP(ipStr)
	}

	trimmed := clean
	if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
		trimmed = strings.TrimPrefix(trimmed, "[")
		trimmed = strings.TrimSuffix(trimmed, "]")
	}

	if addr, err := netip.ParseAddr(trimmed); err == nil {
		if addr.Is4In6() {
			addr = addr.Unmap()
		}
		ipStr := addr.String()
		return ipStr, net.ParseIP(ipStr)
	}

	if host, _, err := net.SplitHostPort(clean); err == nil {
		return normalizeIP(host)
	}

	return "", nil
}

func parseForwardedHeader(header string) []string {
	var candidates []string

	entries := strings.Split(header, ",")
	for _, entry := range entries {
		parts := strings.Split(entry, ";")
		for _, part := range parts {
			part = strings.TrimSpace(part)
			if strings.HasPrefix(strings.ToLower(part), "for=") {
				ip := strings.TrimPrefix(part, "for=")
				candidates = append(candidates, ip)
			}
		}
	}

	return candidates
}
