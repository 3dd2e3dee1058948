package geoip

import (
	"context"
	"net"
	"strings"
)

// LocalNetwork answers for loopback and private addresses so no external
// lookup is made for development traffic.
type LocalNetwork struct{}

func (LocalNetwork) Name() string { return "local" }

func (LocalNetwork) Lookup(_ context.Context, req Request) (Location, error) {
	ip := strings.TrimSpace(req.IP)
	if ip == "" || strings.EqualFold(ip, "unknown") {
		return LocalLocation, nil
	}
	if IsPrivateIP(net.ParseIP(ip)) {
		return LocalLocation, nil
	}
	return Location{}, ErrNoLocation
}

var privateIPBlocks = []*net.IPNet{
	parseCIDR("10.0.0.0/8"),     // RFC 1918
	parseCIDR("172.16.0.0/12"),  // RFC 1918
	parseCIDR("192.168.0.0/16"), // RFC 1918
	parseCIDR("fc00::/7"),       // RFC 4193 Unique Local Addresses
	parseCIDR("fe80::/10"),      // RFC 4291 Link-Local
	parseCIDR("::1/128"),        // Loopback
	parseCIDR("127.0.0.0/8"),    // Loopback
}

// IsPrivateIP reports whether ip is loopback, link-local or in a private range.
func IsPrivateIP(ip net.IP) bool {
	if ip == nil {
		return false
	}

	for _, block := range privateIPBlocks {
		candidate := ip

		switch len(block.IP) {
		case net.IPv4len:
			if ip4 := ip.To4(); ip4 != nil {
				candidate = ip4
			} else {
				continue
			}
		case net.IPv6len:
			candidate = ip.To16()
			if candidate == nil {
				continue
			}
		}

		if block.Contains(candidate) {
			return true
		}
	}
	return false
}

func parseCIDR(s string) *net.IPNet {
	_, block, _ := net.ParseCIDR(s)
	return block
}

// publicIP parses ip and rejects addresses no provider can locate.
func publicIP(ip string) net.IP {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil || IsPrivateIP(parsed) || parsed.IsUnspecified() {
		return nil
	}
	return parsed
}
