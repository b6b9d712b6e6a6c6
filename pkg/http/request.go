package http

import (
	"net"
	"net/http"
	"strings"
)

// HeaderPeerSecret carries the shared secret on peer-to-peer calls
// between cooperating servers.
const HeaderPeerSecret = "X-Peer-Secret"

// IPConfig holds the parsed trusted-proxy ranges for client IP
// resolution. Build it once at startup with NewIPConfig; a nil config
// trusts nothing and always answers with the transport peer address.
type IPConfig struct {
	proxies []*net.IPNet
}

// NewIPConfig parses the given CIDR ranges. Unparseable entries are
// dropped, which fails toward trusting fewer peers, not more.
func NewIPConfig(cidrs []string) *IPConfig {
	cfg := &IPConfig{}
	for _, cidr := range cidrs {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			continue
		}
		cfg.proxies = append(cfg.proxies, ipNet)
	}
	return cfg
}

// Trusts reports whether the address belongs to a trusted proxy range.
func (c *IPConfig) Trusts(ip net.IP) bool {
	if c == nil || ip == nil {
		return false
	}
	for _, ipNet := range c.proxies {
		if ipNet.Contains(ip) {
			return true
		}
	}
	return false
}

// ExtractClientIP resolves the real client address of a request. The
// X-Forwarded-For and X-Real-IP headers are believed only when the
// direct transport peer is a trusted proxy; otherwise they are attacker
// controlled and the peer address wins.
func ExtractClientIP(r *http.Request, config *IPConfig) string {
	remoteIP := peerAddress(r)

	if config.Trusts(net.ParseIP(remoteIP)) {
		// First valid entry is the originating client, the rest are
		// intermediate proxies appending themselves.
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			for _, candidate := range strings.Split(xff, ",") {
				candidate = strings.TrimSpace(candidate)
				if net.ParseIP(candidate) != nil {
					return candidate
				}
			}
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" && net.ParseIP(xri) != nil {
			return xri
		}
	}

	return remoteIP
}

// peerAddress strips the port from RemoteAddr.
func peerAddress(r *http.Request) string {
	if r.RemoteAddr == "" {
		return "unknown"
	}
	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return ip
	}
	return r.RemoteAddr
}
