package http

import (
	"net"
	"net/http"
	"strings"
)

// IPConfig holds configuration for IP extraction
type IPConfig struct {
	TrustedProxies []string // CIDR ranges of trusted proxies
	TrustAll       bool     // honor forwarding headers from any peer
}

// ParseIPConfig builds an IPConfig from a TRUSTED_PROXIES style list. A "*" entry trusts every peer.
func ParseIPConfig(entries []string) *IPConfig {
	cfg := &IPConfig{}
	for _, e := range entries {
		e = strings.TrimSpace(e)
		switch {
		case e == "":
		case e == "*":
			cfg.TrustAll = true
		default:
			cfg.TrustedProxies = append(cfg.TrustedProxies, e)
		}
	}
	return cfg
}

// ExtractClientIP extracts the client IP address from the request.
// Forwarding headers are only read when the peer is a trusted proxy (or TrustAll is set).
//
// Precedence:
// 1. X-Forwarded-For, first valid entry
// 2. X-Real-IP (as set by the fronting proxy or chi's RealIP convention)
// 3. RemoteAddr without port
// 4. "unknown"
func ExtractClientIP(r *http.Request, config *IPConfig) string {
	remoteIP := getRemoteAddr(r)

	if config != nil && (config.TrustAll || isTrustedProxy(remoteIP, config.TrustedProxies)) {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			for _, ip := range strings.Split(xff, ",") {
				ip = strings.TrimSpace(ip)
				if isValidIP(ip) {
					return ip
				}
			}
		}

		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" && isValidIP(xri) {
			return xri
		}
	}

	return remoteIP
}

// getRemoteAddr extracts the IP address from RemoteAddr (removing port if present)
func getRemoteAddr(r *http.Request) string {
	if r.RemoteAddr != "" {
		if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			return ip
		}
		return r.RemoteAddr
	}
	return "unknown"
}

// isTrustedProxy checks if an IP address is within any of the trusted proxy CIDR ranges
func isTrustedProxy(ip string, trustedProxies []string) bool {
	if len(trustedProxies) == 0 {
		return false
	}

	clientIP := net.ParseIP(ip)
	if clientIP == nil {
		return false
	}

	for _, cidr := range trustedProxies {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			continue
		}
		if ipNet.Contains(clientIP) {
			return true
		}
	}

	return false
}

func isValidIP(ip string) bool {
	return net.ParseIP(ip) != nil
}
