// Package identity extracts a stable device identifier from inbound request
// metadata. The hardware address is the primary device identity key; the raw
// connection address is a fallback reserved for the captive-portal probe
// path.
package identity

import (
	"net"
	"net/http"
	"strings"

	"guestgate/pkg/domain"
	domainerrors "guestgate/pkg/domain-errors"
)

// headerSources lists client-supplied hardware-address headers in priority
// order. Hotspot gateways inject these when forwarding guest traffic.
var headerSources = []string{
	"X-Device-MAC",
	"X-Calling-Station-Id",
	"X-Client-MAC",
}

// Resolver resolves device identity from request metadata.
type Resolver struct{}

// NewResolver constructs a Resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve returns the device hardware address from the request headers.
// Fails closed with identification_required when no valid hardware address
// is present; signup and login must never fall back to the connection
// address.
func (r *Resolver) Resolve(req *http.Request) (domain.MAC, error) {
	for _, header := range headerSources {
		candidate := req.Header.Get(header)
		if candidate == "" {
			continue
		}
		if mac, ok := domain.ParseMAC(candidate); ok {
			return mac, nil
		}
	}
	return "", domainerrors.NewWithSuggestion(
		domainerrors.CodeIdentificationRequired,
		"no usable device identifier",
		"reconnect to the WiFi network so the gateway can identify your device",
	)
}

// ResolveWithFallback returns the hardware address when present, or the raw
// connection address otherwise. Only the probe classification path may use
// the fallback. Loopback addresses are rejected as identifiers.
func (r *Resolver) ResolveWithFallback(req *http.Request) (string, error) {
	if mac, err := r.Resolve(req); err == nil {
		return mac.String(), nil
	}

	ip := SourceIP(req)
	if ip == "" {
		return "", domainerrors.New(domainerrors.CodeIdentificationRequired, "no usable device identifier")
	}
	if parsed := net.ParseIP(ip); parsed != nil && parsed.IsLoopback() {
		return "", domainerrors.New(domainerrors.CodeIdentificationRequired, "loopback address is not a device identifier")
	}
	return ip, nil
}

// SourceIP extracts the client address from the request, preferring the
// first X-Forwarded-For hop when the gateway proxies traffic.
func SourceIP(req *http.Request) string {
	if fwd := req.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}
	return host
}
