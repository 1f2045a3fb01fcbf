package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
)

type clientIPKey struct{}

// ProxyList is the set of networks whose forwarding headers are believed.
type ProxyList []netip.Prefix

// ParseProxies accepts CIDRs or bare addresses. Bad entries are logged and
// skipped.
func ParseProxies(entries []string) ProxyList {
	var out ProxyList
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if pfx, err := netip.ParsePrefix(e); err == nil {
			out = append(out, pfx.Masked())
			continue
		}
		addr, err := netip.ParseAddr(e)
		if err != nil {
			slog.Warn("trusted proxy entry ignored", "entry", e, "error", err)
			continue
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out
}

// Contains reports whether addr sits in one of the proxy networks.
func (p ProxyList) Contains(addr netip.Addr) bool {
	if !addr.IsValid() {
		return false
	}
	addr = addr.Unmap()
	for _, pfx := range p {
		if pfx.Contains(addr) {
			return true
		}
	}
	return false
}

// Resolve returns the client address for r. Forwarding headers count only
// when the connection itself comes from a trusted proxy; X-Real-IP wins
// over the first X-Forwarded-For hop.
func (p ProxyList) Resolve(r *http.Request) string {
	peer, ok := parseAddr(r.RemoteAddr)
	if !ok {
		return r.RemoteAddr
	}
	if p.Contains(peer) {
		if fwd, ok := forwardedFor(r.Header); ok {
			return fwd.String()
		}
	}
	return peer.String()
}

func forwardedFor(h http.Header) (netip.Addr, bool) {
	if v := h.Get("X-Real-IP"); v != "" {
		return parseAddr(v)
	}
	if v := h.Get("X-Forwarded-For"); v != "" {
		first, _, _ := strings.Cut(v, ",")
		return parseAddr(first)
	}
	return netip.Addr{}, false
}

// parseAddr takes "ip", "ip:port" or "[ip]:port".
func parseAddr(s string) (netip.Addr, bool) {
	s = strings.TrimSpace(s)
	if ap, err := netip.ParseAddrPort(s); err == nil {
		return ap.Addr().Unmap(), true
	}
	if a, err := netip.ParseAddr(s); err == nil {
		return a.Unmap(), true
	}
	return netip.Addr{}, false
}

// TrustedRealIP resolves the client address once per request. The result
// replaces RemoteAddr and is available to later handlers through ClientIP.
func TrustedRealIP(trusted []string) func(http.Handler) http.Handler {
	proxies := ParseProxies(trusted)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := proxies.Resolve(r)
			r.RemoteAddr = ip
			ctx := context.WithValue(r.Context(), clientIPKey{}, ip)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientIP returns the address resolved by TrustedRealIP, or the bare host
// of RemoteAddr when the middleware did not run.
func ClientIP(r *http.Request) string {
	if ip, ok := r.Context().Value(clientIPKey{}).(string); ok {
		return ip
	}
	if a, ok := parseAddr(r.RemoteAddr); ok {
		return a.String()
	}
	return r.RemoteAddr
}
