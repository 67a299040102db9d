package ratelimit

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// KeyFunc extrai do request a identidade usada como chave de limite.
type KeyFunc func(r *http.Request) string

// DefaultKeyFunc identifica o cliente: header (se configurado), primeiro hop do
// X-Forwarded-For (só com trustXFF e se for um IP) e por fim o host de RemoteAddr.
func DefaultKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return v
			}
		}
		if trustXFF {
			if ip, ok := forwardedClient(r.Header.Get("X-Forwarded-For")); ok {
				return ip
			}
		}
		return remoteHost(r.RemoteAddr)
	}
}

// forwardedClient devolve o primeiro hop normalizado; valor que não é IP é
// descartado para não virar chave livre.
func forwardedClient(xff string) (string, bool) {
	first, _, _ := strings.Cut(xff, ",")
	addr, err := netip.ParseAddr(strings.TrimSpace(first))
	if err != nil {
		return "", false
	}
	return addr.Unmap().WithZone("").String(), true
}

func remoteHost(remoteAddr string) string {
	remoteAddr = strings.TrimSpace(remoteAddr)
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil && host != "" {
		return host
	}
	if remoteAddr != "" {
		return remoteAddr
	}
	return "unknown"
}
