package pkg

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ClientIPResolver finds the client address of a request. Forwarding headers are only
// believed when the direct peer is one of the trusted proxies; a zero value trusts nobody.
type ClientIPResolver struct {
	trustedProxies []*net.IPNet
}

// NewClientIPResolver parses trusted proxy entries, either single addresses or CIDRs.
func NewClientIPResolver(trustedProxies []string) (*ClientIPResolver, error) {
	resolver := &ClientIPResolver{}
	for _, entry := range trustedProxies {
		entry = strings.TrimSpace(entry)
		if strings.Contains(entry, "/") {
			_, ipNet, err := net.ParseCIDR(entry)
			if err != nil {
				return nil, fmt.Errorf("parse trusted proxy %s: %w", entry, err)
			}
			resolver.trustedProxies = append(resolver.trustedProxies, ipNet)
			continue
		}

		ip := net.ParseIP(entry)
		if ip == nil {
			return nil, fmt.Errorf("trusted proxy %s is not an ip or cidr", entry)
		}
		bits := 8 * net.IPv6len
		if ip.To4() != nil {
			ip = ip.To4()
			bits = 8 * net.IPv4len
		}
		resolver.trustedProxies = append(resolver.trustedProxies, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return resolver, nil
}

func (res *ClientIPResolver) isTrusted(ip net.IP) bool {
	if res == nil {
		return false
	}
	for _, ipNet := range res.trustedProxies {
		if ipNet.Contains(ip) {
			return true
		}
	}
	return false
}

// ClientIP returns the address of the client behind r.
// Behind trusted proxies, X-Forwarded-For is walked from the right: every proxy appends
// the peer it saw, so the first untrusted hop from the right is the client. Hops further
// left are written by the client itself.
func (res *ClientIPResolver) ClientIP(r *http.Request) (string, error) {
	peerAddr := r.RemoteAddr
	if host, _, err := net.SplitHostPort(peerAddr); err == nil {
		peerAddr = host
	}
	peer := net.ParseIP(peerAddr)
	if peer == nil {
		return "", fmt.Errorf("ip addr %s is invalid", r.RemoteAddr)
	}
	if !res.isTrusted(peer) {
		return peer.String(), nil
	}

	client := peer
	hops := forwardedHops(r)
	for i := len(hops) - 1; i >= 0; i-- {
		ip := net.ParseIP(hops[i])
		if ip == nil {
			break
		}
		client = ip
		if !res.isTrusted(ip) {
			return client.String(), nil
		}
	}

	if len(hops) == 0 {
		if realIP := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-Ip"))); realIP != nil {
			client = realIP
		}
	}

	return client.String(), nil
}

// X-Forwarded-For: client, proxy1, proxy2 (possibly split over several header lines)
func forwardedHops(r *http.Request) []string {
	var hops []string
	for _, value := range r.Header.Values("X-Forwarded-For") {
		for _, hop := range strings.Split(value, ",") {
			if hop = strings.TrimSpace(hop); hop != "" {
				hops = append(hops, hop)
			}
		}
	}
	return hops
}
