package backchannel

import (
	"context"
	"fmt"
	"net"
	"net/url"
)

// Resolver resolves a hostname to its IP addresses. The default is the
// system resolver.
type Resolver func(ctx context.Context, host string) ([]net.IP, error)

func systemResolver(ctx context.Context, host string) ([]net.IP, error) {
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}
	ips := make([]net.IP, 0, len(addrs))
	for _, addr := range addrs {
		ips = append(ips, addr.IP)
	}
	return ips, nil
}

// validateEndpoint parses the notification endpoint and resolves its host,
// rejecting anything that points inside the provider's network. Every
// resolved address must be publicly routable.
func validateEndpoint(ctx context.Context, resolver Resolver, endpoint string) (*url.URL, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid notification endpoint: %w", err)
	}
	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return nil, fmt.Errorf("notification endpoint has unsupported scheme %q", parsed.Scheme)
	}
	host := parsed.Hostname()
	if host == "" {
		return nil, fmt.Errorf("notification endpoint has no host")
	}

	var ips []net.IP
	if ip := net.ParseIP(host); ip != nil {
		ips = []net.IP{ip}
	} else {
		ips, err = resolver(ctx, host)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve notification endpoint host %q: %w", host, err)
		}
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("notification endpoint host %q resolved to no addresses", host)
	}
	for _, ip := range ips {
		if !publiclyRoutable(ip) {
			return nil, fmt.Errorf("notification endpoint host %q resolves to a non-routable address %s", host, ip)
		}
	}
	return parsed, nil
}

func publiclyRoutable(ip net.IP) bool {
	switch {
	case ip.IsLoopback(),
		ip.IsPrivate(),
		ip.IsLinkLocalUnicast(),
		ip.IsLinkLocalMulticast(),
		ip.IsInterfaceLocalMulticast(),
		ip.IsMulticast(),
		ip.IsUnspecified():
		return false
	}
	return true
}
