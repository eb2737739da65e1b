package util

import (
	"context"
	"fmt"
	"net"
	"strconv"

	ncerr "remotecap/internal/errors"
)

// ResolveAddr builds a host:port string, validating that the host is a
// numeric IP when noDNS is true.
func ResolveAddr(host string, port int, noDNS bool) (string, error) {
	if noDNS {
		if net.ParseIP(host) == nil {
			return "", fmt.Errorf("%w: cannot parse %q as an IP address (-n)", ncerr.ErrNoDNS, host)
		}
	}
	return net.JoinHostPort(host, strconv.Itoa(port)), nil
}

// LookupHost resolves a hostname with r (net.DefaultResolver when nil).
// Numeric IPs are returned as-is.  With noDNS only numeric IPs are
// accepted.
func LookupHost(ctx context.Context, r *net.Resolver, host string, noDNS bool) ([]string, error) {
	if net.ParseIP(host) != nil {
		return []string{host}, nil
	}
	if noDNS {
		return nil, fmt.Errorf("%w: cannot parse %q as an IP address (-n)", ncerr.ErrNoDNS, host)
	}
	if r == nil {
		r = net.DefaultResolver
	}
	addrs, err := r.LookupHost(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("DNS lookup for %q: %w", host, err)
	}
	return addrs, nil
}

// FormatAddr returns "host:port".
func FormatAddr(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
