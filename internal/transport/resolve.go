package transport

import (
	"context"
	"net"

	ncerr "remotecap/internal/errors"
	"remotecap/util"
)

// Resolver turns host names into addresses.
type Resolver struct {
	NoDNS    bool         // accept numeric IPs only
	Resolver *net.Resolver // nil → net.DefaultResolver
}

// Resolve returns every address host resolves to.  An empty answer is
// an error.
func (r *Resolver) Resolve(ctx context.Context, host string) ([]string, error) {
	addrs, err := util.LookupHost(ctx, r.Resolver, host, r.NoDNS)
	if err != nil {
		return nil, err
	}
	if len(addrs) == 0 {
		return nil, ncerr.ErrNoAddressesResolved
	}
	return addrs, nil
}
