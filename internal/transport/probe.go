package transport

import (
	"context"
	"fmt"
	"time"

	ncerr "remotecap/internal/errors"
	"remotecap/util"
)

// Prober checks that a host answers on a TCP port by opening and
// immediately closing a connection.
type Prober struct {
	Dialer  Dialer
	Timeout time.Duration // per address; 0 → no extra bound
}

// Probe tries each address on port in order and returns the first
// host:port that accepted a connection.  When none do, the error from
// the last attempt is returned.
func (p *Prober) Probe(ctx context.Context, addrs []string, port int) (string, error) {
	var lastErr error = ncerr.ErrNoAddressesResolved
	for _, a := range addrs {
		addr := util.FormatAddr(a, port)
		if err := p.probeOne(ctx, addr); err != nil {
			lastErr = err
			continue
		}
		return addr, nil
	}
	return "", lastErr
}

func (p *Prober) probeOne(ctx context.Context, addr string) error {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	conn, err := p.Dialer.Dial(ctx, "tcp", addr)
	if err != nil {
		if ncerr.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", ncerr.ErrTimeout, err)
		}
		return ncerr.Wrap("probe", addr, err)
	}
	return conn.Close()
}
