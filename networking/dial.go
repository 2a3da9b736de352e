package networking

import (
	"context"
	"net"
	"strconv"
	"time"

	"dms_transfer/errs"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/ipv4"
)

// DialOptions tune outgoing connections
type DialOptions struct {
	Timeout      time.Duration
	DSCP         int  // Differentiated services code point, 0 leaves the TOS byte alone
	NoDelay      bool // TCP_NODELAY
	MultipathTCP bool
}

// Connect resolves host to its candidate addresses and dials each in order,
// returning the first connection that succeeds.
func Connect(ctx context.Context, host string, port int, opts DialOptions) (net.Conn, error) {
	candidates, err := net.DefaultResolver.LookupHost(ctx, host)
	if err != nil {
		return nil, errs.New(errs.ErrConnection, "failed to resolve "+host, err)
	}

	dial := &net.Dialer{Timeout: opts.Timeout}
	// Set MPTCP.
	dial.SetMultipathTCP(opts.MultipathTCP)

	var lastErr error
	for _, candidate := range candidates {
		addr := net.JoinHostPort(candidate, strconv.Itoa(port))
		conn, err := dial.DialContext(ctx, "tcp", addr)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Connect",
				"address":  addr,
				"error":    err.Error(),
			}).Debug("Connect candidate failed")
			lastErr = err
			continue
		}
		tune(conn, opts)
		return conn, nil
	}

	return nil, errs.New(errs.ErrConnection,
		"failed to connect to "+net.JoinHostPort(host, strconv.Itoa(port)), lastErr)
}

// tune applies socket options. Failures are logged, never fatal.
func tune(conn net.Conn, opts DialOptions) {
	if tcp, ok := conn.(*net.TCPConn); ok {
		// Set TCP_NODELAY to always immediately send.
		tcp.SetNoDelay(opts.NoDelay)
	}
	if opts.DSCP == 0 {
		return
	}
	// DSCP lives in the upper six bits of the TOS byte. Only meaningful for IPv4 peers;
	// on Windows the value is not applied by default.
	if remote, ok := conn.RemoteAddr().(*net.TCPAddr); ok && remote.IP.To4() != nil {
		if err := ipv4.NewConn(conn).SetTOS(opts.DSCP << 2); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "tune",
				"dscp":     opts.DSCP,
				"error":    err.Error(),
			}).Debug("Could not set DSCP")
		}
	}
}

// Listen binds a TCP listener on bind:port. Port 0 requests an ephemeral port.
func Listen(ctx context.Context, bind string, port int, multipath bool) (net.Listener, error) {
	addr := net.JoinHostPort(bind, strconv.Itoa(port))
	lc := new(net.ListenConfig)
	// Set MPTCP.
	lc.SetMultipathTCP(multipath)
	l, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, errs.New(errs.ErrConnection, "failed to bind listening socket on "+addr, err)
	}
	return l, nil
}

// ListenerPort returns the port a listener is actually bound to
func ListenerPort(l net.Listener) int {
	if addr, ok := l.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}
