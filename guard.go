package bridge

import (
	"fmt"
	"log/slog"
	"net"
)

// checkBind enforces the loopback-only default. Binding to a
// non-loopback address is refused unless the remote opt-in is set;
// opting in without a shared-secret token is allowed but logged loudly.
// This is a startup decision, not a per-connection one.
func checkBind(addr string, allowRemote bool, token string, logger *slog.Logger) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid bind address %q: %w", addr, err)
	}

	if !isLoopbackHost(host) {
		if !allowRemote {
			return fmt.Errorf("refusing to bind to non-loopback address %q without remote opt-in", addr)
		}
		if token == "" {
			logger.Warn("INSECURE: binding to non-loopback address with no shared-secret token; any host on the network can drive this application",
				"addr", addr)
		} else {
			logger.Info("binding to non-loopback address with token authentication", "addr", addr)
		}
	}
	return nil
}

func isLoopbackHost(host string) bool {
	if host == "localhost" {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return false
}
