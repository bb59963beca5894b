package daemon

import (
	"context"
	"net"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/superstate/config"
	"github.com/grovetools/superstate/errors"
	"github.com/grovetools/superstate/version"
)

// Dialable reports whether something accepts connections on socketPath.
func Dialable(socketPath string) bool {
	if _, err := os.Stat(socketPath); err != nil {
		return false
	}
	conn, err := net.DialTimeout("unix", socketPath, 100*time.Millisecond)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// New returns a Client that will use the daemon if available,
// otherwise falls back to a LocalClient over cfg's vault.
//
// This implements the "transparent daemon" pattern: callers don't need
// to know whether the daemon is running or not. The same API works
// in both modes.
func New(ctx context.Context, cfg *config.Config, logger *logrus.Entry) (Client, error) {
	if Dialable(cfg.Server.Socket) {
		if client, err := NewRemoteClient(cfg.Server.Socket); err == nil && client.IsRunning() {
			if info, err := client.Version(ctx); err == nil && !version.GetInfo().Compatible(info) {
				logger.WithFields(logrus.Fields{
					"daemon": info.Version,
					"client": version.GetInfo().Version,
				}).Warn("Daemon version differs from this binary; restart it with 'superstate stop && superstate serve'")
			}
			return client, nil
		}
	}
	return NewLocalClient(ctx, cfg, logger)
}

// Connect returns a RemoteClient or an error if the daemon is not available.
// Use this in contexts where the daemon is required (e.g. stop, status).
func Connect(socketPath string) (*RemoteClient, error) {
	if !Dialable(socketPath) {
		return nil, errors.New(errors.ErrCodeInvalidInput, "superstate daemon is not running; start it with 'superstate serve'").
			WithDetail("socket", socketPath)
	}
	return NewRemoteClient(socketPath)
}
