package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nao1215/tornago"
)

// DefaultTorStartupTimeout bounds the bootstrap of an embedded Tor daemon.
const DefaultTorStartupTimeout = 3 * time.Minute

// EmbeddedTor is a Tor daemon started and owned by the process. Its SOCKS
// port is passed to WithProxy so that .onion targets can be spidered without
// an external Tor installation.
type EmbeddedTor struct {
	mu        sync.Mutex
	process   *tornago.TorProcess
	socksAddr string
}

// StartEmbeddedTor launches a Tor daemon on OS-assigned ports and blocks
// until it has bootstrapped or timeout elapses. Bootstrapping typically
// takes one to three minutes.
func StartEmbeddedTor(ctx context.Context, timeout time.Duration) (*EmbeddedTor, error) {
	if timeout <= 0 {
		timeout = DefaultTorStartupTimeout
	}

	cfg, err := tornago.NewTorLaunchConfig(
		tornago.WithTorSocksAddr(":0"),
		tornago.WithTorControlAddr(":0"),
		tornago.WithTorStartupTimeout(timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Tor launch config: %w", err)
	}

	process, err := tornago.StartTorDaemon(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to start embedded Tor daemon: %w", err)
	}

	if err := ctx.Err(); err != nil {
		_ = process.Stop() //nolint:errcheck // best effort cleanup
		return nil, err
	}

	return &EmbeddedTor{process: process, socksAddr: process.SocksAddr()}, nil
}

// ProxyAddr returns the SOCKS5 address of the daemon ("127.0.0.1:port").
func (e *EmbeddedTor) ProxyAddr() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.process == nil {
		return "", ErrEmbeddedTorNotRunning
	}
	return e.socksAddr, nil
}

// Close stops the daemon. It is safe to call more than once.
func (e *EmbeddedTor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.process == nil {
		return nil
	}
	err := e.process.Stop()
	e.process = nil
	return err
}
