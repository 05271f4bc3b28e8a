// ABOUTME: Optional Tailscale node shared by every service in a portald process
// ABOUTME: Services listen on their configured ports on the tailnet instead of TCP

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"

	"github.com/2389/portal-core/internal/config"
	"tailscale.com/tsnet"
)

// Tailnet wraps a tsnet node.
type Tailnet struct {
	node   *tsnet.Server
	logger *slog.Logger
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "portal", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set tailscale.auth_key or TS_AUTHKEY")
	}
	return authKey, nil
}

// StartTailnet brings up a tsnet node described by cfg.
func StartTailnet(ctx context.Context, cfg config.TailscaleConfig, logger *slog.Logger) (*Tailnet, error) {
	logger = logger.With("component", "tailnet")

	stateDir, err := resolveTailscaleStateDir(cfg.StateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(cfg.AuthKey)
	if err != nil {
		return nil, err
	}

	node := &tsnet.Server{
		Hostname:  cfg.Hostname,
		Dir:       stateDir,
		Ephemeral: cfg.Ephemeral,
		AuthKey:   authKey,
	}

	logger.Info("starting tailscale node", "hostname", cfg.Hostname, "state_dir", stateDir, "ephemeral", cfg.Ephemeral)
	status, err := node.Up(ctx)
	if err != nil {
		_ = node.Close()
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}
	if status.Self != nil {
		logger.Info("tailscale node up", "dns_name", status.Self.DNSName, "ips", status.TailscaleIPs)
	}

	return &Tailnet{node: node, logger: logger}, nil
}

// Listen opens a tailnet listener on the port of addr. Any host part is
// ignored because the node has its own addresses.
func (t *Tailnet) Listen(addr string) (net.Listener, error) {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("parsing address %q: %w", addr, err)
	}
	ln, err := t.node.Listen("tcp", ":"+port)
	if err != nil {
		return nil, fmt.Errorf("listening on tailscale port %s: %w", port, err)
	}
	return ln, nil
}

// Dial connects to addr through the tailnet. It fits grpc.WithContextDialer.
func (t *Tailnet) Dial(ctx context.Context, addr string) (net.Conn, error) {
	return t.node.Dial(ctx, "tcp", addr)
}

// Close shuts the node down.
func (t *Tailnet) Close() error {
	return t.node.Close()
}
