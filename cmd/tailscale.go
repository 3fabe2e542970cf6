//go:build tsnet

package cmd

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"tailscale.com/tsnet"

	"github.com/estudolab/estudai/internal/config"
)

// initTailscale serves the HTTP handler on a tailnet listener alongside the
// main one. Returns a cleanup func, or nil when no hostname is configured.
func initTailscale(ctx context.Context, cfg *config.Config, handler http.Handler) func() {
	if cfg.Tailscale.Hostname == "" {
		return nil
	}

	stateDir := cfg.Tailscale.StateDir
	if stateDir == "" {
		if base, err := os.UserConfigDir(); err == nil {
			stateDir = filepath.Join(base, "tsnet-estudai")
		}
	}

	ts := &tsnet.Server{
		Hostname: cfg.Tailscale.Hostname,
		Dir:      stateDir,
		AuthKey:  cfg.Tailscale.AuthKey,
	}

	ln, err := ts.Listen("tcp", ":80")
	if err != nil {
		slog.Error("tailscale listener failed", "error", err)
		ts.Close()
		return nil
	}
	slog.Info("tailscale listener up", "hostname", cfg.Tailscale.Hostname)

	go func() {
		if err := http.Serve(ln, handler); err != nil {
			slog.Debug("tailscale serve stopped", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	return func() { ts.Close() }
}
