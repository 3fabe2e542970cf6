//go:build !tsnet

package cmd

import (
	"context"
	"net/http"

	"github.com/estudolab/estudai/internal/config"
)

// initTailscale is a no-op without the tsnet build tag.
func initTailscale(_ context.Context, _ *config.Config, _ http.Handler) func() {
	return nil
}
