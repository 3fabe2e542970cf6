// Package channels implements the adapter layer between external platforms
// and the router: translation of channel-native payloads into envelopes,
// delivery of reply envelopes back out, and the shared plumbing every
// adapter needs (command parsing, reply formatting, de-duplication, rate
// limiting).
//
// Concrete adapters live in subpackages (telegram, webhook, discord, ws)
// and embed BaseAdapter for the contract boilerplate.
package channels

import (
	"context"
	"log/slog"
	"sync"

	"github.com/estudolab/estudai/internal/mcp"
)

// BaseAdapter carries the identity and the router callback shared by every
// adapter. Embed it and implement Initialize/Shutdown/Send/
// HandleExternalInput on top.
type BaseAdapter struct {
	id string

	mu      sync.RWMutex
	handler mcp.MessageHandler
}

// NewBaseAdapter creates the embeddable base for the given channel id.
func NewBaseAdapter(id string) *BaseAdapter {
	return &BaseAdapter{id: id}
}

// ID returns the channel identifier.
func (b *BaseAdapter) ID() string { return b.id }

// Bind stores the router's dispatch callback. The router calls this once at
// registration.
func (b *BaseAdapter) Bind(handler mcp.MessageHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler = handler
}

// Dispatch hands an inbound envelope to the router. Envelopes arriving
// before the adapter is registered are dropped with a log; nothing upstream
// can answer them yet.
func (b *BaseAdapter) Dispatch(ctx context.Context, msg *mcp.Message) {
	if msg == nil {
		return
	}
	b.mu.RLock()
	handler := b.handler
	b.mu.RUnlock()

	if handler == nil {
		slog.Warn("inbound message dropped, adapter not bound to a router",
			"channel", b.id, "message_id", msg.ID)
		return
	}
	handler(ctx, msg)
}

// Truncate shortens a string to maxLen, appending "..." if truncated.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
