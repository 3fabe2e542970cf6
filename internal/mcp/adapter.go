package mcp

import "context"

// Adapter is the contract every channel integration satisfies. An adapter is
// bound to exactly one channel id for its whole life: constructed, registered
// with one router (which injects the dispatch callback via Bind), initialized,
// then serving translation and delivery until Shutdown. Never reused after
// Shutdown.
type Adapter interface {
	// ID returns the channel identifier (e.g. "telegram", "webhook").
	ID() string

	// Bind injects the router's dispatch callback. Called once, at
	// registration, before Initialize.
	Bind(handler MessageHandler)

	// Initialize performs one-time setup (connections, polling loops). A
	// failure is fatal to this adapter only; the router starts the others
	// regardless.
	Initialize(ctx context.Context) error

	// Shutdown releases resources. Safe to call even when Initialize failed
	// partway.
	Shutdown(ctx context.Context) error

	// Send delivers a reply envelope to the external channel addressed by the
	// envelope's context. Best-effort: the router logs and drops failures.
	// May be a no-op for channels whose replies travel on the synchronous
	// HTTP response.
	Send(ctx context.Context, msg *Message) error

	// HandleExternalInput translates one channel-native payload into one
	// envelope, or nil when the payload is dropped (duplicate, disallowed
	// sender). It never fails: malformed input yields an error-kind
	// envelope describing the problem. It must not block on the router.
	HandleExternalInput(ctx context.Context, raw any) *Message
}
