// Package ws exposes the adapter contract over WebSocket connections. Each
// inbound text frame is either an envelope JSON or a bare "/command" line
// translated like any other text channel; replies for the connection come
// back as envelope JSON frames. Meant for local testing and programmatic
// clients.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/estudolab/estudai/internal/channels"
	"github.com/estudolab/estudai/internal/mcp"
)

const channelID = "ws"

// readLimit bounds inbound frames at 1MB.
const readLimit = 1 << 20

// Frame is one inbound text frame tagged with the connection it arrived on.
type Frame struct {
	ConnID string
	Data   []byte
}

// client wraps a connection with a write lock, so replies and pushes do not
// interleave frames.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(ctx context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Write(ctx, websocket.MessageText, data)
}

// Adapter serves WebSocket clients and keeps the registry that maps the
// conn_id carried in envelope context back to live connections.
type Adapter struct {
	*channels.BaseAdapter
	mu    sync.Mutex
	conns map[string]*client
}

// New constructs the adapter. Connections arrive through ServeHTTP, mounted
// by the HTTP surface.
func New() *Adapter {
	return &Adapter{
		BaseAdapter: channels.NewBaseAdapter(channelID),
		conns:       make(map[string]*client),
	}
}

// Initialize has nothing to start; the HTTP server owns the listener.
func (a *Adapter) Initialize(context.Context) error {
	slog.Info("ws adapter ready")
	return nil
}

// Shutdown closes every live connection.
func (a *Adapter) Shutdown(context.Context) error {
	a.mu.Lock()
	conns := a.conns
	a.conns = make(map[string]*client)
	a.mu.Unlock()

	for id, c := range conns {
		if err := c.conn.Close(websocket.StatusGoingAway, "server stopping"); err != nil {
			slog.Debug("ws close failed", "conn_id", id, "error", err)
		}
	}
	return nil
}

// Connections reports how many clients are connected.
func (a *Adapter) Connections() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.conns)
}

// ServeHTTP upgrades the request and runs the read loop until the client
// leaves. Origin checks are skipped; this surface is for local tooling.
func (a *Adapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		slog.Warn("ws accept failed", "error", err)
		return
	}
	conn.SetReadLimit(readLimit)

	c := &client{conn: conn}
	id := a.register(c)
	defer a.unregister(id)
	slog.Info("ws client connected", "conn_id", id)

	ctx := r.Context()
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				slog.Info("ws client disconnected", "conn_id", id)
			default:
				slog.Debug("ws read ended", "conn_id", id, "error", err)
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}

		msg := a.HandleExternalInput(ctx, Frame{ConnID: id, Data: data})
		if msg == nil {
			continue
		}
		if msg.Kind == mcp.KindError {
			// Malformed frames answer directly; there is nothing to route.
			if err := a.Send(ctx, msg); err != nil {
				slog.Debug("ws error reply failed", "conn_id", id, "error", err)
			}
			continue
		}
		a.Dispatch(ctx, msg)
	}
}

// HandleExternalInput converts one frame into an envelope. Frames opening
// with "{" are parsed as envelope JSON (id, source and timestamp filled in
// when missing, source always restamped so the reply returns on the same
// socket); anything else goes through the shared text parser. The user id
// defaults to the conn id, which gives each connection its own study state.
func (a *Adapter) HandleExternalInput(_ context.Context, raw any) *mcp.Message {
	frame, ok := rawFrame(raw)
	if !ok {
		slog.Warn("ws payload not decodable", "payload_type", fmt.Sprintf("%T", raw))
		return invalidFrame("", "Frame de WebSocket inválido")
	}

	text := strings.TrimSpace(string(frame.Data))
	if text == "" {
		return nil
	}

	var msg *mcp.Message
	if strings.HasPrefix(text, "{") {
		env, err := decodeEnvelope([]byte(text))
		if err != nil {
			slog.Debug("ws frame rejected", "conn_id", frame.ConnID, "error", err)
			return invalidFrame(frame.ConnID, fmt.Sprintf("Envelope inválido: %v", err))
		}
		msg = env
	} else {
		msg = channels.ParseText(channelID, text, nil)
	}

	if msg.UserID == "" {
		msg.UserID = frame.ConnID
	}
	msg.Context["conn_id"] = frame.ConnID

	slog.Debug("ws message received",
		"conn_id", frame.ConnID,
		"kind", msg.Kind,
		"preview", channels.Truncate(text, 60),
	)
	return msg
}

// Send pushes a reply envelope to the connection named by its context.
func (a *Adapter) Send(ctx context.Context, msg *mcp.Message) error {
	id := msg.ContextString("conn_id")
	if id == "" {
		return errors.New("envelope has no conn_id")
	}

	a.mu.Lock()
	c, ok := a.conns[id]
	a.mu.Unlock()
	if !ok {
		return fmt.Errorf("ws connection %s is gone", id)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := c.write(ctx, data); err != nil {
		return fmt.Errorf("write ws frame: %w", err)
	}
	return nil
}

func (a *Adapter) register(c *client) string {
	id := uuid.NewString()
	a.mu.Lock()
	a.conns[id] = c
	a.mu.Unlock()
	return id
}

func (a *Adapter) unregister(id string) {
	a.mu.Lock()
	delete(a.conns, id)
	a.mu.Unlock()
}

func rawFrame(raw any) (Frame, bool) {
	switch v := raw.(type) {
	case Frame:
		return v, true
	case *Frame:
		if v == nil {
			return Frame{}, false
		}
		return *v, true
	default:
		return Frame{}, false
	}
}

// decodeEnvelope parses a wire envelope, fills the header fields a client
// may omit and validates the result.
func decodeEnvelope(data []byte) (*mcp.Message, error) {
	var msg mcp.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.Source = channelID
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	if msg.Context == nil {
		msg.Context = map[string]any{}
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}

func invalidFrame(connID, text string) *mcp.Message {
	env := mcp.NewError(channelID, "INVALID_FRAME", text, "")
	if connID != "" {
		env.Context["conn_id"] = connID
	}
	return env
}
