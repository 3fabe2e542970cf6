// Package webhook translates webhook payloads from external systems (n8n
// flows and generic callers) into envelopes. Replies travel back on the
// synchronous HTTP response, so outbound delivery is a no-op.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"

	"github.com/estudolab/estudai/internal/channels"
	"github.com/estudolab/estudai/internal/mcp"
)

const channelID = "webhook"

// Adapter is the webhook channel. It holds no connections; all state lives
// in the envelopes.
type Adapter struct {
	*channels.BaseAdapter
}

// New constructs the adapter.
func New() *Adapter {
	return &Adapter{BaseAdapter: channels.NewBaseAdapter(channelID)}
}

func (a *Adapter) Initialize(context.Context) error {
	slog.Info("webhook adapter initialized")
	return nil
}

func (a *Adapter) Shutdown(context.Context) error {
	slog.Info("webhook adapter shut down")
	return nil
}

// Send is a no-op: webhook replies are written by the HTTP handler that
// received the request.
func (a *Adapter) Send(context.Context, *mcp.Message) error { return nil }

// HandleExternalInput converts a webhook payload into an envelope. The
// payload's "source" selects the translation: "n8n" payloads carry an
// "acao" naming a study command; anything else becomes a generic command
// built from the payload itself.
func (a *Adapter) HandleExternalInput(_ context.Context, raw any) *mcp.Message {
	payload, err := decodePayload(raw)
	if err != nil {
		slog.Warn("webhook payload not decodable", "error", err)
		return mcp.NewError(channelID, "INVALID_PAYLOAD", "Payload de webhook inválido", "")
	}

	source := stringField(payload, "source")
	if source == "" {
		source = "webhook"
	}
	if source == "n8n" {
		return a.translateN8N(payload)
	}

	command := stringField(payload, "command")
	if command == "" {
		command = "process"
	}
	msg := mcp.NewCommand(channelID, command, payload)
	msg.Content = payload
	msg.UserID = stringField(payload, "user_id")
	msg.Context = map[string]any{"webhook_source": source}
	return msg
}

// translateN8N maps n8n actions onto the study commands.
func (a *Adapter) translateN8N(payload map[string]any) *mcp.Message {
	acao := stringField(payload, "acao")
	switch acao {
	case "resumo", "quiz":
		msg := mcp.NewCommand(channelID, acao, map[string]any{
			"topico": stringField(payload, "topico"),
		})
		msg.Target = channels.StudyAgentID
		msg.Content = payload
		msg.UserID = stringField(payload, "user_id")
		msg.Context = map[string]any{"webhook_source": "n8n"}
		return msg
	default:
		msg := mcp.NewCommand(channelID, "unknown", payload)
		msg.Content = map[string]any{"error": "Ação desconhecida"}
		msg.UserID = stringField(payload, "user_id")
		msg.Context = map[string]any{"webhook_source": "n8n", "error": "acao_desconhecida"}
		return msg
	}
}

func decodePayload(raw any) (map[string]any, error) {
	switch v := raw.(type) {
	case map[string]any:
		if v == nil {
			return map[string]any{}, nil
		}
		return v, nil
	case []byte:
		return unmarshalPayload(v)
	case json.RawMessage:
		return unmarshalPayload(v)
	default:
		return nil, fmt.Errorf("unsupported payload type %T", raw)
	}
}

func unmarshalPayload(data []byte) (map[string]any, error) {
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if payload == nil {
		payload = map[string]any{}
	}
	return payload, nil
}

// stringField reads a payload value as a string. JSON numbers (user ids
// from n8n arrive numeric) render without an exponent.
func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		if v == math.Trunc(v) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
