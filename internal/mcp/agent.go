package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
)

// QueryCapability is the capability name agents register as their default
// query handler. Every agent must register one, even if the policy is to
// treat all queries as the same action.
const QueryCapability = "query"

// Agent is the contract every capability handler satisfies. An agent is bound
// to one agent id and owns an immutable capability table built at
// construction. Agents hold no router reference: replies flow back as the
// return value of Process.
type Agent interface {
	// ID returns the agent identifier (e.g. "estudos").
	ID() string

	// Capabilities lists the registered capability names.
	Capabilities() []string

	// Process handles one envelope and always returns a response envelope.
	// It never panics out: every failure, including a panicking handler,
	// becomes a failed response.
	Process(ctx context.Context, msg *Message) *Message
}

// Capability is one named action an agent can perform. Handlers build their
// own response envelope; the helpers on BaseAgent cover the common shapes.
type Capability func(ctx context.Context, msg *Message) *Message

// BaseAgent carries the id and the capability table and implements the
// dispatch rule. Concrete agents embed it and register their capabilities at
// construction; the table is never rebuilt.
type BaseAgent struct {
	id           string
	capabilities map[string]Capability
}

// NewBaseAgent creates the embedded base for an agent.
func NewBaseAgent(id string, capabilities map[string]Capability) *BaseAgent {
	return &BaseAgent{id: id, capabilities: capabilities}
}

// ID returns the agent identifier.
func (a *BaseAgent) ID() string { return a.id }

// Capabilities returns the capability names, sorted.
func (a *BaseAgent) Capabilities() []string {
	names := make([]string, 0, len(a.capabilities))
	for name := range a.capabilities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Process dispatches an envelope to the matching capability. Commands look up
// the capability table, queries go to the default query handler, anything
// else is rejected. A panicking handler is converted to a failed response.
func (a *BaseAgent) Process(ctx context.Context, msg *Message) (resp *Message) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("agent handler panicked", "agent", a.id, "message_id", msg.ID, "panic", r)
			resp = a.Fail(msg, fmt.Sprintf("Erro ao processar mensagem: %v", r))
		}
	}()

	switch msg.Kind {
	case KindCommand:
		if msg.Command == "" {
			return a.Fail(msg, "Mensagem de comando inválida")
		}
		handler, ok := a.capabilities[msg.Command]
		if !ok {
			return a.Fail(msg, fmt.Sprintf("Comando não suportado: %s", msg.Command))
		}
		return handler(ctx, msg)
	case KindQuery:
		if msg.Query == "" {
			return a.Fail(msg, "Mensagem de consulta inválida")
		}
		handler, ok := a.capabilities[QueryCapability]
		if !ok {
			return a.Fail(msg, fmt.Sprintf("Tipo de mensagem não suportado: %s", msg.Kind))
		}
		return handler(ctx, msg)
	default:
		return a.Fail(msg, fmt.Sprintf("Tipo de mensagem não suportado: %s", msg.Kind))
	}
}

// HandleCommand runs a capability from bare parameters, synthesizing a
// throwaway command envelope. It lets HTTP routes and tool servers reuse
// agent logic without building a full envelope; context may carry "source"
// and "user_id".
func (a *BaseAgent) HandleCommand(ctx context.Context, command string, params, msgContext map[string]any) *Message {
	msg := NewCommand(contextSource(msgContext), command, params)
	msg.Context = msgContext
	msg.UserID, _ = msgContext["user_id"].(string)
	return a.Process(ctx, msg)
}

// HandleQuery runs the default query handler from bare text, synthesizing a
// throwaway query envelope.
func (a *BaseAgent) HandleQuery(ctx context.Context, query string, msgContext map[string]any) *Message {
	msg := NewQuery(contextSource(msgContext), query)
	msg.Context = msgContext
	msg.UserID, _ = msgContext["user_id"].(string)
	return a.Process(ctx, msg)
}

func contextSource(msgContext map[string]any) string {
	if s, ok := msgContext["source"].(string); ok && s != "" {
		return s
	}
	return "unknown"
}

// SuccessText builds a successful text reply: content {"text": text}, data is
// the bare string.
func (a *BaseAgent) SuccessText(msg *Message, text string) *Message {
	resp := NewResponse(msg, a.id, true, text)
	resp.Content = map[string]any{"text": text}
	return resp
}

// SuccessData builds a successful reply whose content and data are the same
// payload map.
func (a *BaseAgent) SuccessData(msg *Message, data map[string]any) *Message {
	resp := NewResponse(msg, a.id, true, data)
	resp.Content = data
	return resp
}

// Fail builds a failed reply: content and data both {"error": text}. Agent
// failures stay failed responses; they never become error-kind envelopes.
func (a *BaseAgent) Fail(msg *Message, errText string) *Message {
	payload := map[string]any{"error": errText}
	resp := NewResponse(msg, a.id, false, payload)
	resp.Content = payload
	return resp
}
