// Package mcp implements the message-routing core: the envelope model shared
// by adapters and agents, the adapter/agent contracts, and the router that
// moves envelopes between them.
//
// Envelopes are a tagged union carried in a single flat struct: a common
// header (id, kind, source, target, timestamp, content, user id, context)
// plus the fields of exactly one kind. Components switch on Kind rather than
// on concrete types.
package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind is the closed set of envelope kinds.
type Kind string

const (
	KindCommand  Kind = "command"
	KindQuery    Kind = "query"
	KindResponse Kind = "response"
	KindEvent    Kind = "event"
	KindError    Kind = "error"
)

// RouterSource is the source id the router stamps on envelopes it originates
// (routing errors). It is never a registered adapter or agent id.
const RouterSource = "mcp.router"

// Message is the envelope exchanged between adapters, the router, and agents.
//
// The header fields are always set (Target and UserID may be empty). The
// variant fields belong to one Kind each and stay zero on every other kind;
// omitempty keeps them off the wire. Success is a pointer so that a response
// with success=false still serializes the field.
type Message struct {
	ID        string         `json:"id"`
	Kind      Kind           `json:"type"`
	Source    string         `json:"source"`
	Target    string         `json:"target,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Content   map[string]any `json:"content,omitempty"`
	UserID    string         `json:"user_id,omitempty"`
	Context   map[string]any `json:"context,omitempty"`

	// Kind == KindCommand
	Command    string         `json:"command,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`

	// Kind == KindQuery
	Query string `json:"query,omitempty"`

	// Kind == KindResponse
	ResponseTo string `json:"response_to,omitempty"`
	Success    *bool  `json:"success,omitempty"`
	Data       any    `json:"data,omitempty"`

	// Kind == KindError
	ErrorCode         string `json:"error_code,omitempty"`
	ErrorMessage      string `json:"error_message,omitempty"`
	OriginalMessageID string `json:"original_message_id,omitempty"`
}

// newMessage builds the common header. The id is assigned here, once, and
// never mutated afterwards.
func newMessage(kind Kind, source string) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Kind:      kind,
		Source:    source,
		Timestamp: time.Now(),
		Context:   map[string]any{},
	}
}

// NewCommand creates a command envelope.
func NewCommand(source, command string, params map[string]any) *Message {
	if params == nil {
		params = map[string]any{}
	}
	m := newMessage(KindCommand, source)
	m.Command = command
	m.Parameters = params
	m.Content = map[string]any{"command": command, "params": params}
	return m
}

// NewQuery creates a query envelope from free text.
func NewQuery(source, query string) *Message {
	m := newMessage(KindQuery, source)
	m.Query = query
	m.Content = map[string]any{"text": query}
	return m
}

// NewEvent creates an event envelope.
func NewEvent(source string, content map[string]any) *Message {
	m := newMessage(KindEvent, source)
	m.Content = content
	return m
}

// NewResponse creates a response envelope answering request. Header fields the
// adapter needs to address the reply (target, user id, context) are copied
// from the request.
func NewResponse(request *Message, source string, success bool, data any) *Message {
	m := newMessage(KindResponse, source)
	m.Target = request.Source
	m.UserID = request.UserID
	m.Context = request.Context
	m.ResponseTo = request.ID
	m.Success = &success
	m.Data = data
	return m
}

// NewError creates an error envelope. originalID may be empty when the
// failure is not tied to a specific envelope.
func NewError(source, code, errMsg, originalID string) *Message {
	m := newMessage(KindError, source)
	m.Content = map[string]any{"error": errMsg}
	m.ErrorCode = code
	m.ErrorMessage = errMsg
	m.OriginalMessageID = originalID
	return m
}

// IsSuccess reports the response success flag. False for non-response kinds
// and for responses whose flag was never set.
func (m *Message) IsSuccess() bool {
	return m.Success != nil && *m.Success
}

// ContextString returns a string value from the envelope context, or "" when
// absent or not a string.
func (m *Message) ContextString(key string) string {
	if m.Context == nil {
		return ""
	}
	s, _ := m.Context[key].(string)
	return s
}

// Validate checks that the envelope carries the fields its kind requires.
// Adapters produce envelopes through the constructors, so this matters mainly
// for envelopes arriving pre-built over a wire (webhook body, ws frame).
func (m *Message) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("envelope missing id")
	}
	if m.Source == "" {
		return fmt.Errorf("envelope %s missing source", m.ID)
	}
	switch m.Kind {
	case KindCommand:
		if m.Command == "" {
			return fmt.Errorf("command envelope %s missing command", m.ID)
		}
	case KindQuery:
		if m.Query == "" {
			return fmt.Errorf("query envelope %s missing query", m.ID)
		}
	case KindResponse:
		if m.ResponseTo == "" {
			return fmt.Errorf("response envelope %s missing response_to", m.ID)
		}
		if m.Success == nil {
			return fmt.Errorf("response envelope %s missing success", m.ID)
		}
	case KindError:
		if m.ErrorCode == "" {
			return fmt.Errorf("error envelope %s missing error_code", m.ID)
		}
	case KindEvent:
		// events carry only the header
	default:
		return fmt.Errorf("envelope %s has unknown type %q", m.ID, m.Kind)
	}
	return nil
}

// MessageHandler is the callback the router hands to each adapter at
// registration. It is the adapter's only coupling to the router: dispatch is
// fire-and-forget, replies come back through the adapter's Send.
type MessageHandler func(ctx context.Context, msg *Message)
