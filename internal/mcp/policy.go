package mcp

import "sync"

// Policy decides which agent handles a command or query that arrives without
// a usable target. Select returns the agent id and whether a decision was
// reached; a false return means no agent could be determined.
type Policy interface {
	Select(msg *Message) (agentID string, ok bool)
}

// StaticPolicy routes every command and query to one fixed agent. It is the
// single-agent deployment default.
type StaticPolicy struct {
	AgentID string
}

// Select returns the fixed agent for commands and queries.
func (p StaticPolicy) Select(msg *Message) (string, bool) {
	if p.AgentID == "" {
		return "", false
	}
	switch msg.Kind {
	case KindCommand, KindQuery:
		return p.AgentID, true
	}
	return "", false
}

// Binding routes envelopes matching a pattern to one agent.
type Binding struct {
	AgentID string
	Match   BindingMatch
}

// BindingMatch narrows a binding. Empty fields match everything, so a
// binding with a zero match is a catch-all for its position in the list.
type BindingMatch struct {
	// Command matches command envelopes by name. When set, queries never
	// match this binding.
	Command string

	// Channel matches the envelope source.
	Channel string
}

func (m BindingMatch) matches(msg *Message) bool {
	if m.Command != "" && (msg.Kind != KindCommand || msg.Command != m.Command) {
		return false
	}
	if m.Channel != "" && msg.Source != m.Channel {
		return false
	}
	return true
}

// BindingPolicy routes by an ordered binding list, first match wins, with a
// fallback agent for envelopes no binding claims. The list is swappable at
// runtime, which is how config reloads take effect without restarting the
// router.
type BindingPolicy struct {
	mu       sync.RWMutex
	bindings []Binding
	fallback string
}

// NewBindingPolicy creates a policy with the given bindings and fallback
// agent. The bindings slice is copied.
func NewBindingPolicy(bindings []Binding, fallback string) *BindingPolicy {
	p := &BindingPolicy{}
	p.Update(bindings, fallback)
	return p
}

// Update replaces the bindings and fallback atomically.
func (p *BindingPolicy) Update(bindings []Binding, fallback string) {
	next := make([]Binding, len(bindings))
	copy(next, bindings)
	p.mu.Lock()
	p.bindings = next
	p.fallback = fallback
	p.mu.Unlock()
}

// Select walks the bindings in order and returns the first match, falling
// back to the default agent. Only commands and queries are routable.
func (p *BindingPolicy) Select(msg *Message) (string, bool) {
	if msg.Kind != KindCommand && msg.Kind != KindQuery {
		return "", false
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, b := range p.bindings {
		if b.AgentID != "" && b.Match.matches(msg) {
			return b.AgentID, true
		}
	}
	return p.fallback, p.fallback != ""
}
