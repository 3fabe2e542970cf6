package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Error codes stamped on router-issued error envelopes. Agent-local failures
// (unsupported command, missing parameter, provider outage) are failed
// responses instead and never carry these codes.
const (
	ErrCodeAgentDetermination = "AGENT_DETERMINATION_ERROR"
	ErrCodeUnsupportedMessage = "UNSUPPORTED_MESSAGE_TYPE"
	ErrCodeAgentProcessing    = "AGENT_PROCESSING_ERROR"
	ErrCodeProcessing         = "PROCESSING_ERROR"
)

// DispatchTrace summarizes one routed envelope for observability hooks.
// Outcome is "ok", "failed" (agent returned success=false), or the error
// code of the router-issued error envelope.
type DispatchTrace struct {
	MessageID string
	Kind      Kind
	Source    string
	AgentID   string
	Outcome   string
	Duration  time.Duration
}

// Router owns the agent and adapter registries and the dispatch state
// machine. Adapters push inbound envelopes through the callback injected at
// registration; synchronous callers (HTTP routes, the tool server) use
// HandleMessage directly and receive the reply as the return value.
type Router struct {
	mu       sync.RWMutex
	agents   map[string]Agent
	adapters map[string]Adapter
	policy   Policy

	supervisor *Supervisor
	onDispatch func(DispatchTrace)
}

// NewRouter creates a router with the given selection policy. The policy
// decides the agent for command and query envelopes that carry no usable
// target; it may be nil, in which case every such envelope fails agent
// determination.
func NewRouter(policy Policy) *Router {
	return &Router{
		agents:     make(map[string]Agent),
		adapters:   make(map[string]Adapter),
		policy:     policy,
		supervisor: NewSupervisor(),
	}
}

// SetPolicy swaps the selection policy. Used by config hot reload.
func (r *Router) SetPolicy(policy Policy) {
	r.mu.Lock()
	r.policy = policy
	r.mu.Unlock()
}

// OnDispatch installs a hook called after every dispatch. Must be set before
// traffic starts; the hook must not block.
func (r *Router) OnDispatch(fn func(DispatchTrace)) {
	r.mu.Lock()
	r.onDispatch = fn
	r.mu.Unlock()
}

// RegisterAgent stores an agent by id, overwriting any previous registration.
func (r *Router) RegisterAgent(agent Agent) {
	r.mu.Lock()
	r.agents[agent.ID()] = agent
	r.mu.Unlock()
	slog.Info("agent registered", "agent", agent.ID(), "capabilities", agent.Capabilities())
}

// RegisterAdapter stores an adapter by id, overwriting any previous
// registration, and binds the router's async dispatch callback to it.
func (r *Router) RegisterAdapter(adapter Adapter) {
	adapter.Bind(r.DispatchAsync)
	r.mu.Lock()
	r.adapters[adapter.ID()] = adapter
	r.mu.Unlock()
	slog.Info("adapter registered", "adapter", adapter.ID())
}

// Agent looks up a registered agent.
func (r *Router) Agent(id string) (Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	agent, ok := r.agents[id]
	return agent, ok
}

// Adapter looks up a registered adapter.
func (r *Router) Adapter(id string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[id]
	return adapter, ok
}

// AgentIDs returns the registered agent ids, sorted.
func (r *Router) AgentIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.agents))
	for id := range r.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// AdapterIDs returns the registered adapter ids, sorted.
func (r *Router) AdapterIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// InFlight reports how many async dispatches are currently running.
func (r *Router) InFlight() int64 {
	return r.supervisor.InFlight()
}

// Initialize starts all registered adapters concurrently. Every adapter is
// started regardless of failures elsewhere; the first failure is surfaced
// after all settle. A failed adapter is unusable but does not block the rest.
func (r *Router) Initialize(ctx context.Context) error {
	r.mu.RLock()
	adapters := make([]Adapter, 0, len(r.adapters))
	for _, adapter := range r.adapters {
		adapters = append(adapters, adapter)
	}
	r.mu.RUnlock()

	g := &errgroup.Group{}
	for _, adapter := range adapters {
		g.Go(func() error {
			if err := adapter.Initialize(ctx); err != nil {
				slog.Error("adapter initialize failed", "adapter", adapter.ID(), "error", err)
				return fmt.Errorf("adapter %s: %w", adapter.ID(), err)
			}
			slog.Info("adapter initialized", "adapter", adapter.ID())
			return nil
		})
	}
	return g.Wait()
}

// Shutdown stops all adapters concurrently, then drains in-flight dispatches
// until ctx expires.
func (r *Router) Shutdown(ctx context.Context) error {
	r.mu.RLock()
	adapters := make([]Adapter, 0, len(r.adapters))
	for _, adapter := range r.adapters {
		adapters = append(adapters, adapter)
	}
	r.mu.RUnlock()

	g := &errgroup.Group{}
	for _, adapter := range adapters {
		g.Go(func() error {
			if err := adapter.Shutdown(ctx); err != nil {
				slog.Error("adapter shutdown failed", "adapter", adapter.ID(), "error", err)
				return fmt.Errorf("adapter %s: %w", adapter.ID(), err)
			}
			return nil
		})
	}
	err := g.Wait()

	if drainErr := r.supervisor.Drain(ctx); drainErr != nil && err == nil {
		err = drainErr
	}
	return err
}

// DispatchAsync routes an envelope on a supervised goroutine and delivers
// the reply through the source adapter. This is the callback bound into
// adapters; it detaches from the caller's context so an HTTP request
// finishing does not cancel the dispatch behind it.
func (r *Router) DispatchAsync(_ context.Context, msg *Message) {
	if msg == nil {
		return
	}
	r.supervisor.Go("dispatch:"+msg.ID, func() {
		r.HandleMessage(context.Background(), msg)
	})
}

// HandleMessage routes one envelope and returns the reply. Replies are also
// delivered through the source adapter's Send when the source is a
// registered adapter. The return is never nil for a non-nil input: routing
// failures come back as error-kind envelopes, agent failures as failed
// responses.
func (r *Router) HandleMessage(ctx context.Context, msg *Message) *Message {
	if msg == nil {
		return nil
	}
	start := time.Now()
	slog.Debug("routing message", "id", msg.ID, "kind", msg.Kind, "source", msg.Source, "target", msg.Target)

	if err := msg.Validate(); err != nil {
		text := fmt.Sprintf("Erro ao processar mensagem: %v", err)
		slog.Error("message rejected", "id", msg.ID, "error", err)
		return r.issueError(ctx, msg, ErrCodeProcessing, text, start)
	}

	agent, errCode, errText := r.resolveAgent(msg)
	if agent == nil {
		slog.Error("routing failed", "id", msg.ID, "code", errCode, "error", errText)
		return r.issueError(ctx, msg, errCode, errText, start)
	}

	reply := r.processWithAgent(ctx, agent, msg)
	if reply != nil && reply.Kind == KindError {
		return r.issueError(ctx, msg, reply.ErrorCode, reply.ErrorMessage, start)
	}

	r.deliver(ctx, msg.Source, reply)
	r.trace(DispatchTrace{
		MessageID: msg.ID,
		Kind:      msg.Kind,
		Source:    msg.Source,
		AgentID:   agent.ID(),
		Outcome:   replyOutcome(reply),
		Duration:  time.Since(start),
	})
	return reply
}

// resolveAgent applies the dispatch state machine: explicit registered
// target first, then the selection policy for commands and queries. An
// unregistered target is not an error; the envelope falls through to the
// policy.
func (r *Router) resolveAgent(msg *Message) (Agent, string, string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if msg.Target != "" {
		if agent, ok := r.agents[msg.Target]; ok {
			return agent, "", ""
		}
	}

	switch msg.Kind {
	case KindCommand, KindQuery:
		if r.policy != nil {
			if agentID, ok := r.policy.Select(msg); ok {
				if agent, registered := r.agents[agentID]; registered {
					return agent, "", ""
				}
			}
		}
		return nil, ErrCodeAgentDetermination,
			fmt.Sprintf("Não foi possível determinar um agente para a mensagem %s", msg.ID)
	default:
		return nil, ErrCodeUnsupportedMessage,
			fmt.Sprintf("Tipo de mensagem não suportado para roteamento automático: %s", msg.Kind)
	}
}

// processWithAgent invokes the agent with a recovery net around
// implementations that do not embed BaseAgent. A panic here becomes an
// error-kind envelope, which HandleMessage converts into the
// AGENT_PROCESSING_ERROR path.
func (r *Router) processWithAgent(ctx context.Context, agent Agent, msg *Message) (reply *Message) {
	defer func() {
		if rec := recover(); rec != nil {
			text := fmt.Sprintf("Erro no agente %s: %v", agent.ID(), rec)
			slog.Error("agent panicked", "agent", agent.ID(), "message_id", msg.ID, "panic", rec)
			reply = NewError(RouterSource, ErrCodeAgentProcessing, text, msg.ID)
		}
	}()
	return agent.Process(ctx, msg)
}

// issueError builds a router error envelope addressed back at the origin,
// delivers it through the source adapter when one is registered, and returns
// it to the caller. The origin's context rides along so the adapter can
// still address the reply (chat id, connection id).
func (r *Router) issueError(ctx context.Context, msg *Message, code, text string, start time.Time) *Message {
	errMsg := NewError(RouterSource, code, text, msg.ID)
	errMsg.Target = msg.Source
	errMsg.UserID = msg.UserID
	if msg.Context != nil {
		errMsg.Context = msg.Context
	}

	r.deliver(ctx, msg.Source, errMsg)
	r.trace(DispatchTrace{
		MessageID: msg.ID,
		Kind:      msg.Kind,
		Source:    msg.Source,
		Outcome:   code,
		Duration:  time.Since(start),
	})
	return errMsg
}

// deliver pushes a reply through the adapter the original envelope came
// from. Sources that are not registered adapters (synchronous HTTP callers,
// internal senders) get their reply only as the HandleMessage return.
func (r *Router) deliver(ctx context.Context, source string, reply *Message) {
	if reply == nil {
		return
	}
	adapter, ok := r.Adapter(source)
	if !ok {
		return
	}
	if err := adapter.Send(ctx, reply); err != nil {
		slog.Warn("reply delivery failed", "adapter", source, "message_id", reply.ID, "error", err)
	}
}

func (r *Router) trace(t DispatchTrace) {
	r.mu.RLock()
	fn := r.onDispatch
	r.mu.RUnlock()
	if fn != nil {
		fn(t)
	}
}

func replyOutcome(reply *Message) string {
	if reply == nil {
		return "ok"
	}
	if reply.Kind == KindResponse && !reply.IsSuccess() {
		return "failed"
	}
	return "ok"
}
