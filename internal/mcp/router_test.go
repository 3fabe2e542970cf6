package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeAdapter struct {
	id      string
	handler MessageHandler
	initErr error

	mu        sync.Mutex
	sent      []*Message
	inits     int
	shutdowns int
}

func newFakeAdapter(id string) *fakeAdapter { return &fakeAdapter{id: id} }

func (f *fakeAdapter) ID() string            { return f.id }
func (f *fakeAdapter) Bind(h MessageHandler) { f.handler = h }

func (f *fakeAdapter) Initialize(context.Context) error {
	f.mu.Lock()
	f.inits++
	f.mu.Unlock()
	return f.initErr
}
func (f *fakeAdapter) Shutdown(context.Context) error {
	f.mu.Lock()
	f.shutdowns++
	f.mu.Unlock()
	return nil
}
func (f *fakeAdapter) Send(_ context.Context, msg *Message) error {
	f.mu.Lock()
	f.sent = append(f.sent, msg)
	f.mu.Unlock()
	return nil
}
func (f *fakeAdapter) HandleExternalInput(context.Context, any) *Message { return nil }

func (f *fakeAdapter) sentMessages() []*Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Message, len(f.sent))
	copy(out, f.sent)
	return out
}

// panicAgent does not embed BaseAgent, so its panics reach the router's own
// recovery net.
type panicAgent struct{ id string }

func (a *panicAgent) ID() string             { return a.id }
func (a *panicAgent) Capabilities() []string { return nil }
func (a *panicAgent) Process(context.Context, *Message) *Message {
	panic("falha interna")
}

func newEchoAgent(id string) *BaseAgent {
	var agent *BaseAgent
	agent = NewBaseAgent(id, map[string]Capability{
		"eco": func(ctx context.Context, msg *Message) *Message {
			return agent.SuccessText(msg, fmt.Sprintf("eco:%s:%s", msg.UserID, msg.ID))
		},
		QueryCapability: func(ctx context.Context, msg *Message) *Message {
			return agent.SuccessText(msg, "resposta: "+msg.Query)
		},
	})
	return agent
}

// TestRouter_DirectTarget verifies dispatch to an explicitly targeted agent
// and delivery of the reply through the source adapter.
func TestRouter_DirectTarget(t *testing.T) {
	router := NewRouter(nil)
	router.RegisterAgent(newEchoAgent("estudos"))
	adapter := newFakeAdapter("telegram")
	router.RegisterAdapter(adapter)

	msg := NewCommand("telegram", "eco", nil)
	msg.Target = "estudos"
	msg.UserID = "1"

	reply := router.HandleMessage(context.Background(), msg)

	if reply == nil || !reply.IsSuccess() {
		t.Fatalf("expected a successful reply, got %+v", reply)
	}
	if reply.ResponseTo != msg.ID {
		t.Errorf("ResponseTo = %q, want %q", reply.ResponseTo, msg.ID)
	}
	sent := adapter.sentMessages()
	if len(sent) != 1 || sent[0] != reply {
		t.Errorf("reply not delivered through the source adapter: %v", sent)
	}
}

// TestRouter_PolicyFallback verifies that untargeted commands go through the
// selection policy.
func TestRouter_PolicyFallback(t *testing.T) {
	router := NewRouter(StaticPolicy{AgentID: "estudos"})
	router.RegisterAgent(newEchoAgent("estudos"))

	reply := router.HandleMessage(context.Background(), NewCommand("api", "eco", nil))

	if reply == nil || !reply.IsSuccess() {
		t.Fatalf("expected a successful reply, got %+v", reply)
	}
	if reply.Source != "estudos" {
		t.Errorf("Source = %q, want estudos", reply.Source)
	}
}

// TestRouter_UnknownTargetFallsThrough verifies that a target naming no
// registered agent is not an error: the envelope goes to the policy instead.
func TestRouter_UnknownTargetFallsThrough(t *testing.T) {
	router := NewRouter(StaticPolicy{AgentID: "estudos"})
	router.RegisterAgent(newEchoAgent("estudos"))

	msg := NewCommand("telegram", "eco", nil)
	msg.Target = "nonexistent"

	reply := router.HandleMessage(context.Background(), msg)

	if reply == nil || !reply.IsSuccess() {
		t.Fatalf("expected the policy to rescue the envelope, got %+v", reply)
	}
	if reply.Source != "estudos" {
		t.Errorf("Source = %q, want estudos", reply.Source)
	}
}

// TestRouter_AgentDeterminationError verifies the error envelope when no
// agent can be determined, including its addressing and delivery.
func TestRouter_AgentDeterminationError(t *testing.T) {
	router := NewRouter(nil)
	adapter := newFakeAdapter("telegram")
	router.RegisterAdapter(adapter)

	msg := NewCommand("telegram", "resumo", nil)
	msg.UserID = "9"
	msg.Context["chat_id"] = int64(42)

	reply := router.HandleMessage(context.Background(), msg)

	if reply == nil || reply.Kind != KindError {
		t.Fatalf("expected an error envelope, got %+v", reply)
	}
	if reply.ErrorCode != ErrCodeAgentDetermination {
		t.Errorf("ErrorCode = %q, want %q", reply.ErrorCode, ErrCodeAgentDetermination)
	}
	wantText := fmt.Sprintf("Não foi possível determinar um agente para a mensagem %s", msg.ID)
	if reply.ErrorMessage != wantText {
		t.Errorf("ErrorMessage = %q, want %q", reply.ErrorMessage, wantText)
	}
	if reply.Source != RouterSource {
		t.Errorf("Source = %q, want %q", reply.Source, RouterSource)
	}
	if reply.Target != "telegram" {
		t.Errorf("Target = %q, want telegram", reply.Target)
	}
	if reply.OriginalMessageID != msg.ID {
		t.Errorf("OriginalMessageID = %q, want %q", reply.OriginalMessageID, msg.ID)
	}
	if reply.UserID != "9" {
		t.Errorf("UserID = %q, want 9", reply.UserID)
	}
	if reply.Context["chat_id"] != int64(42) {
		t.Errorf("Context[chat_id] = %v, want the origin context", reply.Context["chat_id"])
	}
	if reply.Content["error"] != wantText {
		t.Errorf("Content[error] = %v, want the error text", reply.Content["error"])
	}

	sent := adapter.sentMessages()
	if len(sent) != 1 || sent[0] != reply {
		t.Errorf("error envelope not delivered to the source adapter: %v", sent)
	}
}

// TestRouter_PolicySelectsUnregistered verifies that a policy pointing at an
// unregistered agent still yields a determination error.
func TestRouter_PolicySelectsUnregistered(t *testing.T) {
	router := NewRouter(StaticPolicy{AgentID: "fantasma"})

	reply := router.HandleMessage(context.Background(), NewQuery("api", "oi"))

	if reply == nil || reply.ErrorCode != ErrCodeAgentDetermination {
		t.Fatalf("expected %s, got %+v", ErrCodeAgentDetermination, reply)
	}
}

// TestRouter_UnsupportedKind verifies the error envelope for kinds outside
// automatic routing.
func TestRouter_UnsupportedKind(t *testing.T) {
	router := NewRouter(StaticPolicy{AgentID: "estudos"})
	router.RegisterAgent(newEchoAgent("estudos"))

	reply := router.HandleMessage(context.Background(), NewEvent("webhook", map[string]any{"x": 1}))

	if reply == nil || reply.ErrorCode != ErrCodeUnsupportedMessage {
		t.Fatalf("expected %s, got %+v", ErrCodeUnsupportedMessage, reply)
	}
	want := "Tipo de mensagem não suportado para roteamento automático: event"
	if reply.ErrorMessage != want {
		t.Errorf("ErrorMessage = %q, want %q", reply.ErrorMessage, want)
	}
}

// TestRouter_AgentPanic verifies the AGENT_PROCESSING_ERROR envelope when an
// agent implementation panics past the router's recovery net.
func TestRouter_AgentPanic(t *testing.T) {
	router := NewRouter(StaticPolicy{AgentID: "instavel"})
	router.RegisterAgent(&panicAgent{id: "instavel"})
	adapter := newFakeAdapter("telegram")
	router.RegisterAdapter(adapter)

	msg := NewCommand("telegram", "qualquer", nil)
	reply := router.HandleMessage(context.Background(), msg)

	if reply == nil || reply.ErrorCode != ErrCodeAgentProcessing {
		t.Fatalf("expected %s, got %+v", ErrCodeAgentProcessing, reply)
	}
	want := "Erro no agente instavel: falha interna"
	if reply.ErrorMessage != want {
		t.Errorf("ErrorMessage = %q, want %q", reply.ErrorMessage, want)
	}
	if len(adapter.sentMessages()) != 1 {
		t.Error("error envelope should be delivered to the source adapter")
	}
}

// TestRouter_InvalidEnvelope verifies the PROCESSING_ERROR envelope for
// envelopes that fail validation.
func TestRouter_InvalidEnvelope(t *testing.T) {
	router := NewRouter(StaticPolicy{AgentID: "estudos"})
	router.RegisterAgent(newEchoAgent("estudos"))

	msg := &Message{ID: "m1", Kind: KindCommand, Source: "ws"}
	reply := router.HandleMessage(context.Background(), msg)

	if reply == nil || reply.ErrorCode != ErrCodeProcessing {
		t.Fatalf("expected %s, got %+v", ErrCodeProcessing, reply)
	}
	if !strings.HasPrefix(reply.ErrorMessage, "Erro ao processar mensagem: ") {
		t.Errorf("ErrorMessage = %q, want the processing prefix", reply.ErrorMessage)
	}
}

// TestRouter_SourceNotAdapter verifies that replies for synchronous sources
// are returned without any delivery attempt.
func TestRouter_SourceNotAdapter(t *testing.T) {
	router := NewRouter(StaticPolicy{AgentID: "estudos"})
	router.RegisterAgent(newEchoAgent("estudos"))
	adapter := newFakeAdapter("telegram")
	router.RegisterAdapter(adapter)

	reply := router.HandleMessage(context.Background(), NewQuery("n8n", "como revisar TCP?"))

	if reply == nil || !reply.IsSuccess() {
		t.Fatalf("expected a successful reply, got %+v", reply)
	}
	if len(adapter.sentMessages()) != 0 {
		t.Error("reply must not leak to an unrelated adapter")
	}
}

// TestRouter_DispatchAsync verifies the fire-and-forget path bound into
// adapters: the reply arrives via Send and Shutdown drains the dispatch.
func TestRouter_DispatchAsync(t *testing.T) {
	router := NewRouter(StaticPolicy{AgentID: "estudos"})
	router.RegisterAgent(newEchoAgent("estudos"))
	adapter := newFakeAdapter("telegram")
	router.RegisterAdapter(adapter)

	if adapter.handler == nil {
		t.Fatal("RegisterAdapter must bind the dispatch callback")
	}
	adapter.handler(context.Background(), NewCommand("telegram", "eco", nil))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := router.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	sent := adapter.sentMessages()
	if len(sent) != 1 {
		t.Fatalf("sent = %d messages, want 1", len(sent))
	}
	if !sent[0].IsSuccess() {
		t.Errorf("expected a successful reply, got %+v", sent[0])
	}
}

// TestRouter_ConcurrentDispatch verifies that concurrent envelopes from
// distinct users come back correctly correlated.
func TestRouter_ConcurrentDispatch(t *testing.T) {
	router := NewRouter(StaticPolicy{AgentID: "estudos"})
	router.RegisterAgent(newEchoAgent("estudos"))

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msg := NewCommand("telegram", "eco", nil)
			msg.UserID = fmt.Sprintf("user-%d", i)

			reply := router.HandleMessage(context.Background(), msg)
			if reply == nil || !reply.IsSuccess() {
				errs <- fmt.Errorf("user %d: bad reply %+v", i, reply)
				return
			}
			if reply.ResponseTo != msg.ID {
				errs <- fmt.Errorf("user %d: ResponseTo = %q, want %q", i, reply.ResponseTo, msg.ID)
				return
			}
			want := fmt.Sprintf("eco:%s:%s", msg.UserID, msg.ID)
			if reply.Content["text"] != want {
				errs <- fmt.Errorf("user %d: text = %v, want %q", i, reply.Content["text"], want)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

// TestRouter_InitializeAll verifies that every adapter is initialized even
// when one fails, and that the failure is surfaced.
func TestRouter_InitializeAll(t *testing.T) {
	router := NewRouter(nil)
	good := newFakeAdapter("telegram")
	bad := newFakeAdapter("discord")
	bad.initErr = errors.New("sem token")
	router.RegisterAdapter(good)
	router.RegisterAdapter(bad)

	err := router.Initialize(context.Background())

	if err == nil {
		t.Fatal("expected the failed adapter's error")
	}
	if !strings.Contains(err.Error(), "discord") {
		t.Errorf("error = %v, want it to name the failing adapter", err)
	}
	if good.inits != 1 || bad.inits != 1 {
		t.Errorf("inits = (%d, %d), want both adapters initialized", good.inits, bad.inits)
	}

	if err := router.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if good.shutdowns != 1 || bad.shutdowns != 1 {
		t.Errorf("shutdowns = (%d, %d), want both adapters stopped", good.shutdowns, bad.shutdowns)
	}
}

// TestRouter_Registries verifies lookup, listing and overwrite-on-reregister.
func TestRouter_Registries(t *testing.T) {
	router := NewRouter(nil)
	first := newEchoAgent("estudos")
	second := newEchoAgent("estudos")
	router.RegisterAgent(first)
	router.RegisterAgent(second)
	router.RegisterAdapter(newFakeAdapter("telegram"))

	got, ok := router.Agent("estudos")
	if !ok || got != Agent(second) {
		t.Error("re-registration should overwrite the previous agent")
	}
	if _, ok := router.Agent("nada"); ok {
		t.Error("unknown agent lookup should fail")
	}
	if _, ok := router.Adapter("telegram"); !ok {
		t.Error("adapter lookup failed")
	}
	if ids := router.AgentIDs(); len(ids) != 1 || ids[0] != "estudos" {
		t.Errorf("AgentIDs = %v", ids)
	}
	if ids := router.AdapterIDs(); len(ids) != 1 || ids[0] != "telegram" {
		t.Errorf("AdapterIDs = %v", ids)
	}
}

// TestRouter_TraceHook verifies that the dispatch hook sees both successful
// and failing outcomes.
func TestRouter_TraceHook(t *testing.T) {
	router := NewRouter(StaticPolicy{AgentID: "estudos"})
	router.RegisterAgent(newEchoAgent("estudos"))

	var mu sync.Mutex
	var traces []DispatchTrace
	router.OnDispatch(func(tr DispatchTrace) {
		mu.Lock()
		traces = append(traces, tr)
		mu.Unlock()
	})

	router.HandleMessage(context.Background(), NewCommand("api", "eco", nil))
	router.HandleMessage(context.Background(), NewEvent("api", nil))

	mu.Lock()
	defer mu.Unlock()
	if len(traces) != 2 {
		t.Fatalf("traces = %d, want 2", len(traces))
	}
	if traces[0].Outcome != "ok" || traces[0].AgentID != "estudos" {
		t.Errorf("first trace = %+v", traces[0])
	}
	if traces[1].Outcome != ErrCodeUnsupportedMessage {
		t.Errorf("second trace outcome = %q, want %q", traces[1].Outcome, ErrCodeUnsupportedMessage)
	}
}
