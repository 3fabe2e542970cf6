package mcp

import "testing"

// TestStaticPolicy_Select verifies that commands and queries go to the fixed
// agent and other kinds reach no decision.
func TestStaticPolicy_Select(t *testing.T) {
	policy := StaticPolicy{AgentID: "estudos"}

	tests := []struct {
		name   string
		msg    *Message
		want   string
		wantOK bool
	}{
		{"command", NewCommand("telegram", "resumo", nil), "estudos", true},
		{"query", NewQuery("telegram", "oi"), "estudos", true},
		{"event", NewEvent("webhook", nil), "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := policy.Select(tt.msg)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("Select() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

// TestStaticPolicy_Empty verifies that an unconfigured policy reaches no
// decision.
func TestStaticPolicy_Empty(t *testing.T) {
	policy := StaticPolicy{}
	if _, ok := policy.Select(NewCommand("telegram", "resumo", nil)); ok {
		t.Error("empty policy should not select an agent")
	}
}

// TestBindingPolicy_Select verifies ordered matching on command and channel,
// the fallback and the first-match-wins rule.
func TestBindingPolicy_Select(t *testing.T) {
	policy := NewBindingPolicy([]Binding{
		{AgentID: "ops", Match: BindingMatch{Command: "deploy"}},
		{AgentID: "suporte", Match: BindingMatch{Channel: "webhook"}},
		{AgentID: "nunca", Match: BindingMatch{Channel: "webhook"}},
	}, "estudos")

	tests := []struct {
		name   string
		msg    *Message
		want   string
		wantOK bool
	}{
		{"bound command", NewCommand("telegram", "deploy", nil), "ops", true},
		{"channel binding", NewCommand("webhook", "qualquer", nil), "suporte", true},
		{"first match wins", NewQuery("webhook", "oi"), "suporte", true},
		{"unbound command falls back", NewCommand("telegram", "outro", nil), "estudos", true},
		{"query falls back", NewQuery("telegram", "oi"), "estudos", true},
		{"command binding skips queries", NewQuery("ci", "deploy"), "estudos", true},
		{"event", NewEvent("webhook", nil), "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := policy.Select(tt.msg)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("Select() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

// TestBindingPolicy_NoFallback verifies that without a fallback an unbound
// command reaches no decision.
func TestBindingPolicy_NoFallback(t *testing.T) {
	policy := NewBindingPolicy([]Binding{
		{AgentID: "estudos", Match: BindingMatch{Command: "resumo"}},
	}, "")

	if _, ok := policy.Select(NewCommand("telegram", "outro", nil)); ok {
		t.Error("unbound command without fallback should not select")
	}
	if got, ok := policy.Select(NewCommand("telegram", "resumo", nil)); !ok || got != "estudos" {
		t.Errorf("bound command = (%q, %v), want (estudos, true)", got, ok)
	}
}

// TestBindingPolicy_Update verifies the atomic swap used by config reload,
// including that the caller's slice is copied.
func TestBindingPolicy_Update(t *testing.T) {
	bindings := []Binding{{AgentID: "estudos", Match: BindingMatch{Command: "resumo"}}}
	policy := NewBindingPolicy(bindings, "estudos")

	bindings[0].AgentID = "intruso"
	if got, _ := policy.Select(NewCommand("telegram", "resumo", nil)); got != "estudos" {
		t.Errorf("mutating the source slice changed the policy: got %q", got)
	}

	policy.Update([]Binding{{AgentID: "novo", Match: BindingMatch{Command: "resumo"}}}, "outro")
	if got, _ := policy.Select(NewCommand("telegram", "resumo", nil)); got != "novo" {
		t.Errorf("after Update, bound command = %q, want novo", got)
	}
	if got, _ := policy.Select(NewQuery("telegram", "oi")); got != "outro" {
		t.Errorf("after Update, query fallback = %q, want outro", got)
	}
}
