package channels

import (
	"context"
	"testing"

	"github.com/estudolab/estudai/internal/mcp"
)

// TestBaseAdapter_Dispatch forwards envelopes once bound and drops them
// before that.
func TestBaseAdapter_Dispatch(t *testing.T) {
	base := NewBaseAdapter("telegram")
	if base.ID() != "telegram" {
		t.Fatalf("ID() = %q, want %q", base.ID(), "telegram")
	}

	msg := mcp.NewQuery("telegram", "oi")

	// Unbound: must not panic, envelope is dropped.
	base.Dispatch(context.Background(), msg)

	var got *mcp.Message
	base.Bind(func(_ context.Context, m *mcp.Message) { got = m })
	base.Dispatch(context.Background(), msg)
	if got != msg {
		t.Error("bound handler did not receive the envelope")
	}

	base.Dispatch(context.Background(), nil)
}

// TestTruncate bounds log previews.
func TestTruncate(t *testing.T) {
	if got := Truncate("abcdef", 4); got != "abcd..." {
		t.Errorf("Truncate = %q, want %q", got, "abcd...")
	}
	if got := Truncate("abc", 4); got != "abc" {
		t.Errorf("Truncate = %q, want %q", got, "abc")
	}
}

// TestAllowlist matches ids and usernames with "@" stripped on both sides
// and admits everyone when empty.
func TestAllowlist(t *testing.T) {
	list := NewAllowlist([]string{"@ana", "99", "  ", ""})

	if !list.Allows("7", "ana") {
		t.Error("allowed username rejected")
	}
	if !list.Allows("99", "") {
		t.Error("allowed id rejected")
	}
	if !list.Allows("7", "@ana") {
		t.Error("prefixed username rejected")
	}
	if list.Allows("7", "bob") {
		t.Error("unknown sender admitted")
	}
	if list.Allows("") {
		t.Error("empty identifier admitted")
	}

	var empty *Allowlist
	if !empty.Allows("anyone") {
		t.Error("nil allowlist rejected a sender")
	}
	if !NewAllowlist(nil).Allows("anyone") {
		t.Error("empty allowlist rejected a sender")
	}
}
