package channels

import "strings"

// Allowlist restricts inbound traffic to known senders. Entries match the
// platform user id or the username; a leading "@" is stripped on both
// sides. An empty list admits everyone.
type Allowlist struct {
	set map[string]struct{}
}

// NewAllowlist normalizes the configured values into an Allowlist.
func NewAllowlist(values []string) *Allowlist {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(strings.TrimPrefix(v, "@"))
		if v != "" {
			set[v] = struct{}{}
		}
	}
	return &Allowlist{set: set}
}

// Allows reports whether any of the given identifiers is on the list.
// Empty identifiers never match.
func (a *Allowlist) Allows(ids ...string) bool {
	if a == nil || len(a.set) == 0 {
		return true
	}
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := a.set[strings.TrimPrefix(id, "@")]; ok {
			return true
		}
	}
	return false
}
