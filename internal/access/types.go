package access

import (
	"errors"
	"strings"
)

var (
	// ErrInvalidUser is returned when a user context has no tenant.
	ErrInvalidUser = errors.New("invalid user context: empty tenant id")
)

// PublicPrincipal marks chunks readable by every user of the owning tenant.
const PublicPrincipal = "public"

// UserContext carries the identity a retrieval request runs under.
// TenantID must be non-empty; GroupIDs may be empty.
type UserContext struct {
	UserID   string   `json:"user_id"`
	TenantID string   `json:"tenant_id"`
	GroupIDs []string `json:"group_ids,omitempty"`
	// Language is an optional BCP-47-ish preference used for filtering and
	// post-fusion reweighting.
	Language string `json:"language,omitempty"`
	// GroupHierarchy optionally maps a group to its parent groups. Principals
	// computes the transitive closure so membership in a child group implies
	// membership in its ancestors.
	GroupHierarchy map[string][]string `json:"group_hierarchy,omitempty"`
}

// Validate checks the UserContext invariants.
func (u UserContext) Validate() error {
	if strings.TrimSpace(u.TenantID) == "" {
		return ErrInvalidUser
	}
	return nil
}

// Principals returns the full principal set for ACL matching:
// {userId} ∪ groupIds ∪ ancestors(groupIds) ∪ {"public"}.
// Computed once per request; order is deterministic (user, groups in input
// order, discovered ancestors in traversal order, public last).
func (u UserContext) Principals() []string {
	seen := make(map[string]struct{}, len(u.GroupIDs)+2)
	out := make([]string, 0, len(u.GroupIDs)+2)
	add := func(p string) {
		if p == "" {
			return
		}
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	add(u.UserID)
	// BFS over the hierarchy; cycles are harmless because of the seen set.
	queue := append([]string(nil), u.GroupIDs...)
	for len(queue) > 0 {
		g := queue[0]
		queue = queue[1:]
		if g == "" {
			continue
		}
		if _, ok := seen[g]; ok {
			continue
		}
		seen[g] = struct{}{}
		out = append(out, g)
		if u.GroupHierarchy != nil {
			queue = append(queue, u.GroupHierarchy[g]...)
		}
	}
	add(PublicPrincipal)
	return out
}

// IsAdmin reports whether the user may bypass the answerability guardrail.
// Policy placeholder: group membership in "admin"/"system", or a user id
// containing "admin". Production deployments should replace this with an
// explicit capability claim.
func IsAdmin(u UserContext) bool {
	for _, g := range u.GroupIDs {
		if g == "admin" || g == "system" {
			return true
		}
	}
	return strings.Contains(strings.ToLower(u.UserID), "admin")
}
