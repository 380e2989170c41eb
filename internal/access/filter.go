package access

import (
	"github.com/lumenworks/ragcore/internal/vectordb"
)

// BuildFilter translates a user identity into the store's payload filter:
// must[tenant == user.TenantID], must[acl ∈ principals], and optionally
// must[lang == user.Language]. Extra conditions (e.g. docId) are appended to
// the conjunction. The filter enforces row-level access inside the store;
// Allowed re-checks the same predicate after search (defense-in-depth).
func BuildFilter(user UserContext, extra ...vectordb.Condition) (*vectordb.Filter, error) {
	if err := user.Validate(); err != nil {
		return nil, err
	}
	must := []vectordb.Condition{
		vectordb.MatchValue("tenant", user.TenantID),
		vectordb.MatchAny("acl", user.Principals()...),
	}
	if user.Language != "" {
		must = append(must, vectordb.MatchValue("lang", user.Language))
	}
	must = append(must, extra...)
	return &vectordb.Filter{Must: must}, nil
}

// Allowed evaluates the access predicate P(user, doc) against a chunk
// payload: tenant match and a non-empty intersection between the chunk ACL
// and the user's principal set.
func Allowed(user UserContext, payload vectordb.Payload) bool {
	if payload.Tenant() != user.TenantID {
		return false
	}
	acl := payload.ACL()
	if len(acl) == 0 {
		return false
	}
	principals := user.Principals()
	set := make(map[string]struct{}, len(principals))
	for _, p := range principals {
		set[p] = struct{}{}
	}
	for _, a := range acl {
		if _, ok := set[a]; ok {
			return true
		}
	}
	return false
}
