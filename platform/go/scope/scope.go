// Package scope computes the set of clients a user may act against. Admin roles
// always see everything; members are restricted only when the tenant settings
// document carries an allow-list entry for them. The internal firm-work client
// sits outside the allow-list: staff can always log non-billable firm time.
package scope

import (
	"github.com/google/uuid"

	"github.com/hourledger/hourledger/platform/go/auth"
)

// Scope is the resolved client access for one user. The zero value denies
// everything except the internal client; use All or Resolve to construct.
type Scope struct {
	all     bool
	allowed map[uuid.UUID]struct{}
}

// All returns an unrestricted scope.
func All() Scope {
	return Scope{all: true}
}

// Restricted returns a scope limited to exactly the given client ids.
func Restricted(clientIDs []uuid.UUID) Scope {
	allowed := make(map[uuid.UUID]struct{}, len(clientIDs))
	for _, id := range clientIDs {
		allowed[id] = struct{}{}
	}
	return Scope{allowed: allowed}
}

// Unrestricted reports whether the scope covers every client in the tenant.
func (s Scope) Unrestricted() bool {
	return s.all
}

// AllowsClient reports whether the user may act on the given client. The
// internal firm-work client is always permitted regardless of the allow-list.
func (s Scope) AllowsClient(clientID uuid.UUID, internal bool) bool {
	if s.all || internal {
		return true
	}
	_, ok := s.allowed[clientID]
	return ok
}

// AllowedList returns the explicit allow-list of a restricted scope. The
// second result is false for unrestricted scopes, where no list exists.
func (s Scope) AllowedList() ([]uuid.UUID, bool) {
	if s.all {
		return nil, false
	}
	out := make([]uuid.UUID, 0, len(s.allowed))
	for id := range s.allowed {
		out = append(out, id)
	}
	return out, true
}

// Filter narrows a client id list to the ones the scope permits. Used by read
// paths that expand "all clients" into a concrete list beforehand.
func (s Scope) Filter(clientIDs []uuid.UUID) []uuid.UUID {
	if s.all {
		return clientIDs
	}
	out := make([]uuid.UUID, 0, len(clientIDs))
	for _, id := range clientIDs {
		if _, ok := s.allowed[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// Resolve computes the scope for a user. clientAccess is the per-user
// allow-list map parsed from the tenant settings document. A missing entry
// means default-open; a present entry, including an empty list, restricts the
// member to exactly that list.
func Resolve(clientAccess map[uuid.UUID][]uuid.UUID, userID uuid.UUID, role auth.Role) Scope {
	if role.Elevated() {
		return All()
	}

	ids, ok := clientAccess[userID]
	if !ok {
		return All()
	}
	return Restricted(ids)
}
