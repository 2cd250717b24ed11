// Package ledger implements the account/balance state map and the
// per-block state transition derived from it.
package ledger

import "github.com/klingnet-labs/nodecore/pkg/types"

// Account holds an address's transaction counter and spendable balance.
type Account struct {
	Nonce   uint64
	Balance uint64
}

// State is an immutable-per-block mapping from account address to its
// account record. Callers must treat a State value received from the
// blockchain as read-only and call Clone before mutating it into a
// successor state.
type State map[types.Address]Account

// Clone returns a deep copy of the state, safe to mutate independently.
func (s State) Clone() State {
	next := make(State, len(s))
	for addr, acct := range s {
		next[addr] = acct
	}
	return next
}

// Get returns the account at addr, or the zero account if it does not
// yet exist.
func (s State) Get(addr types.Address) Account {
	return s[addr]
}

// Has reports whether addr has an account entry.
func (s State) Has(addr types.Address) bool {
	_, ok := s[addr]
	return ok
}
