package watchlist

import (
	"errors"
	"sync"
	"time"
)

// ErrInvalidAddress rejects malformed wallet addresses before any registry
// state is created.
var ErrInvalidAddress = errors.New("invalid wallet address")

// Registry is the concurrency-safe store of watched wallets. The map lock
// covers membership only; each wallet carries its own lock, so operations on
// different wallets never block each other.
type Registry struct {
	mu      sync.RWMutex
	wallets map[string]*Wallet
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{wallets: make(map[string]*Wallet)}
}

// Watch adds an address to the watchlist. Re-adding a watched address is a
// no-op success and reports alreadyWatched=true. A malformed address is
// rejected with ErrInvalidAddress before any entry is created.
func (r *Registry) Watch(address, userID string) (alreadyWatched bool, err error) {
	if err := ValidateAddress(address); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.wallets[address]; ok {
		return true, nil
	}

	now := time.Now()
	r.wallets[address] = &Wallet{
		Address:     address,
		UserID:      userID,
		State:       StatePending,
		WindowStart: now,
		Profile:     NewProfile(now),
	}
	return false, nil
}

// Unwatch removes an address and returns the final state of its entry so the
// caller can release subscription handles. Unwatching an unknown address is
// a no-op.
func (r *Registry) Unwatch(address string) (Wallet, bool) {
	r.mu.Lock()
	w, ok := r.wallets[address]
	if ok {
		delete(r.wallets, address)
	}
	r.mu.Unlock()

	if !ok {
		return Wallet{}, false
	}

	w.mu.Lock()
	w.State = StateStopped
	cp := w.copyLocked()
	w.mu.Unlock()
	return cp, true
}

// Get returns a stable copy of the wallet's state.
func (r *Registry) Get(address string) (Wallet, bool) {
	r.mu.RLock()
	w, ok := r.wallets[address]
	r.mu.RUnlock()

	if !ok {
		return Wallet{}, false
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.copyLocked(), true
}

// Update applies fn to the wallet's state atomically with respect to other
// per-wallet operations. fn must not block on I/O. Returns false when the
// address is no longer watched.
func (r *Registry) Update(address string, fn func(*Wallet)) bool {
	r.mu.RLock()
	w, ok := r.wallets[address]
	r.mu.RUnlock()

	if !ok {
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	fn(w)
	return true
}

// Snapshot returns stable copies of every watched wallet. Iteration never
// observes a half-updated entry.
func (r *Registry) Snapshot() []Wallet {
	r.mu.RLock()
	refs := make([]*Wallet, 0, len(r.wallets))
	for _, w := range r.wallets {
		refs = append(refs, w)
	}
	r.mu.RUnlock()

	out := make([]Wallet, 0, len(refs))
	for _, w := range refs {
		w.mu.Lock()
		out = append(out, w.copyLocked())
		w.mu.Unlock()
	}
	return out
}

// Count returns the number of watched wallets.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.wallets)
}
