// Package watchlist holds the state of watched wallets and their behavior
// profiles. The Registry is the single source of truth for what is being
// watched.
package watchlist

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mr-tron/base58"
)

// State is the lifecycle phase of a watched wallet.
type State string

const (
	// StatePending means the watch was requested but no subscription has
	// been confirmed by the provider yet.
	StatePending State = "pending"
	// StateActive means at least one real-time subscription is live.
	StateActive State = "active"
	// StateDegraded means subscriptions are down and the wallet is covered
	// by the reconciliation sweep only.
	StateDegraded State = "degraded"
	// StateStopped means the wallet was unwatched.
	StateStopped State = "stopped"
)

// Wallet is the tracked state for one watched address. Fields are mutated
// only through Registry.Update, which holds the wallet's lock.
type Wallet struct {
	mu sync.Mutex

	Address string
	UserID  string
	State   State

	// Subscription handles, 0 when absent.
	AccountSub uint64
	LogsSub    uint64

	LastReconciled time.Time
	LastActivity   time.Time

	// Rolling transaction counter for the current observation window.
	WindowStart time.Time
	WindowCount int

	// Last known on-chain existence and balance.
	Exists   bool
	Lamports uint64

	Profile *Profile
}

// copyLocked returns a value copy safe to hand out. Caller holds w.mu.
func (w *Wallet) copyLocked() Wallet {
	return Wallet{
		Address:        w.Address,
		UserID:         w.UserID,
		State:          w.State,
		AccountSub:     w.AccountSub,
		LogsSub:        w.LogsSub,
		LastReconciled: w.LastReconciled,
		LastActivity:   w.LastActivity,
		WindowStart:    w.WindowStart,
		WindowCount:    w.WindowCount,
		Exists:         w.Exists,
		Lamports:       w.Lamports,
		Profile:        w.Profile,
	}
}

// Profile is the rolling behavior profile of a watched wallet. It is shared
// between the coordinator and the enrichment adapter and synchronizes
// internally.
type Profile struct {
	mu           sync.Mutex
	firstSeen    time.Time
	txCount      int64
	lastActivity time.Time
	tags         map[string]bool
}

// NewProfile creates an empty profile.
func NewProfile(now time.Time) *Profile {
	return &Profile{firstSeen: now, tags: make(map[string]bool)}
}

// RecordTx notes one observed transaction.
func (p *Profile) RecordTx(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.txCount++
	p.lastActivity = now
}

// AddTags unions pattern tags into the observed set.
func (p *Profile) AddTags(tags ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range tags {
		if t != "" {
			p.tags[t] = true
		}
	}
}

// Tags returns the observed pattern tags in sorted order.
func (p *Profile) Tags() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.tags))
	for t := range p.tags {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// TxCount returns the total observed transaction count.
func (p *Profile) TxCount() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.txCount
}

// FirstSeen returns when the profile was created.
func (p *Profile) FirstSeen() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.firstSeen
}

// ValidateAddress checks that an address is a well-formed Solana public key:
// base58 text decoding to exactly 32 bytes.
func ValidateAddress(address string) error {
	if len(address) < 32 || len(address) > 44 {
		return fmt.Errorf("%w: %q has invalid length", ErrInvalidAddress, address)
	}
	raw, err := base58.Decode(address)
	if err != nil {
		return fmt.Errorf("%w: %q is not base58", ErrInvalidAddress, address)
	}
	if len(raw) != 32 {
		return fmt.Errorf("%w: %q decodes to %d bytes", ErrInvalidAddress, address, len(raw))
	}
	return nil
}
