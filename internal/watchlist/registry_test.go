package watchlist

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Well-formed 32-byte base58 keys.
const (
	addrA = "11111111111111111111111111111111"
	addrB = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
)

func TestWatchIdempotent(t *testing.T) {
	r := NewRegistry()

	already, err := r.Watch(addrA, "user-1")
	require.NoError(t, err)
	assert.False(t, already)

	already, err = r.Watch(addrA, "user-1")
	require.NoError(t, err)
	assert.True(t, already, "second watch must report alreadyWatched")
	assert.Equal(t, 1, r.Count(), "duplicate watch must not add an entry")

	w, ok := r.Get(addrA)
	require.True(t, ok)
	assert.Equal(t, "user-1", w.UserID)
	assert.Equal(t, StatePending, w.State)
	require.NotNil(t, w.Profile)
}

func TestWatchInvalidAddress(t *testing.T) {
	r := NewRegistry()

	for _, addr := range []string{"", "short", "0OIl-not-base58-0OIl-not-base58-0OIl", "abc!@#"} {
		_, err := r.Watch(addr, "user-1")
		assert.ErrorIs(t, err, ErrInvalidAddress, "address %q", addr)
	}
	assert.Equal(t, 0, r.Count(), "no entry may be created for a malformed address")
}

func TestUnwatchIdempotent(t *testing.T) {
	r := NewRegistry()

	_, ok := r.Unwatch(addrA)
	assert.False(t, ok, "unwatch of unknown address is a no-op")

	_, err := r.Watch(addrA, "user-1")
	require.NoError(t, err)
	r.Update(addrA, func(w *Wallet) {
		w.AccountSub = 7
		w.LogsSub = 8
	})

	final, ok := r.Unwatch(addrA)
	require.True(t, ok)
	assert.Equal(t, StateStopped, final.State)
	assert.Equal(t, uint64(7), final.AccountSub, "final copy must carry the handles for cleanup")
	assert.Equal(t, 0, r.Count())

	_, ok = r.Get(addrA)
	assert.False(t, ok)
}

func TestUpdateAfterUnwatch(t *testing.T) {
	r := NewRegistry()
	_, err := r.Watch(addrA, "user-1")
	require.NoError(t, err)
	r.Unwatch(addrA)

	ok := r.Update(addrA, func(w *Wallet) { w.WindowCount++ })
	assert.False(t, ok, "update of an unwatched wallet must report absence")
}

func TestSnapshotStableUnderConcurrentMutation(t *testing.T) {
	r := NewRegistry()
	_, err := r.Watch(addrA, "user-1")
	require.NoError(t, err)
	_, err = r.Watch(addrB, "user-2")
	require.NoError(t, err)

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				r.Update(addrA, func(w *Wallet) {
					w.WindowCount++
					w.LastActivity = time.Now()
				})
			}
		}
	}()

	for i := 0; i < 200; i++ {
		snap := r.Snapshot()
		assert.Len(t, snap, 2)
		for _, w := range snap {
			assert.NotEmpty(t, w.Address)
			assert.NotNil(t, w.Profile)
		}
	}

	close(stop)
	wg.Wait()
}

func TestProfileTags(t *testing.T) {
	p := NewProfile(time.Now())
	p.AddTags("approval", "drainer", "approval", "")
	assert.Equal(t, []string{"approval", "drainer"}, p.Tags())

	p.RecordTx(time.Now())
	p.RecordTx(time.Now())
	assert.Equal(t, int64(2), p.TxCount())
}
