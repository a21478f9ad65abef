// Package metrics provides real-time metrics tracking for the engine: an
// in-process tracker feeding the dashboard and Prometheus collectors for
// scraping.
package metrics

import (
	"sort"
	"sync"
	"time"
)

// WalletActivity tracks observed activity for a single watched wallet.
type WalletActivity struct {
	Address        string
	UserID         string
	State          string
	EventCount     int
	AlertCount     int
	CumulativeRisk int
	LastScore      int
	LastSeverity   string
	LastEvent      time.Time
}

// RiskStats represents a wallet ranked by accumulated risk.
type RiskStats struct {
	Address        string
	UserID         string
	CumulativeRisk int
	AlertCount     int
	LastScore      int
	LastSeverity   string
}

// Snapshot is a point-in-time view of metrics.
type Snapshot struct {
	EventsTotal       int64
	AccountEvents     int64
	TxEvents          int64
	SweepTicks        int64
	AlertsBySeverity  map[string]int64
	EnrichmentOK      int64
	EnrichmentFailed  int64
	EventRate         float64 // events per second over the last 60s
	WalletActivities  map[string]*WalletActivity
	TopRisk           []RiskStats
	Uptime            time.Duration
	WebSocketStatus   string
	LastSweep         time.Time
	ChannelBufferUsed int
	ChannelBufferCap  int
}

// Tracker provides thread-safe metrics tracking.
type Tracker struct {
	mu                sync.RWMutex
	eventsTotal       int64
	accountEvents     int64
	txEvents          int64
	sweepTicks        int64
	alertsBySeverity  map[string]int64
	enrichmentOK      int64
	enrichmentFailed  int64
	walletActivity    map[string]*WalletActivity
	startTime         time.Time
	eventTimestamps   []time.Time // for rate calculation
	wsStatus          string
	lastSweep         time.Time
	channelBufferUsed int
	channelBufferCap  int
}

// NewTracker creates a new Tracker.
func NewTracker() *Tracker {
	return &Tracker{
		alertsBySeverity: make(map[string]int64),
		walletActivity:   make(map[string]*WalletActivity),
		startTime:        time.Now(),
		eventTimestamps:  make([]time.Time, 0, 1000),
		wsStatus:         "disconnected",
	}
}

// RecordEvent counts one inbound provider event for a wallet. source is
// "account" or "transaction".
func (m *Tracker) RecordEvent(source, address string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.eventsTotal++
	if source == "account" {
		m.accountEvents++
	} else {
		m.txEvents++
	}

	now := time.Now()
	m.eventTimestamps = append(m.eventTimestamps, now)

	// Keep only last 60 seconds of timestamps
	cutoff := now.Add(-60 * time.Second)
	validIdx := 0
	for i, ts := range m.eventTimestamps {
		if ts.After(cutoff) {
			validIdx = i
			break
		}
	}
	if validIdx > 0 {
		m.eventTimestamps = m.eventTimestamps[validIdx:]
	}

	if activity, ok := m.walletActivity[address]; ok {
		activity.EventCount++
		activity.LastEvent = now
	}
}

// RecordAlert counts one delivered alert and accumulates the wallet's risk.
func (m *Tracker) RecordAlert(severity string, score int, address string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.alertsBySeverity[severity]++
	if activity, ok := m.walletActivity[address]; ok {
		activity.AlertCount++
		activity.CumulativeRisk += score
		activity.LastScore = score
		activity.LastSeverity = severity
	}
}

// RecordEnrichment counts one enrichment attempt.
func (m *Tracker) RecordEnrichment(ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ok {
		m.enrichmentOK++
	} else {
		m.enrichmentFailed++
	}
}

// RecordSweep records a completed reconciliation pass.
func (m *Tracker) RecordSweep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepTicks++
	m.lastSweep = time.Now()
}

// SetWalletState creates or updates the tracked entry for a wallet.
func (m *Tracker) SetWalletState(address, userID, state string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	activity, exists := m.walletActivity[address]
	if !exists {
		activity = &WalletActivity{
			Address: address,
			UserID:  userID,
		}
		m.walletActivity[address] = activity
	}
	activity.State = state
}

// RemoveWallet drops a wallet's activity entry after unwatch.
func (m *Tracker) RemoveWallet(address string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.walletActivity, address)
}

// SetWebSocketStatus sets the WebSocket connection status.
func (m *Tracker) SetWebSocketStatus(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wsStatus = status
}

// SetChannelBuffer sets the alert channel buffer usage.
func (m *Tracker) SetChannelBuffer(used, capacity int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channelBufferUsed = used
	m.channelBufferCap = capacity
}

// Snapshot returns a point-in-time snapshot of metrics.
func (m *Tracker) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Event rate over the last 60 seconds
	eventRate := 0.0
	if len(m.eventTimestamps) > 0 {
		oldestTime := m.eventTimestamps[0]
		duration := time.Since(oldestTime).Seconds()
		if duration > 0 {
			eventRate = float64(len(m.eventTimestamps)) / duration
		}
	}

	alertsCopy := make(map[string]int64)
	for k, v := range m.alertsBySeverity {
		alertsCopy[k] = v
	}

	activitiesCopy := make(map[string]*WalletActivity)
	for k, v := range m.walletActivity {
		activityCopy := *v
		activitiesCopy[k] = &activityCopy
	}

	return Snapshot{
		EventsTotal:       m.eventsTotal,
		AccountEvents:     m.accountEvents,
		TxEvents:          m.txEvents,
		SweepTicks:        m.sweepTicks,
		AlertsBySeverity:  alertsCopy,
		EnrichmentOK:      m.enrichmentOK,
		EnrichmentFailed:  m.enrichmentFailed,
		EventRate:         eventRate,
		WalletActivities:  activitiesCopy,
		TopRisk:           m.calculateTopRisk(),
		Uptime:            time.Since(m.startTime),
		WebSocketStatus:   m.wsStatus,
		LastSweep:         m.lastSweep,
		ChannelBufferUsed: m.channelBufferUsed,
		ChannelBufferCap:  m.channelBufferCap,
	}
}

// calculateTopRisk ranks wallets by accumulated risk, highest first.
// Must be called with lock held.
func (m *Tracker) calculateTopRisk() []RiskStats {
	ranked := make([]RiskStats, 0, len(m.walletActivity))

	for _, activity := range m.walletActivity {
		if activity.CumulativeRisk == 0 {
			continue
		}
		ranked = append(ranked, RiskStats{
			Address:        activity.Address,
			UserID:         activity.UserID,
			CumulativeRisk: activity.CumulativeRisk,
			AlertCount:     activity.AlertCount,
			LastScore:      activity.LastScore,
			LastSeverity:   activity.LastSeverity,
		})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].CumulativeRisk != ranked[j].CumulativeRisk {
			return ranked[i].CumulativeRisk > ranked[j].CumulativeRisk
		}
		return ranked[i].Address < ranked[j].Address
	})

	return ranked
}
