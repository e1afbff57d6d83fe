package sharedmem

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// MemoryStore is the default, in-process Store implementation: an
// RWMutex-guarded map with a background eviction loop and optional
// debounced snapshot persistence to disk.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry

	snapshotPath string
	saveCh       chan struct{}
	evictEvery   time.Duration

	doneCh chan struct{}
	stopCh chan struct{}
	closed bool
}

// diskSnapshot is the on-disk persistence shape.
type diskSnapshot struct {
	Entries map[string]Entry `json:"entries"`
}

// MemoryOption configures a MemoryStore at construction time.
type MemoryOption func(*MemoryStore)

// WithSnapshotPath enables debounced JSON-snapshot persistence to the
// given file, restoring it (if present) at construction time.
func WithSnapshotPath(path string) MemoryOption {
	return func(m *MemoryStore) { m.snapshotPath = path }
}

// WithEvictionInterval overrides the default 10-minute background
// eviction sweep.
func WithEvictionInterval(d time.Duration) MemoryOption {
	return func(m *MemoryStore) { m.evictEvery = d }
}

// NewMemoryStore builds a MemoryStore and starts its background eviction
// loop (and, if a snapshot path is configured, its debounced save loop).
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{
		entries:    map[string]Entry{},
		evictEvery: 10 * time.Minute,
		saveCh:     make(chan struct{}, 1),
		doneCh:     make(chan struct{}),
		stopCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.snapshotPath != "" {
		m.restore()
	}
	go m.evictionLoop()
	if m.snapshotPath != "" {
		go m.saveLoop()
	} else {
		close(m.doneCh)
	}
	return m
}

func (m *MemoryStore) restore() {
	data, err := os.ReadFile(m.snapshotPath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", m.snapshotPath).Msg("shared-memory snapshot restore failed")
		}
		return
	}
	var snap diskSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Warn().Err(err).Msg("shared-memory snapshot is corrupt, starting empty")
		return
	}
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, e := range snap.Entries {
		if !e.Expired(now) {
			m.entries[k] = e
		}
	}
}

func (m *MemoryStore) requestSave() {
	if m.snapshotPath == "" {
		return
	}
	select {
	case m.saveCh <- struct{}{}:
	default:
	}
}

func (m *MemoryStore) saveLoop() {
	defer close(m.doneCh)
	debounce := 500 * time.Millisecond
	var timer *time.Timer
	for {
		select {
		case <-m.stopCh:
			m.persist()
			return
		case <-m.saveCh:
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
		case <-timerC(timer):
			m.persist()
			timer = nil
		}
	}
}

// timerC returns t.C, or a nil channel (which blocks forever in a select)
// when t is nil, so the save loop can select on "no pending timer" safely.
func timerC(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

func (m *MemoryStore) persist() {
	m.mu.RLock()
	snap := diskSnapshot{Entries: make(map[string]Entry, len(m.entries))}
	for k, e := range m.entries {
		snap.Entries[k] = e
	}
	m.mu.RUnlock()

	data, err := json.Marshal(snap)
	if err != nil {
		log.Error().Err(err).Msg("shared-memory snapshot marshal failed")
		return
	}
	tmp := m.snapshotPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		log.Error().Err(err).Msg("shared-memory snapshot write failed")
		return
	}
	if err := os.Rename(tmp, m.snapshotPath); err != nil {
		log.Error().Err(err).Msg("shared-memory snapshot rename failed")
	}
}

func (m *MemoryStore) evictionLoop() {
	ticker := time.NewTicker(m.evictEvery)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.evictExpired()
		}
	}
}

func (m *MemoryStore) evictExpired() {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	evicted := 0
	for k, e := range m.entries {
		if e.Expired(now) {
			delete(m.entries, k)
			evicted++
		}
	}
	if evicted > 0 {
		log.Debug().Int("evicted", evicted).Msg("shared-memory eviction sweep")
	}
}

// Set stores value under key, tagged with owner, expiring after ttl (a
// zero ttl never expires on its own).
func (m *MemoryStore) Set(ctx context.Context, key string, value any, owner string, ttl time.Duration) error {
	now := time.Now()
	e := Entry{Key: key, Value: value, Owner: owner, CreatedAt: now}
	if ttl > 0 {
		e.ExpiresAt = now.Add(ttl)
	}
	m.mu.Lock()
	m.entries[key] = e
	m.mu.Unlock()
	m.requestSave()
	return nil
}

// Get returns the entry for key if present and not expired.
func (m *MemoryStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok || e.Expired(time.Now()) {
		return Entry{}, false, nil
	}
	return e, true, nil
}

// Delete removes key if it exists and is owned by owner. A missing key or
// an owner mismatch is a no-op, not an error.
func (m *MemoryStore) Delete(ctx context.Context, key string, owner string) error {
	m.mu.Lock()
	e, existed := m.entries[key]
	deleted := false
	if existed && e.Owner == owner {
		delete(m.entries, key)
		deleted = true
	}
	m.mu.Unlock()
	if deleted {
		m.requestSave()
	}
	return nil
}

// Query returns every non-expired entry whose key matches pattern.
func (m *MemoryStore) Query(ctx context.Context, pattern string) ([]Entry, error) {
	now := time.Now()
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Entry
	for k, e := range m.entries {
		if e.Expired(now) {
			continue
		}
		if matchPattern(pattern, k) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Close stops the background loops and, if persistence is enabled, writes
// a final snapshot. Idempotent.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.stopCh)
	<-m.doneCh
	return nil
}
