package disposition

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrSnapshotUnavailable is returned when the active rule set cannot be
// read. Callers must treat it as "decision unavailable": the engine never
// converts a snapshot failure into an approval.
var ErrSnapshotUnavailable = errors.New("rule snapshot unavailable")

// Snapshot is an immutable, versioned read of one tenant's active rule
// set, pre-sorted by ascending priority with rule ID breaking ties. A
// single evaluation call uses exactly one snapshot; concurrent edits bump
// the version and are only visible to later calls.
type Snapshot struct {
	TenantID string
	Version  uint64
	Rules    []*Rule
}

// SnapshotProvider yields the current snapshot for the tenant it serves.
type SnapshotProvider interface {
	Snapshot() (*Snapshot, error)

	// Invalidate marks the cached snapshot stale after a rule edit. The
	// next Snapshot call rebuilds from the store.
	Invalidate()
}

// SnapshotConfig controls snapshot caching.
type SnapshotConfig struct {
	// TTL bounds how long a cached snapshot is served without a store
	// read. Zero means no expiry: only Invalidate refreshes.
	TTL time.Duration
}

// DefaultSnapshotConfig returns the production defaults.
func DefaultSnapshotConfig() SnapshotConfig {
	return SnapshotConfig{TTL: 0}
}

// CachedSnapshotProvider builds snapshots from a RuleStore and serves the
// same immutable snapshot to every reader until a writer invalidates it.
// Readers never block writers: a stale snapshot stays usable while the
// next one is built.
type CachedSnapshotProvider struct {
	tenantID string
	store    RuleStore
	config   SnapshotConfig

	mu      sync.RWMutex
	current *Snapshot
	builtAt time.Time
	version uint64
}

// NewCachedSnapshotProvider creates a provider for one tenant's store.
func NewCachedSnapshotProvider(tenantID string, store RuleStore, config SnapshotConfig) *CachedSnapshotProvider {
	return &CachedSnapshotProvider{
		tenantID: tenantID,
		store:    store,
		config:   config,
	}
}

// Snapshot returns the cached snapshot, rebuilding it from the store when
// missing, invalidated, or expired. The returned snapshot is shared and
// must be treated as read-only; the rules inside are deep copies of the
// store's records and are never mutated after publication.
func (p *CachedSnapshotProvider) Snapshot() (*Snapshot, error) {
	p.mu.RLock()
	snap := p.current
	builtAt := p.builtAt
	p.mu.RUnlock()

	if snap != nil && !p.expired(builtAt) {
		return snap, nil
	}
	return p.rebuild()
}

// Invalidate drops the cached snapshot. The version counter is preserved
// so the next snapshot is observably newer.
func (p *CachedSnapshotProvider) Invalidate() {
	p.mu.Lock()
	p.current = nil
	p.mu.Unlock()
}

// Version returns the version of the snapshot currently cached, or the
// last published version when the cache is stale.
func (p *CachedSnapshotProvider) Version() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.version
}

func (p *CachedSnapshotProvider) expired(builtAt time.Time) bool {
	return p.config.TTL > 0 && time.Since(builtAt) > p.config.TTL
}

func (p *CachedSnapshotProvider) rebuild() (*Snapshot, error) {
	active, err := p.store.ListActive()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotUnavailable, err)
	}

	rules := make([]*Rule, 0, len(active))
	for _, r := range active {
		rules = append(rules, r.Clone())
	}
	SortRules(rules)

	p.mu.Lock()
	defer p.mu.Unlock()

	// Another goroutine may have rebuilt while we were reading the store;
	// either snapshot is a consistent read, so last writer wins.
	p.version++
	p.current = &Snapshot{
		TenantID: p.tenantID,
		Version:  p.version,
		Rules:    rules,
	}
	p.builtAt = time.Now()
	return p.current, nil
}

// SortRules orders rules by ascending priority, breaking ties by rule ID
// so evaluation order is deterministic.
func SortRules(rules []*Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority < rules[j].Priority
		}
		return rules[i].ID < rules[j].ID
	})
}
