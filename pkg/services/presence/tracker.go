package presence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jgirmay/presencehub/internal/shard"
	"github.com/jgirmay/presencehub/pkg/logging"
	"github.com/jgirmay/presencehub/pkg/metrics"
	"github.com/jgirmay/presencehub/pkg/repository"
)

// ErrNoStore is returned by flush operations when no durable store is configured.
var ErrNoStore = errors.New("presence: no durable store configured")

// Store is the durable side of the tracker.
type Store interface {
	repository.ActivityWriter
	repository.ActivityReader
}

// LastActiveLookup reads one user's stored activity.
type LastActiveLookup interface {
	GetLastActive(ctx context.Context, userID string) (*time.Time, error)
}

// Config holds tracker configuration
type Config struct {
	FlushInterval time.Duration
	SeedWindow    time.Duration
	ShardCount    int
	// FlushTimeout bounds the final flush performed by Stop.
	FlushTimeout time.Duration
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		FlushInterval: 30 * time.Second,
		SeedWindow:    AwayWindow,
		ShardCount:    shard.DefaultCount,
		FlushTimeout:  5 * time.Second,
	}
}

// Option customizes a Tracker
type Option func(*Tracker)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// trackerShard holds live activity and the last-seen cache for one stripe
// of users. Both maps share the lock so a read sees a consistent pair.
type trackerShard struct {
	mu     sync.RWMutex
	active map[string]time.Time
	seen   map[string]time.Time
}

// OnlineSummary lists every online or away user
type OnlineSummary struct {
	Users  map[string]Snapshot
	Online int
	Away   int
}

// Tracker records user activity, derives presence status and batches
// last-activity writes to the durable store.
type Tracker struct {
	shards []*trackerShard

	pendingMu sync.Mutex
	pending   map[string]struct{}

	store   Store
	cfg     Config
	logger  *logging.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	lifeMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewTracker creates a tracker. store may be nil: users are still queued, but
// only an explicit FlushPending or FlushUser with a writer drains them.
func NewTracker(store Store, cfg Config, logger *logging.Logger, m *metrics.Metrics, opts ...Option) *Tracker {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultConfig().FlushInterval
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = DefaultConfig().FlushTimeout
	}
	cfg.ShardCount = shard.Normalize(cfg.ShardCount)

	t := &Tracker{
		shards:  make([]*trackerShard, cfg.ShardCount),
		pending: make(map[string]struct{}),
		store:   store,
		cfg:     cfg,
		logger:  logging.OrNop(logger).Named("presence"),
		metrics: m,
		now:     time.Now,
	}
	for i := range t.shards {
		t.shards[i] = &trackerShard{
			active: make(map[string]time.Time),
			seen:   make(map[string]time.Time),
		}
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tracker) shardFor(userID string) *trackerShard {
	return t.shards[shard.Index(userID, len(t.shards))]
}

// MarkActive records now as the user's last activity and queues the user
// for the next durable flush.
func (t *Tracker) MarkActive(userID string) {
	now := t.now()

	s := t.shardFor(userID)
	s.mu.Lock()
	s.active[userID] = now
	s.seen[userID] = now
	s.mu.Unlock()

	t.pendingMu.Lock()
	t.pending[userID] = struct{}{}
	t.pendingMu.Unlock()

	t.metrics.Heartbeat()
}

// MarkInactive drops the live activity record. The cached last-seen value
// stays, so the status decays naturally instead of flipping to offline.
func (t *Tracker) MarkInactive(userID string) {
	s := t.shardFor(userID)
	s.mu.Lock()
	delete(s.active, userID)
	s.mu.Unlock()
}

// lastSeenLocked prefers live activity over the cache. Caller holds s.mu.
func (s *trackerShard) lastSeenLocked(userID string) (time.Time, bool) {
	if ts, ok := s.active[userID]; ok {
		return ts, true
	}
	ts, ok := s.seen[userID]
	return ts, ok
}

// GetStatus returns the user's current presence snapshot
func (t *Tracker) GetStatus(userID string) Snapshot {
	s := t.shardFor(userID)
	s.mu.RLock()
	ts, _ := s.lastSeenLocked(userID)
	s.mu.RUnlock()
	return newSnapshot(userID, t.now(), ts)
}

// ResolveStatus is GetStatus with a durable fallback. A user unknown to the
// cache is read from l and, when a row exists, cached as last seen. On a
// lookup error the user is reported offline along with the error.
func (t *Tracker) ResolveStatus(ctx context.Context, l LastActiveLookup, userID string) (Snapshot, error) {
	s := t.shardFor(userID)
	s.mu.RLock()
	ts, ok := s.lastSeenLocked(userID)
	s.mu.RUnlock()
	if ok || l == nil {
		return newSnapshot(userID, t.now(), ts), nil
	}

	stored, err := l.GetLastActive(ctx, userID)
	if err != nil {
		return newSnapshot(userID, t.now(), time.Time{}), fmt.Errorf("failed to look up last activity: %w", err)
	}
	if stored == nil || stored.IsZero() {
		return newSnapshot(userID, t.now(), time.Time{}), nil
	}

	s.mu.Lock()
	if prev, ok := s.seen[userID]; !ok || stored.After(prev) {
		s.seen[userID] = *stored
	}
	ts, _ = s.lastSeenLocked(userID)
	s.mu.Unlock()
	return newSnapshot(userID, t.now(), ts), nil
}

// GetBulkStatus returns a snapshot for every requested user, unknown users
// included as offline. With no users it lists everyone online or away.
func (t *Tracker) GetBulkStatus(userIDs []string) map[string]Snapshot {
	now := t.now()

	if len(userIDs) == 0 {
		result := make(map[string]Snapshot)
		for _, s := range t.shards {
			s.mu.RLock()
			for userID := range s.seen {
				ts, _ := s.lastSeenLocked(userID)
				if snap := newSnapshot(userID, now, ts); snap.IsVisible() {
					result[userID] = snap
				}
			}
			s.mu.RUnlock()
		}
		return result
	}

	result := make(map[string]Snapshot, len(userIDs))
	for _, userID := range userIDs {
		s := t.shardFor(userID)
		s.mu.RLock()
		ts, _ := s.lastSeenLocked(userID)
		s.mu.RUnlock()
		result[userID] = newSnapshot(userID, now, ts)
	}
	return result
}

// OnlineSnapshot lists every online or away user with per-status counts
func (t *Tracker) OnlineSnapshot() OnlineSummary {
	users := t.GetBulkStatus(nil)
	summary := OnlineSummary{Users: users}
	for _, snap := range users {
		if snap.Status == StatusOnline {
			summary.Online++
		} else {
			summary.Away++
		}
	}
	return summary
}

// PendingCount returns the number of users waiting for a durable flush
func (t *Tracker) PendingCount() int {
	t.pendingMu.Lock()
	defer t.pendingMu.Unlock()
	return len(t.pending)
}

func (t *Tracker) drainPending() []string {
	t.pendingMu.Lock()
	defer t.pendingMu.Unlock()

	if len(t.pending) == 0 {
		return nil
	}
	drained := make([]string, 0, len(t.pending))
	for userID := range t.pending {
		drained = append(drained, userID)
	}
	t.pending = make(map[string]struct{})
	return drained
}

func (t *Tracker) requeue(userIDs []string) {
	t.pendingMu.Lock()
	for _, userID := range userIDs {
		t.pending[userID] = struct{}{}
	}
	t.pendingMu.Unlock()
}

// collect resolves the timestamps to persist for userIDs.
func (t *Tracker) collect(userIDs []string) map[string]time.Time {
	entries := make(map[string]time.Time, len(userIDs))
	for _, userID := range userIDs {
		s := t.shardFor(userID)
		s.mu.RLock()
		ts, ok := s.lastSeenLocked(userID)
		s.mu.RUnlock()
		if ok && !ts.IsZero() {
			entries[userID] = ts
		}
	}
	return entries
}

// FlushPending drains the pending set and writes every drained user's last
// activity to w. On failure all drained users are queued again.
func (t *Tracker) FlushPending(ctx context.Context, w repository.ActivityWriter) error {
	if w == nil {
		return ErrNoStore
	}

	userIDs := t.drainPending()
	if len(userIDs) == 0 {
		t.metrics.SetPending(t.PendingCount())
		return nil
	}
	return t.write(ctx, w, userIDs)
}

// FlushUser writes a single user's last activity to w immediately
func (t *Tracker) FlushUser(ctx context.Context, w repository.ActivityWriter, userID string) error {
	if w == nil {
		return ErrNoStore
	}

	t.pendingMu.Lock()
	delete(t.pending, userID)
	t.pendingMu.Unlock()

	return t.write(ctx, w, []string{userID})
}

func (t *Tracker) write(ctx context.Context, w repository.ActivityWriter, userIDs []string) error {
	entries := t.collect(userIDs)
	if len(entries) == 0 {
		return nil
	}

	start := time.Now()
	err := w.SaveLastActive(ctx, entries)
	t.metrics.FlushCompleted(len(entries), time.Since(start).Seconds(), err)
	if err != nil {
		t.requeue(userIDs)
		t.metrics.SetPending(t.PendingCount())
		t.logger.Warn("activity flush failed, users requeued",
			zap.Int("users", len(userIDs)),
			zap.Error(err),
		)
		return fmt.Errorf("failed to flush activity: %w", err)
	}

	t.metrics.SetPending(t.PendingCount())
	t.logger.Debug("activity flushed", zap.Int("users", len(entries)))
	return nil
}

// LoadRecentActivity seeds the last-seen cache with users active within
// window. Live activity records are never created from stored values.
func (t *Tracker) LoadRecentActivity(ctx context.Context, r repository.ActivityReader, window time.Duration) (int, error) {
	if r == nil {
		return 0, ErrNoStore
	}

	entries, err := r.ListActiveSince(ctx, t.now().Add(-window))
	if err != nil {
		return 0, fmt.Errorf("failed to load recent activity: %w", err)
	}

	for userID, ts := range entries {
		s := t.shardFor(userID)
		s.mu.Lock()
		if prev, ok := s.seen[userID]; !ok || ts.After(prev) {
			s.seen[userID] = ts
		}
		s.mu.Unlock()
	}
	return len(entries), nil
}

// Start seeds the cache from the store and begins periodic flushing.
// Seeding failures are logged; the tracker still starts.
func (t *Tracker) Start(ctx context.Context) {
	t.lifeMu.Lock()
	if t.cancel != nil {
		t.lifeMu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})
	t.lifeMu.Unlock()

	if t.store != nil && t.cfg.SeedWindow > 0 {
		n, err := t.LoadRecentActivity(loopCtx, t.store, t.cfg.SeedWindow)
		if err != nil {
			t.logger.Warn("failed to seed presence cache", zap.Error(err))
		} else {
			t.logger.Info("presence cache seeded",
				zap.Int("users", n),
				zap.Duration("window", t.cfg.SeedWindow),
			)
		}
	}

	go t.run(loopCtx)
}

func (t *Tracker) run(ctx context.Context) {
	defer close(t.done)

	ticker := time.NewTicker(t.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.finalFlush()
			return
		case <-ticker.C:
			if t.store == nil {
				continue
			}
			if err := t.FlushPending(ctx, t.store); err != nil && !errors.Is(err, context.Canceled) {
				t.logger.Warn("periodic flush failed", zap.Error(err))
			}
		}
	}
}

func (t *Tracker) finalFlush() {
	if t.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), t.cfg.FlushTimeout)
	defer cancel()

	if err := t.FlushPending(ctx, t.store); err != nil {
		t.logger.Error("final flush failed", zap.Int("pending", t.PendingCount()), zap.Error(err))
	}
}

// Stop ends periodic flushing and performs a final flush. It blocks until
// the flush loop exits and is safe to call more than once.
func (t *Tracker) Stop() {
	t.lifeMu.Lock()
	cancel, done := t.cancel, t.done
	t.lifeMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
