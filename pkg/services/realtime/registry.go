package realtime

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/jgirmay/presencehub/internal/shard"
	"github.com/jgirmay/presencehub/pkg/logging"
	"github.com/jgirmay/presencehub/pkg/metrics"
)

type registryShard struct {
	mu    sync.RWMutex
	users map[string]map[Channel]struct{}
}

// ConnectionRegistry maps users to their open channels. Users are spread
// over lock stripes so unrelated users never contend on one lock.
type ConnectionRegistry struct {
	shards []*registryShard

	total atomic.Int64
	users atomic.Int64

	onEmpty func(userID string)

	logger  *logging.Logger
	metrics *metrics.Metrics
}

// NewConnectionRegistry creates a registry with shardCount lock stripes
func NewConnectionRegistry(shardCount int, logger *logging.Logger, m *metrics.Metrics) *ConnectionRegistry {
	shardCount = shard.Normalize(shardCount)
	r := &ConnectionRegistry{
		shards:  make([]*registryShard, shardCount),
		logger:  logging.OrNop(logger).Named("registry"),
		metrics: m,
	}
	for i := range r.shards {
		r.shards[i] = &registryShard{users: make(map[string]map[Channel]struct{})}
	}
	return r
}

// OnEmpty sets a hook fired, outside any lock, after a user's last channel
// is removed. Call it before the registry is shared.
func (r *ConnectionRegistry) OnEmpty(fn func(userID string)) {
	r.onEmpty = fn
}

func (r *ConnectionRegistry) shardFor(userID string) *registryShard {
	return r.shards[shard.Index(userID, len(r.shards))]
}

// Connect registers ch under userID
func (r *ConnectionRegistry) Connect(userID string, ch Channel) {
	s := r.shardFor(userID)
	s.mu.Lock()
	set, ok := s.users[userID]
	if !ok {
		set = make(map[Channel]struct{})
		s.users[userID] = set
		r.metrics.SetConnectedUsers(int(r.users.Add(1)))
	}
	_, existed := set[ch]
	set[ch] = struct{}{}
	s.mu.Unlock()

	if !existed {
		r.total.Add(1)
		r.metrics.ChannelOpened()
	}
	r.logger.Debug("channel connected",
		zap.String("user_id", userID),
		zap.String("channel_id", ch.ID()),
	)
}

// remove deletes ch and reports whether it was registered and whether the
// user is left with no channels.
func (r *ConnectionRegistry) remove(userID string, ch Channel) (removed, empty bool) {
	s := r.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.users[userID]
	if !ok {
		return false, false
	}
	if _, ok := set[ch]; !ok {
		return false, false
	}
	delete(set, ch)
	r.total.Add(-1)
	r.metrics.ChannelClosed()

	if len(set) == 0 {
		delete(s.users, userID)
		r.metrics.SetConnectedUsers(int(r.users.Add(-1)))
		return true, true
	}
	return true, false
}

// Disconnect removes ch from userID. Removing an unknown channel is a no-op.
func (r *ConnectionRegistry) Disconnect(userID string, ch Channel) {
	removed, empty := r.remove(userID, ch)
	if !removed {
		return
	}
	r.logger.Debug("channel disconnected",
		zap.String("user_id", userID),
		zap.String("channel_id", ch.ID()),
		zap.Bool("last_channel", empty),
	)
	if empty && r.onEmpty != nil {
		r.onEmpty(userID)
	}
}

func (r *ConnectionRegistry) channels(userID string) []Channel {
	s := r.shardFor(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()

	set := s.users[userID]
	if len(set) == 0 {
		return nil
	}
	out := make([]Channel, 0, len(set))
	for ch := range set {
		out = append(out, ch)
	}
	return out
}

// SendTo delivers msg to every channel of userID. A channel that fails is
// pruned and closed; delivery continues to the rest.
func (r *ConnectionRegistry) SendTo(userID string, msg []byte) {
	for _, ch := range r.channels(userID) {
		if err := ch.Send(msg); err != nil {
			r.prune(userID, ch, err)
			continue
		}
		r.metrics.MessageSent()
	}
}

func (r *ConnectionRegistry) prune(userID string, ch Channel, cause error) {
	r.metrics.ChannelPruned()
	r.logger.Info("pruning dead channel",
		zap.String("user_id", userID),
		zap.String("channel_id", ch.ID()),
		zap.Error(cause),
	)
	r.Disconnect(userID, ch)
	_ = ch.Close()
}

// BroadcastTo calls SendTo once per distinct user
func (r *ConnectionRegistry) BroadcastTo(userIDs []string, msg []byte) {
	seen := make(map[string]struct{}, len(userIDs))
	for _, userID := range userIDs {
		if _, dup := seen[userID]; dup {
			continue
		}
		seen[userID] = struct{}{}
		r.SendTo(userID, msg)
	}
}

// ConnectionCount returns the number of channels open for userID
func (r *ConnectionRegistry) ConnectionCount(userID string) int {
	s := r.shardFor(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users[userID])
}

// IsConnected reports whether userID has at least one channel
func (r *ConnectionRegistry) IsConnected(userID string) bool {
	return r.ConnectionCount(userID) > 0
}

// TotalConnections returns the number of channels across all users
func (r *ConnectionRegistry) TotalConnections() int {
	return int(r.total.Load())
}

// UserCount returns the number of users with at least one channel
func (r *ConnectionRegistry) UserCount() int {
	return int(r.users.Load())
}

// CloseAll closes and removes every channel
func (r *ConnectionRegistry) CloseAll() {
	var all []Channel
	for _, s := range r.shards {
		s.mu.Lock()
		for userID, set := range s.users {
			for ch := range set {
				all = append(all, ch)
				r.total.Add(-1)
				r.metrics.ChannelClosed()
			}
			delete(s.users, userID)
			r.users.Add(-1)
		}
		s.mu.Unlock()
	}
	r.metrics.SetConnectedUsers(int(r.users.Load()))

	for _, ch := range all {
		_ = ch.Close()
	}
	if len(all) > 0 {
		r.logger.Info("closed all channels", zap.Int("channels", len(all)))
	}
}
