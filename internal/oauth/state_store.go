package oauth

import (
	"log/slog"
	"sync"
	"time"

	"github.com/teemow/authflow/internal/logging"
)

// StateStore keeps pending authorization-code flows keyed by state token.
// Entries expire after their TTL; expiry is checked on every read and a
// background sweep purges what nobody reads. All reads return copies.
type StateStore struct {
	mu      sync.Mutex
	entries map[string]PendingFlow
	closed  bool

	logger        *slog.Logger
	now           func() time.Time
	sweepInterval time.Duration
	observer      func(pending int)

	stop         chan struct{}
	done         chan struct{}
	shutdownOnce sync.Once
}

// StateStoreOption configures a StateStore.
type StateStoreOption func(*StateStore)

// WithStoreLogger sets the logger used by the sweeper.
func WithStoreLogger(logger *slog.Logger) StateStoreOption {
	return func(s *StateStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithStoreClock replaces time.Now.
func WithStoreClock(now func() time.Time) StateStoreOption {
	return func(s *StateStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSweepInterval changes how often the sweeper runs. Zero or negative
// disables the background sweeper; Sweep can still be called directly.
func WithSweepInterval(d time.Duration) StateStoreOption {
	return func(s *StateStore) {
		s.sweepInterval = d
	}
}

// WithPendingObserver is called with the entry count after every change.
func WithPendingObserver(fn func(pending int)) StateStoreOption {
	return func(s *StateStore) {
		s.observer = fn
	}
}

// NewStateStore creates a store and starts its sweeper.
func NewStateStore(opts ...StateStoreOption) *StateStore {
	s := &StateStore{
		entries:       make(map[string]PendingFlow),
		logger:        slog.Default(),
		now:           time.Now,
		sweepInterval: DefaultSweepInterval,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.sweepInterval > 0 {
		go s.sweepLoop()
	} else {
		close(s.done)
	}
	return s
}

// ClampTTL maps a requested lifetime onto [MinStateTTL, MaxStateTTL].
// Zero or negative means DefaultStateTTL.
func ClampTTL(ttl time.Duration) time.Duration {
	switch {
	case ttl <= 0:
		return DefaultStateTTL
	case ttl < MinStateTTL:
		return MinStateTTL
	case ttl > MaxStateTTL:
		return MaxStateTTL
	default:
		return ttl
	}
}

// Put stores flow under state. CreatedAt and ExpiresAt are set by the store
// and the TTL is clamped.
func (s *StateStore) Put(state string, flow PendingFlow, ttl time.Duration) error {
	if state == "" {
		return validationError("store_state", "state must not be empty")
	}

	now := s.now()
	flow = flow.clone()
	flow.State = state
	flow.CreatedAt = now
	flow.ExpiresAt = now.Add(ClampTTL(ttl))

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return configError("store_state", "state store is shut down")
	}
	s.entries[state] = flow
	n := len(s.entries)
	s.mu.Unlock()

	s.notify(n)
	return nil
}

// Get returns a copy of the flow for state. Expired entries are removed and
// reported as absent.
func (s *StateStore) Get(state string) (PendingFlow, bool) {
	return s.lookup(state, false)
}

// Take is Get followed by Delete, atomically. A state can be taken once.
func (s *StateStore) Take(state string) (PendingFlow, bool) {
	return s.lookup(state, true)
}

func (s *StateStore) lookup(state string, consume bool) (PendingFlow, bool) {
	s.mu.Lock()
	flow, ok := s.entries[state]
	if !ok {
		s.mu.Unlock()
		return PendingFlow{}, false
	}
	expired := s.now().After(flow.ExpiresAt)
	if expired || consume {
		delete(s.entries, state)
	}
	n := len(s.entries)
	s.mu.Unlock()

	if expired || consume {
		s.notify(n)
	}
	if expired {
		return PendingFlow{}, false
	}
	return flow.clone(), true
}

// Delete removes state. Deleting an unknown state is a no-op.
func (s *StateStore) Delete(state string) {
	s.mu.Lock()
	_, ok := s.entries[state]
	delete(s.entries, state)
	n := len(s.entries)
	s.mu.Unlock()

	if ok {
		s.notify(n)
	}
}

// Len returns the number of stored entries, expired or not.
func (s *StateStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Stats summarizes the store without modifying it.
func (s *StateStore) Stats() StateStoreStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	stats := StateStoreStats{Total: len(s.entries)}
	for _, flow := range s.entries {
		if now.After(flow.ExpiresAt) {
			stats.Expired++
		} else {
			stats.Active++
		}
		if stats.Oldest.IsZero() || flow.CreatedAt.Before(stats.Oldest) {
			stats.Oldest = flow.CreatedAt
		}
		if flow.CreatedAt.After(stats.Newest) {
			stats.Newest = flow.CreatedAt
		}
	}
	return stats
}

// Sweep removes every expired entry and returns how many were removed.
func (s *StateStore) Sweep() int {
	now := s.now()

	s.mu.Lock()
	removed := 0
	for state, flow := range s.entries {
		if now.After(flow.ExpiresAt) {
			delete(s.entries, state)
			removed++
		}
	}
	n := len(s.entries)
	s.mu.Unlock()

	if removed > 0 {
		s.logger.Debug("Swept expired pending flows",
			slog.Int("removed", removed),
			slog.Int("remaining", n))
		s.notify(n)
	}
	return removed
}

// Shutdown stops the sweeper and discards all entries. Safe to call more
// than once.
func (s *StateStore) Shutdown() {
	s.shutdownOnce.Do(func() {
		close(s.stop)
		<-s.done

		s.mu.Lock()
		cleared := len(s.entries)
		s.entries = make(map[string]PendingFlow)
		s.closed = true
		s.mu.Unlock()

		if cleared > 0 {
			s.logger.Debug("State store shut down", slog.Int("cleared", cleared))
		}
		s.notify(0)
	})
}

func (s *StateStore) sweepLoop() {
	defer close(s.done)

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.safeSweep()
		}
	}
}

// safeSweep runs Sweep and logs instead of propagating a panic; the sweeper
// must outlive any single failure.
func (s *StateStore) safeSweep() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Pending flow sweep failed", slog.Any("panic", r))
		}
	}()
	s.Sweep()
}

func (s *StateStore) notify(pending int) {
	if s.observer == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("Pending flow observer panicked",
				slog.Any("panic", r),
				logging.Operation("state_store"))
		}
	}()
	s.observer(pending)
}
