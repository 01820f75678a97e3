// Package traffic keeps the most recent accepted state of every aircraft heard
// by the station.
package traffic

import (
	"sort"
	"sync"
	"time"

	"ognbase/internal/protocol"
)

type StoreConfig struct {
	// MaxTargets limits memory use. When exceeded, oldest targets are evicted.
	MaxTargets int
	// TTL is the expiration window: how long a target is kept without updates.
	TTL time.Duration
}

// Store is written by the radio loop and read by exporters.
type Store struct {
	mu sync.RWMutex

	cfg StoreConfig

	targets map[uint32]target
}

type target struct {
	state  protocol.AircraftState
	seenAt time.Time
	hits   uint32
}

// Target is a tracked aircraft as reported to exporters.
type Target struct {
	protocol.AircraftState
	SeenAt time.Time `json:"seen_at"`
	Hits   uint32    `json:"hits"`
}

func NewStore(cfg StoreConfig) *Store {
	if cfg.MaxTargets <= 0 {
		cfg.MaxTargets = 50
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	return &Store{
		cfg:     cfg,
		targets: make(map[uint32]target),
	}
}

func (s *Store) Config() StoreConfig {
	if s == nil {
		return StoreConfig{}
	}
	return s.cfg
}

// Upsert records an accepted state. The raw payload is not retained.
func (s *Store) Upsert(nowUTC time.Time, st protocol.AircraftState) {
	if s == nil {
		return
	}
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	st.Raw = nil

	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.targets[st.Addr]
	s.targets[st.Addr] = target{state: st, seenAt: nowUTC.UTC(), hits: prev.hits + 1}
	if len(s.targets) <= s.cfg.MaxTargets {
		return
	}

	// Evict oldest until within limit.
	for len(s.targets) > s.cfg.MaxTargets {
		var oldestAddr uint32
		var oldestAt time.Time
		first := true
		for k, v := range s.targets {
			if first || v.seenAt.Before(oldestAt) {
				oldestAddr = k
				oldestAt = v.seenAt
				first = false
			}
		}
		delete(s.targets, oldestAddr)
	}
}

// Get returns the tracked state for addr.
func (s *Store) Get(addr uint32) (Target, bool) {
	if s == nil {
		return Target{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.targets[addr]
	if !ok {
		return Target{}, false
	}
	return Target{AircraftState: v.state, SeenAt: v.seenAt, Hits: v.hits}, true
}

func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.targets)
}

// Expire drops targets not updated within the TTL and reports how many went.
func (s *Store) Expire(nowUTC time.Time) int {
	if s == nil {
		return 0
	}
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	cutoff := nowUTC.UTC().Add(-s.cfg.TTL)

	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, v := range s.targets {
		if v.seenAt.Before(cutoff) {
			delete(s.targets, k)
			n++
		}
	}
	return n
}

// Snapshot purges stale targets and returns the rest ordered by address.
func (s *Store) Snapshot(nowUTC time.Time) []Target {
	if s == nil {
		return nil
	}
	s.Expire(nowUTC)

	s.mu.RLock()
	out := make([]Target, 0, len(s.targets))
	for _, v := range s.targets {
		out = append(out, Target{AircraftState: v.state, SeenAt: v.seenAt, Hits: v.hits})
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Addr < out[j].Addr })
	return out
}
