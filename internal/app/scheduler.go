package app

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/textworld/internal/domain"
)

// TimerKey addresses one cancellable timer. Each room can carry two
// independent timers: the round timer and the character-creation timer.
type TimerKey string

func RoundTimerKey(id domain.RoomID) TimerKey { return TimerKey(id) }
func CharTimerKey(id domain.RoomID) TimerKey  { return TimerKey("char_" + id) }

type timerEntry struct {
	timer *time.Timer
	gen   uint64
}

// Scheduler runs at most one delayed action per key. Start replaces any
// existing timer under the same key; Cancel guarantees the action body will
// not begin after Cancel returns. An action that already began before the
// cancel must tolerate stale state, which callers handle by re-checking room
// existence and phase at fire time.
type Scheduler struct {
	mu      sync.Mutex
	entries map[TimerKey]*timerEntry
	nextGen uint64
}

func NewScheduler() *Scheduler {
	return &Scheduler{entries: make(map[TimerKey]*timerEntry)}
}

// Start schedules onFire to run after d, replacing any timer already keyed
// the same. onFire runs on a timer goroutine; panics are caught and logged
// so a failed callback never poisons the key.
func (s *Scheduler) Start(key TimerKey, d time.Duration, onFire func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.entries[key]; ok {
		old.timer.Stop()
		delete(s.entries, key)
	}

	s.nextGen++
	gen := s.nextGen
	entry := &timerEntry{gen: gen}
	entry.timer = time.AfterFunc(d, func() {
		s.mu.Lock()
		cur, ok := s.entries[key]
		if !ok || cur.gen != gen {
			// Cancelled or replaced after the timer goroutine woke up.
			s.mu.Unlock()
			return
		}
		delete(s.entries, key)
		s.mu.Unlock()

		defer func() {
			if r := recover(); r != nil {
				log.Error().Str("module", "app.scheduler").Str("key", string(key)).Any("panic", r).Msg("timer callback panicked")
			}
		}()
		onFire()
	})
	s.entries[key] = entry
}

// Cancel stops the timer under key if present. Idempotent; safe to call for
// fired or never-started keys.
func (s *Scheduler) Cancel(key TimerKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.entries[key]; ok {
		entry.timer.Stop()
		delete(s.entries, key)
	}
}

// Active reports whether a timer is outstanding under key.
func (s *Scheduler) Active(key TimerKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[key]
	return ok
}

// CancelAll stops every outstanding timer. Used at shutdown; in-flight
// rounds are abandoned, not persisted.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, entry := range s.entries {
		entry.timer.Stop()
		delete(s.entries, key)
	}
}
