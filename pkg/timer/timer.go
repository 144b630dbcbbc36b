package timer

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/StefanRaatz/db-pendler-wecker/pkg/clock"
	pkgerrors "github.com/StefanRaatz/db-pendler-wecker/pkg/errors"
)

const remediation = "Allow exact alarms for the app (PENDLER_EXACT_ALARMS=true) and schedule the alarm again"

// ExactTimer wakes the process at an exact wall-clock time and hands back the key.
// Registering a key that is already registered replaces it.
type ExactTimer interface {
	Register(ctx context.Context, fireAt time.Time, key string) error
	Cancel(ctx context.Context, key string) error
	CanScheduleExact(ctx context.Context) bool
	PermissionRemediation() string
}

type FireFunc func(key string)

type entry struct {
	timer      *time.Timer
	fireAt     time.Time
	generation uint64
}

// Local runs one time.AfterFunc per key inside this process
type Local struct {
	Clock clock.Clock

	mu         sync.Mutex
	timers     map[string]*entry
	generation uint64
	fire       FireFunc

	exactPermitted atomic.Bool
}

func NewLocal(exactPermitted bool, fire FireFunc) *Local {
	l := &Local{
		Clock:  clock.Real{},
		timers: map[string]*entry{},
		fire:   fire,
	}
	l.exactPermitted.Store(exactPermitted)

	return l
}

// SetFireFunc replaces the callback, used when the receiver is built after the timer
func (l *Local) SetFireFunc(fire FireFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.fire = fire
}

func (l *Local) SetExactPermitted(permitted bool) {
	l.exactPermitted.Store(permitted)
}

func (l *Local) CanScheduleExact(ctx context.Context) bool {
	return l.exactPermitted.Load()
}

func (l *Local) PermissionRemediation() string {
	return remediation
}

func (l *Local) Register(ctx context.Context, fireAt time.Time, key string) error {
	if err := ctx.Err(); err != nil {
		return pkgerrors.Wrap(pkgerrors.KindTimer, "timer.register", err)
	}
	if key == "" {
		return pkgerrors.New(pkgerrors.KindTimer, "timer.register", "empty key")
	}
	if !l.exactPermitted.Load() {
		return &pkgerrors.Error{
			Kind:        pkgerrors.KindPermissionDenied,
			Op:          "timer.register",
			Message:     "exact alarms are not permitted",
			Remediation: remediation,
		}
	}

	delay := fireAt.Sub(l.Clock.Now())
	if delay < 0 {
		delay = 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.timers[key]; ok {
		existing.timer.Stop()
	}

	l.generation++
	generation := l.generation
	l.timers[key] = &entry{
		fireAt:     fireAt,
		generation: generation,
		timer: time.AfterFunc(delay, func() {
			l.expire(key, generation)
		}),
	}

	log.Debug().Str("key", key).Time("fireAt", fireAt).Dur("in", delay).Msg("Registered exact timer")

	return nil
}

func (l *Local) expire(key string, generation uint64) {
	l.mu.Lock()
	current, ok := l.timers[key]
	if !ok || current.generation != generation {
		l.mu.Unlock()
		return
	}
	delete(l.timers, key)
	fire := l.fire
	l.mu.Unlock()

	log.Info().Str("key", key).Msg("Exact timer fired")

	if fire != nil {
		fire(key)
	}
}

// Cancel is a no-op for unknown keys
func (l *Local) Cancel(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.timers[key]; ok {
		existing.timer.Stop()
		delete(l.timers, key)

		log.Debug().Str("key", key).Msg("Cancelled exact timer")
	}

	return nil
}

func (l *Local) Pending() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	keys := make([]string, 0, len(l.timers))
	for key := range l.timers {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	return keys
}

func (l *Local) FireAt(key string) (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	existing, ok := l.timers[key]
	if !ok {
		return time.Time{}, false
	}

	return existing.fireAt, true
}

func (l *Local) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, existing := range l.timers {
		existing.timer.Stop()
		delete(l.timers, key)
	}
}
