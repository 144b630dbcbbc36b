package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"

	"github.com/StefanRaatz/db-pendler-wecker/pkg/ctdf"
	pkgerrors "github.com/StefanRaatz/db-pendler-wecker/pkg/errors"
	"github.com/StefanRaatz/db-pendler-wecker/pkg/metrics"
)

const (
	MaxWakeLockTimeout  = 60 * time.Second
	DefaultRingDuration = 60 * time.Second

	StopAction = "stop"
)

// AlarmLookup finds the persisted alarm a fired key refers to
type AlarmLookup interface {
	Get(ctx context.Context, id string) (*ctdf.Alarm, error)
}

type delivery struct {
	alarmID string
	once    sync.Once
	timer   *time.Timer
	done    chan struct{}

	// starting is set until every surface has started. A stop meanwhile only records
	// its reason and HandleFired releases afterwards.
	starting bool
	reason   string
}

// Pipeline turns a fired timer key into a ringing alarm. Delivery stops on Dismiss or after
// RingDuration, whichever is first, and every resource is released exactly once.
// The alarm record is left for the sweep.
type Pipeline struct {
	Alarms AlarmLookup

	WakeLock  WakeLock
	Presenter Presenter
	Sound     SoundPlayer
	Vibrator  Vibrator

	WakeLockTimeout time.Duration
	RingDuration    time.Duration

	Metrics *metrics.Metrics

	mu     sync.Mutex
	active map[string]*delivery
}

func NewLogPipeline(alarms AlarmLookup) *Pipeline {
	return &Pipeline{
		Alarms:    alarms,
		WakeLock:  LogWakeLock{},
		Presenter: LogPresenter{},
		Sound:     LogSoundPlayer{},
		Vibrator:  LogVibrator{},
	}
}

func (p *Pipeline) wakeLockTimeout() time.Duration {
	if p.WakeLockTimeout <= 0 || p.WakeLockTimeout > MaxWakeLockTimeout {
		return MaxWakeLockTimeout
	}

	return p.WakeLockTimeout
}

// ringDuration never outlasts the wake lock
func (p *Pipeline) ringDuration() time.Duration {
	ring := p.RingDuration
	if ring <= 0 {
		ring = DefaultRingDuration
	}
	if wake := p.wakeLockTimeout(); ring > wake {
		return wake
	}

	return ring
}

func wakeLockTag(alarmID string) string {
	return "pendler:alarm:" + alarmID
}

func buildAlert(alarm *ctdf.Alarm) Alert {
	return Alert{
		AlarmID: alarm.ID,
		Title:   fmt.Sprintf("%s departs at %s", alarm.TrainLabel, alarm.ScheduledDepartureDisplay),
		Body: fmt.Sprintf("%d min until departure · %s → %s",
			alarm.LeadMinutes, alarm.OriginStationName, alarm.DestinationStationName),
		StopAction: StopAction,
	}
}

// HandleFired delivers the alarm behind key. Unknown keys and alarms that no longer exist
// are logged and skipped.
func (p *Pipeline) HandleFired(ctx context.Context, key string) error {
	alarmID, ok := ctdf.AlarmIDFromDispatchKey(key)
	if !ok {
		log.Warn().Str("key", key).Msg("Ignoring fired timer with unknown key")
		return nil
	}

	alarm, err := p.Alarms.Get(ctx, alarmID)
	if pkgerrors.Is(err, pkgerrors.NotFound) {
		log.Warn().Str("alarm", alarmID).Msg("Fired alarm no longer exists, nothing to deliver")
		return nil
	}
	if err != nil {
		return err
	}

	d := &delivery{alarmID: alarmID, done: make(chan struct{}), starting: true}

	p.mu.Lock()
	if p.active == nil {
		p.active = map[string]*delivery{}
	}
	if _, ringing := p.active[alarmID]; ringing {
		p.mu.Unlock()
		log.Debug().Str("alarm", alarmID).Msg("Alarm already ringing")
		return nil
	}
	p.active[alarmID] = d
	d.timer = time.AfterFunc(p.ringDuration(), func() {
		p.stop(alarmID, "timeout")
	})
	p.mu.Unlock()

	p.Metrics.AlarmFired()

	if err := p.WakeLock.Acquire(ctx, wakeLockTag(alarmID), p.wakeLockTimeout()); err != nil {
		log.Error().Err(err).Str("alarm", alarmID).Msg("Failed to acquire wake lock")
	}

	if err := p.Presenter.Present(ctx, buildAlert(alarm)); err != nil {
		log.Error().Err(err).Str("alarm", alarmID).Msg("Failed to present alarm")
	}

	var wg conc.WaitGroup
	wg.Go(func() {
		if err := p.Sound.Start(ctx, alarmID, alarm.SoundRef, alarm.Volume); err != nil {
			log.Error().Err(err).Str("alarm", alarmID).Msg("Failed to start alarm sound")
		}
	})
	wg.Go(func() {
		if err := p.Vibrator.Start(ctx, alarmID, VibrationPattern); err != nil {
			log.Error().Err(err).Str("alarm", alarmID).Msg("Failed to start vibration")
		}
	})
	wg.Wait()

	p.mu.Lock()
	d.starting = false
	stopped := p.active[alarmID] != d
	p.mu.Unlock()

	if stopped {
		p.release(d)
		return nil
	}

	log.Info().Str("alarm", alarmID).Str("train", alarm.TrainLabel).Msg("Alarm ringing")

	return nil
}

// Dismiss is the user's stop action. Returns false if the alarm was not ringing.
func (p *Pipeline) Dismiss(alarmID string) bool {
	return p.stop(alarmID, "dismissed")
}

func (p *Pipeline) stop(alarmID string, reason string) bool {
	p.mu.Lock()
	d, ok := p.active[alarmID]
	if !ok {
		p.mu.Unlock()
		return false
	}
	delete(p.active, alarmID)
	d.timer.Stop()
	d.reason = reason
	starting := d.starting
	p.mu.Unlock()

	if !starting {
		p.release(d)
	}

	return true
}

func (p *Pipeline) release(d *delivery) {
	d.once.Do(func() {
		if err := p.Sound.Stop(d.alarmID); err != nil {
			log.Error().Err(err).Str("alarm", d.alarmID).Msg("Failed to stop alarm sound")
		}
		if err := p.Vibrator.Stop(d.alarmID); err != nil {
			log.Error().Err(err).Str("alarm", d.alarmID).Msg("Failed to stop vibration")
		}
		if err := p.Presenter.Withdraw(context.Background(), d.alarmID); err != nil {
			log.Error().Err(err).Str("alarm", d.alarmID).Msg("Failed to withdraw alarm")
		}
		if err := p.WakeLock.Release(wakeLockTag(d.alarmID)); err != nil {
			log.Error().Err(err).Str("alarm", d.alarmID).Msg("Failed to release wake lock")
		}

		close(d.done)
		log.Info().Str("alarm", d.alarmID).Str("reason", d.reason).Msg("Alarm stopped")
	})
}

// Ringing lists the alarms currently being delivered
func (p *Pipeline) Ringing() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	ids := make([]string, 0, len(p.active))
	for id := range p.active {
		ids = append(ids, id)
	}

	return ids
}

// Done returns a channel closed once the delivery of alarmID has stopped
func (p *Pipeline) Done(alarmID string) (<-chan struct{}, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	d, ok := p.active[alarmID]
	if !ok {
		return nil, false
	}

	return d.done, true
}

// Fire adapts the pipeline to a timer callback for in-process delivery
func (p *Pipeline) Fire(key string) {
	if err := p.HandleFired(context.Background(), key); err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to deliver alarm")
	}
}
