package alarm

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"

	"github.com/StefanRaatz/db-pendler-wecker/pkg/clock"
	"github.com/StefanRaatz/db-pendler-wecker/pkg/ctdf"
	"github.com/StefanRaatz/db-pendler-wecker/pkg/database"
	pkgerrors "github.com/StefanRaatz/db-pendler-wecker/pkg/errors"
	"github.com/StefanRaatz/db-pendler-wecker/pkg/metrics"
	"github.com/StefanRaatz/db-pendler-wecker/pkg/timer"
)

const DefaultSoundRef = "default"

// ResultsLookup resolves an alarm request by its position in the last shown connection list
type ResultsLookup interface {
	ConnectionAt(index int) (*ctdf.Connection, error)
}

type Request struct {
	Connection  *ctdf.Connection
	LeadMinutes int
	Volume      float64
	SoundRef    string
}

// Changes lists the editable fields of a scheduled alarm, nil means unchanged
type Changes struct {
	LeadMinutes *int
	Volume      *float64
	SoundRef    *string
}

type Scheduler struct {
	Store   database.Store
	Timer   timer.ExactTimer
	Clock   clock.Clock
	Metrics *metrics.Metrics
	Results ResultsLookup

	// SweepGrace keeps just fired records around long enough for delivery to read them
	SweepGrace time.Duration

	// mu is held across a record change and the matching timer change
	mu sync.Mutex
}

func clampVolume(volume float64) float64 {
	if volume < 0 {
		return 0
	}
	if volume > 1 {
		return 1
	}

	return volume
}

func (s *Scheduler) now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}

	return s.Clock.Now()
}

func (s *Scheduler) reject(err error) error {
	s.Metrics.AlarmRejected(string(pkgerrors.KindOf(err)))
	return err
}

func (s *Scheduler) permissionDenied(op string) error {
	return &pkgerrors.Error{
		Kind:        pkgerrors.KindPermissionDenied,
		Op:          op,
		Message:     "exact alarms are not permitted",
		Remediation: s.Timer.PermissionRemediation(),
	}
}

// Schedule persists a new alarm for the connection and registers its exact timer.
// Nothing is stored when the fire time has already passed or exact alarms are not permitted.
func (s *Scheduler) Schedule(ctx context.Context, req Request) (*ctdf.Alarm, error) {
	const op = "alarm.schedule"

	if req.Connection == nil {
		return nil, s.reject(pkgerrors.New(pkgerrors.KindInvalidRequest, op, "no connection selected"))
	}
	if req.LeadMinutes < 0 {
		return nil, s.reject(pkgerrors.New(pkgerrors.KindInvalidRequest, op, "lead time cannot be negative"))
	}

	now := s.now()
	fireAt := req.Connection.DepartureAt.Add(-time.Duration(req.LeadMinutes) * time.Minute)
	if !fireAt.After(now) {
		return nil, s.reject(pkgerrors.Newf(pkgerrors.KindPastDeparture, op, "alarm time %s has already passed", ctdf.FormatShortTime(fireAt)))
	}

	if !s.Timer.CanScheduleExact(ctx) {
		return nil, s.reject(s.permissionDenied(op))
	}

	alarm := &ctdf.Alarm{}
	if err := copier.Copy(alarm, req.Connection); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.KindUnknown, op, err)
	}
	alarm.ID = uuid.NewString()
	alarm.SetTiming(req.Connection.DepartureAt, req.LeadMinutes)
	alarm.Volume = clampVolume(req.Volume)
	alarm.SoundRef = req.SoundRef
	if alarm.SoundRef == "" {
		alarm.SoundRef = DefaultSoundRef
	}
	alarm.CreatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.Store.UpdateAlarms(ctx, func(alarms []*ctdf.Alarm) ([]*ctdf.Alarm, error) {
		return append(alarms, alarm), nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.Timer.Register(ctx, alarm.FireTime(), alarm.DispatchKey()); err != nil {
		s.removeRecord(context.WithoutCancel(ctx), alarm.ID)
		return nil, s.reject(registrationError(op, err))
	}

	s.Metrics.AlarmScheduled()
	log.Info().
		Str("id", alarm.ID).
		Str("train", alarm.TrainLabel).
		Str("fireAt", alarm.FireAtDisplay).
		Int("lead", alarm.LeadMinutes).
		Msg("Scheduled alarm")

	return alarm.Copy(), nil
}

// ScheduleFromResults schedules against the connection at index in the last resolved list
func (s *Scheduler) ScheduleFromResults(ctx context.Context, index int, leadMinutes int, volume float64, soundRef string) (*ctdf.Alarm, error) {
	if s.Results == nil {
		return nil, pkgerrors.New(pkgerrors.KindNotFound, "alarm.schedule", "no connection results available")
	}

	connection, err := s.Results.ConnectionAt(index)
	if err != nil {
		return nil, err
	}

	return s.Schedule(ctx, Request{
		Connection:  connection,
		LeadMinutes: leadMinutes,
		Volume:      volume,
		SoundRef:    soundRef,
	})
}

func registrationError(op string, err error) error {
	if pkgerrors.KindOf(err) == pkgerrors.KindPermissionDenied {
		return err
	}

	return pkgerrors.Wrap(pkgerrors.KindTimer, op, err)
}

func (s *Scheduler) removeRecord(ctx context.Context, id string) {
	err := s.Store.UpdateAlarms(ctx, func(alarms []*ctdf.Alarm) ([]*ctdf.Alarm, error) {
		return withoutAlarm(alarms, id), nil
	})
	if err != nil {
		log.Error().Err(err).Str("id", id).Msg("Failed to roll back alarm record")
	}
}

func withoutAlarm(alarms []*ctdf.Alarm, id string) []*ctdf.Alarm {
	kept := make([]*ctdf.Alarm, 0, len(alarms))
	for _, alarm := range alarms {
		if alarm.ID != id {
			kept = append(kept, alarm)
		}
	}

	return kept
}

func findAlarm(alarms []*ctdf.Alarm, id string) int {
	for i, alarm := range alarms {
		if alarm.ID == id {
			return i
		}
	}

	return -1
}

func notFound(op string, id string) error {
	return pkgerrors.Newf(pkgerrors.KindNotFound, op, "no alarm with id %s", id)
}

// Update edits an alarm in place. The id and dispatch key stay the same; on any failure the
// previous record and timer are put back.
func (s *Scheduler) Update(ctx context.Context, id string, changes Changes) (*ctdf.Alarm, error) {
	const op = "alarm.update"

	if changes.LeadMinutes != nil && *changes.LeadMinutes < 0 {
		return nil, s.reject(pkgerrors.New(pkgerrors.KindInvalidRequest, op, "lead time cannot be negative"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var previous, updated *ctdf.Alarm
	err := s.Store.UpdateAlarms(ctx, func(alarms []*ctdf.Alarm) ([]*ctdf.Alarm, error) {
		index := findAlarm(alarms, id)
		if index < 0 {
			return nil, notFound(op, id)
		}

		previous = alarms[index]
		updated = applyChanges(previous, changes)

		if !updated.FireTime().After(now) {
			return nil, pkgerrors.Newf(pkgerrors.KindPastDeparture, op, "alarm time %s has already passed", updated.FireAtDisplay)
		}
		if !s.Timer.CanScheduleExact(ctx) {
			return nil, s.permissionDenied(op)
		}

		alarms[index] = updated
		return alarms, nil
	})
	if err != nil {
		switch pkgerrors.KindOf(err) {
		case pkgerrors.KindPastDeparture, pkgerrors.KindPermissionDenied:
			return nil, s.reject(err)
		}
		return nil, err
	}

	if err := s.Timer.Cancel(ctx, updated.DispatchKey()); err != nil {
		log.Warn().Err(err).Str("id", id).Msg("Failed to cancel superseded timer")
	}

	if err := s.Timer.Register(ctx, updated.FireTime(), updated.DispatchKey()); err != nil {
		restoreCtx := context.WithoutCancel(ctx)
		if restoreErr := s.replaceRecord(restoreCtx, op, previous); restoreErr != nil {
			log.Error().Err(restoreErr).Str("id", id).Msg("Failed to restore alarm record")
		}
		if restoreErr := s.Timer.Register(restoreCtx, previous.FireTime(), previous.DispatchKey()); restoreErr != nil {
			log.Error().Err(restoreErr).Str("id", id).Msg("Failed to restore alarm timer")
		}

		return nil, s.reject(registrationError(op, err))
	}

	s.Metrics.AlarmUpdated()
	log.Info().Str("id", id).Str("fireAt", updated.FireAtDisplay).Msg("Updated alarm")

	return updated.Copy(), nil
}

// applyChanges returns a copy of alarm with changes applied. An empty sound goes back to the default.
func applyChanges(alarm *ctdf.Alarm, changes Changes) *ctdf.Alarm {
	updated := alarm.Copy()

	leadMinutes := alarm.LeadMinutes
	if changes.LeadMinutes != nil {
		leadMinutes = *changes.LeadMinutes
	}
	if changes.Volume != nil {
		updated.Volume = clampVolume(*changes.Volume)
	}
	if changes.SoundRef != nil {
		updated.SoundRef = *changes.SoundRef
		if updated.SoundRef == "" {
			updated.SoundRef = DefaultSoundRef
		}
	}
	updated.SetTiming(alarm.DepartureTime(), leadMinutes)

	return updated
}

func (s *Scheduler) replaceRecord(ctx context.Context, op string, replacement *ctdf.Alarm) error {
	return s.Store.UpdateAlarms(ctx, func(alarms []*ctdf.Alarm) ([]*ctdf.Alarm, error) {
		index := findAlarm(alarms, replacement.ID)
		if index < 0 {
			return nil, notFound(op, replacement.ID)
		}

		alarms[index] = replacement
		return alarms, nil
	})
}

// Cancel deregisters the timer and removes the record. The timer is cancelled even when
// no record exists.
func (s *Scheduler) Cancel(ctx context.Context, id string) error {
	const op = "alarm.cancel"

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.Timer.Cancel(ctx, ctdf.AlarmDispatchKey(id)); err != nil {
		log.Warn().Err(err).Str("id", id).Msg("Failed to cancel alarm timer")
	}

	err := s.Store.UpdateAlarms(ctx, func(alarms []*ctdf.Alarm) ([]*ctdf.Alarm, error) {
		if findAlarm(alarms, id) < 0 {
			return nil, notFound(op, id)
		}

		return withoutAlarm(alarms, id), nil
	})
	if err != nil {
		return err
	}

	s.Metrics.AlarmCancelled()
	log.Info().Str("id", id).Msg("Cancelled alarm")

	return nil
}

// Sweep removes every record whose fire time is at or before now minus SweepGrace
func (s *Scheduler) Sweep(ctx context.Context) (int, error) {
	return s.sweep(ctx, s.now().Add(-s.SweepGrace))
}

func (s *Scheduler) sweep(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var swept []*ctdf.Alarm

	err := s.Store.UpdateAlarms(ctx, func(alarms []*ctdf.Alarm) ([]*ctdf.Alarm, error) {
		swept = nil
		kept := make([]*ctdf.Alarm, 0, len(alarms))

		for _, alarm := range alarms {
			if alarm.Elapsed(now) {
				swept = append(swept, alarm)
			} else {
				kept = append(kept, alarm)
			}
		}

		return kept, nil
	})
	if err != nil {
		return 0, err
	}

	for _, alarm := range swept {
		if err := s.Timer.Cancel(ctx, alarm.DispatchKey()); err != nil {
			log.Warn().Err(err).Str("id", alarm.ID).Msg("Failed to cancel lingering timer")
		}
	}

	s.Metrics.AlarmsSwept(len(swept))
	if len(swept) > 0 {
		log.Info().Int("count", len(swept)).Msg("Swept elapsed alarms")
	}

	return len(swept), nil
}

// SweepAsync runs Sweep in the background. Failures are only logged. The returned channel
// is closed when the sweep has finished.
func (s *Scheduler) SweepAsync(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})

	go func() {
		defer close(done)

		if _, err := s.Sweep(context.WithoutCancel(ctx)); err != nil {
			log.Error().Err(err).Msg("Background alarm sweep failed")
		}
	}()

	return done
}

// Restore is run at boot. Elapsed records are swept and timers are registered again for the rest.
// Nothing is ringing yet, so no grace applies.
func (s *Scheduler) Restore(ctx context.Context) (int, error) {
	if _, err := s.sweep(ctx, s.now()); err != nil {
		return 0, err
	}

	alarms, err := s.Store.LoadAlarms(ctx)
	if err != nil {
		return 0, err
	}

	p := pool.New().WithErrors().WithMaxGoroutines(8)
	for _, alarm := range alarms {
		p.Go(func() error {
			if err := s.Timer.Register(ctx, alarm.FireTime(), alarm.DispatchKey()); err != nil {
				return fmt.Errorf("restore %s: %w", alarm.ID, err)
			}
			return nil
		})
	}

	if err := p.Wait(); err != nil {
		return 0, err
	}

	log.Info().Int("count", len(alarms)).Msg("Restored alarm timers")

	return len(alarms), nil
}

// List returns the stored alarms ordered by fire time
func (s *Scheduler) List(ctx context.Context) ([]*ctdf.Alarm, error) {
	alarms, err := s.Store.LoadAlarms(ctx)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(alarms, func(i, j int) bool {
		return alarms[i].AlarmFireAt < alarms[j].AlarmFireAt
	})

	return alarms, nil
}

func (s *Scheduler) Get(ctx context.Context, id string) (*ctdf.Alarm, error) {
	alarms, err := s.Store.LoadAlarms(ctx)
	if err != nil {
		return nil, err
	}

	index := findAlarm(alarms, id)
	if index < 0 {
		return nil, notFound("alarm.get", id)
	}

	return alarms[index], nil
}
