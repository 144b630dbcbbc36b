package alarm

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StefanRaatz/db-pendler-wecker/pkg/clock"
	"github.com/StefanRaatz/db-pendler-wecker/pkg/ctdf"
	"github.com/StefanRaatz/db-pendler-wecker/pkg/database"
	pkgerrors "github.com/StefanRaatz/db-pendler-wecker/pkg/errors"
	"github.com/StefanRaatz/db-pendler-wecker/pkg/metrics"
)

type fakeTimer struct {
	mu          sync.Mutex
	registered  map[string]time.Time
	cancelled   []string
	permitted   bool
	failOnCount int
	registers   int
}

func newFakeTimer() *fakeTimer {
	return &fakeTimer{registered: map[string]time.Time{}, permitted: true}
}

func (f *fakeTimer) Register(ctx context.Context, fireAt time.Time, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.registers++
	if f.failOnCount > 0 && f.registers == f.failOnCount {
		return errors.New("timer service unavailable")
	}

	f.registered[key] = fireAt
	return nil
}

func (f *fakeTimer) Cancel(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.registered, key)
	f.cancelled = append(f.cancelled, key)
	return nil
}

func (f *fakeTimer) CanScheduleExact(ctx context.Context) bool {
	return f.permitted
}

func (f *fakeTimer) PermissionRemediation() string {
	return "enable exact alarms"
}

func (f *fakeTimer) fireAt(key string) (time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	fireAt, ok := f.registered[key]
	return fireAt, ok
}

var now = time.Date(2024, 5, 6, 7, 0, 0, 0, ctdf.Timezone)

type fixture struct {
	scheduler *Scheduler
	store     *database.SQLiteStore
	timer     *fakeTimer
	clock     *clock.Mock
}

func newFixture(t *testing.T) *fixture {
	store, err := database.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "alarms.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	f := &fixture{
		store: store,
		timer: newFakeTimer(),
		clock: clock.NewMock(now),
	}
	f.scheduler = &Scheduler{
		Store:   store,
		Timer:   f.timer,
		Clock:   f.clock,
		Metrics: metrics.New(),
	}

	return f
}

func departingAt(hour int, minute int) *ctdf.Connection {
	departure := time.Date(2024, 5, 6, hour, minute, 0, 0, ctdf.Timezone)
	return &ctdf.Connection{
		ID:                     "trip-1",
		TrainLabel:             "RE 1",
		DepartureAt:            departure,
		ArrivalAt:              departure.Add(25 * time.Minute),
		OriginStationName:      "Düsseldorf Hbf",
		DestinationStationName: "Köln Hbf",
		Platform:               "15",
	}
}

func TestSchedule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alarm, err := f.scheduler.Schedule(ctx, Request{Connection: departingAt(8, 0), LeadMinutes: 10, Volume: 1.7})
	require.NoError(t, err)

	assert.NotEmpty(t, alarm.ID)
	assert.NotEqual(t, "trip-1", alarm.ID)
	assert.Equal(t, "RE 1", alarm.TrainLabel)
	assert.Equal(t, "08:00", alarm.ScheduledDepartureDisplay)
	assert.Equal(t, "07:50", alarm.FireAtDisplay)
	assert.Equal(t, "Düsseldorf Hbf", alarm.OriginStationName)
	assert.Equal(t, "Köln Hbf", alarm.DestinationStationName)
	assert.Equal(t, 1.0, alarm.Volume)
	assert.Equal(t, DefaultSoundRef, alarm.SoundRef)

	fireAt, ok := f.timer.fireAt(alarm.DispatchKey())
	assert.True(t, ok)
	assert.Equal(t, time.Date(2024, 5, 6, 7, 50, 0, 0, ctdf.Timezone).UnixMilli(), fireAt.UnixMilli())

	stored, err := f.scheduler.List(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, alarm.ID, stored[0].ID)
}

func TestScheduleRejections(t *testing.T) {
	tests := []struct {
		name      string
		request   Request
		permitted bool
		expected  error
	}{
		{
			name:      "past departure",
			request:   Request{Connection: departingAt(7, 5), LeadMinutes: 10},
			permitted: true,
			expected:  pkgerrors.PastDeparture,
		},
		{
			name:      "fire time exactly now",
			request:   Request{Connection: departingAt(7, 10), LeadMinutes: 10},
			permitted: true,
			expected:  pkgerrors.PastDeparture,
		},
		{
			name:      "negative lead",
			request:   Request{Connection: departingAt(8, 0), LeadMinutes: -1},
			permitted: true,
			expected:  pkgerrors.InvalidRequest,
		},
		{
			name:      "no connection",
			request:   Request{LeadMinutes: 10},
			permitted: true,
			expected:  pkgerrors.InvalidRequest,
		},
		{
			name:      "exact alarms not permitted",
			request:   Request{Connection: departingAt(8, 0), LeadMinutes: 10},
			permitted: false,
			expected:  pkgerrors.PermissionDenied,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.timer.permitted = tt.permitted

			_, err := f.scheduler.Schedule(context.Background(), tt.request)
			assert.ErrorIs(t, err, tt.expected)

			alarms, err := f.store.LoadAlarms(context.Background())
			require.NoError(t, err)
			assert.Empty(t, alarms)
			assert.Empty(t, f.timer.registered)
		})
	}
}

func TestSchedulePermissionDeniedCarriesRemediation(t *testing.T) {
	f := newFixture(t)
	f.timer.permitted = false

	_, err := f.scheduler.Schedule(context.Background(), Request{Connection: departingAt(8, 0), LeadMinutes: 10})
	assert.Equal(t, "enable exact alarms", pkgerrors.RemediationOf(err))
}

func TestScheduleNineMinutesBeforeDeparture(t *testing.T) {
	f := newFixture(t)
	f.clock.Set(time.Date(2024, 5, 6, 7, 51, 0, 0, ctdf.Timezone))

	_, err := f.scheduler.Schedule(context.Background(), Request{Connection: departingAt(8, 0), LeadMinutes: 10})
	assert.ErrorIs(t, err, pkgerrors.PastDeparture)

	alarms, err := f.scheduler.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, alarms)
	assert.Empty(t, f.timer.registered)
}

func TestScheduleZeroLead(t *testing.T) {
	f := newFixture(t)

	alarm, err := f.scheduler.Schedule(context.Background(), Request{Connection: departingAt(8, 0), LeadMinutes: 0})
	require.NoError(t, err)
	assert.Equal(t, "08:00", alarm.FireAtDisplay)
}

func TestScheduleRollsBackWhenTimerFails(t *testing.T) {
	f := newFixture(t)
	f.timer.failOnCount = 1

	_, err := f.scheduler.Schedule(context.Background(), Request{Connection: departingAt(8, 0), LeadMinutes: 10})
	assert.ErrorIs(t, err, pkgerrors.Timer)

	alarms, err := f.store.LoadAlarms(context.Background())
	require.NoError(t, err)
	assert.Empty(t, alarms)
}

func TestScheduleSameConnectionTwice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.scheduler.Schedule(ctx, Request{Connection: departingAt(8, 0), LeadMinutes: 10})
	require.NoError(t, err)
	second, err := f.scheduler.Schedule(ctx, Request{Connection: departingAt(8, 0), LeadMinutes: 20})
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.NotEqual(t, first.DispatchKey(), second.DispatchKey())
	assert.Len(t, f.timer.registered, 2)
}

func TestUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alarm, err := f.scheduler.Schedule(ctx, Request{Connection: departingAt(8, 0), LeadMinutes: 10, Volume: 0.5})
	require.NoError(t, err)

	lead := 25
	volume := 0.8
	updated, err := f.scheduler.Update(ctx, alarm.ID, Changes{LeadMinutes: &lead, Volume: &volume})
	require.NoError(t, err)

	assert.Equal(t, alarm.ID, updated.ID)
	assert.Equal(t, "07:35", updated.FireAtDisplay)
	assert.Equal(t, "08:00", updated.ScheduledDepartureDisplay)
	assert.Equal(t, 0.8, updated.Volume)

	fireAt, ok := f.timer.fireAt(alarm.DispatchKey())
	assert.True(t, ok)
	assert.Equal(t, updated.AlarmFireAt, fireAt.UnixMilli())

	stored, err := f.scheduler.Get(ctx, alarm.ID)
	require.NoError(t, err)
	assert.Equal(t, 25, stored.LeadMinutes)
}

func TestUpdateIntoThePast(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alarm, err := f.scheduler.Schedule(ctx, Request{Connection: departingAt(8, 0), LeadMinutes: 10})
	require.NoError(t, err)

	lead := 90
	_, err = f.scheduler.Update(ctx, alarm.ID, Changes{LeadMinutes: &lead})
	assert.ErrorIs(t, err, pkgerrors.PastDeparture)

	stored, err := f.scheduler.Get(ctx, alarm.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, stored.LeadMinutes)
}

func TestUpdateRestoresPreviousOnTimerFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alarm, err := f.scheduler.Schedule(ctx, Request{Connection: departingAt(8, 0), LeadMinutes: 10})
	require.NoError(t, err)

	f.timer.failOnCount = 2
	lead := 20
	_, err = f.scheduler.Update(ctx, alarm.ID, Changes{LeadMinutes: &lead})
	assert.ErrorIs(t, err, pkgerrors.Timer)

	stored, err := f.scheduler.Get(ctx, alarm.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, stored.LeadMinutes)

	fireAt, ok := f.timer.fireAt(alarm.DispatchKey())
	assert.True(t, ok)
	assert.Equal(t, alarm.AlarmFireAt, fireAt.UnixMilli())
}

func TestUpdateEmptySoundResetsToDefault(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alarm, err := f.scheduler.Schedule(ctx, Request{Connection: departingAt(8, 0), LeadMinutes: 10, SoundRef: "chime"})
	require.NoError(t, err)
	assert.Equal(t, "chime", alarm.SoundRef)

	empty := ""
	updated, err := f.scheduler.Update(ctx, alarm.ID, Changes{SoundRef: &empty})
	require.NoError(t, err)
	assert.Equal(t, DefaultSoundRef, updated.SoundRef)
}

func TestConcurrentUpdatesKeepBothChanges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		alarm, err := f.scheduler.Schedule(ctx, Request{Connection: departingAt(8, 0), LeadMinutes: 10, Volume: 0.5})
		require.NoError(t, err)

		lead := 15
		volume := 0.9
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := f.scheduler.Update(ctx, alarm.ID, Changes{LeadMinutes: &lead})
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := f.scheduler.Update(ctx, alarm.ID, Changes{Volume: &volume})
			assert.NoError(t, err)
		}()
		wg.Wait()

		stored, err := f.scheduler.Get(ctx, alarm.ID)
		require.NoError(t, err)
		assert.Equal(t, 15, stored.LeadMinutes)
		assert.Equal(t, 0.9, stored.Volume)

		fireAt, ok := f.timer.fireAt(alarm.DispatchKey())
		require.True(t, ok)
		assert.Equal(t, stored.AlarmFireAt, fireAt.UnixMilli())
	}
}

func TestUpdateRacingCancelLeavesNoTimer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		alarm, err := f.scheduler.Schedule(ctx, Request{Connection: departingAt(8, 0), LeadMinutes: 10})
		require.NoError(t, err)

		lead := 15
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			// NotFound when the cancel wins
			f.scheduler.Update(ctx, alarm.ID, Changes{LeadMinutes: &lead})
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, f.scheduler.Cancel(ctx, alarm.ID))
		}()
		wg.Wait()

		_, err = f.scheduler.Get(ctx, alarm.ID)
		assert.ErrorIs(t, err, pkgerrors.NotFound)

		_, registered := f.timer.fireAt(alarm.DispatchKey())
		assert.False(t, registered, "timer left for cancelled alarm %s", alarm.ID)
	}
}

func TestUpdateUnknown(t *testing.T) {
	f := newFixture(t)

	lead := 5
	_, err := f.scheduler.Update(context.Background(), "missing", Changes{LeadMinutes: &lead})
	assert.ErrorIs(t, err, pkgerrors.NotFound)
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alarm, err := f.scheduler.Schedule(ctx, Request{Connection: departingAt(8, 0), LeadMinutes: 10})
	require.NoError(t, err)

	require.NoError(t, f.scheduler.Cancel(ctx, alarm.ID))

	_, ok := f.timer.fireAt(alarm.DispatchKey())
	assert.False(t, ok)

	alarms, err := f.scheduler.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, alarms)

	err = f.scheduler.Cancel(ctx, alarm.ID)
	assert.ErrorIs(t, err, pkgerrors.NotFound)
	assert.Contains(t, f.timer.cancelled, ctdf.AlarmDispatchKey(alarm.ID))
}

func TestSweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	early, err := f.scheduler.Schedule(ctx, Request{Connection: departingAt(7, 30), LeadMinutes: 10})
	require.NoError(t, err)
	late, err := f.scheduler.Schedule(ctx, Request{Connection: departingAt(9, 0), LeadMinutes: 10})
	require.NoError(t, err)

	f.clock.Set(time.Date(2024, 5, 6, 7, 20, 0, 0, ctdf.Timezone))

	swept, err := f.scheduler.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	alarms, err := f.scheduler.List(ctx)
	require.NoError(t, err)
	require.Len(t, alarms, 1)
	assert.Equal(t, late.ID, alarms[0].ID)
	assert.Contains(t, f.timer.cancelled, early.DispatchKey())

	swept, err = f.scheduler.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, swept)
}

func TestSweepKeepsAlarmsStillRinging(t *testing.T) {
	f := newFixture(t)
	f.scheduler.SweepGrace = time.Minute
	ctx := context.Background()

	alarm, err := f.scheduler.Schedule(ctx, Request{Connection: departingAt(7, 30), LeadMinutes: 10})
	require.NoError(t, err)

	// fired at 07:20, delivery may still be reading the record
	f.clock.Set(time.Date(2024, 5, 6, 7, 20, 30, 0, ctdf.Timezone))
	swept, err := f.scheduler.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, swept)

	_, err = f.scheduler.Get(ctx, alarm.ID)
	require.NoError(t, err)

	f.clock.Set(time.Date(2024, 5, 6, 7, 21, 0, 0, ctdf.Timezone))
	swept, err = f.scheduler.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, swept)
}

func TestSweepAsync(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	_, err := f.scheduler.Schedule(ctx, Request{Connection: departingAt(7, 30), LeadMinutes: 10})
	require.NoError(t, err)
	f.clock.Advance(time.Hour)

	done := f.scheduler.SweepAsync(ctx)
	cancel()
	<-done

	alarms, err := f.scheduler.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, alarms)
}

func TestRestore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.scheduler.Schedule(ctx, Request{Connection: departingAt(7, 30), LeadMinutes: 10})
	require.NoError(t, err)
	kept, err := f.scheduler.Schedule(ctx, Request{Connection: departingAt(9, 0), LeadMinutes: 10})
	require.NoError(t, err)

	// simulate a restart: fresh timer service, time moved on
	f.timer = newFakeTimer()
	f.scheduler.Timer = f.timer
	f.clock.Set(time.Date(2024, 5, 6, 7, 45, 0, 0, ctdf.Timezone))

	restored, err := f.scheduler.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, restored)

	_, ok := f.timer.fireAt(kept.DispatchKey())
	assert.True(t, ok)
	assert.Len(t, f.timer.registered, 1)
}

type staticResults struct {
	connections []*ctdf.Connection
}

func (s staticResults) ConnectionAt(index int) (*ctdf.Connection, error) {
	if index < 0 || index >= len(s.connections) {
		return nil, pkgerrors.New(pkgerrors.KindNotFound, "results", "out of range")
	}

	return s.connections[index], nil
}

func TestScheduleFromResults(t *testing.T) {
	f := newFixture(t)
	f.scheduler.Results = staticResults{connections: []*ctdf.Connection{departingAt(8, 0), departingAt(8, 30)}}

	alarm, err := f.scheduler.ScheduleFromResults(context.Background(), 1, 15, 0.5, "bell")
	require.NoError(t, err)
	assert.Equal(t, "08:15", alarm.FireAtDisplay)
	assert.Equal(t, "bell", alarm.SoundRef)

	_, err = f.scheduler.ScheduleFromResults(context.Background(), 5, 15, 0.5, "")
	assert.ErrorIs(t, err, pkgerrors.NotFound)
}
