package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slices"

	"github.com/StefanRaatz/db-pendler-wecker/pkg/ctdf"
	pkgerrors "github.com/StefanRaatz/db-pendler-wecker/pkg/errors"
)

type alarmMap map[string]*ctdf.Alarm

func (m alarmMap) Get(ctx context.Context, id string) (*ctdf.Alarm, error) {
	alarm, ok := m[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.KindNotFound, "test", "missing")
	}

	return alarm, nil
}

// recorder implements every surface and counts calls
type recorder struct {
	mu     sync.Mutex
	calls  map[string]int
	events []string
	alerts []Alert
	fail   bool
}

func newRecorder() *recorder {
	return &recorder{calls: map[string]int{}}
}

func (r *recorder) record(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls[name]++
	r.events = append(r.events, name)
	if r.fail {
		return errors.New("surface unavailable")
	}
	return nil
}

func (r *recorder) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.calls[name]
}

func (r *recorder) Acquire(ctx context.Context, tag string, timeout time.Duration) error {
	return r.record("wakelock.acquire")
}

func (r *recorder) Release(tag string) error {
	return r.record("wakelock.release")
}

func (r *recorder) Present(ctx context.Context, alert Alert) error {
	r.mu.Lock()
	r.alerts = append(r.alerts, alert)
	r.mu.Unlock()
	return r.record("present")
}

func (r *recorder) Withdraw(ctx context.Context, alarmID string) error {
	return r.record("withdraw")
}

type soundRecorder struct{ *recorder }

func (s soundRecorder) Start(ctx context.Context, alarmID string, soundRef string, volume float64) error {
	return s.record("sound.start")
}

func (s soundRecorder) Stop(alarmID string) error {
	return s.record("sound.stop")
}

// interruptedSound runs onStart before the sound actually starts
type interruptedSound struct {
	soundRecorder
	onStart func()
}

func (s interruptedSound) Start(ctx context.Context, alarmID string, soundRef string, volume float64) error {
	s.onStart()
	return s.soundRecorder.Start(ctx, alarmID, soundRef, volume)
}

type vibrationRecorder struct{ *recorder }

func (v vibrationRecorder) Start(ctx context.Context, alarmID string, pattern []time.Duration) error {
	return v.record("vibrate.start")
}

func (v vibrationRecorder) Stop(alarmID string) error {
	return v.record("vibrate.stop")
}

func newTestPipeline(r *recorder, ring time.Duration) *Pipeline {
	alarm := &ctdf.Alarm{
		ID:                        "a1",
		TrainLabel:                "RE 1",
		ScheduledDepartureDisplay: "08:00",
		LeadMinutes:               10,
		OriginStationName:         "Düsseldorf Hbf",
		DestinationStationName:    "Köln Hbf",
		Volume:                    0.7,
		SoundRef:                  "default",
	}

	return &Pipeline{
		Alarms:       alarmMap{"a1": alarm},
		WakeLock:     r,
		Presenter:    r,
		Sound:        soundRecorder{r},
		Vibrator:     vibrationRecorder{r},
		RingDuration: ring,
	}
}

func assertReleasedOnce(t *testing.T, r *recorder) {
	assert.Equal(t, 1, r.count("sound.stop"))
	assert.Equal(t, 1, r.count("vibrate.stop"))
	assert.Equal(t, 1, r.count("withdraw"))
	assert.Equal(t, 1, r.count("wakelock.release"))
}

func TestHandleFiredThenDismiss(t *testing.T) {
	r := newRecorder()
	pipeline := newTestPipeline(r, time.Minute)

	require.NoError(t, pipeline.HandleFired(context.Background(), "alarm:a1"))

	assert.Equal(t, 1, r.count("wakelock.acquire"))
	assert.Equal(t, 1, r.count("present"))
	assert.Equal(t, 1, r.count("sound.start"))
	assert.Equal(t, 1, r.count("vibrate.start"))
	assert.Equal(t, []string{"a1"}, pipeline.Ringing())

	require.Len(t, r.alerts, 1)
	assert.Equal(t, "RE 1 departs at 08:00", r.alerts[0].Title)
	assert.Contains(t, r.alerts[0].Body, "10 min")
	assert.Contains(t, r.alerts[0].Body, "Köln Hbf")

	done, ok := pipeline.Done("a1")
	require.True(t, ok)

	assert.True(t, pipeline.Dismiss("a1"))
	assert.False(t, pipeline.Dismiss("a1"))
	<-done

	assertReleasedOnce(t, r)
	assert.Empty(t, pipeline.Ringing())
}

func TestHandleFiredAutoStops(t *testing.T) {
	r := newRecorder()
	pipeline := newTestPipeline(r, 200*time.Millisecond)

	require.NoError(t, pipeline.HandleFired(context.Background(), "alarm:a1"))
	done, ok := pipeline.Done("a1")
	require.True(t, ok)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("alarm did not stop on its own")
	}

	assertReleasedOnce(t, r)
	assert.False(t, pipeline.Dismiss("a1"))
	assertReleasedOnce(t, r)
}

func TestHandleFiredMissingAlarm(t *testing.T) {
	r := newRecorder()
	pipeline := newTestPipeline(r, time.Minute)

	require.NoError(t, pipeline.HandleFired(context.Background(), "alarm:gone"))
	require.NoError(t, pipeline.HandleFired(context.Background(), "something-else"))

	assert.Equal(t, 0, r.count("present"))
	assert.Equal(t, 0, r.count("wakelock.acquire"))
}

func TestHandleFiredSurfaceFailuresAreNotFatal(t *testing.T) {
	r := newRecorder()
	r.fail = true
	pipeline := newTestPipeline(r, time.Minute)

	require.NoError(t, pipeline.HandleFired(context.Background(), "alarm:a1"))
	assert.Equal(t, 1, r.count("sound.start"))

	assert.True(t, pipeline.Dismiss("a1"))
	assertReleasedOnce(t, r)
}

func TestHandleFiredTwiceRingsOnce(t *testing.T) {
	r := newRecorder()
	pipeline := newTestPipeline(r, time.Minute)

	require.NoError(t, pipeline.HandleFired(context.Background(), "alarm:a1"))
	require.NoError(t, pipeline.HandleFired(context.Background(), "alarm:a1"))

	assert.Equal(t, 1, r.count("present"))
	pipeline.Dismiss("a1")
}

func TestDismissWhileSurfacesStart(t *testing.T) {
	r := newRecorder()
	pipeline := newTestPipeline(r, time.Minute)

	dismissed := false
	pipeline.Sound = interruptedSound{
		soundRecorder: soundRecorder{r},
		onStart:       func() { dismissed = pipeline.Dismiss("a1") },
	}

	require.NoError(t, pipeline.HandleFired(context.Background(), "alarm:a1"))

	assert.True(t, dismissed)
	assertReleasedOnce(t, r)
	assert.Empty(t, pipeline.Ringing())

	r.mu.Lock()
	events := append([]string(nil), r.events...)
	r.mu.Unlock()
	assert.Less(t, slices.Index(events, "sound.start"), slices.Index(events, "sound.stop"))
	assert.Less(t, slices.Index(events, "vibrate.start"), slices.Index(events, "vibrate.stop"))
}

func TestRingStopsWithTheWakeLock(t *testing.T) {
	r := newRecorder()
	pipeline := newTestPipeline(r, time.Minute)
	pipeline.WakeLockTimeout = 200 * time.Millisecond

	require.NoError(t, pipeline.HandleFired(context.Background(), "alarm:a1"))
	done, ok := pipeline.Done("a1")
	require.True(t, ok)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("alarm kept ringing after the wake lock expired")
	}

	assertReleasedOnce(t, r)
}

func TestRingDuration(t *testing.T) {
	tests := []struct {
		name     string
		ring     time.Duration
		wake     time.Duration
		expected time.Duration
	}{
		{name: "defaults", expected: DefaultRingDuration},
		{name: "shorter ring kept", ring: 10 * time.Second, wake: 30 * time.Second, expected: 10 * time.Second},
		{name: "capped at wake lock", ring: 45 * time.Second, wake: 30 * time.Second, expected: 30 * time.Second},
		{name: "capped at max wake lock", ring: 5 * time.Minute, expected: MaxWakeLockTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pipeline := &Pipeline{RingDuration: tt.ring, WakeLockTimeout: tt.wake}
			assert.Equal(t, tt.expected, pipeline.ringDuration())
		})
	}
}

func TestWakeLockTimeoutIsCapped(t *testing.T) {
	pipeline := &Pipeline{WakeLockTimeout: 5 * time.Minute}
	assert.Equal(t, MaxWakeLockTimeout, pipeline.wakeLockTimeout())

	pipeline.WakeLockTimeout = 20 * time.Second
	assert.Equal(t, 20*time.Second, pipeline.wakeLockTimeout())
}
