package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Alert is the high priority, non-dismissable notification shown while an alarm rings
type Alert struct {
	AlarmID    string
	Title      string
	Body       string
	StopAction string
}

// The delivery surfaces are best effort. The pipeline logs their errors and carries on.

type WakeLock interface {
	Acquire(ctx context.Context, tag string, timeout time.Duration) error
	Release(tag string) error
}

type Presenter interface {
	Present(ctx context.Context, alert Alert) error
	Withdraw(ctx context.Context, alarmID string) error
}

type SoundPlayer interface {
	Start(ctx context.Context, alarmID string, soundRef string, volume float64) error
	Stop(alarmID string) error
}

type Vibrator interface {
	Start(ctx context.Context, alarmID string, pattern []time.Duration) error
	Stop(alarmID string) error
}

// VibrationPattern alternates pause and vibrate durations and repeats until stopped
var VibrationPattern = []time.Duration{0, 800 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond}

type LogWakeLock struct{}

func (LogWakeLock) Acquire(ctx context.Context, tag string, timeout time.Duration) error {
	log.Debug().Str("tag", tag).Dur("timeout", timeout).Msg("Wake lock acquired")
	return nil
}

func (LogWakeLock) Release(tag string) error {
	log.Debug().Str("tag", tag).Msg("Wake lock released")
	return nil
}

type LogPresenter struct{}

func (LogPresenter) Present(ctx context.Context, alert Alert) error {
	log.Info().
		Str("alarm", alert.AlarmID).
		Str("title", alert.Title).
		Str("body", alert.Body).
		Msg("ALARM")
	return nil
}

func (LogPresenter) Withdraw(ctx context.Context, alarmID string) error {
	log.Info().Str("alarm", alarmID).Msg("Alarm withdrawn")
	return nil
}

type LogSoundPlayer struct{}

func (LogSoundPlayer) Start(ctx context.Context, alarmID string, soundRef string, volume float64) error {
	log.Info().Str("alarm", alarmID).Str("sound", soundRef).Float64("volume", volume).Msg("Sound looping")
	return nil
}

func (LogSoundPlayer) Stop(alarmID string) error {
	log.Debug().Str("alarm", alarmID).Msg("Sound stopped")
	return nil
}

type LogVibrator struct{}

func (LogVibrator) Start(ctx context.Context, alarmID string, pattern []time.Duration) error {
	log.Debug().Str("alarm", alarmID).Int("steps", len(pattern)).Msg("Vibration started")
	return nil
}

func (LogVibrator) Stop(alarmID string) error {
	log.Debug().Str("alarm", alarmID).Msg("Vibration stopped")
	return nil
}

// MultiPresenter shows the alert on every presenter
type MultiPresenter []Presenter

func (m MultiPresenter) Present(ctx context.Context, alert Alert) error {
	var firstErr error
	for _, presenter := range m {
		if err := presenter.Present(ctx, alert); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

func (m MultiPresenter) Withdraw(ctx context.Context, alarmID string) error {
	var firstErr error
	for _, presenter := range m {
		if err := presenter.Withdraw(ctx, alarmID); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}
