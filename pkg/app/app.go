package app

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/StefanRaatz/db-pendler-wecker/pkg/alarm"
	"github.com/StefanRaatz/db-pendler-wecker/pkg/clock"
	"github.com/StefanRaatz/db-pendler-wecker/pkg/config"
	"github.com/StefanRaatz/db-pendler-wecker/pkg/dataaggregator"
	"github.com/StefanRaatz/db-pendler-wecker/pkg/dataaggregator/global"
	"github.com/StefanRaatz/db-pendler-wecker/pkg/database"
	"github.com/StefanRaatz/db-pendler-wecker/pkg/metrics"
	"github.com/StefanRaatz/db-pendler-wecker/pkg/notify"
	"github.com/StefanRaatz/db-pendler-wecker/pkg/redis_client"
	"github.com/StefanRaatz/db-pendler-wecker/pkg/timer"
)

// Role decides which parts of the alarm lifecycle a process hosts
type Role int

const (
	// RoleCLI is a one-shot command: store, resolver and scheduler without hosted timers
	RoleCLI Role = iota
	// RoleAPI hosts the exact timers and restores them at boot
	RoleAPI
	// RoleNotify only delivers, fed by the fired-event queue
	RoleNotify
)

// Dismisser is the user's stop action, either in-process or forwarded to the delivery process
type Dismisser interface {
	Dismiss(alarmID string) bool
}

type App struct {
	Config *config.Config
	Role   Role

	Clock      clock.Clock
	Store      database.Store
	Aggregator *dataaggregator.Aggregator
	Timer      *timer.Local
	Scheduler  *alarm.Scheduler
	Pipeline   *notify.Pipeline
	Publisher  *notify.Publisher
	Metrics    *metrics.Metrics
}

// Queued reports whether fired alarms travel through redis to a separate delivery process
func (a *App) Queued() bool {
	return a.Publisher != nil
}

// Dismisser returns where stop actions have to go for the ringing alarm to hear them
func (a *App) Dismisser() Dismisser {
	if a.Role != RoleNotify && a.Queued() {
		return a.Publisher
	}

	return a.Pipeline
}

func Setup(ctx context.Context, cfg *config.Config, role Role) (*App, error) {
	a := &App{
		Config:  cfg,
		Role:    role,
		Clock:   clock.Real{},
		Metrics: metrics.New(),
	}

	store, err := database.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Store = store

	if sqliteStore, ok := store.(*database.SQLiteStore); ok {
		a.Metrics.StartDBStatsCollector(sqliteStore.DB(), 15*time.Second)
	}

	if cfg.RedisEnabled() {
		if err := redis_client.Connect(ctx, cfg); err != nil {
			a.Close()
			return nil, err
		}

		publisher, err := notify.OpenPublisher(redis_client.QueueConnection)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Publisher = publisher
	} else if role == RoleNotify {
		a.Close()
		return nil, errors.New("the notify process needs PENDLER_REDIS_ADDRESS to receive fired alarms")
	}

	aggregator, err := global.Setup(cfg, redis_client.Client, a.Metrics)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Aggregator = aggregator

	a.Timer = timer.NewLocal(cfg.ExactAlarms, nil)
	a.Timer.Clock = a.Clock

	a.Scheduler = &alarm.Scheduler{
		Store:   a.Store,
		Timer:   a.Timer,
		Clock:   a.Clock,
		Metrics: a.Metrics,
		Results: a.Aggregator,

		SweepGrace: cfg.AlarmRingDuration,
	}

	pipeline, err := a.buildPipeline(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Pipeline = pipeline

	if role == RoleAPI {
		if a.Queued() {
			a.Timer.SetFireFunc(a.Publisher.Fire)
		} else {
			a.Timer.SetFireFunc(a.Pipeline.Fire)
		}

		if _, err := a.Scheduler.Restore(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to restore alarms")
		}
	}

	return a, nil
}

func (a *App) buildPipeline(ctx context.Context) (*notify.Pipeline, error) {
	pipeline := notify.NewLogPipeline(a.Scheduler)
	pipeline.WakeLockTimeout = a.Config.WakeLockTimeout
	pipeline.RingDuration = a.Config.AlarmRingDuration
	pipeline.Metrics = a.Metrics

	if a.Config.PushEnabled() {
		pushPresenter, err := notify.NewPushPresenter(ctx, a.Config.FirebaseAccountKey, a.Config.PushToken)
		if err != nil {
			return nil, err
		}

		pipeline.Presenter = notify.MultiPresenter{notify.LogPresenter{}, pushPresenter}
	}

	return pipeline, nil
}

func (a *App) Close() {
	if a.Timer != nil {
		a.Timer.Stop()
	}

	redis_client.Close()
	a.Metrics.Shutdown()

	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close store")
		}
	}
}
