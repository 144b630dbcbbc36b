package worker

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/StefanRaatz/db-pendler-wecker/pkg/app"
	"github.com/StefanRaatz/db-pendler-wecker/pkg/config"
	"github.com/StefanRaatz/db-pendler-wecker/pkg/consumer"
	"github.com/StefanRaatz/db-pendler-wecker/pkg/notify"
	"github.com/StefanRaatz/db-pendler-wecker/pkg/redis_client"
)

func RegisterCLI(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "notify",
		Usage: "Provides the alarm delivery process",
		Subcommands: []*cli.Command{
			{
				Name:  "run",
				Usage: "deliver fired alarms from the queue",
				Action: func(c *cli.Context) error {
					application, err := app.Setup(c.Context, cfg, app.RoleNotify)
					if err != nil {
						return err
					}
					defer application.Close()

					healthChecks := map[string]consumer.HealthCheck{
						"store": application.Store.Ping,
						"redis": func(ctx context.Context) error {
							return redis_client.Client.Ping(ctx).Err()
						},
					}

					firedConsumer := consumer.RedisConsumer{
						Connection:      redis_client.QueueConnection,
						QueueName:       notify.FiredQueueName,
						NumberConsumers: cfg.NotifyConsumers,
						BatchSize:       10,
						Timeout:         500 * time.Millisecond,
						Consumer:        notify.NewFiredBatchConsumer(application.Pipeline),
						StatsListen:     cfg.NotifyStatsListen,
						HealthChecks:    healthChecks,
					}
					if err := firedConsumer.Setup(); err != nil {
						return err
					}

					dismissedConsumer := consumer.RedisConsumer{
						Connection:      redis_client.QueueConnection,
						QueueName:       notify.DismissedQueueName,
						NumberConsumers: 1,
						BatchSize:       10,
						Timeout:         500 * time.Millisecond,
						Consumer:        notify.NewDismissedBatchConsumer(application.Pipeline),
					}
					if err := dismissedConsumer.Setup(); err != nil {
						return err
					}

					signals := make(chan os.Signal, 1)
					signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
					defer signal.Stop(signals)

					<-signals // wait for signal
					go func() {
						<-signals // hard exit on second signal (in case shutdown gets stuck)
						os.Exit(1)
					}()

					log.Info().Msg("Stopping delivery")

					for _, alarmID := range application.Pipeline.Ringing() {
						application.Pipeline.Dismiss(alarmID)
					}

					shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
					defer cancel()
					firedConsumer.StopStatsServer(shutdownCtx)

					// Close waits for all Consume() calls to finish
					return nil
				},
			},
		},
	}
}
