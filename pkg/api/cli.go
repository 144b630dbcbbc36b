package api

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
)

func RegisterCLI(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "api",
		Usage: "Provides the connection and alarm web API",
		Subcommands: []*cli.Command{
			{
				Name:  "run",
				Usage: "run web api server",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "listen",
						Value: cfg.Listen,
						Usage: "listen target for the web server",
					},
				},
				Action: func(c *cli.Context) error {
					application, err := app.Setup(c.Context, cfg, app.RoleAPI)
					if err != nil {
						return err
					}
					defer application.Close()

					// Hourly opportunistic cleanup of elapsed alarms
					sweepCtx, stopSweeping := context.WithCancel(c.Context)
					defer stopSweeping()
					go func() {
						ticker := time.NewTicker(time.Hour)
						defer ticker.Stop()

						for {
							select {
							case <-ticker.C:
								<-application.Scheduler.SweepAsync(sweepCtx)
							case <-sweepCtx.Done():
								return
							}
						}
					}()

					webApp := NewServer(application)

					signals := make(chan os.Signal, 1)
					signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
					defer signal.Stop(signals)

					go func() {
						<-signals
						log.Info().Msg("Shutting down web api")

						if err := webApp.ShutdownWithTimeout(10 * time.Second); err != nil {
							log.Error().Err(err).Msg("Failed to shut down web api")
						}
					}()

					log.Info().Str("listen", c.String("listen")).Msg("Starting web api")

					return webApp.Listen(c.String("listen"))
				},
			},
		},
	}
}
