package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/StefanRaatz/db-pendler-wecker/pkg/api"
	"github.com/StefanRaatz/db-pendler-wecker/pkg/app"
	"github.com/StefanRaatz/db-pendler-wecker/pkg/config"
	"github.com/StefanRaatz/db-pendler-wecker/pkg/notify/worker"

	_ "time/tzdata"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read configuration")
	}

	if !cfg.IsJSONLog() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	if cfg.IsDebug() {
		log.Logger = log.Logger.Level(zerolog.DebugLevel)
	} else {
		log.Logger = log.Logger.Level(zerolog.InfoLevel)
	}

	commands := []*cli.Command{
		api.RegisterCLI(cfg),
		worker.RegisterCLI(cfg),
	}
	commands = append(commands, app.RegisterCLI(cfg)...)

	pendler := &cli.App{
		Name:        "pendler",
		Description: "Commuter connection lookup and departure wake-up alarms",

		Commands: commands,
	}

	if err := pendler.Run(os.Args); err != nil {
		log.Fatal().Err(err).Send()
	}
}
