package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/kr/pretty"
	"github.com/urfave/cli/v2"

	"github.com/StefanRaatz/db-pendler-wecker/pkg/config"
	"github.com/StefanRaatz/db-pendler-wecker/pkg/ctdf"
	pkgerrors "github.com/StefanRaatz/db-pendler-wecker/pkg/errors"
)

var prettyFlag = &cli.BoolFlag{
	Name:  "pretty",
	Usage: "dump the full records instead of one line each",
}

// withApp runs action against a short-lived RoleCLI app
func withApp(cfg *config.Config, action func(c *cli.Context, a *App) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		a, err := Setup(c.Context, cfg, RoleCLI)
		if err != nil {
			return err
		}
		defer a.Close()

		return action(c, a)
	}
}

func printErr(err error) error {
	if remediation := pkgerrors.RemediationOf(err); remediation != "" {
		return fmt.Errorf("%w\n%s", err, remediation)
	}

	return err
}

// RegisterCLI returns the one-shot commands working directly on the store and the transit services
func RegisterCLI(cfg *config.Config) []*cli.Command {
	return []*cli.Command{
		{
			Name:  "stations",
			Usage: "Look up stations",
			Subcommands: []*cli.Command{
				{
					Name:      "search",
					Usage:     "search stations by name",
					ArgsUsage: "<query>",
					Flags:     []cli.Flag{prettyFlag},
					Action: withApp(cfg, func(c *cli.Context, a *App) error {
						stations, err := a.Aggregator.SearchStations(c.Context, strings.Join(c.Args().Slice(), " "))
						if err != nil {
							return printErr(err)
						}

						for _, station := range stations {
							if c.Bool("pretty") {
								pretty.Println(station)
								continue
							}
							fmt.Printf("%-40s %s\n", station.DisplayName, station.ID)
						}

						return nil
					}),
				},
			},
		},
		{
			Name:  "connections",
			Usage: "Look up connections",
			Subcommands: []*cli.Command{
				{
					Name:  "list",
					Usage: "list the next connections, on the configured route unless --from and --to are given",
					Flags: []cli.Flag{
						&cli.StringFlag{Name: "from", Usage: "origin station id"},
						&cli.StringFlag{Name: "to", Usage: "destination station id"},
						&cli.StringFlag{Name: "datetime", Usage: "earliest departure, e.g. 2024-01-01T07:00 (Europe/Berlin)"},
						prettyFlag,
					},
					Action: withApp(cfg, func(c *cli.Context, a *App) error {
						from := &ctdf.Station{ID: c.String("from")}
						to := &ctdf.Station{ID: c.String("to")}
						if from.ID == "" || to.ID == "" {
							route, err := a.Store.LoadRoute(c.Context)
							if err != nil {
								return printErr(err)
							}
							if !route.Complete() {
								return fmt.Errorf("no route configured, use 'route set' or --from and --to")
							}
							from, to = route.Origin, route.Destination
						}

						departAfter := a.Clock.Now()
						if value := c.String("datetime"); value != "" {
							parsed, err := time.ParseInLocation("2006-01-02T15:04", value, ctdf.Timezone)
							if err != nil {
								return err
							}
							departAfter = parsed
						}

						connections, err := a.Aggregator.ResolveStations(c.Context, from, to, departAfter)
						if err != nil {
							return printErr(err)
						}

						if len(connections) == 0 {
							fmt.Println("No connections found")
						}
						for i, connection := range connections {
							if c.Bool("pretty") {
								pretty.Println(connection)
								continue
							}
							fmt.Printf("%d  %s %-8s %s -> %s  Gl. %-4s %s\n", i,
								connection.TrainCategoryIcon, connection.TrainLabel,
								connection.DepartureDisplay(), connection.ArrivalDisplay(),
								connection.Platform, connection.Source)
						}

						return nil
					}),
				},
			},
		},
		{
			Name:  "alarms",
			Usage: "Manage stored alarms",
			Subcommands: []*cli.Command{
				{
					Name:  "list",
					Usage: "list stored alarms by fire time",
					Flags: []cli.Flag{prettyFlag},
					Action: withApp(cfg, func(c *cli.Context, a *App) error {
						alarms, err := a.Scheduler.List(c.Context)
						if err != nil {
							return printErr(err)
						}

						for _, stored := range alarms {
							if c.Bool("pretty") {
								pretty.Println(stored)
								continue
							}
							fmt.Printf("%s  %s (%d min before %s %s)  %s -> %s\n",
								stored.ID, stored.FireAtDisplay, stored.LeadMinutes,
								stored.TrainLabel, stored.ScheduledDepartureDisplay,
								stored.OriginStationName, stored.DestinationStationName)
						}

						return nil
					}),
				},
				{
					Name:      "cancel",
					Usage:     "remove an alarm",
					ArgsUsage: "<id>",
					Action: withApp(cfg, func(c *cli.Context, a *App) error {
						id := c.Args().First()
						if id == "" {
							return fmt.Errorf("alarm id is required")
						}

						if err := a.Scheduler.Cancel(c.Context, id); err != nil {
							return printErr(err)
						}
						fmt.Printf("Cancelled %s\n", id)

						return nil
					}),
				},
				{
					Name:  "sweep",
					Usage: "remove alarms whose fire time has passed",
					Action: withApp(cfg, func(c *cli.Context, a *App) error {
						swept, err := a.Scheduler.Sweep(c.Context)
						if err != nil {
							return printErr(err)
						}
						fmt.Printf("Removed %d elapsed alarms\n", swept)

						return nil
					}),
				},
			},
		},
		{
			Name:  "route",
			Usage: "Manage the configured route",
			Subcommands: []*cli.Command{
				{
					Name:  "show",
					Usage: "print the configured route",
					Action: withApp(cfg, func(c *cli.Context, a *App) error {
						route, err := a.Store.LoadRoute(c.Context)
						if err != nil {
							return printErr(err)
						}
						fmt.Printf("%s -> %s\n", route.Origin, route.Destination)

						return nil
					}),
				},
				{
					Name:  "set",
					Usage: "set the route from two station searches, the first match of each is used",
					Flags: []cli.Flag{
						&cli.StringFlag{Name: "from", Required: true, Usage: "origin station name"},
						&cli.StringFlag{Name: "to", Required: true, Usage: "destination station name"},
					},
					Action: withApp(cfg, func(c *cli.Context, a *App) error {
						var route ctdf.Route
						for _, side := range []struct {
							query  string
							target **ctdf.Station
						}{
							{c.String("from"), &route.Origin},
							{c.String("to"), &route.Destination},
						} {
							stations, err := a.Aggregator.SearchStations(c.Context, side.query)
							if err != nil {
								return printErr(err)
							}
							if len(stations) == 0 {
								return fmt.Errorf("no station matches %q", side.query)
							}
							*side.target = stations[0]
						}

						if err := a.Store.SaveRoute(c.Context, route); err != nil {
							return printErr(err)
						}
						fmt.Printf("%s -> %s\n", route.Origin, route.Destination)

						return nil
					}),
				},
				{
					Name:  "swap",
					Usage: "swap origin and destination",
					Action: withApp(cfg, func(c *cli.Context, a *App) error {
						route, err := a.Store.SwapRoute(c.Context)
						if err != nil {
							return printErr(err)
						}
						a.Aggregator.Invalidate()
						fmt.Printf("%s -> %s\n", route.Origin, route.Destination)

						return nil
					}),
				},
			},
		},
	}
}
