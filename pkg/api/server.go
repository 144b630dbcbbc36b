package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/StefanRaatz/db-pendler-wecker/pkg/api/routes"
	"github.com/StefanRaatz/db-pendler-wecker/pkg/app"
)

func NewServer(application *app.App) *fiber.App {
	webApp := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	webApp.Use(NewLogger())
	webApp.Use(NewMetrics(application.Metrics))

	webApp.Get("/version", routes.APIVersion)
	webApp.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(application.Metrics.Registry, promhttp.HandlerOpts{})))

	routes.StationsRouter(webApp.Group("/stations"), application.Aggregator)
	routes.ConnectionsRouter(webApp.Group("/connections"), application.Aggregator, application.Store, application.Clock)
	routes.RouteRouter(webApp.Group("/route"), application.Aggregator, application.Store)
	routes.AlarmsRouter(webApp.Group("/alarms"), application.Scheduler, application.Dismisser())

	return webApp
}
