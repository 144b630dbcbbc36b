package routes

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/StefanRaatz/db-pendler-wecker/pkg/ctdf"
	"github.com/StefanRaatz/db-pendler-wecker/pkg/dataaggregator"
	"github.com/StefanRaatz/db-pendler-wecker/pkg/database"
)

type routeHandler struct {
	aggregator *dataaggregator.Aggregator
	store      database.Store
}

// RouteRouter manages the configured station pair. Any change drops the last results.
func RouteRouter(router fiber.Router, aggregator *dataaggregator.Aggregator, store database.Store) {
	h := routeHandler{aggregator: aggregator, store: store}

	router.Get("/", h.getRoute)
	router.Put("/", h.putRoute)
	router.Post("/swap", h.swapRoute)
}

func (h routeHandler) getRoute(c *fiber.Ctx) error {
	route, err := h.store.LoadRoute(c.UserContext())
	if err != nil {
		return SendError(c, err)
	}

	return sendView(c, route)
}

func validStation(station *ctdf.Station) bool {
	return station != nil && strings.TrimSpace(station.ID) != ""
}

func (h routeHandler) putRoute(c *fiber.Ctx) error {
	var route ctdf.Route
	if err := c.BodyParser(&route); err != nil {
		return invalidRequest(c, "route", "cannot read route body")
	}
	if !validStation(route.Origin) || !validStation(route.Destination) {
		return invalidRequest(c, "route", "origin and destination need a station id")
	}

	if err := h.store.SaveRoute(c.UserContext(), route); err != nil {
		return SendError(c, err)
	}
	h.aggregator.Invalidate()

	return sendView(c, route)
}

func (h routeHandler) swapRoute(c *fiber.Ctx) error {
	route, err := h.store.SwapRoute(c.UserContext())
	if err != nil {
		return SendError(c, err)
	}
	h.aggregator.Invalidate()

	return sendView(c, route)
}
