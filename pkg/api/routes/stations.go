package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/StefanRaatz/db-pendler-wecker/pkg/dataaggregator"
)

type stationsHandler struct {
	aggregator *dataaggregator.Aggregator
}

func StationsRouter(router fiber.Router, aggregator *dataaggregator.Aggregator) {
	h := stationsHandler{aggregator: aggregator}

	router.Get("/", h.searchStations)
}

func (h stationsHandler) searchStations(c *fiber.Ctx) error {
	stations, err := h.aggregator.SearchStations(c.UserContext(), c.Query("query"))
	if err != nil {
		return SendError(c, err)
	}

	return sendView(c, stations)
}
