package routes

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/StefanRaatz/db-pendler-wecker/pkg/clock"
	"github.com/StefanRaatz/db-pendler-wecker/pkg/ctdf"
	"github.com/StefanRaatz/db-pendler-wecker/pkg/dataaggregator"
	"github.com/StefanRaatz/db-pendler-wecker/pkg/database"
	pkgerrors "github.com/StefanRaatz/db-pendler-wecker/pkg/errors"
)

// Accepted ?datetime= layouts. Layouts without an offset are read in the timetable zone.
var departAfterLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

type connectionView struct {
	Index            int              `json:"index" groups:"basic,widget"`
	Connection       *ctdf.Connection `json:"connection" groups:"basic,widget"`
	DepartureDisplay string           `json:"departureDisplay" groups:"basic,widget"`
	ArrivalDisplay   string           `json:"arrivalDisplay" groups:"basic,widget"`
	DurationMinutes  int              `json:"durationMinutes" groups:"basic"`
}

type connectionsResponse struct {
	From        string            `json:"from" groups:"basic,widget"`
	To          string            `json:"to" groups:"basic,widget"`
	DepartAfter time.Time         `json:"departAfter" groups:"basic,widget"`
	Connections []*connectionView `json:"connections" groups:"basic,widget"`
}

type connectionsHandler struct {
	aggregator *dataaggregator.Aggregator
	store      database.Store
	clock      clock.Clock
}

func ConnectionsRouter(router fiber.Router, aggregator *dataaggregator.Aggregator, store database.Store, c clock.Clock) {
	h := connectionsHandler{aggregator: aggregator, store: store, clock: c}

	router.Get("/", h.listConnections)
	router.Get("/last", h.lastConnections)
	router.Post("/refresh", h.refreshConnections)
}

func ParseDepartAfter(value string, now time.Time) (time.Time, error) {
	if value == "" {
		return now, nil
	}

	for _, layout := range departAfterLayouts {
		if parsed, err := time.ParseInLocation(layout, value, ctdf.Timezone); err == nil {
			return parsed, nil
		}
	}

	return time.Time{}, pkgerrors.Newf(pkgerrors.KindInvalidRequest, "connections", "cannot read datetime %q", value)
}

func newConnectionViews(connections []*ctdf.Connection) []*connectionView {
	views := make([]*connectionView, 0, len(connections))
	for i, connection := range connections {
		views = append(views, &connectionView{
			Index:            i,
			Connection:       connection,
			DepartureDisplay: connection.DepartureDisplay(),
			ArrivalDisplay:   connection.ArrivalDisplay(),
			DurationMinutes:  int(connection.Duration().Minutes()),
		})
	}

	return views
}

// endpoints falls back to the configured route for whichever side is not given. A given id
// that matches a configured station keeps that station's name.
func (h connectionsHandler) endpoints(c *fiber.Ctx, from string, to string) (*ctdf.Station, *ctdf.Station, error) {
	route, err := h.store.LoadRoute(c.UserContext())
	if err != nil && (from == "" || to == "") {
		return nil, nil, err
	}

	origin := pickStation(from, route.Origin, route.Destination)
	destination := pickStation(to, route.Destination, route.Origin)
	if origin == nil || destination == nil {
		return nil, nil, pkgerrors.New(pkgerrors.KindInvalidRequest, "connections", "no origin and destination given and no route configured")
	}

	return origin, destination, nil
}

func pickStation(id string, configured *ctdf.Station, other *ctdf.Station) *ctdf.Station {
	if id == "" {
		return configured
	}

	for _, station := range []*ctdf.Station{configured, other} {
		if station != nil && station.ID == id {
			return station
		}
	}

	return &ctdf.Station{ID: id}
}

func (h connectionsHandler) resolve(c *fiber.Ctx, from string, to string, departAfter time.Time) error {
	origin, destination, err := h.endpoints(c, from, to)
	if err != nil {
		return SendError(c, err)
	}

	connections, err := h.aggregator.ResolveStations(c.UserContext(), origin, destination, departAfter)
	if err != nil {
		return SendError(c, err)
	}

	return sendView(c, &connectionsResponse{
		From:        origin.ID,
		To:          destination.ID,
		DepartAfter: ctdf.InTimezone(departAfter),
		Connections: newConnectionViews(connections),
	})
}

func (h connectionsHandler) listConnections(c *fiber.Ctx) error {
	departAfter, err := ParseDepartAfter(c.Query("datetime"), h.clock.Now())
	if err != nil {
		return SendError(c, err)
	}

	return h.resolve(c, c.Query("from"), c.Query("to"), departAfter)
}

// refreshConnections drops the last results and resolves the configured route from now
func (h connectionsHandler) refreshConnections(c *fiber.Ctx) error {
	h.aggregator.Invalidate()

	return h.resolve(c, "", "", h.clock.Now())
}

func (h connectionsHandler) lastConnections(c *fiber.Ctx) error {
	connections, key := h.aggregator.LastResults()

	groups, err := viewGroups(c)
	if err != nil {
		return SendError(c, err)
	}

	return sendReduced(c, groups, fiber.Map{
		"key":         key,
		"connections": newConnectionViews(connections),
	})
}
