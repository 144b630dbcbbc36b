package bahnweb

import (
	"context"
	"fmt"
	"net/url"

	"github.com/rs/zerolog/log"

	"github.com/StefanRaatz/db-pendler-wecker/pkg/ctdf"
	"github.com/StefanRaatz/db-pendler-wecker/pkg/dataaggregator/query"
	"github.com/StefanRaatz/db-pendler-wecker/pkg/dataaggregator/source"
	"github.com/StefanRaatz/db-pendler-wecker/pkg/dataaggregator/source/routetables"
)

const (
	DefaultEndpoint = "https://www.bahn.de/web/api"

	sourceName     = "bahnweb"
	stationResults = 10
	maxConnections = 10
)

// Source reads the bahn.de departure board. The board has no arrival times so the direction
// and arrival are guessed from the route tables.
type Source struct {
	Endpoint    string
	Fetcher     *source.Fetcher
	RouteTables *routetables.Tables
}

func (s Source) GetName() string {
	return sourceName
}

func (s Source) SearchStations(ctx context.Context, q query.Stations) ([]*ctdf.Station, error) {
	if err := source.ValidateStationQuery(sourceName+".orte", q); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("suchbegriff", q.Query)
	params.Set("typ", "ALL")
	params.Set("limit", fmt.Sprint(stationResults))

	var places []place
	if err := s.Fetcher.GetJSON(ctx, fmt.Sprintf("%s/reiseloesung/orte?%s", s.Endpoint, params.Encode()), &places); err != nil {
		return nil, err
	}

	var stations []*ctdf.Station
	for _, p := range places {
		if p.ID == "" || p.ExtID == "" || p.Name == "" {
			continue
		}

		stations = append(stations, &ctdf.Station{
			ID:          p.ID,
			DisplayName: p.Name,
		})
	}

	return stations, nil
}

func (s Source) GetConnections(ctx context.Context, q query.Connections) ([]*ctdf.Connection, error) {
	fromEVA := source.EVAFromID(q.FromStationID)
	toEVA := source.EVAFromID(q.ToStationID)
	departAfter := ctdf.InTimezone(q.DepartAfter)

	params := url.Values{}
	params.Set("ortExtId", fromEVA)
	params.Set("datum", departAfter.Format(dateLayout))
	params.Set("zeit", departAfter.Format(clockLayout))
	params.Set("mitVias", "true")

	var response boardResponse
	if err := s.Fetcher.GetJSON(ctx, fmt.Sprintf("%s/reiseloesung/abfahrten?%s", s.Endpoint, params.Encode()), &response); err != nil {
		return nil, err
	}
	if response.Entries == nil {
		return nil, missingEntriesError()
	}

	tables := s.RouteTables
	if tables == nil {
		tables = routetables.Default()
	}

	filter := directionFilter{
		destinationEVA:  toEVA,
		destinationName: stationName(q.ToStationName, q.ToStationID),
		tables:          tables,
	}
	travelTime, known := tables.TravelTime(fromEVA, toEVA)

	var connections []*ctdf.Connection
	for i, raw := range *response.Entries {
		departure, err := decodeEntry(raw)
		if err != nil {
			log.Debug().Err(err).Int("index", i).Str("source", sourceName).Msg("Dropping malformed board entry")
			continue
		}
		if !filter.Accepts(departure) {
			continue
		}

		connection := &ctdf.Connection{
			ID:                     departure.JourneyID,
			TrainLabel:             departure.TrainLabel,
			DepartureAt:            departure.ScheduledAt,
			ArrivalAt:              departure.ScheduledAt.Add(travelTime),
			IsArrivalEstimated:     true,
			OriginStationName:      stationName(q.FromStationName, q.FromStationID),
			DestinationStationName: filter.destinationName,
			Platform:               departure.Platform,
			Source:                 sourceName,
		}
		connection.Normalise(departure.ProductType)

		connections = append(connections, connection)
	}

	log.Debug().
		Str("from", fromEVA).
		Str("to", toEVA).
		Bool("knownTravelTime", known).
		Int("accepted", len(connections)).
		Msg("Filtered departure board")

	return source.FilterDepartedBefore(connections, q.DepartAfter, maxConnections), nil
}

func stationName(displayName string, id string) string {
	if displayName != "" {
		return displayName
	}

	return source.NameFromID(id)
}
