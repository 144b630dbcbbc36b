package dbrest

import (
	"context"
	"fmt"
	"net/url"

	"github.com/rs/zerolog/log"

	"github.com/StefanRaatz/db-pendler-wecker/pkg/ctdf"
	"github.com/StefanRaatz/db-pendler-wecker/pkg/dataaggregator/query"
	"github.com/StefanRaatz/db-pendler-wecker/pkg/dataaggregator/source"
)

const (
	DefaultEndpoint = "https://v6.db.transport.rest"

	sourceName     = "dbrest"
	stationResults = 10
	journeyResults = 8
	maxConnections = 5
)

// Source talks to a transport.rest style journeys API, which returns real arrival times
type Source struct {
	Endpoint string
	Fetcher  *source.Fetcher
}

func (s Source) GetName() string {
	return sourceName
}

func (s Source) SearchStations(ctx context.Context, q query.Stations) ([]*ctdf.Station, error) {
	if err := source.ValidateStationQuery(sourceName+".locations", q); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("query", q.Query)
	params.Set("results", fmt.Sprint(stationResults))
	params.Set("stops", "true")
	params.Set("addresses", "false")
	params.Set("poi", "false")

	var locations []location
	if err := s.Fetcher.GetJSON(ctx, fmt.Sprintf("%s/locations?%s", s.Endpoint, params.Encode()), &locations); err != nil {
		return nil, err
	}

	var stations []*ctdf.Station
	for _, loc := range locations {
		if loc.ID == "" || loc.Name == "" {
			continue
		}
		if loc.Type != "stop" && loc.Type != "station" {
			continue
		}

		stations = append(stations, &ctdf.Station{
			ID:          loc.ID,
			DisplayName: loc.Name,
		})
	}

	return stations, nil
}

func (s Source) GetConnections(ctx context.Context, q query.Connections) ([]*ctdf.Connection, error) {
	params := url.Values{}
	params.Set("from", source.EVAFromID(q.FromStationID))
	params.Set("to", source.EVAFromID(q.ToStationID))
	params.Set("departure", ctdf.InTimezone(q.DepartAfter).Format(timeLayout))
	params.Set("results", fmt.Sprint(journeyResults))
	params.Set("stopovers", "false")

	var response journeysResponse
	if err := s.Fetcher.GetJSON(ctx, fmt.Sprintf("%s/journeys?%s", s.Endpoint, params.Encode()), &response); err != nil {
		return nil, err
	}
	if response.Journeys == nil {
		return nil, missingJourneysError()
	}

	var connections []*ctdf.Connection
	for i, raw := range *response.Journeys {
		connection, err := decodeJourney(raw)
		if err != nil {
			log.Debug().Err(err).Int("index", i).Str("source", sourceName).Msg("Dropping malformed journey")
			continue
		}
		if connection == nil {
			continue
		}

		connections = append(connections, connection)
	}

	return source.FilterDepartedBefore(connections, q.DepartAfter, maxConnections), nil
}
