package dataaggregator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/StefanRaatz/db-pendler-wecker/pkg/ctdf"
	"github.com/StefanRaatz/db-pendler-wecker/pkg/dataaggregator/query"
	"github.com/StefanRaatz/db-pendler-wecker/pkg/dataaggregator/source"
	"github.com/StefanRaatz/db-pendler-wecker/pkg/dataaggregator/source/cachedresults"
	pkgerrors "github.com/StefanRaatz/db-pendler-wecker/pkg/errors"
	"github.com/StefanRaatz/db-pendler-wecker/pkg/metrics"
)

// Aggregator resolves connections against its sources in priority order
type Aggregator struct {
	Sources        []source.DataSource
	StationSources []source.DataSource

	Results      *cachedresults.LastResults
	StationCache *cachedresults.StationCache
	Metrics      *metrics.Metrics
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		Results: &cachedresults.LastResults{},
	}
}

func (a *Aggregator) RegisterSource(dataSource source.DataSource) {
	a.Sources = append(a.Sources, dataSource)

	log.Debug().Str("name", dataSource.GetName()).Msg("Registering new Data Source")
}

func (a *Aggregator) RegisterStationSource(dataSource source.DataSource) {
	a.StationSources = append(a.StationSources, dataSource)

	log.Debug().Str("name", dataSource.GetName()).Msg("Registering new Station Data Source")
}

func resultsKey(from string, to string, departAfter time.Time) string {
	return fmt.Sprintf("%s>%s@%s", source.EVAFromID(from), source.EVAFromID(to), ctdf.InTimezone(departAfter).Format(time.RFC3339))
}

// Resolve looks up connections between two station ids, see ResolveStations
func (a *Aggregator) Resolve(ctx context.Context, from string, to string, departAfter time.Time) ([]*ctdf.Connection, error) {
	return a.ResolveStations(ctx, &ctdf.Station{ID: from}, &ctdf.Station{ID: to}, departAfter)
}

// ResolveStations asks each source in turn and returns the first non-empty list.
// An error or an empty list moves on to the next source. When nothing produced
// connections the first error is returned, or an empty list if every source answered.
func (a *Aggregator) ResolveStations(ctx context.Context, from *ctdf.Station, to *ctdf.Station, departAfter time.Time) ([]*ctdf.Connection, error) {
	if len(a.Sources) == 0 {
		return nil, errors.New("Failed to find a matching Data Source for connections")
	}
	if from == nil || to == nil || from.ID == "" || to.ID == "" {
		return nil, pkgerrors.New(pkgerrors.KindInvalidRequest, "resolve", "origin and destination are required")
	}

	epoch := a.Results.Epoch()
	key := resultsKey(from.ID, to.ID, departAfter)
	q := query.Connections{
		FromStationID:   from.ID,
		FromStationName: from.DisplayName,
		ToStationID:     to.ID,
		ToStationName:   to.DisplayName,
		DepartAfter:     departAfter,
	}

	var firstErr error
	for i, dataSource := range a.Sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if i > 0 {
			a.Metrics.Fallback()
			log.Info().Str("source", dataSource.GetName()).Msg("Falling back to next connection source")
		}

		connections, err := dataSource.GetConnections(ctx, q)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		if err != nil {
			a.Metrics.SourceLookup(dataSource.GetName(), "connections", metrics.OutcomeError)
			log.Warn().Err(err).Str("source", dataSource.GetName()).Msg("Connection lookup failed")

			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		connections = uniqueConnections(source.FilterDepartedBefore(connections, departAfter, 0))
		if len(connections) == 0 {
			a.Metrics.SourceLookup(dataSource.GetName(), "connections", metrics.OutcomeEmpty)
			continue
		}

		a.Metrics.SourceLookup(dataSource.GetName(), "connections", metrics.OutcomeSuccess)
		a.store(epoch, key, connections)

		log.Debug().
			Str("source", dataSource.GetName()).
			Str("key", key).
			Int("count", len(connections)).
			Msg("Resolved connections")

		return connections, nil
	}

	if firstErr != nil {
		return nil, firstErr
	}

	connections := []*ctdf.Connection{}
	a.store(epoch, key, connections)

	return connections, nil
}

// uniqueConnections keeps the first connection for each id. Journeys sharing their first
// train only differ in later changes, which are not shown.
func uniqueConnections(connections []*ctdf.Connection) []*ctdf.Connection {
	seen := make(map[string]bool, len(connections))
	unique := make([]*ctdf.Connection, 0, len(connections))
	for _, connection := range connections {
		if connection.ID != "" {
			if seen[connection.ID] {
				continue
			}
			seen[connection.ID] = true
		}
		unique = append(unique, connection)
	}

	return unique
}

func (a *Aggregator) store(epoch uint64, key string, connections []*ctdf.Connection) {
	if !a.Results.Store(epoch, key, connections) {
		log.Debug().Str("key", key).Msg("Discarding connections resolved before invalidation")
	}
}

// SearchStations returns the first successful station source's answer, in backend order
func (a *Aggregator) SearchStations(ctx context.Context, text string) ([]*ctdf.Station, error) {
	q := query.Stations{Query: text}
	if err := source.ValidateStationQuery("stations", q); err != nil {
		return nil, err
	}

	stationSources := a.StationSources
	if len(stationSources) == 0 {
		stationSources = a.Sources
	}
	if len(stationSources) == 0 {
		return nil, errors.New("Failed to find a matching Data Source for stations")
	}

	var firstErr error
	for _, dataSource := range stationSources {
		if stations, ok := a.StationCache.Get(ctx, dataSource.GetName(), text); ok {
			return stations, nil
		}

		stations, err := dataSource.SearchStations(ctx, q)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if err != nil {
			a.Metrics.SourceLookup(dataSource.GetName(), "stations", metrics.OutcomeError)
			log.Warn().Err(err).Str("source", dataSource.GetName()).Msg("Station search failed")

			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		if len(stations) == 0 {
			a.Metrics.SourceLookup(dataSource.GetName(), "stations", metrics.OutcomeEmpty)
			return []*ctdf.Station{}, nil
		}

		a.Metrics.SourceLookup(dataSource.GetName(), "stations", metrics.OutcomeSuccess)
		a.StationCache.Set(ctx, dataSource.GetName(), text, stations)

		return stations, nil
	}

	return nil, firstErr
}

// Invalidate drops the last results. Lookups still in flight will not repopulate them.
func (a *Aggregator) Invalidate() {
	a.Results.Invalidate()
}

func (a *Aggregator) LastResults() ([]*ctdf.Connection, string) {
	return a.Results.Get()
}

func (a *Aggregator) ConnectionAt(index int) (*ctdf.Connection, error) {
	connection, ok := a.Results.ConnectionAt(index)
	if !ok {
		return nil, pkgerrors.Newf(pkgerrors.KindNotFound, "results", "no connection at position %d", index)
	}

	return connection, nil
}
