package global

import (
	"github.com/redis/go-redis/v9"

	"github.com/StefanRaatz/db-pendler-wecker/pkg/config"
	"github.com/StefanRaatz/db-pendler-wecker/pkg/dataaggregator"
	"github.com/StefanRaatz/db-pendler-wecker/pkg/dataaggregator/source"
	"github.com/StefanRaatz/db-pendler-wecker/pkg/dataaggregator/source/bahnweb"
	"github.com/StefanRaatz/db-pendler-wecker/pkg/dataaggregator/source/cachedresults"
	"github.com/StefanRaatz/db-pendler-wecker/pkg/dataaggregator/source/dbrest"
	"github.com/StefanRaatz/db-pendler-wecker/pkg/dataaggregator/source/routetables"
	"github.com/StefanRaatz/db-pendler-wecker/pkg/metrics"
)

// Setup builds the global aggregator. redisClient may be nil, which disables the station cache.
func Setup(cfg *config.Config, redisClient *redis.Client, m *metrics.Metrics) (*dataaggregator.Aggregator, error) {
	tables, err := routetables.Load(cfg.RouteTablesPath)
	if err != nil {
		return nil, err
	}

	aggregator := dataaggregator.NewAggregator()
	aggregator.Metrics = m

	dbrestSource := dbrest.Source{
		Endpoint: cfg.DBRestEndpoint,
		Fetcher:  source.NewFetcher("dbrest", cfg.HTTPTimeout, cfg.UpstreamRPS, cfg.UserAgent),
	}
	bahnwebSource := bahnweb.Source{
		Endpoint:    cfg.BahnWebEndpoint,
		Fetcher:     source.NewFetcher("bahnweb", cfg.HTTPTimeout, cfg.UpstreamRPS, cfg.UserAgent),
		RouteTables: tables,
	}

	// Journeys API first for real arrival times, the departure board as fallback
	aggregator.RegisterSource(dbrestSource)
	aggregator.RegisterSource(bahnwebSource)

	// Composite bahn.de ids carry both the name and the EVA number so work with either source
	aggregator.RegisterStationSource(bahnwebSource)
	aggregator.RegisterStationSource(dbrestSource)

	if redisClient != nil {
		stationCache := &cachedresults.StationCache{}
		stationCache.Setup(redisClient, cfg.StationCacheTTL)
		aggregator.StationCache = stationCache
	}

	return aggregator, nil
}
