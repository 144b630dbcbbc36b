package cachedresults

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/store"
	redisstore "github.com/eko/gocache/store/redis/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/StefanRaatz/db-pendler-wecker/pkg/ctdf"
)

// StationCache keeps station search results in redis. Station names change rarely so
// a long expiry is fine.
type StationCache struct {
	Cache cache.CacheInterface[string]
}

func (c *StationCache) Setup(client *redis.Client, expiration time.Duration) {
	redisStore := redisstore.NewRedis(client, store.WithExpiration(expiration))

	c.Cache = cache.New[string](redisStore)
}

func stationCacheKey(sourceName string, query string) string {
	return fmt.Sprintf("cachedresults/stations/%s/%s", sourceName, strings.ToLower(strings.TrimSpace(query)))
}

func (c *StationCache) Get(ctx context.Context, sourceName string, query string) ([]*ctdf.Station, bool) {
	if c == nil || c.Cache == nil {
		return nil, false
	}

	cachedObject, err := c.Cache.Get(ctx, stationCacheKey(sourceName, query))
	if err != nil {
		return nil, false
	}

	var stations []*ctdf.Station
	if err := json.Unmarshal([]byte(cachedObject), &stations); err != nil {
		log.Error().Err(err).Str("query", query).Msg("Failed to decode cached stations")
		return nil, false
	}

	return stations, true
}

func (c *StationCache) Set(ctx context.Context, sourceName string, query string, stations []*ctdf.Station) {
	if c == nil || c.Cache == nil {
		return
	}

	stationsJSON, _ := json.Marshal(stations)
	if err := c.Cache.Set(ctx, stationCacheKey(sourceName, query), string(stationsJSON)); err != nil {
		log.Error().Err(err).Str("query", query).Msg("Failed to cache stations")
	}
}
