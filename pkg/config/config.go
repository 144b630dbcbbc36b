package config

import (
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	LogFormat string `env:"PENDLER_LOG_FORMAT" envDefault:"CONSOLE"` // CONSOLE, JSON
	Debug     string `env:"PENDLER_DEBUG" envDefault:"NO"`

	Listen string `env:"PENDLER_LISTEN" envDefault:":8080"`

	// Upstream transit services
	DBRestEndpoint  string        `env:"PENDLER_DBREST_ENDPOINT" envDefault:"https://v6.db.transport.rest"`
	BahnWebEndpoint string        `env:"PENDLER_BAHNWEB_ENDPOINT" envDefault:"https://www.bahn.de/web/api"`
	HTTPTimeout     time.Duration `env:"PENDLER_HTTP_TIMEOUT" envDefault:"12s"`
	UpstreamRPS     float64       `env:"PENDLER_UPSTREAM_RPS" envDefault:"2"`
	UserAgent       string        `env:"PENDLER_USER_AGENT" envDefault:"db-pendler-wecker"`
	RouteTablesPath string        `env:"PENDLER_ROUTE_TABLES"`

	// Storage - sqlite or mongo
	Store           string        `env:"PENDLER_STORE" envDefault:"sqlite"`
	SQLitePath      string        `env:"PENDLER_SQLITE_PATH" envDefault:"pendler.db"`
	MongoConnection string        `env:"PENDLER_MONGODB_CONNECTION" envDefault:"mongodb://localhost:27017/"`
	MongoDatabase   string        `env:"PENDLER_MONGODB_DATABASE" envDefault:"pendler"`
	RedisAddress    string        `env:"PENDLER_REDIS_ADDRESS"`
	RedisPassword   string        `env:"PENDLER_REDIS_PASSWORD"`
	RedisDatabase   int           `env:"PENDLER_REDIS_DATABASE" envDefault:"0"`
	StationCacheTTL time.Duration `env:"PENDLER_STATION_CACHE_TTL" envDefault:"24h"`

	// Alarms
	ExactAlarms        bool          `env:"PENDLER_EXACT_ALARMS" envDefault:"true"`
	WakeLockTimeout    time.Duration `env:"PENDLER_WAKE_LOCK_TIMEOUT" envDefault:"60s"`
	AlarmRingDuration  time.Duration `env:"PENDLER_ALARM_RING_DURATION" envDefault:"60s"`
	FirebaseAccountKey string        `env:"PENDLER_FIREBASE_SERVICE_ACCOUNT"`
	PushToken          string        `env:"PENDLER_PUSH_TOKEN"`

	// Delivery process
	NotifyConsumers   int    `env:"PENDLER_NOTIFY_CONSUMERS" envDefault:"2"`
	NotifyStatsListen string `env:"PENDLER_NOTIFY_STATS_LISTEN" envDefault:":3333"`
}

func (c *Config) IsDebug() bool {
	return c.Debug == "YES"
}

func (c *Config) IsJSONLog() bool {
	return c.LogFormat == "JSON"
}

func (c *Config) PushEnabled() bool {
	return c.FirebaseAccountKey != "" && c.PushToken != ""
}

func (c *Config) RedisEnabled() bool {
	return c.RedisAddress != ""
}

// Load reads an optional .env file and then the process environment
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("No .env file loaded, using environment variables")
	}

	return Parse()
}

func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
