package consumer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/adjust/rmq/v5"
	"github.com/rs/zerolog/log"
)

// RedisConsumer runs NumberConsumers batch consumers against one rmq queue and
// optionally serves queue stats and a health check on StatsListen.
type RedisConsumer struct {
	Connection rmq.Connection
	QueueName  string

	NumberConsumers int
	BatchSize       int

	Timeout time.Duration

	Consumer rmq.BatchConsumer

	StatsListen  string
	HealthChecks map[string]HealthCheck

	statsServer *http.Server
}

func (c *RedisConsumer) Setup() error {
	if c.Connection == nil {
		return errors.New("no queue connection")
	}

	if err := c.startConsumers(); err != nil {
		return err
	}

	if c.StatsListen != "" {
		c.startStatsServer()
	}

	return nil
}

func (c *RedisConsumer) startConsumers() error {
	log.Info().Str("queue", c.QueueName).Int("consumers", c.NumberConsumers).Msg("Starting consumers")

	queue, err := c.Connection.OpenQueue(c.QueueName)
	if err != nil {
		return err
	}
	if err := queue.StartConsuming(int64(c.NumberConsumers*c.BatchSize), 1*time.Second); err != nil {
		return err
	}

	for i := 0; i < c.NumberConsumers; i++ {
		log.Debug().Msgf("Starting %s consumer %d", c.QueueName, i)

		if _, err := queue.AddBatchConsumer(fmt.Sprintf("%s-%d", c.QueueName, i), int64(c.BatchSize), c.Timeout, c.Consumer); err != nil {
			return err
		}
	}

	return nil
}

func (c *RedisConsumer) startStatsServer() {
	endpoint := fmt.Sprintf("/%s/stats", c.QueueName)

	mux := http.NewServeMux()
	mux.Handle(endpoint, NewStatsHandler(c.Connection))
	mux.Handle("/health", NewHealthHandler(c.HealthChecks))

	c.statsServer = &http.Server{
		Addr:              c.StatsListen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Msgf("Stats server listening on %s%s", c.StatsListen, endpoint)
		if err := c.statsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Stats server stopped")
		}
	}()
}

// StopStatsServer shuts the stats server down. Consumers stop with the queue connection.
func (c *RedisConsumer) StopStatsServer(ctx context.Context) {
	if c.statsServer != nil {
		if err := c.statsServer.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to stop stats server")
		}
	}
}
