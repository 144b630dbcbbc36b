package redis_client

import (
	"context"
	"time"

	"github.com/adjust/rmq/v5"
	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/StefanRaatz/db-pendler-wecker/pkg/config"
)

var Client *redis.Client
var QueueConnection rmq.Connection

const queueConnectionTag = "pendler"

// Connect dials redis, retrying for a short while so the app can start alongside it
func Connect(ctx context.Context, cfg *config.Config) error {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddress,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDatabase,
	})

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 30 * time.Second

	err := backoff.RetryNotify(func() error {
		return client.Ping(ctx).Err()
	}, backoff.WithContext(policy, ctx), func(err error, wait time.Duration) {
		log.Warn().Err(err).Dur("retryIn", wait).Str("address", cfg.RedisAddress).Msg("Redis not reachable yet")
	})
	if err != nil {
		client.Close()
		return err
	}

	errChan := make(chan error, 10)
	queueConnection, err := rmq.OpenConnectionWithRedisClient(queueConnectionTag, client, errChan)
	if err != nil {
		client.Close()
		return err
	}

	go func() {
		for err := range errChan {
			log.Error().Err(err).Msg("Queue connection error")
		}
	}()

	Client = client
	QueueConnection = queueConnection

	log.Info().Str("address", cfg.RedisAddress).Msg("Connected to redis")

	return nil
}

func Close() {
	if QueueConnection != nil {
		<-QueueConnection.StopAllConsuming()
		QueueConnection = nil
	}
	if Client != nil {
		Client.Close()
		Client = nil
	}
}
