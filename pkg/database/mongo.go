package database

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/StefanRaatz/db-pendler-wecker/pkg/ctdf"
	pkgerrors "github.com/StefanRaatz/db-pendler-wecker/pkg/errors"
)

const recordsCollection = "records"

var errVersionConflict = errors.New("record was modified concurrently")

// MongoStore keeps one document per record with a version counter. Writers replace the
// document only if the version is unchanged and retry on conflict.
type MongoStore struct {
	Client   *mongo.Client
	Database *mongo.Database
}

type record[T any] struct {
	Key     string `bson:"_id"`
	Version int64  `bson:"version"`
	Value   T      `bson:"value"`
}

func ConnectMongoDB(ctx context.Context, connectionString string, dbName string) (*MongoStore, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(connectionString))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.KindPersistence, "mongo.connect", err)
	}

	if err := client.Ping(connectCtx, nil); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.KindPersistence, "mongo.connect", err)
	}

	log.Info().Str("database", dbName).Msg("Connected to MongoDB store")

	return &MongoStore{
		Client:   client,
		Database: client.Database(dbName),
	}, nil
}

func (s *MongoStore) GetCollection() *mongo.Collection {
	return s.Database.Collection(recordsCollection)
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.Client.Ping(ctx, nil)
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.Client.Disconnect(ctx)
}

func loadRecord[T any](ctx context.Context, collection *mongo.Collection, key string) (*record[T], error) {
	var doc record[T]
	err := collection.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &doc, nil
}

// mutateRecord is an optimistic read-modify-write. Errors from update stop the retries
// and are returned unchanged.
func mutateRecord[T any](ctx context.Context, collection *mongo.Collection, op string, key string, update func(current T, exists bool) (T, error)) error {
	attempt := func() error {
		current, err := loadRecord[T](ctx, collection, key)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.KindPersistence, op, err)
		}

		var value T
		exists := current != nil
		if exists {
			value = current.Value
		}

		updated, err := update(value, exists)
		if err != nil {
			return backoff.Permanent(err)
		}

		if !exists {
			_, err := collection.InsertOne(ctx, record[T]{Key: key, Version: 1, Value: updated})
			if mongo.IsDuplicateKeyError(err) {
				return errVersionConflict
			}
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.KindPersistence, op, err)
			}

			return nil
		}

		result, err := collection.ReplaceOne(ctx,
			bson.M{"_id": key, "version": current.Version},
			record[T]{Key: key, Version: current.Version + 1, Value: updated},
		)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.KindPersistence, op, err)
		}
		if result.MatchedCount == 0 {
			return errVersionConflict
		}

		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 20 * time.Millisecond
	policy.MaxElapsedTime = 5 * time.Second

	err := backoff.Retry(attempt, backoff.WithContext(backoff.WithMaxRetries(policy, 8), ctx))
	if errors.Is(err, errVersionConflict) {
		return pkgerrors.Wrap(pkgerrors.KindPersistence, op, err)
	}

	return err
}

func (s *MongoStore) LoadAlarms(ctx context.Context) ([]*ctdf.Alarm, error) {
	doc, err := loadRecord[[]*ctdf.Alarm](ctx, s.GetCollection(), alarmsKey)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.KindPersistence, "mongo.alarms", err)
	}
	if doc == nil {
		return nil, nil
	}

	return doc.Value, nil
}

func (s *MongoStore) UpdateAlarms(ctx context.Context, update func([]*ctdf.Alarm) ([]*ctdf.Alarm, error)) error {
	return mutateRecord(ctx, s.GetCollection(), "mongo.alarms", alarmsKey, func(alarms []*ctdf.Alarm, _ bool) ([]*ctdf.Alarm, error) {
		updated, err := update(alarms)
		if err != nil {
			return nil, err
		}
		if updated == nil {
			updated = []*ctdf.Alarm{}
		}

		return updated, nil
	})
}

func (s *MongoStore) LoadRoute(ctx context.Context) (ctdf.Route, error) {
	doc, err := loadRecord[ctdf.Route](ctx, s.GetCollection(), routeKey)
	if err != nil {
		return ctdf.Route{}, pkgerrors.Wrap(pkgerrors.KindPersistence, "mongo.route", err)
	}
	if doc == nil {
		return ctdf.Route{}, nil
	}

	return doc.Value, nil
}

func (s *MongoStore) SaveRoute(ctx context.Context, route ctdf.Route) error {
	return mutateRecord(ctx, s.GetCollection(), "mongo.route", routeKey, func(ctdf.Route, bool) (ctdf.Route, error) {
		return route, nil
	})
}

func (s *MongoStore) SwapRoute(ctx context.Context) (ctdf.Route, error) {
	var swapped ctdf.Route

	err := mutateRecord(ctx, s.GetCollection(), "mongo.route", routeKey, func(route ctdf.Route, exists bool) (ctdf.Route, error) {
		if !exists || (route.Origin == nil && route.Destination == nil) {
			return ctdf.Route{}, pkgerrors.New(pkgerrors.KindNotFound, "mongo.route", "no route configured")
		}

		swapped = route.Swapped()
		return swapped, nil
	})

	return swapped, err
}
