package database

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StefanRaatz/db-pendler-wecker/pkg/ctdf"
	pkgerrors "github.com/StefanRaatz/db-pendler-wecker/pkg/errors"
)

// Runs against a real server when PENDLER_TEST_MONGODB is set
func newTestMongo(t *testing.T) *MongoStore {
	connection := os.Getenv("PENDLER_TEST_MONGODB")
	if connection == "" {
		t.Skip("PENDLER_TEST_MONGODB not set")
	}

	store, err := ConnectMongoDB(context.Background(), connection, "pendler_test_"+uuid.NewString()[:8])
	require.NoError(t, err)
	t.Cleanup(func() {
		store.Database.Drop(context.Background())
		store.Close()
	})

	return store
}

func TestMongoAlarms(t *testing.T) {
	store := newTestMongo(t)
	ctx := context.Background()

	require.NoError(t, store.UpdateAlarms(ctx, func(alarms []*ctdf.Alarm) ([]*ctdf.Alarm, error) {
		return append(alarms, &ctdf.Alarm{ID: "a1"}), nil
	}))
	require.NoError(t, store.UpdateAlarms(ctx, func(alarms []*ctdf.Alarm) ([]*ctdf.Alarm, error) {
		return append(alarms, &ctdf.Alarm{ID: "a2"}), nil
	}))

	alarms, err := store.LoadAlarms(ctx)
	require.NoError(t, err)
	assert.Len(t, alarms, 2)

	err = store.UpdateAlarms(ctx, func(alarms []*ctdf.Alarm) ([]*ctdf.Alarm, error) {
		return nil, pkgerrors.New(pkgerrors.KindNotFound, "test", "missing")
	})
	assert.ErrorIs(t, err, pkgerrors.NotFound)
}

func TestMongoRoute(t *testing.T) {
	store := newTestMongo(t)
	ctx := context.Background()

	require.NoError(t, store.SaveRoute(ctx, ctdf.Route{
		Origin:      &ctdf.Station{ID: "8000085", DisplayName: "Düsseldorf Hbf"},
		Destination: &ctdf.Station{ID: "8000207", DisplayName: "Köln Hbf"},
	}))

	swapped, err := store.SwapRoute(ctx)
	require.NoError(t, err)
	assert.Equal(t, "8000207", swapped.Origin.ID)
}
