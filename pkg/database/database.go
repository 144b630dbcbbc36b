package database

import (
	"context"
	"fmt"

	"github.com/StefanRaatz/db-pendler-wecker/pkg/config"
	"github.com/StefanRaatz/db-pendler-wecker/pkg/ctdf"
)

const (
	alarmsKey = "alarms"
	routeKey  = "route"
)

// Store is the durable key/value area holding the alarm collection and the configured route.
// UpdateAlarms is a read-modify-write of the whole collection under a single writer, so a
// cancel and a sweep running at the same time cannot lose each other's update.
// Errors returned by the update function are passed back unchanged.
type Store interface {
	LoadAlarms(ctx context.Context) ([]*ctdf.Alarm, error)
	UpdateAlarms(ctx context.Context, update func([]*ctdf.Alarm) ([]*ctdf.Alarm, error)) error

	LoadRoute(ctx context.Context) (ctdf.Route, error)
	SaveRoute(ctx context.Context, route ctdf.Route) error
	SwapRoute(ctx context.Context) (ctdf.Route, error)

	Ping(ctx context.Context) error
	Close() error
}

func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Store {
	case "sqlite", "":
		return OpenSQLite(ctx, cfg.SQLitePath)
	case "mongo", "mongodb":
		return ConnectMongoDB(ctx, cfg.MongoConnection, cfg.MongoDatabase)
	}

	return nil, fmt.Errorf("unknown store %q", cfg.Store)
}
