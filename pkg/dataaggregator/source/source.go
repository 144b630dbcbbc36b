package source

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/StefanRaatz/db-pendler-wecker/pkg/ctdf"
	"github.com/StefanRaatz/db-pendler-wecker/pkg/dataaggregator/query"
	pkgerrors "github.com/StefanRaatz/db-pendler-wecker/pkg/errors"
)

// DataSource adapts one upstream transit API to the ctdf model
type DataSource interface {
	GetName() string

	SearchStations(ctx context.Context, q query.Stations) ([]*ctdf.Station, error)
	GetConnections(ctx context.Context, q query.Connections) ([]*ctdf.Connection, error)
}

var UnsupportedSourceError = errors.New("Unsupported source for lookup")

const MinStationQueryLength = 2

// ValidateStationQuery rejects queries that are too short to be worth an upstream call
func ValidateStationQuery(op string, q query.Stations) error {
	if utf8.RuneCountInString(q.Query) < MinStationQueryLength {
		return pkgerrors.Newf(pkgerrors.KindInvalidRequest, op, "station query must be at least %d characters", MinStationQueryLength)
	}

	return nil
}

// FilterDepartedBefore drops anything departing strictly before t and caps the result,
// keeping the upstream order
func FilterDepartedBefore(connections []*ctdf.Connection, t time.Time, limit int) []*ctdf.Connection {
	filtered := make([]*ctdf.Connection, 0, len(connections))

	for _, connection := range connections {
		if connection.DepartureAt.Before(t) {
			continue
		}

		filtered = append(filtered, connection)
		if limit > 0 && len(filtered) >= limit {
			break
		}
	}

	return filtered
}
