package query

import (
	"time"
)

// Connections names the stations by id. The names are optional and only set when the
// stations came from a search.
type Connections struct {
	FromStationID   string
	FromStationName string
	ToStationID     string
	ToStationName   string
	DepartAfter     time.Time
}

type Stations struct {
	Query string
}
