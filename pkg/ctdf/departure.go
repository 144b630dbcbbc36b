package ctdf

import "time"

// Departure is one raw row of a departure board. Never persisted.
type Departure struct {
	JourneyID string

	ScheduledAt time.Time
	TrainLabel  string
	ProductType string
	Platform    string

	Terminus string
	Vias     []string
}
