package ctdf

import "time"

// Connection is the canonical result of a journey lookup, built fresh on every query
type Connection struct {
	ID string `json:"id" groups:"basic,widget"`

	TrainLabel        string        `json:"trainLabel" groups:"basic,widget"`
	TrainCategory     TrainCategory `json:"trainCategory" groups:"basic"`
	TrainCategoryIcon string        `json:"trainCategoryIcon" groups:"basic,widget"`

	DepartureAt        time.Time `json:"departureAt" groups:"basic,widget"`
	ArrivalAt          time.Time `json:"arrivalAt" groups:"basic,widget"`
	IsArrivalEstimated bool      `json:"isArrivalEstimated" groups:"basic,widget"`

	OriginStationName      string `json:"originStationName" groups:"basic"`
	DestinationStationName string `json:"destinationStationName" groups:"basic"`
	Platform               string `json:"platform" groups:"basic,widget"`

	Source string `json:"source" groups:"basic"`
}

// EstimateMarker prefixes arrival times that come from a static offset table
const EstimateMarker = "~"

// Normalise fills the derived fields and enforces ArrivalAt >= DepartureAt
func (c *Connection) Normalise(productType string) {
	c.DepartureAt = InTimezone(c.DepartureAt)
	c.ArrivalAt = InTimezone(c.ArrivalAt)

	if c.ArrivalAt.Before(c.DepartureAt) {
		c.ArrivalAt = c.DepartureAt
	}

	c.TrainCategory = TrainCategoryFor(c.TrainLabel, productType)
	c.TrainCategoryIcon = c.TrainCategory.Icon()
}

func (c *Connection) DepartureDisplay() string {
	return FormatShortTime(c.DepartureAt)
}

func (c *Connection) ArrivalDisplay() string {
	if c.IsArrivalEstimated {
		return EstimateMarker + FormatShortTime(c.ArrivalAt)
	}

	return FormatShortTime(c.ArrivalAt)
}

func (c *Connection) Duration() time.Duration {
	return c.ArrivalAt.Sub(c.DepartureAt)
}
