package dbrest

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/StefanRaatz/db-pendler-wecker/pkg/ctdf"
	pkgerrors "github.com/StefanRaatz/db-pendler-wecker/pkg/errors"
)

const timeLayout = time.RFC3339

type location struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Name string `json:"name"`
}

type journeysResponse struct {
	Journeys *[]json.RawMessage `json:"journeys"`
}

type journey struct {
	Type         string `json:"type"`
	RefreshToken string `json:"refreshToken"`
	Legs         []leg  `json:"legs"`
}

type leg struct {
	TripID string `json:"tripId"`

	Origin      location `json:"origin"`
	Destination location `json:"destination"`

	Departure        *string `json:"departure"`
	PlannedDeparture *string `json:"plannedDeparture"`
	Arrival          *string `json:"arrival"`
	PlannedArrival   *string `json:"plannedArrival"`

	DeparturePlatform        *string `json:"departurePlatform"`
	PlannedDeparturePlatform *string `json:"plannedDeparturePlatform"`

	Walking   bool `json:"walking"`
	Cancelled bool `json:"cancelled"`

	Line *line `json:"line"`
}

type line struct {
	Name        string `json:"name"`
	ProductName string `json:"productName"`
	Product     string `json:"product"`
	Mode        string `json:"mode"`
}

func missingJourneysError() error {
	return pkgerrors.New(pkgerrors.KindMalformedResponse, sourceName+".journeys", "response has no journeys array")
}

func firstSet(values ...*string) string {
	for _, value := range values {
		if value != nil && *value != "" {
			return *value
		}
	}

	return ""
}

// decodeJourney turns one journey row into a Connection. Returns nil without error for
// journeys that cannot be ridden (cancelled, walking only).
func decodeJourney(raw json.RawMessage) (*ctdf.Connection, error) {
	var j journey
	if err := json.Unmarshal(raw, &j); err != nil {
		return nil, err
	}
	if len(j.Legs) == 0 {
		return nil, errors.New("journey has no legs")
	}

	var first *leg
	for i := range j.Legs {
		if !j.Legs[i].Walking {
			first = &j.Legs[i]
			break
		}
	}
	if first == nil {
		return nil, nil
	}
	last := j.Legs[len(j.Legs)-1]

	for _, l := range j.Legs {
		if l.Cancelled {
			return nil, nil
		}
	}

	departureAt, err := time.Parse(timeLayout, firstSet(first.Departure, first.PlannedDeparture))
	if err != nil {
		return nil, err
	}
	arrivalAt, err := time.Parse(timeLayout, firstSet(last.Arrival, last.PlannedArrival))
	if err != nil {
		return nil, err
	}

	id := first.TripID
	if id == "" {
		id = j.RefreshToken
	}
	if id == "" {
		return nil, errors.New("journey has no trip id or refresh token")
	}

	trainLabel := ""
	productType := ""
	if first.Line != nil {
		trainLabel = first.Line.Name
		productType = first.Line.Product
		if productType == "" {
			productType = first.Line.ProductName
		}
	}

	connection := &ctdf.Connection{
		ID:                     id,
		TrainLabel:             trainLabel,
		DepartureAt:            departureAt,
		ArrivalAt:              arrivalAt,
		OriginStationName:      first.Origin.Name,
		DestinationStationName: last.Destination.Name,
		Platform:               firstSet(first.DeparturePlatform, first.PlannedDeparturePlatform),
		Source:                 sourceName,
	}
	connection.Normalise(productType)

	return connection, nil
}
