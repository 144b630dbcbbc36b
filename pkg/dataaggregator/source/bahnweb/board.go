package bahnweb

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"golang.org/x/exp/slices"

	"github.com/StefanRaatz/db-pendler-wecker/pkg/ctdf"
	"github.com/StefanRaatz/db-pendler-wecker/pkg/dataaggregator/source/routetables"
	pkgerrors "github.com/StefanRaatz/db-pendler-wecker/pkg/errors"
)

const (
	dateLayout  = "2006-01-02"
	clockLayout = "15:04:05"
	localLayout = "2006-01-02T15:04:05"
)

type place struct {
	ID    string `json:"id"`
	ExtID string `json:"extId"`
	Name  string `json:"name"`
	Type  string `json:"type"`
}

type boardResponse struct {
	Entries *[]json.RawMessage `json:"entries"`
}

type boardEntry struct {
	JourneyID string   `json:"journeyId"`
	Zeit      string   `json:"zeit"`
	EzZeit    string   `json:"ezZeit"`
	Gleis     string   `json:"gleis"`
	EzGleis   string   `json:"ezGleis"`
	Terminus  string   `json:"terminus"`
	Ueber     []string `json:"ueber"`

	Verkehrmittel struct {
		Name           string `json:"name"`
		MittelText     string `json:"mittelText"`
		KurzText       string `json:"kurzText"`
		ProduktGattung string `json:"produktGattung"`
	} `json:"verkehrmittel"`
}

func missingEntriesError() error {
	return pkgerrors.New(pkgerrors.KindMalformedResponse, sourceName+".abfahrten", "response has no entries array")
}

// parseLocalTime reads the board's zone-less timestamps as timetable local time
func parseLocalTime(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}

	return time.ParseInLocation(localLayout, value, ctdf.Timezone)
}

func decodeEntry(raw json.RawMessage) (*ctdf.Departure, error) {
	var entry boardEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, err
	}
	if entry.JourneyID == "" {
		return nil, errors.New("entry has no journey id")
	}

	scheduledAt, err := parseLocalTime(entry.Zeit)
	if err != nil {
		return nil, err
	}

	label := entry.Verkehrmittel.Name
	if label == "" {
		label = entry.Verkehrmittel.MittelText
	}

	platform := entry.EzGleis
	if platform == "" {
		platform = entry.Gleis
	}

	return &ctdf.Departure{
		JourneyID:   entry.JourneyID,
		ScheduledAt: scheduledAt,
		TrainLabel:  label,
		ProductType: entry.Verkehrmittel.ProduktGattung,
		Platform:    platform,
		Terminus:    entry.Terminus,
		Vias:        entry.Ueber,
	}, nil
}

// directionFilter guesses whether a departure heads towards the destination.
// It is a heuristic and accepts some trains that do not stop there.
type directionFilter struct {
	destinationEVA  string
	destinationName string
	tables          *routetables.Tables
}

func (f directionFilter) Accepts(departure *ctdf.Departure) bool {
	terminus := strings.ToLower(strings.TrimSpace(departure.Terminus))
	destination := strings.ToLower(strings.TrimSpace(f.destinationName))

	if terminus != "" && destination != "" {
		if strings.Contains(terminus, destination) || strings.Contains(destination, terminus) {
			return true
		}
	}

	if f.tables.ServesDestination(f.destinationEVA, departure.Terminus) {
		return true
	}

	if destination == "" {
		return false
	}

	return slices.ContainsFunc(departure.Vias, func(via string) bool {
		return strings.Contains(strings.ToLower(via), destination)
	})
}
