package bahnweb

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StefanRaatz/db-pendler-wecker/pkg/ctdf"
	"github.com/StefanRaatz/db-pendler-wecker/pkg/dataaggregator/query"
	"github.com/StefanRaatz/db-pendler-wecker/pkg/dataaggregator/source"
	"github.com/StefanRaatz/db-pendler-wecker/pkg/dataaggregator/source/routetables"
	pkgerrors "github.com/StefanRaatz/db-pendler-wecker/pkg/errors"
)

const (
	duesseldorfID = "A=1@O=Düsseldorf Hbf@X=6794317@Y=51219960@U=80@L=8000085@B=1@p=1715000000@"
	koelnID       = "A=1@O=Köln Hbf@X=6958730@Y=50943029@U=80@L=8000207@B=1@p=1715000000@"
)

const boardFixture = `{"entries": [
  {"journeyId": "j-early", "zeit": "2024-05-06T07:50:00", "gleis": "15", "terminus": "Köln Hbf",
   "ueber": ["Düsseldorf Hbf", "Köln Hbf"], "verkehrmittel": {"name": "RE 1", "produktGattung": "REGIONAL"}},
  {"journeyId": "j-ice", "zeit": "2024-05-06T08:03:00", "gleis": "15", "ezGleis": "16", "terminus": "München Hbf",
   "ueber": ["Düsseldorf Hbf", "Köln Messe/Deutz", "Frankfurt(M) Flughafen Fernbf"], "verkehrmittel": {"name": "ICE 123", "produktGattung": "ICE"}},
  {"journeyId": "j-north", "zeit": "2024-05-06T08:05:00", "gleis": "9", "terminus": "Dortmund Hbf",
   "ueber": ["Duisburg Hbf", "Essen Hbf"], "verkehrmittel": {"name": "RE 6", "produktGattung": "REGIONAL"}},
  {"journeyId": "j-via", "zeit": "2024-05-06T08:12:00", "gleis": "10", "terminus": "Siegen Hbf",
   "ueber": ["Köln Hbf", "Troisdorf"], "verkehrmittel": {"name": "RE 9", "produktGattung": "REGIONAL"}},
  {"journeyId": "", "zeit": "2024-05-06T08:13:00", "terminus": "Köln Hbf"},
  {"journeyId": "j-bad-time", "zeit": "morgen", "terminus": "Köln Hbf"},
  {"journeyId": "j-direct", "zeit": "2024-05-06T08:20:00", "gleis": "11", "terminus": "Köln",
   "verkehrmittel": {"name": "S 6", "produktGattung": "SBAHN"}}
]}`

func newTestSource(t *testing.T, handler http.HandlerFunc) Source {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return Source{
		Endpoint:    server.URL,
		Fetcher:     source.NewFetcher(sourceName, time.Second, 0, "pendler-test/1.0"),
		RouteTables: routetables.Default(),
	}
}

func TestGetConnections(t *testing.T) {
	var requested *http.Request
	s := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		requested = r
		w.Write([]byte(boardFixture))
	})

	connections, err := s.GetConnections(context.Background(), query.Connections{
		FromStationID: duesseldorfID,
		ToStationID:   koelnID,
		DepartAfter:   time.Date(2024, 5, 6, 8, 0, 0, 0, ctdf.Timezone),
	})
	require.NoError(t, err)

	assert.Equal(t, "/reiseloesung/abfahrten", requested.URL.Path)
	assert.Equal(t, "8000085", requested.URL.Query().Get("ortExtId"))
	assert.Equal(t, "2024-05-06", requested.URL.Query().Get("datum"))
	assert.Equal(t, "08:00:00", requested.URL.Query().Get("zeit"))

	ids := []string{}
	for _, connection := range connections {
		ids = append(ids, connection.ID)
	}
	assert.Equal(t, []string{"j-ice", "j-via", "j-direct"}, ids)

	ice := connections[0]
	assert.True(t, ice.IsArrivalEstimated)
	assert.Equal(t, "08:03", ice.DepartureDisplay())
	assert.Equal(t, "~08:28", ice.ArrivalDisplay())
	assert.Equal(t, "16", ice.Platform)
	assert.Equal(t, ctdf.TrainCategoryHighSpeed, ice.TrainCategory)
	assert.Equal(t, "Düsseldorf Hbf", ice.OriginStationName)
	assert.Equal(t, "Köln Hbf", ice.DestinationStationName)

	assert.Equal(t, ctdf.TrainCategorySuburban, connections[2].TrainCategory)
}

func TestGetConnectionsDefaultTravelTime(t *testing.T) {
	s := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"entries": [
			{"journeyId": "j-1", "zeit": "2024-05-06T09:00:00", "terminus": "Bonn Hbf", "verkehrmittel": {"name": "RB 48"}}
		]}`))
	})

	connections, err := s.GetConnections(context.Background(), query.Connections{
		FromStationID: "8000001",
		ToStationID:   "A=1@O=Bonn Hbf@L=8000044@",
		DepartAfter:   time.Date(2024, 5, 6, 8, 0, 0, 0, ctdf.Timezone),
	})
	require.NoError(t, err)
	require.Len(t, connections, 1)
	assert.Equal(t, 30*time.Minute, connections[0].Duration())
}

func TestGetConnectionsBareEVAUsesStationNames(t *testing.T) {
	s := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(boardFixture))
	})

	connections, err := s.GetConnections(context.Background(), query.Connections{
		FromStationID:   "8000085",
		FromStationName: "Düsseldorf Hbf",
		ToStationID:     "8000207",
		ToStationName:   "Köln Hbf",
		DepartAfter:     time.Date(2024, 5, 6, 8, 0, 0, 0, ctdf.Timezone),
	})
	require.NoError(t, err)

	ids := []string{}
	for _, connection := range connections {
		ids = append(ids, connection.ID)
		assert.Equal(t, "Düsseldorf Hbf", connection.OriginStationName)
		assert.Equal(t, "Köln Hbf", connection.DestinationStationName)
	}
	assert.Contains(t, ids, "j-via")
}

func TestGetConnectionsMissingEntries(t *testing.T) {
	s := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})

	_, err := s.GetConnections(context.Background(), query.Connections{
		FromStationID: duesseldorfID,
		ToStationID:   koelnID,
		DepartAfter:   time.Now(),
	})
	assert.ErrorIs(t, err, pkgerrors.MalformedResponse)
}

func TestSearchStations(t *testing.T) {
	s := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Köln", r.URL.Query().Get("suchbegriff"))
		w.Write([]byte(`[
			{"id": "` + koelnID + `", "extId": "8000207", "name": "Köln Hbf", "type": "ST"},
			{"id": "A=2@O=Köln - Altstadt@", "extId": "", "name": "Köln - Altstadt", "type": "ADR"}
		]`))
	})

	stations, err := s.SearchStations(context.Background(), query.Stations{Query: "Köln"})
	require.NoError(t, err)
	require.Len(t, stations, 1)
	assert.Equal(t, koelnID, stations[0].ID)
	assert.Equal(t, "8000207", source.EVAFromID(stations[0].ID))
}

func TestDirectionFilter(t *testing.T) {
	filter := directionFilter{
		destinationEVA:  "8000207",
		destinationName: "Köln Hbf",
		tables:          routetables.Default(),
	}

	tests := []struct {
		name     string
		terminus string
		vias     []string
		expected bool
	}{
		{name: "terminus contains destination", terminus: "Köln Hbf", expected: true},
		{name: "destination contains terminus", terminus: "Köln", expected: true},
		{name: "route table", terminus: "Aachen Hbf", expected: true},
		{name: "via", terminus: "Siegen Hbf", vias: []string{"Köln Hbf"}, expected: true},
		{name: "other direction", terminus: "Emden Hbf", vias: []string{"Duisburg Hbf"}, expected: false},
		{name: "empty terminus", terminus: "", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, filter.Accepts(&ctdf.Departure{Terminus: tt.terminus, Vias: tt.vias}))
		})
	}
}
