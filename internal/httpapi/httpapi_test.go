package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antigravity/transitraptor/internal/model"
	"github.com/antigravity/transitraptor/internal/rangequery"
	"github.com/antigravity/transitraptor/internal/raptor"
	"github.com/antigravity/transitraptor/internal/timetable"
)

func buildLineStore(t *testing.T) *timetable.Store {
	t.Helper()

	stops := []model.Stop{
		{ID: "A", Coord: model.LatLon{Lat: 0, Lon: 0}},
		{ID: "B", Coord: model.LatLon{Lat: 0, Lon: 0.01}},
		{ID: "C", Coord: model.LatLon{Lat: 0, Lon: 0.02}},
	}
	trips := []model.Trip{
		{
			ID:            "T1",
			RouteID:       "R1",
			Stop:          []string{"A", "B", "C"},
			DepartureTime: []model.Seconds{28800, 28860, 28920},
			ArrivalTime:   []model.Seconds{28800, 28860, 28920},
		},
	}
	routes := []model.Route{
		{ID: "R1", Name: "Line 1", StopSeq: []string{"A", "B", "C"}, TripIDs: []string{"T1"}},
	}

	store, err := timetable.Build(stops, trips, routes, nil)
	require.NoError(t, err)
	return store
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	holder := timetable.NewHolder(buildLineStore(t))
	return NewServer(holder, raptor.DefaultConfig(), rangequery.DefaultConfig(), nil, nil)
}

func TestHandleQueryReturnsJourney(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/query?source=A&target=C&depart=28800", nil)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Journeys []model.Journey `json:"journeys"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Journeys, 1)
	assert.Equal(t, model.Seconds(28920), body.Journeys[0].Arrival)
}

func TestHandleQueryMissingParamsIsBadRequest(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/query?source=A", nil)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleRangeQueryReturnsJourneys(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/range_query?source=A&target=C&start=28800&window=60", nil)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Journeys []model.Journey `json:"journeys"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Journeys, 1)
}

func TestHandleHealthReportsStopCount(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(3), body["stops"])
}

func TestHandlerSetsRequestIDHeader(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}
