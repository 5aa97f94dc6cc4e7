package timetable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antigravity/transitraptor/internal/model"
)

func simpleStops() []model.Stop {
	return []model.Stop{
		{ID: "A", Name: "Alpha", Coord: model.LatLon{Lat: 0, Lon: 0}},
		{ID: "B", Name: "Beta", Coord: model.LatLon{Lat: 1, Lon: 1}},
	}
}

func TestBuildDerivesStopRoutesAndDepartureColumns(t *testing.T) {
	trips := []model.Trip{
		{
			ID:            "T1",
			RouteID:       "R1",
			Stop:          []string{"A", "B"},
			ArrivalTime:   []model.Seconds{28800, 29700},
			DepartureTime: []model.Seconds{28800, 29700},
		},
		{
			ID:            "T2",
			RouteID:       "R1",
			Stop:          []string{"A", "B"},
			ArrivalTime:   []model.Seconds{29400, 30300},
			DepartureTime: []model.Seconds{29400, 30300},
		},
	}
	routes := []model.Route{
		{ID: "R1", StopSeq: []string{"A", "B"}, TripIDs: []string{"T1", "T2"}},
	}

	store, err := Build(simpleStops(), trips, routes, nil)
	require.NoError(t, err)

	serving := store.RoutesServing("A")
	require.Len(t, serving, 1)
	assert.Equal(t, RoutePosition{RouteID: "R1", Position: 0}, serving[0])

	departures := store.DeparturesAt("R1", 0)
	assert.Equal(t, []model.Seconds{28800, 29400}, departures)
}

func TestBuildRejectsOvertaking(t *testing.T) {
	trips := []model.Trip{
		{
			ID:            "T1",
			RouteID:       "R1",
			Stop:          []string{"A", "B"},
			ArrivalTime:   []model.Seconds{29400, 29700},
			DepartureTime: []model.Seconds{29400, 29700},
		},
		{
			ID:            "T2",
			RouteID:       "R1",
			Stop:          []string{"A", "B"},
			ArrivalTime:   []model.Seconds{28800, 30300},
			DepartureTime: []model.Seconds{28800, 30300},
		},
	}
	routes := []model.Route{
		{ID: "R1", StopSeq: []string{"A", "B"}, TripIDs: []string{"T1", "T2"}},
	}

	_, err := Build(simpleStops(), trips, routes, nil)
	assert.Error(t, err)
}

func TestHolderSwapIsAtomic(t *testing.T) {
	store1, err := Build(simpleStops(), nil, nil, nil)
	require.NoError(t, err)
	store2, err := Build(simpleStops(), nil, nil, nil)
	require.NoError(t, err)

	h := NewHolder(store1)
	assert.Same(t, store1, h.Load())
	h.Swap(store2)
	assert.Same(t, store2, h.Load())
}

func TestNearestStopsOrdersByDistance(t *testing.T) {
	stops := []model.Stop{
		{ID: "Far", Coord: model.LatLon{Lat: 10, Lon: 10}},
		{ID: "Near", Coord: model.LatLon{Lat: 0.001, Lon: 0}},
		{ID: "Origin", Coord: model.LatLon{Lat: 0, Lon: 0}},
	}
	store, err := Build(stops, nil, nil, nil)
	require.NoError(t, err)

	got := store.NearestStops(0, 0, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "Origin", got[0].ID)
	assert.Equal(t, "Near", got[1].ID)
}
