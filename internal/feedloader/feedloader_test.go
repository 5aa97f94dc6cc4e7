package feedloader

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antigravity/transitraptor/internal/diagnostics"
)

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func basicFixture() map[string]string {
	return map[string]string{
		"stops.txt": "stop_id,stop_name,stop_lat,stop_lon\n" +
			"A,Alpha,0.001,0.0\n" +
			"B,Beta,0.0,0.01\n",
		"routes.txt": "route_id,agency_id,route_short_name,route_long_name\n" +
			"R1,AG1,1,Line One\n",
		"trips.txt": "route_id,trip_id,shape_id\n" +
			"R1,T1,\n" +
			"R1,T2,\n",
		"stop_times.txt": "trip_id,stop_id,stop_sequence,arrival_time,departure_time\n" +
			"T1,A,0,08:00:00,08:00:00\n" +
			"T1,B,1,08:15:00,08:15:00\n" +
			"T2,A,0,08:30:00,08:30:00\n" +
			"T2,B,1,08:45:00,08:45:00\n",
	}
}

func TestLoadFeedAssemblesNamespacedEntities(t *testing.T) {
	diag := diagnostics.NewCollector()
	data := buildZip(t, basicFixture())

	stops, trips, routes, shapes, err := LoadFeed("op", data, Config{}, diag)
	require.NoError(t, err)
	assert.Empty(t, diag.Items())
	assert.Empty(t, shapes)

	require.Len(t, stops, 2)
	assert.Equal(t, "op:A", stops[0].ID)

	require.Len(t, trips, 2)
	for _, tr := range trips {
		assert.Equal(t, "op:R1", tr.RouteID)
		assert.Equal(t, []string{"op:A", "op:B"}, tr.Stop)
	}

	require.Len(t, routes, 1)
	assert.Equal(t, []string{"op:T1", "op:T2"}, routes[0].TripIDs)
	assert.Equal(t, "1", routes[0].Name)
}

func TestLoadFeedSkipsMalformedRowWithDiagnostic(t *testing.T) {
	fixture := basicFixture()
	fixture["stop_times.txt"] = "trip_id,stop_id,stop_sequence,arrival_time,departure_time\n" +
		"T1,A,0,08:00:00,08:00:00\n" +
		"T1,B,1,not-a-time,08:15:00\n" +
		"T2,A,0,08:30:00,08:30:00\n" +
		"T2,B,1,08:45:00,08:45:00\n"

	diag := diagnostics.NewCollector()
	data := buildZip(t, fixture)

	stops, trips, _, _, err := LoadFeed("op", data, Config{}, diag)
	require.NoError(t, err)
	assert.NotEmpty(t, stops)
	assert.GreaterOrEqual(t, diag.Len(), 1)

	// T1 only has one valid stop_time row left (its second was
	// dropped), so it never becomes a trip with two stops; T2 survives
	// intact.
	require.Len(t, trips, 1)
	assert.Equal(t, "op:T2", trips[0].ID)
}

func TestLoadFeedDropsNonMonotoneTrip(t *testing.T) {
	fixture := basicFixture()
	fixture["stop_times.txt"] = "trip_id,stop_id,stop_sequence,arrival_time,departure_time\n" +
		"T1,A,0,08:00:00,08:00:00\n" +
		"T1,B,1,07:59:00,07:59:00\n" +
		"T2,A,0,08:30:00,08:30:00\n" +
		"T2,B,1,08:45:00,08:45:00\n"

	diag := diagnostics.NewCollector()
	data := buildZip(t, fixture)

	_, trips, _, _, err := LoadFeed("op", data, Config{}, diag)
	require.NoError(t, err)
	assert.NotEmpty(t, diag.Items())

	require.Len(t, trips, 1)
	assert.Equal(t, "op:T2", trips[0].ID)
}

func TestLoadFeedDropsTripWithArrivalAfterDeparture(t *testing.T) {
	fixture := basicFixture()
	fixture["stop_times.txt"] = "trip_id,stop_id,stop_sequence,arrival_time,departure_time\n" +
		"T1,A,0,08:00:15,08:00:00\n" +
		"T1,B,1,08:15:00,08:15:00\n" +
		"T2,A,0,08:30:00,08:30:00\n" +
		"T2,B,1,08:45:00,08:45:00\n"

	diag := diagnostics.NewCollector()
	data := buildZip(t, fixture)

	_, trips, _, _, err := LoadFeed("op", data, Config{}, diag)
	require.NoError(t, err)
	assert.NotEmpty(t, diag.Items())

	require.Len(t, trips, 1)
	assert.Equal(t, "op:T2", trips[0].ID)
}

func TestLoadFeedSkipsWholeFeedWhenRequiredFileMissing(t *testing.T) {
	fixture := basicFixture()
	delete(fixture, "stop_times.txt")

	diag := diagnostics.NewCollector()
	data := buildZip(t, fixture)

	stops, trips, routes, shapes, err := LoadFeed("op", data, Config{}, diag)
	require.NoError(t, err)
	assert.Nil(t, stops)
	assert.Nil(t, trips)
	assert.Nil(t, routes)
	assert.Nil(t, shapes)
	assert.Equal(t, 1, diag.Len())
}

func TestLoadFeedSplitsOvertakingTripsIntoSeparateRoutes(t *testing.T) {
	fixture := map[string]string{
		"stops.txt": "stop_id,stop_name,stop_lat,stop_lon\n" +
			"A,Alpha,0.001,0.0\n" +
			"B,Beta,0.0,0.01\n",
		"routes.txt": "route_id,agency_id,route_short_name,route_long_name\n" +
			"R1,AG1,Express,Express Line\n",
		"trips.txt": "route_id,trip_id,shape_id\n" +
			"R1,Local,\n" +
			"R1,Express,\n",
		// Express departs later from A but arrives at B first: an
		// overtake that must force a second routing-route.
		"stop_times.txt": "trip_id,stop_id,stop_sequence,arrival_time,departure_time\n" +
			"Local,A,0,08:00:00,08:00:00\n" +
			"Local,B,1,08:45:00,08:45:00\n" +
			"Express,A,0,08:10:00,08:10:00\n" +
			"Express,B,1,08:20:00,08:20:00\n",
	}

	diag := diagnostics.NewCollector()
	data := buildZip(t, fixture)

	_, _, routes, _, err := LoadFeed("op", data, Config{}, diag)
	require.NoError(t, err)
	require.Len(t, routes, 2)

	total := 0
	for _, r := range routes {
		total += len(r.TripIDs)
	}
	assert.Equal(t, 2, total)
}

func TestLoadFeedFilterByDepartureWindow(t *testing.T) {
	diag := diagnostics.NewCollector()
	data := buildZip(t, basicFixture())

	_, trips, _, _, err := LoadFeed("op", data, Config{FilterEnabled: true, FilterLo: 0, FilterHi: 28900}, diag)
	require.NoError(t, err)
	require.Len(t, trips, 1)
	assert.Equal(t, "op:T1", trips[0].ID)
}

func TestParseGTFSTimeAllowsHourPast23(t *testing.T) {
	s, err := parseGTFSTime("25:30:00")
	require.NoError(t, err)
	assert.Equal(t, int64(25*3600+30*60), int64(s))
}

func TestParseGTFSTimeRejectsBadMinute(t *testing.T) {
	_, err := parseGTFSTime("08:75:00")
	assert.Error(t, err)
}
