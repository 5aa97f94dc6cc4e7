package feedrefresh

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antigravity/transitraptor/internal/feedloader"
	"github.com/antigravity/transitraptor/internal/footpath"
	"github.com/antigravity/transitraptor/internal/timetable"
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

func oneRouteFixture() map[string]string {
	return map[string]string{
		"stops.txt": "stop_id,stop_name,stop_lat,stop_lon\n" +
			"A,Alpha,0.001,0.0\n" +
			"B,Beta,0.0,0.01\n",
		"routes.txt": "route_id,agency_id,route_short_name,route_long_name\n" +
			"R1,AG1,1,Line One\n",
		"trips.txt": "route_id,trip_id,shape_id\n" +
			"R1,T1,\n",
		"stop_times.txt": "trip_id,stop_id,stop_sequence,arrival_time,departure_time\n" +
			"T1,A,0,08:00:00,08:00:00\n" +
			"T1,B,1,08:15:00,08:15:00\n",
	}
}

type fakeFetcher struct {
	operator string
	data     []byte
	err      error
}

func (f *fakeFetcher) Operator() string { return f.operator }
func (f *fakeFetcher) Fetch(ctx context.Context) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.data, nil
}

type fakeInvalidator struct {
	called int
}

func (f *fakeInvalidator) InvalidateAll(ctx context.Context) error {
	f.called++
	return nil
}

func TestBuildStoreMergesOperatorsIntoOneStore(t *testing.T) {
	opA := &fakeFetcher{operator: "opA", data: buildZip(t, oneRouteFixture())}
	opB := &fakeFetcher{operator: "opB", data: buildZip(t, oneRouteFixture())}

	store, diag, err := BuildStore(context.Background(), []Fetcher{opA, opB}, feedloader.Config{}, footpath.DefaultConfig())
	require.NoError(t, err)
	assert.Empty(t, diag.Items())

	assert.Equal(t, 4, store.NumStops())
	_, ok := store.Stop("opA:A")
	assert.True(t, ok)
	_, ok = store.Stop("opB:A")
	assert.True(t, ok)
}

func TestBuildStorePropagatesFetchError(t *testing.T) {
	broken := &fakeFetcher{operator: "opA", err: errors.New("network down")}

	_, _, err := BuildStore(context.Background(), []Fetcher{broken}, feedloader.Config{}, footpath.DefaultConfig())
	require.Error(t, err)
}

func TestRefresherRefreshOnceSwapsHolderAndInvalidatesCache(t *testing.T) {
	empty, err := timetable.Build(nil, nil, nil, nil)
	require.NoError(t, err)
	holder := timetable.NewHolder(empty)

	src := &fakeFetcher{operator: "opA", data: buildZip(t, oneRouteFixture())}
	inv := &fakeInvalidator{}

	r := New(holder, []Fetcher{src}, Config{FeedLoader: feedloader.Config{}, Footpath: footpath.DefaultConfig()}, inv, nil)
	r.refreshOnce(context.Background())

	assert.Equal(t, 1, inv.called)
	assert.Equal(t, 2, holder.Load().NumStops())
}

func TestRefresherRefreshOnceKeepsPreviousStoreOnFetchError(t *testing.T) {
	initial, err := timetable.Build(nil, nil, nil, nil)
	require.NoError(t, err)
	holder := timetable.NewHolder(initial)

	broken := &fakeFetcher{operator: "opA", err: errors.New("network down")}
	r := New(holder, []Fetcher{broken}, Config{FeedLoader: feedloader.Config{}, Footpath: footpath.DefaultConfig()}, nil, nil)
	r.refreshOnce(context.Background())

	assert.Same(t, initial, holder.Load())
}
