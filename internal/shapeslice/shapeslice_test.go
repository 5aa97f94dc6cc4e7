package shapeslice

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/antigravity/transitraptor/internal/model"
)

func pt(lat, lon float64) model.LatLon { return model.LatLon{Lat: lat, Lon: lon} }

func TestSliceReturnsSubPolylineInOrder(t *testing.T) {
	shape := []model.LatLon{pt(0, 0), pt(1, 0), pt(2, 0), pt(3, 0), pt(4, 0)}

	got := Slice(shape, pt(1.1, 0), pt(3.1, 0))
	assert.Equal(t, []model.LatLon{pt(1, 0), pt(2, 0), pt(3, 0)}, got)
}

func TestSliceEmptyWhenToPrecedesFrom(t *testing.T) {
	shape := []model.LatLon{pt(0, 0), pt(1, 0), pt(2, 0), pt(3, 0)}

	got := Slice(shape, pt(2.1, 0), pt(0.1, 0))
	assert.Empty(t, got)
}

func TestSliceEmptyShape(t *testing.T) {
	assert.Empty(t, Slice(nil, pt(0, 0), pt(1, 0)))
}

func TestSliceSinglePoint(t *testing.T) {
	shape := []model.LatLon{pt(5, 5)}
	got := Slice(shape, pt(5, 5), pt(5, 5))
	assert.Equal(t, shape, got)
}
