// Package shapeslice extracts the sub-polyline of a shape between two
// stops (the shape-slicer helper, spec.md section 4.3).
package shapeslice

import "github.com/antigravity/transitraptor/internal/model"

// Slice returns the sub-polyline of shape beginning at the point
// closest to from, and ending at the point closest to to. If that
// second match precedes the first, an empty slice is returned, so a
// non-empty result always ends at or after its start. On equal
// distances the earliest point wins. Distance is squared-Euclidean in raw
// degrees, which is sufficient because polyline points are dense
// relative to stop-to-shape offsets.
func Slice(shape []model.LatLon, from, to model.LatLon) []model.LatLon {
	if len(shape) == 0 {
		return nil
	}

	startIdx := 0
	minStartDist := distSq(shape[0], from)
	for i, pt := range shape {
		d := distSq(pt, from)
		if d < minStartDist {
			minStartDist = d
			startIdx = i
		}
	}

	endIdx := 0
	minEndDist := distSq(shape[0], to)
	for i := range shape {
		d := distSq(shape[i], to)
		if d < minEndDist {
			minEndDist = d
			endIdx = i
		}
	}

	if endIdx < startIdx {
		return nil
	}

	out := make([]model.LatLon, endIdx-startIdx+1)
	copy(out, shape[startIdx:endIdx+1])
	return out
}

func distSq(a, b model.LatLon) float64 {
	dLat := a.Lat - b.Lat
	dLon := a.Lon - b.Lon
	return dLat*dLat + dLon*dLon
}
