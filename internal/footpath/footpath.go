// Package footpath computes walking transfer edges between nearby
// stops (component C). Stops are bucketed into a uniform
// latitude/longitude grid whose cell edge is approximately the
// configured walking radius, so that only a stop's own cell and its
// eight neighbours need to be scanned for candidates.
package footpath

import "math"

const earthRadiusMeters = 6371000.0

// Config holds the tunables from spec.md section 6.
type Config struct {
	// RadiusMeters is the maximum walking distance for a footpath.
	RadiusMeters float64
	// WalkSpeedMPS is the assumed walking speed in meters/second.
	WalkSpeedMPS float64
	// IncludeSelfLoops materializes a zero-length self-footpath for
	// every stop. Off by default; spec.md says a stop has a
	// self-footpath "only if explicitly materialised by callers".
	IncludeSelfLoops bool
}

func DefaultConfig() Config {
	return Config{
		RadiusMeters: 200,
		WalkSpeedMPS: 1.1,
	}
}

// StopCoord is the minimal view of a stop the builder needs: a
// unique ID and its coordinates. Kept separate from model.Stop so the
// builder can be exercised in isolation from the rest of the
// timetable.
type StopCoord struct {
	ID  string
	Lat float64
	Lon float64
}

// Edge is one directional footpath edge.
type Edge struct {
	From     string
	To       string
	Duration int64 // seconds
}

// gridCell edge size, in degrees, chosen so that a cell is
// approximately cfg.RadiusMeters across at the equator. Longitude
// degrees shrink with latitude, so away from the equator a cell spans
// only about RadiusMeters*cos(lat) east-west; two stops within the
// radius can then lie two longitude cells apart, outside the scanned
// 3x3 neighbourhood, and get no footpath.
func cellSizeDegrees(radiusMeters float64) float64 {
	// 1 degree of latitude is ~111,320 meters.
	return radiusMeters / 111320.0
}

type cellKey struct {
	x, y int
}

func cellOf(lat, lon, size float64) cellKey {
	return cellKey{
		x: int(math.Floor(lat / size)),
		y: int(math.Floor(lon / size)),
	}
}

// Build computes, for every pair of distinct stops within cfg.RadiusMeters
// of each other, a pair of directional footpath edges (one in each
// direction, equal duration). The returned edges are grouped by
// neither source nor sorted; callers attach them to their owning
// stops.
func Build(stops []StopCoord, cfg Config) []Edge {
	if cfg.RadiusMeters <= 0 {
		cfg.RadiusMeters = DefaultConfig().RadiusMeters
	}
	if cfg.WalkSpeedMPS <= 0 {
		cfg.WalkSpeedMPS = DefaultConfig().WalkSpeedMPS
	}

	size := cellSizeDegrees(cfg.RadiusMeters)
	grid := make(map[cellKey][]int)
	for i, s := range stops {
		k := cellOf(s.Lat, s.Lon, size)
		grid[k] = append(grid[k], i)
	}

	var edges []Edge
	seen := make(map[[2]int]bool)

	for i, s := range stops {
		k := cellOf(s.Lat, s.Lon, size)
		for dx := -1; dx <= 1; dx++ {
			for dy := -1; dy <= 1; dy++ {
				neighborKey := cellKey{x: k.x + dx, y: k.y + dy}
				for _, j := range grid[neighborKey] {
					if i == j {
						continue
					}
					pairKey := [2]int{i, j}
					if seen[pairKey] {
						continue
					}
					seen[pairKey] = true

					other := stops[j]
					dist := Haversine(s.Lat, s.Lon, other.Lat, other.Lon)
					if dist > cfg.RadiusMeters {
						continue
					}
					duration := int64(math.Ceil(dist / cfg.WalkSpeedMPS))
					edges = append(edges, Edge{From: s.ID, To: other.ID, Duration: duration})
				}
			}
		}
	}

	if cfg.IncludeSelfLoops {
		for _, s := range stops {
			edges = append(edges, Edge{From: s.ID, To: s.ID, Duration: 0})
		}
	}

	return edges
}

// Haversine returns the great-circle distance in meters between two
// lat/lon points given in decimal degrees.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}
