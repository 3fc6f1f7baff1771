package planning

// Result is the outcome of a restricted-area check.
type Result struct {
	InArea   bool
	AreaName string
}

// IsRestricted evaluates a coordinate against every feature in the dataset.
// The first containing feature determines the result and supplies the area
// name. A point exactly on a ring vertex is an open edge case of ray casting:
// it may report either side, and callers should not rely on it.
func IsRestricted(lat, lng float64, fc *FeatureCollection) Result {
	if fc == nil {
		return Result{}
	}
	for i := range fc.Features {
		if geometryContains(&fc.Features[i].Geometry, lat, lng) {
			return Result{InArea: true, AreaName: fc.Features[i].Name()}
		}
	}
	return Result{}
}

// geometryContains tests a Polygon or MultiPolygon. A MultiPolygon contains
// the point if any ring of any constituent polygon contains it.
func geometryContains(g *Geometry, lat, lng float64) bool {
	switch g.Type {
	case "Polygon":
		return polygonContains(g.PolygonRings, lat, lng)
	case "MultiPolygon":
		for _, rings := range g.MultiPolygons {
			if polygonContains(rings, lat, lng) {
				return true
			}
		}
	}
	return false
}

func polygonContains(rings [][][2]float64, lat, lng float64) bool {
	for _, ring := range rings {
		if ringContains(ring, lat, lng) {
			return true
		}
	}
	return false
}

// ringContains runs the ray-casting test: cast a horizontal ray east from the
// point and count boundary crossings; an odd count means inside. Positions
// are GeoJSON order, [lng, lat].
func ringContains(ring [][2]float64, lat, lng float64) bool {
	if len(ring) < 3 {
		return false
	}
	inside := false
	j := len(ring) - 1
	for i := 0; i < len(ring); i++ {
		xi, yi := ring[i][0], ring[i][1]
		xj, yj := ring[j][0], ring[j][1]
		if (yi > lat) != (yj > lat) &&
			lng < (xj-xi)*(lat-yi)/(yj-yi)+xi {
			inside = !inside
		}
		j = i
	}
	return inside
}
