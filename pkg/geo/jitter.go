package geo

import (
	"hash/fnv"

	"github.com/prospecthq/prospect-engine/pkg/models"
)

// Jitter bounds, in degrees. 0.0005-0.001 degrees is roughly 50-110 m, enough
// to stop properties sharing a postcode centroid from rendering as a single
// stacked point.
const (
	jitterMinDeg = 0.0005
	jitterMaxDeg = 0.001
)

// ApplyJitter offsets a postcode centroid by a small displacement derived
// from a stable hash of the seed string (normally the property address).
// The same seed always produces the same offset, so re-running the pipeline
// yields identical coordinates.
func ApplyJitter(centroid models.Location, seed string) models.Location {
	if seed == "" {
		return centroid
	}

	h := fnv.New64a()
	h.Write([]byte(seed))
	sum := h.Sum64()

	// Split the hash into two independent 32-bit halves, one per axis.
	latBits := uint32(sum >> 32)
	lngBits := uint32(sum)

	return models.Location{
		Lat: centroid.Lat + jitterOffset(latBits),
		Lng: centroid.Lng + jitterOffset(lngBits),
	}
}

// jitterOffset maps 32 bits onto [-max, -min] U [min, max] degrees.
func jitterOffset(bits uint32) float64 {
	span := jitterMaxDeg - jitterMinDeg
	magnitude := jitterMinDeg + span*float64(bits>>1)/float64(1<<31)
	if bits&1 == 1 {
		return -magnitude
	}
	return magnitude
}
