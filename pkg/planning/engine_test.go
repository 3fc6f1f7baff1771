package planning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/prospecthq/prospect-engine/pkg/models"
)

// centralLondonDataset covers a rough central-London box as a MultiPolygon
// plus a small square polygon around Greenwich.
const centralLondonDataset = `{
	"type": "FeatureCollection",
	"features": [
		{
			"type": "Feature",
			"properties": {"name": "Central London Article 4 Area"},
			"geometry": {
				"type": "MultiPolygon",
				"coordinates": [[[
					[-0.25, 51.45], [0.05, 51.45], [0.05, 51.60], [-0.25, 51.60], [-0.25, 51.45]
				]]]
			}
		},
		{
			"type": "Feature",
			"properties": {"name": "Greenwich Conservation Area"},
			"geometry": {
				"type": "Polygon",
				"coordinates": [[
					[0.00, 51.47], [0.02, 51.47], [0.02, 51.49], [0.00, 51.49], [0.00, 51.47]
				]]
			}
		}
	]
}`

func loadTestDataset(t *testing.T) *FeatureCollection {
	t.Helper()
	fc, err := ParseDataset([]byte(centralLondonDataset), zap.NewNop())
	require.NoError(t, err)
	require.Len(t, fc.Features, 2)
	return fc
}

func TestIsRestricted(t *testing.T) {
	fc := loadTestDataset(t)

	tests := []struct {
		name     string
		lat, lng float64
		inArea   bool
		areaName string
	}{
		{
			name:     "interior point of multipolygon",
			lat:      51.55,
			lng:      -0.10,
			inArea:   true,
			areaName: "Central London Article 4 Area",
		},
		{
			name:   "far outside every feature",
			lat:    53.48,
			lng:    -2.24,
			inArea: false,
		},
		{
			name:     "first containing feature wins",
			lat:      51.48,
			lng:      0.01,
			inArea:   true,
			areaName: "Central London Article 4 Area",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsRestricted(tt.lat, tt.lng, fc)
			assert.Equal(t, tt.inArea, got.InArea)
			assert.Equal(t, tt.areaName, got.AreaName)
		})
	}
}

func TestIsRestricted_NilDataset(t *testing.T) {
	got := IsRestricted(51.5, -0.1, nil)
	assert.False(t, got.InArea)
}

func TestParseDataset_SkipsMalformedGeometry(t *testing.T) {
	data := `{
		"type": "FeatureCollection",
		"features": [
			{"type": "Feature", "properties": {"name": "bad"}, "geometry": {"type": "Point", "coordinates": [0, 0]}},
			{"type": "Feature", "properties": {"name": "worse"}, "geometry": {"type": "Polygon", "coordinates": "nope"}},
			{"type": "Feature", "properties": {"name": "good"}, "geometry": {
				"type": "Polygon",
				"coordinates": [[[0,0],[1,0],[1,1],[0,1],[0,0]]]
			}}
		]
	}`
	fc, err := ParseDataset([]byte(data), zap.NewNop())
	require.NoError(t, err)
	require.Len(t, fc.Features, 1)
	assert.Equal(t, "good", fc.Features[0].Name())

	got := IsRestricted(0.5, 0.5, fc)
	assert.True(t, got.InArea)
}

func TestMergeConstraintStrings(t *testing.T) {
	existing := []models.PlanningConstraint{
		{Category: models.ConstraintConservationArea, Description: "Didsbury Conservation Area"},
	}

	merged := MergeConstraintStrings(existing, []string{
		"Conservation area: Chorlton Green", // category already present, dropped
		"Grade II Listed Building",
		"Article 4 Direction (HMO)",
		"Tree preservation order",
		"Tree Preservation Order", // duplicate other, case-insensitive
		"  ",
	})

	require.Len(t, merged, 4)
	assert.Equal(t, models.ConstraintConservationArea, merged[0].Category)
	assert.Equal(t, models.ConstraintListedBuilding, merged[1].Category)
	assert.Equal(t, models.ConstraintArticleFour, merged[2].Category)
	assert.Equal(t, models.ConstraintOther, merged[3].Category)

	// Input slice untouched.
	assert.Len(t, existing, 1)
}

func TestCategorise(t *testing.T) {
	tests := []struct {
		input    string
		expected models.ConstraintCategory
	}{
		{"Article 4 Direction", models.ConstraintArticleFour},
		{"article4 direction", models.ConstraintArticleFour},
		{"Northenden Conservation Area", models.ConstraintConservationArea},
		{"Grade II* Listed", models.ConstraintListedBuilding},
		{"Flood zone 3", models.ConstraintOther},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, Categorise(tt.input), "input %q", tt.input)
	}
}
