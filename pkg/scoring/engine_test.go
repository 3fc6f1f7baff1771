package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prospecthq/prospect-engine/pkg/models"
)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }
func boolPtr(v bool) *bool        { return &v }

func TestScore_ManchesterFiveBed(t *testing.T) {
	p := &models.Property{
		City:             "Manchester",
		Bedrooms:         intPtr(5),
		Price:            floatPtr(300000),
		EPCRating:        "C",
		InRestrictedArea: boolPtr(false),
	}

	result := Score(p)

	assert.Equal(t, models.ClassReadyToGo, result.Classification)
	assert.GreaterOrEqual(t, result.DealScore, 60.0)
	assert.LessOrEqual(t, result.DealScore, 100.0)
	assert.True(t, result.IsPotentialHMO)
}

func TestScore_TwoBedroomsNeverHMO(t *testing.T) {
	p := &models.Property{
		City:         "London",
		Bedrooms:     intPtr(2),
		Price:        floatPtr(250000),
		EPCRating:    "A",
		FloorAreaSqm: floatPtr(120),
	}

	result := Score(p)

	assert.False(t, result.IsPotentialHMO)
	assert.Equal(t, models.ClassNotSuitable, result.Classification)
}

func TestScore_Pure(t *testing.T) {
	p := &models.Property{
		City:             "Leeds",
		Bedrooms:         intPtr(4),
		Price:            floatPtr(220000),
		EPCRating:        "D",
		FloorAreaSqm:     floatPtr(110),
		InRestrictedArea: boolPtr(true),
	}

	first := Score(p)
	second := Score(p)

	assert.Equal(t, first.DealScore, second.DealScore)
	assert.Equal(t, first.Breakdown, second.Breakdown)
	assert.Equal(t, first.Classification, second.Classification)
}

func TestScore_RestrictedAreaBlocksTopTier(t *testing.T) {
	base := models.Property{
		City:         "Manchester",
		Bedrooms:     intPtr(5),
		Price:        floatPtr(250000),
		EPCRating:    "B",
		FloorAreaSqm: floatPtr(120),
	}

	unrestricted := base
	unrestricted.InRestrictedArea = boolPtr(false)
	r1 := Score(&unrestricted)
	require.Equal(t, models.ClassReadyToGo, r1.Classification)

	restricted := base
	restricted.InRestrictedArea = boolPtr(true)
	r2 := Score(&restricted)
	assert.Equal(t, models.ClassValueAdd, r2.Classification)
	assert.Less(t, r2.Breakdown.Location, r1.Breakdown.Location)
}

func TestScore_EnergyGate(t *testing.T) {
	p := &models.Property{
		City:             "Manchester",
		Bedrooms:         intPtr(5),
		Price:            floatPtr(250000),
		EPCRating:        "D",
		FloorAreaSqm:     floatPtr(120),
		InRestrictedArea: boolPtr(false),
	}

	result := Score(p)
	// Good score but EPC worse than C keeps it out of ready_to_go.
	assert.GreaterOrEqual(t, result.DealScore, float64(readyToGoScore))
	assert.Equal(t, models.ClassValueAdd, result.Classification)
}

func TestScore_MissingInputsAreNeutral(t *testing.T) {
	p := &models.Property{
		City:     "Smalltown",
		Bedrooms: intPtr(4),
	}

	result := Score(p)

	assert.Equal(t, float64(neutralScore), result.Breakdown.Size)
	assert.Equal(t, float64(neutralScore), result.Breakdown.Price)
	assert.Equal(t, float64(neutralScore), result.Breakdown.Yield)
	assert.Equal(t, float64(neutralScore), result.Breakdown.Energy)
	assert.Equal(t, float64(tierBaseScore), result.Breakdown.Location)
}

func TestEstimateMonthlyRent(t *testing.T) {
	tests := []struct {
		name     string
		property models.Property
		expected float64
	}{
		{
			name:     "occupancy capped at six",
			property: models.Property{City: "Manchester", Bedrooms: intPtr(8), EPCRating: "C"},
			expected: 6 * 600,
		},
		{
			name:     "top rating uplift",
			property: models.Property{City: "Leeds", Bedrooms: intPtr(3), EPCRating: "A"},
			expected: 4 * 550 * 1.10,
		},
		{
			name:     "bottom rating discount",
			property: models.Property{City: "Leeds", Bedrooms: intPtr(3), EPCRating: "G"},
			expected: 4 * 550 * 0.85,
		},
		{
			name:     "unknown city",
			property: models.Property{City: "Atlantis", Bedrooms: intPtr(3)},
			expected: 0,
		},
		{
			name:     "no bedrooms",
			property: models.Property{City: "Manchester"},
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, EstimateMonthlyRent(&tt.property), 0.001)
		})
	}
}

func TestFloorAreaBand(t *testing.T) {
	assert.Equal(t, "", FloorAreaBand(0))
	assert.Equal(t, "under_60", FloorAreaBand(45))
	assert.Equal(t, "60_90", FloorAreaBand(75))
	assert.Equal(t, "90_150", FloorAreaBand(120))
	assert.Equal(t, "over_150", FloorAreaBand(200))
}
