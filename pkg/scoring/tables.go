package scoring

import "strings"

// Factor weights. They sum to 1.0; the deal score is the weighted sum of the
// five sub-scores.
const (
	WeightSize     = 0.20
	WeightLocation = 0.25
	WeightPrice    = 0.20
	WeightYield    = 0.25
	WeightEnergy   = 0.10
)

// neutralScore is used for any sub-score whose inputs are missing. Missing
// data never fails a scoring pass.
const neutralScore = 50

// restrictedAreaPenalty is subtracted from the location score when the
// property sits inside a planning-restricted area.
const restrictedAreaPenalty = 25

// Demand-tier scores by city. Cities absent from both maps score the base
// tier.
const (
	tierHighScore = 90
	tierMedScore  = 75
	tierBaseScore = 60
)

var highDemandCities = map[string]bool{
	"london":     true,
	"manchester": true,
	"birmingham": true,
	"leeds":      true,
	"bristol":    true,
}

var mediumDemandCities = map[string]bool{
	"liverpool":  true,
	"sheffield":  true,
	"nottingham": true,
	"newcastle":  true,
	"leicester":  true,
}

// cityAveragePrice is the reference purchase price per city, used for the
// price sub-score. Values are periodically refreshed from portal data.
var cityAveragePrice = map[string]float64{
	"london":     550000,
	"manchester": 280000,
	"birmingham": 240000,
	"leeds":      230000,
	"bristol":    350000,
	"liverpool":  180000,
	"sheffield":  190000,
	"nottingham": 200000,
	"newcastle":  180000,
	"leicester":  210000,
}

// cityRoomRate is the per-room monthly rent base used for the yield estimate.
var cityRoomRate = map[string]float64{
	"london":     950,
	"manchester": 600,
	"birmingham": 550,
	"leeds":      550,
	"bristol":    700,
	"liverpool":  480,
	"sheffield":  470,
	"nottingham": 500,
	"newcastle":  480,
	"leicester":  480,
}

// energyScores maps EPC rating letters to sub-scores.
var energyScores = map[string]float64{
	"A": 100,
	"B": 85,
	"C": 70,
	"D": 55,
	"E": 40,
	"F": 25,
	"G": 10,
}

// maxOccupancy caps the occupancy estimate used for rent: bedrooms + 1
// sharers, at most 6.
const maxOccupancy = 6

// Classification gates.
const (
	// minHMOBedrooms is the bedroom count below which a property cannot be
	// let as an HMO at all.
	minHMOBedrooms = 3
	// minViableScore is the deal score below which a property is not worth
	// pursuing regardless of other gates.
	minViableScore = 50
	// readyToGoScore is the deal score required for the top tier.
	readyToGoScore = 65
	// readyToGoBedrooms is the bedroom count required for the top tier.
	readyToGoBedrooms = 4
)

func cityKey(city string) string {
	return strings.ToLower(strings.TrimSpace(city))
}
