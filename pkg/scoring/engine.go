// Package scoring computes the investment deal score and classification for a
// canonical property record. Score is a pure function of the record's current
// fields: no I/O, no hidden state, identical output for identical input.
package scoring

import (
	"math"
	"strings"

	"github.com/prospecthq/prospect-engine/pkg/models"
)

// Result is the full scoring outcome applied back onto the record.
type Result struct {
	DealScore      float64
	Breakdown      models.ScoreBreakdown
	Classification models.Classification
	IsPotentialHMO bool
}

// Score computes the weighted deal score, per-factor breakdown and
// classification from the record's current field values. It must be
// re-invoked whenever any scoring input changes.
func Score(p *models.Property) Result {
	breakdown := models.ScoreBreakdown{
		Size:     sizeScore(p.FloorAreaSqm),
		Location: locationScore(p.City, isRestricted(p)),
		Price:    priceScore(p.City, p.Price),
		Yield:    yieldScore(p),
		Energy:   energyScore(p.EPCRating),
	}

	deal := breakdown.Size*WeightSize +
		breakdown.Location*WeightLocation +
		breakdown.Price*WeightPrice +
		breakdown.Yield*WeightYield +
		breakdown.Energy*WeightEnergy
	deal = math.Round(deal*10) / 10

	return Result{
		DealScore:      deal,
		Breakdown:      breakdown,
		Classification: classify(p, deal),
		IsPotentialHMO: bedrooms(p) >= minHMOBedrooms,
	}
}

// EstimateMonthlyRent returns the rent estimate used by the yield sub-score:
// occupancy (bedrooms + 1, capped) times the city's per-room base rate,
// adjusted up for the best energy ratings and down for the worst. Returns 0
// when bedrooms or the city rate are unknown.
func EstimateMonthlyRent(p *models.Property) float64 {
	beds := bedrooms(p)
	if beds == 0 {
		return 0
	}
	rate, ok := cityRoomRate[cityKey(p.City)]
	if !ok {
		return 0
	}

	occupancy := beds + 1
	if occupancy > maxOccupancy {
		occupancy = maxOccupancy
	}

	rent := float64(occupancy) * rate
	switch strings.ToUpper(p.EPCRating) {
	case "A", "B":
		rent *= 1.10
	case "F", "G":
		rent *= 0.85
	}
	return rent
}

// FloorAreaBand returns the banded category for a floor area.
func FloorAreaBand(sqm float64) string {
	switch {
	case sqm <= 0:
		return ""
	case sqm < 60:
		return "under_60"
	case sqm < 90:
		return "60_90"
	case sqm <= 150:
		return "90_150"
	default:
		return "over_150"
	}
}

func sizeScore(floorArea *float64) float64 {
	if floorArea == nil || *floorArea <= 0 {
		return neutralScore
	}
	switch {
	case *floorArea < 60:
		return 25
	case *floorArea < 90:
		return 70
	case *floorArea <= 150:
		return 100
	default:
		return 85
	}
}

func locationScore(city string, restricted bool) float64 {
	var score float64 = tierBaseScore
	key := cityKey(city)
	switch {
	case highDemandCities[key]:
		score = tierHighScore
	case mediumDemandCities[key]:
		score = tierMedScore
	}
	if restricted {
		score -= restrictedAreaPenalty
	}
	if score < 0 {
		score = 0
	}
	return score
}

func priceScore(city string, price *float64) float64 {
	if price == nil || *price <= 0 {
		return neutralScore
	}
	avg, ok := cityAveragePrice[cityKey(city)]
	if !ok {
		return neutralScore
	}
	ratio := *price / avg
	switch {
	case ratio < 0.70:
		return 100
	case ratio < 0.85:
		return 85
	case ratio < 1.00:
		return 70
	case ratio < 1.15:
		return 55
	default:
		return 35
	}
}

func yieldScore(p *models.Property) float64 {
	if p.Price == nil || *p.Price <= 0 {
		return neutralScore
	}
	rent := EstimateMonthlyRent(p)
	if rent == 0 {
		return neutralScore
	}
	grossYield := rent * 12 / *p.Price
	switch {
	case grossYield >= 0.12:
		return 100
	case grossYield >= 0.10:
		return 85
	case grossYield >= 0.08:
		return 70
	case grossYield >= 0.06:
		return 50
	default:
		return 25
	}
}

func energyScore(rating string) float64 {
	if s, ok := energyScores[strings.ToUpper(rating)]; ok {
		return s
	}
	return neutralScore
}

func classify(p *models.Property, dealScore float64) models.Classification {
	beds := bedrooms(p)
	if beds < minHMOBedrooms || dealScore < minViableScore {
		return models.ClassNotSuitable
	}
	if dealScore >= readyToGoScore &&
		!isRestricted(p) &&
		energyAtLeastC(p.EPCRating) &&
		beds >= readyToGoBedrooms {
		return models.ClassReadyToGo
	}
	return models.ClassValueAdd
}

func energyAtLeastC(rating string) bool {
	switch strings.ToUpper(rating) {
	case "A", "B", "C":
		return true
	default:
		return false
	}
}

func isRestricted(p *models.Property) bool {
	return p.InRestrictedArea != nil && *p.InRestrictedArea
}

func bedrooms(p *models.Property) int {
	if p.Bedrooms == nil {
		return 0
	}
	return *p.Bedrooms
}
