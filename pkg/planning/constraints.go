package planning

import (
	"strings"

	"github.com/prospecthq/prospect-engine/pkg/models"
)

// MergeConstraintStrings folds auxiliary constraint strings from an
// authoritative payload into a property's typed constraint list. Each string
// is categorised by substring heuristics and skipped when its category is
// already present, so repeated enrichment passes never duplicate entries.
// Returns the merged list; the input slice is not mutated.
func MergeConstraintStrings(existing []models.PlanningConstraint, raw []string) []models.PlanningConstraint {
	merged := make([]models.PlanningConstraint, len(existing))
	copy(merged, existing)

	present := make(map[models.ConstraintCategory]bool)
	for _, c := range merged {
		present[c.Category] = true
	}

	for _, s := range raw {
		trimmed := strings.TrimSpace(s)
		if trimmed == "" {
			continue
		}
		cat := Categorise(trimmed)
		// "Other" constraints are deduplicated by description instead of
		// category, since unrelated constraints share the category.
		if cat == models.ConstraintOther {
			if hasDescription(merged, trimmed) {
				continue
			}
		} else if present[cat] {
			continue
		}
		merged = append(merged, models.PlanningConstraint{
			Category:    cat,
			Description: trimmed,
		})
		present[cat] = true
	}
	return merged
}

// Categorise maps a free-text constraint string to a typed category.
func Categorise(s string) models.ConstraintCategory {
	lower := strings.ToLower(s)
	switch {
	case strings.Contains(lower, "article 4") || strings.Contains(lower, "article4"):
		return models.ConstraintArticleFour
	case strings.Contains(lower, "conservation"):
		return models.ConstraintConservationArea
	case strings.Contains(lower, "listed"):
		return models.ConstraintListedBuilding
	default:
		return models.ConstraintOther
	}
}

func hasDescription(constraints []models.PlanningConstraint, description string) bool {
	for _, c := range constraints {
		if strings.EqualFold(c.Description, description) {
			return true
		}
	}
	return false
}
