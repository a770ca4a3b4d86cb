package billing

import (
	"strings"
	"unicode"

	"github.com/ManuelReschke/Fulfillment/app/models"
)

// planName returns a display name for a plan, falling back to a title-cased slug.
func planName(plan *models.ServicePlan, slug string) string {
	if plan != nil && strings.TrimSpace(plan.Name) != "" {
		return plan.Name
	}
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return "Your selected plan"
	}
	words := strings.Fields(strings.ReplaceAll(slug, "-", " "))
	for i, w := range words {
		r := []rune(strings.ToLower(w))
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

// tierForPlan returns the tier granted by plan, or "" when it grants none.
func tierForPlan(plan *models.ServicePlan) string {
	if plan == nil {
		return ""
	}
	switch plan.TierKey {
	case models.TierStarter, models.TierProfessional, models.TierEnterprise:
		return plan.TierKey
	default:
		return ""
	}
}

func normalizeStatus(status string) string {
	s := strings.ToLower(strings.TrimSpace(status))
	if s == "" {
		return models.SubscriptionStatusIncomplete
	}
	return s
}
