package provisioning

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ManuelReschke/Fulfillment/app/models"
)

const DefaultOSTemplate = "ubuntu-22.04"

// TierSpec is the resource size sold with a subscription tier.
type TierSpec struct {
	CPUCores int
	RAMMB    int
	DiskGB   int
}

var tierSpecs = map[string]TierSpec{
	models.TierStarter:      {CPUCores: 1, RAMMB: 1024, DiskGB: 20},
	models.TierProfessional: {CPUCores: 2, RAMMB: 4096, DiskGB: 80},
	models.TierEnterprise:   {CPUCores: 4, RAMMB: 8192, DiskGB: 200},
}

// SpecForTier returns the resource size for tier. Tiers without resources
// (free, unknown) report false.
func SpecForTier(tier string) (TierSpec, bool) {
	spec, ok := tierSpecs[tier]
	return spec, ok
}

// HasResources reports whether buying plan includes a provisioned resource.
func HasResources(plan *models.ServicePlan) bool {
	if plan == nil {
		return false
	}
	_, ok := SpecForTier(plan.TierKey)
	return ok
}

var hostnameInvalid = regexp.MustCompile(`[^a-z0-9-]+`)

// Hostname builds vps-<order id>-<plan slug> as a valid DNS label.
func Hostname(orderID uint, planSlug string) string {
	slug := hostnameInvalid.ReplaceAllString(strings.ToLower(planSlug), "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "plan"
	}
	name := fmt.Sprintf("vps-%d-%s", orderID, slug)
	if len(name) > 63 {
		name = strings.TrimRight(name[:63], "-")
	}
	return name
}

// SpecFor resolves the provider Spec for an order's plan.
func SpecFor(order *models.Order) (Spec, error) {
	if order == nil || order.ServicePlan == nil {
		return Spec{}, fmt.Errorf("order has no service plan")
	}
	tier, ok := SpecForTier(order.ServicePlan.TierKey)
	if !ok {
		return Spec{}, fmt.Errorf("plan %s (tier %s) has no resource spec", order.ServicePlan.Slug, order.ServicePlan.TierKey)
	}
	return Spec{
		Hostname:   Hostname(order.ID, order.ServicePlan.Slug),
		CPUCores:   tier.CPUCores,
		RAMMB:      tier.RAMMB,
		DiskGB:     tier.DiskGB,
		OSTemplate: DefaultOSTemplate,
		Labels: map[string]string{
			"order_id": fmt.Sprintf("%d", order.ID),
			"plan":     order.ServicePlan.Slug,
			"tier":     order.ServicePlan.TierKey,
		},
	}, nil
}
