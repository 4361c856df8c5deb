package ratelimit

import (
	"strings"

	"github.com/stockroomhq/inventory-gateway/internal/config"
	"github.com/stockroomhq/inventory-gateway/internal/models"
)

const defaultFreeCeiling = 100

// Hourly sustained ceilings by subscription plan. Unknown plans fall back
// to the free ceiling so a misconfigured tenant is throttled, not unbounded.
type PlanCeilings struct {
	perHour  map[string]int
	fallback int
}

func NewPlanCeilings(plans []config.PlanLimit) *PlanCeilings {
	p := &PlanCeilings{
		perHour:  make(map[string]int, len(plans)),
		fallback: defaultFreeCeiling,
	}

	for _, plan := range plans {
		p.perHour[strings.ToLower(plan.Plan)] = plan.RequestsPerHour
	}

	if free, ok := p.perHour[models.PlanFree]; ok {
		p.fallback = free
	}

	return p
}

func (p *PlanCeilings) Ceiling(plan string) int {
	if limit, ok := p.perHour[strings.ToLower(plan)]; ok {
		return limit
	}
	return p.fallback
}
