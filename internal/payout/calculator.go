package payout

import (
	"fmt"
	"sort"
)

// Calculator splits a user's gross subscription amount between the gyms they
// visited and platform revenue. Pure arithmetic over the configured constants:
// no I/O, no state, same output for the same input every time. Disputed payouts
// are settled by re-running it over the stored visit records.
type Calculator struct {
	cfg Config
}

func NewCalculator(cfg Config) *Calculator {
	return &Calculator{cfg: cfg}
}

// roundHalfUpBps applies a basis-point fraction to an amount, rounding half up
// to the nearest cent. Round-half-up is the platform-wide rounding policy.
func roundHalfUpBps(amountCents, bps int64) int64 {
	return (amountCents*bps + 5000) / 10000
}

// payoutPerVisit returns the per-visit payout in cents. Unlimited plans pay by
// breadth: the fewer gyms a member spread their visits over, the more each
// visit is worth to those gyms. Tiered plans pay a flat per-credit rate.
func (c *Calculator) payoutPerVisit(planType PlanType, uniqueGyms int) (int64, error) {
	switch planType {
	case PlanTiered:
		return c.cfg.TieredVisitPayoutCents, nil
	case PlanUnlimited:
		switch {
		case uniqueGyms <= 0:
			return 0, nil
		case uniqueGyms == 1:
			return c.cfg.TierOnePayoutCents, nil
		case uniqueGyms == 2:
			return c.cfg.TierTwoPayoutCents, nil
		default:
			return c.cfg.TierThreePlusPayoutCents, nil
		}
	default:
		return 0, &ValidationError{Msg: fmt.Sprintf("unknown plan type %q", planType)}
	}
}

// ComputeCut calculates the gym cuts and platform revenue for one user and one
// period. Platform revenue is derived by subtraction so the parts always sum
// back to the gross amount exactly, residual cents included.
func (c *Calculator) ComputeCut(planType PlanType, grossCents int64, visits []VisitCount) (*CutCalculation, error) {
	if grossCents < 0 {
		return nil, &ValidationError{Msg: fmt.Sprintf("gross amount must not be negative, got %d", grossCents)}
	}

	counts := make(map[int]int, len(visits))
	for _, v := range visits {
		if v.Visits < 0 {
			return nil, &ValidationError{Msg: fmt.Sprintf("visit count for gym %d must not be negative, got %d", v.GymID, v.Visits)}
		}
		if v.Visits == 0 {
			continue
		}
		counts[v.GymID] += v.Visits
	}

	perVisit, err := c.payoutPerVisit(planType, len(counts))
	if err != nil {
		return nil, err
	}

	feeCents := int64(0)
	if c.cfg.PlatformFeeBps > 0 {
		feeCents = roundHalfUpBps(grossCents, c.cfg.PlatformFeeBps)
	}
	netAvailable := grossCents - feeCents

	cuts := make([]GymCut, 0, len(counts))
	var totalGymCut int64
	for gymID, n := range counts {
		amount := perVisit * int64(n)
		cuts = append(cuts, GymCut{GymID: gymID, AmountCents: amount, Visits: n})
		totalGymCut += amount
	}
	sort.Slice(cuts, func(i, j int) bool { return cuts[i].GymID < cuts[j].GymID })

	if totalGymCut > netAvailable {
		return nil, &ConfigurationError{
			GrossCents:       grossCents,
			FeeCents:         feeCents,
			TotalGymCutCents: totalGymCut,
		}
	}

	return &CutCalculation{
		GymCuts:              cuts,
		TotalGymCutCents:     totalGymCut,
		PlatformRevenueCents: grossCents - totalGymCut,
		PlatformFeeCents:     feeCents,
		GrossCents:           grossCents,
		UniqueGyms:           len(counts),
	}, nil
}
