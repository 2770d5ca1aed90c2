// Package budget implements the pure tick-budget pacing model (spec
// §4.1): given a game's current state and wall time, how much a single
// tick's batch may spend.
package budget

import (
	"math"
	"time"

	"luckengine/internal/domain"
	"luckengine/internal/money"

	"github.com/shopspring/decimal"
)

// TickBudget computes B_tick for game g at wall time now.
//
//	if g.status != ACTIVE OR remainingBudget <= 0 OR now >= endTime: 0
//	elif secondsUntilEnd <= 0:                                       remainingBudget
//	else: per_second = remainingBudget / secondsUntilEnd
//	      B_tick = per_second * volatilityFactor, capped at remainingBudget
//
// The cap at remainingBudget is unconditional, per the explicit formula
// this spec mandates (the Java original this was distilled from only
// caps in the secondsUntilEnd<=0 branch; here the cap always applies).
func TickBudget(g *domain.Game, now time.Time) decimal.Decimal {
	if g.Status != domain.GameActive {
		return money.Zero
	}
	if g.RemainingBudget.LessThanOrEqual(money.Zero) {
		return money.Zero
	}
	if !now.Before(g.EndTime) {
		return money.Zero
	}

	secondsUntilEnd := math.Floor(g.EndTime.Sub(now).Seconds())
	if secondsUntilEnd <= 0 {
		return g.RemainingBudget
	}

	perSecond := money.DivRound(g.RemainingBudget, decimal.NewFromFloat(secondsUntilEnd))
	volatility := decimal.NewFromFloat(g.VolatilityFactor)
	tickBudget := money.Round(perSecond.Mul(volatility))

	if tickBudget.GreaterThan(g.RemainingBudget) {
		return g.RemainingBudget
	}
	if tickBudget.LessThan(money.Zero) {
		return money.Zero
	}
	return tickBudget
}
