package hunt

import (
	"fmt"
	"maps"

	"github.com/shopspring/decimal"
)

// Budget is the payout envelope of an event, supplied alongside the node
// graph. TeamCount is fixed when the event launches.
type Budget struct {
	PrizePool int64            `json:"prize_pool"`
	TeamCount int              `json:"team_count"`
	TeamCaps  map[string]int64 `json:"team_caps,omitempty"`
}

// BudgetAllocator caps the lifetime GP each team can hold in its pot.
type BudgetAllocator struct {
	budget Budget
}

func NewBudgetAllocator(b Budget) BudgetAllocator {
	b.TeamCaps = maps.Clone(b.TeamCaps)
	return BudgetAllocator{budget: b}
}

// Cap returns the team's explicit cap when one is configured, otherwise an
// even whole-GP share of the prize pool.
func (a BudgetAllocator) Cap(teamID string) decimal.Decimal {
	if c, ok := a.budget.TeamCaps[teamID]; ok {
		return decimal.NewFromInt(c)
	}
	if a.budget.TeamCount < 1 || a.budget.PrizePool <= 0 {
		return decimal.Zero
	}
	share := decimal.NewFromInt(a.budget.PrizePool).Div(decimal.NewFromInt(int64(a.budget.TeamCount)))
	return share.Floor()
}

func (a BudgetAllocator) Remaining(t *TeamState) decimal.Decimal {
	rem := a.Cap(t.TeamID).Sub(t.CurrentPot)
	if rem.IsNegative() {
		return decimal.Zero
	}
	return rem
}

// Reserve checks that crediting gp keeps the team within its cap. It does
// not mutate the team; the caller credits the pot once every other check
// has passed.
func (a BudgetAllocator) Reserve(t *TeamState, gp int64) error {
	if gp < 0 {
		return fmt.Errorf("gp must be >= 0, got %d", gp)
	}
	next := t.CurrentPot.Add(decimal.NewFromInt(gp))
	limit := a.Cap(t.TeamID)
	if next.GreaterThan(limit) {
		return fmt.Errorf("%w: team %s pot %s + %d exceeds cap %s", ErrBudgetExceeded, t.TeamID, t.CurrentPot, gp, limit)
	}
	return nil
}
