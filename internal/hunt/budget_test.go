package hunt

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestBudgetCap(t *testing.T) {
	a := NewBudgetAllocator(Budget{PrizePool: 10_000, TeamCount: 3, TeamCaps: map[string]int64{"vip": 500}})
	if got := a.Cap("team-1"); !got.Equal(decimal.NewFromInt(3333)) {
		t.Fatalf("even share=%s want 3333", got)
	}
	if got := a.Cap("vip"); !got.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("override=%s want 500", got)
	}
	if got := NewBudgetAllocator(Budget{PrizePool: 10_000}).Cap("team-1"); !got.IsZero() {
		t.Fatalf("cap without teams=%s want 0", got)
	}
}

func TestBudgetReserveBoundary(t *testing.T) {
	a := NewBudgetAllocator(Budget{PrizePool: 2000, TeamCount: 2})
	team := &TeamState{TeamID: "team-1", CurrentPot: decimal.NewFromInt(600)}

	if err := a.Reserve(team, 400); err != nil {
		t.Fatalf("reserve up to cap: %v", err)
	}
	if err := a.Reserve(team, 401); !errors.Is(err, ErrBudgetExceeded) {
		t.Fatalf("expected ErrBudgetExceeded, got %v", err)
	}
	if !team.CurrentPot.Equal(decimal.NewFromInt(600)) {
		t.Fatalf("reserve mutated pot: %s", team.CurrentPot)
	}
	if got := a.Remaining(team); !got.Equal(decimal.NewFromInt(400)) {
		t.Fatalf("remaining=%s want 400", got)
	}
	if err := a.Reserve(team, -1); err == nil {
		t.Fatalf("expected error for negative gp")
	}
}

func TestBudgetCapsOverrideIsCopied(t *testing.T) {
	caps := map[string]int64{"team-1": 100}
	a := NewBudgetAllocator(Budget{PrizePool: 1000, TeamCount: 1, TeamCaps: caps})
	caps["team-1"] = 900
	if got := a.Cap("team-1"); !got.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("cap=%s want 100", got)
	}
}
