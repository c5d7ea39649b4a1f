package hunt

import (
	"errors"
	"slices"
	"testing"
)

func TestCompleteNodeCreditsRewardsAndUnlocks(t *testing.T) {
	e := testEngine(t)
	team := testTeam(e)
	if got := team.AvailableNodes.Sorted(); !slices.Equal(got, []string{"start"}) {
		t.Fatalf("new team available=%v want [start]", got)
	}

	out, err := e.CompleteNode(team, Completion{NodeID: "start", Actor: "alice", Proof: "https://imgur.com/start.png"})
	if err != nil {
		t.Fatalf("complete start: %v", err)
	}
	if !slices.Equal(out.NewlyAvailable, []string{"a", "b"}) {
		t.Fatalf("newly available=%v want [a b]", out.NewlyAvailable)
	}

	out, err = e.CompleteNode(team, Completion{NodeID: "a", Actor: "alice"})
	if err != nil {
		t.Fatalf("complete a: %v", err)
	}
	if out.GPDelta != 1000 || team.CurrentPot.IntPart() != 1000 {
		t.Fatalf("gp delta=%d pot=%s want 1000", out.GPDelta, team.CurrentPot)
	}
	if team.KeyCount("red") != 2 {
		t.Fatalf("red keys=%d want 2", team.KeyCount("red"))
	}
	if len(team.ActiveBuffs) != 1 || team.ActiveBuffs[0].Name != "Slayer's Edge" {
		t.Fatalf("unexpected buffs %+v", team.ActiveBuffs)
	}
	if team.ActiveBuffs[0].ID == "slayer-edge" {
		t.Fatalf("granted buff should carry an instance id, got definition id")
	}
	// m unlocks on either parent; c needs both.
	if !slices.Equal(out.NewlyAvailable, []string{"inn", "m"}) {
		t.Fatalf("newly available=%v want [inn m]", out.NewlyAvailable)
	}
	if len(team.Completions) != 2 || team.Completions[1].NodeID != "a" || team.Completions[1].BuffsGranted[0] != team.ActiveBuffs[0].ID {
		t.Fatalf("completion ledger does not track granted buff: %+v", team.Completions)
	}

	mustComplete(t, e, team, "b")
	if got := team.AvailableNodes.Sorted(); !slices.Equal(got, []string{"c", "inn", "m"}) {
		t.Fatalf("available=%v want [c inn m]", got)
	}
}

func TestCompleteNodeRejectsLockedAndRepeatedNodes(t *testing.T) {
	e := testEngine(t)
	team := testTeam(e)

	if _, err := e.CompleteNode(team, Completion{NodeID: "a"}); !errors.Is(err, ErrNodeLocked) {
		t.Fatalf("expected ErrNodeLocked, got %v", err)
	}
	if len(team.Completions) != 0 || team.CompletedNodes.Has("a") {
		t.Fatalf("rejected completion mutated the team")
	}

	mustComplete(t, e, team, "start")
	_, err := e.CompleteNode(team, Completion{NodeID: "start"})
	if !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("expected ErrAlreadyCompleted, got %v", err)
	}
	if team.KeyCount("red") != 1 {
		t.Fatalf("retried submission double-credited keys: red=%d", team.KeyCount("red"))
	}

	if _, err := e.CompleteNode(team, Completion{NodeID: "nowhere"}); !errors.Is(err, ErrNodeNotFound) {
		t.Fatalf("expected ErrNodeNotFound, got %v", err)
	}
}

func TestCompleteNodeEnforcesBudget(t *testing.T) {
	e := NewEngine(testGraph(t), Budget{PrizePool: 20_000, TeamCount: 2, TeamCaps: map[string]int64{"team-1": 1200}})
	team := testTeam(e)
	mustComplete(t, e, team, "start", "a")

	_, err := e.CompleteNode(team, Completion{NodeID: "b"})
	if !errors.Is(err, ErrBudgetExceeded) {
		t.Fatalf("expected ErrBudgetExceeded, got %v", err)
	}
	if !IsFatal(err) {
		t.Fatalf("budget errors must be flagged fatal")
	}
	if team.CompletedNodes.Has("b") || team.CurrentPot.IntPart() != 1000 || team.KeyCount("blue") != 0 {
		t.Fatalf("over-budget completion partially applied: pot=%s keys=%v", team.CurrentPot, team.KeysHeld)
	}
}

func TestUncompleteNodeRelocksOnlyLostPaths(t *testing.T) {
	e := testEngine(t)
	team := testTeam(e)
	mustComplete(t, e, team, "start", "a", "b")

	out, err := e.UncompleteNode(team, "a", "admin-1")
	if err != nil {
		t.Fatalf("uncomplete a: %v", err)
	}
	// c needed a, inn only had a; m is still reachable through b.
	if !slices.Equal(out.Relocked, []string{"c", "inn"}) {
		t.Fatalf("relocked=%v want [c inn]", out.Relocked)
	}
	if e.Graph().Status(team.CompletedNodes, "m") != StatusAvailable {
		t.Fatalf("m should stay available through b")
	}
	if e.Graph().Status(team.CompletedNodes, "a") != StatusAvailable {
		t.Fatalf("a should be available again after reversal")
	}
	if team.CurrentPot.IntPart() != 500 {
		t.Fatalf("pot=%s want 500", team.CurrentPot)
	}
	if team.KeyCount("red") != 1 || team.KeyCount("blue") != 2 {
		t.Fatalf("keys after reversal=%v want red:1 blue:2", team.KeysHeld)
	}
	for _, b := range team.ActiveBuffs {
		if b.Name == "Slayer's Edge" {
			t.Fatalf("buff granted by the reversed completion is still held")
		}
	}
	last := team.Completions[len(team.Completions)-1]
	if last.Kind != KindReversal || last.ReversalOf != team.Completions[1].ID || last.Actor != "admin-1" {
		t.Fatalf("reversal not recorded as compensating entry: %+v", last)
	}
	if len(team.Completions) != 4 {
		t.Fatalf("completion ledger should be append-only, got %d entries", len(team.Completions))
	}
}

func TestUncompleteNodeNeverRelocksCompletedNodes(t *testing.T) {
	e := testEngine(t)
	team := testTeam(e)
	mustComplete(t, e, team, "start", "a", "b", "c")

	out, err := e.UncompleteNode(team, "a", "admin-1")
	if err != nil {
		t.Fatalf("uncomplete a: %v", err)
	}
	if !team.CompletedNodes.Has("c") {
		t.Fatalf("completed node c was re-locked")
	}
	if slices.Contains(out.Relocked, "c") {
		t.Fatalf("c reported as re-locked: %v", out.Relocked)
	}
}

func TestUncompleteThenCompleteRestoresEquivalentState(t *testing.T) {
	e := testEngine(t)
	team := testTeam(e)
	mustComplete(t, e, team, "start", "a", "b")

	pot := team.CurrentPot
	keys := slices.Clone(team.KeysHeld)
	available := team.AvailableNodes.Sorted()
	buffCount := len(team.ActiveBuffs)

	if _, err := e.UncompleteNode(team, "b", "admin-1"); err != nil {
		t.Fatalf("uncomplete: %v", err)
	}
	mustComplete(t, e, team, "b")

	if !team.CurrentPot.Equal(pot) {
		t.Fatalf("pot=%s want %s", team.CurrentPot, pot)
	}
	if !slices.Equal(team.KeysHeld, keys) {
		t.Fatalf("keys=%v want %v", team.KeysHeld, keys)
	}
	if got := team.AvailableNodes.Sorted(); !slices.Equal(got, available) {
		t.Fatalf("available=%v want %v", got, available)
	}
	if len(team.ActiveBuffs) != buffCount {
		t.Fatalf("buffs=%d want %d", len(team.ActiveBuffs), buffCount)
	}
}

func TestUncompleteRecordsKeysAlreadySpent(t *testing.T) {
	e := testEngine(t)
	team := testTeam(e)
	mustComplete(t, e, team, "start", "a")
	if _, err := e.PurchaseReward(team, Purchase{NodeID: "inn", RewardID: "r-red", Caller: "bob"}); err != nil {
		t.Fatalf("purchase: %v", err)
	}

	if _, err := e.UncompleteNode(team, "a", "admin-1"); err != nil {
		t.Fatalf("uncomplete: %v", err)
	}
	last := team.Completions[len(team.Completions)-1]
	if len(last.KeysMissing) != 1 || last.KeysMissing[0] != (KeyStack{Color: "red", Quantity: 1}) {
		t.Fatalf("missing keys=%v want red:1", last.KeysMissing)
	}
	// 1000 from a and 300 from the inn; only a's GP is reversed.
	if team.CurrentPot.IntPart() != 300 {
		t.Fatalf("pot=%s want 300", team.CurrentPot)
	}
}

func TestUncompleteNodeRequiresCompletion(t *testing.T) {
	e := testEngine(t)
	team := testTeam(e)
	if _, err := e.UncompleteNode(team, "start", "admin-1"); !errors.Is(err, ErrNotCompleted) {
		t.Fatalf("expected ErrNotCompleted, got %v", err)
	}
}

func TestUncompleteRecordsBuffsAlreadySpent(t *testing.T) {
	e := testEngine(t)
	team := testTeam(e)
	mustComplete(t, e, team, "start", "b")
	surge := heldBuff(t, team, "XP Surge")
	for _, node := range []string{"a", "m"} {
		if _, err := e.ApplyBuff(team, node, surge, "bob"); err != nil {
			t.Fatalf("apply on %s: %v", node, err)
		}
	}

	out, err := e.UncompleteNode(team, "b", "admin-1")
	if err != nil {
		t.Fatalf("uncomplete: %v", err)
	}
	last := team.Completions[len(team.Completions)-1]
	if len(last.BuffsGranted) != 0 || !slices.Equal(last.BuffsMissing, []string{surge}) {
		t.Fatalf("reversal buffs removed=%v missing=%v want missing [%s]", last.BuffsGranted, last.BuffsMissing, surge)
	}
	if !slices.Equal(out.Restored, []string{"a", "m"}) || !slices.Equal(last.Restored, out.Restored) {
		t.Fatalf("restored=%v recorded=%v want [a m]", out.Restored, last.Restored)
	}
	if len(team.AppliedBuffs) != 0 {
		t.Fatalf("reductions from the revoked buff remain: %v", team.AppliedBuffs)
	}
	a, _ := e.Graph().Node("a")
	if got := team.Requirement(a); got != 100 {
		t.Fatalf("requirement=%d want 100", got)
	}
	if len(team.BuffHistory) != 2 {
		t.Fatalf("usage history should be kept, got %d entries", len(team.BuffHistory))
	}
}

func TestUncompleteKeepsReductionsOnCompletedNodes(t *testing.T) {
	e := testEngine(t)
	team := testTeam(e)
	mustComplete(t, e, team, "start", "b")
	surge := heldBuff(t, team, "XP Surge")
	if _, err := e.ApplyBuff(team, "a", surge, "bob"); err != nil {
		t.Fatalf("apply: %v", err)
	}
	mustComplete(t, e, team, "a")

	out, err := e.UncompleteNode(team, "b", "admin-1")
	if err != nil {
		t.Fatalf("uncomplete: %v", err)
	}
	if len(out.Restored) != 0 {
		t.Fatalf("restored=%v want none", out.Restored)
	}
	if _, ok := team.AppliedBuffs["a"]; !ok {
		t.Fatalf("reduction on completed node a was dropped")
	}
	if !slices.Equal(out.BuffsRemoved, []string{surge}) {
		t.Fatalf("buffs removed=%v want [%s]", out.BuffsRemoved, surge)
	}
}
