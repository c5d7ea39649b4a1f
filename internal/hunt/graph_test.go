package hunt

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"
)

// testNodes is a small map:
//
//	start -> a, b
//	a -> c, m, inn
//	b -> c, m
//
// c needs both a and b; m needs either.
func testNodes() []Node {
	return []Node{
		{
			ID:      "start",
			Type:    NodeStart,
			Rewards: Rewards{Keys: []KeyStack{{Color: "red", Quantity: 1}}},
			Unlocks: []string{"a", "b"},
		},
		{
			ID:        "a",
			Type:      NodeStandard,
			Objective: &Objective{Type: ObjectiveBossKC, Target: "Zulrah", Quantity: 100},
			Rewards: Rewards{
				GP:   1000,
				Keys: []KeyStack{{Color: "red", Quantity: 1}},
				Buffs: []Buff{{
					ID: "slayer-edge", Name: "Slayer's Edge", Type: "kill_reduction",
					ObjectiveTypes: []ObjectiveType{ObjectiveBossKC}, Reduction: 0.25, UsesRemaining: 1,
				}},
			},
			Unlocks: []string{"c", "m", "inn"},
		},
		{
			ID:        "b",
			Type:      NodeStandard,
			Objective: &Objective{Type: ObjectiveXPGain, Target: "Agility", Quantity: 7},
			Rewards: Rewards{
				GP:   500,
				Keys: []KeyStack{{Color: "blue", Quantity: 2}},
				Buffs: []Buff{{
					ID:             "xp-surge",
					Name:           "XP Surge",
					Type:           "universal",
					ObjectiveTypes: []ObjectiveType{ObjectiveXPGain, ObjectiveBossKC, ObjectiveMinigame},
					Reduction:      0.25,
					UsesRemaining:  2,
				}},
			},
			Unlocks: []string{"c", "m"},
		},
		{
			ID:        "c",
			Type:      NodeStandard,
			Objective: &Objective{Type: ObjectiveItemCollect, Target: "Dragon axe", Quantity: 1},
			Rewards:   Rewards{GP: 2000},
		},
		{
			ID:         "m",
			Type:       NodeStandard,
			UnlockRule: RuleAny,
			Objective:  &Objective{Type: ObjectiveMinigame, Target: "Tempoross", Quantity: 10},
			Rewards:    Rewards{GP: 800},
		},
		{
			ID:   "inn",
			Type: NodeInn,
			InnRewards: []InnReward{
				{ID: "r-red", KeyCost: []KeyStack{{Color: "red", Quantity: 2}}, Payout: 300},
				{
					ID: "r-any", KeyCost: []KeyStack{{Color: AnyKeyColor, Quantity: 4}}, Payout: 400,
					BuffsGranted: []Buff{{
						ID: "lucky", Name: "Lucky Clover", Type: "clue",
						ObjectiveTypes: []ObjectiveType{ObjectiveClueScrolls}, Reduction: 0.5, UsesRemaining: 1,
					}},
				},
				{
					ID: "r-mixed", Payout: 250,
					KeyCost: []KeyStack{{Color: "red", Quantity: 1}, {Color: "blue", Quantity: 1}, {Color: AnyKeyColor, Quantity: 1}},
				},
				{ID: "r-big", KeyCost: []KeyStack{{Color: "red", Quantity: 1}}, Payout: 1_000_000},
			},
		},
	}
}

func testGraph(t *testing.T) *Graph {
	t.Helper()
	g, err := NewGraph(testNodes())
	if err != nil {
		t.Fatalf("NewGraph: %v", err)
	}
	return g
}

var testNow = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

// testEngine returns an engine over the test map with a 10,000 GP cap per
// team, a fixed clock and sequential ids.
func testEngine(t *testing.T) *Engine {
	t.Helper()
	e := NewEngine(testGraph(t), Budget{PrizePool: 20_000, TeamCount: 2})
	seq := 0
	e.NewID = func() string {
		seq++
		return fmt.Sprintf("id-%d", seq)
	}
	e.Now = func() time.Time { return testNow }
	return e
}

func testTeam(e *Engine) *TeamState {
	return NewTeamState("ev-1", "team-1", "Iron Wolves", []string{"alice", "bob"}, e.Graph(), testNow)
}

func mustComplete(t *testing.T, e *Engine, team *TeamState, ids ...string) {
	t.Helper()
	for _, id := range ids {
		if _, err := e.CompleteNode(team, Completion{NodeID: id, Actor: "alice"}); err != nil {
			t.Fatalf("complete %s: %v", id, err)
		}
	}
}

func TestNewGraphDerivesPrerequisites(t *testing.T) {
	g := testGraph(t)
	want := map[string][]string{
		"start": nil,
		"a":     {"start"},
		"b":     {"start"},
		"c":     {"a", "b"},
		"m":     {"a", "b"},
		"inn":   {"a"},
	}
	for id, prereqs := range want {
		n, ok := g.Node(id)
		if !ok {
			t.Fatalf("node %s missing", id)
		}
		if !slices.Equal(n.Prerequisites, prereqs) {
			t.Fatalf("node %s prerequisites=%v want %v", id, n.Prerequisites, prereqs)
		}
	}
	order := g.Nodes()
	if order[0].ID != "start" {
		t.Fatalf("expected start first in topological order, got %s", order[0].ID)
	}
	if a, _ := g.Node("a"); a.UnlockRule != RuleAll {
		t.Fatalf("expected default unlock rule all, got %q", a.UnlockRule)
	}
}

func TestNewGraphRejectsInvalidMaps(t *testing.T) {
	tests := []struct {
		name  string
		nodes []Node
	}{
		{name: "empty", nodes: nil},
		{name: "no start", nodes: []Node{{ID: "a", Type: NodeStandard}}},
		{name: "duplicate id", nodes: []Node{{ID: "s", Type: NodeStart}, {ID: "s", Type: NodeStart}}},
		{name: "missing target", nodes: []Node{{ID: "s", Type: NodeStart, Unlocks: []string{"ghost"}}}},
		{name: "self unlock", nodes: []Node{{ID: "s", Type: NodeStart, Unlocks: []string{"s"}}}},
		{name: "unreachable", nodes: []Node{{ID: "s", Type: NodeStart}, {ID: "a", Type: NodeStandard}}},
		{name: "cycle", nodes: []Node{
			{ID: "s", Type: NodeStart, Unlocks: []string{"a"}},
			{ID: "a", Type: NodeStandard, Unlocks: []string{"b"}},
			{ID: "b", Type: NodeStandard, Unlocks: []string{"a"}},
		}},
		{name: "start with prerequisite", nodes: []Node{
			{ID: "s", Type: NodeStart, Unlocks: []string{"t"}},
			{ID: "t", Type: NodeStart},
		}},
		{name: "inn rewards on standard", nodes: []Node{
			{ID: "s", Type: NodeStart, Unlocks: []string{"a"}},
			{ID: "a", Type: NodeStandard, InnRewards: []InnReward{{ID: "r", Payout: 1}}},
		}},
		{name: "zero quantity objective", nodes: []Node{
			{ID: "s", Type: NodeStart, Objective: &Objective{Type: ObjectiveBossKC, Quantity: 0}},
		}},
		{name: "any key as reward", nodes: []Node{
			{ID: "s", Type: NodeStart, Rewards: Rewards{Keys: []KeyStack{{Color: AnyKeyColor, Quantity: 1}}}},
		}},
		{name: "buff reduction out of range", nodes: []Node{
			{ID: "s", Type: NodeStart, Rewards: Rewards{Buffs: []Buff{{
				ID: "x", ObjectiveTypes: []ObjectiveType{ObjectiveBossKC}, Reduction: 1.5, UsesRemaining: 1,
			}}}},
		}},
		{name: "unknown unlock rule", nodes: []Node{{ID: "s", Type: NodeStart, UnlockRule: "most"}}},
	}
	for _, tc := range tests {
		if _, err := NewGraph(tc.nodes); !errors.Is(err, ErrInvalidGraph) {
			t.Fatalf("%s: expected ErrInvalidGraph, got %v", tc.name, err)
		}
	}
}

func TestAvailabilityIsDerivedFromCompletedNodes(t *testing.T) {
	g := testGraph(t)
	ids := []string{"start", "a", "b", "c", "m", "inn"}
	for mask := 0; mask < 1<<len(ids); mask++ {
		completed := NodeSet{}
		for i, id := range ids {
			if mask&(1<<i) != 0 {
				completed.Add(id)
			}
		}
		available := g.Available(completed)
		for _, id := range ids {
			n, _ := g.Node(id)
			var unlocked bool
			switch {
			case n.Type == NodeStart:
				unlocked = true
			case n.UnlockRule == RuleAny:
				unlocked = slices.ContainsFunc(n.Prerequisites, completed.Has)
			default:
				unlocked = !slices.ContainsFunc(n.Prerequisites, func(p string) bool { return !completed.Has(p) })
			}
			want := unlocked && !completed.Has(id)
			if available.Has(id) != want {
				t.Fatalf("completed=%v node=%s available=%v want %v", completed.Sorted(), id, available.Has(id), want)
			}
		}
	}
}

func TestGraphJSONRederivesPrerequisites(t *testing.T) {
	g := testGraph(t)
	raw, err := json.Marshal(g)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Graph
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Len() != g.Len() {
		t.Fatalf("got %d nodes want %d", back.Len(), g.Len())
	}
	c, _ := back.Node("c")
	if !slices.Equal(c.Prerequisites, []string{"a", "b"}) {
		t.Fatalf("prerequisites not rederived: %v", c.Prerequisites)
	}
}
