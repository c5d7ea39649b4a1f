package hunt

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Engine applies the progression and economy rules of one event to team
// states held in memory. It never locks: callers serialize mutations per
// team, and every method validates fully before it writes, so a returned
// error always leaves the team untouched.
type Engine struct {
	graph  *Graph
	budget BudgetAllocator

	Now   func() time.Time
	NewID func() string
}

func NewEngine(g *Graph, b Budget) *Engine {
	return &Engine{
		graph:  g,
		budget: NewBudgetAllocator(b),
		Now:    time.Now,
		NewID:  uuid.NewString,
	}
}

func (e *Engine) Graph() *Graph { return e.graph }

func (e *Engine) Budget() BudgetAllocator { return e.budget }

// Outcome describes what a single mutation changed on a team.
type Outcome struct {
	NodeID         string           `json:"node_id,omitempty"`
	GPDelta        int64            `json:"gp_delta"`
	KeysGranted    []KeyStack       `json:"keys_granted,omitempty"`
	KeysRemoved    []KeyStack       `json:"keys_removed,omitempty"`
	BuffsGranted   []Buff           `json:"buffs_granted,omitempty"`
	BuffsRemoved   []string         `json:"buffs_removed,omitempty"`
	NewlyAvailable []string         `json:"newly_available,omitempty"`
	Relocked       []string         `json:"relocked,omitempty"`
	Restored       []string         `json:"restored,omitempty"`
	BuffUsage      *BuffUsageRecord `json:"buff_usage,omitempty"`
	Transaction    *InnTransaction  `json:"transaction,omitempty"`
}

type Completion struct {
	NodeID string
	Proof  string
	Actor  string
	Admin  bool
}

func (e *Engine) node(id string) (*Node, error) {
	n, ok := e.graph.Node(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	return n, nil
}

// CompleteNode marks an available node completed and credits its rewards.
// The proof is stored as given; it is not inspected.
func (e *Engine) CompleteNode(t *TeamState, c Completion) (Outcome, error) {
	n, err := e.node(c.NodeID)
	if err != nil {
		return Outcome{}, err
	}
	switch e.graph.Status(t.CompletedNodes, n.ID) {
	case StatusCompleted:
		return Outcome{}, fmt.Errorf("%w: %s", ErrAlreadyCompleted, n.ID)
	case StatusLocked:
		return Outcome{}, fmt.Errorf("%w: %s", ErrNodeLocked, n.ID)
	}
	if err := e.budget.Reserve(t, n.Rewards.GP); err != nil {
		return Outcome{}, err
	}

	now := e.Now()
	buffs := e.grantBuffs(n.Rewards.Buffs)
	rec := CompletionRecord{
		ID:           e.NewID(),
		Kind:         KindCompletion,
		NodeID:       n.ID,
		GP:           n.Rewards.GP,
		KeysGranted:  slices.Clone(n.Rewards.Keys),
		BuffsGranted: buffIDs(buffs),
		Proof:        c.Proof,
		Actor:        c.Actor,
		Admin:        c.Admin,
		At:           now,
	}

	t.CompletedNodes.Add(n.ID)
	t.CurrentPot = t.CurrentPot.Add(decimal.NewFromInt(n.Rewards.GP))
	t.addKeys(n.Rewards.Keys)
	t.ActiveBuffs = append(t.ActiveBuffs, buffs...)
	t.Completions = append(t.Completions, rec)
	unlocked, _ := t.refreshAvailable(e.graph)
	t.UpdatedAt = now

	return Outcome{
		NodeID:         n.ID,
		GPDelta:        n.Rewards.GP,
		KeysGranted:    slices.Clone(n.Rewards.Keys),
		BuffsGranted:   cloneBuffs(buffs),
		NewlyAvailable: unlocked,
	}, nil
}

// UncompleteNode reverses the completion that granted the node's current
// rewards. Keys and buffs the team has already spent cannot be taken back;
// the shortfall is recorded on the reversal entry. Requirement reductions
// the revoked buffs left on open nodes are dropped. Nodes the team has
// completed stay completed even when they lose their unlocking path.
func (e *Engine) UncompleteNode(t *TeamState, nodeID, actor string) (Outcome, error) {
	n, err := e.node(nodeID)
	if err != nil {
		return Outcome{}, err
	}
	if !t.CompletedNodes.Has(n.ID) {
		return Outcome{}, fmt.Errorf("%w: %s", ErrNotCompleted, n.ID)
	}

	granted := CompletionRecord{NodeID: n.ID, GP: n.Rewards.GP, KeysGranted: slices.Clone(n.Rewards.Keys)}
	if i := t.liveCompletion(n.ID); i >= 0 {
		granted = t.Completions[i]
	}

	now := e.Now()
	gp := decimal.NewFromInt(granted.GP)
	if gp.GreaterThan(t.CurrentPot) {
		gp = t.CurrentPot
	}
	out := Outcome{NodeID: n.ID, GPDelta: -gp.IntPart()}
	var missing []KeyStack
	for _, k := range granted.KeysGranted {
		took := t.takeKeys(k.Color, k.Quantity)
		if took > 0 {
			out.KeysRemoved = append(out.KeysRemoved, KeyStack{Color: k.Color, Quantity: took})
		}
		if took < k.Quantity {
			missing = append(missing, KeyStack{Color: k.Color, Quantity: k.Quantity - took})
		}
	}
	var buffsMissing []string
	for _, id := range granted.BuffsGranted {
		if i := t.buffIndex(id); i >= 0 {
			t.ActiveBuffs = slices.Delete(t.ActiveBuffs, i, i+1)
			out.BuffsRemoved = append(out.BuffsRemoved, id)
		} else {
			buffsMissing = append(buffsMissing, id)
		}
	}

	t.CompletedNodes.Remove(n.ID)
	for _, id := range granted.BuffsGranted {
		out.Restored = append(out.Restored, t.revokeReductions(id)...)
	}
	slices.Sort(out.Restored)
	t.CurrentPot = t.CurrentPot.Sub(gp)
	t.Completions = append(t.Completions, CompletionRecord{
		ID:           e.NewID(),
		Kind:         KindReversal,
		NodeID:       n.ID,
		GP:           gp.IntPart(),
		KeysGranted:  out.KeysRemoved,
		BuffsGranted: out.BuffsRemoved,
		Actor:        actor,
		Admin:        true,
		ReversalOf:   granted.ID,
		KeysMissing:  missing,
		BuffsMissing: buffsMissing,
		Restored:     out.Restored,
		At:           now,
	})
	_, out.Relocked = t.refreshAvailable(e.graph)
	t.UpdatedAt = now
	return out, nil
}

func (e *Engine) grantBuffs(defs []Buff) []Buff {
	if len(defs) == 0 {
		return nil
	}
	out := cloneBuffs(defs)
	for i := range out {
		if out[i].Name == "" {
			out[i].Name = out[i].ID
		}
		out[i].ID = e.NewID()
	}
	return out
}

func buffIDs(buffs []Buff) []string {
	if len(buffs) == 0 {
		return nil
	}
	ids := make([]string, len(buffs))
	for i, b := range buffs {
		ids[i] = b.ID
	}
	return ids
}
