package hunt

import (
	"github.com/shopspring/decimal"
)

type Requirement struct {
	NodeID    string        `json:"node_id"`
	Type      ObjectiveType `json:"type"`
	Target    string        `json:"target"`
	Original  int           `json:"original"`
	Required  int           `json:"required"`
	BuffID    string        `json:"buff_id,omitempty"`
	NodeType  NodeType      `json:"node_type"`
	RewardsGP int64         `json:"rewards_gp"`
}

// TeamView is what callers render after a query or a mutation.
type TeamView struct {
	EventID      string          `json:"event_id"`
	TeamID       string          `json:"team_id"`
	Name         string          `json:"name"`
	Members      []string        `json:"members"`
	Pot          decimal.Decimal `json:"pot"`
	Cap          decimal.Decimal `json:"cap"`
	Remaining    decimal.Decimal `json:"remaining"`
	Completed    []string        `json:"completed"`
	Available    []string        `json:"available"`
	Requirements []Requirement   `json:"requirements"`
	Keys         []KeyStack      `json:"keys"`
	Buffs        []Buff          `json:"buffs"`
	InnsVisited  []string        `json:"inns_visited"`
	Version      int64           `json:"version"`
	Last         *Outcome        `json:"last,omitempty"`
}

func buildView(e *Engine, t *TeamState, last *Outcome) TeamView {
	available := e.graph.Available(t.CompletedNodes)
	v := TeamView{
		EventID:      t.EventID,
		TeamID:       t.TeamID,
		Name:         t.Name,
		Members:      append([]string{}, t.Members...),
		Pot:          t.CurrentPot,
		Cap:          e.budget.Cap(t.TeamID),
		Remaining:    e.budget.Remaining(t),
		Completed:    t.CompletedNodes.Sorted(),
		Available:    available.Sorted(),
		Requirements: []Requirement{},
		Keys:         append([]KeyStack{}, t.KeysHeld...),
		Buffs:        cloneBuffs(t.ActiveBuffs),
		InnsVisited:  []string{},
		Version:      t.Version,
		Last:         last,
	}
	if v.Buffs == nil {
		v.Buffs = []Buff{}
	}
	for _, id := range v.Available {
		n, _ := e.graph.Node(id)
		if n.Objective == nil {
			continue
		}
		v.Requirements = append(v.Requirements, Requirement{
			NodeID:    n.ID,
			Type:      n.Objective.Type,
			Target:    n.Objective.Target,
			Original:  n.Objective.Quantity,
			Required:  t.Requirement(n),
			BuffID:    t.AppliedBuffs[n.ID].BuffID,
			NodeType:  n.Type,
			RewardsGP: n.Rewards.GP,
		})
	}
	for _, tx := range t.InnTransactions {
		v.InnsVisited = append(v.InnsVisited, tx.NodeID)
	}
	return v
}
