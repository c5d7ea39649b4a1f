package hunt

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

type Objective struct {
	Type     ObjectiveType `json:"type"`
	Target   string        `json:"target"`
	Quantity int           `json:"quantity"`
}

type KeyStack struct {
	Color    string `json:"color"`
	Quantity int    `json:"quantity"`
}

// Buff reduces the required quantity of a matching objective. In a node
// graph the ID names the buff definition; once granted to a team the ID is
// replaced by a per-grant instance id.
type Buff struct {
	ID             string          `json:"buff_id"`
	Name           string          `json:"buff_name"`
	Type           string          `json:"buff_type"`
	ObjectiveTypes []ObjectiveType `json:"objective_types"`
	Reduction      float64         `json:"reduction"`
	UsesRemaining  int             `json:"uses_remaining"`
}

func (b Buff) Applies(t ObjectiveType) bool {
	return slices.Contains(b.ObjectiveTypes, t)
}

type Rewards struct {
	GP    int64      `json:"gp"`
	Keys  []KeyStack `json:"keys,omitempty"`
	Buffs []Buff     `json:"buffs,omitempty"`
}

type InnReward struct {
	ID           string     `json:"reward_id"`
	Name         string     `json:"name,omitempty"`
	KeyCost      []KeyStack `json:"key_cost"`
	Payout       int64      `json:"payout"`
	BuffsGranted []Buff     `json:"buffs_granted,omitempty"`
}

type Node struct {
	ID            string      `json:"node_id"`
	Name          string      `json:"name,omitempty"`
	Type          NodeType    `json:"node_type"`
	Objective     *Objective  `json:"objective,omitempty"`
	Rewards       Rewards     `json:"rewards"`
	Unlocks       []string    `json:"unlocks,omitempty"`
	Prerequisites []string    `json:"prerequisites,omitempty"`
	UnlockRule    UnlockRule  `json:"unlock_rule,omitempty"`
	InnRewards    []InnReward `json:"inn_rewards,omitempty"`
}

func (n *Node) InnReward(id string) (InnReward, bool) {
	for _, r := range n.InnRewards {
		if r.ID == id {
			return r, true
		}
	}
	return InnReward{}, false
}

// Graph is the validated, immutable node graph of one event. Nodes returned
// by its accessors are shared and must not be modified.
type Graph struct {
	nodes map[string]*Node
	order []string
}

// NewGraph validates nodes and derives each node's prerequisites from the
// unlock edges of the others. Any prerequisites already set on the input are
// discarded.
func NewGraph(nodes []Node) (*Graph, error) {
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: no nodes", ErrInvalidGraph)
	}
	g := &Graph{nodes: make(map[string]*Node, len(nodes))}
	for _, in := range nodes {
		n := cloneNode(in)
		n.ID = strings.TrimSpace(n.ID)
		n.Prerequisites = nil
		if n.ID == "" {
			return nil, fmt.Errorf("%w: node with empty id", ErrInvalidGraph)
		}
		if _, dup := g.nodes[n.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate node %s", ErrInvalidGraph, n.ID)
		}
		if n.UnlockRule == "" {
			n.UnlockRule = RuleAll
		}
		if err := validateNode(n); err != nil {
			return nil, err
		}
		g.nodes[n.ID] = n
	}

	starts := 0
	for _, id := range g.sortedIDs() {
		n := g.nodes[id]
		if n.Type == NodeStart {
			starts++
		}
		seen := map[string]bool{}
		unlocks := n.Unlocks[:0]
		for _, target := range n.Unlocks {
			if target == n.ID {
				return nil, fmt.Errorf("%w: node %s unlocks itself", ErrInvalidGraph, n.ID)
			}
			child, ok := g.nodes[target]
			if !ok {
				return nil, fmt.Errorf("%w: node %s unlocks missing node %s", ErrInvalidGraph, n.ID, target)
			}
			if seen[target] {
				continue
			}
			seen[target] = true
			unlocks = append(unlocks, target)
			child.Prerequisites = append(child.Prerequisites, n.ID)
		}
		n.Unlocks = unlocks
	}
	if starts == 0 {
		return nil, fmt.Errorf("%w: no START node", ErrInvalidGraph)
	}
	for _, n := range g.nodes {
		if n.Type == NodeStart && len(n.Prerequisites) > 0 {
			return nil, fmt.Errorf("%w: START node %s has prerequisites", ErrInvalidGraph, n.ID)
		}
		if n.Type != NodeStart && len(n.Prerequisites) == 0 {
			return nil, fmt.Errorf("%w: node %s is unreachable", ErrInvalidGraph, n.ID)
		}
	}

	order, err := g.topoSort()
	if err != nil {
		return nil, err
	}
	g.order = order
	return g, nil
}

func validateNode(n *Node) error {
	switch n.Type {
	case NodeStart, NodeStandard, NodeInn:
	default:
		return fmt.Errorf("%w: node %s has unknown type %q", ErrInvalidGraph, n.ID, n.Type)
	}
	if n.UnlockRule != RuleAll && n.UnlockRule != RuleAny {
		return fmt.Errorf("%w: node %s has unknown unlock rule %q", ErrInvalidGraph, n.ID, n.UnlockRule)
	}
	if o := n.Objective; o != nil {
		if o.Type == "" || o.Quantity < 1 {
			return fmt.Errorf("%w: node %s objective needs a type and quantity >= 1", ErrInvalidGraph, n.ID)
		}
	}
	if n.Rewards.GP < 0 {
		return fmt.Errorf("%w: node %s has negative gp", ErrInvalidGraph, n.ID)
	}
	if err := validateKeys(n.Rewards.Keys, false); err != nil {
		return fmt.Errorf("%w: node %s rewards: %v", ErrInvalidGraph, n.ID, err)
	}
	for _, b := range n.Rewards.Buffs {
		if err := validateBuff(b); err != nil {
			return fmt.Errorf("%w: node %s rewards: %v", ErrInvalidGraph, n.ID, err)
		}
	}
	if len(n.InnRewards) > 0 && n.Type != NodeInn {
		return fmt.Errorf("%w: node %s has inn rewards but is %s", ErrInvalidGraph, n.ID, n.Type)
	}
	rewardIDs := map[string]bool{}
	for _, r := range n.InnRewards {
		if r.ID == "" || rewardIDs[r.ID] {
			return fmt.Errorf("%w: inn %s has empty or duplicate reward id %q", ErrInvalidGraph, n.ID, r.ID)
		}
		rewardIDs[r.ID] = true
		if r.Payout < 0 {
			return fmt.Errorf("%w: inn %s reward %s has negative payout", ErrInvalidGraph, n.ID, r.ID)
		}
		if err := validateKeys(r.KeyCost, true); err != nil {
			return fmt.Errorf("%w: inn %s reward %s: %v", ErrInvalidGraph, n.ID, r.ID, err)
		}
		for _, b := range r.BuffsGranted {
			if err := validateBuff(b); err != nil {
				return fmt.Errorf("%w: inn %s reward %s: %v", ErrInvalidGraph, n.ID, r.ID, err)
			}
		}
	}
	return nil
}

func validateKeys(keys []KeyStack, allowAny bool) error {
	for _, k := range keys {
		if strings.TrimSpace(k.Color) == "" {
			return fmt.Errorf("key with empty color")
		}
		if k.Color == AnyKeyColor && !allowAny {
			return fmt.Errorf("key color %q is only valid in costs", AnyKeyColor)
		}
		if k.Quantity < 1 {
			return fmt.Errorf("key %s quantity must be >= 1", k.Color)
		}
	}
	return nil
}

func validateBuff(b Buff) error {
	if b.ID == "" {
		return fmt.Errorf("buff with empty id")
	}
	if len(b.ObjectiveTypes) == 0 {
		return fmt.Errorf("buff %s reduces no objective types", b.ID)
	}
	if b.Reduction <= 0 || b.Reduction > 1 {
		return fmt.Errorf("buff %s reduction %.2f outside (0,1]", b.ID, b.Reduction)
	}
	if b.UsesRemaining < 1 {
		return fmt.Errorf("buff %s must have at least one use", b.ID)
	}
	return nil
}

// topoSort runs Kahn's algorithm over the unlock edges; ties are broken by
// node id so the order is stable across loads.
func (g *Graph) topoSort() ([]string, error) {
	inDegree := make(map[string]int, len(g.nodes))
	var queue []string
	for _, id := range g.sortedIDs() {
		inDegree[id] = len(g.nodes[id].Prerequisites)
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}
	order := make([]string, 0, len(g.nodes))
	for len(queue) > 0 {
		curr := queue[0]
		queue = queue[1:]
		order = append(order, curr)
		for _, next := range g.nodes[curr].Unlocks {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	if len(order) != len(g.nodes) {
		return nil, fmt.Errorf("%w: cycle detected", ErrInvalidGraph)
	}
	return order, nil
}

func (g *Graph) sortedIDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

func (g *Graph) Len() int { return len(g.nodes) }

// Nodes returns copies of every node in topological order.
func (g *Graph) Nodes() []Node {
	out := make([]Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, *cloneNode(*g.nodes[id]))
	}
	return out
}

// Status derives a node's status for a team from its completed set alone.
func (g *Graph) Status(completed NodeSet, id string) NodeStatus {
	if completed.Has(id) {
		return StatusCompleted
	}
	n, ok := g.nodes[id]
	if !ok || !g.unlocked(n, completed) {
		return StatusLocked
	}
	return StatusAvailable
}

func (g *Graph) unlocked(n *Node, completed NodeSet) bool {
	if n.Type == NodeStart {
		return true
	}
	if n.UnlockRule == RuleAny {
		return slices.ContainsFunc(n.Prerequisites, completed.Has)
	}
	for _, p := range n.Prerequisites {
		if !completed.Has(p) {
			return false
		}
	}
	return true
}

// Available returns every node that is unlocked but not yet completed.
func (g *Graph) Available(completed NodeSet) NodeSet {
	out := NodeSet{}
	for _, id := range g.order {
		if g.Status(completed, id) == StatusAvailable {
			out.Add(id)
		}
	}
	return out
}

func (g *Graph) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Nodes []Node `json:"nodes"`
	}{Nodes: g.Nodes()})
}

func (g *Graph) UnmarshalJSON(raw []byte) error {
	var doc struct {
		Nodes []Node `json:"nodes"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	parsed, err := NewGraph(doc.Nodes)
	if err != nil {
		return err
	}
	*g = *parsed
	return nil
}

func cloneNode(n Node) *Node {
	out := n
	if n.Objective != nil {
		o := *n.Objective
		out.Objective = &o
	}
	out.Rewards.Keys = slices.Clone(n.Rewards.Keys)
	out.Rewards.Buffs = cloneBuffs(n.Rewards.Buffs)
	out.Unlocks = slices.Clone(n.Unlocks)
	out.Prerequisites = slices.Clone(n.Prerequisites)
	if n.InnRewards != nil {
		out.InnRewards = make([]InnReward, len(n.InnRewards))
		for i, r := range n.InnRewards {
			r.KeyCost = slices.Clone(r.KeyCost)
			r.BuffsGranted = cloneBuffs(r.BuffsGranted)
			out.InnRewards[i] = r
		}
	}
	return &out
}

func cloneBuffs(in []Buff) []Buff {
	if in == nil {
		return nil
	}
	out := make([]Buff, len(in))
	for i, b := range in {
		b.ObjectiveTypes = slices.Clone(b.ObjectiveTypes)
		out[i] = b
	}
	return out
}
