package hunt

import (
	"encoding/json"
	"maps"
	"slices"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// NodeSet is a set of node ids. It encodes as a sorted JSON array.
type NodeSet map[string]struct{}

func NewNodeSet(ids ...string) NodeSet {
	s := NodeSet{}
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

func (s NodeSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

func (s NodeSet) Add(id string) { s[id] = struct{}{} }

func (s NodeSet) Remove(id string) { delete(s, id) }

func (s NodeSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Minus returns the sorted ids in s that are not in other.
func (s NodeSet) Minus(other NodeSet) []string {
	out := []string{}
	for id := range s {
		if !other.Has(id) {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}

func (s NodeSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

func (s *NodeSet) UnmarshalJSON(raw []byte) error {
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return err
	}
	*s = NewNodeSet(ids...)
	return nil
}

type CompletionKind string

const (
	KindCompletion CompletionKind = "completion"
	KindReversal   CompletionKind = "reversal"
)

// CompletionRecord is one entry of a team's append-only reward ledger. A
// reversal never edits the completion it undoes; it is a compensating entry
// that points at it through ReversalOf.
type CompletionRecord struct {
	ID           string         `json:"id"`
	Kind         CompletionKind `json:"kind"`
	NodeID       string         `json:"node_id"`
	GP           int64          `json:"gp"`
	KeysGranted  []KeyStack     `json:"keys_granted,omitempty"`
	BuffsGranted []string       `json:"buffs_granted,omitempty"`
	Proof        string         `json:"proof,omitempty"`
	Actor        string         `json:"actor,omitempty"`
	Admin        bool           `json:"admin,omitempty"`
	ReversalOf   string         `json:"reversal_of,omitempty"`
	KeysMissing  []KeyStack     `json:"keys_missing,omitempty"`
	BuffsMissing []string       `json:"buffs_missing,omitempty"`
	Restored     []string       `json:"restored,omitempty"`
	At           time.Time      `json:"at"`
}

type BuffUsageRecord struct {
	BuffID              string    `json:"buff_id"`
	BuffName            string    `json:"buff_name"`
	UsedOn              string    `json:"used_on"`
	UsedAt              time.Time `json:"used_at"`
	UsedBy              string    `json:"used_by,omitempty"`
	OriginalRequirement int       `json:"original_requirement"`
	ReducedRequirement  int       `json:"reduced_requirement"`
	Benefit             int       `json:"benefit"`
}

// AppliedBuff is the effective objective requirement a buff left on a node
// for one team. The shared graph is never modified.
type AppliedBuff struct {
	BuffID              string `json:"buff_id"`
	OriginalRequirement int    `json:"original_requirement"`
	ReducedRequirement  int    `json:"reduced_requirement"`
}

type InnTransaction struct {
	ID           string     `json:"id"`
	NodeID       string     `json:"node_id"`
	RewardID     string     `json:"reward_id"`
	KeysSpent    []KeyStack `json:"keys_spent"`
	Payout       int64      `json:"payout"`
	BuffsGranted []Buff     `json:"buffs_granted,omitempty"`
	PurchasedBy  string     `json:"purchased_by"`
	PurchasedAt  time.Time  `json:"purchased_at"`
}

type TeamState struct {
	EventID         string                 `json:"event_id"`
	TeamID          string                 `json:"team_id"`
	Name            string                 `json:"name"`
	Members         []string               `json:"members"`
	CompletedNodes  NodeSet                `json:"completed_nodes"`
	AvailableNodes  NodeSet                `json:"available_nodes"`
	KeysHeld        []KeyStack             `json:"keys_held"`
	ActiveBuffs     []Buff                 `json:"active_buffs"`
	AppliedBuffs    map[string]AppliedBuff `json:"applied_buffs"`
	BuffHistory     []BuffUsageRecord      `json:"buff_history"`
	InnTransactions []InnTransaction       `json:"inn_transactions"`
	Completions     []CompletionRecord     `json:"completions"`
	CurrentPot      decimal.Decimal        `json:"current_pot"`
	Version         int64                  `json:"version"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

// NewTeamState returns the initial state of a team joining an event: nothing
// completed, every START node available.
func NewTeamState(eventID, teamID, name string, members []string, g *Graph, now time.Time) *TeamState {
	t := &TeamState{
		EventID:        eventID,
		TeamID:         teamID,
		Name:           name,
		Members:        slices.Clone(members),
		CompletedNodes: NodeSet{},
		AppliedBuffs:   map[string]AppliedBuff{},
		CurrentPot:     decimal.Zero,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if g != nil {
		t.AvailableNodes = g.Available(t.CompletedNodes)
	} else {
		t.AvailableNodes = NodeSet{}
	}
	return t
}

func (t *TeamState) IsMember(identity string) bool {
	return identity != "" && slices.Contains(t.Members, identity)
}

func (t *TeamState) Clone() *TeamState {
	out := *t
	out.Members = slices.Clone(t.Members)
	out.CompletedNodes = maps.Clone(t.CompletedNodes)
	out.AvailableNodes = maps.Clone(t.AvailableNodes)
	out.KeysHeld = slices.Clone(t.KeysHeld)
	out.ActiveBuffs = cloneBuffs(t.ActiveBuffs)
	out.AppliedBuffs = maps.Clone(t.AppliedBuffs)
	out.BuffHistory = slices.Clone(t.BuffHistory)
	out.InnTransactions = make([]InnTransaction, len(t.InnTransactions))
	for i, tx := range t.InnTransactions {
		tx.KeysSpent = slices.Clone(tx.KeysSpent)
		tx.BuffsGranted = cloneBuffs(tx.BuffsGranted)
		out.InnTransactions[i] = tx
	}
	out.Completions = make([]CompletionRecord, len(t.Completions))
	for i, rec := range t.Completions {
		rec.KeysGranted = slices.Clone(rec.KeysGranted)
		rec.BuffsGranted = slices.Clone(rec.BuffsGranted)
		rec.KeysMissing = slices.Clone(rec.KeysMissing)
		rec.BuffsMissing = slices.Clone(rec.BuffsMissing)
		rec.Restored = slices.Clone(rec.Restored)
		out.Completions[i] = rec
	}
	if out.CompletedNodes == nil {
		out.CompletedNodes = NodeSet{}
	}
	if out.AvailableNodes == nil {
		out.AvailableNodes = NodeSet{}
	}
	if out.AppliedBuffs == nil {
		out.AppliedBuffs = map[string]AppliedBuff{}
	}
	return &out
}

// refreshAvailable recomputes the persisted available set from the completed
// set and reports how it moved.
func (t *TeamState) refreshAvailable(g *Graph) (unlocked, relocked []string) {
	next := g.Available(t.CompletedNodes)
	prev := t.AvailableNodes
	if prev == nil {
		prev = NodeSet{}
	}
	unlocked = next.Minus(prev)
	for _, id := range prev.Minus(next) {
		// A node that left the available set because it was just completed
		// was not re-locked.
		if !t.CompletedNodes.Has(id) {
			relocked = append(relocked, id)
		}
	}
	t.AvailableNodes = next
	return unlocked, relocked
}

// liveCompletion returns the index of the completion record that granted the
// node's current rewards, or -1.
func (t *TeamState) liveCompletion(nodeID string) int {
	reversed := map[string]bool{}
	for _, rec := range t.Completions {
		if rec.Kind == KindReversal {
			reversed[rec.ReversalOf] = true
		}
	}
	for i := len(t.Completions) - 1; i >= 0; i-- {
		rec := t.Completions[i]
		if rec.Kind == KindCompletion && rec.NodeID == nodeID && !reversed[rec.ID] {
			return i
		}
	}
	return -1
}

func (t *TeamState) hasInnTransaction(nodeID string) bool {
	return slices.ContainsFunc(t.InnTransactions, func(tx InnTransaction) bool {
		return tx.NodeID == nodeID
	})
}

func (t *TeamState) buffIndex(buffID string) int {
	return slices.IndexFunc(t.ActiveBuffs, func(b Buff) bool { return b.ID == buffID })
}

func (t *TeamState) KeyCount(color string) int {
	for _, k := range t.KeysHeld {
		if k.Color == color {
			return k.Quantity
		}
	}
	return 0
}

func (t *TeamState) addKeys(keys []KeyStack) {
	for _, k := range keys {
		if k.Quantity <= 0 {
			continue
		}
		i := slices.IndexFunc(t.KeysHeld, func(h KeyStack) bool { return h.Color == k.Color })
		if i < 0 {
			t.KeysHeld = append(t.KeysHeld, k)
			continue
		}
		t.KeysHeld[i].Quantity += k.Quantity
	}
	t.normalizeKeys()
}

// takeKeys removes up to qty keys of color and returns how many were removed.
func (t *TeamState) takeKeys(color string, qty int) int {
	for i := range t.KeysHeld {
		if t.KeysHeld[i].Color != color {
			continue
		}
		n := min(qty, t.KeysHeld[i].Quantity)
		t.KeysHeld[i].Quantity -= n
		t.normalizeKeys()
		return n
	}
	return 0
}

func (t *TeamState) normalizeKeys() {
	t.KeysHeld = slices.DeleteFunc(t.KeysHeld, func(k KeyStack) bool { return k.Quantity <= 0 })
	sort.Slice(t.KeysHeld, func(i, j int) bool { return t.KeysHeld[i].Color < t.KeysHeld[j].Color })
}
