package hunt

import (
	"fmt"
	"slices"
	"sort"

	"github.com/shopspring/decimal"
)

type Purchase struct {
	NodeID   string
	RewardID string
	Caller   string
}

// PurchaseReward trades keys for one of an Inn's rewards. Each team trades
// at most once per Inn, whatever reward it picks.
func (e *Engine) PurchaseReward(t *TeamState, p Purchase) (Outcome, error) {
	n, err := e.node(p.NodeID)
	if err != nil {
		return Outcome{}, err
	}
	if n.Type != NodeInn {
		return Outcome{}, fmt.Errorf("%w: %s", ErrNotInn, n.ID)
	}
	if !t.IsMember(p.Caller) {
		return Outcome{}, fmt.Errorf("%w: %s", ErrNotTeamMember, p.Caller)
	}
	if e.graph.Status(t.CompletedNodes, n.ID) == StatusLocked {
		return Outcome{}, fmt.Errorf("%w: %s", ErrNodeLocked, n.ID)
	}
	if t.hasInnTransaction(n.ID) {
		return Outcome{}, fmt.Errorf("%w: %s", ErrAlreadyPurchased, n.ID)
	}
	reward, ok := n.InnReward(p.RewardID)
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %s at %s", ErrInnRewardNotFound, p.RewardID, n.ID)
	}
	spend, err := planKeyDebit(t.KeysHeld, reward.KeyCost)
	if err != nil {
		return Outcome{}, err
	}
	if err := e.budget.Reserve(t, reward.Payout); err != nil {
		return Outcome{}, err
	}

	now := e.Now()
	for _, k := range spend {
		t.takeKeys(k.Color, k.Quantity)
	}
	buffs := e.grantBuffs(reward.BuffsGranted)
	tx := InnTransaction{
		ID:           e.NewID(),
		NodeID:       n.ID,
		RewardID:     reward.ID,
		KeysSpent:    spend,
		Payout:       reward.Payout,
		BuffsGranted: buffs,
		PurchasedBy:  p.Caller,
		PurchasedAt:  now,
	}
	t.CurrentPot = t.CurrentPot.Add(decimal.NewFromInt(reward.Payout))
	t.ActiveBuffs = append(t.ActiveBuffs, buffs...)
	t.InnTransactions = append(t.InnTransactions, tx)
	t.UpdatedAt = now

	return Outcome{
		NodeID:       n.ID,
		GPDelta:      reward.Payout,
		KeysRemoved:  slices.Clone(spend),
		BuffsGranted: cloneBuffs(buffs),
		Transaction:  &tx,
	}, nil
}

// planKeyDebit decides which keys pay for cost without touching held. Named
// colors are charged first; "any" entries are then charged against what is
// left, draining the largest stacks first with ties broken by color. Every
// entry is checked against the same pre-trade inventory, so a compound cost
// either fits as a whole or fails.
func planKeyDebit(held, cost []KeyStack) ([]KeyStack, error) {
	left := map[string]int{}
	for _, k := range held {
		left[k.Color] += k.Quantity
	}
	named := map[string]int{}
	anyQty := 0
	for _, c := range cost {
		if c.Color == AnyKeyColor {
			anyQty += c.Quantity
			continue
		}
		named[c.Color] += c.Quantity
	}

	spent := map[string]int{}
	colors := make([]string, 0, len(named))
	for color := range named {
		colors = append(colors, color)
	}
	slices.Sort(colors)
	for _, color := range colors {
		need := named[color]
		if left[color] < need {
			return nil, fmt.Errorf("%w: need %d %s, hold %d", ErrInsufficientKeys, need, color, left[color])
		}
		left[color] -= need
		spent[color] += need
	}

	total := 0
	for _, q := range left {
		total += q
	}
	if total < anyQty {
		return nil, fmt.Errorf("%w: need %d keys of any color, %d left", ErrInsufficientKeys, anyQty, total)
	}
	for anyQty > 0 {
		pick := ""
		for color, q := range left {
			if q == 0 {
				continue
			}
			if pick == "" || q > left[pick] || (q == left[pick] && color < pick) {
				pick = color
			}
		}
		take := min(anyQty, left[pick])
		left[pick] -= take
		spent[pick] += take
		anyQty -= take
	}

	out := make([]KeyStack, 0, len(spent))
	for color, q := range spent {
		out = append(out, KeyStack{Color: color, Quantity: q})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Color < out[j].Color })
	return out, nil
}
