package hunt

import (
	"fmt"
	"slices"

	"github.com/shopspring/decimal"
)

// ReducedRequirement returns ceil(quantity * (1 - reduction)). Decimal math
// keeps results like 10 * 0.9 from rounding up to 10. A reduction that would
// leave nothing to do is rejected rather than clamped.
func ReducedRequirement(quantity int, reduction float64) (int, error) {
	if reduction <= 0 || reduction > 1 {
		return 0, fmt.Errorf("%w: reduction %v outside (0,1]", ErrReductionInvalid, reduction)
	}
	factor := decimal.NewFromInt(1).Sub(decimal.NewFromFloat(reduction))
	reduced := decimal.NewFromInt(int64(quantity)).Mul(factor).Ceil().IntPart()
	if reduced <= 0 {
		return 0, fmt.Errorf("%w: %d reduced by %v leaves %d", ErrReductionInvalid, quantity, reduction, reduced)
	}
	return int(reduced), nil
}

// ApplyBuff spends one use of a held buff to lower the requirement of an
// available node's objective for this team.
func (e *Engine) ApplyBuff(t *TeamState, nodeID, buffID, actor string) (Outcome, error) {
	n, err := e.node(nodeID)
	if err != nil {
		return Outcome{}, err
	}
	if e.graph.Status(t.CompletedNodes, n.ID) != StatusAvailable {
		return Outcome{}, fmt.Errorf("%w: %s", ErrNodeNotAvailable, n.ID)
	}
	i := t.buffIndex(buffID)
	if i < 0 {
		if t.spentBuff(buffID) {
			return Outcome{}, fmt.Errorf("%w: %s", ErrBuffExhausted, buffID)
		}
		return Outcome{}, fmt.Errorf("%w: %s", ErrBuffNotFound, buffID)
	}
	b := t.ActiveBuffs[i]
	if n.Objective == nil || !b.Applies(n.Objective.Type) {
		return Outcome{}, fmt.Errorf("%w: %s on %s", ErrBuffNotApplicable, b.Name, n.ID)
	}
	if _, applied := t.AppliedBuffs[n.ID]; applied || t.usedOn(n.ID) {
		return Outcome{}, fmt.Errorf("%w: %s", ErrBuffAlreadyAppliedToNode, n.ID)
	}
	if b.UsesRemaining <= 0 {
		return Outcome{}, fmt.Errorf("%w: %s", ErrBuffExhausted, b.ID)
	}
	original := n.Objective.Quantity
	reduced, err := ReducedRequirement(original, b.Reduction)
	if err != nil {
		return Outcome{}, err
	}

	now := e.Now()
	rec := BuffUsageRecord{
		BuffID:              b.ID,
		BuffName:            b.Name,
		UsedOn:              n.ID,
		UsedAt:              now,
		UsedBy:              actor,
		OriginalRequirement: original,
		ReducedRequirement:  reduced,
		Benefit:             original - reduced,
	}
	t.ActiveBuffs[i].UsesRemaining--
	if t.ActiveBuffs[i].UsesRemaining <= 0 {
		t.ActiveBuffs = slices.Delete(t.ActiveBuffs, i, i+1)
	}
	t.BuffHistory = append(t.BuffHistory, rec)
	t.AppliedBuffs[n.ID] = AppliedBuff{
		BuffID:              b.ID,
		OriginalRequirement: original,
		ReducedRequirement:  reduced,
	}
	t.UpdatedAt = now
	return Outcome{NodeID: n.ID, BuffUsage: &rec}, nil
}

// Requirement returns the quantity the team must reach on the node's
// objective, after any buff the team applied there.
func (t *TeamState) Requirement(n *Node) int {
	if n.Objective == nil {
		return 0
	}
	if ab, ok := t.AppliedBuffs[n.ID]; ok {
		return ab.ReducedRequirement
	}
	return n.Objective.Quantity
}

// usedOn reports whether a buff that still counts was spent on the node.
// Uses of a buff taken back by a reversal no longer count.
func (t *TeamState) usedOn(nodeID string) bool {
	revoked := t.revokedBuffs()
	return slices.ContainsFunc(t.BuffHistory, func(r BuffUsageRecord) bool {
		return r.UsedOn == nodeID && !revoked[r.BuffID]
	})
}

// spentBuff reports whether the team used up every use of a buff it no
// longer holds.
func (t *TeamState) spentBuff(buffID string) bool {
	if t.revokedBuffs()[buffID] {
		return false
	}
	return slices.ContainsFunc(t.BuffHistory, func(r BuffUsageRecord) bool { return r.BuffID == buffID })
}

func (t *TeamState) revokedBuffs() map[string]bool {
	out := map[string]bool{}
	for _, rec := range t.Completions {
		if rec.Kind != KindReversal {
			continue
		}
		for _, id := range rec.BuffsGranted {
			out[id] = true
		}
		for _, id := range rec.BuffsMissing {
			out[id] = true
		}
	}
	return out
}

// revokeReductions drops the requirement reductions a revoked buff left on
// nodes the team has not completed yet, and returns those node ids.
func (t *TeamState) revokeReductions(buffID string) []string {
	var restored []string
	for nodeID, ab := range t.AppliedBuffs {
		if ab.BuffID == buffID && !t.CompletedNodes.Has(nodeID) {
			delete(t.AppliedBuffs, nodeID)
			restored = append(restored, nodeID)
		}
	}
	slices.Sort(restored)
	return restored
}
