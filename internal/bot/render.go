package bot

import (
	"fmt"
	"strings"

	"github.com/lemonphresh/osrsbingo-sub001/internal/hunt"
)

func renderStatus(v hunt.TeamView) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "**%s**\nPot: %s gp / cap %s gp (%s left)\n", v.Name, v.Pot.String(), v.Cap.String(), v.Remaining.String())
	fmt.Fprintf(&sb, "Completed: %d node(s)\n", len(v.Completed))
	fmt.Fprintf(&sb, "Keys: %s\n", formatKeys(v.Keys))
	if len(v.Buffs) == 0 {
		sb.WriteString("Buffs: none\n")
	} else {
		sb.WriteString("Buffs:\n")
		for _, b := range v.Buffs {
			fmt.Fprintf(&sb, "  `%s` %s (%d use(s))\n", b.ID, b.Name, b.UsesRemaining)
		}
	}
	if len(v.Available) == 0 {
		sb.WriteString("Open nodes: none")
		return sb.String()
	}
	reqs := map[string]hunt.Requirement{}
	for _, r := range v.Requirements {
		reqs[r.NodeID] = r
	}
	sb.WriteString("Open nodes:")
	for _, id := range v.Available {
		r, ok := reqs[id]
		if !ok {
			fmt.Fprintf(&sb, "\n  `%s`", id)
			continue
		}
		fmt.Fprintf(&sb, "\n  `%s` %s %d", id, r.Target, r.Required)
		if r.Required != r.Original {
			fmt.Fprintf(&sb, " (was %d)", r.Original)
		}
		if r.RewardsGP > 0 {
			fmt.Fprintf(&sb, ", %d gp", r.RewardsGP)
		}
	}
	return sb.String()
}

func renderCompletion(nodeID string, v hunt.TeamView) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "`%s` complete for **%s**.", nodeID, v.Name)
	if v.Last != nil {
		if v.Last.GPDelta > 0 {
			fmt.Fprintf(&sb, " +%d gp.", v.Last.GPDelta)
		}
		if len(v.Last.KeysGranted) > 0 {
			fmt.Fprintf(&sb, " Keys: %s.", formatKeys(v.Last.KeysGranted))
		}
		for _, b := range v.Last.BuffsGranted {
			fmt.Fprintf(&sb, " Buff: %s.", b.Name)
		}
		if len(v.Last.NewlyAvailable) > 0 {
			fmt.Fprintf(&sb, "\nUnlocked: %s", strings.Join(v.Last.NewlyAvailable, ", "))
		}
	}
	fmt.Fprintf(&sb, "\nPot: %s gp", v.Pot.String())
	return sb.String()
}

func renderBuffUse(nodeID string, v hunt.TeamView) string {
	if v.Last == nil || v.Last.BuffUsage == nil {
		return fmt.Sprintf("Buff applied to `%s`.", nodeID)
	}
	u := v.Last.BuffUsage
	return fmt.Sprintf("%s applied to `%s`: %d → %d.", u.BuffName, nodeID, u.OriginalRequirement, u.ReducedRequirement)
}

func renderPurchase(nodeID string, v hunt.TeamView) string {
	if v.Last == nil || v.Last.Transaction == nil {
		return fmt.Sprintf("Traded at `%s`. Pot: %s gp", nodeID, v.Pot.String())
	}
	tx := v.Last.Transaction
	var sb strings.Builder
	fmt.Fprintf(&sb, "Traded %s at `%s` for %d gp.", formatKeys(tx.KeysSpent), nodeID, tx.Payout)
	for _, b := range tx.BuffsGranted {
		fmt.Fprintf(&sb, " Buff: %s.", b.Name)
	}
	fmt.Fprintf(&sb, "\nPot: %s gp", v.Pot.String())
	return sb.String()
}

func formatKeys(keys []hunt.KeyStack) string {
	if len(keys) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s x%d", k.Color, k.Quantity))
	}
	return strings.Join(parts, ", ")
}
