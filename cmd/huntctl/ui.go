package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"
	"golang.org/x/term"

	"github.com/lemonphresh/osrsbingo-sub001/internal/hunt"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)
)

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printError(msg string) {
	danger.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func promptRequired(label string) (string, error) {
	for {
		fmt.Printf("%s: ", label)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

// promptSecret reads without echo when stdin is a terminal and falls back
// to a plain line read for piped input.
func promptSecret(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return promptRequired(label)
	}
	for {
		fmt.Printf("%s: ", label)
		raw, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", err
		}
		text := strings.TrimSpace(string(raw))
		if text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

func renderEvent(ev *hunt.Event) {
	accent.Printf("\n== %s ==\n", strings.ToUpper(ev.Name))
	fmt.Printf("ID:          %s\n", ev.ID)
	fmt.Printf("Status:      %s\n", colorizeStatus(ev.Status))
	fmt.Printf("Prize pool:  %s gp\n", comma(decimal.NewFromInt(ev.Budget.PrizePool)))
	if ev.Budget.TeamCount > 0 {
		fmt.Printf("Teams:       %d\n", ev.Budget.TeamCount)
	}
	for team, limit := range ev.Budget.TeamCaps {
		fmt.Printf("Cap override %s: %s gp\n", team, comma(decimal.NewFromInt(limit)))
	}
	if ev.Graph != nil {
		fmt.Printf("Nodes:       %d\n", ev.Graph.Len())
	}
	if ev.LaunchedAt != nil {
		fmt.Printf("Launched:    %s\n", ev.LaunchedAt.Local().Format("2006-01-02 15:04"))
	}
	if ev.EndedAt != nil {
		fmt.Printf("Ended:       %s\n", ev.EndedAt.Local().Format("2006-01-02 15:04"))
	}
	fmt.Println()
}

func colorizeStatus(s hunt.EventStatus) string {
	switch s {
	case hunt.EventActive:
		return success.Sprint(s)
	case hunt.EventEnded:
		return danger.Sprint(s)
	default:
		return warn.Sprint(s)
	}
}

func renderTeams(teams []hunt.TeamView) {
	if len(teams) == 0 {
		printInfo("No teams yet.")
		return
	}
	fmt.Printf("%-14s %-20s %8s %14s %14s %6s %6s\n", "TEAM", "NAME", "MEMBERS", "POT", "REMAINING", "DONE", "OPEN")
	for _, t := range teams {
		fmt.Printf("%-14s %-20s %8d %14s %14s %6d %6d\n",
			truncate(t.TeamID, 14),
			truncate(t.Name, 20),
			len(t.Members),
			comma(t.Pot),
			comma(t.Remaining),
			len(t.Completed),
			len(t.Available),
		)
	}
	fmt.Println()
}

func renderTeam(v hunt.TeamView) {
	accent.Printf("\n== %s (%s) ==\n", v.Name, v.TeamID)
	fmt.Printf("Pot:        %s gp\n", comma(v.Pot))
	fmt.Printf("Cap:        %s gp\n", comma(v.Cap))
	fmt.Printf("Remaining:  %s gp\n", comma(v.Remaining))
	fmt.Printf("Members:    %s\n", strings.Join(v.Members, ", "))
	fmt.Printf("Completed:  %s\n", joinOrNone(v.Completed))
	fmt.Printf("Inns:       %s\n", joinOrNone(v.InnsVisited))
	fmt.Printf("Keys:       %s\n", formatKeys(v.Keys))

	fmt.Println()
	accent.Println("Buffs")
	if len(v.Buffs) == 0 {
		printInfo("No buffs held.")
	} else {
		fmt.Printf("%-38s %-20s %-28s %6s %5s\n", "ID", "NAME", "OBJECTIVES", "CUT", "USES")
		for _, b := range v.Buffs {
			types := make([]string, 0, len(b.ObjectiveTypes))
			for _, t := range b.ObjectiveTypes {
				types = append(types, string(t))
			}
			fmt.Printf("%-38s %-20s %-28s %5.0f%% %5d\n", b.ID, truncate(b.Name, 20), truncate(strings.Join(types, ","), 28), b.Reduction*100, b.UsesRemaining)
		}
	}

	fmt.Println()
	accent.Println("Open nodes")
	if len(v.Available) == 0 {
		printInfo("Nothing open.")
	} else {
		reqs := map[string]hunt.Requirement{}
		for _, r := range v.Requirements {
			reqs[r.NodeID] = r
		}
		fmt.Printf("%-16s %-10s %-14s %-20s %10s %12s\n", "NODE", "TYPE", "OBJECTIVE", "TARGET", "REQUIRED", "GP")
		for _, id := range v.Available {
			r, ok := reqs[id]
			if !ok {
				fmt.Printf("%-16s\n", truncate(id, 16))
				continue
			}
			required := fmt.Sprintf("%d", r.Required)
			if r.Required != r.Original {
				required = success.Sprintf("%d/%d", r.Required, r.Original)
			}
			fmt.Printf("%-16s %-10s %-14s %-20s %10s %12s\n",
				truncate(id, 16), r.NodeType, r.Type, truncate(r.Target, 20), required, comma(decimal.NewFromInt(r.RewardsGP)))
		}
	}
	fmt.Println()
}

func renderOutcome(v hunt.TeamView) {
	if v.Last == nil {
		renderTeam(v)
		return
	}
	o := v.Last
	if o.GPDelta != 0 {
		fmt.Printf("GP:          %s\n", colorizeGP(o.GPDelta))
	}
	if len(o.KeysGranted) > 0 {
		fmt.Printf("Keys gained: %s\n", formatKeys(o.KeysGranted))
	}
	if len(o.KeysRemoved) > 0 {
		fmt.Printf("Keys spent:  %s\n", formatKeys(o.KeysRemoved))
	}
	for _, b := range o.BuffsGranted {
		fmt.Printf("Buff gained: %s (%s)\n", b.Name, b.ID)
	}
	if len(o.BuffsRemoved) > 0 {
		fmt.Printf("Buffs lost:  %s\n", strings.Join(o.BuffsRemoved, ", "))
	}
	if o.BuffUsage != nil {
		fmt.Printf("Requirement: %d -> %d on %s\n", o.BuffUsage.OriginalRequirement, o.BuffUsage.ReducedRequirement, o.BuffUsage.UsedOn)
	}
	if len(o.NewlyAvailable) > 0 {
		fmt.Printf("Unlocked:    %s\n", success.Sprint(strings.Join(o.NewlyAvailable, ", ")))
	}
	if len(o.Relocked) > 0 {
		fmt.Printf("Re-locked:   %s\n", danger.Sprint(strings.Join(o.Relocked, ", ")))
	}
	if len(o.Restored) > 0 {
		fmt.Printf("Restored:    %s\n", warn.Sprint(strings.Join(o.Restored, ", ")))
	}
	fmt.Printf("Pot:         %s gp (%s remaining)\n", comma(v.Pot), comma(v.Remaining))
}

func renderReport(r hunt.ReconcileReport) {
	fmt.Printf("Teams checked: %d\n", r.TeamsChecked)
	if len(r.Repaired) > 0 {
		printWarn("Repaired: " + strings.Join(r.Repaired, ", "))
	}
	if len(r.OverBudget) > 0 {
		printError("Over budget: " + strings.Join(r.OverBudget, ", "))
	}
	if len(r.Repaired) == 0 && len(r.OverBudget) == 0 {
		printSuccess("No drift found.")
	}
}

func colorizeGP(v int64) string {
	text := comma(decimal.NewFromInt(v)) + " gp"
	switch {
	case v > 0:
		return success.Sprint("+" + text)
	case v < 0:
		return danger.Sprint(text)
	default:
		return neutral.Sprint(text)
	}
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

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}

// comma renders a whole-gp amount with thousands separators.
func comma(d decimal.Decimal) string {
	s := d.Truncate(0).String()
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	if len(s) <= 3 {
		if neg {
			return "-" + s
		}
		return s
	}
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
		b.WriteByte(',')
	}
	for i := pre; i < len(s); i += 3 {
		b.WriteString(s[i : i+3])
		if i+3 < len(s) {
			b.WriteByte(',')
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
