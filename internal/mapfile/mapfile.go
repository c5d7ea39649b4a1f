// Package mapfile reads hunt maps written in YAML (or JSON, which YAML
// accepts) into a validated node graph and the event's budget parameters.
package mapfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lemonphresh/osrsbingo-sub001/internal/hunt"
)

type Map struct {
	Name      string
	PrizePool int64
	TeamCaps  map[string]int64
	Graph     *hunt.Graph
}

type mapDoc struct {
	Name      string           `yaml:"name"`
	PrizePool int64            `yaml:"prize_pool"`
	TeamCaps  map[string]int64 `yaml:"team_caps"`
	Nodes     []nodeDoc        `yaml:"nodes"`
}

type nodeDoc struct {
	ID         string         `yaml:"id"`
	Name       string         `yaml:"name"`
	Type       string         `yaml:"type"`
	UnlockRule string         `yaml:"unlock_rule"`
	Objective  *objectiveDoc  `yaml:"objective"`
	Rewards    rewardsDoc     `yaml:"rewards"`
	Unlocks    []string       `yaml:"unlocks"`
	InnRewards []innRewardDoc `yaml:"inn_rewards"`
}

type objectiveDoc struct {
	Type     string `yaml:"type"`
	Target   string `yaml:"target"`
	Quantity int    `yaml:"quantity"`
}

type rewardsDoc struct {
	GP    int64          `yaml:"gp"`
	Keys  map[string]int `yaml:"keys"`
	Buffs []buffDoc      `yaml:"buffs"`
}

type buffDoc struct {
	ID         string   `yaml:"id"`
	Name       string   `yaml:"name"`
	Type       string   `yaml:"type"`
	Objectives []string `yaml:"objectives"`
	Reduction  float64  `yaml:"reduction"`
	Uses       int      `yaml:"uses"`
}

type innRewardDoc struct {
	ID      string         `yaml:"id"`
	Name    string         `yaml:"name"`
	KeyCost map[string]int `yaml:"key_cost"`
	Payout  int64          `yaml:"payout"`
	Buffs   []buffDoc      `yaml:"buffs"`
}

// Load reads a map file from disk.
func Load(path string) (Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Map{}, fmt.Errorf("read map file: %w", err)
	}
	m, err := Parse(data)
	if err != nil {
		return Map{}, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Parse decodes a map document. Unknown fields are rejected so a typo in a
// hand-written map fails loudly instead of silently dropping a reward.
func Parse(data []byte) (Map, error) {
	var doc mapDoc
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return Map{}, fmt.Errorf("%w: empty map file", hunt.ErrInvalidGraph)
		}
		return Map{}, fmt.Errorf("%w: parse map: %v", hunt.ErrInvalidGraph, err)
	}
	if doc.PrizePool < 0 {
		return Map{}, fmt.Errorf("%w: prize_pool must be >= 0", hunt.ErrInvalidGraph)
	}

	nodes := make([]hunt.Node, 0, len(doc.Nodes))
	for _, nd := range doc.Nodes {
		nodes = append(nodes, nd.node())
	}
	g, err := hunt.NewGraph(nodes)
	if err != nil {
		return Map{}, err
	}
	return Map{
		Name:      strings.TrimSpace(doc.Name),
		PrizePool: doc.PrizePool,
		TeamCaps:  doc.TeamCaps,
		Graph:     g,
	}, nil
}

func (nd nodeDoc) node() hunt.Node {
	n := hunt.Node{
		ID:         strings.TrimSpace(nd.ID),
		Name:       nd.Name,
		Type:       hunt.NodeType(strings.ToUpper(strings.TrimSpace(nd.Type))),
		UnlockRule: hunt.UnlockRule(strings.ToLower(strings.TrimSpace(nd.UnlockRule))),
		Rewards: hunt.Rewards{
			GP:    nd.Rewards.GP,
			Keys:  keyStacks(nd.Rewards.Keys),
			Buffs: buffs(nd.Rewards.Buffs),
		},
		Unlocks: nd.Unlocks,
	}
	if nd.Objective != nil {
		n.Objective = &hunt.Objective{
			Type:     hunt.ObjectiveType(nd.Objective.Type),
			Target:   nd.Objective.Target,
			Quantity: nd.Objective.Quantity,
		}
	}
	for _, r := range nd.InnRewards {
		n.InnRewards = append(n.InnRewards, hunt.InnReward{
			ID:           r.ID,
			Name:         r.Name,
			KeyCost:      keyStacks(r.KeyCost),
			Payout:       r.Payout,
			BuffsGranted: buffs(r.Buffs),
		})
	}
	return n
}

// keyStacks turns a color -> quantity mapping into stacks sorted by color.
func keyStacks(m map[string]int) []hunt.KeyStack {
	if len(m) == 0 {
		return nil
	}
	out := make([]hunt.KeyStack, 0, len(m))
	for color, qty := range m {
		out = append(out, hunt.KeyStack{Color: color, Quantity: qty})
	}
	slices.SortFunc(out, func(a, b hunt.KeyStack) int { return strings.Compare(a.Color, b.Color) })
	return out
}

func buffs(docs []buffDoc) []hunt.Buff {
	if len(docs) == 0 {
		return nil
	}
	out := make([]hunt.Buff, 0, len(docs))
	for _, d := range docs {
		b := hunt.Buff{
			ID:            d.ID,
			Name:          d.Name,
			Type:          d.Type,
			Reduction:     d.Reduction,
			UsesRemaining: d.Uses,
		}
		if b.UsesRemaining == 0 {
			b.UsesRemaining = 1
		}
		for _, o := range d.Objectives {
			b.ObjectiveTypes = append(b.ObjectiveTypes, hunt.ObjectiveType(o))
		}
		out = append(out, b)
	}
	return out
}
