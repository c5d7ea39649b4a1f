package hunt

import (
	"context"
	"fmt"
	"strings"
)

type AdminInput struct {
	EventID string
	TeamID  string
	NodeID  string
	AdminID string
	Note    string
}

// AdminComplete completes a node for a team without proof or a membership
// check. Budget caps and reachability still apply: an admin cannot complete
// a locked node.
func (s *Service) AdminComplete(ctx context.Context, in AdminInput) (TeamView, error) {
	if strings.TrimSpace(in.AdminID) == "" {
		return TeamView{}, fmt.Errorf("%w: admin id is required", ErrInvalidInput)
	}
	return s.mutate(ctx, "admin_complete", in.EventID, in.TeamID, in.NodeID, func(e *Engine, t *TeamState) (Outcome, error) {
		return e.CompleteNode(t, Completion{NodeID: in.NodeID, Proof: in.Note, Actor: in.AdminID, Admin: true})
	})
}

// AdminUncomplete reverses exactly what the node's completion granted and
// re-locks nodes that lost their only unlocking path.
func (s *Service) AdminUncomplete(ctx context.Context, in AdminInput) (TeamView, error) {
	if strings.TrimSpace(in.AdminID) == "" {
		return TeamView{}, fmt.Errorf("%w: admin id is required", ErrInvalidInput)
	}
	return s.mutate(ctx, "admin_uncomplete", in.EventID, in.TeamID, in.NodeID, func(e *Engine, t *TeamState) (Outcome, error) {
		return e.UncompleteNode(t, in.NodeID, in.AdminID)
	})
}
