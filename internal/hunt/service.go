package hunt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Service struct {
	store Store
	log   *slog.Logger
	now   func() time.Time
	newID func() string

	mu      sync.Mutex
	engines map[string]*Engine
}

func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:   store,
		log:     logger,
		now:     time.Now,
		newID:   uuid.NewString,
		engines: map[string]*Engine{},
	}
}

type CreateEventInput struct {
	Name      string
	PrizePool int64
	TeamCaps  map[string]int64
	Graph     *Graph
}

type AddTeamInput struct {
	EventID string
	TeamID  string
	Name    string
	Members []string
}

type CompleteNodeInput struct {
	EventID     string
	TeamID      string
	NodeID      string
	Proof       string
	SubmittedBy string
}

type ApplyBuffInput struct {
	EventID string
	TeamID  string
	NodeID  string
	BuffID  string
	Caller  string
}

type PurchaseInput struct {
	EventID  string
	TeamID   string
	NodeID   string
	RewardID string
	Caller   string
}

func (s *Service) CreateEvent(ctx context.Context, in CreateEventInput) (*Event, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, fmt.Errorf("%w: event name is required", ErrInvalidInput)
	}
	if in.PrizePool < 0 {
		return nil, fmt.Errorf("%w: prize pool must be >= 0", ErrInvalidInput)
	}
	ev := &Event{
		ID:        s.newID(),
		Name:      in.Name,
		Status:    EventDraft,
		Budget:    Budget{PrizePool: in.PrizePool, TeamCaps: in.TeamCaps},
		Graph:     in.Graph,
		CreatedAt: s.now(),
	}
	if err := s.store.CreateEvent(ctx, ev); err != nil {
		return nil, err
	}
	s.log.Info("event created", "event_id", ev.ID, "name", ev.Name, "prize_pool", in.PrizePool)
	return ev, nil
}

func (s *Service) Event(ctx context.Context, eventID string) (*Event, error) {
	return s.store.Event(ctx, eventID)
}

// ReplaceGraph swaps the node graph of an event that has not launched yet.
func (s *Service) ReplaceGraph(ctx context.Context, eventID string, g *Graph) (*Event, error) {
	if g == nil {
		return nil, fmt.Errorf("%w: graph is required", ErrInvalidGraph)
	}
	ev, err := s.store.UpdateEvent(ctx, eventID, func(_ context.Context, ev *Event) error {
		if ev.Status != EventDraft {
			return fmt.Errorf("%w: %s is %s", ErrEventLaunched, ev.ID, ev.Status)
		}
		ev.Graph = g
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("event graph replaced", "event_id", eventID, "nodes", g.Len())
	return ev, nil
}

func (s *Service) AddTeam(ctx context.Context, in AddTeamInput) (TeamView, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return TeamView{}, fmt.Errorf("%w: team name is required", ErrInvalidInput)
	}
	if strings.TrimSpace(in.TeamID) == "" {
		in.TeamID = s.newID()
	}
	var team *TeamState
	ev, err := s.store.UpdateEvent(ctx, in.EventID, func(ctx context.Context, ev *Event) error {
		if ev.Status != EventDraft {
			return fmt.Errorf("%w: teams join only while %s is a draft", ErrEventLaunched, ev.ID)
		}
		team = NewTeamState(ev.ID, in.TeamID, in.Name, in.Members, ev.Graph, s.now())
		return s.store.InsertTeam(ctx, team)
	})
	if err != nil {
		return TeamView{}, err
	}
	s.log.Info("team added", "event_id", ev.ID, "team_id", team.TeamID, "members", len(team.Members))
	return buildView(s.draftEngine(ev), team, nil), nil
}

// LaunchEvent freezes the graph and budget and opens the event for play.
// The budget's team count is fixed to the teams registered at launch.
func (s *Service) LaunchEvent(ctx context.Context, eventID string) (*Event, error) {
	ev, err := s.store.UpdateEvent(ctx, eventID, func(ctx context.Context, ev *Event) error {
		if ev.Status != EventDraft {
			return fmt.Errorf("%w: %s is %s", ErrEventLaunched, ev.ID, ev.Status)
		}
		if ev.Graph == nil {
			return fmt.Errorf("%w: event %s has no graph", ErrInvalidGraph, ev.ID)
		}
		teams, err := s.store.Teams(ctx, ev.ID)
		if err != nil {
			return err
		}
		if len(teams) == 0 {
			return fmt.Errorf("%w: event %s has no teams", ErrInvalidInput, ev.ID)
		}
		now := s.now()
		ev.Budget.TeamCount = len(teams)
		ev.Status = EventActive
		ev.LaunchedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	eng := s.cacheEngine(ev)
	teams, err := s.store.Teams(ctx, ev.ID)
	if err != nil {
		return nil, err
	}
	for _, t := range teams {
		if _, err := s.store.UpdateTeam(ctx, ev.ID, t.TeamID, func(_ context.Context, t *TeamState) error {
			t.refreshAvailable(eng.graph)
			return nil
		}); err != nil {
			return nil, err
		}
	}
	s.log.Info("event launched", "event_id", ev.ID, "teams", ev.Budget.TeamCount, "cap", eng.budget.Cap("").String())
	return ev, nil
}

func (s *Service) EndEvent(ctx context.Context, eventID string) (*Event, error) {
	ev, err := s.store.UpdateEvent(ctx, eventID, func(_ context.Context, ev *Event) error {
		if ev.Status != EventActive {
			return fmt.Errorf("%w: %s is %s", ErrEventNotActive, ev.ID, ev.Status)
		}
		now := s.now()
		ev.Status = EventEnded
		ev.EndedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("event ended", "event_id", ev.ID)
	return ev, nil
}

func (s *Service) CompleteNode(ctx context.Context, in CompleteNodeInput) (TeamView, error) {
	return s.mutate(ctx, "complete_node", in.EventID, in.TeamID, in.NodeID, func(e *Engine, t *TeamState) (Outcome, error) {
		if !t.IsMember(in.SubmittedBy) {
			return Outcome{}, fmt.Errorf("%w: %s", ErrNotTeamMember, in.SubmittedBy)
		}
		return e.CompleteNode(t, Completion{NodeID: in.NodeID, Proof: in.Proof, Actor: in.SubmittedBy})
	})
}

func (s *Service) ApplyBuff(ctx context.Context, in ApplyBuffInput) (TeamView, error) {
	return s.mutate(ctx, "apply_buff", in.EventID, in.TeamID, in.NodeID, func(e *Engine, t *TeamState) (Outcome, error) {
		if !t.IsMember(in.Caller) {
			return Outcome{}, fmt.Errorf("%w: %s", ErrNotTeamMember, in.Caller)
		}
		return e.ApplyBuff(t, in.NodeID, in.BuffID, in.Caller)
	})
}

func (s *Service) PurchaseInnReward(ctx context.Context, in PurchaseInput) (TeamView, error) {
	return s.mutate(ctx, "purchase_inn_reward", in.EventID, in.TeamID, in.NodeID, func(e *Engine, t *TeamState) (Outcome, error) {
		return e.PurchaseReward(t, Purchase{NodeID: in.NodeID, RewardID: in.RewardID, Caller: in.Caller})
	})
}

// mutate runs op against one team inside the store's exclusive update scope
// and renders the committed state.
func (s *Service) mutate(ctx context.Context, action, eventID, teamID, nodeID string, op func(*Engine, *TeamState) (Outcome, error)) (TeamView, error) {
	eng, err := s.activeEngine(ctx, eventID)
	if err != nil {
		return TeamView{}, err
	}
	var out Outcome
	team, err := s.store.UpdateTeam(ctx, eventID, teamID, func(ctx context.Context, t *TeamState) error {
		// EndEvent may have committed since activeEngine looked.
		status, err := s.store.EventStatus(ctx, eventID)
		if err != nil {
			return err
		}
		if status != EventActive {
			return fmt.Errorf("%w: %s is %s", ErrEventNotActive, eventID, status)
		}
		o, err := op(eng, t)
		if err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		level := slog.LevelInfo
		if IsFatal(err) {
			level = slog.LevelError
		}
		s.log.Log(ctx, level, action+" rejected", "event_id", eventID, "team_id", teamID, "node_id", nodeID, "code", CodeOf(err), "err", err)
		return TeamView{}, err
	}
	s.log.Info(action, "event_id", eventID, "team_id", teamID, "node_id", nodeID,
		"gp_delta", out.GPDelta, "pot", team.CurrentPot.String(), "unlocked", len(out.NewlyAvailable), "relocked", len(out.Relocked))
	return buildView(eng, team, &out), nil
}

func (s *Service) TeamView(ctx context.Context, eventID, teamID string) (TeamView, error) {
	eng, err := s.viewEngine(ctx, eventID)
	if err != nil {
		return TeamView{}, err
	}
	t, err := s.store.Team(ctx, eventID, teamID)
	if err != nil {
		return TeamView{}, err
	}
	return buildView(eng, t, nil), nil
}

// TeamForMember finds the team a linked identity plays for.
func (s *Service) TeamForMember(ctx context.Context, eventID, identity string) (TeamView, error) {
	eng, err := s.viewEngine(ctx, eventID)
	if err != nil {
		return TeamView{}, err
	}
	teams, err := s.store.Teams(ctx, eventID)
	if err != nil {
		return TeamView{}, err
	}
	for _, t := range teams {
		if t.IsMember(identity) {
			return buildView(eng, t, nil), nil
		}
	}
	return TeamView{}, fmt.Errorf("%w: no team has member %s", ErrTeamNotFound, identity)
}

func (s *Service) Teams(ctx context.Context, eventID string) ([]TeamView, error) {
	eng, err := s.viewEngine(ctx, eventID)
	if err != nil {
		return nil, err
	}
	teams, err := s.store.Teams(ctx, eventID)
	if err != nil {
		return nil, err
	}
	out := make([]TeamView, 0, len(teams))
	for _, t := range teams {
		out = append(out, buildView(eng, t, nil))
	}
	return out, nil
}

func (s *Service) activeEngine(ctx context.Context, eventID string) (*Engine, error) {
	status, err := s.store.EventStatus(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if status != EventActive {
		return nil, fmt.Errorf("%w: %s is %s", ErrEventNotActive, eventID, status)
	}
	return s.viewEngine(ctx, eventID)
}

// viewEngine returns the cached engine of a launched event, or a throwaway
// one for a draft whose graph may still change.
func (s *Service) viewEngine(ctx context.Context, eventID string) (*Engine, error) {
	s.mu.Lock()
	eng, ok := s.engines[eventID]
	s.mu.Unlock()
	if ok {
		return eng, nil
	}
	ev, err := s.store.Event(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if ev.Status == EventDraft {
		return s.draftEngine(ev), nil
	}
	if ev.Graph == nil {
		return nil, fmt.Errorf("%w: event %s has no graph", ErrInvalidGraph, ev.ID)
	}
	return s.cacheEngine(ev), nil
}

func (s *Service) draftEngine(ev *Event) *Engine {
	g := ev.Graph
	if g == nil {
		g = &Graph{nodes: map[string]*Node{}}
	}
	return s.newEngine(g, ev.Budget)
}

func (s *Service) cacheEngine(ev *Event) *Engine {
	s.mu.Lock()
	defer s.mu.Unlock()
	if eng, ok := s.engines[ev.ID]; ok {
		return eng
	}
	eng := s.newEngine(ev.Graph, ev.Budget)
	s.engines[ev.ID] = eng
	return eng
}

func (s *Service) newEngine(g *Graph, b Budget) *Engine {
	eng := NewEngine(g, b)
	eng.Now = s.now
	eng.NewID = s.newID
	return eng
}

var errUnchanged = errors.New("unchanged")

type ReconcileReport struct {
	EventID      string   `json:"event_id"`
	TeamsChecked int      `json:"teams_checked"`
	Repaired     []string `json:"repaired"`
	OverBudget   []string `json:"over_budget"`
}

// Reconcile rewrites any persisted available-node set that drifted from
// the set derived from completed nodes, and reports teams whose pot exceeds
// their cap.
func (s *Service) Reconcile(ctx context.Context, eventID string) (ReconcileReport, error) {
	report := ReconcileReport{EventID: eventID, Repaired: []string{}, OverBudget: []string{}}
	eng, err := s.viewEngine(ctx, eventID)
	if err != nil {
		return report, err
	}
	teams, err := s.store.Teams(ctx, eventID)
	if err != nil {
		return report, err
	}
	for _, t := range teams {
		report.TeamsChecked++
		_, err := s.store.UpdateTeam(ctx, eventID, t.TeamID, func(_ context.Context, t *TeamState) error {
			unlocked, relocked := t.refreshAvailable(eng.graph)
			if len(unlocked) == 0 && len(relocked) == 0 {
				return errUnchanged
			}
			return nil
		})
		switch {
		case err == nil:
			report.Repaired = append(report.Repaired, t.TeamID)
			s.log.Warn("available nodes repaired", "event_id", eventID, "team_id", t.TeamID)
		case errors.Is(err, errUnchanged):
		default:
			return report, err
		}
		if t.CurrentPot.GreaterThan(eng.budget.Cap(t.TeamID)) {
			report.OverBudget = append(report.OverBudget, t.TeamID)
			s.log.Error("team pot exceeds cap", "event_id", eventID, "team_id", t.TeamID,
				"pot", t.CurrentPot.String(), "cap", eng.budget.Cap(t.TeamID).String())
		}
	}
	return report, nil
}

func (s *Service) ActiveEventIDs(ctx context.Context) ([]string, error) {
	return s.store.EventIDs(ctx, EventActive)
}
