package hunt

import (
	"context"
	"maps"
	"time"
)

type Event struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Status     EventStatus `json:"status"`
	Budget     Budget      `json:"budget"`
	Graph      *Graph      `json:"graph,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	LaunchedAt *time.Time  `json:"launched_at,omitempty"`
	EndedAt    *time.Time  `json:"ended_at,omitempty"`
}

// Clone copies the event. The graph is immutable and shared.
func (ev *Event) Clone() *Event {
	out := *ev
	out.Budget.TeamCaps = maps.Clone(ev.Budget.TeamCaps)
	if ev.LaunchedAt != nil {
		at := *ev.LaunchedAt
		out.LaunchedAt = &at
	}
	if ev.EndedAt != nil {
		at := *ev.EndedAt
		out.EndedAt = &at
	}
	return &out
}

// Store persists events and team states.
//
// UpdateEvent and UpdateTeam give fn exclusive access to one record: fn
// works on a private copy that is saved only when fn returns nil. A store
// may invoke fn more than once when it retries a conflicting transaction,
// so fn must not have side effects outside the store. Store calls made from
// inside fn must use the context fn receives; they join the update scope.
// An event update never commits while an update of one of its teams is in
// flight, so a status read inside UpdateTeam holds until that team commits.
type Store interface {
	CreateEvent(ctx context.Context, ev *Event) error
	Event(ctx context.Context, eventID string) (*Event, error)
	EventStatus(ctx context.Context, eventID string) (EventStatus, error)
	EventIDs(ctx context.Context, status EventStatus) ([]string, error)
	UpdateEvent(ctx context.Context, eventID string, fn func(context.Context, *Event) error) (*Event, error)

	InsertTeam(ctx context.Context, t *TeamState) error
	Team(ctx context.Context, eventID, teamID string) (*TeamState, error)
	Teams(ctx context.Context, eventID string) ([]*TeamState, error)
	UpdateTeam(ctx context.Context, eventID, teamID string, fn func(context.Context, *TeamState) error) (*TeamState, error)
}
