package hunt

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
)

// MemoryStore keeps events and teams in process. Writers to the same record
// queue on a per-record mutex; different teams never contend. Team updates
// hold their event's lock shared, so an event update waits for them.
type MemoryStore struct {
	mu     sync.Mutex
	events map[string]*Event
	teams  map[string]map[string]*TeamState
	locks  map[string]*sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events: map[string]*Event{},
		teams:  map[string]map[string]*TeamState{},
		locks:  map[string]*sync.RWMutex{},
	}
}

func (m *MemoryStore) lockFor(key string) *sync.RWMutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[key]
	if !ok {
		l = &sync.RWMutex{}
		m.locks[key] = l
	}
	return l
}

func (m *MemoryStore) CreateEvent(_ context.Context, ev *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[ev.ID]; ok {
		return fmt.Errorf("event %s already exists", ev.ID)
	}
	m.events[ev.ID] = ev.Clone()
	m.teams[ev.ID] = map[string]*TeamState{}
	return nil
}

func (m *MemoryStore) Event(_ context.Context, eventID string) (*Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[eventID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEventNotFound, eventID)
	}
	return ev.Clone(), nil
}

func (m *MemoryStore) EventStatus(ctx context.Context, eventID string) (EventStatus, error) {
	ev, err := m.Event(ctx, eventID)
	if err != nil {
		return "", err
	}
	return ev.Status, nil
}

func (m *MemoryStore) EventIDs(_ context.Context, status EventStatus) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for id, ev := range m.events {
		if ev.Status == status {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out, nil
}

func (m *MemoryStore) UpdateEvent(ctx context.Context, eventID string, fn func(context.Context, *Event) error) (*Event, error) {
	l := m.lockFor("event/" + eventID)
	l.Lock()
	defer l.Unlock()

	cur, err := m.Event(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if err := fn(ctx, cur); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.events[eventID] = cur
	m.mu.Unlock()
	return cur.Clone(), nil
}

func (m *MemoryStore) InsertTeam(_ context.Context, t *TeamState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	teams, ok := m.teams[t.EventID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrEventNotFound, t.EventID)
	}
	if _, dup := teams[t.TeamID]; dup {
		return fmt.Errorf("%w: %s", ErrTeamExists, t.TeamID)
	}
	teams[t.TeamID] = t.Clone()
	return nil
}

func (m *MemoryStore) Team(_ context.Context, eventID, teamID string) (*TeamState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.teams[eventID][teamID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTeamNotFound, teamID)
	}
	return t.Clone(), nil
}

func (m *MemoryStore) Teams(_ context.Context, eventID string) ([]*TeamState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	teams, ok := m.teams[eventID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEventNotFound, eventID)
	}
	out := make([]*TeamState, 0, len(teams))
	for _, t := range teams {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TeamID < out[j].TeamID })
	return out, nil
}

func (m *MemoryStore) UpdateTeam(ctx context.Context, eventID, teamID string, fn func(context.Context, *TeamState) error) (*TeamState, error) {
	el := m.lockFor("event/" + eventID)
	el.RLock()
	defer el.RUnlock()
	l := m.lockFor("team/" + eventID + "/" + teamID)
	l.Lock()
	defer l.Unlock()

	next, err := m.Team(ctx, eventID, teamID)
	if err != nil {
		return nil, err
	}
	if err := fn(ctx, next); err != nil {
		return nil, err
	}
	next.Version++
	m.mu.Lock()
	m.teams[eventID][teamID] = next
	m.mu.Unlock()
	return next.Clone(), nil
}
