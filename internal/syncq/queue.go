package syncq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindComplete Kind = "complete"
	KindBuff     Kind = "buff"
	KindInn      Kind = "inn"
)

// Submission is a player write that could not reach the API. Arg is the
// proof for a completion, the buff id or the Inn reward id.
type Submission struct {
	ID       string    `json:"id"`
	Kind     Kind      `json:"kind"`
	EventID  string    `json:"event_id"`
	TeamID   string    `json:"team_id"`
	NodeID   string    `json:"node_id"`
	Arg      string    `json:"arg,omitempty"`
	QueuedAt time.Time `json:"queued_at"`
}

func (s Submission) sameWrite(o Submission) bool {
	return s.Kind == o.Kind && s.EventID == o.EventID && s.TeamID == o.TeamID && s.NodeID == o.NodeID && s.Arg == o.Arg
}

func queuePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".huntctl")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return filepath.Join(dir, "queue.json"), nil
}

func Load() ([]Submission, error) {
	path, err := queuePath()
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Submission{}, nil
		}
		return nil, err
	}
	if len(raw) == 0 {
		return []Submission{}, nil
	}
	var out []Submission
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("corrupt queue file: %w", err)
	}
	return out, nil
}

func Save(entries []Submission) error {
	path, err := queuePath()
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []Submission{}
	}
	raw, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}

// Push appends s unless the same write is already queued, and returns the
// queued entry.
func Push(s Submission) (Submission, error) {
	entries, err := Load()
	if err != nil {
		return Submission{}, err
	}
	for _, e := range entries {
		if e.sameWrite(s) {
			return e, nil
		}
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.QueuedAt.IsZero() {
		s.QueuedAt = time.Now().UTC()
	}
	if err := Save(append(entries, s)); err != nil {
		return Submission{}, err
	}
	return s, nil
}

type Rejection struct {
	Entry Submission
	Err   error
}

type ReplayResult struct {
	Replayed  int
	Rejected  []Rejection
	Remaining []Submission
}

// Replay submits entries in queue order. Entries that fail with a retryable
// error stay queued along with everything after them for the same team, so
// a team's writes are never reordered. Other failures are dropped and
// reported as rejections.
func Replay(ctx context.Context, entries []Submission, submit func(context.Context, Submission) error, retryable func(error) bool) ReplayResult {
	res := ReplayResult{Remaining: []Submission{}}
	blocked := map[string]bool{}
	for _, e := range entries {
		key := e.EventID + "/" + e.TeamID
		if blocked[key] || ctx.Err() != nil {
			res.Remaining = append(res.Remaining, e)
			continue
		}
		err := submit(ctx, e)
		switch {
		case err == nil:
			res.Replayed++
		case retryable(err):
			blocked[key] = true
			res.Remaining = append(res.Remaining, e)
		default:
			res.Rejected = append(res.Rejected, Rejection{Entry: e, Err: err})
		}
	}
	return res
}
