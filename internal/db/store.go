package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lemonphresh/osrsbingo-sub001/internal/hunt"
)

// Store keeps each event and each team as one JSONB document. Updates run
// in serializable transactions that lock the row they rewrite, and are
// retried with backoff when Postgres reports a serialization failure.
type Store struct {
	db  *pgxpool.Pool
	log *slog.Logger

	MaxAttempts int
	RetryDelay  time.Duration
}

var _ hunt.Store = (*Store)(nil)

func NewStore(db *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, log: logger, MaxAttempts: 8, RetryDelay: 75 * time.Millisecond}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txKey struct{}

func withTxContext(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

func txFrom(ctx context.Context) (pgx.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(pgx.Tx)
	return tx, ok
}

// q returns the transaction carried by ctx, or the pool.
func (s *Store) q(ctx context.Context) querier {
	if tx, ok := txFrom(ctx); ok {
		return tx
	}
	return s.db
}

// inTx runs fn in a serializable transaction and commits it. When ctx already
// carries a transaction fn joins it and the outer caller commits.
func (s *Store) inTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	if tx, ok := txFrom(ctx); ok {
		return fn(ctx, tx)
	}
	retryDelay := s.RetryDelay
	for attempt := 0; attempt < s.MaxAttempts; attempt++ {
		tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
		if err != nil {
			return err
		}
		err = func() error {
			defer tx.Rollback(ctx)
			if err := fn(withTxContext(ctx, tx), tx); err != nil {
				return err
			}
			return tx.Commit(ctx)
		}()
		if err == nil {
			return nil
		}
		if !isSerializationError(err) {
			return err
		}
		s.log.Debug("serialization failure, retrying", "attempt", attempt+1, "delay", retryDelay)
		if attempt == s.MaxAttempts-1 {
			break
		}
		if err := sleepWithContext(ctx, retryDelay); err != nil {
			return err
		}
		if retryDelay < 1200*time.Millisecond {
			retryDelay *= 2
		}
	}
	return hunt.ErrTxConflict
}

func (s *Store) CreateEvent(ctx context.Context, ev *hunt.Event) error {
	doc, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	_, err = s.q(ctx).Exec(ctx, `
		INSERT INTO hunt.events (id, name, status, doc, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
	`, ev.ID, ev.Name, string(ev.Status), doc, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (s *Store) Event(ctx context.Context, eventID string) (*hunt.Event, error) {
	return scanEvent(s.q(ctx).QueryRow(ctx, `SELECT doc FROM hunt.events WHERE id = $1`, eventID), eventID)
}

// EventStatus reads the status of an event. Inside a transaction the row is
// share-locked until commit so the event cannot change under the caller.
func (s *Store) EventStatus(ctx context.Context, eventID string) (hunt.EventStatus, error) {
	query := `SELECT status FROM hunt.events WHERE id = $1`
	if _, ok := txFrom(ctx); ok {
		query += ` FOR SHARE`
	}
	var status string
	err := s.q(ctx).QueryRow(ctx, query, eventID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", hunt.ErrEventNotFound, eventID)
	}
	if err != nil {
		return "", err
	}
	return hunt.EventStatus(status), nil
}

func (s *Store) EventIDs(ctx context.Context, status hunt.EventStatus) ([]string, error) {
	rows, err := s.q(ctx).Query(ctx, `SELECT id FROM hunt.events WHERE status = $1 ORDER BY id`, string(status))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (s *Store) UpdateEvent(ctx context.Context, eventID string, fn func(context.Context, *hunt.Event) error) (*hunt.Event, error) {
	var out *hunt.Event
	err := s.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		ev, err := scanEvent(tx.QueryRow(ctx, `SELECT doc FROM hunt.events WHERE id = $1 FOR UPDATE`, eventID), eventID)
		if err != nil {
			return err
		}
		if err := fn(ctx, ev); err != nil {
			return err
		}
		doc, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("encode event: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE hunt.events
			SET name = $2, status = $3, doc = $4, updated_at = now()
			WHERE id = $1
		`, eventID, ev.Name, string(ev.Status), doc); err != nil {
			return err
		}
		out = ev
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) InsertTeam(ctx context.Context, t *hunt.TeamState) error {
	doc, err := encodeTeam(t)
	if err != nil {
		return err
	}
	cmd, err := s.q(ctx).Exec(ctx, `
		INSERT INTO hunt.teams (event_id, team_id, doc, version)
		SELECT $1, $2, $3, $4
		WHERE EXISTS (SELECT 1 FROM hunt.events WHERE id = $1)
		ON CONFLICT (event_id, team_id) DO NOTHING
	`, t.EventID, t.TeamID, doc, t.Version)
	if err != nil {
		return fmt.Errorf("insert team: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		if _, err := s.EventStatus(ctx, t.EventID); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s", hunt.ErrTeamExists, t.TeamID)
	}
	return nil
}

func (s *Store) Team(ctx context.Context, eventID, teamID string) (*hunt.TeamState, error) {
	return scanTeam(s.q(ctx).QueryRow(ctx, `
		SELECT doc, version FROM hunt.teams WHERE event_id = $1 AND team_id = $2
	`, eventID, teamID), teamID)
}

func (s *Store) Teams(ctx context.Context, eventID string) ([]*hunt.TeamState, error) {
	if _, err := s.EventStatus(ctx, eventID); err != nil {
		return nil, err
	}
	rows, err := s.q(ctx).Query(ctx, `
		SELECT doc, version FROM hunt.teams WHERE event_id = $1 ORDER BY team_id
	`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*hunt.TeamState
	for rows.Next() {
		t, err := scanTeam(rows, "")
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpdateTeam locks the team row, applies fn and writes the document back
// with an audit row, all in one transaction.
func (s *Store) UpdateTeam(ctx context.Context, eventID, teamID string, fn func(context.Context, *hunt.TeamState) error) (*hunt.TeamState, error) {
	var out *hunt.TeamState
	err := s.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		t, err := scanTeam(tx.QueryRow(ctx, `
			SELECT doc, version FROM hunt.teams
			WHERE event_id = $1 AND team_id = $2
			FOR UPDATE
		`, eventID, teamID), teamID)
		if err != nil {
			return err
		}
		if err := fn(ctx, t); err != nil {
			return err
		}
		t.Version++
		doc, err := encodeTeam(t)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE hunt.teams
			SET doc = $3, version = $4, updated_at = now()
			WHERE event_id = $1 AND team_id = $2
		`, eventID, teamID, doc, t.Version); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO hunt.team_audit (event_id, team_id, version, pot, completions, doc)
			VALUES ($1, $2, $3, $4::text::numeric, $5, $6)
		`, eventID, teamID, t.Version, t.CurrentPot.String(), len(t.Completions), doc); err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func scanEvent(row pgx.Row, eventID string) (*hunt.Event, error) {
	var doc []byte
	if err := row.Scan(&doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", hunt.ErrEventNotFound, eventID)
		}
		return nil, err
	}
	var ev hunt.Event
	if err := json.Unmarshal(doc, &ev); err != nil {
		return nil, fmt.Errorf("decode event %s: %w", eventID, err)
	}
	return &ev, nil
}

func scanTeam(row pgx.Row, teamID string) (*hunt.TeamState, error) {
	var (
		doc     []byte
		version int64
	)
	if err := row.Scan(&doc, &version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", hunt.ErrTeamNotFound, teamID)
		}
		return nil, err
	}
	t, err := decodeTeam(doc)
	if err != nil {
		return nil, err
	}
	t.Version = version
	return t, nil
}

func encodeTeam(t *hunt.TeamState) ([]byte, error) {
	doc, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("encode team %s: %w", t.TeamID, err)
	}
	return doc, nil
}

// decodeTeam restores a team document, filling in collections that an older
// or hand-edited document may have left null.
func decodeTeam(doc []byte) (*hunt.TeamState, error) {
	var t hunt.TeamState
	if err := json.Unmarshal(doc, &t); err != nil {
		return nil, fmt.Errorf("decode team: %w", err)
	}
	return t.Clone(), nil
}

func isSerializationError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "40001"
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
