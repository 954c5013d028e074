package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// Session is a persisted summary of one video annotation session.
type Session struct {
	ID        string         `json:"id"`
	StartedAt time.Time      `json:"started_at"`
	StoppedAt *time.Time     `json:"stopped_at,omitempty"`
	Counts    map[string]int `json:"summary"`
	Total     int            `json:"total"`
}

// SessionRepository provides access to persisted video sessions.
type SessionRepository struct {
	db *sql.DB
}

// Sessions returns the session repository for this store.
func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{db: s.db}
}

// Save inserts the session or replaces the existing row with the same ID.
// Repeated stops of one session therefore keep a single, latest summary.
func (r *SessionRepository) Save(sess *Session) error {
	counts := sess.Counts
	if counts == nil {
		counts = map[string]int{}
	}
	data, err := json.Marshal(counts)
	if err != nil {
		return fmt.Errorf("failed to encode counts: %w", err)
	}

	_, err = r.db.Exec(
		`INSERT INTO sessions (id, started_at, stopped_at, counts, total)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			stopped_at = excluded.stopped_at,
			counts = excluded.counts,
			total = excluded.total`,
		sess.ID, sess.StartedAt, sess.StoppedAt, string(data), sess.Total,
	)
	return err
}

// GetByID retrieves a session by its ID.
func (r *SessionRepository) GetByID(id string) (*Session, error) {
	row := r.db.QueryRow(
		`SELECT id, started_at, stopped_at, counts, total FROM sessions WHERE id = ?`,
		id,
	)
	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return sess, nil
}

// List returns the most recently started sessions first. A limit <= 0
// returns every session.
func (r *SessionRepository) List(limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.Query(
		`SELECT id, started_at, stopped_at, counts, total
		 FROM sessions ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []*Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sessions, nil
}

// Delete removes a session by its ID.
func (r *SessionRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	sess := &Session{}
	var stoppedAt sql.NullTime
	var counts string

	if err := row.Scan(&sess.ID, &sess.StartedAt, &stoppedAt, &counts, &sess.Total); err != nil {
		return nil, err
	}

	if stoppedAt.Valid {
		t := stoppedAt.Time
		sess.StoppedAt = &t
	}
	sess.Counts = map[string]int{}
	if err := json.Unmarshal([]byte(counts), &sess.Counts); err != nil {
		return nil, fmt.Errorf("failed to decode counts for session %s: %w", sess.ID, err)
	}

	return sess, nil
}
