package indexdb

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"sketchcraft.ai/internal/gen"
	"sketchcraft.ai/internal/media/cache"
)

type JobRow struct {
	Hash      string       `json:"hash"`
	Type      string       `json:"type"`
	Style     string       `json:"style"`
	State     gen.JobState `json:"state"`
	Frames    int          `json:"frames"`
	FromCache bool         `json:"from_cache"`
	Error     string       `json:"error,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Job returns the latest state of a job. ok is false for unknown hashes.
func (s *SQLiteIndex) Job(ctx context.Context, hash string) (JobRow, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT hash,type,style,state,frames,from_cache,COALESCE(error,''),created_at,updated_at FROM jobs WHERE hash=?`, hash)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return JobRow{}, false, nil
	}
	if err != nil {
		return JobRow{}, false, err
	}
	return j, true, nil
}

// JobsByState lists jobs in state, most recently updated first.
func (s *SQLiteIndex) JobsByState(ctx context.Context, state gen.JobState, limit int) ([]JobRow, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `SELECT hash,type,style,state,frames,from_cache,COALESCE(error,''),created_at,updated_at
		FROM jobs WHERE state=? ORDER BY updated_at DESC LIMIT ?`, string(state), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []JobRow
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(sc scanner) (JobRow, error) {
	var (
		j                JobRow
		state            string
		fromCache        int
		created, updated string
	)
	if err := sc.Scan(&j.Hash, &j.Type, &j.Style, &state, &j.Frames, &fromCache, &j.Error, &created, &updated); err != nil {
		return JobRow{}, err
	}
	j.State = gen.JobState(state)
	j.FromCache = fromCache != 0
	j.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	j.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return j, nil
}

// MediaCount reports how many pool entries are indexed per kind.
func (s *SQLiteIndex) MediaCount(ctx context.Context) (map[cache.Kind]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT kind, COUNT(*) FROM media GROUP BY kind`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[cache.Kind]int{}
	for rows.Next() {
		var k string
		var n int
		if err := rows.Scan(&k, &n); err != nil {
			return nil, err
		}
		out[cache.Kind(k)] = n
	}
	return out, rows.Err()
}

// SessionEventCount counts indexed events of one session.
func (s *SQLiteIndex) SessionEventCount(ctx context.Context, session string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM session_events WHERE session=?`, session).Scan(&n)
	return n, err
}
