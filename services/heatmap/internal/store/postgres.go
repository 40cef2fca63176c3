package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/playback-heatmap/services/heatmap/internal/playback"
)

// Schema creates the playback_actions table. Duplicate uploads of the same
// action collapse on the unique constraint.
const Schema = `
CREATE TABLE IF NOT EXISTS playback_actions (
	id          BIGSERIAL PRIMARY KEY,
	podcast_id  TEXT NOT NULL,
	episode_id  TEXT NOT NULL,
	user_id     TEXT NOT NULL,
	device_id   TEXT NOT NULL DEFAULT '',
	action      TEXT NOT NULL,
	started     DOUBLE PRECISION,
	position    DOUBLE PRECISION,
	total       DOUBLE PRECISION,
	ts          TIMESTAMPTZ NOT NULL,
	CONSTRAINT playback_actions_uniq UNIQUE NULLS NOT DISTINCT
		(podcast_id, episode_id, user_id, device_id, action, ts, started, position)
);
CREATE INDEX IF NOT EXISTS playback_actions_episode_idx
	ON playback_actions (podcast_id, episode_id, user_id, ts);

CREATE TABLE IF NOT EXISTS processed_events (
	event_id   TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

// PostgresActionStore is the production Postgres-backed implementation.
type PostgresActionStore struct {
	db  *pgxpool.Pool
	now func() time.Time
}

func NewPostgresActionStore(db *pgxpool.Pool) *PostgresActionStore {
	return &PostgresActionStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// EnsureSchema applies Schema.
func (s *PostgresActionStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresActionStore) Append(ctx context.Context, key RecordKey, actions []playback.Action) (int, error) {
	if len(actions) == 0 {
		return 0, nil
	}

	const q = `
INSERT INTO playback_actions (podcast_id, episode_id, user_id, device_id, action, started, position, total, ts)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT ON CONSTRAINT playback_actions_uniq DO NOTHING`

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, a := range actions {
		ts := a.Timestamp
		if ts.IsZero() {
			ts = s.now()
		}
		batch.Queue(q, key.PodcastID, key.EpisodeID, key.UserID, a.DeviceID, string(a.Kind),
			a.Started, a.Position, a.Total, ts.UTC())
	}

	br := tx.SendBatch(ctx, batch)
	inserted := 0
	for range actions {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return 0, fmt.Errorf("insert action: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}
	if err := br.Close(); err != nil {
		return 0, fmt.Errorf("close batch: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

func (s *PostgresActionStore) Records(ctx context.Context, q Query) ([]playback.Record, error) {
	q, err := q.Normalize()
	if err != nil {
		return nil, err
	}

	sql := `SELECT user_id, action, started, position, total, device_id, ts
	        FROM playback_actions WHERE podcast_id=$1 AND episode_id=$2`
	args := []any{q.PodcastID, q.EpisodeID}
	if q.UserID != "" {
		sql += " AND user_id=$3"
		args = append(args, q.UserID)
	}
	sql += " ORDER BY user_id, ts, id"

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query actions: %w", err)
	}
	defer rows.Close()

	var out []playback.Record
	for rows.Next() {
		var (
			userID string
			kind   string
			a      playback.Action
		)
		if err := rows.Scan(&userID, &kind, &a.Started, &a.Position, &a.Total, &a.DeviceID, &a.Timestamp); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		a.Kind = playback.ActionKind(kind)
		if n := len(out); n == 0 || out[n-1].UserID != userID {
			out = append(out, playback.Record{PodcastID: q.PodcastID, EpisodeID: q.EpisodeID, UserID: userID})
		}
		last := &out[len(out)-1]
		last.Actions = append(last.Actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate actions: %w", err)
	}
	return out, nil
}
