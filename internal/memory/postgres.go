package memory

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists conversation turns in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS turns (
			session_id TEXT NOT NULL,
			sequence BIGINT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			confirmed BOOLEAN NOT NULL DEFAULT TRUE,
			PRIMARY KEY (session_id, sequence)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_turns_session_seq ON turns (session_id, sequence DESC);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init turns schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

// Append inserts the turn. Replaying an already-persisted sequence is a
// no-op rather than a duplicate, which keeps reconciliation idempotent.
func (s *PostgresStore) Append(ctx context.Context, turn Turn) (Turn, error) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO turns (session_id, sequence, role, content, created_at, confirmed)
		 VALUES ($1, $2, $3, $4, $5, TRUE)
		 ON CONFLICT (session_id, sequence) DO NOTHING`,
		turn.SessionID,
		turn.Sequence,
		string(turn.Role),
		turn.Content,
		turn.Timestamp,
	)
	if err != nil {
		return Turn{}, fmt.Errorf("append turn: %w", err)
	}
	turn.Confirmed = true
	return turn, nil
}

func (s *PostgresStore) MaxSequence(ctx context.Context, sessionID string) (int64, error) {
	var max int64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(sequence), 0) FROM turns WHERE session_id=$1`,
		sessionID,
	).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("max sequence: %w", err)
	}
	return max, nil
}

func (s *PostgresStore) QueryRecent(ctx context.Context, sessionID string, limit int) ([]Turn, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT session_id, sequence, role, content, created_at, confirmed
		 FROM turns WHERE session_id=$1 ORDER BY sequence DESC LIMIT $2`,
		sessionID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent turns: %w", err)
	}
	turns, err := scanTurns(rows)
	if err != nil {
		return nil, err
	}

	// Reverse into ascending sequence order for prompt replay.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

func (s *PostgresStore) QueryPage(ctx context.Context, sessionID string, beforeSequence int64, pageSize int) ([]Turn, error) {
	if pageSize <= 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT session_id, sequence, role, content, created_at, confirmed
		 FROM turns WHERE session_id=$1 AND ($2 <= 0 OR sequence < $2)
		 ORDER BY sequence DESC LIMIT $3`,
		sessionID,
		beforeSequence,
		pageSize,
	)
	if err != nil {
		return nil, fmt.Errorf("query turn page: %w", err)
	}
	return scanTurns(rows)
}

func (s *PostgresStore) DeleteLast(ctx context.Context, sessionID string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM turns
		 WHERE session_id=$1
		   AND sequence=(SELECT MAX(sequence) FROM turns WHERE session_id=$1)`,
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("delete last turn: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM turns WHERE session_id=$1`, sessionID)
	if err != nil {
		return fmt.Errorf("delete session turns: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

type turnRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

func scanTurns(rows turnRows) ([]Turn, error) {
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		var role string
		if err := rows.Scan(&t.SessionID, &t.Sequence, &role, &t.Content, &t.Timestamp, &t.Confirmed); err != nil {
			return nil, fmt.Errorf("scan turn row: %w", err)
		}
		t.Role = Role(role)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turn rows: %w", err)
	}
	return turns, nil
}
