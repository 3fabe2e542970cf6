package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore keeps user state in a user_states table (see migrations/).
// Put pins the row with FOR UPDATE so concurrent merges for one user
// serialize on the row lock.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a pool against dsn and verifies connectivity.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres backend requires a DSN")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Get(ctx context.Context, userID string) (map[string]any, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM user_states WHERE user_id = $1`, userID).Scan(&raw)
	if err == sql.ErrNoRows {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeDoc(raw), nil
}

func (s *PostgresStore) Put(ctx context.Context, userID string, data map[string]any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Make sure the row exists before FOR UPDATE; two first writers for a
	// new user would otherwise both read empty and one merge would be lost.
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO user_states (user_id, data, updated_at) VALUES ($1, '{}'::jsonb, now())
		 ON CONFLICT (user_id) DO NOTHING`, userID); err != nil {
		return err
	}

	var raw []byte
	if err := tx.QueryRowContext(ctx,
		`SELECT data FROM user_states WHERE user_id = $1 FOR UPDATE`, userID).Scan(&raw); err != nil {
		return err
	}

	enc, err := json.Marshal(merge(decodeDoc(raw), data))
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE user_states SET data = $2::jsonb, updated_at = $3 WHERE user_id = $1`,
		userID, string(enc), time.Now().UTC()); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PostgresStore) Delete(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM user_states WHERE user_id = $1`, userID)
	return err
}

func (s *PostgresStore) Close() error { return s.db.Close() }
