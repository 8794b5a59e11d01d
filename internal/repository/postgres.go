package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Ryuzii/FerraEura/internal/session"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresStateStore struct {
	db *pgxpool.Pool
}

func NewPostgresStateStore(db *pgxpool.Pool) *PostgresStateStore {
	return &PostgresStateStore{db: db}
}

var _ StateStore = (*PostgresStateStore)(nil)

func (r *PostgresStateStore) Save(ctx context.Context, states map[string]session.State) error {
	const insertQuery = `
	INSERT INTO session_state (guild_id, node, state, saved_at)
	VALUES ($1, $2, $3, now())
	`

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && err != pgx.ErrTxClosed {
			slog.Error("failed to rollback transaction", "error", err)
		}
	}()

	if _, err := tx.Exec(ctx, `DELETE FROM session_state`); err != nil {
		return fmt.Errorf("failed to clear session states: %w", err)
	}

	batch := &pgx.Batch{}
	for guildID, st := range states {
		data, err := json.Marshal(st)
		if err != nil {
			return fmt.Errorf("failed to encode state for guild %s: %w", guildID, err)
		}
		batch.Queue(insertQuery, guildID, st.Node, data)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert session states: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *PostgresStateStore) Load(ctx context.Context) (map[string]session.State, error) {
	rows, err := r.db.Query(ctx, `SELECT guild_id, state FROM session_state`)
	if err != nil {
		return nil, fmt.Errorf("failed to query session states: %w", err)
	}
	defer rows.Close()

	states := make(map[string]session.State)
	for rows.Next() {
		var (
			guildID string
			data    []byte
		)
		if err := rows.Scan(&guildID, &data); err != nil {
			return nil, fmt.Errorf("failed to scan session state: %w", err)
		}
		var st session.State
		if err := json.Unmarshal(data, &st); err != nil {
			return nil, fmt.Errorf("failed to decode state for guild %s: %w", guildID, err)
		}
		states[guildID] = st
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read session states: %w", err)
	}
	return states, nil
}
