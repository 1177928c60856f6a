package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/archdoc/internal/model"
)

const (
	saveRetries   = 3
	saveBaseDelay = 20 * time.Millisecond
)

// Load reads the project list from the app_state row.
func (db *DB) Load(ctx context.Context) ([]model.Project, error) {
	var raw []byte
	err := db.pool.QueryRow(ctx,
		`SELECT value FROM app_state WHERE key = $1`, ProjectsKey,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: load projects: %w", err)
	}
	return decodeProjects(raw)
}

// Save replaces the project list. The last writer wins.
func (db *DB) Save(ctx context.Context, projects []model.Project) error {
	raw, err := encodeProjects(projects)
	if err != nil {
		return err
	}
	err = WithRetry(ctx, saveRetries, saveBaseDelay, func() error {
		_, err := db.pool.Exec(ctx, `
			INSERT INTO app_state (key, value, updated_at) VALUES ($1, $2::jsonb, now())
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
			ProjectsKey, string(raw))
		return err
	})
	if err != nil {
		return fmt.Errorf("storage: save projects: %w", err)
	}
	return nil
}
