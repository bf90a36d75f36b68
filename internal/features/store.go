package features

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// Store manages player feature profiles in PostgreSQL. TimePref and StyleVec
// are stored as JSONB; the upsert keeps one current row per username.
type Store struct {
	db *sql.DB
}

// NewStore creates a feature store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Upsert inserts or replaces a player's feature profile.
func (s *Store) Upsert(ctx context.Context, f Features) error {
	timePref, err := json.Marshal(f.TimePref)
	if err != nil {
		return fmt.Errorf("features: marshal time_pref: %w", err)
	}
	styleVec, err := json.Marshal(f.StyleVec)
	if err != nil {
		return fmt.Errorf("features: marshal style_vec: %w", err)
	}

	const query = `
		INSERT INTO player_features (username, rating, streak, time_pref, style_vec, last_updated)
		VALUES ($1, $2, $3, $4::jsonb, $5::jsonb, NOW())
		ON CONFLICT (username) DO UPDATE
		SET rating       = EXCLUDED.rating,
		    streak       = EXCLUDED.streak,
		    time_pref    = EXCLUDED.time_pref,
		    style_vec    = EXCLUDED.style_vec,
		    last_updated = NOW()`

	if _, err := s.db.ExecContext(ctx, query, f.Username, f.Rating, f.Streak, timePref, styleVec); err != nil {
		return fmt.Errorf("features: upsert %s: %w", f.Username, err)
	}
	return nil
}

// LoadAll returns every stored feature profile keyed by username.
func (s *Store) LoadAll(ctx context.Context) (map[string]Features, error) {
	const query = `
		SELECT username, rating, streak, time_pref, style_vec
		FROM player_features`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("features: load all: %w", err)
	}
	defer rows.Close()

	all := make(map[string]Features)
	for rows.Next() {
		var (
			f        Features
			timePref []byte
			styleVec []byte
		)
		if err := rows.Scan(&f.Username, &f.Rating, &f.Streak, &timePref, &styleVec); err != nil {
			return nil, fmt.Errorf("features: scan row: %w", err)
		}
		if err := json.Unmarshal(timePref, &f.TimePref); err != nil {
			return nil, fmt.Errorf("features: decode time_pref for %s: %w", f.Username, err)
		}
		if err := json.Unmarshal(styleVec, &f.StyleVec); err != nil {
			return nil, fmt.Errorf("features: decode style_vec for %s: %w", f.Username, err)
		}
		all[f.Username] = f
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("features: iterate rows: %w", err)
	}
	return all, nil
}
