package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ConsentFlags are the user-level AI gates. They are read fresh on every
// request — consent can be revoked between requests, so no cache sits in
// front of this lookup.
type ConsentFlags struct {
	AIConsent bool
	AIEnabled bool
}

// ProfileStore looks up AI consent flags for a user.
type ProfileStore interface {
	ConsentFlags(ctx context.Context, userID string) (*ConsentFlags, error)
}

// PGProfileStore implements ProfileStore against the app's profiles table.
type PGProfileStore struct {
	db *pgxpool.Pool
}

func NewPGProfileStore(db *pgxpool.Pool) *PGProfileStore {
	return &PGProfileStore{db: db}
}

func (s *PGProfileStore) ConsentFlags(ctx context.Context, userID string) (*ConsentFlags, error) {
	var flags ConsentFlags
	err := s.db.QueryRow(ctx, `
		SELECT ai_consent, is_ai_enabled
		FROM profiles
		WHERE user_id = $1
	`, userID).Scan(&flags.AIConsent, &flags.AIEnabled)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query profiles: %w", err)
	}
	return &flags, nil
}
