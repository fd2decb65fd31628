package policy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store resolves the cancellation policy for a provider.
type Store interface {
	PolicyFor(ctx context.Context, providerID uuid.UUID) (Policy, error)
}

// PgStore loads per-provider policies, falling back to Default when none is
// configured.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func (s *PgStore) PolicyFor(ctx context.Context, providerID uuid.UUID) (Policy, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `
		SELECT policy
		FROM cancellation_policies
		WHERE provider_id = $1
	`, providerID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Default(), nil
		}
		return Policy{}, fmt.Errorf("load cancellation policy: %w", err)
	}

	var p Policy
	if err := json.Unmarshal(raw, &p); err != nil {
		return Policy{}, fmt.Errorf("decode cancellation policy: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Policy{}, fmt.Errorf("stored cancellation policy invalid: %w", err)
	}
	return p.Normalize(), nil
}

// Static always returns the same policy. Useful in tests and the sweeper.
type Static struct {
	P Policy
}

func (s Static) PolicyFor(context.Context, uuid.UUID) (Policy, error) {
	return s.P, nil
}
