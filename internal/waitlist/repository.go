package waitlist

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrEntryNotFound = errors.New("waitlist entry not found")
	ErrNotOffered    = errors.New("waitlist entry has no pending offer")
)

type Repository interface {
	Insert(ctx context.Context, e Entry) (*Entry, error)
	Get(ctx context.Context, id uuid.UUID) (*Entry, error)

	// ListActive returns a provider's active entries in rank order:
	// urgency first, then join time.
	ListActive(ctx context.Context, providerID uuid.UUID) ([]Entry, error)

	// MarkOffered is the CAS transition active -> offered recording the
	// offered window and deadline.
	MarkOffered(ctx context.Context, id uuid.UUID, start, end time.Time, deadline time.Time) (*Entry, error)

	// ResolveOffer is the CAS transition offered -> to, clearing the offer
	// fields. to must be one of active, accepted, declined, expired.
	ResolveOffer(ctx context.Context, id uuid.UUID, to Status) (*Entry, error)

	// UpdateStatus is a CAS transition that does not touch offer fields.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Entry, error)

	// RecomputePositions reassigns dense 1..N positions over the provider's
	// active entries.
	RecomputePositions(ctx context.Context, providerID uuid.UUID) error

	// FindExpiredOffers returns offered entries whose deadline has passed.
	FindExpiredOffers(ctx context.Context, now time.Time) ([]Entry, error)

	// FindLapsedActive returns active entries whose date range is over.
	FindLapsedActive(ctx context.Context, now time.Time) ([]Entry, error)
}
