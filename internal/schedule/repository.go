package schedule

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrTemplateNotFound = errors.New("schedule template not found")
)

// Repository loads schedule data. The engine never writes templates or
// exceptions; schedule management owns them.
type Repository interface {
	LoadTemplate(ctx context.Context, providerID uuid.UUID) (*ScheduleTemplate, error)
	// LoadExceptions returns the exceptions whose date falls in [from, to),
	// keyed by date in the template's timezone.
	LoadExceptions(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]ScheduleException, error)
}

// DateKey is a stable map key for a calendar date.
func DateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// ExceptionsByDate indexes exceptions for O(1) lookup during generation.
func ExceptionsByDate(excs []ScheduleException) map[string]*ScheduleException {
	m := make(map[string]*ScheduleException, len(excs))
	for i := range excs {
		m[DateKey(excs[i].Date)] = &excs[i]
	}
	return m
}
