package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Sink writes every event to the event_logs table and fans it out on a
// Redis pub/sub channel for notification consumers.
type Sink struct {
	pool    *pgxpool.Pool
	rdb     *redis.Client
	channel string
	log     zerolog.Logger
}

func NewSink(pool *pgxpool.Pool, rdb *redis.Client, channel string, log zerolog.Logger) *Sink {
	return &Sink{
		pool:    pool,
		rdb:     rdb,
		channel: channel,
		log:     log,
	}
}

type wireEvent struct {
	Type          Type           `json:"type"`
	AppointmentID *string        `json:"appointment_id,omitempty"`
	ProviderID    string         `json:"provider_id"`
	PatientID     string         `json:"patient_id"`
	ScheduledAt   time.Time      `json:"scheduled_at"`
	Payload       map[string]any `json:"payload,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

func (s *Sink) Emit(ctx context.Context, ev Event) {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}

	we := wireEvent{
		Type:        ev.Type,
		ProviderID:  ev.ProviderID.String(),
		PatientID:   ev.PatientID.String(),
		ScheduledAt: ev.ScheduledAt,
		Payload:     ev.Payload,
		CreatedAt:   ev.CreatedAt,
	}
	if ev.AppointmentID != nil {
		id := ev.AppointmentID.String()
		we.AppointmentID = &id
	}

	data, err := json.Marshal(we)
	if err != nil {
		s.log.Error().Err(err).Str("event", string(ev.Type)).Msg("marshal event")
		return
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, provider_id, patient_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, string(ev.Type), ev.AppointmentID, ev.ProviderID, ev.PatientID, data, ev.CreatedAt)
	if err != nil {
		s.log.Error().Err(err).Str("event", string(ev.Type)).Msg("insert event log")
	}

	if s.rdb != nil {
		if err := s.rdb.Publish(ctx, s.channel, data).Err(); err != nil {
			s.log.Warn().Err(err).Str("event", string(ev.Type)).Msg("publish event")
		}
	}
}
