package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jashmhta/hms-scheduling/internal/db"
	"github.com/jashmhta/hms-scheduling/internal/policy"
	"github.com/jashmhta/hms-scheduling/internal/schedule"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn, 10)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	providerIDs, err := seedProviders(context.Background(), pool, 100)
	if err != nil {
		log.Fatalf("seed providers: %v", err)
	}
	if err := seedPatients(context.Background(), pool, 9000); err != nil {
		log.Fatalf("seed patients: %v", err)
	}
	if err := seedTemplates(context.Background(), pool, providerIDs); err != nil {
		log.Fatalf("seed schedule templates: %v", err)
	}
	if err := seedPolicies(context.Background(), pool, providerIDs); err != nil {
		log.Fatalf("seed cancellation policies: %v", err)
	}

	log.Println("seed complete")
}

func seedProviders(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d providers", count)

	specialties := []string{
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Orthopedics",
		"Endocrinology",
		"Neurology",
		"Pediatrics",
		"Psychiatry",
		"Ophthalmology",
		"ENT",
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Name()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO providers (id, name, specialty, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, name, spec)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("providers seeded")
	return ids, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d patients", count)

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			name := gofakeit.Name()
			email := gofakeit.Email()

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, id, name, email)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Printf("patients seeded: %d/%d", end, count)
	}

	log.Println("patients seeded")
	return nil
}

// seedTemplates gives every provider a Monday-to-Friday template. A third of
// them also work Saturday mornings, and a tenth require confirmation.
func seedTemplates(ctx context.Context, pool *pgxpool.Pool, providerIDs []uuid.UUID) error {
	log.Printf("seeding %d schedule templates", len(providerIDs))

	timezones := []string{"Asia/Kolkata", "America/New_York", "Europe/London", "UTC"}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i, providerID := range providerIDs {
		slotMinutes := []int{15, 20, 30}[gofakeit.Number(0, 2)]
		maxConcurrent := 1
		if gofakeit.Number(0, 9) == 0 {
			maxConcurrent = gofakeit.Number(2, 3)
		}

		var windows []schedule.WeekdayWindow
		for wd := time.Monday; wd <= time.Friday; wd++ {
			windows = append(windows, schedule.WeekdayWindow{
				Weekday:       wd,
				StartMinute:   9 * 60,
				EndMinute:     17 * 60,
				SlotMinutes:   slotMinutes,
				MaxConcurrent: maxConcurrent,
			})
		}
		if i%3 == 0 {
			windows = append(windows, schedule.WeekdayWindow{
				Weekday:       time.Saturday,
				StartMinute:   9 * 60,
				EndMinute:     13 * 60,
				SlotMinutes:   slotMinutes,
				MaxConcurrent: maxConcurrent,
				AllowedTypes:  []schedule.ConsultationType{schedule.ConsultGeneral, schedule.ConsultFollowUp},
			})
		}

		windowsJSON, err := json.Marshal(windows)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO schedule_templates
				(id, provider_id, facility_id, department_id,
				 effective_from, effective_to, timezone, windows,
				 buffer_minutes, allow_overlap, requires_confirmation,
				 created_at, updated_at)
			VALUES ($1, $2, $3, $4, now() - interval '30 days', NULL, $5, $6, $7, false, $8, now(), now())
		`, uuid.New(), providerID, uuid.New(), uuid.New(),
			timezones[gofakeit.Number(0, len(timezones)-1)], windowsJSON,
			gofakeit.Number(0, 10), i%10 == 0)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("schedule templates seeded")
	return nil
}

func seedPolicies(ctx context.Context, pool *pgxpool.Pool, providerIDs []uuid.UUID) error {
	log.Printf("seeding %d cancellation policies", len(providerIDs))

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i, providerID := range providerIDs {
		pol := policy.Default()
		if i%4 == 0 {
			pol = policy.Policy{
				Tiers: []policy.Tier{
					{HoursBefore: 4, RefundPercent: 0},
					{HoursBefore: 48, RefundPercent: 25},
					{HoursBefore: 96, RefundPercent: 75},
				},
				DefaultRefundPercent: 100,
			}
		}

		polJSON, err := json.Marshal(pol)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO cancellation_policies (id, provider_id, policy, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, uuid.New(), providerID, polJSON)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("cancellation policies seeded")
	return nil
}
