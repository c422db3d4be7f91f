package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-slot-engine/internal/clock"
	"github.com/hackgods/clinic-slot-engine/internal/db"
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

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	practitioners, err := seedPractitioners(context.Background(), pool, 40)
	if err != nil {
		log.Fatalf("seed practitioners: %v", err)
	}
	if err := seedPatients(context.Background(), pool, 2000); err != nil {
		log.Fatalf("seed patients: %v", err)
	}
	if err := seedSchedules(context.Background(), pool, practitioners, 28); err != nil {
		log.Fatalf("seed schedules: %v", err)
	}

	log.Println("seed complete")
}

func seedPractitioners(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d practitioners", count)

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
			INSERT INTO practitioners (id, name, specialty, created_at, updated_at)
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

	log.Println("practitioners seeded")
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
			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, uuid.New(), gofakeit.Name(), gofakeit.Email())
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

// seedSchedules gives each practitioner a random subset of shifts over the
// next `days` weekdays.
func seedSchedules(ctx context.Context, pool *pgxpool.Pool, practitioners []uuid.UUID, days int) error {
	log.Printf("seeding schedules for %d practitioners over %d days", len(practitioners), days)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	start := clock.DateOf(time.Now())
	total := 0

	for _, pid := range practitioners {
		for d := 0; d < days; d++ {
			date := start.AddDate(0, 0, d)
			if wd := date.Weekday(); wd == time.Saturday || wd == time.Sunday {
				continue
			}
			for _, shift := range clock.Shifts {
				// Roughly half of all possible shifts are worked.
				if gofakeit.Number(0, 1) == 0 {
					continue
				}
				_, err := tx.Exec(ctx, `
					INSERT INTO schedules (id, practitioner_id, work_date, shift, is_active, created_at, updated_at)
					VALUES ($1, $2, $3, $4, true, now(), now())
				`, uuid.New(), pid, date, string(shift))
				if err != nil {
					return err
				}
				total++
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Printf("schedules seeded: %d entries", total)
	return nil
}
