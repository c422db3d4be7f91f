// Command simulate hammers a single open slot with concurrent booking
// requests to demonstrate that exactly maxPerSlot of them succeed and the
// rest are rejected with a conflict, never an over-booking.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-slot-engine/internal/clock"
	"github.com/hackgods/clinic-slot-engine/internal/db"
)

type SimConfig struct {
	APIBaseURL  string
	Workers     int
	MaxPerSlot  int
	PostgresDSN string
}

type target struct {
	PractitionerID uuid.UUID
	WorkDate       time.Time
	Shift          clock.Shift
	Patients       []uuid.UUID
}

type Metrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	mu        sync.Mutex
	latencies []time.Duration
}

func (m *Metrics) Record(latency time.Duration, status int) {
	atomic.AddInt64(&m.Total, 1)
	switch {
	case status == http.StatusCreated:
		atomic.AddInt64(&m.Success, 1)
	case status == http.StatusConflict:
		atomic.AddInt64(&m.Conflict, 1)
	default:
		atomic.AddInt64(&m.Error, 1)
	}

	m.mu.Lock()
	m.latencies = append(m.latencies, latency)
	m.mu.Unlock()
}

func (m *Metrics) Stats() (avg, p50, p95 time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.latencies) == 0 {
		return 0, 0, 0
	}

	sorted := make([]time.Duration, len(m.latencies))
	copy(sorted, m.latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, l := range sorted {
		sum += l
	}
	avg = sum / time.Duration(len(sorted))
	p50 = sorted[len(sorted)*50/100]
	p95 = sorted[min(len(sorted)*95/100, len(sorted)-1)]
	return avg, p50, p95
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadConfig()
	log.Printf("config: base_url=%s workers=%d max_per_slot=%d", cfg.APIBaseURL, cfg.Workers, cfg.MaxPerSlot)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pgPool.Close()

	tgt, err := pickTarget(ctx, pgPool, cfg.Workers)
	if err != nil {
		log.Fatalf("pick target slot: %v", err)
	}
	log.Printf("target slot: practitioner=%s date=%s shift=%s patients=%d",
		tgt.PractitionerID, tgt.WorkDate.Format(clock.DateLayout), tgt.Shift, len(tgt.Patients))

	client := &http.Client{Timeout: 10 * time.Second}
	var metrics Metrics

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func(patientID uuid.UUID) {
			defer wg.Done()
			bookOnce(client, cfg.APIBaseURL, tgt, patientID, &metrics)
		}(tgt.Patients[i])
	}
	wg.Wait()

	avg, p50, p95 := metrics.Stats()
	log.Printf("done in %s", time.Since(start))
	log.Printf("requests: total=%d success=%d conflict=%d error=%d",
		metrics.Total, metrics.Success, metrics.Conflict, metrics.Error)
	log.Printf("latency: avg=%s p50=%s p95=%s", avg, p50, p95)

	expected := int64(cfg.MaxPerSlot)
	if int64(cfg.Workers) < expected {
		expected = int64(cfg.Workers)
	}
	if metrics.Success != expected {
		log.Fatalf("CAPACITY VIOLATION: expected exactly %d successful bookings, got %d", expected, metrics.Success)
	}
	log.Printf("capacity held: exactly %d bookings admitted", metrics.Success)
}

func bookOnce(client *http.Client, baseURL string, tgt *target, patientID uuid.UUID, metrics *Metrics) {
	win := clock.ShiftWindow(tgt.Shift)
	t := win.Start + clock.TimeOfDay(rand.Intn(int(win.End-win.Start)))

	body, _ := json.Marshal(map[string]any{
		"patient_id":       patientID.String(),
		"practitioner_id":  tgt.PractitionerID.String(),
		"appointment_date": tgt.WorkDate.Format(clock.DateLayout),
		"appointment_time": t.String(),
		"actor_id":         patientID.String(),
	})

	// Retry while the slot lock is contended; the engine never retries on
	// its own.
	for attempt := 0; attempt < 20; attempt++ {
		start := time.Now()
		resp, err := client.Post(baseURL+"/bookings", "application/json", bytes.NewReader(body))
		if err != nil {
			metrics.Record(time.Since(start), 0)
			return
		}
		payload, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusConflict && bytes.Contains(payload, []byte("slot_being_booked")) {
			time.Sleep(time.Duration(10+rand.Intn(40)) * time.Millisecond)
			continue
		}

		metrics.Record(time.Since(start), resp.StatusCode)
		return
	}
	metrics.Record(0, http.StatusConflict)
}

// pickTarget selects a future active schedule entry and enough patients to
// oversubscribe it.
func pickTarget(ctx context.Context, pool *pgxpool.Pool, patients int) (*target, error) {
	var tgt target
	var shift string

	err := pool.QueryRow(ctx, `
		SELECT practitioner_id, work_date, shift
		FROM schedules
		WHERE is_active AND work_date > CURRENT_DATE
		ORDER BY work_date ASC
		LIMIT 1
	`).Scan(&tgt.PractitionerID, &tgt.WorkDate, &shift)
	if err != nil {
		return nil, fmt.Errorf("select schedule: %w", err)
	}
	tgt.Shift = clock.Shift(shift)

	rows, err := pool.Query(ctx, `SELECT id FROM patients LIMIT $1`, patients)
	if err != nil {
		return nil, fmt.Errorf("select patients: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		tgt.Patients = append(tgt.Patients, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(tgt.Patients) < patients {
		return nil, fmt.Errorf("need %d patients, found %d (run cmd/seed first)", patients, len(tgt.Patients))
	}

	return &tgt, nil
}

func loadConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:  getEnv("API_BASE_URL", "http://localhost:8080"),
		Workers:     getEnvInt("SIM_WORKERS", 50),
		MaxPerSlot:  getEnvInt("MAX_PER_SLOT", 5),
		PostgresDSN: os.Getenv("POSTGRES_DSN"),
	}
	if cfg.PostgresDSN == "" {
		log.Fatal("POSTGRES_DSN is required")
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
