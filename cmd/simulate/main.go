package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/KaveeshaHeshan/CareSync-Health-Platform-sub001/internal/api"
	"github.com/KaveeshaHeshan/CareSync-Health-Platform-sub001/internal/appointment"
	"github.com/KaveeshaHeshan/CareSync-Health-Platform-sub001/internal/config"
	"github.com/KaveeshaHeshan/CareSync-Health-Platform-sub001/internal/db"
	"github.com/KaveeshaHeshan/CareSync-Health-Platform-sub001/internal/logging"
)

type SimConfig struct {
	APIBaseURL      string
	Duration        time.Duration
	Workers         int
	BookingRatio    float64
	TransitionRatio float64
	ReadRatio       float64
	PatientLimit    int
	ProviderLimit   int
	Days            int
	HotSlots        int // bookings aimed at a few slots to force contention
	PostgresDSN     string
}

// target addresses one bookable slot.
type target struct {
	ProviderID uuid.UUID
	Date       string
	Time       string
}

type DataPool struct {
	Patients []uuid.UUID
	Targets  []target

	mu           sync.RWMutex
	appointments []uuid.UUID
}

func (dp *DataPool) AddAppointment(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *DataPool) RandomAppointment(rng *rand.Rand) (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return uuid.Nil, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, status int, err error) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case err == nil && status < 300:
		atomic.AddInt64(&om.Success, 1)
	case err == nil && (status == http.StatusConflict || status == http.StatusPaymentRequired):
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, lo, hi, p50, p95 time.Duration) {
	om.mu.Lock()
	latencies := append([]time.Duration(nil), om.Latencies...)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0, 0, 0
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	pct := func(p int) time.Duration {
		return latencies[min(len(latencies)*p/100, len(latencies)-1)]
	}
	return sum / time.Duration(len(latencies)), latencies[0], latencies[len(latencies)-1], pct(50), pct(95)
}

type Metrics struct {
	Booking       OperationMetrics
	Confirm       OperationMetrics
	Cancel        OperationMetrics
	Reschedule    OperationMetrics
	ReadByID      OperationMetrics
	ListByPatient OperationMetrics
	Availability  OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	logger  zerolog.Logger
}

func main() {
	baseCfg, err := config.Load()
	if err != nil {
		fallback := logging.New("prod", "info")
		fallback.Fatal().Err(err).Msg("failed to load base config")
	}
	logger := logging.New(baseCfg.Env, baseCfg.LogLevel)

	cfg := loadConfig(baseCfg)
	if err := validateConfig(cfg); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}
	logger.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Float64("booking", cfg.BookingRatio).
		Float64("transition", cfg.TransitionRatio).
		Float64("read", cfg.ReadRatio).
		Msg("simulator starting")

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, 2)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	sim := &Simulator{
		config: cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}

	sim.pool, err = sim.loadDataPool(ctx, pgPool)
	if err != nil {
		logger.Fatal().Err(err).Msg("load data pool")
	}
	logger.Info().Int("patients", len(sim.pool.Patients)).Int("targets", len(sim.pool.Targets)).Msg("data pool loaded")

	sim.Run()
	sim.PrintReport()

	if dupes := sim.checkDoubleBookings(context.Background()); dupes > 0 {
		logger.Error().Int("slots", dupes).Msg("double bookings detected")
		os.Exit(1)
	}
}

func loadConfig(base config.Config) SimConfig {
	cfg := SimConfig{
		APIBaseURL:      getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:        getDuration("SIM_DURATION", 30*time.Second),
		Workers:         getInt("SIM_WORKERS", 10),
		BookingRatio:    getFloat("SIM_BOOKING_RATIO", 0.5),
		TransitionRatio: getFloat("SIM_TRANSITION_RATIO", 0.2),
		ReadRatio:       getFloat("SIM_READ_RATIO", 0.3),
		PatientLimit:    getInt("SIM_PATIENT_LIMIT", 4000),
		ProviderLimit:   getInt("SIM_PROVIDER_LIMIT", 20),
		Days:            getInt("SIM_DAYS", 7),
		HotSlots:        getInt("SIM_HOT_SLOTS", 5),
		PostgresDSN:     base.PostgresDSN,
	}

	total := cfg.BookingRatio + cfg.TransitionRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.TransitionRatio /= total
		cfg.ReadRatio /= total
	}
	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.Days <= 0 {
		return fmt.Errorf("SIM_DAYS must be > 0")
	}
	return nil
}

func queryIDs(ctx context.Context, pool *pgxpool.Pool, sql string, limit int) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, sql, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// loadDataPool reads people from Postgres and discovers open slots through the
// API, which materializes days from provider templates on first read.
func (s *Simulator) loadDataPool(ctx context.Context, pool *pgxpool.Pool) (*DataPool, error) {
	patients, err := queryIDs(ctx, pool, `SELECT id FROM patients LIMIT $1`, s.config.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	providers, err := queryIDs(ctx, pool, `SELECT provider_id FROM weekly_templates LIMIT $1`, s.config.ProviderLimit)
	if err != nil {
		return nil, fmt.Errorf("load providers: %w", err)
	}
	if len(patients) == 0 {
		return nil, fmt.Errorf("no patients loaded")
	}

	dp := &DataPool{Patients: patients}
	today := time.Now()
	for _, providerID := range providers {
		for d := 1; d <= s.config.Days; d++ {
			date := today.AddDate(0, 0, d).Format(appointment.DateLayout)
			var day api.AvailabilityResponse
			status, err := s.call(ctx, http.MethodGet,
				fmt.Sprintf("/providers/%s/availability/%s?open=true", providerID, date), nil, &day)
			if err != nil || status != http.StatusOK {
				return nil, fmt.Errorf("load availability %s %s: status=%d err=%v", providerID, date, status, err)
			}
			for _, sl := range day.Slots {
				dp.Targets = append(dp.Targets, target{ProviderID: providerID, Date: date, Time: sl.Time.String()})
			}
		}
	}
	if len(dp.Targets) == 0 {
		return nil, fmt.Errorf("no open slots found")
	}
	return dp, nil
}

func (s *Simulator) call(ctx context.Context, method, path string, body, out any) (int, error) {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

func (s *Simulator) timed(om *OperationMetrics, fn func() (int, error)) {
	start := time.Now()
	status, err := fn()
	om.Record(time.Since(start), status, err)
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.logger.Info().Dur("duration", s.config.Duration).Int("workers", s.config.Workers).Msg("starting simulation")

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.logger.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < s.config.BookingRatio:
			s.doBooking(ctx, rng)
		case r < s.config.BookingRatio+s.config.TransitionRatio:
			switch rng.Intn(3) {
			case 0:
				s.doConfirm(ctx, rng)
			case 1:
				s.doCancel(ctx, rng)
			case 2:
				s.doReschedule(ctx, rng)
			}
		default:
			switch rng.Intn(3) {
			case 0:
				s.doReadByID(ctx, rng)
			case 1:
				s.doListByPatient(ctx, rng)
			case 2:
				s.doAvailability(ctx, rng)
			}
		}
	}
}

func (s *Simulator) pickTarget(rng *rand.Rand) target {
	if s.config.HotSlots > 0 && rng.Intn(2) == 0 {
		return s.pool.Targets[rng.Intn(min(s.config.HotSlots, len(s.pool.Targets)))]
	}
	return s.pool.Targets[rng.Intn(len(s.pool.Targets))]
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	t := s.pickTarget(rng)
	types := []string{"online", "in-person"}
	req := api.CreateAppointmentRequest{
		ProviderID: t.ProviderID.String(),
		PatientID:  s.pool.Patients[rng.Intn(len(s.pool.Patients))].String(),
		Date:       t.Date,
		Time:       t.Time,
		Type:       types[rng.Intn(len(types))],
		Reason:     "simulated visit",
	}
	s.timed(&s.metrics.Booking, func() (int, error) {
		var created api.AppointmentResponse
		status, err := s.call(ctx, http.MethodPost, "/appointments", req, &created)
		if err == nil && status == http.StatusCreated {
			s.pool.AddAppointment(created.ID)
		}
		return status, err
	})
}

func (s *Simulator) doConfirm(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}
	s.timed(&s.metrics.Confirm, func() (int, error) {
		return s.call(ctx, http.MethodPost, "/appointments/"+id.String()+"/confirm", nil, nil)
	})
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}
	s.timed(&s.metrics.Cancel, func() (int, error) {
		return s.call(ctx, http.MethodPost, "/appointments/"+id.String()+"/cancel",
			api.CancelAppointmentRequest{Reason: "simulated cancellation"}, nil)
	})
}

func (s *Simulator) doReschedule(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}
	t := s.pickTarget(rng)
	s.timed(&s.metrics.Reschedule, func() (int, error) {
		var moved api.AppointmentResponse
		status, err := s.call(ctx, http.MethodPost, "/appointments/"+id.String()+"/reschedule",
			api.RescheduleAppointmentRequest{Date: t.Date, Time: t.Time}, &moved)
		if err == nil && status == http.StatusCreated {
			s.pool.AddAppointment(moved.ID)
		}
		return status, err
	})
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}
	s.timed(&s.metrics.ReadByID, func() (int, error) {
		return s.call(ctx, http.MethodGet, "/appointments/"+id.String(), nil, nil)
	})
}

func (s *Simulator) doListByPatient(ctx context.Context, rng *rand.Rand) {
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]
	s.timed(&s.metrics.ListByPatient, func() (int, error) {
		return s.call(ctx, http.MethodGet, "/appointments?patient_id="+patientID.String()+"&limit=20&offset=0", nil, nil)
	})
}

func (s *Simulator) doAvailability(ctx context.Context, rng *rand.Rand) {
	t := s.pickTarget(rng)
	s.timed(&s.metrics.Availability, func() (int, error) {
		return s.call(ctx, http.MethodGet, "/providers/"+t.ProviderID.String()+"/availability/"+t.Date, nil, nil)
	})
}

// checkDoubleBookings counts slots holding more than one active appointment.
func (s *Simulator) checkDoubleBookings(ctx context.Context) int {
	type providerDay struct {
		provider uuid.UUID
		date     string
	}
	seen := map[providerDay]bool{}
	dupes := 0
	for _, t := range s.pool.Targets {
		key := providerDay{t.ProviderID, t.Date}
		if seen[key] {
			continue
		}
		seen[key] = true

		var list api.AppointmentListResponse
		status, err := s.call(ctx, http.MethodGet,
			"/appointments?provider_id="+t.ProviderID.String()+"&date="+t.Date, nil, &list)
		if err != nil || status != http.StatusOK {
			s.logger.Warn().Err(err).Int("status", status).Msg("list provider appointments")
			continue
		}
		active := map[string]int{}
		for _, a := range list.Appointments {
			if a.Status == "scheduled" || a.Status == "confirmed" {
				active[a.Time.String()]++
			}
		}
		for at, n := range active {
			if n > 1 {
				s.logger.Error().Str("provider_id", t.ProviderID.String()).Str("date", t.Date).Str("time", at).Int("count", n).Msg("slot double booked")
				dupes++
			}
		}
	}
	return dupes
}

func (s *Simulator) PrintReport() {
	line := strings.Repeat("=", 80)
	fmt.Println("\n" + line)
	fmt.Println("SIMULATION REPORT")
	fmt.Println(line)
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Confirm", &s.metrics.Confirm)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Reschedule", &s.metrics.Reschedule)
	printOperationReport("Read by ID", &s.metrics.ReadByID)
	printOperationReport("List by Patient", &s.metrics.ListByPatient)
	printOperationReport("Availability", &s.metrics.Availability)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, lo, hi, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), lo.Round(time.Millisecond), hi.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
