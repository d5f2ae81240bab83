package service

import (
	"context"
	"runtime"
	"sync"
	"time"
)

const (
	HealthHealthy   = "healthy"
	HealthDegraded  = "degraded"
	HealthUnhealthy = "unhealthy"
)

// Pinger is any dependency that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type CheckResult struct {
	Service        string  `json:"service"`
	Status         string  `json:"status"`
	ResponseTimeMS float64 `json:"response_time_ms"`
	Error          string  `json:"error,omitempty"`
}

type RuntimeStats struct {
	Goroutines    int    `json:"goroutines"`
	HeapAllocMB   uint64 `json:"heap_alloc_mb"`
	NumGC         uint32 `json:"num_gc"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

type HealthReport struct {
	Status    string        `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Checks    []CheckResult `json:"checks"`
	Runtime   RuntimeStats  `json:"runtime"`
}

// HealthService aggregates dependency checks. The database is critical; the
// cache and payment provider only degrade the service.
type HealthService struct {
	database Pinger
	cache    Pinger
	provider Pinger
	timeout  time.Duration
	started  time.Time
}

func NewHealthService(database, cache, provider Pinger) *HealthService {
	return &HealthService{
		database: database,
		cache:    cache,
		provider: provider,
		timeout:  3 * time.Second,
		started:  time.Now(),
	}
}

func (s *HealthService) Check(ctx context.Context) HealthReport {
	targets := []struct {
		name string
		p    Pinger
	}{
		{"database", s.database},
		{"cache", s.cache},
		{"mpesa", s.provider},
	}
	results := make([]CheckResult, len(targets))

	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = s.check(ctx, target.name, target.p)
		}()
	}
	wg.Wait()

	status := HealthHealthy
	for _, r := range results {
		if r.Status == HealthHealthy {
			continue
		}
		if r.Service == "database" {
			status = HealthUnhealthy
			break
		}
		status = HealthDegraded
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	return HealthReport{
		Status:    status,
		Timestamp: time.Now().UTC(),
		Checks:    results,
		Runtime: RuntimeStats{
			Goroutines:    runtime.NumGoroutine(),
			HeapAllocMB:   mem.HeapAlloc / (1 << 20),
			NumGC:         mem.NumGC,
			UptimeSeconds: int64(time.Since(s.started).Seconds()),
		},
	}
}

// Ready reports whether the critical dependency is reachable.
func (s *HealthService) Ready(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.database.Ping(ctx)
}

func (s *HealthService) check(ctx context.Context, name string, p Pinger) CheckResult {
	res := CheckResult{Service: name, Status: HealthHealthy}
	if p == nil {
		res.Status = HealthUnhealthy
		res.Error = "not configured"
		return res
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	err := p.Ping(ctx)
	res.ResponseTimeMS = float64(time.Since(start).Microseconds()) / 1000
	if err != nil {
		res.Status = HealthUnhealthy
		res.Error = err.Error()
	}
	return res
}
