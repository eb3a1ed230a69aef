package dispatch

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/example/dispatch-console/internal/geo"
	"github.com/example/dispatch-console/internal/models"
	"github.com/example/dispatch-console/internal/observability"
)

// Source is the external data boundary the scheduler polls.
type Source interface {
	FetchPendingRides(ctx context.Context) ([]models.Ride, error)
	FetchAvailableDrivers(ctx context.Context) ([]models.Driver, error)
}

// Scheduler re-syncs the board from Source on a fixed period and nudges
// driver positions between polls to emulate a live location feed.
type Scheduler struct {
	Board    *Board
	Source   Source
	Interval time.Duration
	Jitter   JitterFunc // nil disables movement simulation
	GeoIndex geo.Index  // optional mirror for the console map view
	Logger   *slog.Logger
}

// DefaultJitter perturbs each coordinate by up to ±maxDeg.
func DefaultJitter(maxDeg float64) JitterFunc {
	return func(lat, lng float64) (float64, float64) {
		return lat + (rand.Float64()*2-1)*maxDeg, lng + (rand.Float64()*2-1)*maxDeg
	}
}

// NoJitter leaves positions untouched; used in tests.
func NoJitter(lat, lng float64) (float64, float64) { return lat, lng }

// Run polls until ctx is cancelled. The ticker is always stopped on exit,
// so tearing the console down leaks nothing.
func (s *Scheduler) Run(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick performs one refresh. Fetch failures keep the already-loaded
// collections: stale data beats an empty console, and the next period
// retries anyway.
func (s *Scheduler) Tick(ctx context.Context) {
	observability.RefreshTicks.Inc()

	rides, err := s.Source.FetchPendingRides(ctx)
	if err != nil {
		observability.RefreshFailures.Inc()
		s.log().Warn("ride fetch failed, keeping stale queue", "error", err)
	} else {
		s.Board.UpsertRides(rides)
	}

	drivers, err := s.Source.FetchAvailableDrivers(ctx)
	if err != nil {
		observability.RefreshFailures.Inc()
		s.log().Warn("driver fetch failed, keeping stale pool", "error", err)
	} else {
		s.Board.UpsertDrivers(drivers)
	}

	if s.Jitter != nil {
		s.Board.ApplyJitter(s.Jitter)
	}
	if s.GeoIndex != nil {
		for _, d := range s.Board.ListDrivers() {
			s.GeoIndex.Upsert(d)
		}
	}
}

func (s *Scheduler) log() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
