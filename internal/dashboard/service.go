package dashboard

import (
	"context"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/singleflight"
)

const metricsKey = "metrics"

// Metrics is the payload served to the dashboard.
type Metrics struct {
	OEE            float64   `json:"oee"`
	ActiveBatches  int       `json:"activeBatches"`
	ActiveAlerts   int       `json:"activeAlerts"`
	CriticalAlerts int       `json:"criticalAlerts"`
	QCPassRate     float64   `json:"qcPassRate"`
	GeneratedAt    time.Time `json:"generatedAt"`
}

// Service computes dashboard metrics behind the versioned cache.
type Service struct {
	repo   Repository
	cache  *Cache
	group  singleflight.Group
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs a Service. cache may be nil.
func NewService(repo Repository, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, logger: logger, now: time.Now}
}

// Metrics returns cached metrics, computing them on a miss. Concurrent
// misses for the same cache version share one computation.
func (s *Service) Metrics(ctx context.Context) (Metrics, error) {
	key, err := s.cache.BuildKey(ctx, metricsKey)
	if err != nil {
		s.logger.Warn("dashboard cache key", slog.Any("error", err))
		return s.compute(ctx)
	}
	// The flight outlives any single caller that gives up waiting.
	detached := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (any, error) {
		var out Metrics
		err := s.cache.FetchJSON(detached, key, &out, func(ctx context.Context) (any, error) {
			return s.compute(ctx)
		})
		return out, err
	})
	select {
	case <-ctx.Done():
		return Metrics{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Metrics{}, res.Err
		}
		return res.Val.(Metrics), nil
	}
}

// Warm recomputes the metrics for the current cache version.
func (s *Service) Warm(ctx context.Context) error {
	_, err := s.Metrics(ctx)
	return err
}

func (s *Service) compute(ctx context.Context) (Metrics, error) {
	snap, err := s.repo.Snapshot(ctx)
	if err != nil {
		return Metrics{}, err
	}
	return Compute(snap, s.now().UTC()), nil
}

// Compute derives the dashboard metrics from a snapshot. OEE is
// availability x performance x quality over open batches.
func Compute(snap Snapshot, at time.Time) Metrics {
	quality := 0.0
	if snap.QCTotal > 0 {
		quality = float64(snap.QCPassed) / float64(snap.QCTotal)
	}
	oee := 0.0
	if snap.OpenBatches > 0 {
		availability := float64(snap.OpenBatches-snap.OnHoldBatches) / float64(snap.OpenBatches)
		performance := snap.MeanProgress / 100
		oee = availability * performance * quality
	}
	return Metrics{
		OEE:            round1(oee * 100),
		ActiveBatches:  snap.ActiveBatches,
		ActiveAlerts:   snap.ActiveAlerts,
		CriticalAlerts: snap.CriticalAlerts,
		QCPassRate:     round1(quality * 100),
		GeneratedAt:    at,
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
