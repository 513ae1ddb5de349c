// Package stats produces the statistics snapshot, consulting the snapshot
// cache before the results store and publishing the values as gauges.
package stats

import (
	"context"
	"log/slog"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/shutterscope/shutterscope/internal/cache"
	"github.com/shutterscope/shutterscope/internal/models"
)

// Source is the part of db.Store the service needs.
type Source interface {
	Statistics(ctx context.Context) (*models.Statistics, error)
}

// Service serves statistics snapshots.
type Service struct {
	source Source
	cache  cache.SnapshotCache
	logger *slog.Logger

	// gen counts invalidations. A snapshot read that straddles a write is
	// returned but not cached.
	mu  sync.Mutex
	gen uint64

	dbSize prometheus.Gauge
	rows   *prometheus.GaugeVec
	codes  *prometheus.GaugeVec
}

// NewService wires the service. reg may be nil, in which case gauges are
// kept but not exported.
func NewService(source Source, c cache.SnapshotCache, reg prometheus.Registerer, logger *slog.Logger) *Service {
	if c == nil {
		c = cache.NewMemory(0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		source: source,
		cache:  c,
		logger: logger,
		dbSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "shutterscope_db_size_bytes",
			Help: "Size of the results database in bytes.",
		}),
		rows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "shutterscope_rows",
			Help: "Row count per results table.",
		}, []string{"table"}),
		codes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "shutterscope_response_codes",
			Help: "Number of results per HTTP response code.",
		}, []string{"code"}),
	}
	if reg != nil {
		reg.MustRegister(s.dbSize, s.rows, s.codes)
	}
	return s
}

// Snapshot returns the current statistics.
func (s *Service) Snapshot(ctx context.Context) (*models.Statistics, error) {
	if cached, ok := s.cache.Get(ctx); ok {
		return cached, nil
	}

	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()

	stats, err := s.source.Statistics(ctx)
	if err != nil {
		return nil, err
	}
	if stats.ResponseCodeStats == nil {
		stats.ResponseCodeStats = []models.ResponseCodeStat{}
	}

	s.mu.Lock()
	if s.gen == gen {
		s.cache.Set(ctx, stats)
	}
	s.mu.Unlock()

	s.publish(stats)
	return stats, nil
}

// Invalidate drops the cached snapshot after a write.
func (s *Service) Invalidate(ctx context.Context) {
	s.mu.Lock()
	s.gen++
	s.cache.Invalidate(ctx)
	s.mu.Unlock()
	s.logger.Debug("statistics cache invalidated", "cache", s.cache.Name())
}

// CacheName reports which cache backend is in use.
func (s *Service) CacheName() string {
	return s.cache.Name()
}

func (s *Service) publish(stats *models.Statistics) {
	s.dbSize.Set(float64(stats.DBSize))
	s.rows.WithLabelValues("results").Set(float64(stats.Results))
	s.rows.WithLabelValues("headers").Set(float64(stats.Headers))
	s.rows.WithLabelValues("network_logs").Set(float64(stats.NetworkLogs))
	s.rows.WithLabelValues("console_logs").Set(float64(stats.ConsoleLogs))

	// Codes that disappeared since the last snapshot must not linger.
	s.codes.Reset()
	for _, c := range stats.ResponseCodeStats {
		s.codes.WithLabelValues(strconv.Itoa(c.Code)).Set(float64(c.Count))
	}
}
