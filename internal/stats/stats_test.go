package stats

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/shutterscope/shutterscope/internal/cache"
	"github.com/shutterscope/shutterscope/internal/models"
)

type stubSource struct {
	calls int
	stats *models.Statistics
	err   error

	// afterRead runs once the snapshot has been read, standing in for a
	// write that commits while the read is still in flight.
	afterRead func()
}

func (s *stubSource) Statistics(ctx context.Context) (*models.Statistics, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := *s.stats
	if fn := s.afterRead; fn != nil {
		s.afterRead = nil
		fn()
	}
	return &out, nil
}

func sample() *models.Statistics {
	return &models.Statistics{
		DBSize:      4096,
		Results:     4,
		Headers:     10,
		NetworkLogs: 7,
		ConsoleLogs: 1,
		ResponseCodeStats: []models.ResponseCodeStat{
			{Code: 200, Count: 3, Percentage: 75},
			{Code: 404, Count: 1, Percentage: 25},
		},
	}
}

func TestSnapshotUsesCache(t *testing.T) {
	src := &stubSource{stats: sample()}
	svc := NewService(src, cache.NewMemory(time.Minute), nil, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		got, err := svc.Snapshot(ctx)
		if err != nil {
			t.Fatalf("snapshot: %v", err)
		}
		if got.Results != 4 {
			t.Fatalf("results = %d; want 4", got.Results)
		}
	}
	if src.calls != 1 {
		t.Fatalf("store queried %d times; want 1", src.calls)
	}

	svc.Invalidate(ctx)
	if _, err := svc.Snapshot(ctx); err != nil {
		t.Fatalf("snapshot after invalidate: %v", err)
	}
	if src.calls != 2 {
		t.Fatalf("store queried %d times after invalidate; want 2", src.calls)
	}
}

func TestSnapshotNotCachedAcrossConcurrentWrite(t *testing.T) {
	src := &stubSource{stats: &models.Statistics{Results: 1}}
	svc := NewService(src, cache.NewMemory(time.Minute), nil, nil)
	ctx := context.Background()

	src.afterRead = func() {
		src.stats = &models.Statistics{Results: 2}
		svc.Invalidate(ctx)
	}

	first, err := svc.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if first.Results != 1 {
		t.Fatalf("first results = %d; want 1", first.Results)
	}

	second, err := svc.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot after write: %v", err)
	}
	if second.Results != 2 {
		t.Fatalf("results after write = %d; want 2 (stale snapshot cached)", second.Results)
	}
	if src.calls != 2 {
		t.Fatalf("store queried %d times; want 2", src.calls)
	}

	// With no write in between, the fresh read is cached again.
	if _, err := svc.Snapshot(ctx); err != nil {
		t.Fatal(err)
	}
	if src.calls != 2 {
		t.Fatalf("store queried %d times; want the cached snapshot", src.calls)
	}
}

func TestSnapshotError(t *testing.T) {
	boom := errors.New("boom")
	svc := NewService(&stubSource{err: boom}, nil, nil, nil)
	if _, err := svc.Snapshot(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestSnapshotNormalisesNilCodes(t *testing.T) {
	svc := NewService(&stubSource{stats: &models.Statistics{}}, nil, nil, nil)
	got, err := svc.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if got.ResponseCodeStats == nil {
		t.Fatal("response code stats should never be nil")
	}
}

func TestSnapshotPublishesGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	svc := NewService(&stubSource{stats: sample()}, nil, reg, nil)
	if _, err := svc.Snapshot(context.Background()); err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	expected := `
# HELP shutterscope_response_codes Number of results per HTTP response code.
# TYPE shutterscope_response_codes gauge
shutterscope_response_codes{code="200"} 3
shutterscope_response_codes{code="404"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "shutterscope_response_codes"); err != nil {
		t.Fatal(err)
	}
	if got := testutil.ToFloat64(svc.rows.WithLabelValues("network_logs")); got != 7 {
		t.Fatalf("network_logs gauge = %v; want 7", got)
	}
	if got := testutil.ToFloat64(svc.dbSize); got != 4096 {
		t.Fatalf("db size gauge = %v; want 4096", got)
	}
}
