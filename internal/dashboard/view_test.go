package dashboard

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/shutterscope/shutterscope/internal/models"
)

func sampleStats() *models.Statistics {
	return &models.Statistics{
		DBSize:      5 * 1024 * 1024,
		Results:     120,
		Headers:     1400,
		NetworkLogs: 3021,
		ConsoleLogs: 17,
		ResponseCodeStats: []models.ResponseCodeStat{
			{Code: 200, Count: 90, Percentage: 75},
			{Code: 301, Count: 6, Percentage: 5},
			{Code: 404, Count: 24, Percentage: 20},
		},
	}
}

func TestLoadSuccessShowsSnapshot(t *testing.T) {
	v := NewView()
	err := v.Load(context.Background(), FetcherFunc(func(context.Context) (*models.Statistics, error) {
		return sampleStats(), nil
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	want := []Card{
		{Title: "Database Size", Value: "5.0 MB"},
		{Title: "Total Results", Value: "120"},
		{Title: "Headers", Value: "1400"},
		{Title: "Network Logs", Value: "3021"},
		{Title: "Console Logs", Value: "17"},
	}
	if diff := cmp.Diff(want, v.Cards()); diff != "" {
		t.Errorf("cards mismatch (-want +got):\n%s", diff)
	}

	wantBars := []Bar{{200, 90, 75}, {301, 6, 5}, {404, 24, 20}}
	if diff := cmp.Diff(wantBars, v.Bars()); diff != "" {
		t.Errorf("bars mismatch (-want +got):\n%s", diff)
	}
	if st := v.State(); st.Loading || st.Notice != nil {
		t.Fatalf("unexpected state after success: %+v", st)
	}
}

func TestLoadFailureShowsNoticeAndZeroValues(t *testing.T) {
	v := NewView()
	boom := errors.New("connection refused")

	// A previous successful load must not leak into the failed cycle.
	v.Load(context.Background(), FetcherFunc(func(context.Context) (*models.Statistics, error) {
		return sampleStats(), nil
	}))
	err := v.Load(context.Background(), FetcherFunc(func(context.Context) (*models.Statistics, error) {
		return nil, boom
	}))
	if !errors.Is(err, boom) {
		t.Fatalf("expected fetch error, got %v", err)
	}

	st := v.State()
	if st.Notice == nil {
		t.Fatal("expected a notice")
	}
	if st.Notice.Title != "API Error" || st.Notice.Description != "Failed to get statistics: connection refused" {
		t.Fatalf("unexpected notice: %+v", st.Notice)
	}
	if st.Loading {
		t.Fatal("loading should be cleared after failure")
	}

	for _, c := range v.Cards() {
		want := "0"
		if c.Title == "Database Size" {
			want = "0.0 MB"
		}
		if c.Value != want {
			t.Errorf("%s = %q; want %q", c.Title, c.Value, want)
		}
	}
	if bars := v.Bars(); len(bars) != 0 {
		t.Errorf("expected no bars, got %v", bars)
	}
}

func TestLoadEmptyResponseShowsNotice(t *testing.T) {
	v := NewView()
	err := v.Load(context.Background(), FetcherFunc(func(context.Context) (*models.Statistics, error) {
		return nil, nil
	}))
	if !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("expected ErrNoSnapshot, got %v", err)
	}

	st := v.State()
	if st.Loading || st.Snapshot != nil {
		t.Fatalf("unexpected state: %+v", st)
	}
	if st.Notice == nil || st.Notice.Title != "API Error" {
		t.Fatalf("expected API Error notice, got %+v", st.Notice)
	}
	if want := "Failed to get statistics: " + ErrNoSnapshot.Error(); st.Notice.Description != want {
		t.Fatalf("description = %q; want %q", st.Notice.Description, want)
	}
}

func TestLoadingShownExactlyWhileInFlight(t *testing.T) {
	for _, fail := range []bool{false, true} {
		v := NewView()
		if v.State().Loading {
			t.Fatal("idle view should not be loading")
		}

		var mu sync.Mutex
		var seen []bool
		v.Subscribe(func(st State) {
			mu.Lock()
			seen = append(seen, st.Loading)
			mu.Unlock()
		})

		started := make(chan struct{})
		release := make(chan struct{})
		done := make(chan error)
		go func() {
			done <- v.Load(context.Background(), FetcherFunc(func(context.Context) (*models.Statistics, error) {
				close(started)
				<-release
				if fail {
					return nil, errors.New("boom")
				}
				return sampleStats(), nil
			}))
		}()

		<-started
		if !v.State().Loading {
			t.Fatalf("fail=%v: loading should be set while the fetch is in flight", fail)
		}
		if err := v.Load(context.Background(), FetcherFunc(func(context.Context) (*models.Statistics, error) {
			t.Error("second fetch must not start while one is in flight")
			return nil, nil
		})); !errors.Is(err, ErrLoadInProgress) {
			t.Fatalf("expected ErrLoadInProgress, got %v", err)
		}

		close(release)
		<-done
		if v.State().Loading {
			t.Fatalf("fail=%v: loading should be cleared once the fetch completes", fail)
		}

		mu.Lock()
		if diff := cmp.Diff([]bool{true, false}, seen); diff != "" {
			t.Errorf("fail=%v: observed loading transitions (-want +got):\n%s", fail, diff)
		}
		mu.Unlock()
	}
}

func TestSnapshotIsolatedFromFetcher(t *testing.T) {
	src := sampleStats()
	v := NewView()
	v.Load(context.Background(), FetcherFunc(func(context.Context) (*models.Statistics, error) {
		return src, nil
	}))
	src.Results = 1
	src.ResponseCodeStats[0].Percentage = 1

	if got := v.State().Snapshot; got.Results != 120 || got.ResponseCodeStats[0].Percentage != 75 {
		t.Fatalf("snapshot changed after load: %+v", got)
	}
}

func TestRenderText(t *testing.T) {
	v := NewView()
	v.Load(context.Background(), FetcherFunc(func(context.Context) (*models.Statistics, error) {
		return sampleStats(), nil
	}))

	var buf bytes.Buffer
	if err := RenderText(&buf, v); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"Database Size   5.0 MB", "Console Logs    17", ChartTitle, "200 | ", " 75.0% (90)"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if !strings.Contains(out, strings.Repeat("#", 30)+" ") {
		t.Errorf("expected a 30 cell bar for 75%%:\n%s", out)
	}
}

func TestRenderTextFailure(t *testing.T) {
	v := NewView()
	v.Load(context.Background(), FetcherFunc(func(context.Context) (*models.Statistics, error) {
		return nil, errors.New("401 unauthorized")
	}))

	var buf bytes.Buffer
	RenderText(&buf, v)
	out := buf.String()
	if !strings.HasPrefix(out, "API Error: Failed to get statistics: 401 unauthorized") {
		t.Errorf("missing notice:\n%s", out)
	}
	if !strings.Contains(out, "Total Results   0") || !strings.Contains(out, "(no results)") {
		t.Errorf("expected zero values:\n%s", out)
	}
}

func TestTextBarsClamp(t *testing.T) {
	out := TextBars([]Bar{{Code: 500, Count: 1, Percentage: 150}}, 10)
	if strings.Count(out, "#") != 10 {
		t.Fatalf("bar not clamped to width: %q", out)
	}
}

func TestRenderChartPNG(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderChartPNG(&buf, sampleStats(), 640, 320); err != nil {
		t.Fatalf("render: %v", err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 640 || b.Dy() != 320 {
		t.Fatalf("image size = %dx%d; want 640x320", b.Dx(), b.Dy())
	}
}

func TestRenderChartPNGEmpty(t *testing.T) {
	err := RenderChartPNG(&bytes.Buffer{}, &models.Statistics{ResponseCodeStats: []models.ResponseCodeStat{}}, 0, 0)
	if !errors.Is(err, ErrNoChartData) {
		t.Fatalf("expected ErrNoChartData, got %v", err)
	}
}
