// Package dashboard holds the statistics view: the state behind the summary
// cards and the status code chart, and the renderers that draw it.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/shutterscope/shutterscope/internal/models"
)

// ErrLoadInProgress is returned by Load while another fetch is in flight.
var ErrLoadInProgress = errors.New("statistics load already in progress")

// ErrNoSnapshot is reported when a fetcher succeeds without a snapshot.
var ErrNoSnapshot = errors.New("empty statistics response")

// Fetcher retrieves a statistics snapshot. *client.Client satisfies it.
type Fetcher interface {
	Statistics(ctx context.Context) (*models.Statistics, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context) (*models.Statistics, error)

// Statistics calls f.
func (f FetcherFunc) Statistics(ctx context.Context) (*models.Statistics, error) {
	return f(ctx)
}

// Notice is a user-visible, non-fatal message.
type Notice struct {
	Title       string
	Description string
}

// State is a copy of the view state handed to observers. Snapshot must be
// treated as read-only.
type State struct {
	Loading  bool
	Snapshot *models.Statistics
	Notice   *Notice
}

// View owns one statistics snapshot per load cycle.
type View struct {
	mu        sync.Mutex
	loading   bool
	snapshot  *models.Statistics
	notice    *Notice
	observers []func(State)
}

// NewView returns an idle view with no snapshot.
func NewView() *View {
	return &View{}
}

// Subscribe registers fn to be called after every state change. Observers
// run on the goroutine calling Load, outside the view lock.
func (v *View) Subscribe(fn func(State)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.observers = append(v.observers, fn)
}

// State returns the current state.
func (v *View) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stateLocked()
}

func (v *View) stateLocked() State {
	return State{Loading: v.loading, Snapshot: v.snapshot, Notice: v.notice}
}

// Load fetches the snapshot once. The loading flag is set before the
// request starts and cleared when it completes, whatever the outcome. A
// failure replaces the snapshot with a notice so the cards fall back to
// zero values. The fetch error is also returned to the caller.
func (v *View) Load(ctx context.Context, f Fetcher) error {
	v.mu.Lock()
	if v.loading {
		v.mu.Unlock()
		return ErrLoadInProgress
	}
	v.loading = true
	v.snapshot = nil
	v.notice = nil
	v.notifyUnlock()

	stats, err := f.Statistics(ctx)
	if err == nil && stats == nil {
		err = ErrNoSnapshot
	}

	v.mu.Lock()
	if err != nil {
		v.notice = &Notice{
			Title:       "API Error",
			Description: fmt.Sprintf("Failed to get statistics: %v", err),
		}
	} else {
		v.snapshot = clone(stats)
	}
	v.loading = false
	v.notifyUnlock()
	return err
}

// notifyUnlock releases v.mu and then calls observers with the state as it
// was when the lock was held.
func (v *View) notifyUnlock() {
	st := v.stateLocked()
	observers := append([]func(State)(nil), v.observers...)
	v.mu.Unlock()
	for _, fn := range observers {
		fn(st)
	}
}

// Card is one summary tile.
type Card struct {
	Title string
	Value string
}

// Cards returns the five summary tiles. Without a snapshot every value is
// zero.
func (v *View) Cards() []Card {
	return CardsFor(v.State().Snapshot)
}

// CardsFor builds the summary tiles for s, which may be nil.
func CardsFor(s *models.Statistics) []Card {
	var z models.Statistics
	if s == nil {
		s = &z
	}
	return []Card{
		{Title: "Database Size", Value: fmt.Sprintf("%.1f MB", float64(s.DBSize)/(1024*1024))},
		{Title: "Total Results", Value: strconv.FormatInt(s.Results, 10)},
		{Title: "Headers", Value: strconv.FormatInt(s.Headers, 10)},
		{Title: "Network Logs", Value: strconv.FormatInt(s.NetworkLogs, 10)},
		{Title: "Console Logs", Value: strconv.FormatInt(s.ConsoleLogs, 10)},
	}
}

// Bar is one column of the status code chart.
type Bar struct {
	Code       int
	Count      int64
	Percentage float64
}

// Bars returns the chart data in snapshot order.
func (v *View) Bars() []Bar {
	return BarsFor(v.State().Snapshot)
}

// BarsFor converts the response code distribution of s into chart bars.
func BarsFor(s *models.Statistics) []Bar {
	if s == nil {
		return []Bar{}
	}
	bars := make([]Bar, 0, len(s.ResponseCodeStats))
	for _, c := range s.ResponseCodeStats {
		bars = append(bars, Bar{Code: c.Code, Count: c.Count, Percentage: c.Percentage})
	}
	return bars
}

func clone(s *models.Statistics) *models.Statistics {
	out := *s
	out.ResponseCodeStats = append([]models.ResponseCodeStat{}, s.ResponseCodeStats...)
	return &out
}
