package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/shutterscope/shutterscope/internal/models"
)

func TestStatistics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/statistics" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("authorization = %q", got)
		}
		w.Write([]byte(`{"dbsize":1048576,"results":3,"headers":9,"networklogs":4,"consolelogs":2,
			"response_code_stats":[{"code":200,"count":2,"percentage":66.7},{"code":500,"count":1,"percentage":33.3}]}`))
	}))
	defer srv.Close()

	got, err := New(srv.URL+"/", WithToken("tok")).Statistics(context.Background())
	if err != nil {
		t.Fatalf("statistics: %v", err)
	}
	want := &models.Statistics{
		DBSize: 1048576, Results: 3, Headers: 9, NetworkLogs: 4, ConsoleLogs: 2,
		ResponseCodeStats: []models.ResponseCodeStat{
			{Code: 200, Count: 2, Percentage: 66.7},
			{Code: 500, Count: 1, Percentage: 33.3},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestStatisticsMissingCodesIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"dbsize":0,"results":0}`))
	}))
	defer srv.Close()

	got, err := New(srv.URL).Statistics(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got.ResponseCodeStats == nil || len(got.ResponseCodeStats) != 0 {
		t.Fatalf("expected empty codes, got %#v", got.ResponseCodeStats)
	}
}

func TestAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/statistics":
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"invalid token"}`))
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Statistics(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T %v", err, err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized || apiErr.Message != "invalid token" {
		t.Fatalf("unexpected error: %+v", apiErr)
	}

	_, err = c.GetResult(context.Background(), 7)
	if !errors.As(err, &apiErr) || apiErr.Message != "Bad Gateway" {
		t.Fatalf("expected status text fallback, got %v", err)
	}
}

func TestLoginAndResults(t *testing.T) {
	var created models.Result
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["username"] != "alice" || body["password"] != "pw" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"token":"abc","username":"alice","role":"admin"}`))
	})
	mux.HandleFunc("POST /api/v1/results", func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&created)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":12}`))
	})
	mux.HandleFunc("GET /api/v1/results", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("limit") != "5" || r.URL.Query().Get("offset") != "10" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"results":[{"id":12,"url":"https://a.example"}],"limit":5,"offset":10}`))
	})
	mux.HandleFunc("DELETE /api/v1/results/12", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx := context.Background()
	c := New(srv.URL)
	login, err := c.Login(ctx, "alice", "pw")
	if err != nil || login.Token != "abc" {
		t.Fatalf("login = %+v, %v", login, err)
	}

	c = New(srv.URL, WithToken(login.Token))
	id, err := c.CreateResult(ctx, &models.Result{URL: "https://a.example", ResponseCode: 200})
	if err != nil || id != 12 {
		t.Fatalf("create = %d, %v", id, err)
	}
	if created.URL != "https://a.example" {
		t.Fatalf("server received %+v", created)
	}

	list, err := c.ListResults(ctx, 5, 10)
	if err != nil || len(list) != 1 || list[0].ID != 12 {
		t.Fatalf("list = %+v, %v", list, err)
	}
	if err := c.DeleteResult(ctx, 12); err != nil {
		t.Fatalf("delete: %v", err)
	}
}

func TestCreateResultRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		var body models.Result
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.URL != "https://a.example" {
			t.Errorf("attempt %d: body not resent intact: %+v %v", n, body, err)
		}
		if n <= 2 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"rate limit exceeded"}`))
			return
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":7}`))
	}))
	defer srv.Close()

	id, err := New(srv.URL).CreateResult(context.Background(), &models.Result{URL: "https://a.example"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id != 7 || calls.Load() != 3 {
		t.Fatalf("id = %d after %d calls; want 7 after 3", id, calls.Load())
	}
}

func TestRateLimitRetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"rate limit exceeded"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, WithMaxRetries(1)).CreateResult(context.Background(), &models.Result{URL: "https://a.example"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 APIError, got %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("calls = %d; want 2", calls.Load())
	}
}

func TestRateLimitRetryHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "10")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := New(srv.URL).CreateResult(ctx, &models.Result{URL: "https://a.example"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatal("retry wait ignored the context")
	}
}

func TestRetryAfter(t *testing.T) {
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		header string
		want   time.Duration
	}{
		{"", time.Second},
		{"0", 0},
		{"3", 3 * time.Second},
		{"junk", time.Second},
		{"-4", 0},
		{"3600", maxRetryWait},
		{now.Add(5 * time.Second).Format(http.TimeFormat), 5 * time.Second},
		{now.Add(-time.Minute).Format(http.TimeFormat), 0},
	}
	for _, tt := range tests {
		if got := retryAfter(tt.header, now); got != tt.want {
			t.Errorf("retryAfter(%q) = %v; want %v", tt.header, got, tt.want)
		}
	}
}

func TestStatisticsIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"rate limit exceeded"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).Statistics(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 APIError, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d; want a single request", calls.Load())
	}
}
