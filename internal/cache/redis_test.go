package cache

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	redis "github.com/redis/go-redis/v9"

	"github.com/shutterscope/shutterscope/internal/models"
)

// unreachableRedis points at a port nothing listens on.
func unreachableRedis(t *testing.T, logs *bytes.Buffer) *redisCache {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { client.Close() })
	logger := slog.New(slog.NewTextHandler(logs, nil))
	return newRedisCache(client, time.Minute, logger)
}

func TestRedisCacheErrorsAreMisses(t *testing.T) {
	var logs bytes.Buffer
	c := unreachableRedis(t, &logs)
	ctx := context.Background()

	c.Set(ctx, &models.Statistics{Results: 3})
	if got, ok := c.Get(ctx); ok || got != nil {
		t.Fatalf("expected miss from unreachable redis, got %+v", got)
	}
	c.Invalidate(ctx)

	out := logs.String()
	for _, op := range []string{"op=set", "op=get", "op=del"} {
		if !strings.Contains(out, op) {
			t.Errorf("expected %s to be logged:\n%s", op, out)
		}
	}
	if c.Name() != "redis" {
		t.Fatalf("name = %q", c.Name())
	}
}

func TestNewRedisUnreachable(t *testing.T) {
	if _, err := NewRedis("127.0.0.1:1", "", 0, time.Minute, nil); err == nil {
		t.Fatal("expected ping error")
	}
}

func TestRedisCacheSetDisabled(t *testing.T) {
	var logs bytes.Buffer
	c := unreachableRedis(t, &logs)
	c.ttl = 0

	c.Set(context.Background(), &models.Statistics{Results: 1})
	c.Set(context.Background(), nil)
	if logs.Len() != 0 {
		t.Fatalf("disabled cache should not reach redis:\n%s", logs.String())
	}
}

func TestSnapshotEncoding(t *testing.T) {
	in := &models.Statistics{
		DBSize:      1 << 20,
		Results:     2,
		Headers:     4,
		NetworkLogs: 6,
		ConsoleLogs: 1,
		ResponseCodeStats: []models.ResponseCodeStat{
			{Code: 200, Count: 1, Percentage: 50},
			{Code: 500, Count: 1, Percentage: 50},
		},
	}
	raw, err := encodeSnapshot(in)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), `"response_code_stats":[`) {
		t.Fatalf("unexpected encoding: %s", raw)
	}
	out, err := decodeSnapshot(raw)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeSnapshotNullCodes(t *testing.T) {
	for _, raw := range []string{
		`{"dbsize":10,"results":0,"response_code_stats":null}`,
		`{"dbsize":10,"results":0}`,
	} {
		got, err := decodeSnapshot([]byte(raw))
		if err != nil {
			t.Fatalf("decode %s: %v", raw, err)
		}
		if got.ResponseCodeStats == nil || len(got.ResponseCodeStats) != 0 {
			t.Fatalf("decode %s: codes = %#v; want empty slice", raw, got.ResponseCodeStats)
		}
	}
	if _, err := decodeSnapshot([]byte(`{not json`)); err == nil {
		t.Fatal("expected decode error")
	}
}
