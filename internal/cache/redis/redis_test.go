package redis

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

func TestKeySchema(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{opportunityKey("7f3c"), "hedgebot:opp:7f3c"},
		{recentKey, "hedgebot:opp:recent"},
		{lockKey("scan"), "hedgebot:lock:scan"},
		{lockKey("exec:7f3c"), "hedgebot:lock:exec:7f3c"},
		{rateLimitKey("api:10.0.0.1"), "hedgebot:ratelimit:api:10.0.0.1"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("key = %q, want %q", tt.got, tt.want)
		}
	}
}

func TestStaleBound(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	got := staleBound(now, 10*time.Minute)
	want := "(" + "1773489000000"
	if got != want {
		t.Errorf("staleBound = %q, want %q", got, want)
	}
	if !strings.HasPrefix(got, "(") {
		t.Error("bound must be exclusive so entries exactly ttl old survive")
	}
}

func TestDecodeOpportunities(t *testing.T) {
	fresh, err := json.Marshal(domain.HedgeOpportunity{ID: "a", ProfitPercentage: 2.5})
	if err != nil {
		t.Fatal(err)
	}
	other, _ := json.Marshal(domain.HedgeOpportunity{ID: "c"})

	// MGET answers nil for keys that expired after the index read.
	got := decodeOpportunities([]any{string(fresh), nil, "{not json", string(other)})
	if len(got) != 2 {
		t.Fatalf("decoded %d opportunities, want 2: %+v", len(got), got)
	}
	if got[0].ID != "a" || got[0].ProfitPercentage != 2.5 || got[1].ID != "c" {
		t.Errorf("decoded = %+v", got)
	}
	if out := decodeOpportunities(nil); len(out) != 0 {
		t.Errorf("empty reply decoded to %+v", out)
	}
}

func TestSlidingWindowArgs(t *testing.T) {
	now := time.UnixMicro(1_700_000_000_123_456)
	args := slidingWindowArgs(now, 1500*time.Millisecond, 3)
	if len(args) != 3 {
		t.Fatalf("args = %v", args)
	}
	if args[0] != int64(1_700_000_000_123_456) || args[1] != int64(1_500_000) || args[2] != 3 {
		t.Errorf("args = %#v", args)
	}
	// The script reads exactly these three ARGV slots.
	for _, slot := range []string{"ARGV[1]", "ARGV[2]", "ARGV[3]", "KEYS[1]"} {
		if !strings.Contains(slidingWindowLua, slot) {
			t.Errorf("script does not read %s", slot)
		}
	}
	if strings.Contains(slidingWindowLua, "ARGV[4]") {
		t.Error("script reads an argument the limiter never sends")
	}
}

func TestParseAllowResult(t *testing.T) {
	tests := []struct {
		name    string
		in      []int64
		want    bool
		wantErr bool
	}{
		{"allowed", []int64{1, 1}, true, false},
		{"over limit", []int64{0, 5}, false, false},
		{"short reply", []int64{1}, false, true},
		{"empty reply", nil, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseAllowResult(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("allowed = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStreamMessages(t *testing.T) {
	results := []redis.XStream{{
		Stream: "stream:opportunities",
		Messages: []redis.XMessage{
			{ID: "1-0", Values: map[string]any{"payload": "first"}},
			{ID: "2-0", Values: map[string]any{"other": "x"}},
			{ID: "3-0", Values: map[string]any{"payload": []byte("third")}},
			{ID: "4-0", Values: map[string]any{"payload": 42}},
		},
	}}
	got := streamMessages(results)
	if len(got) != 2 {
		t.Fatalf("got %d messages, want 2: %+v", len(got), got)
	}
	if got[0].ID != "1-0" || string(got[0].Payload) != "first" || got[1].ID != "3-0" || string(got[1].Payload) != "third" {
		t.Errorf("messages = %+v", got)
	}
}
