package logbuffer

import (
	"fmt"
	"testing"
	"time"
)

func entry(level, component, message string) LogEntry {
	return LogEntry{
		Timestamp: time.Now(),
		Level:     level,
		Component: component,
		Message:   message,
	}
}

func TestBufferEvictsOldest(t *testing.T) {
	b := New(3)
	for i := 0; i < 5; i++ {
		b.Add(entry("info", "refresher", fmt.Sprintf("pass %d", i)))
	}

	all := b.GetAll()
	if len(all) != 3 {
		t.Fatalf("got %d entries, want capacity 3", len(all))
	}
	if all[0].Message != "pass 2" || all[2].Message != "pass 4" {
		t.Errorf("entries = [%s .. %s], want [pass 2 .. pass 4]", all[0].Message, all[2].Message)
	}
}

func TestBufferQuery(t *testing.T) {
	b := New(16)
	b.Add(entry("info", "refresher", "guide refreshed"))
	b.Add(entry("error", "api", "channel lookup failed"))
	b.Add(entry("info", "api", "schedule served"))
	b.Add(entry("warn", "cache", "disabling cache due to Redis error"))

	tests := []struct {
		name   string
		params QueryParams
		want   int
	}{
		{"all", QueryParams{}, 4},
		{"by level", QueryParams{Level: "info"}, 2},
		{"by component", QueryParams{Component: "api"}, 2},
		{"by search", QueryParams{Search: "REDIS"}, 1},
		{"level and component", QueryParams{Level: "info", Component: "api"}, 1},
		{"limit", QueryParams{Limit: 2}, 2},
		{"no match", QueryParams{Component: "ghost"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := b.Query(tt.params); len(got) != tt.want {
				t.Errorf("got %d entries, want %d", len(got), tt.want)
			}
		})
	}
}

func TestBufferQueryDescending(t *testing.T) {
	b := New(16)
	b.Add(entry("info", "refresher", "first"))
	b.Add(entry("info", "refresher", "second"))

	got := b.Query(QueryParams{Descending: true})
	if len(got) != 2 || got[0].Message != "second" {
		t.Errorf("descending order starts with %q, want second", got[0].Message)
	}
}

func TestBufferStats(t *testing.T) {
	b := New(16)
	b.Add(entry("info", "refresher", "one"))
	b.Add(entry("info", "api", "two"))
	b.Add(entry("error", "api", "three"))

	stats := b.Stats()
	if stats.Count != 3 || stats.Capacity != 16 {
		t.Errorf("stats = %+v, want count 3 capacity 16", stats)
	}
	if stats.LevelCount["info"] != 2 || stats.LevelCount["error"] != 1 {
		t.Errorf("level counts = %v, want info:2 error:1", stats.LevelCount)
	}

	components := b.GetComponents()
	if len(components) != 2 {
		t.Errorf("components = %v, want refresher and api", components)
	}
}

func TestBufferClear(t *testing.T) {
	b := New(16)
	b.Add(entry("info", "api", "hello"))
	b.Clear()
	if got := b.GetAll(); len(got) != 0 {
		t.Errorf("after clear %d entries remain", len(got))
	}
}

func TestWriterCapturesZerologOutput(t *testing.T) {
	b := New(16)
	w := NewWriter(b, nil)

	line := `{"level":"info","component":"refresher","channels":3,"time":"2026-03-14T08:00:00Z","message":"guide refreshed"}` + "\n"
	n, err := w.Write([]byte(line))
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if n != len(line) {
		t.Errorf("Write() = %d, want %d", n, len(line))
	}

	all := b.GetAll()
	if len(all) != 1 {
		t.Fatalf("captured %d entries, want 1", len(all))
	}
	got := all[0]
	if got.Level != "info" || got.Component != "refresher" || got.Message != "guide refreshed" {
		t.Errorf("entry = %+v, want parsed level/component/message", got)
	}
	if got.Timestamp.UTC() != time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC) {
		t.Errorf("timestamp = %v, want the time field from the line", got.Timestamp)
	}
	if v, ok := got.Fields["channels"].(float64); !ok || v != 3 {
		t.Errorf("fields = %v, want channels 3", got.Fields)
	}
}

func TestWriterPassesThroughNonJSON(t *testing.T) {
	b := New(16)
	w := NewWriter(b, nil)

	if _, err := w.Write([]byte("plain text line\n")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if got := b.GetAll(); len(got) != 0 {
		t.Errorf("captured %d entries from non-JSON input, want 0", len(got))
	}
}
