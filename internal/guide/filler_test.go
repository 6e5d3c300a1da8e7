package guide

import (
	"testing"
	"time"

	"github.com/zapperlabs/zapper/internal/catalog"
	"github.com/zapperlabs/zapper/internal/models"
)

func TestDurationPolicy(t *testing.T) {
	policy := DefaultDurationPolicy()

	tests := []struct {
		name    string
		kind    models.ContentKind
		runtime int // 0 means unknown
		want    time.Duration
	}{
		{name: "movie with runtime", kind: models.KindMovie, runtime: 137, want: 137 * time.Minute},
		{name: "movie without runtime", kind: models.KindMovie, runtime: 0, want: 90 * time.Minute},
		{name: "series with runtime", kind: models.KindSeries, runtime: 52, want: 52 * time.Minute},
		{name: "series without runtime", kind: models.KindSeries, runtime: 0, want: 45 * time.Minute},
		{name: "short episode floored", kind: models.KindSeries, runtime: 12, want: 30 * time.Minute},
		{name: "episode at the floor", kind: models.KindSeries, runtime: 30, want: 30 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it := catalog.Item{Kind: tt.kind}
			if tt.runtime > 0 {
				rt := tt.runtime
				it.Runtime = &rt
			}
			if got := policy.Runtime(&it); got != tt.want {
				t.Errorf("Runtime() = %v, want %v", got, tt.want)
			}
		})
	}
}

func fillItems(runtimes ...int) []catalog.Item {
	items := make([]catalog.Item, len(runtimes))
	for i, rt := range runtimes {
		items[i] = poolSeries(i+1, "Show", rt)
	}
	return items
}

func newFillRequest(items []catalog.Item, start, end time.Time) fillRequest {
	return fillRequest{
		channelID: "retro",
		label:     "Block",
		items:     items,
		start:     start,
		end:       end,
		day:       DateOf(start, time.UTC),
		policy:    DefaultDurationPolicy(),
		cooldown:  NewMemoryCooldown(),
		hours:     NewHourLedger(),
	}
}

func TestFillSlotPacksInOrder(t *testing.T) {
	start := time.Date(2026, 3, 14, 6, 0, 0, 0, time.UTC)
	req := newFillRequest(fillItems(90, 120, 60), start, start.Add(6*time.Hour))

	got := fillSlot(req)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	wantStarts := []time.Time{start, start.Add(90 * time.Minute), start.Add(210 * time.Minute)}
	for i, p := range got {
		if !p.Start.Equal(wantStarts[i]) {
			t.Errorf("program %d starts %v, want %v", i, p.Start, wantStarts[i])
		}
		if p.ItemID != i+1 {
			t.Errorf("program %d is item %d, want the given order preserved", i, p.ItemID)
		}
	}
}

func TestFillSlotSkipsOversizedWithoutAdvancing(t *testing.T) {
	start := time.Date(2026, 3, 14, 6, 0, 0, 0, time.UTC)
	// 90 minutes of window: the 2 hour show is skipped, the 1 hour show
	// still starts at the untouched cursor.
	req := newFillRequest(fillItems(120, 60), start, start.Add(90*time.Minute))

	got := fillSlot(req)
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].ItemID != 2 || !got[0].Start.Equal(start) {
		t.Errorf("got item %d at %v, want item 2 at %v", got[0].ItemID, got[0].Start, start)
	}
}

func TestFillSlotExactFitIsAllowed(t *testing.T) {
	start := time.Date(2026, 3, 14, 6, 0, 0, 0, time.UTC)
	req := newFillRequest(fillItems(120), start, start.Add(2*time.Hour))

	got := fillSlot(req)
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1; a program ending exactly at the window end fits", len(got))
	}
}

func TestFillSlotSkipsHourCollisions(t *testing.T) {
	start := time.Date(2026, 3, 14, 6, 0, 0, 0, time.UTC)
	req := newFillRequest(fillItems(60, 60), start, start.Add(2*time.Hour))
	// Another channel already starts item 1 somewhere in the 06:00 hour.
	req.hours.MarkUsed(start.Add(30*time.Minute), 1)

	got := fillSlot(req)
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].ItemID != 2 || !got[0].Start.Equal(start) {
		t.Errorf("got item %d at %v, want item 2 at the untouched cursor", got[0].ItemID, got[0].Start)
	}
}

func TestFillSlotUsesEachItemOnce(t *testing.T) {
	start := time.Date(2026, 3, 14, 6, 0, 0, 0, time.UTC)
	// One 1 hour show against a 6 hour window: the rest stays a gap.
	req := newFillRequest(fillItems(60), start, start.Add(6*time.Hour))

	got := fillSlot(req)
	if len(got) != 1 {
		t.Errorf("len = %d, want 1; a candidate never repeats within a slot", len(got))
	}
}

func TestFillSlotEmptyCandidates(t *testing.T) {
	start := time.Date(2026, 3, 14, 6, 0, 0, 0, time.UTC)
	req := newFillRequest(nil, start, start.Add(2*time.Hour))

	if got := fillSlot(req); len(got) != 0 {
		t.Errorf("len = %d, want 0", len(got))
	}
}

func TestFillSlotMarksOnlyMovies(t *testing.T) {
	start := time.Date(2026, 3, 14, 6, 0, 0, 0, time.UTC)
	items := []catalog.Item{
		poolMovie(1, "Feature", 60),
		poolSeries(2, "Show", 60),
	}
	req := newFillRequest(items, start, start.Add(2*time.Hour))

	got := fillSlot(req)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}

	day := DateOf(start, time.UTC)
	if aired, ok := req.cooldown.LastAired("retro", 1); !ok || !aired.Equal(day) {
		t.Errorf("movie cooldown record = %v, %v; want %v, true", aired, ok, day)
	}
	if _, ok := req.cooldown.LastAired("retro", 2); ok {
		t.Error("series must not be recorded in the cooldown ledger")
	}
}

func TestFillSlotClaimsHours(t *testing.T) {
	start := time.Date(2026, 3, 14, 6, 0, 0, 0, time.UTC)
	req := newFillRequest(fillItems(60, 60), start, start.Add(2*time.Hour))

	got := fillSlot(req)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if !req.hours.IsUsed(start, 1) {
		t.Error("first program's start hour is not claimed")
	}
	if !req.hours.IsUsed(start.Add(time.Hour), 2) {
		t.Error("second program's start hour is not claimed")
	}
}

func TestMakeProgramFields(t *testing.T) {
	it := poolMovie(7, "Night Heat", 0)
	it.PosterPath = "/p/night-heat.jpg"
	start := time.Date(2026, 3, 14, 21, 0, 0, 0, time.UTC)
	end := start.Add(105 * time.Minute)

	p := makeProgram("retro", "Prime Time", &it, start, end)
	if p.ID != "retro_7_2026-03-14T21:00:00Z" {
		t.Errorf("ID = %q", p.ID)
	}
	if p.Runtime != 105 {
		t.Errorf("Runtime = %d, want the scheduled minutes, 105", p.Runtime)
	}
	if p.ProviderName != "Netflix" || p.ProviderLogo == "" {
		t.Errorf("provider fields = %q, %q", p.ProviderName, p.ProviderLogo)
	}
	if p.DeepLink != "https://www.netflix.com/search?q=Night+Heat" {
		t.Errorf("DeepLink = %q", p.DeepLink)
	}
	if p.PosterPath != "/p/night-heat.jpg" {
		t.Errorf("PosterPath = %q", p.PosterPath)
	}
}

func TestMakeProgramWithoutProvider(t *testing.T) {
	it := poolSeries(3, "Orphan Show", 45)
	it.Providers = nil
	start := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	p := makeProgram("retro", "Morning", &it, start, start.Add(45*time.Minute))
	if p.ProviderName != "" || p.DeepLink != "" {
		t.Errorf("provider fields set without a provider: %q, %q", p.ProviderName, p.DeepLink)
	}
}
