package refresher

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/zapperlabs/zapper/internal/catalog"
	"github.com/zapperlabs/zapper/internal/channels"
	"github.com/zapperlabs/zapper/internal/events"
	"github.com/zapperlabs/zapper/internal/guide"
	"github.com/zapperlabs/zapper/internal/models"
)

func newTestRefresher(t *testing.T, items []catalog.Item, horizon int) (*Service, *guide.Engine, *channels.Service, *events.Bus) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.Channel{}, &models.TimeSlot{}, &models.Airing{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	bus := events.NewBus()
	channelSvc := channels.NewService(db, bus, zerolog.Nop())

	path := filepath.Join(t.TempDir(), "catalog.json")
	data, err := json.Marshal(items)
	if err != nil {
		t.Fatalf("marshal catalog: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	pool := catalog.NewPool(path, zerolog.Nop())
	if _, err := pool.Reload(); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	engine := guide.NewEngine(pool, guide.NewMemoryCooldown(), guide.DefaultDurationPolicy(), 7, time.UTC, zerolog.Nop())
	svc := New(engine, channelSvc, bus, time.Hour, horizon, zerolog.Nop())
	return svc, engine, channelSvc, bus
}

func catalogSeries(id int, title string, runtime int) catalog.Item {
	return catalog.Item{
		ID:        id,
		Kind:      models.KindSeries,
		Title:     title,
		Year:      1992,
		Runtime:   &runtime,
		Providers: []catalog.Provider{{ID: 8, Name: "Netflix"}},
	}
}

func mustCreate(t *testing.T, svc *channels.Service, ch models.Channel) string {
	t.Helper()
	if err := svc.Create(context.Background(), &ch); err != nil {
		t.Fatalf("Create(%s) error = %v", ch.Name, err)
	}
	return ch.ID
}

type captureArchive struct {
	mu     sync.Mutex
	stored []string
}

func (c *captureArchive) Store(_ context.Context, sched *guide.DaySchedule) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stored = append(c.stored, sched.ChannelID+":"+sched.Date)
	return nil
}

func (c *captureArchive) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.stored)
}

func TestRefreshGeneratesHorizonForEnabledChannels(t *testing.T) {
	svc, engine, channelSvc, _ := newTestRefresher(t, []catalog.Item{
		catalogSeries(1, "Morning Show", 60),
		catalogSeries(2, "Evening Show", 60),
	}, 2)

	retro := mustCreate(t, channelSvc, models.Channel{
		Name: "Retro", Priority: 5, Enabled: true,
		Slots: []models.TimeSlot{{Start: "08:00", End: "10:00", Label: "Morning"}},
	})
	dark := mustCreate(t, channelSvc, models.Channel{
		Name: "Dark", Priority: 1, Enabled: false,
		Slots: []models.TimeSlot{{Start: "08:00", End: "10:00", Label: "Morning"}},
	})

	svc.Refresh(context.Background())

	today := time.Now().UTC()
	tomorrow := today.AddDate(0, 0, 1)
	if got := engine.State(retro, today); got != guide.StateCached {
		t.Errorf("State(retro, today) = %q, want %q", got, guide.StateCached)
	}
	if got := engine.State(retro, tomorrow); got != guide.StateCached {
		t.Errorf("State(retro, tomorrow) = %q, want %q", got, guide.StateCached)
	}
	if got := engine.State(dark, today); got != guide.StateIdle {
		t.Errorf("State(dark, today) = %q, want %q; disabled channels are never generated", got, guide.StateIdle)
	}
}

func TestRefreshPublishesGuideGenerated(t *testing.T) {
	svc, _, channelSvc, bus := newTestRefresher(t, []catalog.Item{catalogSeries(1, "Show", 60)}, 1)
	mustCreate(t, channelSvc, models.Channel{
		Name: "Retro", Enabled: true,
		Slots: []models.TimeSlot{{Start: "08:00", End: "09:00", Label: "Morning"}},
	})

	sub := bus.Subscribe(events.EventGuideGenerated)
	defer bus.Unsubscribe(events.EventGuideGenerated, sub)

	svc.Refresh(context.Background())

	select {
	case payload := <-sub:
		if got, ok := payload["channels"].(int); !ok || got != 1 {
			t.Errorf("payload channels = %v, want 1", payload["channels"])
		}
	default:
		t.Fatal("no guide.generated event published")
	}
}

func TestRefreshArchivesOnlyFreshDays(t *testing.T) {
	svc, _, channelSvc, _ := newTestRefresher(t, []catalog.Item{catalogSeries(1, "Show", 60)}, 2)
	mustCreate(t, channelSvc, models.Channel{
		Name: "Retro", Enabled: true,
		Slots: []models.TimeSlot{{Start: "08:00", End: "09:00", Label: "Morning"}},
	})

	sink := &captureArchive{}
	svc.SetArchive(sink)

	svc.Refresh(context.Background())
	if got := sink.count(); got != 2 {
		t.Fatalf("first pass archived %d days, want 2", got)
	}

	// The second pass serves both days from the engine cache.
	svc.Refresh(context.Background())
	if got := sink.count(); got != 2 {
		t.Errorf("second pass archived %d days total, want still 2", got)
	}
}

func TestDayScheduleUnknownChannel(t *testing.T) {
	svc, _, channelSvc, _ := newTestRefresher(t, []catalog.Item{catalogSeries(1, "Show", 60)}, 1)
	mustCreate(t, channelSvc, models.Channel{
		Name: "Dark", Enabled: false,
		Slots: []models.TimeSlot{{Start: "08:00", End: "09:00", Label: "Morning"}},
	})

	if _, err := svc.DaySchedule(context.Background(), "ghost", time.Now()); !errors.Is(err, channels.ErrNotFound) {
		t.Errorf("DaySchedule(ghost) error = %v, want ErrNotFound", err)
	}
	// Disabled channels are not part of the served lineup either.
	if _, err := svc.DaySchedule(context.Background(), "dark", time.Now()); !errors.Is(err, channels.ErrNotFound) {
		t.Errorf("DaySchedule(dark) error = %v, want ErrNotFound", err)
	}
}

func TestDayScheduleGeneratesOnDemand(t *testing.T) {
	svc, _, channelSvc, _ := newTestRefresher(t, []catalog.Item{catalogSeries(1, "Show", 60)}, 1)
	retro := mustCreate(t, channelSvc, models.Channel{
		Name: "Retro", Enabled: true,
		Slots: []models.TimeSlot{{Start: "08:00", End: "09:00", Label: "Morning"}},
	})

	at := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	sched, err := svc.DaySchedule(context.Background(), retro, at)
	if err != nil {
		t.Fatalf("DaySchedule() error = %v", err)
	}
	if sched.ChannelID != retro || sched.Date != "2026-03-14" {
		t.Errorf("got schedule %s/%s, want %s/2026-03-14", sched.ChannelID, sched.Date, retro)
	}
	if len(sched.Programs) != 1 {
		t.Fatalf("got %d programs, want 1", len(sched.Programs))
	}

	again, err := svc.DaySchedule(context.Background(), retro, at)
	if err != nil {
		t.Fatalf("DaySchedule() second call error = %v", err)
	}
	if again != sched {
		t.Error("second call regenerated instead of serving the engine cache")
	}
}

func TestNowPlaying(t *testing.T) {
	svc, _, channelSvc, _ := newTestRefresher(t, []catalog.Item{catalogSeries(1, "Mid Morning Show", 60)}, 1)
	retro := mustCreate(t, channelSvc, models.Channel{
		Name: "Retro", Enabled: true,
		Slots: []models.TimeSlot{{Start: "10:00", End: "11:00", Label: "Mid Morning"}},
	})

	onAir := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
	prog, err := svc.NowPlaying(context.Background(), retro, onAir)
	if err != nil {
		t.Fatalf("NowPlaying() error = %v", err)
	}
	if prog == nil || prog.ItemID != 1 {
		t.Fatalf("NowPlaying() = %v, want item 1", prog)
	}

	offAir := time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)
	prog, err = svc.NowPlaying(context.Background(), retro, offAir)
	if err != nil {
		t.Fatalf("NowPlaying() off air error = %v", err)
	}
	if prog != nil {
		t.Errorf("NowPlaying() off air = %q, want nil", prog.Title)
	}
}

func TestNowPlayingSpillsOverMidnight(t *testing.T) {
	svc, _, channelSvc, _ := newTestRefresher(t, []catalog.Item{catalogSeries(1, "Late Show", 90)}, 1)
	retro := mustCreate(t, channelSvc, models.Channel{
		Name: "Retro", Enabled: true,
		Slots: []models.TimeSlot{{Start: "23:00", End: "01:00", Label: "Late Night"}},
	})

	// 00:15 belongs to the program that started 23:00 the previous day.
	at := time.Date(2026, 3, 15, 0, 15, 0, 0, time.UTC)
	prog, err := svc.NowPlaying(context.Background(), retro, at)
	if err != nil {
		t.Fatalf("NowPlaying() error = %v", err)
	}
	if prog == nil {
		t.Fatal("NowPlaying() = nil, want the spillover program from the previous day")
	}
	wantStart := time.Date(2026, 3, 14, 23, 0, 0, 0, time.UTC)
	if !prog.Start.Equal(wantStart) {
		t.Errorf("program starts %v, want %v", prog.Start, wantStart)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	svc, _, _, _ := newTestRefresher(t, nil, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not stop after cancel")
	}
}
