package airlog

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/zapperlabs/zapper/internal/models"
)

func newTestStore(t *testing.T) (*Store, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.Airing{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store, err := Open(db, zerolog.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return store, db
}

func utcDay(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestMarkAiredPersistsRow(t *testing.T) {
	store, db := newTestStore(t)
	day := utcDay(2026, 3, 14)

	store.MarkAired("retro", 42, day)

	if got, ok := store.LastAired("retro", 42); !ok || !got.Equal(day) {
		t.Fatalf("LastAired = %v, %v", got, ok)
	}

	var row models.Airing
	if err := db.First(&row, "channel_id = ? AND item_id = ?", "retro", 42).Error; err != nil {
		t.Fatalf("row not written: %v", err)
	}
	if !row.LastAired.UTC().Equal(day) {
		t.Errorf("persisted day = %v, want %v", row.LastAired, day)
	}
}

func TestMarkAiredReplacesEarlierRecord(t *testing.T) {
	store, db := newTestStore(t)

	store.MarkAired("retro", 42, utcDay(2026, 3, 10))
	store.MarkAired("retro", 42, utcDay(2026, 3, 14))

	if got, _ := store.LastAired("retro", 42); !got.Equal(utcDay(2026, 3, 14)) {
		t.Errorf("LastAired = %v", got)
	}

	var count int64
	if err := db.Model(&models.Airing{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("rows = %d, want 1 after upsert", count)
	}
}

func TestHistorySurvivesReopen(t *testing.T) {
	store, db := newTestStore(t)
	day := utcDay(2026, 3, 14)

	store.MarkAired("retro", 42, day)
	store.MarkAired("alt", 42, day.AddDate(0, 0, -3))

	reopened, err := Open(db, zerolog.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got, ok := reopened.LastAired("retro", 42); !ok || !got.Equal(day) {
		t.Errorf("retro LastAired = %v, %v", got, ok)
	}
	if got, ok := reopened.LastAired("alt", 42); !ok || !got.Equal(day.AddDate(0, 0, -3)) {
		t.Errorf("alt LastAired = %v, %v", got, ok)
	}
}

func TestClearDayRemovesExactDayOnly(t *testing.T) {
	store, db := newTestStore(t)
	day := utcDay(2026, 3, 14)

	store.MarkAired("retro", 1, day)
	store.MarkAired("retro", 2, day.AddDate(0, 0, -1))
	store.MarkAired("alt", 3, day)

	store.ClearDay("retro", day)

	if _, ok := store.LastAired("retro", 1); ok {
		t.Error("cleared record still present in memory")
	}
	if _, ok := store.LastAired("retro", 2); !ok {
		t.Error("other day wrongly cleared")
	}
	if _, ok := store.LastAired("alt", 3); !ok {
		t.Error("other channel wrongly cleared")
	}

	var count int64
	if err := db.Model(&models.Airing{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Errorf("rows = %d, want 2", count)
	}
}

func TestLastAiredUnknownItem(t *testing.T) {
	store, _ := newTestStore(t)
	if _, ok := store.LastAired("retro", 99); ok {
		t.Fatal("unknown item reported as aired")
	}
}
