package channels

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/zapperlabs/zapper/internal/events"
	"github.com/zapperlabs/zapper/internal/models"
)

func newTestService(t *testing.T) (*Service, *gorm.DB, *events.Bus) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.Channel{}, &models.TimeSlot{}, &models.Airing{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	bus := events.NewBus()
	return NewService(db, bus, zerolog.Nop()), db, bus
}

func movieSlot(start, end, label string) models.TimeSlot {
	return models.TimeSlot{
		Start: start,
		End:   end,
		Label: label,
		Filter: models.SlotFilter{
			ContentType: models.KindMovie,
			Decade:      []int{1980, 1990},
			Genres:      []int{28, 53},
		},
	}
}

func TestCreateDerivesSlugID(t *testing.T) {
	svc, _, _ := newTestService(t)

	ch := &models.Channel{
		Name:    "Retro Gold!",
		Enabled: true,
		Slots: []models.TimeSlot{
			movieSlot("06:00", "12:00", "Morning Matinee"),
			movieSlot("20:00", "23:00", "Prime Time"),
		},
	}
	if err := svc.Create(context.Background(), ch); err != nil {
		t.Fatalf("create: %v", err)
	}
	if ch.ID != "retro-gold" {
		t.Errorf("derived id = %q, want retro-gold", ch.ID)
	}

	got, err := svc.Get(context.Background(), "retro-gold")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Slots) != 2 {
		t.Fatalf("slots = %d, want 2", len(got.Slots))
	}
	for i, slot := range got.Slots {
		if slot.ID == "" {
			t.Errorf("slot %d has no id", i)
		}
		if slot.Position != i {
			t.Errorf("slot %d position = %d", i, slot.Position)
		}
		if slot.ChannelID != "retro-gold" {
			t.Errorf("slot %d channel = %q", i, slot.ChannelID)
		}
	}
	if got.Slots[0].Filter.ContentType != models.KindMovie {
		t.Errorf("filter content type lost: %+v", got.Slots[0].Filter)
	}
	if len(got.Slots[0].Filter.Decade) != 2 || got.Slots[0].Filter.Decade[0] != 1980 {
		t.Errorf("filter decade lost: %+v", got.Slots[0].Filter.Decade)
	}
}

func TestCreateRejectsDuplicateID(t *testing.T) {
	svc, _, _ := newTestService(t)

	first := &models.Channel{Name: "Retro Gold", Enabled: true}
	if err := svc.Create(context.Background(), first); err != nil {
		t.Fatalf("create: %v", err)
	}

	dup := &models.Channel{Name: "Retro Gold", Enabled: true}
	err := svc.Create(context.Background(), dup)
	if err == nil {
		t.Fatal("expected duplicate error")
	}
	if !strings.Contains(err.Error(), "already exists") {
		t.Errorf("error = %v", err)
	}
}

func TestCreateValidatesSlotClock(t *testing.T) {
	svc, _, _ := newTestService(t)

	ch := &models.Channel{
		Name:  "Broken",
		Slots: []models.TimeSlot{{Start: "6am", End: "12:00"}},
	}
	if err := svc.Create(context.Background(), ch); err == nil {
		t.Fatal("expected clock validation error")
	}
}

func TestGetMissingChannel(t *testing.T) {
	svc, _, _ := newTestService(t)

	if _, err := svc.Get(context.Background(), "nope"); err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdateReplacesSlotPlan(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	ch := &models.Channel{
		Name:    "Retro Gold",
		Enabled: true,
		Slots: []models.TimeSlot{
			movieSlot("06:00", "12:00", "Morning"),
			movieSlot("12:00", "18:00", "Afternoon"),
		},
	}
	if err := svc.Create(ctx, ch); err != nil {
		t.Fatalf("create: %v", err)
	}

	updated := &models.Channel{
		ID:       "retro-gold",
		Name:     "Retro Gold",
		Priority: 5,
		Enabled:  false,
		Slots:    []models.TimeSlot{movieSlot("20:00", "02:00", "Night Owl")},
	}
	if err := svc.Update(ctx, updated); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := svc.Get(ctx, "retro-gold")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Enabled {
		t.Error("enabled=false not persisted")
	}
	if got.Priority != 5 {
		t.Errorf("priority = %d", got.Priority)
	}
	if len(got.Slots) != 1 || got.Slots[0].Label != "Night Owl" {
		t.Fatalf("slot plan not replaced: %+v", got.Slots)
	}

	// No orphaned slot rows from the previous plan.
	var count int64
	if err := db.Model(&models.TimeSlot{}).Count(&count).Error; err != nil {
		t.Fatalf("count slots: %v", err)
	}
	if count != 1 {
		t.Errorf("slot rows = %d, want 1", count)
	}
}

func TestUpdateMissingChannel(t *testing.T) {
	svc, _, _ := newTestService(t)

	ch := &models.Channel{ID: "ghost", Name: "Ghost"}
	if err := svc.Update(context.Background(), ch); err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteRemovesSlotsAndAirings(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	ch := &models.Channel{
		Name:    "Retro Gold",
		Enabled: true,
		Slots:   []models.TimeSlot{movieSlot("06:00", "12:00", "Morning")},
	}
	if err := svc.Create(ctx, ch); err != nil {
		t.Fatalf("create: %v", err)
	}
	airing := models.Airing{ChannelID: "retro-gold", ItemID: 42, LastAired: time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)}
	if err := db.Create(&airing).Error; err != nil {
		t.Fatalf("create airing: %v", err)
	}

	if err := svc.Delete(ctx, "retro-gold"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	for name, model := range map[string]any{
		"channels":   &models.Channel{},
		"time_slots": &models.TimeSlot{},
		"airings":    &models.Airing{},
	} {
		var count int64
		if err := db.Model(model).Count(&count).Error; err != nil {
			t.Fatalf("count %s: %v", name, err)
		}
		if count != 0 {
			t.Errorf("%s rows = %d, want 0", name, count)
		}
	}

	if err := svc.Delete(ctx, "retro-gold"); err != ErrNotFound {
		t.Fatalf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestListEnabledOrdersByPriority(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	for _, ch := range []*models.Channel{
		{ID: "filler", Name: "Filler", Priority: 1, Enabled: true},
		{ID: "flagship", Name: "Flagship", Priority: 9, Enabled: true},
		{ID: "parked", Name: "Parked", Priority: 5, Enabled: false},
	} {
		if err := svc.Create(ctx, ch); err != nil {
			t.Fatalf("create %s: %v", ch.ID, err)
		}
	}

	got, err := svc.ListEnabled(ctx)
	if err != nil {
		t.Fatalf("list enabled: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("channels = %d, want 2", len(got))
	}
	if got[0].ID != "flagship" || got[1].ID != "filler" {
		t.Errorf("order = %s, %s", got[0].ID, got[1].ID)
	}

	all, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("all channels = %d, want 3", len(all))
	}
}

func TestMutationsPublishEvents(t *testing.T) {
	svc, _, bus := newTestService(t)
	ctx := context.Background()

	created := bus.Subscribe(events.EventChannelCreated)
	updated := bus.Subscribe(events.EventChannelUpdated)
	deleted := bus.Subscribe(events.EventChannelDeleted)

	ch := &models.Channel{Name: "Retro Gold", Enabled: true}
	if err := svc.Create(ctx, ch); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.Update(ctx, &models.Channel{ID: "retro-gold", Name: "Retro Gold"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := svc.Delete(ctx, "retro-gold"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	for name, sub := range map[string]events.Subscriber{
		"created": created,
		"updated": updated,
		"deleted": deleted,
	} {
		select {
		case payload := <-sub:
			if payload["channel_id"] != "retro-gold" {
				t.Errorf("%s payload = %v", name, payload)
			}
		default:
			t.Errorf("no %s event published", name)
		}
	}
}

func TestImportBlueprintSyncsLineup(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	stale := &models.Channel{ID: "stale", Name: "Stale", Enabled: true}
	if err := svc.Create(ctx, stale); err != nil {
		t.Fatalf("create stale: %v", err)
	}

	blueprint := `{
		"channels": [
			{
				"id": "retro",
				"name": "Retro Gold",
				"priority": 8,
				"slots": [
					{"start": "06:00", "end": "12:00", "label": "Morning", "content_type": "movie", "decade": [1980, 1990], "vote_average_min": 6.5},
					{"start": "12:00", "end": "18:00", "label": "Afternoon", "genres": [35]}
				]
			},
			{
				"name": "Crime Lab",
				"enabled": false,
				"slots": [
					{"start": "20:00", "end": "04:00", "keywords": ["detective", "heist"]}
				]
			}
		]
	}`

	result, err := svc.ImportBlueprint(ctx, strings.NewReader(blueprint))
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if result.Imported != 2 || result.Skipped != 0 {
		t.Fatalf("result = %+v", result)
	}

	if _, err := svc.Get(ctx, "stale"); err != ErrNotFound {
		t.Errorf("stale channel not pruned, err = %v", err)
	}

	retro, err := svc.Get(ctx, "retro")
	if err != nil {
		t.Fatalf("get retro: %v", err)
	}
	if retro.Priority != 8 || !retro.Enabled {
		t.Errorf("retro = %+v", retro)
	}
	if len(retro.Slots) != 2 {
		t.Fatalf("retro slots = %d", len(retro.Slots))
	}
	first := retro.Slots[0]
	if first.Filter.ContentType != models.KindMovie || first.Filter.VoteAverageMin != 6.5 {
		t.Errorf("inline filter fields not decoded: %+v", first.Filter)
	}

	lab, err := svc.Get(ctx, "crime-lab")
	if err != nil {
		t.Fatalf("get crime-lab: %v", err)
	}
	if lab.Enabled {
		t.Error("explicit enabled=false ignored")
	}
	if len(lab.Slots) != 1 || len(lab.Slots[0].Filter.Keywords) != 2 {
		t.Errorf("crime-lab slots = %+v", lab.Slots)
	}
}

func TestImportBlueprintReportsBadChannels(t *testing.T) {
	svc, _, _ := newTestService(t)

	blueprint := `{
		"channels": [
			{"name": "", "slots": []},
			{"id": "ok", "name": "OK", "slots": [{"start": "06:00", "end": "12:00"}]}
		]
	}`

	result, err := svc.ImportBlueprint(context.Background(), strings.NewReader(blueprint))
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if result.Imported != 1 || result.Skipped != 1 {
		t.Fatalf("result = %+v", result)
	}
	if len(result.Errors) == 0 {
		t.Error("expected an error entry for the nameless channel")
	}
	if _, err := svc.Get(context.Background(), "ok"); err != nil {
		t.Errorf("good channel not applied: %v", err)
	}
}

func TestImportBlueprintRejectsGarbage(t *testing.T) {
	svc, _, _ := newTestService(t)
	if _, err := svc.ImportBlueprint(context.Background(), strings.NewReader("{nope")); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestExportBlueprintRoundTrip(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	ch := &models.Channel{
		Name:     "Retro Gold",
		Priority: 3,
		Enabled:  true,
		Slots:    []models.TimeSlot{movieSlot("06:00", "12:00", "Morning")},
	}
	if err := svc.Create(ctx, ch); err != nil {
		t.Fatalf("create: %v", err)
	}

	bp, err := svc.ExportBlueprint(ctx)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(bp.Channels) != 1 {
		t.Fatalf("exported channels = %d", len(bp.Channels))
	}

	data, err := json.Marshal(bp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	// Filter dimensions are inline on the slot, not nested.
	var raw struct {
		Channels []struct {
			Slots []map[string]any `json:"slots"`
		} `json:"channels"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	slot := raw.Channels[0].Slots[0]
	if _, ok := slot["content_type"]; !ok {
		t.Errorf("content_type not inline: %v", slot)
	}
	if _, ok := slot["filter"]; ok {
		t.Errorf("filter nested instead of inline: %v", slot)
	}

	// Re-importing our own export is lossless.
	other, _, _ := newTestService(t)
	result, err := other.ImportBlueprint(ctx, strings.NewReader(string(data)))
	if err != nil {
		t.Fatalf("re-import: %v", err)
	}
	if result.Imported != 1 || len(result.Errors) != 0 {
		t.Fatalf("re-import result = %+v", result)
	}
	got, err := other.Get(ctx, "retro-gold")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Priority != 3 || len(got.Slots) != 1 || got.Slots[0].Filter.ContentType != models.KindMovie {
		t.Errorf("round trip lost data: %+v", got)
	}
}

func TestSeedFromFileOnlyWhenEmpty(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "channels.json")
	blueprint := `{"channels": [{"id": "retro", "name": "Retro Gold", "slots": [{"start": "06:00", "end": "12:00"}]}]}`
	if err := os.WriteFile(path, []byte(blueprint), 0o644); err != nil {
		t.Fatalf("write blueprint: %v", err)
	}

	if err := svc.SeedFromFile(ctx, path); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := svc.Get(ctx, "retro"); err != nil {
		t.Fatalf("seeded channel missing: %v", err)
	}

	// A populated database ignores the file, even when it changed.
	grown := `{"channels": [{"id": "retro", "name": "Retro Gold", "slots": []}, {"id": "extra", "name": "Extra", "slots": []}]}`
	if err := os.WriteFile(path, []byte(grown), 0o644); err != nil {
		t.Fatalf("rewrite blueprint: %v", err)
	}
	if err := svc.SeedFromFile(ctx, path); err != nil {
		t.Fatalf("second seed: %v", err)
	}
	if _, err := svc.Get(ctx, "extra"); err != ErrNotFound {
		t.Errorf("seed applied to a populated lineup, err = %v", err)
	}
}

func TestSeedFromFileMissingFile(t *testing.T) {
	svc, _, _ := newTestService(t)
	if err := svc.SeedFromFile(context.Background(), filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Retro Gold", "retro-gold"},
		{"Crime & Thriller!", "crime--thriller"},
		{"UPPER", "upper"},
		{"90s Hits", "90s-hits"},
	}
	for _, tt := range tests {
		if got := slugify(tt.in); got != tt.want {
			t.Errorf("slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
