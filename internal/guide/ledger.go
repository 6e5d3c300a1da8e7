package guide

import (
	"sync"
	"time"
)

// DateOf returns the calendar day of t in loc, anchored at midnight UTC so
// day arithmetic is exact.
func DateOf(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns b minus a in whole calendar days. Both values must
// come from DateOf.
func DaysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}

// CooldownLedger remembers the last calendar day a movie ran on a channel.
// It outlives runs; implementations must be safe for concurrent use.
type CooldownLedger interface {
	// LastAired returns the recorded day for (channel, item), if any.
	LastAired(channelID string, itemID int) (time.Time, bool)
	// MarkAired records that the item ran on the given day, replacing any
	// earlier record.
	MarkAired(channelID string, itemID int, day time.Time)
	// ClearDay removes every record on the channel dated exactly day, so a
	// day can be regenerated without the previous pass blocking itself.
	ClearDay(channelID string, day time.Time)
}

type cooldownKey struct {
	channelID string
	itemID    int
}

// MemoryCooldown is the in-memory CooldownLedger. The durable variant in
// the airlog package wraps the same map with write-through persistence.
type MemoryCooldown struct {
	mu    sync.Mutex
	aired map[cooldownKey]time.Time
}

// NewMemoryCooldown returns an empty in-memory cooldown ledger.
func NewMemoryCooldown() *MemoryCooldown {
	return &MemoryCooldown{aired: make(map[cooldownKey]time.Time)}
}

func (m *MemoryCooldown) LastAired(channelID string, itemID int) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	day, ok := m.aired[cooldownKey{channelID, itemID}]
	return day, ok
}

func (m *MemoryCooldown) MarkAired(channelID string, itemID int, day time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aired[cooldownKey{channelID, itemID}] = day
}

func (m *MemoryCooldown) ClearDay(channelID string, day time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, aired := range m.aired {
		if key.channelID == channelID && aired.Equal(day) {
			delete(m.aired, key)
		}
	}
}

type hourKey struct {
	day  string // "2006-01-02"
	hour int
}

// HourLedger tracks which items already start in a given hour of a given
// day. One instance is shared by all channels of a single run and thrown
// away afterwards; concurrent runs each get their own.
type HourLedger struct {
	mu   sync.Mutex
	used map[hourKey]map[int]struct{}
}

// NewHourLedger returns an empty hour usage ledger.
func NewHourLedger() *HourLedger {
	return &HourLedger{used: make(map[hourKey]map[int]struct{})}
}

// IsUsed reports whether the item already starts somewhere in the hour
// bucket that start falls into.
func (l *HourLedger) IsUsed(start time.Time, itemID int) bool {
	key := hourKey{day: start.Format("2006-01-02"), hour: start.Hour()}
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.used[key][itemID]
	return ok
}

// MarkUsed claims the item's start hour bucket.
func (l *HourLedger) MarkUsed(start time.Time, itemID int) {
	key := hourKey{day: start.Format("2006-01-02"), hour: start.Hour()}
	l.mu.Lock()
	defer l.mu.Unlock()
	bucket, ok := l.used[key]
	if !ok {
		bucket = make(map[int]struct{})
		l.used[key] = bucket
	}
	bucket[itemID] = struct{}{}
}

// SeedSchedule claims the hour buckets of an already generated schedule,
// so cached channels keep their exclusivity against channels generated
// later in the same run.
func (l *HourLedger) SeedSchedule(s *DaySchedule) {
	if s == nil {
		return
	}
	for i := range s.Programs {
		l.MarkUsed(s.Programs[i].Start, s.Programs[i].ItemID)
	}
}
