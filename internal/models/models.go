package models

import (
	"time"
)

// ContentKind distinguishes feature films from episodic series.
type ContentKind string

const (
	KindMovie  ContentKind = "movie"
	KindSeries ContentKind = "series"
)

// Channel is one virtual linear channel and its daily slot plan.
type Channel struct {
	ID        string `gorm:"type:varchar(64);primaryKey"`
	Name      string `gorm:"uniqueIndex"`
	Icon      string
	Priority  int `gorm:"index"` // higher priority channels claim contested hours first
	Enabled   bool
	Slots     []TimeSlot `gorm:"foreignKey:ChannelID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TimeSlot is one fixed daily window on a channel. End at or before Start
// means the window crosses midnight into the next day.
type TimeSlot struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	ChannelID string `gorm:"type:varchar(64);index:idx_time_slots_channel"`
	Position  int    // order within the channel's day
	Start     string `gorm:"type:varchar(5)"` // "HH:MM"
	End       string `gorm:"type:varchar(5)"` // "HH:MM"
	Label     string
	Filter    SlotFilter `gorm:"type:jsonb;serializer:json"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SlotFilter narrows which catalog items a slot accepts. Zero-valued
// dimensions pass everything; the decade range is a [from, to] pair of
// inclusive decade floors (a single element means that one decade).
type SlotFilter struct {
	ContentType     ContentKind `json:"content_type,omitempty"`
	Genres          []int       `json:"genres,omitempty"`
	Decade          []int       `json:"decade,omitempty"`
	VoteAverageMin  float64     `json:"vote_average_min,omitempty"`
	VoteCountMin    int         `json:"vote_count_min,omitempty"`
	Keywords        []string    `json:"keywords,omitempty"`
	ExcludeKeywords []string    `json:"exclude_keywords,omitempty"`
	Universes       []string    `json:"universes,omitempty"`
	TitleContains   []string    `json:"title_contains,omitempty"`
	Language        string      `json:"original_language,omitempty"`
	Countries       []string    `json:"production_countries,omitempty"`
}

// IsZero reports whether no filter dimension is active.
func (f SlotFilter) IsZero() bool {
	return f.ContentType == "" &&
		len(f.Genres) == 0 &&
		len(f.Decade) == 0 &&
		f.VoteAverageMin == 0 &&
		f.VoteCountMin == 0 &&
		len(f.Keywords) == 0 &&
		len(f.ExcludeKeywords) == 0 &&
		len(f.Universes) == 0 &&
		len(f.TitleContains) == 0 &&
		f.Language == "" &&
		len(f.Countries) == 0
}

// Airing records the most recent calendar day an item ran on a channel.
// Only movies are recorded; series repeat freely.
type Airing struct {
	ChannelID string    `gorm:"type:varchar(64);primaryKey"`
	ItemID    int       `gorm:"primaryKey"`
	LastAired time.Time `gorm:"type:date"` // midnight UTC of the guide-zone calendar day
	UpdatedAt time.Time
}

// TableName returns the table name for GORM.
func (Airing) TableName() string {
	return "airings"
}
