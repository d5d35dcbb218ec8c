package journal

import (
	"context"
	"time"
)

// EntrySnapshot is a read-only view of a journal entry. Entries are
// written by the journal service; this subsystem only reads them.
type EntrySnapshot struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Content     string    `json:"content"`
	MoodScore   int       `json:"moodScore"`
	EnergyScore int       `json:"energyScore"`
	StressScore int       `json:"stressScore"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Store provides read access to journal entries.
type Store interface {
	// RecentEntries returns entries for a user created at or after
	// since, ordered oldest first.
	RecentEntries(ctx context.Context, userID string, since time.Time) ([]EntrySnapshot, error)
}

// EntryOrdinal returns the 1-based ordinal of entry within the user's
// entries for the calendar day containing entry.CreatedAt in loc.
// Entries must be the user's recent entries (any order).
func EntryOrdinal(entry EntrySnapshot, entries []EntrySnapshot, loc *time.Location) int {
	day := entry.CreatedAt.In(loc)
	y, m, d := day.Date()

	ordinal := 1
	for _, e := range entries {
		if e.ID == entry.ID {
			continue
		}
		ey, em, ed := e.CreatedAt.In(loc).Date()
		if ey == y && em == m && ed == d && e.CreatedAt.Before(entry.CreatedAt) {
			ordinal++
		}
	}
	return ordinal
}
