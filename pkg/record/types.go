package record

import (
	"context"
	"errors"
	"time"
)

// ErrNoRecords is returned by LastTimestamp when a user has no
// engagement records yet.
var ErrNoRecords = errors.New("no engagement records for user")

// Record is one AI engagement, appended once and never mutated.
// TopicFlags carries engagement metadata (proactive marker, reason,
// strategy, related entries, applied delay) merged with whatever flags
// the generator returned.
type Record struct {
	ID           string                 `json:"id"`
	EntryID      string                 `json:"entryId"`
	UserID       string                 `json:"userId"`
	PersonaUsed  string                 `json:"personaUsed"`
	ResponseText string                 `json:"responseText"`
	Confidence   float64                `json:"confidence"`
	TopicFlags   map[string]interface{} `json:"topicFlags"`
	CreatedAt    time.Time              `json:"createdAt"`
}

// Store is the durable append-only engagement record store. Spacing and
// daily-cap decisions are always derived from it at use time, never from
// in-process counters, so horizontally scaled schedulers observe a
// consistent view through the store's read consistency.
type Store interface {
	// Append persists a new record. Records are immutable once written.
	Append(ctx context.Context, rec Record) error

	// Existing returns all records for the given user limited to the
	// given entry IDs.
	Existing(ctx context.Context, userID string, entryIDs []string) ([]Record, error)

	// CountToday returns the number of records created today for the
	// user, with today derived from the store's configured location.
	CountToday(ctx context.Context, userID string) (int, error)

	// CountSince returns the number of records created at or after since.
	CountSince(ctx context.Context, userID string, since time.Time) (int, error)

	// LastTimestamp returns the creation time of the user's most recent
	// record, or ErrNoRecords.
	LastTimestamp(ctx context.Context, userID string) (time.Time, error)

	// RecentlyEngagedUsers returns up to limit user IDs with at least
	// one record created at or after since.
	RecentlyEngagedUsers(ctx context.Context, since time.Time, limit int) ([]string, error)

	// PruneBefore removes records created before cutoff. Returns the
	// number of records removed.
	PruneBefore(ctx context.Context, cutoff time.Time) (int, error)
}
