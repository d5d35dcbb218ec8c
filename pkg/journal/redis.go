package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

const (
	// entryKeyPrefix holds one sorted set per user, members are JSON
	// entry snapshots scored by creation time (unix nanos). The journal
	// service owns the writes; this store only reads.
	entryKeyPrefix = "quietpage:journal:entries:"
	// activeUsersKey is a sorted set of userID scored by last entry
	// time, maintained by the journal service on every write.
	activeUsersKey = "quietpage:journal:active_users"

	// activeWindow is how far back a user's last entry may be for the
	// scheduler to still consider them active.
	activeWindow = 3 * 24 * time.Hour
)

// RedisStore reads journal entry snapshots from Redis.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a read-only entry store over an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func entryKey(userID string) string {
	return entryKeyPrefix + userID
}

// RecentEntries returns the user's entries created at or after since,
// oldest first.
func (s *RedisStore) RecentEntries(ctx context.Context, userID string, since time.Time) ([]EntrySnapshot, error) {
	members, err := s.client.ZRangeByScore(ctx, entryKey(userID), &redis.ZRangeBy{
		Min: strconv.FormatInt(since.UnixNano(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		logrus.Errorf("failed to fetch entries for user %s: %v", userID, err)
		return nil, fmt.Errorf("failed to fetch entries: %w", err)
	}

	entries := make([]EntrySnapshot, 0, len(members))
	for _, member := range members {
		var entry EntrySnapshot
		if err := json.Unmarshal([]byte(member), &entry); err != nil {
			logrus.Warnf("skipping malformed entry for user %s: %v", userID, err)
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// AddEntry writes an entry snapshot. Exposed for tests and local seeding;
// production writes come from the journal service.
func (s *RedisStore) AddEntry(ctx context.Context, entry EntrySnapshot) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, entryKey(entry.UserID), &redis.Z{
		Score:  float64(entry.CreatedAt.UnixNano()),
		Member: data,
	})
	pipe.ZAdd(ctx, activeUsersKey, &redis.Z{
		Score:  float64(entry.CreatedAt.UnixNano()),
		Member: entry.UserID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store entry: %w", err)
	}
	return nil
}

// ActiveUsers returns users whose latest entry falls inside the active
// window, most recent first.
func (s *RedisStore) ActiveUsers(ctx context.Context) ([]string, error) {
	since := time.Now().Add(-activeWindow)
	users, err := s.client.ZRevRangeByScore(ctx, activeUsersKey, &redis.ZRangeBy{
		Min: strconv.FormatInt(since.UnixNano(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list active users: %w", err)
	}
	return users, nil
}
