package record

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

const (
	// userKeyPrefix holds one sorted set per user: members are record
	// JSON, scored by creation time (unix nanos).
	userKeyPrefix = "quietpage:engagement:records:"
	// entryKeyPrefix holds one set per entry with the records already
	// attached to that entry.
	entryKeyPrefix = "quietpage:engagement:entry:"
	// recentUsersKey is a sorted set of userID scored by last
	// engagement time, feeding the immediate cycle.
	recentUsersKey = "quietpage:engagement:recent_users"
	// usersKey tracks every user that ever received an engagement, so
	// the cleanup job can enumerate per-user sets.
	usersKey = "quietpage:engagement:users"
)

// RedisStore is the Redis-backed engagement record store.
type RedisStore struct {
	client   *redis.Client
	loc      *time.Location
	entryTTL time.Duration
}

// NewRedisStore creates a record store. loc defines calendar-day
// boundaries for CountToday; entryTTL bounds the lifetime of per-entry
// indexes (aligned with the record retention period).
func NewRedisStore(client *redis.Client, loc *time.Location, entryTTL time.Duration) *RedisStore {
	if loc == nil {
		loc = time.UTC
	}
	return &RedisStore{client: client, loc: loc, entryTTL: entryTTL}
}

// InitRedisClient connects to Redis, retrying with exponential backoff.
func InitRedisClient(ctx context.Context, addr, password string, connectTimeout time.Duration) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = connectTimeout

	err := backoff.Retry(func() error {
		if err := client.Ping(ctx).Err(); err != nil {
			logrus.Warnf("Redis connection failed: %v, retrying...", err)
			return err
		}
		return nil
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}

	logrus.Infof("connected to Redis at %s", addr)
	return client, nil
}

func userKey(userID string) string {
	return userKeyPrefix + userID
}

func entryKey(entryID string) string {
	return entryKeyPrefix + entryID
}

// Append persists the record under the per-user timeline, the per-entry
// index, and the recently-engaged set.
func (s *RedisStore) Append(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record %s: %w", rec.ID, err)
	}

	score := float64(rec.CreatedAt.UnixNano())
	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, userKey(rec.UserID), &redis.Z{Score: score, Member: data})
	pipe.SAdd(ctx, entryKey(rec.EntryID), data)
	if s.entryTTL > 0 {
		pipe.Expire(ctx, entryKey(rec.EntryID), s.entryTTL)
	}
	pipe.ZAdd(ctx, recentUsersKey, &redis.Z{Score: score, Member: rec.UserID})
	pipe.SAdd(ctx, usersKey, rec.UserID)
	if _, err := pipe.Exec(ctx); err != nil {
		logrus.Errorf("failed to append record %s for user %s: %v", rec.ID, rec.UserID, err)
		return fmt.Errorf("failed to append record: %w", err)
	}

	logrus.Debugf("appended engagement record %s for user %s (persona %s)", rec.ID, rec.UserID, rec.PersonaUsed)
	return nil
}

// Existing returns records for the user limited to the given entry IDs.
func (s *RedisStore) Existing(ctx context.Context, userID string, entryIDs []string) ([]Record, error) {
	var records []Record
	for _, entryID := range entryIDs {
		members, err := s.client.SMembers(ctx, entryKey(entryID)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read entry index %s: %w", entryID, err)
		}
		for _, member := range members {
			var rec Record
			if err := json.Unmarshal([]byte(member), &rec); err != nil {
				logrus.Warnf("skipping malformed record on entry %s: %v", entryID, err)
				continue
			}
			if rec.UserID == userID {
				records = append(records, rec)
			}
		}
	}
	return records, nil
}

// CountToday counts records created since the start of today in the
// store's configured location. Derived live so that daily counters reset
// exactly at the local-day boundary.
func (s *RedisStore) CountToday(ctx context.Context, userID string) (int, error) {
	now := time.Now().In(s.loc)
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)

	return s.CountSince(ctx, userID, dayStart)
}

// CountSince counts records created at or after since.
func (s *RedisStore) CountSince(ctx context.Context, userID string, since time.Time) (int, error) {
	n, err := s.client.ZCount(ctx, userKey(userID),
		strconv.FormatInt(since.UnixNano(), 10), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return int(n), nil
}

// LastTimestamp returns the creation time of the most recent record.
func (s *RedisStore) LastTimestamp(ctx context.Context, userID string) (time.Time, error) {
	zs, err := s.client.ZRevRangeWithScores(ctx, userKey(userID), 0, 0).Result()
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read last record: %w", err)
	}
	if len(zs) == 0 {
		return time.Time{}, ErrNoRecords
	}
	return time.Unix(0, int64(zs[0].Score)), nil
}

// RecentlyEngagedUsers returns up to limit users engaged at or after since.
func (s *RedisStore) RecentlyEngagedUsers(ctx context.Context, since time.Time, limit int) ([]string, error) {
	users, err := s.client.ZRangeByScore(ctx, recentUsersKey, &redis.ZRangeBy{
		Min:   strconv.FormatInt(since.UnixNano(), 10),
		Max:   "+inf",
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list recently engaged users: %w", err)
	}
	return users, nil
}

// PruneBefore removes records older than cutoff from every user timeline.
func (s *RedisStore) PruneBefore(ctx context.Context, cutoff time.Time) (int, error) {
	users, err := s.client.SMembers(ctx, usersKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to enumerate users: %w", err)
	}

	max := strconv.FormatInt(cutoff.UnixNano()-1, 10)
	removed := 0
	for _, userID := range users {
		n, err := s.client.ZRemRangeByScore(ctx, userKey(userID), "-inf", max).Result()
		if err != nil {
			logrus.Errorf("failed to prune records for user %s: %v", userID, err)
			continue
		}
		removed += int(n)
	}

	// Drop stale users from the immediate-cycle feed as well.
	if err := s.client.ZRemRangeByScore(ctx, recentUsersKey, "-inf", max).Err(); err != nil {
		logrus.Errorf("failed to prune recent-users index: %v", err)
	}

	if removed > 0 {
		logrus.Infof("pruned %d engagement records older than %v", removed, cutoff)
	}
	return removed, nil
}
