package profile

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/quietpage/proactive-engagement/pkg/policy"
)

const tierKeyPrefix = "quietpage:users:tier:"

// RedisTierStore resolves tier and interaction level from the user hash
// maintained by the account service.
type RedisTierStore struct {
	client *redis.Client
}

// NewRedisTierStore creates a tier store over an existing client.
func NewRedisTierStore(client *redis.Client) *RedisTierStore {
	return &RedisTierStore{client: client}
}

// TierAndLevel reads the user's tier and interaction level. Users
// without a stored preference default to free/moderate.
func (s *RedisTierStore) TierAndLevel(ctx context.Context, userID string) (policy.Tier, policy.InteractionLevel, error) {
	fields, err := s.client.HGetAll(ctx, tierKeyPrefix+userID).Result()
	if err != nil {
		return "", "", fmt.Errorf("failed to read tier for user %s: %w", userID, err)
	}
	if len(fields) == 0 {
		return policy.TierFree, policy.LevelModerate, nil
	}

	tier, err := policy.ParseTier(fields["tier"])
	if err != nil {
		logrus.Warnf("user %s has invalid tier %q, defaulting to free", userID, fields["tier"])
		tier = policy.TierFree
	}
	level, err := policy.ParseLevel(fields["level"])
	if err != nil {
		logrus.Warnf("user %s has invalid interaction level %q, defaulting to moderate", userID, fields["level"])
		level = policy.LevelModerate
	}
	return tier, level, nil
}
