package counter

import (
	"context"
	"strconv"

	"github.com/loadway/Loadway/internal/pkg/cache"
)

const checkoutCountersKey = "checkout:counters"

// Counter fields tracked per checkout lifecycle step.
const (
	FieldStarted   = "started"
	FieldSucceeded = "succeeded"
	FieldCancelled = "cancelled"
	FieldFailed    = "failed"
	FieldFallbacks = "fallbacks"
)

// Add increments a checkout counter field in Redis
func Add(field string) error {
	ctx := context.Background()
	return cache.GetClient().HIncrBy(ctx, checkoutCountersKey, field, 1).Err()
}

// Snapshot returns the current counter values
func Snapshot() (map[string]int64, error) {
	ctx := context.Background()
	raw, err := cache.GetClient().HGetAll(ctx, checkoutCountersKey).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(raw))
	for field, val := range raw {
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			continue
		}
		out[field] = n
	}
	return out, nil
}
