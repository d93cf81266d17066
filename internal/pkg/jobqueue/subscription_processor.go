package jobqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/loadway/Loadway/internal/pkg/catalog"
	"github.com/loadway/Loadway/internal/pkg/env"
)

// processSubscriptionRefreshJob re-fetches a user's subscription status from
// the platform backend after a successful payment so the cached current-plan
// state catches up without a full session reload.
func (q *Queue) processSubscriptionRefreshJob(ctx context.Context, job *Job) error {
	userID := job.PayloadString("user_id")
	if userID == "" {
		return fmt.Errorf("subscription refresh job %s missing user_id", job.ID)
	}

	token := env.GetEnv("PLATFORM_SERVICE_TOKEN", "")
	if token == "" {
		return fmt.Errorf("PLATFORM_SERVICE_TOKEN is not configured")
	}

	refreshCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	sub, err := catalog.NewCatalogFromEnv().RefreshSubscription(refreshCtx, token, userID)
	if err != nil {
		return fmt.Errorf("refresh subscription for user %s: %w", userID, err)
	}

	if sub == nil {
		log.Infof("[JobQueue] Subscription refresh for user %s: no active subscription yet", userID)
	} else {
		log.Infof("[JobQueue] Subscription refresh for user %s: active amount=%d", userID, sub.AmountMinorUnits)
	}
	return nil
}
