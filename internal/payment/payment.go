// Package payment answers whether an appointment's fee has been captured. Capture
// itself happens in the payment system, which records settlement here.
package payment

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// AlwaysSettled is used by deployments that do not require prepayment.
type AlwaysSettled struct{}

func (AlwaysSettled) FeeSettled(context.Context, uuid.UUID) (bool, error) {
	return true, nil
}

// RedisLedger stores settlement markers as payment:settled:<appointment id>.
type RedisLedger struct {
	client *redis.Client
}

func NewRedisLedger(client *redis.Client) *RedisLedger {
	return &RedisLedger{client: client}
}

func settledKey(appointmentID uuid.UUID) string {
	return fmt.Sprintf("payment:settled:%s", appointmentID)
}

// MarkSettled records the captured amount. Marking twice keeps the latest amount.
func (l *RedisLedger) MarkSettled(ctx context.Context, appointmentID uuid.UUID, amountCents int64) error {
	if err := l.client.Set(ctx, settledKey(appointmentID), amountCents, 0).Err(); err != nil {
		return fmt.Errorf("mark payment settled: %w", err)
	}
	return nil
}

func (l *RedisLedger) FeeSettled(ctx context.Context, appointmentID uuid.UUID) (bool, error) {
	n, err := l.client.Exists(ctx, settledKey(appointmentID)).Result()
	if err != nil {
		return false, fmt.Errorf("check payment settled: %w", err)
	}
	return n > 0, nil
}
