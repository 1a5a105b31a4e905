package digest

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/dailygrain/server/internal/repo"
	"github.com/dailygrain/server/internal/sms"
	"github.com/dailygrain/server/pkg/metrics"
)

// Summary reports how a digest run went.
type Summary struct {
	Sent  int `json:"sent"`
	Total int `json:"total"`
}

// Dispatcher sends the daily digest to every active user. Per-user
// failures (composition or delivery) are logged and counted, never
// allowed to abort the batch, so the run is safe to re-invoke.
type Dispatcher struct {
	users     repo.UserStore
	composer  *Composer
	transport sms.Transport
	logger    *zap.Logger
}

// NewDispatcher creates a digest dispatcher.
func NewDispatcher(users repo.UserStore, composer *Composer, transport sms.Transport, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		users:     users,
		composer:  composer,
		transport: transport,
		logger:    logger,
	}
}

// Run composes and sends one digest per active user.
func (d *Dispatcher) Run(ctx context.Context) (Summary, error) {
	users, err := d.users.ListActive(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("list active users: %w", err)
	}

	summary := Summary{Total: len(users)}
	d.logger.Info("daily digest run started", zap.Int("users", len(users)))

	for _, user := range users {
		text, err := d.composer.DailyDigest(ctx, user)
		if err != nil {
			d.logger.Error("digest composition failed, skipping user",
				zap.String("phone", user.PhoneNumber),
				zap.Error(err))
			metrics.ObserveDigestMessage("compose_failed")
			continue
		}

		if _, err := d.transport.Send(ctx, user.PhoneNumber, text); err != nil {
			d.logger.Warn("digest delivery failed",
				zap.String("phone", user.PhoneNumber),
				zap.Error(err))
			metrics.ObserveDigestMessage("send_failed")
			continue
		}

		metrics.ObserveDigestMessage("sent")
		summary.Sent++
	}

	d.logger.Info("daily digest run finished",
		zap.Int("sent", summary.Sent),
		zap.Int("total", summary.Total))
	return summary, nil
}
