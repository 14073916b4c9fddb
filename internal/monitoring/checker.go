package monitoring

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/extraction-ops/internal/dashboard"
)

// Checker evaluates alerts on every snapshot the poller publishes.
type Checker struct {
	hub     *dashboard.Hub[dashboard.Snapshot]
	alerter *Alerter
}

// NewChecker creates an alert checker fed by hub.
func NewChecker(hub *dashboard.Hub[dashboard.Snapshot], alerter *Alerter) *Checker {
	return &Checker{
		hub:     hub,
		alerter: alerter,
	}
}

// Run consumes snapshots until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting alert checker")

	updates, cancel := c.hub.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			log.Info("alert checker stopped")
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			c.check(ctx, log, snap)
		}
	}
}

func (c *Checker) check(ctx context.Context, log *zap.Logger, snap dashboard.Snapshot) {
	metrics := Collect(snap)

	alerts := c.alerter.Evaluate(metrics)
	if len(alerts) == 0 {
		log.Debug("monitoring: no alerts triggered")
		return
	}

	sent := c.alerter.SendAlerts(ctx, alerts)
	log.Info("monitoring: alert check complete",
		zap.Int("alerts_triggered", len(alerts)),
		zap.Int("alerts_sent", sent),
	)
}
