package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/extraction-ops/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertRunFailureRate   AlertType = "run_failure_rate"
	AlertPendingApprovals AlertType = "pending_approvals"
	AlertQueueFetchError  AlertType = "queue_fetch_error"
)

// minFinishedRuns is the number of finished runs needed before the failure
// rate is meaningful.
const minFinishedRuns = 5

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached. An alert type
// that was sent is held back until the cooldown has passed.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
	now    func() time.Time

	mu       sync.Mutex
	lastSent map[AlertType]time.Time
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:      cfg,
		client:   &http.Client{Timeout: 10 * time.Second},
		now:      time.Now,
		lastSent: make(map[AlertType]time.Time),
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := a.now().UTC()

	// Run failure rate.
	finished := snap.Completed + snap.Failed
	if finished >= minFinishedRuns && a.cfg.FailureRateThreshold > 0 && snap.FailureRate > a.cfg.FailureRateThreshold {
		details := map[string]any{
			"failure_rate": snap.FailureRate,
			"threshold":    a.cfg.FailureRateThreshold,
			"failed":       snap.Failed,
			"finished":     finished,
		}
		if snap.WorstStage != "" {
			details["worst_stage"] = snap.WorstStage
			details["worst_stage_failed"] = snap.WorstStageFailed
		}
		alerts = append(alerts, Alert{
			Type:     AlertRunFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Run failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished)",
				snap.FailureRate*100, a.cfg.FailureRateThreshold*100, snap.Failed, finished,
			),
			Details:   details,
			Timestamp: now,
		})
	}

	// Approval backlog.
	if a.cfg.PendingApprovalLimit > 0 && snap.PendingApprovals > a.cfg.PendingApprovalLimit {
		alerts = append(alerts, Alert{
			Type:     AlertPendingApprovals,
			Severity: "medium",
			Message: fmt.Sprintf(
				"%d runs await approval, limit is %d",
				snap.PendingApprovals, a.cfg.PendingApprovalLimit,
			),
			Details: map[string]any{
				"pending": snap.PendingApprovals,
				"limit":   a.cfg.PendingApprovalLimit,
			},
			Timestamp: now,
		})
	}

	// Queue fetch errors.
	if len(snap.FailedQueues) > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertQueueFetchError,
			Severity: "high",
			Message: fmt.Sprintf(
				"%d queue(s) could not be fetched: %s",
				len(snap.FailedQueues), strings.Join(snap.FailedQueues, ", "),
			),
			Details: map[string]any{
				"queues": snap.FailedQueues,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL, skipping alert
// types still in cooldown. Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if a.coolingDown(alert.Type) {
			zap.L().Debug("monitoring: alert in cooldown", zap.String("type", string(alert.Type)))
			continue
		}
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		a.markSent(alert.Type)
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

func (a *Alerter) coolingDown(t AlertType) bool {
	cooldown := time.Duration(a.cfg.CooldownMins) * time.Minute
	if cooldown <= 0 {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	last, ok := a.lastSent[t]
	return ok && a.now().Sub(last) < cooldown
}

func (a *Alerter) markSent(t AlertType) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastSent[t] = a.now()
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
