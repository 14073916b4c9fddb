package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/extraction-ops/internal/config"
)

func TestAlerter_Evaluate_NoAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{
		FailureRateThreshold: 0.10,
		PendingApprovalLimit: 20,
	})

	snap := &MetricsSnapshot{
		Runs:             100,
		Completed:        95,
		Failed:           5,
		FailureRate:      0.05,
		PendingApprovals: 3,
	}

	alerts := a.Evaluate(snap)
	assert.Empty(t, alerts)
}

func TestAlerter_Evaluate_FailureRate(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{
		FailureRateThreshold: 0.10,
	})

	snap := &MetricsSnapshot{
		Completed:        12,
		Failed:           8,
		FailureRate:      0.4, // 8/20 = 40%
		WorstStage:       "extractEmissions",
		WorstStageFailed: 6,
	}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertRunFailureRate, alerts[0].Type)
	assert.Equal(t, "high", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "40.0%")
	assert.Equal(t, "extractEmissions", alerts[0].Details["worst_stage"])
}

func TestAlerter_Evaluate_MinimumRunsRequired(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{
		FailureRateThreshold: 0.10,
	})

	// Only 3 finished runs, below the minimum for a failure rate alert.
	snap := &MetricsSnapshot{
		Completed:   1,
		Failed:      2,
		FailureRate: 0.666,
	}

	alerts := a.Evaluate(snap)
	assert.Empty(t, alerts)
}

func TestAlerter_Evaluate_PendingApprovals(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{
		PendingApprovalLimit: 10,
	})

	alerts := a.Evaluate(&MetricsSnapshot{PendingApprovals: 11})
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertPendingApprovals, alerts[0].Type)
	assert.Equal(t, "medium", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "11 runs await approval")

	assert.Empty(t, a.Evaluate(&MetricsSnapshot{PendingApprovals: 10}))
}

func TestAlerter_Evaluate_QueueFetchError(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})

	alerts := a.Evaluate(&MetricsSnapshot{FailedQueues: []string{"checkDB", "saveToAPI"}})
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertQueueFetchError, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "checkDB, saveToAPI")
}

func TestAlerter_Evaluate_MultipleAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{
		FailureRateThreshold: 0.10,
		PendingApprovalLimit: 2,
	})

	snap := &MetricsSnapshot{
		Completed:        10,
		Failed:           10,
		FailureRate:      0.5,
		PendingApprovals: 5,
		FailedQueues:     []string{"precheck"},
	}

	alerts := a.Evaluate(snap)
	assert.Len(t, alerts, 3)

	types := make(map[AlertType]bool)
	for _, a := range alerts {
		types[a.Type] = true
	}
	assert.True(t, types[AlertRunFailureRate])
	assert.True(t, types[AlertPendingApprovals])
	assert.True(t, types[AlertQueueFetchError])
}

func TestAlerter_SendAlerts_Webhook(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var alert Alert
		err := json.NewDecoder(r.Body).Decode(&alert)
		require.NoError(t, err)
		assert.NotEmpty(t, alert.Type)
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{
		WebhookURL: ts.URL,
	})

	alerts := []Alert{
		{Type: AlertRunFailureRate, Severity: "high", Message: "test alert 1"},
		{Type: AlertQueueFetchError, Severity: "high", Message: "test alert 2"},
	}

	sent := a.SendAlerts(context.Background(), alerts)
	assert.Equal(t, 2, sent)
	assert.Equal(t, int32(2), received.Load())
}

func TestAlerter_SendAlerts_Cooldown(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{
		WebhookURL:   ts.URL,
		CooldownMins: 30,
	})
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }

	alert := []Alert{{Type: AlertPendingApprovals, Message: "backlog"}}
	assert.Equal(t, 1, a.SendAlerts(context.Background(), alert))

	now = now.Add(10 * time.Minute)
	assert.Equal(t, 0, a.SendAlerts(context.Background(), alert))

	// Other types are not held back.
	assert.Equal(t, 1, a.SendAlerts(context.Background(), []Alert{{Type: AlertQueueFetchError}}))

	now = now.Add(30 * time.Minute)
	assert.Equal(t, 1, a.SendAlerts(context.Background(), alert))
	assert.Equal(t, int32(3), received.Load())
}

func TestAlerter_SendAlerts_EmptyURL(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{
		WebhookURL: "",
	})

	sent := a.SendAlerts(context.Background(), []Alert{
		{Type: AlertRunFailureRate, Message: "test"},
	})
	assert.Equal(t, 0, sent)
}

func TestAlerter_SendAlerts_EmptyAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{
		WebhookURL: "http://example.com",
	})

	sent := a.SendAlerts(context.Background(), nil)
	assert.Equal(t, 0, sent)
}

func TestAlerter_SendAlerts_WebhookError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{
		WebhookURL:   ts.URL,
		CooldownMins: 30,
	})

	alerts := []Alert{{Type: AlertRunFailureRate, Message: "test"}}
	assert.Equal(t, 0, a.SendAlerts(context.Background(), alerts))
	// A failed delivery does not start the cooldown.
	assert.False(t, a.coolingDown(AlertRunFailureRate))
}
