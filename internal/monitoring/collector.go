package monitoring

import (
	"sort"
	"time"

	"github.com/sells-group/extraction-ops/internal/dashboard"
	"github.com/sells-group/extraction-ops/internal/model"
)

// MetricsSnapshot holds a point-in-time view of queue health.
type MetricsSnapshot struct {
	// Run metrics over the latest run per company and year.
	Companies        int     `json:"companies"`
	Runs             int     `json:"runs"`
	Waiting          int     `json:"waiting"`
	Processing       int     `json:"processing"`
	PendingApprovals int     `json:"pending_approvals"`
	Completed        int     `json:"completed"`
	Failed           int     `json:"failed"`
	FailureRate      float64 `json:"failure_rate"`

	// Stage with the most failed runs, empty when nothing failed.
	WorstStage       string `json:"worst_stage,omitempty"`
	WorstStageFailed int    `json:"worst_stage_failed,omitempty"`

	// Queues whose last fetch failed.
	FailedQueues []string `json:"failed_queues,omitempty"`
	QueueCount   int      `json:"queue_count"`

	// Metadata.
	FetchedAt   time.Time `json:"fetched_at"`
	CollectedAt time.Time `json:"collected_at"`
}

// Collect derives health metrics from a poller snapshot.
func Collect(snap dashboard.Snapshot) *MetricsSnapshot {
	sum := snap.Summary
	m := &MetricsSnapshot{
		Companies:        sum.Companies,
		Runs:             sum.Runs,
		Waiting:          sum.ByStatus[model.JobStatusWaiting],
		Processing:       sum.ByStatus[model.JobStatusProcessing],
		PendingApprovals: sum.ByStatus[model.JobStatusNeedsApproval],
		Completed:        sum.ByStatus[model.JobStatusCompleted],
		Failed:           sum.ByStatus[model.JobStatusFailed],
		QueueCount:       len(sum.ByStage),
		FetchedAt:        snap.FetchedAt,
		CollectedAt:      time.Now().UTC(),
	}

	if finished := m.Completed + m.Failed; finished > 0 {
		m.FailureRate = float64(m.Failed) / float64(finished)
	}

	stages := make([]string, 0, len(sum.ByStage))
	for stage := range sum.ByStage {
		stages = append(stages, stage)
	}
	sort.Strings(stages)
	for _, stage := range stages {
		if n := sum.ByStage[stage][model.JobStatusFailed]; n > m.WorstStageFailed {
			m.WorstStage, m.WorstStageFailed = stage, n
		}
	}

	for queue := range snap.Errors {
		m.FailedQueues = append(m.FailedQueues, queue)
	}
	sort.Strings(m.FailedQueues)

	return m
}
