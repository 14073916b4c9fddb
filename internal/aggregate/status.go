// Package aggregate folds flat per-queue job lists into per-company views.
package aggregate

import "github.com/sells-group/extraction-ops/internal/model"

// DeriveStatus returns the pipeline-stage status of a job. Rules are checked
// in order and the first match wins.
func DeriveStatus(j *model.Job) model.JobStatus {
	switch {
	case j.FinishedOn != nil && j.Failed():
		return model.JobStatusFailed
	case j.FinishedOn != nil && !j.Approved() && !j.Data.AutoApprove:
		return model.JobStatusNeedsApproval
	case j.FinishedOn != nil:
		return model.JobStatusCompleted
	case j.ProcessedOn != nil:
		return model.JobStatusProcessing
	default:
		return model.JobStatusWaiting
	}
}

// statusRank orders statuses for a run's overall status. Higher wins.
var statusRank = map[model.JobStatus]int{
	model.JobStatusCompleted:     0,
	model.JobStatusWaiting:       1,
	model.JobStatusProcessing:    2,
	model.JobStatusNeedsApproval: 3,
	model.JobStatusFailed:        4,
}

// worse returns the status that dominates a run.
func worse(a, b model.JobStatus) model.JobStatus {
	if statusRank[b] > statusRank[a] {
		return b
	}
	return a
}
