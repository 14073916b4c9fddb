package model

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// JobStatus is the pipeline-stage status of a queue job.
type JobStatus string

const (
	JobStatusWaiting       JobStatus = "waiting"
	JobStatusProcessing    JobStatus = "processing"
	JobStatusNeedsApproval JobStatus = "needs_approval"
	JobStatusCompleted     JobStatus = "completed"
	JobStatusFailed        JobStatus = "failed"
)

// AllJobStatuses lists every JobStatus in display order.
var AllJobStatuses = []JobStatus{
	JobStatusWaiting,
	JobStatusProcessing,
	JobStatusNeedsApproval,
	JobStatusCompleted,
	JobStatusFailed,
}

// Job is a single queue job as returned by the queue API.
type Job struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Queue        string  `json:"queue"`
	Data         JobData `json:"data"`
	ProcessedOn  *int64  `json:"processedOn,omitempty"`
	FinishedOn   *int64  `json:"finishedOn,omitempty"`
	FailedReason string  `json:"failedReason,omitempty"`
	IsFailed     bool    `json:"isFailed"`
	Timestamp    int64   `json:"timestamp"`
}

// JobData is the payload a pipeline job carries.
type JobData struct {
	CompanyName string    `json:"companyName"`
	WikidataID  string    `json:"wikidataId"`
	URL         string    `json:"url,omitempty"`
	ThreadID    string    `json:"threadId,omitempty"`
	RunID       string    `json:"runId,omitempty"`
	Year        FlexText  `json:"year,omitempty"`
	AutoApprove bool      `json:"autoApprove"`
	Approval    *Approval `json:"approval,omitempty"`
}

// Approval records a human decision on a job's output.
type Approval struct {
	Approved bool   `json:"approved"`
	Summary  string `json:"summary,omitempty"`
}

// Failed reports whether the job ended in failure.
func (j *Job) Failed() bool {
	return j.IsFailed || j.FailedReason != ""
}

// Approved reports whether the job output was approved.
func (j *Job) Approved() bool {
	return j.Data.Approval != nil && j.Data.Approval.Approved
}

// LastActivity returns the most recent timestamp recorded on the job.
func (j *Job) LastActivity() time.Time {
	ms := j.Timestamp
	if j.ProcessedOn != nil && *j.ProcessedOn > ms {
		ms = *j.ProcessedOn
	}
	if j.FinishedOn != nil && *j.FinishedOn > ms {
		ms = *j.FinishedOn
	}
	return time.UnixMilli(ms).UTC()
}

// FlexText decodes a JSON string or number into text.
type FlexText string

// UnmarshalJSON accepts strings, numbers and null.
func (f *FlexText) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = FlexText(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
			*f = FlexText(strconv.FormatInt(i, 10))
			return nil
		}
		*f = FlexText(n.String())
		return nil
	}
	*f = ""
	return nil
}
