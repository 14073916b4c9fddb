package aggregate

import "github.com/sells-group/extraction-ops/internal/model"

// Summary totals the latest run of every company and year.
type Summary struct {
	Companies int                                `json:"companies"`
	Runs      int                                `json:"runs"`
	ByStatus  map[model.JobStatus]int            `json:"by_status"`
	ByStage   map[string]map[model.JobStatus]int `json:"by_stage"`
}

// Summarize counts statuses across the latest run per company and year.
func Summarize(companies []CompanyStatus) Summary {
	sum := Summary{
		Companies: len(companies),
		ByStatus:  make(map[model.JobStatus]int),
		ByStage:   make(map[string]map[model.JobStatus]int),
	}
	for i := range companies {
		for y := range companies[i].Years {
			run := companies[i].Years[y].Latest()
			if run == nil {
				continue
			}
			sum.Runs++
			sum.ByStatus[run.Status]++
			for _, st := range run.Stages {
				counts, ok := sum.ByStage[st.Stage]
				if !ok {
					counts = make(map[model.JobStatus]int)
					sum.ByStage[st.Stage] = counts
				}
				counts[st.Status]++
			}
		}
	}
	return sum
}

// Find returns the company with key, or nil.
func Find(companies []CompanyStatus, key string) *CompanyStatus {
	for i := range companies {
		if companies[i].Key == key {
			return &companies[i]
		}
	}
	return nil
}
