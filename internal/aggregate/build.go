package aggregate

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/sells-group/extraction-ops/internal/model"
)

const (
	// UnknownYear groups jobs that carry no reporting year.
	UnknownYear = "unknown"
	// UnknownCompany groups jobs with neither a Wikidata ID nor a name.
	UnknownCompany = "unknown"
)

// DefaultLanguage is the collation used to order company names.
var DefaultLanguage = language.Swedish

// Options controls how jobs are folded.
type Options struct {
	// Stages lists pipeline stages (queue names) in pipeline order. Stages
	// seen in jobs but not listed are appended alphabetically.
	Stages []string
	// Language selects the collation for company names.
	Language language.Tag
}

// StageStatus is the latest job of one pipeline stage within a run.
type StageStatus struct {
	Stage        string          `json:"stage"`
	Status       model.JobStatus `json:"status"`
	JobID        string          `json:"job_id"`
	FailedReason string          `json:"failed_reason,omitempty"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Run is one pass of a company report through the pipeline.
type Run struct {
	ID           string          `json:"id"`
	Status       model.JobStatus `json:"status"`
	URL          string          `json:"url,omitempty"`
	Stages       []StageStatus   `json:"stages"`
	LastActivity time.Time       `json:"last_activity"`
}

// Stage returns the status of stage within the run.
func (r *Run) Stage(stage string) (StageStatus, bool) {
	for _, s := range r.Stages {
		if s.Stage == stage {
			return s, true
		}
	}
	return StageStatus{}, false
}

// YearStatus holds every run for one reporting year, newest first.
type YearStatus struct {
	Year string `json:"year"`
	Runs []Run  `json:"runs"`
}

// Latest returns the most recent run of the year.
func (y *YearStatus) Latest() *Run {
	if len(y.Runs) == 0 {
		return nil
	}
	return &y.Runs[0]
}

// CompanyStatus is the per-company view of the pipeline.
type CompanyStatus struct {
	Key        string                  `json:"key"`
	Name       string                  `json:"name"`
	WikidataID string                  `json:"wikidata_id,omitempty"`
	Years      []YearStatus            `json:"years"`
	Counts     map[model.JobStatus]int `json:"counts"`
}

// CompanyKey returns the grouping key of a job: the Wikidata ID when set,
// otherwise the case-folded company name.
func CompanyKey(j *model.Job) string {
	return companyKey(j.Data.WikidataID, j.Data.CompanyName)
}

func companyKey(wikidataID, name string) string {
	if id := strings.TrimSpace(wikidataID); id != "" {
		return id
	}
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return UnknownCompany
	}
	return cases.Fold().String(name)
}

// RunID returns the run a job belongs to.
func RunID(j *model.Job) string {
	switch {
	case j.Data.RunID != "":
		return j.Data.RunID
	case j.Data.ThreadID != "":
		return j.Data.ThreadID
	default:
		return j.ID
	}
}

// runIdentity is what the jobs of one run say about their company and year.
// Early stages run before the Wikidata ID or year is known, so any job of
// the run may fill them in.
type runIdentity struct {
	wikidataID, name, year string
}

func (id *runIdentity) add(j *model.Job) {
	if v := strings.TrimSpace(j.Data.WikidataID); v != "" {
		id.wikidataID = v
	}
	if v := strings.TrimSpace(j.Data.CompanyName); v != "" {
		id.name = v
	}
	if v := string(j.Data.Year); v != "" {
		id.year = v
	}
}

// identities resolves the company and year of every run. sorted is oldest
// first, so the newest non-empty value wins.
func identities(sorted []*model.Job) map[string]*runIdentity {
	ids := make(map[string]*runIdentity)
	for _, j := range sorted {
		rid := RunID(j)
		id, ok := ids[rid]
		if !ok {
			id = &runIdentity{}
			ids[rid] = id
		}
		id.add(j)
	}
	return ids
}

type runAcc struct {
	id     string
	url    string
	stages map[string]StageStatus
	last   time.Time
}

type companyAcc struct {
	key, name, wikidataID string
	years                 map[string]map[string]*runAcc
}

// Build folds jobs into per-company, per-year, per-run statuses. The result
// depends only on the jobs, never on their order.
func Build(jobs []model.Job, opts Options) []CompanyStatus {
	sorted := make([]*model.Job, len(jobs))
	for i := range jobs {
		sorted[i] = &jobs[i]
	}
	sort.SliceStable(sorted, func(i, k int) bool {
		a, b := sorted[i], sorted[k]
		if !a.LastActivity().Equal(b.LastActivity()) {
			return a.LastActivity().Before(b.LastActivity())
		}
		if a.Queue != b.Queue {
			return a.Queue < b.Queue
		}
		return a.ID < b.ID
	})

	ids := identities(sorted)
	companies := make(map[string]*companyAcc)
	seenStages := make(map[string]bool)
	for _, j := range sorted {
		rid := RunID(j)
		id := ids[rid]
		key := companyKey(id.wikidataID, id.name)
		c, ok := companies[key]
		if !ok {
			c = &companyAcc{key: key, years: make(map[string]map[string]*runAcc)}
			companies[key] = c
		}
		if name := strings.TrimSpace(j.Data.CompanyName); name != "" {
			c.name = name
		}
		if id.wikidataID != "" {
			c.wikidataID = id.wikidataID
		}

		year := id.year
		if year == "" {
			year = UnknownYear
		}
		runs, ok := c.years[year]
		if !ok {
			runs = make(map[string]*runAcc)
			c.years[year] = runs
		}
		r, ok := runs[rid]
		if !ok {
			r = &runAcc{id: rid, stages: make(map[string]StageStatus)}
			runs[rid] = r
		}
		if j.Data.URL != "" {
			r.url = j.Data.URL
		}
		at := j.LastActivity()
		if at.After(r.last) {
			r.last = at
		}
		// Jobs are visited oldest first, so later jobs replace earlier ones.
		r.stages[j.Queue] = StageStatus{
			Stage:        j.Queue,
			Status:       DeriveStatus(j),
			JobID:        j.ID,
			FailedReason: j.FailedReason,
			UpdatedAt:    at,
		}
		seenStages[j.Queue] = true
	}

	order := stageOrder(opts.Stages, seenStages)
	out := make([]CompanyStatus, 0, len(companies))
	for _, c := range companies {
		out = append(out, c.finish(order))
	}

	lang := opts.Language
	if lang == language.Und {
		lang = DefaultLanguage
	}
	col := collate.New(lang, collate.IgnoreCase)
	sort.SliceStable(out, func(i, k int) bool {
		if cmp := col.CompareString(out[i].Name, out[k].Name); cmp != 0 {
			return cmp < 0
		}
		return out[i].Key < out[k].Key
	})
	return out
}

func (c *companyAcc) finish(order map[string]int) CompanyStatus {
	cs := CompanyStatus{
		Key:        c.key,
		Name:       c.name,
		WikidataID: c.wikidataID,
		Counts:     make(map[model.JobStatus]int),
	}
	if cs.Name == "" {
		cs.Name = c.key
	}
	for year, runs := range c.years {
		ys := YearStatus{Year: year}
		for _, r := range runs {
			ys.Runs = append(ys.Runs, r.finish(order))
		}
		sort.Slice(ys.Runs, func(i, k int) bool {
			a, b := ys.Runs[i], ys.Runs[k]
			if !a.LastActivity.Equal(b.LastActivity) {
				return a.LastActivity.After(b.LastActivity)
			}
			return a.ID < b.ID
		})
		cs.Counts[ys.Runs[0].Status]++
		cs.Years = append(cs.Years, ys)
	}
	sort.Slice(cs.Years, func(i, k int) bool {
		return yearBefore(cs.Years[i].Year, cs.Years[k].Year)
	})
	return cs
}

func (r *runAcc) finish(order map[string]int) Run {
	run := Run{ID: r.id, URL: r.url, LastActivity: r.last, Status: model.JobStatusCompleted}
	for _, s := range r.stages {
		run.Stages = append(run.Stages, s)
		run.Status = worse(run.Status, s.Status)
	}
	sort.Slice(run.Stages, func(i, k int) bool {
		return order[run.Stages[i].Stage] < order[run.Stages[k].Stage]
	})
	return run
}

// yearBefore orders years newest first with UnknownYear and other non-numeric
// years last.
func yearBefore(a, b string) bool {
	an, aok := numericYear(a)
	bn, bok := numericYear(b)
	switch {
	case aok && bok:
		return an > bn
	case aok != bok:
		return aok
	default:
		return a < b
	}
}

func numericYear(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	return n, err == nil
}

// stageOrder assigns each stage its position: configured stages first, then
// any other seen stage alphabetically.
func stageOrder(configured []string, seen map[string]bool) map[string]int {
	order := make(map[string]int, len(configured)+len(seen))
	for _, s := range configured {
		if _, dup := order[s]; !dup {
			order[s] = len(order)
		}
	}
	var extra []string
	for s := range seen {
		if _, ok := order[s]; !ok {
			extra = append(extra, s)
		}
	}
	sort.Strings(extra)
	for _, s := range extra {
		order[s] = len(order)
	}
	return order
}
