package dashboard

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/extraction-ops/internal/aggregate"
	"github.com/sells-group/extraction-ops/internal/config"
	"github.com/sells-group/extraction-ops/internal/model"
	"github.com/sells-group/extraction-ops/pkg/garbo"
)

// Snapshot is one aggregated view of every polled queue.
type Snapshot struct {
	Companies []aggregate.CompanyStatus `json:"companies"`
	Summary   aggregate.Summary         `json:"summary"`
	Errors    map[string]string         `json:"errors,omitempty"` // queue -> fetch error
	Jobs      int                       `json:"jobs"`
	FetchedAt time.Time                 `json:"fetched_at"`
}

// Poller periodically fetches every configured queue, folds the jobs into
// per-company status and publishes the result on a hub.
type Poller struct {
	client      garbo.Client
	hub         *Hub[Snapshot]
	queues      []string
	interval    time.Duration
	concurrency int
	opts        aggregate.Options
	now         func() time.Time
}

// NewPoller creates a poller for the queues named in cfg.
func NewPoller(client garbo.Client, hub *Hub[Snapshot], cfg config.PollConfig, opts aggregate.Options) *Poller {
	interval := time.Duration(cfg.IntervalSecs) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	queues := cfg.Queues
	if len(queues) == 0 {
		queues = config.DefaultQueues
	}
	if len(opts.Stages) == 0 {
		opts.Stages = queues
	}
	return &Poller{
		client:      client,
		hub:         hub,
		queues:      queues,
		interval:    interval,
		concurrency: concurrency,
		opts:        opts,
		now:         time.Now,
	}
}

// Hub returns the hub snapshots are published on.
func (p *Poller) Hub() *Hub[Snapshot] { return p.hub }

// Run refreshes immediately and then on every interval. It blocks until ctx
// is cancelled.
func (p *Poller) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "dashboard.poller"))
	log.Info("starting queue poller",
		zap.Duration("interval", p.interval),
		zap.Int("queues", len(p.queues)),
	)

	p.refreshAndLog(ctx, log)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("queue poller stopped")
			return
		case <-ticker.C:
			p.refreshAndLog(ctx, log)
		}
	}
}

func (p *Poller) refreshAndLog(ctx context.Context, log *zap.Logger) {
	snap, err := p.Refresh(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Error("dashboard: refresh failed", zap.Error(err))
		}
		return
	}
	log.Debug("dashboard: refreshed",
		zap.Int("companies", len(snap.Companies)),
		zap.Int("jobs", snap.Jobs),
		zap.Int("failed_queues", len(snap.Errors)),
	)
}

// Refresh fetches every queue once and publishes a new snapshot. A failed
// queue is recorded in the snapshot. When every queue fails, nothing is
// published and the previous snapshot stays current.
func (p *Poller) Refresh(ctx context.Context) (Snapshot, error) {
	results := make([][]model.Job, len(p.queues))
	errs := make([]error, len(p.queues))

	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, queue := range p.queues {
		g.Go(func() error {
			jobs, err := p.client.ListJobs(ctx, queue)
			if err != nil {
				errs[i] = err
				return nil
			}
			results[i] = jobs
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return Snapshot{}, eris.Wrap(err, "dashboard: refresh cancelled")
	}

	var jobs []model.Job
	failed := make(map[string]string)
	for i, queue := range p.queues {
		if errs[i] != nil {
			failed[queue] = errs[i].Error()
			zap.L().Warn("dashboard: queue fetch failed",
				zap.String("queue", queue),
				zap.Error(errs[i]),
			)
			continue
		}
		jobs = append(jobs, results[i]...)
	}
	if len(failed) == len(p.queues) {
		return Snapshot{}, eris.Wrapf(errs[0], "dashboard: all %d queue fetches failed", len(p.queues))
	}

	companies := aggregate.Build(jobs, p.opts)
	snap := Snapshot{
		Companies: companies,
		Summary:   aggregate.Summarize(companies),
		Jobs:      len(jobs),
		FetchedAt: p.now().UTC(),
	}
	if len(failed) > 0 {
		snap.Errors = failed
	}
	p.hub.Publish(snap)
	return snap, nil
}
