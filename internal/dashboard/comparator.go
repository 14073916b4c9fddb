package dashboard

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/extraction-ops/internal/discrepancy"
	"github.com/sells-group/extraction-ops/internal/model"
	"github.com/sells-group/extraction-ops/pkg/garbo"
)

// ErrNoYears is returned when neither dataset has a reporting year to
// compare.
var ErrNoYears = eris.New("dashboard: no reporting years to compare")

// Query selects what a comparison covers. A zero Year means the newest year
// present in the data. A nil Threshold uses the comparator default.
type Query struct {
	Year      int
	Threshold *float64
}

// Comparator compares staging against production. Both company lists are
// fetched together and cached for ttl.
type Comparator struct {
	client garbo.Client
	opts   discrepancy.Options
	ttl    time.Duration
	now    func() time.Time

	mu       sync.Mutex
	loadedAt time.Time
	stage    []model.Company
	prod     []model.Company
}

// NewComparator creates a comparator. A ttl of zero refetches on every call.
func NewComparator(client garbo.Client, opts discrepancy.Options, ttl time.Duration) *Comparator {
	return &Comparator{
		client: client,
		opts:   opts,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Options returns the default comparison options.
func (c *Comparator) Options() discrepancy.Options { return c.opts }

// Invalidate drops the cached company lists.
func (c *Comparator) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stage, c.prod = nil, nil
	c.loadedAt = time.Time{}
}

// Companies returns the staging and production company lists, fetching them
// when the cache is empty or stale.
func (c *Comparator) Companies(ctx context.Context) (stage, prod []model.Company, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.loadedAt.IsZero() && c.now().Sub(c.loadedAt) < c.ttl {
		return c.stage, c.prod, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		stage, err = c.client.ListCompanies(gctx, garbo.Staging)
		return err
	})
	g.Go(func() error {
		var err error
		prod, err = c.client.ListCompanies(gctx, garbo.Production)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, eris.Wrap(err, "dashboard: load companies")
	}

	c.stage, c.prod = stage, prod
	c.loadedAt = c.now()
	zap.L().Debug("dashboard: companies loaded",
		zap.Int("staging", len(stage)),
		zap.Int("production", len(prod)),
	)
	return stage, prod, nil
}

// Years returns the comparable reporting years, newest first.
func (c *Comparator) Years(ctx context.Context) ([]int, error) {
	stage, prod, err := c.Companies(ctx)
	if err != nil {
		return nil, err
	}
	return discrepancy.Years(stage, prod), nil
}

// Overview returns per data point and per scope counts for the year.
func (c *Comparator) Overview(ctx context.Context, q Query) (discrepancy.Overview, error) {
	stage, prod, opts, year, err := c.resolve(ctx, q)
	if err != nil {
		return discrepancy.Overview{}, err
	}
	return discrepancy.BuildOverview(stage, prod, year, opts), nil
}

// DataPoint returns one row per company for a single data point.
func (c *Comparator) DataPoint(ctx context.Context, key string, q Query) ([]discrepancy.CompanyRow, error) {
	stage, prod, opts, year, err := c.resolve(ctx, q)
	if err != nil {
		return nil, err
	}
	return discrepancy.Compare(stage, prod, key, year, opts)
}

// Rows returns every company and data point row for the year.
func (c *Comparator) Rows(ctx context.Context, q Query) ([]discrepancy.CompanyRow, error) {
	stage, prod, opts, year, err := c.resolve(ctx, q)
	if err != nil {
		return nil, err
	}
	return discrepancy.CompareAll(stage, prod, year, opts), nil
}

// Worst ranks companies by failing data points for the year.
func (c *Comparator) Worst(ctx context.Context, q Query) ([]discrepancy.CompanyErrors, error) {
	stage, prod, opts, year, err := c.resolve(ctx, q)
	if err != nil {
		return nil, err
	}
	return discrepancy.WorstCompanies(stage, prod, year, opts), nil
}

// ResolveYear returns q.Year, or the newest comparable year when q.Year is
// zero.
func (c *Comparator) ResolveYear(ctx context.Context, q Query) (int, error) {
	_, _, _, year, err := c.resolve(ctx, q)
	return year, err
}

func (c *Comparator) resolve(ctx context.Context, q Query) (stage, prod []model.Company, opts discrepancy.Options, year int, err error) {
	stage, prod, err = c.Companies(ctx)
	if err != nil {
		return nil, nil, opts, 0, err
	}

	opts = c.opts
	if q.Threshold != nil {
		if *q.Threshold < 0 {
			return nil, nil, opts, 0, eris.Errorf("dashboard: threshold must be >= 0, got %v", *q.Threshold)
		}
		opts.RoundingThreshold = *q.Threshold
	}

	year = q.Year
	if year == 0 {
		years := discrepancy.Years(stage, prod)
		if len(years) == 0 {
			return nil, nil, opts, 0, ErrNoYears
		}
		year = years[0]
	}
	return stage, prod, opts, year, nil
}
