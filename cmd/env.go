package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/text/language"

	"github.com/sells-group/extraction-ops/internal/aggregate"
	"github.com/sells-group/extraction-ops/internal/config"
	"github.com/sells-group/extraction-ops/internal/dashboard"
	"github.com/sells-group/extraction-ops/internal/datapoint"
	"github.com/sells-group/extraction-ops/internal/discrepancy"
	"github.com/sells-group/extraction-ops/internal/store"
	"github.com/sells-group/extraction-ops/pkg/garbo"
)

// newClient builds the pipeline API client. Tests replace it.
var newClient = func(c *config.Config) garbo.Client {
	return garbo.FromConfig(c.API)
}

// initStore opens the configured report store and migrates it.
func initStore(ctx context.Context, c *config.Config) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch c.Store.Driver {
	case "sqlite":
		dsn := c.Store.DatabaseURL
		if dsn == "" {
			dsn = "extraction-ops.db"
		}
		st, err = store.NewSQLite(dsn)
	case "postgres":
		st, err = store.NewPostgres(ctx, c.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", c.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

// compareOptions builds the comparison settings from config.
func compareOptions(c config.CompareConfig) (discrepancy.Options, error) {
	cat, err := datapoint.Load(c.CatalogPath)
	if err != nil {
		return discrepancy.Options{}, err
	}
	lang, err := collationLanguage(c.Language, discrepancy.DefaultLanguage)
	if err != nil {
		return discrepancy.Options{}, err
	}
	return discrepancy.Options{
		RoundingThreshold: c.RoundingThreshold,
		Catalog:           cat,
		DifficultAt:       c.DifficultAt,
		Language:          lang,
	}, nil
}

// aggregateOptions builds the aggregation settings from config.
func aggregateOptions(c *config.Config) (aggregate.Options, error) {
	lang, err := collationLanguage(c.Compare.Language, aggregate.DefaultLanguage)
	if err != nil {
		return aggregate.Options{}, err
	}
	return aggregate.Options{Stages: c.Poll.Queues, Language: lang}, nil
}

// collationLanguage parses the configured language tag, or returns def when
// none is set.
func collationLanguage(s string, def language.Tag) (language.Tag, error) {
	if s == "" {
		return def, nil
	}
	tag, err := language.Parse(s)
	if err != nil {
		return def, eris.Wrapf(err, "parse language %q", s)
	}
	return tag, nil
}

// newComparator builds a comparator over client from config.
func newComparator(c *config.Config, client garbo.Client) (*dashboard.Comparator, error) {
	opts, err := compareOptions(c.Compare)
	if err != nil {
		return nil, err
	}
	return dashboard.NewComparator(client, opts, time.Duration(c.Compare.CacheTTLSecs)*time.Second), nil
}
