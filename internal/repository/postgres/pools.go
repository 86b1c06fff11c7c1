package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sentinela-io/sentinela/internal/config"
	"github.com/sentinela-io/sentinela/internal/pkg/errors"
	"github.com/sentinela-io/sentinela/internal/pkg/metrics"
)

// Pools holds the named connection pools user monitors query through.
// Pool names come from the DATABASE_<NAME> environment variables; sizing
// comes from databases_pools_configs
type Pools struct {
	dbs          map[string]*sql.DB
	queryTimeout time.Duration
	logMetrics   bool
}

// NewPools opens one pool per configured DSN
func NewPools(cfg *config.Config) (*Pools, error) {
	dbs := make(map[string]*sql.DB, len(cfg.DatabaseDSNs))
	for name, dsn := range cfg.DatabaseDSNs {
		pool := cfg.DatabasesPoolsConfigs[name]
		db, err := New(dsn, pool)
		if err != nil {
			for _, opened := range dbs {
				opened.Close()
			}
			return nil, fmt.Errorf("failed to open pool '%s': %w", name, err)
		}
		dbs[name] = db
	}

	return &Pools{
		dbs:          dbs,
		queryTimeout: cfg.DatabaseQueryTimeoutDuration(),
		logMetrics:   cfg.DatabaseLogQueryMetrics,
	}, nil
}

// Query runs a read query against a named pool, returning one map per row
func (p *Pools) Query(ctx context.Context, pool, query string, args ...interface{}) ([]map[string]interface{}, error) {
	db, ok := p.dbs[pool]
	if !ok {
		return nil, errors.BadRequest(fmt.Sprintf("unknown database pool '%s'", pool))
	}

	queryCtx, cancel := context.WithTimeout(ctx, p.queryTimeout)
	defer cancel()

	start := time.Now()
	rows, err := db.QueryContext(queryCtx, query, args...)
	if p.logMetrics {
		metrics.RecordDBQuery("query", pool, time.Since(start))
	}
	if err != nil {
		if queryCtx.Err() == context.DeadlineExceeded {
			return nil, errors.TransientStore("query timed out", err)
		}
		return nil, errors.DatabaseError("Failed to run query", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, errors.DatabaseError("Failed to read columns", err)
	}

	var results []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		pointers := make([]interface{}, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, errors.DatabaseError("Failed to scan row", err)
		}

		row := make(map[string]interface{}, len(columns))
		for i, column := range columns {
			value := values[i]
			if raw, ok := value.([]byte); ok {
				value = string(raw)
			}
			row[column] = value
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

// Names lists the configured pool names
func (p *Pools) Names() []string {
	names := make([]string, 0, len(p.dbs))
	for name := range p.dbs {
		names = append(names, name)
	}
	return names
}

// Close closes every pool
func (p *Pools) Close() {
	for _, db := range p.dbs {
		db.Close()
	}
}
