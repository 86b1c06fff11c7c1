package monitordef

import (
	"context"

	"github.com/sentinela-io/sentinela/internal/domain/monitor"
)

// VariableStore persists named values scoped to a monitor between runs
type VariableStore interface {
	Get(ctx context.Context, monitorID int64, name string, out interface{}) (bool, error)
	Set(ctx context.Context, monitorID int64, name string, value interface{}) error
}

// DatabaseQuerier runs read queries against the named database pools
type DatabaseQuerier interface {
	Query(ctx context.Context, pool, query string, args ...interface{}) ([]map[string]interface{}, error)
	Names() []string
}

// Tools bundles the engine facilities monitor callbacks may capture when
// their definitions are constructed: monitor lookup (a callback resolves
// its own monitor row by name), per-monitor variables and the named
// database pools
type Tools struct {
	Monitors  monitor.Repository
	Variables VariableStore
	Databases DatabaseQuerier
}
