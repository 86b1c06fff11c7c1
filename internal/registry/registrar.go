package registry

import (
	"context"

	"github.com/sentinela-io/sentinela/internal/domain/monitor"
)

// MonitorRegistrar creates or refreshes a monitor's database row
type MonitorRegistrar interface {
	Register(ctx context.Context, name, code string, additionalFiles map[string]string) (*monitor.Monitor, error)
}

// RegisterStoredMonitors inserts a row for every catalog definition and
// reloads the lookup maps. Only the process holding the controller role
// runs this, so duplicate inserts across replicas cannot happen
func (r *Registry) RegisterStoredMonitors(ctx context.Context, registrar MonitorRegistrar) error {
	for _, def := range r.Definitions() {
		if _, err := registrar.Register(ctx, def.Name, "", nil); err != nil {
			return err
		}
	}
	return r.Load(ctx)
}
