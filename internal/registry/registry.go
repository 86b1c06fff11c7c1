package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sentinela-io/sentinela/internal/domain/monitor"
	"github.com/sentinela-io/sentinela/internal/monitordef"
	"github.com/sentinela-io/sentinela/internal/pkg/errors"
	"github.com/sentinela-io/sentinela/internal/pkg/logger"
	"github.com/sentinela-io/sentinela/internal/pkg/metrics"
	"github.com/sentinela-io/sentinela/internal/pkg/schedule"
)

// DefaultReadyTimeout bounds how long consumers wait for the first load
const DefaultReadyTimeout = 5 * time.Second

// Entry pairs a stored monitor with its loaded definition
type Entry struct {
	Monitor    *monitor.Monitor
	Definition *monitordef.Definition
}

// Registry holds the live catalogue of loaded monitors. Definitions are
// registered into the catalog at startup; the loader pairs them with their
// database rows and swaps the lookup maps atomically
type Registry struct {
	store    monitor.Repository
	schedule string
	location *time.Location
	log      *logger.Logger

	catalogMu sync.Mutex
	catalog   map[string]*monitordef.Definition

	mu     sync.RWMutex
	byName map[string]*Entry
	byID   map[int64]*Entry

	ready     chan struct{}
	readyOnce sync.Once
	reload    chan struct{}
}

// New creates a registry reloading on the given cron schedule
func New(store monitor.Repository, loadSchedule string, location *time.Location, log *logger.Logger) *Registry {
	return &Registry{
		store:    store,
		schedule: loadSchedule,
		location: location,
		log:      log.With("component", "registry"),
		catalog:  make(map[string]*monitordef.Definition),
		byName:   make(map[string]*Entry),
		byID:     make(map[int64]*Entry),
		ready:    make(chan struct{}),
		reload:   make(chan struct{}, 1),
	}
}

// RegisterDefinition adds a validated definition to the catalog. The
// definition becomes visible to lookups after the next load
func (r *Registry) RegisterDefinition(def *monitordef.Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}

	name := def.NormalizedName()

	r.catalogMu.Lock()
	defer r.catalogMu.Unlock()

	if _, exists := r.catalog[name]; exists {
		return errors.Conflict(fmt.Sprintf("monitor '%s' is already registered", name))
	}
	r.catalog[name] = def
	return nil
}

// Definitions lists the catalog's definitions
func (r *Registry) Definitions() []*monitordef.Definition {
	r.catalogMu.Lock()
	defer r.catalogMu.Unlock()

	defs := make([]*monitordef.Definition, 0, len(r.catalog))
	for _, def := range r.catalog {
		defs = append(defs, def)
	}
	return defs
}

// Definition retrieves a catalog definition by normalized name
func (r *Registry) Definition(name string) (*monitordef.Definition, bool) {
	r.catalogMu.Lock()
	defer r.catalogMu.Unlock()

	def, ok := r.catalog[monitor.NormalizeName(name)]
	return def, ok
}

// GetByID retrieves a loaded monitor entry by its database ID
func (r *Registry) GetByID(id int64) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.byID[id]
	return entry, ok
}

// GetByName retrieves a loaded monitor entry by normalized name
func (r *Registry) GetByName(name string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.byName[monitor.NormalizeName(name)]
	return entry, ok
}

// List returns the loaded entries
func (r *Registry) List() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]*Entry, 0, len(r.byName))
	for _, entry := range r.byName {
		entries = append(entries, entry)
	}
	return entries
}

// HasReactions reports whether the monitor registers reactions for the
// event name. Unknown monitors never react
func (r *Registry) HasReactions(monitorID int64, eventName string) bool {
	entry, ok := r.GetByID(monitorID)
	if !ok {
		return false
	}
	return entry.Definition.HasReactions(eventName)
}

// WaitReady blocks until the first load completed, giving up after timeout
func (r *Registry) WaitReady(ctx context.Context, timeout time.Duration) error {
	select {
	case <-r.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(timeout):
		metrics.RecordRegistryReadyTimeout()
		return errors.Timeout("registry initial load")
	}
}

// RequestReload wakes the load loop before its next scheduled tick
func (r *Registry) RequestReload() {
	select {
	case r.reload <- struct{}{}:
	default:
	}
}

// Run loads the registry immediately and then keeps it fresh, reloading on
// the configured schedule or earlier when a reload is requested
func (r *Registry) Run(ctx context.Context) {
	r.loadOnce(ctx)

	for {
		wait, err := schedule.UntilNextTrigger(r.schedule, time.Now(), r.location)
		if err != nil {
			r.log.ErrorWithErr(err, "invalid monitors load schedule")
			wait = time.Minute
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		case <-r.reload:
		}
		r.loadOnce(ctx)
	}
}

// Load runs one load cycle outside the loop
func (r *Registry) Load(ctx context.Context) error {
	return r.load(ctx)
}

func (r *Registry) loadOnce(ctx context.Context) {
	if err := r.load(ctx); err != nil {
		r.log.ErrorWithErr(err, "failed to load monitors")
		return
	}
	r.readyOnce.Do(func() { close(r.ready) })
}

func (r *Registry) load(ctx context.Context) error {
	monitors, err := r.store.List(ctx, false)
	if err != nil {
		return err
	}

	r.catalogMu.Lock()
	catalog := make(map[string]*monitordef.Definition, len(r.catalog))
	for name, def := range r.catalog {
		catalog[name] = def
	}
	r.catalogMu.Unlock()

	byName := make(map[string]*Entry, len(monitors))
	byID := make(map[int64]*Entry, len(monitors))
	for _, m := range monitors {
		def, ok := catalog[m.Name]
		if !ok {
			r.log.Warnf("stored monitor '%s' has no registered definition", m.Name)
			continue
		}
		entry := &Entry{Monitor: m, Definition: def}
		byName[m.Name] = entry
		byID[m.ID] = entry
	}

	r.mu.Lock()
	r.byName = byName
	r.byID = byID
	r.mu.Unlock()

	r.log.Debugf("monitors loaded: %d", len(byName))
	return nil
}
