// Package plugins holds the compiled-in extension registry. A plugin
// package links itself into the binary by calling Register from its init;
// the plugins configuration list selects which ones are activated at
// startup, so linking a plugin does not enable it
package plugins

import (
	"fmt"
	"sync"

	"github.com/sentinela-io/sentinela/internal/executor"
	"github.com/sentinela-io/sentinela/internal/monitordef"
	"github.com/sentinela-io/sentinela/internal/pkg/errors"
)

// Plugin is a compiled-in extension. Definitions contributes monitors to
// the registry catalog; Actions contributes request actions dispatched
// under the plugin's name prefix
type Plugin interface {
	Name() string
	Definitions(tools monitordef.Tools) []*monitordef.Definition
	Actions() map[string]executor.ActionFunc
}

var (
	mu         sync.Mutex
	registered = make(map[string]Plugin)
)

// Register adds a plugin to the registry; plugin packages call it from
// their init
func Register(p Plugin) error {
	mu.Lock()
	defer mu.Unlock()

	name := p.Name()
	if name == "" {
		return errors.ValidationError("plugin name is required", nil)
	}
	if _, exists := registered[name]; exists {
		return errors.Conflict(fmt.Sprintf("plugin '%s' is already registered", name))
	}
	registered[name] = p
	return nil
}

// Activate resolves the configured plugin names in order. An unknown name
// is a startup failure
func Activate(names []string) ([]Plugin, error) {
	mu.Lock()
	defer mu.Unlock()

	active := make([]Plugin, 0, len(names))
	for _, name := range names {
		p, ok := registered[name]
		if !ok {
			return nil, errors.Fatal(fmt.Sprintf("unknown plugin '%s'", name), nil)
		}
		active = append(active, p)
	}
	return active, nil
}
