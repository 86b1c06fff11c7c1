package monitors

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sentinela-io/sentinela/internal/domain/monitor"
	"github.com/sentinela-io/sentinela/internal/monitordef"
)

// LoadManifestDir builds definitions from the YAML manifests in dir,
// pairing each manifest with the callback set registered under the
// monitor's normalized name. Manifests without callbacks are rejected so
// a misnamed registration cannot silently produce a dead monitor
func LoadManifestDir(dir string, callbacks map[string]monitordef.Callbacks) ([]*monitordef.Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read monitors directory '%s': %w", dir, err)
	}

	var defs []*monitordef.Definition
	for _, entry := range entries {
		if entry.IsDir() || !isManifest(entry.Name()) {
			continue
		}

		manifest, err := monitordef.LoadManifest(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}

		name := monitor.NormalizeName(manifest.Name)
		cbs, ok := callbacks[name]
		if !ok {
			return nil, fmt.Errorf("manifest '%s' has no registered callbacks for monitor '%s'", entry.Name(), name)
		}

		def, err := manifest.Apply(cbs)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// ApplyManifestOverrides rebuilds every definition whose manifest appears
// in dir, replacing its declarative options while keeping the compiled
// callbacks. Definitions without a manifest pass through unchanged
func ApplyManifestOverrides(dir string, defs []*monitordef.Definition) ([]*monitordef.Definition, error) {
	callbacks := make(map[string]monitordef.Callbacks, len(defs))
	for _, def := range defs {
		callbacks[def.NormalizedName()] = def.Callbacks()
	}

	loaded, err := LoadManifestDir(dir, callbacks)
	if err != nil {
		return nil, err
	}
	overrides := make(map[string]*monitordef.Definition, len(loaded))
	for _, def := range loaded {
		overrides[def.NormalizedName()] = def
	}

	result := make([]*monitordef.Definition, 0, len(defs))
	for _, def := range defs {
		if override, ok := overrides[def.NormalizedName()]; ok {
			def = override
		}
		result = append(result, def)
	}
	return result, nil
}

func isManifest(name string) bool {
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")
}
