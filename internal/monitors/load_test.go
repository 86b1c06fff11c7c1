package monitors

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sentinela-io/sentinela/internal/monitordef"
)

const backlogManifest = `
name: Orders Backlog
monitor_options:
  search_cron: "0 * * * *"
  max_issues_creation: 25
issue_options:
  model_id_key: queue_name
alert_options:
  rule:
    type: count
    priority_levels:
      high: 0
`

func writeManifest(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

func backlogCallbacks() monitordef.Callbacks {
	return monitordef.Callbacks{
		Search: func(context.Context) ([]monitordef.IssueData, error) { return nil, nil },
	}
}

func TestLoadManifestDir(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "orders_backlog.yaml", backlogManifest)
	writeManifest(t, dir, "notes.txt", "not a manifest")

	defs, err := LoadManifestDir(dir, map[string]monitordef.Callbacks{
		"orders_backlog": backlogCallbacks(),
	})
	if err != nil {
		t.Fatalf("LoadManifestDir() error = %v", err)
	}

	if len(defs) != 1 {
		t.Fatalf("definitions = %d, want 1", len(defs))
	}
	def := defs[0]
	if def.NormalizedName() != "orders_backlog" {
		t.Errorf("name = %s", def.NormalizedName())
	}
	if def.Monitor.SearchCron != "0 * * * *" || def.Monitor.MaxIssuesCreation != 25 {
		t.Errorf("monitor options = %+v", def.Monitor)
	}
	if def.Search == nil {
		t.Error("callbacks were not attached")
	}
	if def.Alert == nil || def.Alert.Rule == nil {
		t.Error("alert rule was not built")
	}
}

func TestLoadManifestDir_MissingCallbacks(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "orders_backlog.yaml", backlogManifest)

	if _, err := LoadManifestDir(dir, nil); err == nil {
		t.Error("LoadManifestDir() accepted a manifest without registered callbacks")
	}
}

func TestLoadManifestDir_BadDirectory(t *testing.T) {
	if _, err := LoadManifestDir(filepath.Join(t.TempDir(), "missing"), nil); err == nil {
		t.Error("LoadManifestDir() accepted a missing directory")
	}
}

func TestApplyManifestOverrides(t *testing.T) {
	compiled := []*monitordef.Definition{
		{
			Name:    "orders_backlog",
			Monitor: monitordef.MonitorOptions{SearchCron: "*/5 * * * *"},
			Issue:   monitordef.IssueOptions{ModelIDKey: "queue_name"},
			Search:  backlogCallbacks().Search,
		},
		{
			Name:    "untouched_monitor",
			Monitor: monitordef.MonitorOptions{SearchCron: "*/5 * * * *"},
			Issue:   monitordef.IssueOptions{ModelIDKey: "host"},
			Search:  backlogCallbacks().Search,
		},
	}

	dir := t.TempDir()
	writeManifest(t, dir, "orders_backlog.yaml", backlogManifest)

	defs, err := ApplyManifestOverrides(dir, compiled)
	if err != nil {
		t.Fatalf("ApplyManifestOverrides() error = %v", err)
	}
	if len(defs) != 2 {
		t.Fatalf("definitions = %d, want 2", len(defs))
	}

	overridden := defs[0]
	if overridden.Monitor.SearchCron != "0 * * * *" {
		t.Errorf("search_cron = %s, want the manifest value", overridden.Monitor.SearchCron)
	}
	if overridden.Search == nil {
		t.Error("override dropped the compiled search callback")
	}
	if overridden.Alert == nil {
		t.Error("override dropped the manifest alert rule")
	}

	if defs[1].Monitor.SearchCron != "*/5 * * * *" {
		t.Errorf("definition without a manifest changed: %+v", defs[1].Monitor)
	}
}

func TestApplyManifestOverrides_UnknownManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "stranger.yaml", `
name: Stranger
monitor_options:
  search_cron: "* * * * *"
issue_options:
  model_id_key: id
`)

	_, err := ApplyManifestOverrides(dir, []*monitordef.Definition{{
		Name:    "orders_backlog",
		Monitor: monitordef.MonitorOptions{SearchCron: "*/5 * * * *"},
		Issue:   monitordef.IssueOptions{ModelIDKey: "queue_name"},
		Search:  backlogCallbacks().Search,
	}})
	if err == nil {
		t.Error("ApplyManifestOverrides() accepted a manifest with no matching definition")
	}
}
