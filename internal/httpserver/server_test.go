package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sentinela-io/sentinela/internal/config"
	"github.com/sentinela-io/sentinela/internal/domain/monitor"
	"github.com/sentinela-io/sentinela/internal/executor"
	"github.com/sentinela-io/sentinela/internal/monitordef"
	"github.com/sentinela-io/sentinela/internal/pkg/logger"
	"github.com/sentinela-io/sentinela/internal/queue"
	"github.com/sentinela-io/sentinela/internal/registry"
	"github.com/sentinela-io/sentinela/internal/testutil"
)

func newServerFixture(t *testing.T) (*Server, *testutil.MockQueue) {
	t.Helper()
	ctx := context.Background()
	log := logger.New(logger.Config{Mode: "json", Level: "error"})

	monitorRepo := testutil.NewMockMonitorRepository()
	reg := registry.New(monitorRepo, "* * * * *", time.UTC, log)
	def := &monitordef.Definition{
		Name:    "cpu_pressure",
		Monitor: monitordef.MonitorOptions{SearchCron: "* * * * *"},
		Issue:   monitordef.IssueOptions{ModelIDKey: "host"},
		Search:  func(context.Context) ([]monitordef.IssueData, error) { return nil, nil },
	}
	if err := reg.RegisterDefinition(def); err != nil {
		t.Fatalf("RegisterDefinition() error = %v", err)
	}
	monitorRepo.Create(ctx, &monitor.Monitor{Name: "cpu_pressure", Enabled: true})
	if err := reg.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	q := testutil.NewMockQueue()
	cfg := &config.Config{HTTPServer: config.HTTPServerConfig{Port: 8000}}
	return New(cfg, reg, q, log), q
}

func doRequest(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, req)
	return rec
}

func TestServer_Status(t *testing.T) {
	s, _ := newServerFixture(t)

	rec := doRequest(s, http.MethodGet, "/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /status = %d", rec.Code)
	}

	var body struct {
		Status   string                   `json:"status"`
		Monitors []map[string]interface{} `json:"monitors"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if body.Status != "ok" || len(body.Monitors) != 1 {
		t.Errorf("status body = %+v", body)
	}
	if body.Monitors[0]["name"] != "cpu_pressure" {
		t.Errorf("monitors = %+v", body.Monitors)
	}
}

func TestServer_MonitorEndpoints(t *testing.T) {
	s, q := newServerFixture(t)

	rec := doRequest(s, http.MethodGet, "/monitor/list", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "cpu_pressure") {
		t.Errorf("GET /monitor/list = %d %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(s, http.MethodGet, "/monitor/cpu_pressure", "")
	if rec.Code != http.StatusOK {
		t.Errorf("GET /monitor/cpu_pressure = %d", rec.Code)
	}
	rec = doRequest(s, http.MethodGet, "/monitor/unknown", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET /monitor/unknown = %d, want 404", rec.Code)
	}

	// Mutations are accepted and enqueued as request messages
	rec = doRequest(s, http.MethodPost, "/monitor/cpu_pressure/disable", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("POST disable = %d", rec.Code)
	}
	msg, _ := q.Receive(context.Background(), 0)
	if msg == nil || msg.Kind != queue.KindRequest {
		t.Fatal("disable did not enqueue a request message")
	}
	var payload queue.RequestPayload
	if err := queue.DecodePayload(msg, &payload); err != nil {
		t.Fatalf("DecodePayload() error = %v", err)
	}
	if payload.Action != executor.ActionMonitorDisable || payload.Params["monitor_name"] != "cpu_pressure" {
		t.Errorf("payload = %+v", payload)
	}
}

func TestServer_MonitorValidate(t *testing.T) {
	s, _ := newServerFixture(t)

	manifest := `
name: Orders Backlog
monitor_options:
  search_cron: "*/5 * * * *"
issue_options:
  model_id_key: queue_name
`
	rec := doRequest(s, http.MethodPost, "/monitor/validate", manifest)
	if rec.Code != http.StatusOK {
		t.Errorf("POST /monitor/validate = %d %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(s, http.MethodPost, "/monitor/validate", "{not yaml: [")
	if rec.Code == http.StatusOK {
		t.Error("validate accepted a broken manifest")
	}
}

func TestServer_AlertAndIssueActions(t *testing.T) {
	s, q := newServerFixture(t)
	ctx := context.Background()

	rec := doRequest(s, http.MethodPost, "/alert/7/acknowledge", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("POST acknowledge = %d", rec.Code)
	}
	msg, _ := q.Receive(ctx, 0)
	var payload queue.RequestPayload
	queue.DecodePayload(msg, &payload)
	if payload.Action != executor.ActionAlertAcknowledge || payload.Params["alert_id"] != float64(7) {
		t.Errorf("payload = %+v", payload)
	}

	rec = doRequest(s, http.MethodPost, "/alert/abc/lock", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("POST /alert/abc/lock = %d, want 400", rec.Code)
	}

	rec = doRequest(s, http.MethodPost, "/issue/3/drop", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("POST issue drop = %d", rec.Code)
	}
	msg, _ = q.Receive(ctx, 0)
	queue.DecodePayload(msg, &payload)
	if payload.Action != executor.ActionIssueDrop || payload.Params["issue_id"] != float64(3) {
		t.Errorf("payload = %+v", payload)
	}
}
