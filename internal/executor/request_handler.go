package executor

import (
	"context"
	"fmt"
	"strings"

	"github.com/sentinela-io/sentinela/internal/pkg/errors"
	"github.com/sentinela-io/sentinela/internal/pkg/logger"
	"github.com/sentinela-io/sentinela/internal/queue"
	"github.com/sentinela-io/sentinela/internal/registry"
	"github.com/sentinela-io/sentinela/internal/services"
)

// Built-in request actions
const (
	ActionMonitorDisable   = "monitor_disable"
	ActionMonitorEnable    = "monitor_enable"
	ActionMonitorRegister  = "monitor_register"
	ActionAlertAcknowledge = "alert_acknowledge"
	ActionAlertLock        = "alert_lock"
	ActionAlertUnlock      = "alert_unlock"
	ActionAlertSolve       = "alert_solve"
	ActionIssueDrop        = "issue_drop"
)

// ActionFunc executes one external request action
type ActionFunc func(ctx context.Context, params map[string]interface{}) error

// RequestHandler executes external request messages: built-in actions plus
// plugin actions routed by the prefix before the first dot
type RequestHandler struct {
	registry *registry.Registry
	monitors *services.MonitorService
	alerts   *services.AlertService
	issues   *services.IssueService
	logger   *logger.Logger

	plugins map[string]map[string]ActionFunc
}

// NewRequestHandler creates a request message handler
func NewRequestHandler(reg *registry.Registry, monitors *services.MonitorService, alerts *services.AlertService, issues *services.IssueService, log *logger.Logger) *RequestHandler {
	return &RequestHandler{
		registry: reg,
		monitors: monitors,
		alerts:   alerts,
		issues:   issues,
		logger:   log.With("component", "request_handler"),
		plugins:  make(map[string]map[string]ActionFunc),
	}
}

// RegisterPluginActions mounts a plugin's actions under its prefix. An
// action "disable_channel" of plugin "slack" is requested as
// "slack.disable_channel"
func (h *RequestHandler) RegisterPluginActions(prefix string, actions map[string]ActionFunc) {
	h.plugins[prefix] = actions
}

func (h *RequestHandler) Handle(ctx context.Context, msg *queue.Message) error {
	var payload queue.RequestPayload
	if err := queue.DecodePayload(msg, &payload); err != nil {
		return err
	}

	h.logger.Infof("Executing request action '%s'", payload.Action)

	switch payload.Action {
	case ActionMonitorDisable:
		return h.setMonitorEnabled(ctx, payload.Params, false)
	case ActionMonitorEnable:
		return h.setMonitorEnabled(ctx, payload.Params, true)
	case ActionMonitorRegister:
		return h.registerMonitor(ctx, payload.Params)
	case ActionAlertAcknowledge:
		return h.withAlertID(payload.Params, func(id int64) error {
			return h.alerts.Acknowledge(ctx, id)
		})
	case ActionAlertLock:
		return h.withAlertID(payload.Params, func(id int64) error {
			return h.alerts.Lock(ctx, id)
		})
	case ActionAlertUnlock:
		return h.withAlertID(payload.Params, func(id int64) error {
			return h.alerts.Unlock(ctx, id)
		})
	case ActionAlertSolve:
		return h.withAlertID(payload.Params, func(id int64) error {
			return h.alerts.Solve(ctx, id)
		})
	case ActionIssueDrop:
		id, err := int64Param(payload.Params, "issue_id")
		if err != nil {
			return err
		}
		return h.issues.MarkDropped(ctx, id)
	}

	return h.dispatchPlugin(ctx, payload)
}

// dispatchPlugin routes an unknown action to the plugin registered under
// its prefix
func (h *RequestHandler) dispatchPlugin(ctx context.Context, payload queue.RequestPayload) error {
	prefix, name, found := strings.Cut(payload.Action, ".")
	if found {
		if actions, ok := h.plugins[prefix]; ok {
			if action, ok := actions[name]; ok {
				return action(ctx, payload.Params)
			}
		}
	}
	return errors.BadRequest(fmt.Sprintf("unknown request action '%s'", payload.Action))
}

func (h *RequestHandler) setMonitorEnabled(ctx context.Context, params map[string]interface{}, enabled bool) error {
	entry, err := h.monitorFromParams(params)
	if err != nil {
		return err
	}
	if err := h.monitors.SetEnabled(ctx, entry.Monitor.ID, enabled); err != nil {
		return err
	}
	h.registry.RequestReload()
	return nil
}

// registerMonitor re-registers a catalog definition's database row and
// asks the registry to pick it up
func (h *RequestHandler) registerMonitor(ctx context.Context, params map[string]interface{}) error {
	name, err := stringParam(params, "monitor_name")
	if err != nil {
		return err
	}

	def, ok := h.registry.Definition(name)
	if !ok {
		return errors.BadRequest(fmt.Sprintf("no definition for monitor '%s'", name))
	}

	if _, err := h.monitors.Register(ctx, def.Name, "", nil); err != nil {
		return err
	}
	h.registry.RequestReload()
	return nil
}

func (h *RequestHandler) monitorFromParams(params map[string]interface{}) (*registry.Entry, error) {
	name, err := stringParam(params, "monitor_name")
	if err != nil {
		return nil, err
	}
	entry, ok := h.registry.GetByName(name)
	if !ok {
		return nil, errors.BadRequest(fmt.Sprintf("unknown monitor '%s'", name))
	}
	return entry, nil
}

func (h *RequestHandler) withAlertID(params map[string]interface{}, fn func(int64) error) error {
	id, err := int64Param(params, "alert_id")
	if err != nil {
		return err
	}
	return fn(id)
}

func stringParam(params map[string]interface{}, name string) (string, error) {
	value, ok := params[name].(string)
	if !ok || value == "" {
		return "", errors.BadRequest(fmt.Sprintf("request requires parameter '%s'", name))
	}
	return value, nil
}

// int64Param reads a numeric parameter; JSON decoding surfaces numbers as
// float64
func int64Param(params map[string]interface{}, name string) (int64, error) {
	switch v := params[name].(type) {
	case float64:
		return int64(v), nil
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	default:
		return 0, errors.BadRequest(fmt.Sprintf("request requires numeric parameter '%s'", name))
	}
}
