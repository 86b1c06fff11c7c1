package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"time"

	"github.com/sentinela-io/sentinela/internal/domain/event"
	"github.com/sentinela-io/sentinela/internal/domain/monitor"
	"github.com/sentinela-io/sentinela/internal/pkg/logger"
)

// MonitorService owns monitor registration and the run state machine
type MonitorService struct {
	monitors monitor.Repository
	events   *EventService
	logger   *logger.Logger
}

// NewMonitorService creates a new monitor service
func NewMonitorService(monitors monitor.Repository, events *EventService, log *logger.Logger) *MonitorService {
	return &MonitorService{
		monitors: monitors,
		events:   events,
		logger:   log.With("component", "monitors"),
	}
}

// Register creates or refreshes a monitor row under its normalized name.
// An existing monitor is only touched when its code hash changed
func (s *MonitorService) Register(ctx context.Context, name, code string, additionalFiles map[string]string) (*monitor.Monitor, error) {
	normalized := monitor.NormalizeName(name)
	hash := codeHash(code, additionalFiles)

	existing, err := s.monitors.GetByName(ctx, normalized)
	if err == nil {
		if existing.Hash == hash {
			return existing, nil
		}
		existing.Code = code
		existing.AdditionalFiles = additionalFiles
		existing.Hash = hash
		if err := s.monitors.Update(ctx, existing); err != nil {
			return nil, err
		}
		s.logger.Infof("Monitor '%s' updated", normalized)
		return existing, nil
	}

	created := &monitor.Monitor{
		Name:            normalized,
		Enabled:         true,
		Code:            code,
		AdditionalFiles: additionalFiles,
		Hash:            hash,
	}
	if _, err := s.monitors.Create(ctx, created); err != nil {
		return nil, err
	}
	s.logger.Infof("Monitor '%s' registered", normalized)
	return created, nil
}

// ClaimForRun flips the queued flag, returning false when the monitor was
// already claimed
func (s *MonitorService) ClaimForRun(ctx context.Context, id int64, at time.Time) (bool, error) {
	return s.monitors.SetQueued(ctx, id, true, at)
}

// ReleaseClaim reverts a claim whose work message could not be enqueued
func (s *MonitorService) ReleaseClaim(ctx context.Context, id int64) error {
	_, err := s.monitors.SetQueued(ctx, id, false, time.Time{})
	return err
}

// BeginRun marks a claimed monitor as running, returning false when the
// transition was not available
func (s *MonitorService) BeginRun(ctx context.Context, id int64, at time.Time) (bool, error) {
	return s.monitors.SetRunning(ctx, id, at)
}

// Heartbeat bumps the running monitor's liveness timestamp
func (s *MonitorService) Heartbeat(ctx context.Context, id int64, at time.Time) error {
	return s.monitors.Heartbeat(ctx, id, at)
}

// EndRun clears the run state, stamping the executed kinds and the last
// successful execution on success
func (s *MonitorService) EndRun(ctx context.Context, id int64, kinds []string, success bool, at time.Time) error {
	return s.monitors.ClearRun(ctx, id, kinds, success, at)
}

// SetEnabled flips the enabled flag and announces the change
func (s *MonitorService) SetEnabled(ctx context.Context, id int64, enabled bool) error {
	if err := s.monitors.SetEnabled(ctx, id, enabled); err != nil {
		return err
	}
	return s.events.Emit(ctx, event.SourceMonitor, id, id, event.MonitorEnabledChanged, map[string]interface{}{
		"enabled": enabled,
	}, nil)
}

// ResetStuck clears the run state of monitors whose heartbeat went silent
// for longer than the tolerance, emitting monitor_stuck for each
func (s *MonitorService) ResetStuck(ctx context.Context, tolerance time.Duration, now time.Time) ([]*monitor.Monitor, error) {
	stuck, err := s.monitors.ListStuck(ctx, tolerance, now)
	if err != nil {
		return nil, err
	}

	for _, m := range stuck {
		if _, err := s.monitors.SetQueued(ctx, m.ID, false, time.Time{}); err != nil {
			return nil, err
		}
		s.logger.Warnf("Monitor '%s' was stuck and has been reset", m.Name)

		if err := s.events.Emit(ctx, event.SourceMonitor, m.ID, m.ID, event.MonitorStuck, map[string]interface{}{
			"monitor_name": m.Name,
		}, nil); err != nil {
			return nil, err
		}
	}
	return stuck, nil
}

// codeHash fingerprints a monitor's code and additional files
func codeHash(code string, additionalFiles map[string]string) string {
	h := sha256.New()
	h.Write([]byte(code))

	names := make([]string, 0, len(additionalFiles))
	for name := range additionalFiles {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		h.Write([]byte(name))
		h.Write([]byte(additionalFiles[name]))
	}
	return hex.EncodeToString(h.Sum(nil))
}
