package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/sentinela-io/sentinela/internal/domain/alert"
	"github.com/sentinela-io/sentinela/internal/domain/event"
	"github.com/sentinela-io/sentinela/internal/domain/execution"
	"github.com/sentinela-io/sentinela/internal/domain/issue"
	"github.com/sentinela-io/sentinela/internal/domain/monitor"
	"github.com/sentinela-io/sentinela/internal/domain/notification"
	"github.com/sentinela-io/sentinela/internal/domain/variable"
	"github.com/sentinela-io/sentinela/internal/queue"
)

// MockMonitorRepository is a mock implementation of monitor.Repository
type MockMonitorRepository struct {
	Monitors    map[int64]*monitor.Monitor
	NextID      int64
	CreateError error
	GetError    error
	UpdateError error
}

func NewMockMonitorRepository() *MockMonitorRepository {
	return &MockMonitorRepository{
		Monitors: make(map[int64]*monitor.Monitor),
		NextID:   1,
	}
}

func (m *MockMonitorRepository) Create(ctx context.Context, mon *monitor.Monitor) (int64, error) {
	if m.CreateError != nil {
		return 0, m.CreateError
	}
	mon.ID = m.NextID
	m.NextID++
	if mon.CreatedAt.IsZero() {
		mon.CreatedAt = time.Now()
	}
	m.Monitors[mon.ID] = mon
	return mon.ID, nil
}

func (m *MockMonitorRepository) GetByID(ctx context.Context, id int64) (*monitor.Monitor, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	mon, ok := m.Monitors[id]
	if !ok {
		return nil, fmt.Errorf("monitor not found")
	}
	return mon, nil
}

func (m *MockMonitorRepository) GetByName(ctx context.Context, name string) (*monitor.Monitor, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	for _, mon := range m.Monitors {
		if mon.Name == name {
			copied := *mon
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("monitor not found")
}

func (m *MockMonitorRepository) List(ctx context.Context, onlyEnabled bool) ([]*monitor.Monitor, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	var result []*monitor.Monitor
	for _, mon := range m.Monitors {
		if onlyEnabled && !mon.Enabled {
			continue
		}
		result = append(result, mon)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *MockMonitorRepository) Update(ctx context.Context, mon *monitor.Monitor) error {
	if m.UpdateError != nil {
		return m.UpdateError
	}
	if _, ok := m.Monitors[mon.ID]; !ok {
		return fmt.Errorf("monitor not found")
	}
	m.Monitors[mon.ID] = mon
	return nil
}

func (m *MockMonitorRepository) SetEnabled(ctx context.Context, id int64, enabled bool) error {
	mon, ok := m.Monitors[id]
	if !ok {
		return fmt.Errorf("monitor not found")
	}
	mon.Enabled = enabled
	return nil
}

func (m *MockMonitorRepository) SetQueued(ctx context.Context, id int64, queued bool, at time.Time) (bool, error) {
	mon, ok := m.Monitors[id]
	if !ok {
		return false, fmt.Errorf("monitor not found")
	}
	if !queued {
		mon.Queued = false
		mon.Running = false
		return true, nil
	}
	if mon.Queued || !mon.Enabled {
		return false, nil
	}
	mon.Queued = true
	mon.QueuedAt = &at
	return true, nil
}

func (m *MockMonitorRepository) SetRunning(ctx context.Context, id int64, at time.Time) (bool, error) {
	mon, ok := m.Monitors[id]
	if !ok {
		return false, fmt.Errorf("monitor not found")
	}
	if !mon.Queued || mon.Running {
		return false, nil
	}
	mon.Running = true
	mon.RunningAt = &at
	mon.LastHeartbeat = &at
	return true, nil
}

func (m *MockMonitorRepository) Heartbeat(ctx context.Context, id int64, at time.Time) error {
	mon, ok := m.Monitors[id]
	if !ok {
		return fmt.Errorf("monitor not found")
	}
	if !mon.Running {
		return fmt.Errorf("monitor not running")
	}
	mon.LastHeartbeat = &at
	return nil
}

func (m *MockMonitorRepository) ClearRun(ctx context.Context, id int64, kinds []string, success bool, at time.Time) error {
	mon, ok := m.Monitors[id]
	if !ok {
		return fmt.Errorf("monitor not found")
	}
	mon.Queued = false
	mon.Running = false
	for _, kind := range kinds {
		switch kind {
		case monitor.RunKindSearch:
			t := at
			mon.SearchExecutedAt = &t
		case monitor.RunKindUpdate:
			t := at
			mon.UpdateExecutedAt = &t
		}
	}
	if success {
		t := at
		mon.LastSuccessfulExecution = &t
	}
	return nil
}

func (m *MockMonitorRepository) ListStuck(ctx context.Context, tolerance time.Duration, now time.Time) ([]*monitor.Monitor, error) {
	var result []*monitor.Monitor
	cutoff := now.Add(-tolerance)
	for _, mon := range m.Monitors {
		if !mon.Queued {
			continue
		}
		ref := mon.StuckReference()
		if ref != nil && ref.Before(cutoff) {
			result = append(result, mon)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// MockIssueRepository is a mock implementation of issue.Repository
type MockIssueRepository struct {
	Issues      map[int64]*issue.Issue
	NextID      int64
	CreateError error
	GetError    error
}

func NewMockIssueRepository() *MockIssueRepository {
	return &MockIssueRepository{
		Issues: make(map[int64]*issue.Issue),
		NextID: 1,
	}
}

func (m *MockIssueRepository) Create(ctx context.Context, i *issue.Issue) (int64, error) {
	if m.CreateError != nil {
		return 0, m.CreateError
	}
	i.ID = m.NextID
	m.NextID++
	if i.Status == "" {
		i.Status = issue.StatusActive
	}
	if i.CreatedAt.IsZero() {
		i.CreatedAt = time.Now()
	}
	m.Issues[i.ID] = i
	return i.ID, nil
}

func (m *MockIssueRepository) GetByID(ctx context.Context, id int64) (*issue.Issue, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	i, ok := m.Issues[id]
	if !ok {
		return nil, fmt.Errorf("issue not found")
	}
	return i, nil
}

func (m *MockIssueRepository) ListActive(ctx context.Context, monitorID int64) ([]*issue.Issue, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	var result []*issue.Issue
	for _, i := range m.Issues {
		if i.MonitorID == monitorID && i.IsActive() {
			result = append(result, i)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *MockIssueRepository) ListActiveByAlert(ctx context.Context, alertID int64) ([]*issue.Issue, error) {
	var result []*issue.Issue
	for _, i := range m.Issues {
		if i.AlertID != nil && *i.AlertID == alertID && i.IsActive() {
			result = append(result, i)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *MockIssueRepository) CountActiveByAlert(ctx context.Context, alertID int64) (int, error) {
	active, err := m.ListActiveByAlert(ctx, alertID)
	if err != nil {
		return 0, err
	}
	return len(active), nil
}

func (m *MockIssueRepository) ExistsWithModelID(ctx context.Context, monitorID int64, modelID string) (bool, error) {
	for _, i := range m.Issues {
		if i.MonitorID == monitorID && i.ModelID == modelID {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockIssueRepository) GetActiveByModelID(ctx context.Context, monitorID int64, modelID string) (*issue.Issue, error) {
	for _, i := range m.Issues {
		if i.MonitorID == monitorID && i.ModelID == modelID && i.IsActive() {
			return i, nil
		}
	}
	return nil, nil
}

func (m *MockIssueRepository) UpdateData(ctx context.Context, id int64, data map[string]interface{}) error {
	i, ok := m.Issues[id]
	if !ok || !i.IsActive() {
		return fmt.Errorf("active issue not found")
	}
	i.Data = data
	return nil
}

func (m *MockIssueRepository) LinkToAlert(ctx context.Context, id int64, alertID int64) error {
	i, ok := m.Issues[id]
	if !ok || !i.IsActive() || i.AlertID != nil {
		return fmt.Errorf("linkable issue not found")
	}
	i.AlertID = &alertID
	return nil
}

func (m *MockIssueRepository) SetStatus(ctx context.Context, id int64, status string, at time.Time) error {
	i, ok := m.Issues[id]
	if !ok || !i.IsActive() {
		return fmt.Errorf("active issue not found")
	}
	i.Status = status
	switch status {
	case issue.StatusSolved:
		t := at
		i.SolvedAt = &t
	case issue.StatusDropped:
		t := at
		i.DroppedAt = &t
	}
	return nil
}

// MockAlertRepository is a mock implementation of alert.Repository
type MockAlertRepository struct {
	Alerts      map[int64]*alert.Alert
	NextID      int64
	CreateError error
	GetError    error
}

func NewMockAlertRepository() *MockAlertRepository {
	return &MockAlertRepository{
		Alerts: make(map[int64]*alert.Alert),
		NextID: 1,
	}
}

func (m *MockAlertRepository) Create(ctx context.Context, a *alert.Alert) (int64, error) {
	if m.CreateError != nil {
		return 0, m.CreateError
	}
	a.ID = m.NextID
	m.NextID++
	if a.Status == "" {
		a.Status = alert.StatusActive
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	m.Alerts[a.ID] = a
	return a.ID, nil
}

func (m *MockAlertRepository) GetByID(ctx context.Context, id int64) (*alert.Alert, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	a, ok := m.Alerts[id]
	if !ok {
		return nil, fmt.Errorf("alert not found")
	}
	return a, nil
}

func (m *MockAlertRepository) GetOpen(ctx context.Context, monitorID int64) (*alert.Alert, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	var open *alert.Alert
	for _, a := range m.Alerts {
		if a.MonitorID != monitorID || !a.IsOpen() {
			continue
		}
		if open == nil || a.ID < open.ID {
			open = a
		}
	}
	return open, nil
}

func (m *MockAlertRepository) ListActive(ctx context.Context, monitorID int64) ([]*alert.Alert, error) {
	var result []*alert.Alert
	for _, a := range m.Alerts {
		if a.MonitorID == monitorID && a.Status == alert.StatusActive {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *MockAlertRepository) SetPriority(ctx context.Context, id int64, priority alert.Priority) error {
	a, ok := m.Alerts[id]
	if !ok {
		return fmt.Errorf("alert not found")
	}
	a.Priority = priority
	return nil
}

func (m *MockAlertRepository) SetAcknowledged(ctx context.Context, id int64, acknowledged bool, atPriority *alert.Priority) error {
	a, ok := m.Alerts[id]
	if !ok {
		return fmt.Errorf("alert not found")
	}
	a.Acknowledged = acknowledged
	a.AcknowledgePriority = atPriority
	return nil
}

func (m *MockAlertRepository) SetLocked(ctx context.Context, id int64, locked bool) error {
	a, ok := m.Alerts[id]
	if !ok {
		return fmt.Errorf("alert not found")
	}
	a.Locked = locked
	return nil
}

func (m *MockAlertRepository) Solve(ctx context.Context, id int64, at time.Time) error {
	a, ok := m.Alerts[id]
	if !ok || a.Status != alert.StatusActive {
		return fmt.Errorf("active alert not found")
	}
	a.Status = alert.StatusSolved
	t := at
	a.SolvedAt = &t
	return nil
}

// MockNotificationRepository is a mock implementation of
// notification.Repository. ListActiveWithSolvedAlert joins against the
// optional Alerts mock
type MockNotificationRepository struct {
	Notifications map[int64]*notification.Notification
	Alerts        *MockAlertRepository
	NextID        int64
	CreateError   error
}

func NewMockNotificationRepository() *MockNotificationRepository {
	return &MockNotificationRepository{
		Notifications: make(map[int64]*notification.Notification),
		NextID:        1,
	}
}

func (m *MockNotificationRepository) Create(ctx context.Context, n *notification.Notification) (int64, error) {
	if m.CreateError != nil {
		return 0, m.CreateError
	}
	n.ID = m.NextID
	m.NextID++
	if n.Status == "" {
		n.Status = notification.StatusActive
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	m.Notifications[n.ID] = n
	return n.ID, nil
}

func (m *MockNotificationRepository) GetByID(ctx context.Context, id int64) (*notification.Notification, error) {
	n, ok := m.Notifications[id]
	if !ok {
		return nil, fmt.Errorf("notification not found")
	}
	return n, nil
}

func (m *MockNotificationRepository) GetActiveByAlertTarget(ctx context.Context, alertID int64, target string) (*notification.Notification, error) {
	for _, n := range m.Notifications {
		if n.AlertID == alertID && n.Target == target && n.Status == notification.StatusActive {
			return n, nil
		}
	}
	return nil, nil
}

func (m *MockNotificationRepository) ListActiveWithSolvedAlert(ctx context.Context, solvedFor time.Duration, now time.Time) ([]*notification.Notification, error) {
	if m.Alerts == nil {
		return nil, nil
	}
	cutoff := now.Add(-solvedFor)
	var result []*notification.Notification
	for _, n := range m.Notifications {
		if n.Status != notification.StatusActive {
			continue
		}
		a, ok := m.Alerts.Alerts[n.AlertID]
		if !ok || a.Status != alert.StatusSolved || a.SolvedAt == nil {
			continue
		}
		if a.SolvedAt.Before(cutoff) {
			result = append(result, n)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *MockNotificationRepository) Close(ctx context.Context, id int64, at time.Time) error {
	n, ok := m.Notifications[id]
	if !ok || n.Status != notification.StatusActive {
		return fmt.Errorf("active notification not found")
	}
	n.Status = notification.StatusClosed
	t := at
	n.ClosedAt = &t
	return nil
}

// MockEventRepository is a mock implementation of event.Repository
type MockEventRepository struct {
	Events      []*event.Event
	NextID      int64
	CreateError error
}

func NewMockEventRepository() *MockEventRepository {
	return &MockEventRepository{NextID: 1}
}

func (m *MockEventRepository) Create(ctx context.Context, e *event.Event) error {
	if m.CreateError != nil {
		return m.CreateError
	}
	if e.ID == "" {
		e.ID = fmt.Sprintf("event-%d", m.NextID)
	}
	m.NextID++
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	m.Events = append(m.Events, e)
	return nil
}

func (m *MockEventRepository) ListPending(ctx context.Context, limit int) ([]*event.Event, error) {
	var result []*event.Event
	for _, e := range m.Events {
		if !e.Pending {
			continue
		}
		result = append(result, e)
		if len(result) == limit {
			break
		}
	}
	return result, nil
}

func (m *MockEventRepository) MarkPublished(ctx context.Context, id string) error {
	for _, e := range m.Events {
		if e.ID == id {
			e.Pending = false
			return nil
		}
	}
	return fmt.Errorf("event not found")
}

// Names returns the recorded event names in order, for assertions
func (m *MockEventRepository) Names() []string {
	names := make([]string, 0, len(m.Events))
	for _, e := range m.Events {
		names = append(names, e.Name)
	}
	return names
}

// MockVariableRepository is a mock implementation of variable.Repository
type MockVariableRepository struct {
	Variables map[string]*variable.Variable
}

func NewMockVariableRepository() *MockVariableRepository {
	return &MockVariableRepository{Variables: make(map[string]*variable.Variable)}
}

func variableKey(monitorID int64, name string) string {
	return fmt.Sprintf("%d/%s", monitorID, name)
}

func (m *MockVariableRepository) Get(ctx context.Context, monitorID int64, name string) (*variable.Variable, error) {
	return m.Variables[variableKey(monitorID, name)], nil
}

func (m *MockVariableRepository) Set(ctx context.Context, monitorID int64, name, value string) error {
	m.Variables[variableKey(monitorID, name)] = &variable.Variable{
		MonitorID: monitorID,
		Name:      name,
		Value:     value,
		UpdatedAt: time.Now(),
	}
	return nil
}

// MockExecutionRepository is a mock implementation of execution.Repository
type MockExecutionRepository struct {
	Executions []*execution.MonitorExecution
	NextID     int64
}

func NewMockExecutionRepository() *MockExecutionRepository {
	return &MockExecutionRepository{NextID: 1}
}

func (m *MockExecutionRepository) Create(ctx context.Context, e *execution.MonitorExecution) (int64, error) {
	e.ID = m.NextID
	m.NextID++
	m.Executions = append(m.Executions, e)
	return e.ID, nil
}

func (m *MockExecutionRepository) ListByMonitor(ctx context.Context, monitorID int64, limit int) ([]*execution.MonitorExecution, error) {
	var result []*execution.MonitorExecution
	for i := len(m.Executions) - 1; i >= 0; i-- {
		if m.Executions[i].MonitorID != monitorID {
			continue
		}
		result = append(result, m.Executions[i])
		if len(result) == limit {
			break
		}
	}
	return result, nil
}

// MockQueue is an in-memory queue.Queue that records everything sent.
// Receive pops immediately without waiting
type MockQueue struct {
	Messages  []*queue.Message
	Acked     []*queue.Message
	Nacked    []*queue.Message
	NextID    int64
	SendError error
}

func NewMockQueue() *MockQueue {
	return &MockQueue{NextID: 1}
}

func (q *MockQueue) Send(ctx context.Context, kind queue.Kind, payload interface{}) error {
	if q.SendError != nil {
		return q.SendError
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	q.Messages = append(q.Messages, &queue.Message{
		ID:   fmt.Sprintf("msg-%d", q.NextID),
		Kind: kind,
		Body: raw,
	})
	q.NextID++
	return nil
}

func (q *MockQueue) Receive(ctx context.Context, wait time.Duration) (*queue.Message, error) {
	if len(q.Messages) == 0 {
		return nil, nil
	}
	msg := q.Messages[0]
	q.Messages = q.Messages[1:]
	msg.DeliveryCount++
	return msg, nil
}

func (q *MockQueue) ExtendVisibility(ctx context.Context, msg *queue.Message, d time.Duration) error {
	return nil
}

func (q *MockQueue) Ack(ctx context.Context, msg *queue.Message) error {
	q.Acked = append(q.Acked, msg)
	return nil
}

func (q *MockQueue) Nack(ctx context.Context, msg *queue.Message) error {
	q.Nacked = append(q.Nacked, msg)
	q.Messages = append(q.Messages, msg)
	return nil
}

// SentKinds returns the kinds of the messages still queued, in order
func (q *MockQueue) SentKinds() []queue.Kind {
	kinds := make([]queue.Kind, 0, len(q.Messages))
	for _, msg := range q.Messages {
		kinds = append(kinds, msg.Kind)
	}
	return kinds
}
