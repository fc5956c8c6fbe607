// Package service hosts the workflow manager: the single owner of the
// in-memory workflow indices and the entry point for every lifecycle,
// execution and debug operation.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/botflow-io/botflow/internal/engine"
	"github.com/botflow-io/botflow/internal/node/runtime"
	"github.com/botflow-io/botflow/internal/platform/cache"
	"github.com/botflow-io/botflow/internal/platform/logger"
	"github.com/botflow-io/botflow/internal/platform/metrics"
	"github.com/botflow-io/botflow/internal/workflow/domain/model"
	"github.com/botflow-io/botflow/internal/workflow/domain/repository"
	"github.com/botflow-io/botflow/internal/workflow/serializer"
)

// UpdateRequest carries a partial update. Nil fields are left untouched.
type UpdateRequest struct {
	Name         *string
	Description  *string
	Nodes        *[]model.Node
	Edges        *[]model.Edge
	Variables    *map[string]model.VariableDef
	TriggerTypes *[]model.TriggerType
	Tags         *[]string
	Category     *string
}

// Manager owns all loaded workflows. Every index mutation goes through
// its mutex; executions themselves run outside the lock.
type Manager struct {
	store      repository.Store
	registry   *runtime.Registry
	deps       runtime.Deps
	scheduler  *engine.Scheduler
	serializer *serializer.Serializer
	cache      *cache.RedisCache
	metrics    *metrics.Metrics
	log        logger.Logger

	mu               sync.Mutex
	workflows        map[string]*model.Workflow
	botWorkflows     map[string][]string // bot id -> workflow ids
	activeExecutions map[string]context.CancelFunc
	sessions         map[string]*DebugSession
}

// NewManager wires the manager's collaborators. The scheduler, cache and
// metrics are optional.
func NewManager(
	store repository.Store,
	registry *runtime.Registry,
	deps runtime.Deps,
	sched *engine.Scheduler,
	c *cache.RedisCache,
	m *metrics.Metrics,
	log logger.Logger,
) *Manager {
	return &Manager{
		store:            store,
		registry:         registry,
		deps:             deps,
		scheduler:        sched,
		serializer:       serializer.New(log),
		cache:            c,
		metrics:          m,
		log:              log,
		workflows:        make(map[string]*model.Workflow),
		botWorkflows:     make(map[string][]string),
		activeExecutions: make(map[string]context.CancelFunc),
		sessions:         make(map[string]*DebugSession),
	}
}

// Initialize loads every stored workflow, rebuilds the indices and
// registers schedule entries for active scheduled workflows.
func (m *Manager) Initialize(ctx context.Context) error {
	workflows, err := m.store.List(ctx, repository.ListOptions{})
	if err != nil {
		return fmt.Errorf("load workflows: %w", err)
	}

	m.mu.Lock()
	for _, w := range workflows {
		m.indexLocked(w)
	}
	m.mu.Unlock()

	for _, w := range workflows {
		if w.Status == model.WorkflowStatusActive && w.HasTrigger(model.TriggerScheduled) {
			if err := m.scheduleWorkflow(w); err != nil {
				m.log.Warn("failed to restore schedule",
					"workflow_id", w.ID,
					"error", err.Error(),
				)
			}
		}
	}

	m.log.Info("workflow manager initialized", "workflows", len(workflows))
	return nil
}

// Create validates and persists a new workflow.
func (m *Manager) Create(ctx context.Context, w *model.Workflow) (*model.Workflow, error) {
	now := time.Now()
	if w.ID == "" {
		w.ID = uuid.New().String()
	}
	if w.Version == 0 {
		w.Version = 1
	}
	if w.Status == "" {
		w.Status = model.WorkflowStatusDraft
	}
	w.CreatedAt = now
	w.UpdatedAt = now

	if err := w.Validate(); err != nil {
		return nil, err
	}
	if err := m.store.Insert(ctx, w); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.indexLocked(w)
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.WorkflowsCreated.WithLabelValues(w.BotID).Inc()
	}
	m.log.Info("workflow created", "workflow_id", w.ID, "name", w.Name)
	return w, nil
}

// Get returns the workflow from the in-memory index, falling back to the
// store for ids loaded by another instance.
func (m *Manager) Get(ctx context.Context, id string) (*model.Workflow, error) {
	m.mu.Lock()
	w, ok := m.workflows[id]
	m.mu.Unlock()
	if ok {
		return w, nil
	}

	w, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.indexLocked(w)
	m.mu.Unlock()
	return w, nil
}

// List returns workflows, optionally filtered by bot and status.
func (m *Manager) List(ctx context.Context, botID string, status model.WorkflowStatus) ([]*model.Workflow, error) {
	return m.store.List(ctx, repository.ListOptions{BotID: botID, Status: status})
}

// Update applies a partial update, bumps the version through the store
// and refreshes indices and schedules.
func (m *Manager) Update(ctx context.Context, id string, req UpdateRequest) (*model.Workflow, error) {
	w, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	updated := *w
	if req.Name != nil {
		updated.Name = *req.Name
	}
	if req.Description != nil {
		updated.Description = *req.Description
	}
	if req.Nodes != nil {
		updated.Nodes = *req.Nodes
	}
	if req.Edges != nil {
		updated.Edges = *req.Edges
	}
	if req.Variables != nil {
		updated.Variables = *req.Variables
	}
	if req.TriggerTypes != nil {
		updated.TriggerTypes = *req.TriggerTypes
	}
	if req.Tags != nil {
		updated.Tags = *req.Tags
	}
	if req.Category != nil {
		updated.Category = *req.Category
	}

	if err := updated.Validate(); err != nil {
		return nil, err
	}

	version, err := m.store.Update(ctx, &updated)
	if err != nil {
		return nil, err
	}
	updated.Version = version
	updated.UpdatedAt = time.Now()

	m.mu.Lock()
	m.indexLocked(&updated)
	m.mu.Unlock()

	// A definition change may add or remove schedule nodes.
	if m.scheduler != nil && updated.Status == model.WorkflowStatusActive {
		m.scheduler.Unschedule(updated.ID)
		if updated.HasTrigger(model.TriggerScheduled) {
			if err := m.scheduleWorkflow(&updated); err != nil {
				m.log.Warn("failed to reschedule workflow",
					"workflow_id", updated.ID,
					"error", err.Error(),
				)
			}
		}
	}

	m.log.Info("workflow updated", "workflow_id", updated.ID, "version", version)
	return &updated, nil
}

// Delete removes the workflow, its schedules, indices and stored
// execution records.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if m.scheduler != nil {
		m.scheduler.Unschedule(id)
	}

	if err := m.store.Delete(ctx, id); err != nil {
		return err
	}

	m.mu.Lock()
	if w, ok := m.workflows[id]; ok {
		m.unbindLocked(w.BotID, id)
		delete(m.workflows, id)
	}
	m.mu.Unlock()

	m.log.Info("workflow deleted", "workflow_id", id)
	return nil
}

// Activate marks the workflow active and registers its schedules. A
// workflow with an invalid cron expression fails activation unchanged.
func (m *Manager) Activate(ctx context.Context, id string) (*model.Workflow, error) {
	w, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	for _, n := range w.Nodes {
		if n.Type == model.NodeTypeScheduleStart {
			expr := model.ConfigString(n.Config, "cron_expression", "")
			if err := engine.ValidateCron(expr); err != nil {
				return nil, &model.ValidationError{
					Path:   fmt.Sprintf("nodes[%s].config.cron_expression", n.ID),
					Reason: err.Error(),
				}
			}
		}
	}

	updated := *w
	updated.Status = model.WorkflowStatusActive
	version, err := m.store.Update(ctx, &updated)
	if err != nil {
		return nil, err
	}
	updated.Version = version
	updated.UpdatedAt = time.Now()

	m.mu.Lock()
	m.indexLocked(&updated)
	m.mu.Unlock()

	if updated.HasTrigger(model.TriggerScheduled) {
		if err := m.scheduleWorkflow(&updated); err != nil {
			return nil, err
		}
	}

	if m.metrics != nil {
		m.metrics.WorkflowsActivated.WithLabelValues(id).Inc()
	}
	m.log.Info("workflow activated", "workflow_id", id)
	return &updated, nil
}

// Deactivate marks the workflow inactive and drops its schedules.
func (m *Manager) Deactivate(ctx context.Context, id string) (*model.Workflow, error) {
	w, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if m.scheduler != nil {
		m.scheduler.Unschedule(id)
	}

	updated := *w
	updated.Status = model.WorkflowStatusInactive
	version, err := m.store.Update(ctx, &updated)
	if err != nil {
		return nil, err
	}
	updated.Version = version
	updated.UpdatedAt = time.Now()

	m.mu.Lock()
	m.indexLocked(&updated)
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.WorkflowsDeactivated.WithLabelValues(id).Inc()
	}
	m.log.Info("workflow deactivated", "workflow_id", id)
	return &updated, nil
}

// BindBot associates the workflow with a bot so message events for that
// bot reach it.
func (m *Manager) BindBot(ctx context.Context, id, botID string) (*model.Workflow, error) {
	w, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	updated := *w
	oldBot := updated.BotID
	updated.BotID = botID
	version, err := m.store.Update(ctx, &updated)
	if err != nil {
		return nil, err
	}
	updated.Version = version

	m.mu.Lock()
	m.unbindLocked(oldBot, id)
	m.indexLocked(&updated)
	m.mu.Unlock()
	return &updated, nil
}

// UnbindBot clears the bot association.
func (m *Manager) UnbindBot(ctx context.Context, id string) (*model.Workflow, error) {
	return m.BindBot(ctx, id, "")
}

// Import parses a YAML document into a new stored workflow. The imported
// definition always starts as a fresh draft with a new id.
func (m *Manager) Import(ctx context.Context, data []byte) (*model.Workflow, error) {
	w, err := m.serializer.Deserialize(data)
	if err != nil {
		return nil, err
	}
	w.ID = ""
	w.Status = model.WorkflowStatusDraft
	w.Version = 1
	return m.Create(ctx, w)
}

// Export renders the workflow as a YAML document.
func (m *Manager) Export(ctx context.Context, id string) ([]byte, error) {
	w, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.serializer.Serialize(w)
}

// HandleMessageEvent runs every active workflow bound to the bot that
// declares the event's trigger type. Results come back in the order the
// workflows were bound.
func (m *Manager) HandleMessageEvent(ctx context.Context, botID string, eventType model.TriggerType, eventData map[string]any) ([]*model.ExecutionResult, error) {
	m.mu.Lock()
	ids := append([]string(nil), m.botWorkflows[botID]...)
	m.mu.Unlock()

	var results []*model.ExecutionResult
	for _, id := range ids {
		m.mu.Lock()
		w, ok := m.workflows[id]
		m.mu.Unlock()
		if !ok || w.Status != model.WorkflowStatusActive || !w.HasTrigger(eventType) {
			continue
		}
		res, err := m.ExecuteWorkflow(ctx, id, eventType, eventData)
		if err != nil {
			m.log.Error("workflow trigger failed",
				"workflow_id", id,
				"bot_id", botID,
				"error", err.Error(),
			)
			continue
		}
		results = append(results, res)
	}
	return results, nil
}

// ExecuteWorkflow runs the workflow synchronously, persists an execution
// record and caches the result when a cache is configured.
func (m *Manager) ExecuteWorkflow(ctx context.Context, id string, trigger model.TriggerType, triggerData map[string]any) (*model.ExecutionResult, error) {
	w, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	ex := engine.NewExecutor(w, m.registry, m.deps, m.log)
	if m.metrics != nil {
		ex.WithMetrics(m.metrics)
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.activeExecutions[ex.ExecutionID()] = cancel
	m.mu.Unlock()
	defer func() {
		cancel()
		m.mu.Lock()
		delete(m.activeExecutions, ex.ExecutionID())
		m.mu.Unlock()
	}()

	result, err := ex.Execute(runCtx, trigger, triggerData)
	if err != nil {
		return nil, err
	}

	m.persistResult(ctx, result, trigger, triggerData)
	return result, nil
}

// CancelExecution cancels a running execution by id.
func (m *Manager) CancelExecution(executionID string) bool {
	m.mu.Lock()
	cancel, ok := m.activeExecutions[executionID]
	m.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// ListExecutions returns recent execution records for the workflow.
func (m *Manager) ListExecutions(ctx context.Context, id string, limit int) ([]*model.ExecutionRecord, error) {
	if _, err := m.Get(ctx, id); err != nil {
		return nil, err
	}
	return m.store.ListExecutions(ctx, id, limit)
}

// NodeManifests lists the registered node types.
func (m *Manager) NodeManifests() []runtime.Manifest {
	return m.registry.List()
}

// scheduleWorkflow registers cron entries that call back into the
// execute path with a scheduled trigger.
func (m *Manager) scheduleWorkflow(w *model.Workflow) error {
	if m.scheduler == nil {
		return nil
	}
	return m.scheduler.Schedule(w, func(workflowID, nodeID, cronExpr string) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		_, err := m.ExecuteWorkflow(ctx, workflowID, model.TriggerScheduled, map[string]any{
			"cron":    cronExpr,
			"node_id": nodeID,
		})
		if err != nil {
			m.log.Error("scheduled execution failed",
				"workflow_id", workflowID,
				"node_id", nodeID,
				"error", err.Error(),
			)
		}
	})
}

func (m *Manager) persistResult(ctx context.Context, result *model.ExecutionResult, trigger model.TriggerType, triggerData map[string]any) {
	rec := model.RecordFromResult(result, trigger, triggerData)
	if err := m.store.InsertExecution(ctx, rec); err != nil {
		m.log.Error("failed to persist execution record",
			"execution_id", result.ExecutionID,
			"error", err.Error(),
		)
	}

	if m.cache != nil {
		if err := m.cache.Set(ctx, "execution:"+result.ExecutionID, result, 0); err != nil {
			m.log.Warn("failed to cache execution result",
				"execution_id", result.ExecutionID,
				"error", err.Error(),
			)
		}
	}
}

// indexLocked refreshes the workflow and bot indices. Callers hold mu.
func (m *Manager) indexLocked(w *model.Workflow) {
	if old, ok := m.workflows[w.ID]; ok && old.BotID != w.BotID {
		m.unbindLocked(old.BotID, w.ID)
	}
	m.workflows[w.ID] = w
	if w.BotID != "" {
		for _, id := range m.botWorkflows[w.BotID] {
			if id == w.ID {
				return
			}
		}
		m.botWorkflows[w.BotID] = append(m.botWorkflows[w.BotID], w.ID)
	}
}

// unbindLocked removes the workflow from a bot's list. Callers hold mu.
func (m *Manager) unbindLocked(botID, workflowID string) {
	if botID == "" {
		return
	}
	ids := m.botWorkflows[botID]
	for i, id := range ids {
		if id == workflowID {
			m.botWorkflows[botID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(m.botWorkflows[botID]) == 0 {
		delete(m.botWorkflows, botID)
	}
}
