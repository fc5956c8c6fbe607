package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/botflow-io/botflow/internal/platform/logger"
	"github.com/botflow-io/botflow/internal/workflow/domain/model"
)

// cronParser accepts standard 5-field specs plus descriptors like
// @hourly. CRON_TZ= prefixes select a per-entry timezone.
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ValidateCron checks a cron expression without scheduling it.
func ValidateCron(expr string) error {
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

// TriggerFunc is invoked on every firing of a scheduled workflow.
type TriggerFunc func(workflowID, nodeID, cronExpr string)

// Scheduler registers one cron entry per schedule_start node of each
// scheduled workflow.
type Scheduler struct {
	cron *cron.Cron
	log  logger.Logger

	mu      sync.Mutex
	entries map[string][]cron.EntryID // workflow id -> entry ids
}

// NewScheduler creates a scheduler running in the given timezone.
func NewScheduler(log logger.Logger, timezone string) (*Scheduler, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load scheduler timezone: %w", err)
	}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithParser(cronParser),
			cron.WithChain(cron.Recover(cronLogger{log})),
		),
		log:     log,
		entries: make(map[string][]cron.EntryID),
	}, nil
}

// Start begins firing entries in a background goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for in-flight jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Schedule registers every schedule_start node of the workflow. An
// invalid cron expression fails the whole call with nothing registered.
func (s *Scheduler) Schedule(w *model.Workflow, run TriggerFunc) error {
	type pending struct {
		nodeID string
		expr   string
	}
	var specs []pending
	for _, n := range w.Nodes {
		if n.Type != model.NodeTypeScheduleStart {
			continue
		}
		expr := model.ConfigString(n.Config, "cron_expression", "")
		if err := ValidateCron(expr); err != nil {
			return &model.ValidationError{
				Path:   fmt.Sprintf("nodes[%s].config.cron_expression", n.ID),
				Reason: err.Error(),
			}
		}
		specs = append(specs, pending{nodeID: n.ID, expr: expr})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	workflowID := w.ID
	for _, spec := range specs {
		nodeID, expr := spec.nodeID, spec.expr
		id, err := s.cron.AddFunc(expr, func() {
			run(workflowID, nodeID, expr)
		})
		if err != nil {
			s.removeLocked(workflowID)
			return fmt.Errorf("schedule workflow %s: %w", workflowID, err)
		}
		s.entries[workflowID] = append(s.entries[workflowID], id)
		s.log.Info("schedule registered",
			"workflow_id", workflowID,
			"node_id", nodeID,
			"cron", expr,
		)
	}
	return nil
}

// Unschedule removes all entries of the workflow.
func (s *Scheduler) Unschedule(workflowID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(workflowID)
}

// Scheduled reports whether the workflow has registered entries.
func (s *Scheduler) Scheduled(workflowID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries[workflowID]) > 0
}

func (s *Scheduler) removeLocked(workflowID string) {
	for _, id := range s.entries[workflowID] {
		s.cron.Remove(id)
	}
	delete(s.entries, workflowID)
}

// cronLogger adapts the platform logger to cron's logging interface.
type cronLogger struct {
	log logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.Error(msg, append(keysAndValues, "error", err.Error())...)
}
