package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/botflow-io/botflow/internal/engine"
	"github.com/botflow-io/botflow/internal/workflow/domain/model"
	"github.com/botflow-io/botflow/internal/workflow/domain/repository"
)

// DebugSessionStatus is the lifecycle state of a debug session.
type DebugSessionStatus string

const (
	DebugSessionRunning   DebugSessionStatus = "running"
	DebugSessionCompleted DebugSessionStatus = "completed"
	DebugSessionFailed    DebugSessionStatus = "failed"
	DebugSessionStopped   DebugSessionStatus = "stopped"
)

// DebugSession tracks one debugged execution. The run happens on its own
// goroutine; the session outlives it so the final state stays
// inspectable until the session is removed.
type DebugSession struct {
	ID         string
	WorkflowID string
	StartedAt  time.Time

	debugger *engine.Debugger
	cancel   context.CancelFunc
	done     chan struct{}

	mu     sync.Mutex
	status DebugSessionStatus
	result *model.ExecutionResult
	err    error
}

// Status returns the session lifecycle state.
func (s *DebugSession) Status() DebugSessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Result returns the final result once the run completed.
func (s *DebugSession) Result() (*model.ExecutionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result, s.err
}

// Snapshot returns the current execution state.
func (s *DebugSession) Snapshot() engine.Snapshot {
	return s.debugger.Snapshot()
}

// Wait blocks until the debugged run finishes or ctx expires.
func (s *DebugSession) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *DebugSession) finish(result *model.ExecutionResult, err error) {
	s.mu.Lock()
	s.result = result
	s.err = err
	switch {
	case err != nil:
		s.status = DebugSessionFailed
	case result != nil && result.Status == model.ExecutionFailed:
		s.status = DebugSessionFailed
	case result != nil && result.Status == model.ExecutionCancelled:
		s.status = DebugSessionStopped
	default:
		s.status = DebugSessionCompleted
	}
	s.mu.Unlock()
	close(s.done)
}

// DebugWorkflow starts a debugged execution in the background and
// returns the session handle. With step mode on, the run pauses before
// the first node; otherwise it runs until the first breakpoint.
func (m *Manager) DebugWorkflow(ctx context.Context, id string, trigger model.TriggerType, triggerData map[string]any, breakpoints []string, stepMode bool) (*DebugSession, error) {
	w, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	ex := engine.NewExecutor(w, m.registry, m.deps, m.log)
	if m.metrics != nil {
		ex.WithMetrics(m.metrics)
	}
	dbg := engine.NewDebugger(ex)
	for _, nodeID := range breakpoints {
		dbg.AddBreakpoint(nodeID)
	}
	if stepMode {
		dbg.EnableStepMode()
	}

	runCtx, cancel := context.WithCancel(context.Background())
	session := &DebugSession{
		ID:         uuid.New().String(),
		WorkflowID: id,
		StartedAt:  time.Now(),
		debugger:   dbg,
		cancel:     cancel,
		done:       make(chan struct{}),
		status:     DebugSessionRunning,
	}

	m.mu.Lock()
	m.sessions[session.ID] = session
	m.mu.Unlock()

	go func() {
		result, err := ex.Execute(runCtx, trigger, triggerData)
		if result != nil {
			m.persistResult(context.Background(), result, trigger, triggerData)
		}
		session.finish(result, err)
		m.log.Info("debug session finished",
			"session_id", session.ID,
			"status", string(session.Status()),
		)
	}()

	m.log.Info("debug session started",
		"session_id", session.ID,
		"workflow_id", id,
		"breakpoints", len(breakpoints),
		"step_mode", stepMode,
	)
	return session, nil
}

// Session returns a debug session by id.
func (m *Manager) Session(sessionID string) (*DebugSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("debug session %s: %w", sessionID, repository.ErrNotFound)
	}
	return s, nil
}

// StepSession advances a paused session by one node.
func (m *Manager) StepSession(sessionID string) error {
	s, err := m.Session(sessionID)
	if err != nil {
		return err
	}
	s.debugger.EnableStepMode()
	s.debugger.Step()
	return nil
}

// ContinueSession resumes a paused session until the next breakpoint.
func (m *Manager) ContinueSession(sessionID string) error {
	s, err := m.Session(sessionID)
	if err != nil {
		return err
	}
	s.debugger.Continue()
	return nil
}

// SnapshotSession captures the session's execution state.
func (m *Manager) SnapshotSession(sessionID string) (engine.Snapshot, error) {
	s, err := m.Session(sessionID)
	if err != nil {
		return engine.Snapshot{}, err
	}
	return s.Snapshot(), nil
}

// StopSession cancels the debugged run and removes the session.
func (m *Manager) StopSession(sessionID string) error {
	s, err := m.Session(sessionID)
	if err != nil {
		return err
	}
	s.cancel()
	s.debugger.Continue()

	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
	return nil
}
