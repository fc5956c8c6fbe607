// Package engine runs workflow graphs: breadth-first traversal with
// dependency tracking, branch selection, error policies and debug hooks.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/botflow-io/botflow/internal/node/runtime"
	"github.com/botflow-io/botflow/internal/platform/logger"
	"github.com/botflow-io/botflow/internal/platform/metrics"
	"github.com/botflow-io/botflow/internal/workflow/domain/model"
)

// Hook observes node transitions. BeforeNode may block (the debugger
// suspends executions there) and may return an error to abort the run.
type Hook interface {
	BeforeNode(ctx context.Context, nodeID string, ec *model.ExecutionContext) error
	AfterNode(ctx context.Context, nodeID string, status model.NodeStatus, output map[string]any)
}

// Executor runs one workflow. It is built per execution: the graph
// indices are derived once and the execution context lives for exactly
// one Execute call.
type Executor struct {
	workflow *model.Workflow
	registry *runtime.Registry
	deps     runtime.Deps
	log      logger.Logger
	metrics  *metrics.Metrics
	hook     Hook

	executionID string
	ec          *model.ExecutionContext

	nodeMap        map[string]model.Node
	edgeMap        map[string][]model.Edge
	reverseEdgeMap map[string][]model.Edge
}

// NewExecutor builds an executor with derived graph indices.
func NewExecutor(w *model.Workflow, reg *runtime.Registry, deps runtime.Deps, log logger.Logger) *Executor {
	e := &Executor{
		workflow:       w,
		registry:       reg,
		deps:           deps,
		log:            log,
		executionID:    uuid.New().String(),
		nodeMap:        make(map[string]model.Node, len(w.Nodes)),
		edgeMap:        make(map[string][]model.Edge),
		reverseEdgeMap: make(map[string][]model.Edge),
	}
	for _, n := range w.Nodes {
		e.nodeMap[n.ID] = n
	}
	for _, edge := range w.Edges {
		e.edgeMap[edge.Source] = append(e.edgeMap[edge.Source], edge)
		e.reverseEdgeMap[edge.Target] = append(e.reverseEdgeMap[edge.Target], edge)
	}
	return e
}

// WithHook installs a transition hook. Must be called before Execute.
func (e *Executor) WithHook(h Hook) *Executor {
	e.hook = h
	return e
}

// WithMetrics installs execution metrics. Must be called before Execute.
func (e *Executor) WithMetrics(m *metrics.Metrics) *Executor {
	e.metrics = m
	return e
}

// ExecutionID returns the id assigned to this run.
func (e *Executor) ExecutionID() string {
	return e.executionID
}

// Context returns the live execution context, nil before Execute starts.
func (e *Executor) Context() *model.ExecutionContext {
	return e.ec
}

// Execute runs the workflow for the given trigger. Precondition failures
// (inactive workflow, no matching start node) return an error and no
// result; everything after that point is reported through the result,
// with node failures captured in the context rather than escaping.
func (e *Executor) Execute(ctx context.Context, trigger model.TriggerType, triggerData map[string]any) (*model.ExecutionResult, error) {
	if e.workflow.Status != model.WorkflowStatusActive {
		return nil, fmt.Errorf("%w: status is %s", ErrWorkflowNotActive, e.workflow.Status)
	}

	starts := e.workflow.StartNodes(trigger)
	if len(starts) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoStartNode, trigger)
	}

	e.ec = model.NewExecutionContext(e.executionID, e.workflow, trigger, triggerData)
	e.log.Info("workflow execution started",
		"workflow_id", e.workflow.ID,
		"execution_id", e.executionID,
		"trigger", string(trigger),
	)
	if e.metrics != nil {
		e.metrics.ExecutionsInProgress.Inc()
		defer e.metrics.ExecutionsInProgress.Dec()
	}

	skipped, runErr := e.run(ctx, starts)

	status := model.ExecutionSuccess
	errMsg := ""
	switch {
	case runErr == nil:
	case ctx.Err() != nil:
		status = model.ExecutionCancelled
		errMsg = "cancelled"
		e.ec.RecordError("", "cancelled")
	default:
		status = model.ExecutionFailed
		errMsg = runErr.Error()
	}

	finished := time.Now()
	elapsed := finished.Sub(e.ec.StartedAt)
	result := &model.ExecutionResult{
		ExecutionID:   e.executionID,
		WorkflowID:    e.workflow.ID,
		Status:        status,
		Error:         errMsg,
		ExecutedNodes: e.ec.ExecutedNodes,
		SkippedNodes:  skipped,
		Errors:        e.ec.Errors,
		NodeOutputs:   e.ec.NodeOutputs,
		Variables:     e.ec.VariableValues(),
		MessagesSent:  e.ec.MessagesSent,
		StartedAt:     e.ec.StartedAt,
		FinishedAt:    finished,
		DurationMS:    elapsed.Milliseconds(),
	}

	if e.metrics != nil {
		e.metrics.ExecutionsTotal.WithLabelValues(e.workflow.ID, string(trigger), string(status)).Inc()
		e.metrics.ExecutionDuration.WithLabelValues(e.workflow.ID, string(status)).Observe(elapsed.Seconds())
	}
	e.log.Info("workflow execution finished",
		"execution_id", e.executionID,
		"status", string(status),
		"executed_nodes", len(result.ExecutedNodes),
	)
	return result, nil
}

// run drives the breadth-first traversal and returns the nodes skipped
// by error policy, in traversal order. A node popped before all of its
// dependencies have executed is re-queued; when a full cycle of pops
// makes no progress the remaining work can never become ready and the
// run aborts with ErrUnsatisfiableDependencies.
func (e *Executor) run(ctx context.Context, starts []model.Node) ([]string, error) {
	queue := make([]string, 0, len(starts))
	for _, n := range starts {
		queue = append(queue, n.ID)
	}
	executed := make(map[string]bool)
	skipped := make(map[string]bool)
	var skippedOrder []string
	stalled := 0

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return skippedOrder, err
		}

		nodeID := queue[0]
		queue = queue[1:]

		if executed[nodeID] || skipped[nodeID] {
			continue
		}
		node, ok := e.nodeMap[nodeID]
		if !ok {
			continue
		}

		if !e.ready(nodeID, executed, skipped) {
			queue = append(queue, nodeID)
			stalled++
			if stalled >= len(queue) {
				e.ec.RecordError(nodeID, ErrUnsatisfiableDependencies.Error())
				return skippedOrder, ErrUnsatisfiableDependencies
			}
			continue
		}
		stalled = 0

		status, output, err := e.executeNode(ctx, node)
		if err != nil {
			return skippedOrder, err
		}

		common := model.ParseCommon(node.Config)
		switch status {
		case model.NodeStatusSuccess:
			executed[nodeID] = true
			e.ec.RecordOutput(nodeID, output)
		case model.NodeStatusCancelled:
			return skippedOrder, context.Canceled
		case model.NodeStatusFailed:
			msg := "node failed"
			if m, ok := output["error"].(string); ok {
				msg = m
			}
			e.ec.RecordError(nodeID, msg)
			switch common.ErrorPolicy {
			case model.ErrorPolicyStop:
				return skippedOrder, fmt.Errorf("%w: node %s: %s", ErrNodeFailed, nodeID, msg)
			case model.ErrorPolicySkip:
				// Downstream still runs, but this node contributes no
				// output and never counts as executed.
				skipped[nodeID] = true
				skippedOrder = append(skippedOrder, nodeID)
				for _, edge := range e.edgeMap[nodeID] {
					queue = append(queue, edge.Target)
				}
				continue
			case model.ErrorPolicyContinue:
				executed[nodeID] = true
				e.ec.RecordOutput(nodeID, output)
			}
		}

		for _, edge := range e.selectEdges(node, e.ec.NodeOutputs[nodeID]) {
			queue = append(queue, edge.Target)
		}
	}
	return skippedOrder, nil
}

// ready reports whether every upstream node has finished. Skipped nodes
// count as finished so a skip does not starve its descendants.
func (e *Executor) ready(nodeID string, executed, skipped map[string]bool) bool {
	for _, edge := range e.reverseEdgeMap[nodeID] {
		if !executed[edge.Source] && !skipped[edge.Source] {
			return false
		}
	}
	return true
}

// executeNode resolves the handler and runs it with the node's timeout,
// retrying failed attempts up to the configured retry count. The handler
// contract keeps panics and errors inside: anything unexpected surfaces
// as a failed status.
func (e *Executor) executeNode(ctx context.Context, node model.Node) (model.NodeStatus, map[string]any, error) {
	if e.hook != nil {
		if err := e.hook.BeforeNode(ctx, node.ID, e.ec); err != nil {
			return model.NodeStatusCancelled, nil, err
		}
	}

	handler, err := e.registry.Resolve(node, e.deps)
	if err != nil {
		return model.NodeStatusFailed, map[string]any{"error": err.Error()}, nil
	}

	common := model.ParseCommon(node.Config)

	// Condition clauses read the node's own output slot, which holds the
	// upstream output until the handler overwrites it.
	if node.Type == model.NodeTypeCondition {
		e.ec.NodeOutputs[node.ID] = e.ec.LastOutput()
	}

	var status model.NodeStatus
	var output map[string]any
	attempts := 1 + common.Retry
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return model.NodeStatusCancelled, nil, nil
		}

		nodeCtx := ctx
		cancel := func() {}
		if common.Timeout > 0 {
			nodeCtx, cancel = context.WithTimeout(ctx, common.Timeout)
		}

		start := time.Now()
		status, output = handler.Execute(nodeCtx, e.ec)
		cancel()

		if e.metrics != nil {
			e.metrics.NodeExecutionsTotal.WithLabelValues(string(node.Type), string(status)).Inc()
			e.metrics.NodeExecutionDuration.WithLabelValues(string(node.Type)).Observe(time.Since(start).Seconds())
		}
		if status != model.NodeStatusFailed {
			break
		}
		if attempt < attempts-1 {
			e.log.Warn("node attempt failed, retrying",
				"node_id", node.ID,
				"attempt", attempt+1,
			)
		}
	}
	if output == nil {
		output = map[string]any{}
	}

	if e.hook != nil {
		e.hook.AfterNode(ctx, node.ID, status, output)
	}
	return status, output, nil
}

// selectEdges picks the outgoing edges to follow. Branching nodes follow
// only the edges whose label matches the branch output (unlabeled edges
// match the "default" branch); other nodes follow every edge whose
// condition holds against the node output.
func (e *Executor) selectEdges(node model.Node, output map[string]any) []model.Edge {
	edges := e.edgeMap[node.ID]
	if node.Type.IsBranching() {
		branch, _ := output["branch"].(string)
		var selected []model.Edge
		for _, edge := range edges {
			if edge.Label == branch || (edge.Label == "" && branch == "default") {
				selected = append(selected, edge)
			}
		}
		return selected
	}

	var selected []model.Edge
	for _, edge := range edges {
		if edge.Condition != nil && !edge.Condition.Evaluate(output) {
			continue
		}
		selected = append(selected, edge)
	}
	return selected
}
