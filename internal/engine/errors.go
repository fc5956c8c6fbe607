package engine

import "errors"

var (
	// ErrWorkflowNotActive is returned when execution is requested on a
	// workflow whose status is not active.
	ErrWorkflowNotActive = errors.New("workflow is not active")

	// ErrNoStartNode is returned when no start node matches the trigger.
	ErrNoStartNode = errors.New("no start node matches trigger")

	// ErrUnsatisfiableDependencies is recorded when queued nodes can
	// never become ready (their upstream nodes are unreachable).
	ErrUnsatisfiableDependencies = errors.New("unsatisfiable node dependencies")

	// ErrNodeFailed aborts an execution under the stop error policy.
	ErrNodeFailed = errors.New("node execution failed")
)
