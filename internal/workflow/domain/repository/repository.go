// Package repository defines the persistence contract for workflows.
package repository

import (
	"context"
	"errors"

	"github.com/botflow-io/botflow/internal/workflow/domain/model"
)

// ErrNotFound is returned when a workflow or execution does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when inserting a workflow whose id exists.
var ErrDuplicate = errors.New("already exists")

// ListOptions filters and orders List results.
type ListOptions struct {
	BotID     string
	Status    model.WorkflowStatus
	SortBy    string // created_at, updated_at, name; default updated_at
	SortOrder string // asc or desc; default desc
}

// Store persists workflow definitions and execution records. Adapters
// translate between the domain model and their storage shape at this
// boundary only; nothing above it sees storage field names.
type Store interface {
	List(ctx context.Context, opts ListOptions) ([]*model.Workflow, error)
	Get(ctx context.Context, id string) (*model.Workflow, error)
	Insert(ctx context.Context, w *model.Workflow) error

	// Update writes the mutable fields and atomically bumps the stored
	// version, returning the new version.
	Update(ctx context.Context, w *model.Workflow) (int, error)

	// Delete removes the workflow and all of its execution records.
	Delete(ctx context.Context, id string) error

	InsertExecution(ctx context.Context, rec *model.ExecutionRecord) error
	ListExecutions(ctx context.Context, workflowID string, limit int) ([]*model.ExecutionRecord, error)
}
