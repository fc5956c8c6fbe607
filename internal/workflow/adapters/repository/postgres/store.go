// Package postgres persists workflows in PostgreSQL. The storage shape
// differs from the domain model: the primary key column is uuid, the
// trigger type list is flattened to a single trigger_type column, and
// variables, tags and the full trigger list live inside the
// workflow_metadata JSON column. All translation happens here.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/botflow-io/botflow/internal/platform/database"
	"github.com/botflow-io/botflow/internal/workflow/domain/model"
	"github.com/botflow-io/botflow/internal/workflow/domain/repository"
)

// Store implements repository.Store on PostgreSQL.
type Store struct {
	db *database.DB
}

// NewStore creates a PostgreSQL-backed workflow store.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// rowMetadata is the workflow_metadata JSON payload. It carries every
// domain field that has no column of its own.
type rowMetadata struct {
	TriggerTypes []model.TriggerType          `json:"trigger_types,omitempty"`
	Variables    map[string]model.VariableDef `json:"variables,omitempty"`
	Tags         []string                     `json:"tags,omitempty"`
	Category     string                       `json:"category,omitempty"`
	CreatedBy    string                       `json:"created_by,omitempty"`
	Extra        map[string]any               `json:"extra,omitempty"`
}

const workflowColumns = `uuid, name, description, bot_id, trigger_type, nodes, edges, status, version, workflow_metadata, created_at, updated_at`

// Insert stores a new workflow.
func (s *Store) Insert(ctx context.Context, w *model.Workflow) error {
	nodesJSON, edgesJSON, metaJSON, err := encodeWorkflow(w)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO workflows (` + workflowColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = s.db.ExecContext(ctx, query,
		w.ID,
		w.Name,
		w.Description,
		database.NullString(w.BotID),
		string(flattenTrigger(w.TriggerTypes)),
		nodesJSON,
		edgesJSON,
		string(w.Status),
		w.Version,
		metaJSON,
		w.CreatedAt,
		w.UpdatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return fmt.Errorf("workflow %s: %w", w.ID, repository.ErrDuplicate)
		}
		return fmt.Errorf("failed to insert workflow: %w", err)
	}
	return nil
}

// Get loads a workflow by id.
func (s *Store) Get(ctx context.Context, id string) (*model.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE uuid = $1`
	w, err := scanWorkflow(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("workflow %s: %w", id, repository.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow: %w", err)
	}
	return w, nil
}

// List returns workflows matching the options.
func (s *Store) List(ctx context.Context, opts repository.ListOptions) ([]*model.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows`
	var args []any
	where := ""
	if opts.BotID != "" {
		args = append(args, opts.BotID)
		where = fmt.Sprintf(" WHERE bot_id = $%d", len(args))
	}
	if opts.Status != "" {
		args = append(args, string(opts.Status))
		if where == "" {
			where = fmt.Sprintf(" WHERE status = $%d", len(args))
		} else {
			where += fmt.Sprintf(" AND status = $%d", len(args))
		}
	}
	query += where + " ORDER BY " + sortColumn(opts.SortBy) + " " + sortOrder(opts.SortOrder)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	defer rows.Close()

	var out []*model.Workflow
	for rows.Next() {
		w, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// Update writes the mutable fields and bumps the version in the same
// statement, so concurrent updates can never produce the same version.
func (s *Store) Update(ctx context.Context, w *model.Workflow) (int, error) {
	nodesJSON, edgesJSON, metaJSON, err := encodeWorkflow(w)
	if err != nil {
		return 0, err
	}

	query := `
		UPDATE workflows
		SET name = $2,
		    description = $3,
		    bot_id = $4,
		    trigger_type = $5,
		    nodes = $6,
		    edges = $7,
		    status = $8,
		    workflow_metadata = $9,
		    updated_at = $10,
		    version = version + 1
		WHERE uuid = $1
		RETURNING version
	`
	var version int
	err = s.db.QueryRowContext(ctx, query,
		w.ID,
		w.Name,
		w.Description,
		database.NullString(w.BotID),
		string(flattenTrigger(w.TriggerTypes)),
		nodesJSON,
		edgesJSON,
		string(w.Status),
		metaJSON,
		time.Now(),
	).Scan(&version)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("workflow %s: %w", w.ID, repository.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to update workflow: %w", err)
	}
	return version, nil
}

// Delete removes the workflow and its execution records in one
// transaction, records first.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM workflow_execution_records WHERE workflow_uuid = $1`, id); err != nil {
			return fmt.Errorf("failed to delete execution records: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM workflows WHERE uuid = $1`, id)
		if err != nil {
			return fmt.Errorf("failed to delete workflow: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return fmt.Errorf("workflow %s: %w", id, repository.ErrNotFound)
		}
		return nil
	})
}

// InsertExecution stores a finished execution record.
func (s *Store) InsertExecution(ctx context.Context, rec *model.ExecutionRecord) error {
	triggerJSON, err := json.Marshal(rec.TriggerData)
	if err != nil {
		return fmt.Errorf("failed to serialize trigger data: %w", err)
	}
	pathJSON, err := json.Marshal(rec.ExecutedNodes)
	if err != nil {
		return fmt.Errorf("failed to serialize execution path: %w", err)
	}
	errsJSON, err := json.Marshal(rec.Errors)
	if err != nil {
		return fmt.Errorf("failed to serialize errors: %w", err)
	}

	query := `
		INSERT INTO workflow_execution_records (
			uuid, workflow_uuid, trigger_type, trigger_data,
			status, execution_path, errors, started_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = s.db.ExecContext(ctx, query,
		rec.ID,
		rec.WorkflowID,
		string(rec.TriggerType),
		triggerJSON,
		string(rec.Status),
		pathJSON,
		errsJSON,
		rec.StartedAt,
		rec.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert execution record: %w", err)
	}
	return nil
}

// ListExecutions returns the most recent execution records.
func (s *Store) ListExecutions(ctx context.Context, workflowID string, limit int) ([]*model.ExecutionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT uuid, workflow_uuid, trigger_type, trigger_data,
		       status, execution_path, errors, started_at, finished_at
		FROM workflow_execution_records
		WHERE workflow_uuid = $1
		ORDER BY started_at DESC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, workflowID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	defer rows.Close()

	var out []*model.ExecutionRecord
	for rows.Next() {
		var (
			rec         model.ExecutionRecord
			triggerType string
			status      string
			triggerJSON []byte
			pathJSON    []byte
			errsJSON    []byte
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.WorkflowID,
			&triggerType,
			&triggerJSON,
			&status,
			&pathJSON,
			&errsJSON,
			&rec.StartedAt,
			&rec.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan execution record: %w", err)
		}
		rec.TriggerType = model.TriggerType(triggerType)
		rec.Status = model.ExecutionStatus(status)
		if err := json.Unmarshal(triggerJSON, &rec.TriggerData); err != nil {
			return nil, fmt.Errorf("failed to parse trigger data: %w", err)
		}
		if err := json.Unmarshal(pathJSON, &rec.ExecutedNodes); err != nil {
			return nil, fmt.Errorf("failed to parse execution path: %w", err)
		}
		if err := json.Unmarshal(errsJSON, &rec.Errors); err != nil {
			return nil, fmt.Errorf("failed to parse errors: %w", err)
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row rowScanner) (*model.Workflow, error) {
	var (
		w           model.Workflow
		botID       sql.NullString
		triggerType string
		status      string
		nodesJSON   []byte
		edgesJSON   []byte
		metaJSON    []byte
	)
	if err := row.Scan(
		&w.ID,
		&w.Name,
		&w.Description,
		&botID,
		&triggerType,
		&nodesJSON,
		&edgesJSON,
		&status,
		&w.Version,
		&metaJSON,
		&w.CreatedAt,
		&w.UpdatedAt,
	); err != nil {
		return nil, err
	}
	w.BotID = botID.String
	w.Status = model.WorkflowStatus(status)

	if err := json.Unmarshal(nodesJSON, &w.Nodes); err != nil {
		return nil, fmt.Errorf("failed to parse nodes: %w", err)
	}
	if err := json.Unmarshal(edgesJSON, &w.Edges); err != nil {
		return nil, fmt.Errorf("failed to parse edges: %w", err)
	}

	var meta rowMetadata
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &meta); err != nil {
			return nil, fmt.Errorf("failed to parse metadata: %w", err)
		}
	}
	w.Variables = meta.Variables
	w.Tags = meta.Tags
	w.Category = meta.Category
	w.CreatedBy = meta.CreatedBy
	w.Extra = meta.Extra

	// The metadata copy of the trigger list is authoritative; the column
	// only keeps the first entry for querying.
	if len(meta.TriggerTypes) > 0 {
		w.TriggerTypes = meta.TriggerTypes
	} else if triggerType != "" {
		w.TriggerTypes = []model.TriggerType{model.TriggerType(triggerType)}
	}
	return &w, nil
}

func encodeWorkflow(w *model.Workflow) (nodes, edges, meta []byte, err error) {
	if nodes, err = json.Marshal(w.Nodes); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to serialize nodes: %w", err)
	}
	if edges, err = json.Marshal(w.Edges); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to serialize edges: %w", err)
	}
	meta, err = json.Marshal(rowMetadata{
		TriggerTypes: w.TriggerTypes,
		Variables:    w.Variables,
		Tags:         w.Tags,
		Category:     w.Category,
		CreatedBy:    w.CreatedBy,
		Extra:        w.Extra,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to serialize metadata: %w", err)
	}
	return nodes, edges, meta, nil
}

// flattenTrigger picks the column value for a trigger list: the first
// declared trigger, or manual when the list is empty.
func flattenTrigger(triggers []model.TriggerType) model.TriggerType {
	if len(triggers) > 0 {
		return triggers[0]
	}
	return model.TriggerManual
}

func sortColumn(s string) string {
	switch s {
	case "created_at", "updated_at", "name", "version":
		return s
	}
	return "updated_at"
}

func sortOrder(s string) string {
	if s == "asc" {
		return "ASC"
	}
	return "DESC"
}
