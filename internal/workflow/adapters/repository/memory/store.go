// Package memory is an in-process Store used in tests and single-node
// development setups. It honors the same version and cascade semantics
// as the PostgreSQL adapter.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/botflow-io/botflow/internal/workflow/domain/model"
	"github.com/botflow-io/botflow/internal/workflow/domain/repository"
)

// Store implements repository.Store in memory.
type Store struct {
	mu         sync.RWMutex
	workflows  map[string]*model.Workflow
	executions map[string][]*model.ExecutionRecord
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		workflows:  make(map[string]*model.Workflow),
		executions: make(map[string][]*model.ExecutionRecord),
	}
}

func (s *Store) Insert(ctx context.Context, w *model.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflows[w.ID]; ok {
		return fmt.Errorf("workflow %s: %w", w.ID, repository.ErrDuplicate)
	}
	cp, err := cloneWorkflow(w)
	if err != nil {
		return err
	}
	s.workflows[w.ID] = cp
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*model.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workflows[id]
	if !ok {
		return nil, fmt.Errorf("workflow %s: %w", id, repository.ErrNotFound)
	}
	return cloneWorkflow(w)
}

func (s *Store) List(ctx context.Context, opts repository.ListOptions) ([]*model.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Workflow
	for _, w := range s.workflows {
		if opts.BotID != "" && w.BotID != opts.BotID {
			continue
		}
		if opts.Status != "" && w.Status != opts.Status {
			continue
		}
		cp, err := cloneWorkflow(w)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}

	asc := opts.SortOrder == "asc"
	sort.Slice(out, func(i, j int) bool {
		var less bool
		switch opts.SortBy {
		case "name":
			less = out[i].Name < out[j].Name
		case "created_at":
			less = out[i].CreatedAt.Before(out[j].CreatedAt)
		default:
			less = out[i].UpdatedAt.Before(out[j].UpdatedAt)
		}
		if asc {
			return less
		}
		return !less
	})
	return out, nil
}

func (s *Store) Update(ctx context.Context, w *model.Workflow) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.workflows[w.ID]
	if !ok {
		return 0, fmt.Errorf("workflow %s: %w", w.ID, repository.ErrNotFound)
	}
	cp, err := cloneWorkflow(w)
	if err != nil {
		return 0, err
	}
	cp.Version = stored.Version + 1
	cp.CreatedAt = stored.CreatedAt
	cp.UpdatedAt = time.Now()
	s.workflows[w.ID] = cp
	return cp.Version, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflows[id]; !ok {
		return fmt.Errorf("workflow %s: %w", id, repository.ErrNotFound)
	}
	delete(s.executions, id)
	delete(s.workflows, id)
	return nil
}

func (s *Store) InsertExecution(ctx context.Context, rec *model.ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.executions[rec.WorkflowID] = append(s.executions[rec.WorkflowID], &cp)
	return nil
}

func (s *Store) ListExecutions(ctx context.Context, workflowID string, limit int) ([]*model.ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recs := s.executions[workflowID]
	out := make([]*model.ExecutionRecord, len(recs))
	for i, r := range recs {
		cp := *r
		out[i] = &cp
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// cloneWorkflow deep-copies through JSON so callers can never mutate the
// stored copy.
func cloneWorkflow(w *model.Workflow) (*model.Workflow, error) {
	raw, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("clone workflow: %w", err)
	}
	var cp model.Workflow
	if err := json.Unmarshal(raw, &cp); err != nil {
		return nil, fmt.Errorf("clone workflow: %w", err)
	}
	// Extra is excluded from JSON; carry it over directly.
	cp.Extra = w.Extra
	return &cp, nil
}
