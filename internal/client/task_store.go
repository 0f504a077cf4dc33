package client

import (
	"context"
	"strings"
	"time"

	"timeblocker/internal/model"
	"timeblocker/internal/service"
)

// TaskStore mirrors the user's tasks with optimistic writes.
type TaskStore struct {
	api *Client
	s   optimistic[model.Task]
	now func() time.Time
}

func NewTaskStore(api *Client) *TaskStore {
	return &TaskStore{
		api: api,
		s:   optimistic[model.Task]{idOf: func(t *model.Task) string { return t.ID }},
		now: time.Now,
	}
}

// Fetch replaces the local list with the server's.
func (ts *TaskStore) Fetch(ctx context.Context, f TaskFilter) error {
	tasks, err := ts.api.ListTasks(ctx, f)
	if err != nil {
		ts.s.fail(err)
		return err
	}
	ts.s.load(tasks)
	return nil
}

func (ts *TaskStore) Tasks() []Entry[model.Task] {
	return ts.s.list()
}

func (ts *TaskStore) Get(id string) (Entry[model.Task], bool) {
	return ts.s.get(id)
}

// LastError is the most recent failed load or mutation, cleared by a successful Fetch.
func (ts *TaskStore) LastError() error {
	return ts.s.lastError()
}

func (ts *TaskStore) Create(ctx context.Context, in service.TaskInput) (*model.Task, error) {
	now := ts.now().UTC()
	local := model.Task{
		Title:            strings.TrimSpace(in.Title),
		Notes:            in.Notes,
		Status:           model.TaskStatusPending,
		Priority:         model.PriorityMedium,
		Category:         in.Category,
		Deadline:         in.Deadline,
		EstimatedMinutes: in.EstimatedMinutes,
		Recurrence:       in.Recurrence,
		ParentTaskID:     in.ParentTaskID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if in.Status != nil {
		local.Status = *in.Status
	}
	if in.Priority != nil {
		local.Priority = *in.Priority
	}
	return ts.s.create(local,
		func(t *model.Task, id string) { t.ID = id },
		func() (*model.Task, error) { return ts.api.CreateTask(ctx, in) },
	)
}

func (ts *TaskStore) Update(ctx context.Context, id string, patch service.TaskPatch) (*model.Task, error) {
	return ts.s.update(id,
		func(t *model.Task) { applyTaskPatch(t, patch, ts.now()) },
		func() (*model.Task, error) { return ts.api.UpdateTask(ctx, id, patch) },
	)
}

func (ts *TaskStore) Delete(ctx context.Context, id string) error {
	return ts.s.destroy(id, func() error { return ts.api.DeleteTask(ctx, id) })
}

func applyTaskPatch(t *model.Task, p service.TaskPatch, now time.Time) {
	setValue(&t.Title, p.Title)
	setValue(&t.Status, p.Status)
	setValue(&t.Priority, p.Priority)
	setNullable(&t.Notes, p.Notes)
	setNullable(&t.Category, p.Category)
	setNullable(&t.Deadline, p.Deadline)
	setNullable(&t.EstimatedMinutes, p.EstimatedMinutes)
	setNullable(&t.Recurrence, p.Recurrence)
	setNullable(&t.ParentTaskID, p.ParentTaskID)
	t.UpdatedAt = now.UTC()
}

// setValue applies a patch field to a non-nullable value. Null is ignored.
func setValue[T any](dst *T, o service.Optional[T]) {
	if o.Set && o.Value != nil {
		*dst = *o.Value
	}
}

// setNullable applies a patch field to a nullable value.
func setNullable[T any](dst **T, o service.Optional[T]) {
	if o.Set {
		*dst = o.Value
	}
}
