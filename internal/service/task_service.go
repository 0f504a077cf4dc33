package service

import (
	"context"
	"strings"
	"time"

	"timeblocker/internal/calendar"
	"timeblocker/internal/model"
	"timeblocker/internal/repository"
)

// TaskInput represents data required to create a task.
type TaskInput struct {
	Title            string              `json:"title" validate:"required"`
	Notes            *string             `json:"notes"`
	Status           *model.TaskStatus   `json:"status"`
	Priority         *model.TaskPriority `json:"priority"`
	Category         *string             `json:"category"`
	Deadline         *time.Time          `json:"deadline"`
	EstimatedMinutes *int                `json:"estimatedMinutes" validate:"omitnil,min=0"`
	Recurrence       *model.Recurrence   `json:"recurrence"`
	ParentTaskID     *string             `json:"parentTaskId" validate:"omitempty,uuid"`
}

// TaskPatch is a partial task update. Null clears nullable fields.
type TaskPatch struct {
	Title            Optional[string]             `json:"title"`
	Notes            Optional[string]             `json:"notes"`
	Status           Optional[model.TaskStatus]   `json:"status"`
	Priority         Optional[model.TaskPriority] `json:"priority"`
	Category         Optional[string]             `json:"category"`
	Deadline         Optional[time.Time]          `json:"deadline"`
	EstimatedMinutes Optional[int]                `json:"estimatedMinutes"`
	Recurrence       Optional[model.Recurrence]   `json:"recurrence"`
	ParentTaskID     Optional[string]             `json:"parentTaskId"`
}

// TaskQuery holds the listing filters as received. Empty strings do not filter,
// except ParentID which, when present but empty, selects root tasks.
type TaskQuery struct {
	Status   string
	Priority string
	ParentID *string
}

// TaskService wraps task-related business logic.
type TaskService struct {
	taskRepo  *repository.TaskRepository
	blockRepo *repository.TimeBlockRepository
}

func NewTaskService(taskRepo *repository.TaskRepository, blockRepo *repository.TimeBlockRepository) *TaskService {
	return &TaskService{taskRepo: taskRepo, blockRepo: blockRepo}
}

func (s *TaskService) List(ctx context.Context, userID string, q TaskQuery) ([]model.Task, error) {
	var f repository.TaskFilter
	if q.Status != "" {
		st := model.TaskStatus(strings.ToUpper(q.Status))
		if !st.Valid() {
			return nil, invalidField("status", "unknown status "+q.Status)
		}
		f.Status = &st
	}
	if q.Priority != "" {
		p := model.TaskPriority(strings.ToUpper(q.Priority))
		if !p.Valid() {
			return nil, invalidField("priority", "unknown priority "+q.Priority)
		}
		f.Priority = &p
	}
	if q.ParentID != nil {
		if *q.ParentID == "" {
			f.RootsOnly = true
		} else {
			f.ParentID = q.ParentID
		}
	}

	tasks, err := s.taskRepo.List(ctx, userID, f)
	if err != nil {
		return nil, err
	}
	if err := s.annotate(ctx, userID, tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (s *TaskService) Get(ctx context.Context, userID, taskID string) (*model.Task, error) {
	task, err := s.taskRepo.FindByID(ctx, userID, taskID)
	if err != nil {
		return nil, notFound(err, "Task not found")
	}
	one := []model.Task{*task}
	if err := s.annotate(ctx, userID, one); err != nil {
		return nil, err
	}
	return &one[0], nil
}

func (s *TaskService) Create(ctx context.Context, userID string, input TaskInput) (*model.Task, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, invalidField("title", "is required")
	}

	task := model.Task{
		UserID:           userID,
		Title:            title,
		Notes:            input.Notes,
		Status:           model.TaskStatusPending,
		Priority:         model.PriorityMedium,
		Category:         trimmedOrNil(input.Category),
		Deadline:         utcPtr(input.Deadline),
		EstimatedMinutes: input.EstimatedMinutes,
		Recurrence:       input.Recurrence,
	}
	if input.Status != nil {
		if !input.Status.Valid() {
			return nil, invalidField("status", "unknown status "+string(*input.Status))
		}
		task.Status = *input.Status
	}
	if input.Priority != nil {
		if !input.Priority.Valid() {
			return nil, invalidField("priority", "unknown priority "+string(*input.Priority))
		}
		task.Priority = *input.Priority
	}
	if task.EstimatedMinutes != nil && *task.EstimatedMinutes < 0 {
		return nil, invalidField("estimatedMinutes", "must be zero or more")
	}
	if task.Recurrence != nil {
		if err := task.Recurrence.Validate(); err != nil {
			return nil, invalidField("recurrence", err.Error())
		}
	}
	if input.ParentTaskID != nil && *input.ParentTaskID != "" {
		if _, err := s.taskRepo.FindByID(ctx, userID, *input.ParentTaskID); err != nil {
			return nil, notFound(err, "Parent task not found")
		}
		task.ParentTaskID = input.ParentTaskID
	}

	if err := s.taskRepo.Create(ctx, &task); err != nil {
		return nil, err
	}
	task.SubtaskIDs = []string{}
	return &task, nil
}

func (s *TaskService) Update(ctx context.Context, userID, taskID string, patch TaskPatch) (*model.Task, error) {
	task, err := s.taskRepo.FindByID(ctx, userID, taskID)
	if err != nil {
		return nil, notFound(err, "Task not found")
	}

	if patch.Title.Set {
		if patch.Title.Value == nil || strings.TrimSpace(*patch.Title.Value) == "" {
			return nil, invalidField("title", "cannot be empty")
		}
		task.Title = strings.TrimSpace(*patch.Title.Value)
	}
	if patch.Notes.Set {
		task.Notes = patch.Notes.Value
	}
	if patch.Status.Set {
		if patch.Status.Value == nil || !patch.Status.Value.Valid() {
			return nil, invalidField("status", "must be one of PENDING, IN_PROGRESS, SCHEDULED, COMPLETED")
		}
		task.Status = *patch.Status.Value
	}
	if patch.Priority.Set {
		if patch.Priority.Value == nil || !patch.Priority.Value.Valid() {
			return nil, invalidField("priority", "must be one of LOW, MEDIUM, HIGH")
		}
		task.Priority = *patch.Priority.Value
	}
	if patch.Category.Set {
		task.Category = trimmedOrNil(patch.Category.Value)
	}
	if patch.Deadline.Set {
		task.Deadline = utcPtr(patch.Deadline.Value)
	}
	if patch.EstimatedMinutes.Set {
		if v := patch.EstimatedMinutes.Value; v != nil && *v < 0 {
			return nil, invalidField("estimatedMinutes", "must be zero or more")
		}
		task.EstimatedMinutes = patch.EstimatedMinutes.Value
	}
	if patch.Recurrence.Set {
		if r := patch.Recurrence.Value; r != nil {
			if err := r.Validate(); err != nil {
				return nil, invalidField("recurrence", err.Error())
			}
		}
		task.Recurrence = patch.Recurrence.Value
	}
	if patch.ParentTaskID.Set {
		parentID := patch.ParentTaskID.Value
		if parentID != nil && *parentID == "" {
			parentID = nil
		}
		if parentID != nil {
			if err := s.checkParent(ctx, userID, task.ID, *parentID); err != nil {
				return nil, err
			}
		}
		task.ParentTaskID = parentID
	}

	if err := s.taskRepo.Save(ctx, task); err != nil {
		return nil, err
	}
	one := []model.Task{*task}
	if err := s.annotate(ctx, userID, one); err != nil {
		return nil, err
	}
	return &one[0], nil
}

// Delete removes a task; its subtasks and time blocks are detached, not deleted.
func (s *TaskService) Delete(ctx context.Context, userID, taskID string) error {
	if err := s.taskRepo.Delete(ctx, userID, taskID); err != nil {
		return notFound(err, "Task not found")
	}
	return nil
}

// checkParent verifies parentID belongs to the user and is neither the task itself nor one of its descendants.
func (s *TaskService) checkParent(ctx context.Context, userID, taskID, parentID string) error {
	if parentID == taskID {
		return invalidField("parentTaskId", "a task cannot be its own parent")
	}
	links, err := s.taskRepo.ParentLinks(ctx, userID)
	if err != nil {
		return err
	}
	tree := newTaskTree(links)
	if !tree.has(parentID) {
		return &kindError{kind: ErrNotFound, msg: "Parent task not found"}
	}
	if tree.isAncestor(taskID, parentID) {
		return invalidField("parentTaskId", "a task cannot be moved under its own subtask")
	}
	return nil
}

// annotate fills the derived fields of each task.
func (s *TaskService) annotate(ctx context.Context, userID string, tasks []model.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	links, err := s.taskRepo.ParentLinks(ctx, userID)
	if err != nil {
		return err
	}
	tree := newTaskTree(links)

	ids := make([]string, len(tasks))
	for i := range tasks {
		ids[i] = tasks[i].ID
	}
	blocks, err := s.blockRepo.ListByTasks(ctx, userID, ids)
	if err != nil {
		return err
	}
	spans := make(map[string][]calendar.Span, len(tasks))
	for _, b := range blocks {
		if b.TaskID != nil {
			spans[*b.TaskID] = append(spans[*b.TaskID], b.Span())
		}
	}

	for i := range tasks {
		tasks[i].SubtaskIDs = tree.children(tasks[i].ID)
		tasks[i].TotalMinutesWorked = calendar.WorkedMinutes(spans[tasks[i].ID])
	}
	return nil
}

// TotalMinutesWorked returns the worked minutes of one task.
func (s *TaskService) TotalMinutesWorked(ctx context.Context, userID, taskID string) (int, error) {
	task, err := s.Get(ctx, userID, taskID)
	if err != nil {
		return 0, err
	}
	return task.TotalMinutesWorked, nil
}

// taskTree is the parent/children adjacency of one user's tasks.
type taskTree struct {
	parent   map[string]string
	kids     map[string][]string
	existing map[string]struct{}
}

func newTaskTree(links []repository.ParentLink) taskTree {
	t := taskTree{
		parent:   make(map[string]string, len(links)),
		kids:     make(map[string][]string),
		existing: make(map[string]struct{}, len(links)),
	}
	for _, l := range links {
		t.existing[l.ID] = struct{}{}
		if l.ParentTaskID != nil {
			t.parent[l.ID] = *l.ParentTaskID
			t.kids[*l.ParentTaskID] = append(t.kids[*l.ParentTaskID], l.ID)
		}
	}
	return t
}

func (t taskTree) has(id string) bool {
	_, ok := t.existing[id]
	return ok
}

func (t taskTree) children(id string) []string {
	return append([]string{}, t.kids[id]...)
}

// isAncestor reports whether ancestor is on the parent chain of node.
func (t taskTree) isAncestor(ancestor, node string) bool {
	seen := map[string]struct{}{}
	for cur, ok := t.parent[node]; ok; cur, ok = t.parent[cur] {
		if cur == ancestor {
			return true
		}
		if _, loop := seen[cur]; loop {
			return false
		}
		seen[cur] = struct{}{}
	}
	return false
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
