package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"timeblocker/internal/service"
)

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := service.TaskQuery{Status: q.Get("status"), Priority: q.Get("priority")}
	if q.Has("parentId") {
		parent := q.Get("parentId")
		query.ParentID = &parent
	}
	tasks, err := s.svc.Tasks.List(r.Context(), userIDFrom(r.Context()), query)
	if err != nil {
		s.fail(w, r, err, "Failed to fetch tasks")
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.svc.Tasks.Get(r.Context(), userIDFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err, "Failed to fetch task")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	var in service.TaskInput
	if err := s.decode(w, r, &in); err != nil {
		s.fail(w, r, err, "Failed to create task")
		return
	}
	task, err := s.svc.Tasks.Create(r.Context(), userIDFrom(r.Context()), in)
	if err != nil {
		s.fail(w, r, err, "Failed to create task")
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (s *Server) updateTask(w http.ResponseWriter, r *http.Request) {
	var patch service.TaskPatch
	if err := s.decode(w, r, &patch); err != nil {
		s.fail(w, r, err, "Failed to update task")
		return
	}
	task, err := s.svc.Tasks.Update(r.Context(), userIDFrom(r.Context()), chi.URLParam(r, "id"), patch)
	if err != nil {
		s.fail(w, r, err, "Failed to update task")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Tasks.Delete(r.Context(), userIDFrom(r.Context()), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err, "Failed to delete task")
		return
	}
	writeJSON(w, http.StatusOK, successBody{Success: true})
}

func (s *Server) listCategories(w http.ResponseWriter, r *http.Request) {
	names, err := s.svc.Categories.List(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		s.fail(w, r, err, "Failed to fetch categories")
		return
	}
	writeJSON(w, http.StatusOK, names)
}
