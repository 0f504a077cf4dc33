package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"timeblocker/internal/service"
)

func (s *Server) dayView(w http.ResponseWriter, r *http.Request) {
	blocks, err := s.svc.Blocks.DayView(r.Context(), userIDFrom(r.Context()), r.URL.Query().Get("date"))
	if err != nil {
		s.fail(w, r, err, "Failed to fetch day view")
		return
	}
	writeJSON(w, http.StatusOK, blocks)
}

func (s *Server) createBlock(w http.ResponseWriter, r *http.Request) {
	var in service.TimeBlockInput
	if err := s.decode(w, r, &in); err != nil {
		s.fail(w, r, err, "Failed to create time block")
		return
	}
	block, err := s.svc.Blocks.Create(r.Context(), userIDFrom(r.Context()), in)
	if err != nil {
		s.fail(w, r, err, "Failed to create time block")
		return
	}
	writeJSON(w, http.StatusCreated, block)
}

func (s *Server) updateBlock(w http.ResponseWriter, r *http.Request) {
	var patch service.TimeBlockPatch
	if err := s.decode(w, r, &patch); err != nil {
		s.fail(w, r, err, "Failed to update time block")
		return
	}
	block, err := s.svc.Blocks.Update(r.Context(), userIDFrom(r.Context()), chi.URLParam(r, "id"), patch)
	if err != nil {
		s.fail(w, r, err, "Failed to update time block")
		return
	}
	writeJSON(w, http.StatusOK, block)
}

func (s *Server) deleteBlock(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Blocks.Delete(r.Context(), userIDFrom(r.Context()), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err, "Failed to delete time block")
		return
	}
	writeJSON(w, http.StatusOK, successBody{Success: true})
}
