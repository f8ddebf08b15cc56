package http

import (
	"net/http"

	"tally/internal/core"
)

type categoryResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type subcategoryResponse struct {
	ID         int64  `json:"id"`
	CategoryID int64  `json:"category_id"`
	Name       string `json:"name"`
}

type nameRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	user := mustUser(r)
	cats, err := s.taxonomy.ListCategories(r.Context(), user.ID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	out := make([]categoryResponse, 0, len(cats))
	for _, c := range cats {
		out = append(out, categoryResponse{ID: c.ID, Name: c.Name})
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	user := mustUser(r)
	var req nameRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	name := sanitizeInput(req.Name)
	if name == "" {
		respondError(w, http.StatusUnprocessableEntity, core.ErrEmptyName.Error())
		return
	}

	c, err := s.taxonomy.CreateCategory(r.Context(), user.ID, name)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, categoryResponse{ID: c.ID, Name: c.Name})
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	user := mustUser(r)
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.taxonomy.DeleteCategory(r.Context(), user.ID, id); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListSubcategories(w http.ResponseWriter, r *http.Request) {
	user := mustUser(r)
	categoryID, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	subs, err := s.taxonomy.ListSubcategories(r.Context(), user.ID, categoryID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	out := make([]subcategoryResponse, 0, len(subs))
	for _, sub := range subs {
		out = append(out, subcategoryResponse{ID: sub.ID, CategoryID: sub.CategoryID, Name: sub.Name})
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateSubcategory(w http.ResponseWriter, r *http.Request) {
	user := mustUser(r)
	categoryID, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req nameRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	name := sanitizeInput(req.Name)
	if name == "" {
		respondError(w, http.StatusUnprocessableEntity, core.ErrEmptyName.Error())
		return
	}

	sub, err := s.taxonomy.CreateSubcategory(r.Context(), user.ID, categoryID, name)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, subcategoryResponse{ID: sub.ID, CategoryID: sub.CategoryID, Name: sub.Name})
}

func (s *Server) handleDeleteSubcategory(w http.ResponseWriter, r *http.Request) {
	user := mustUser(r)
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.taxonomy.DeleteSubcategory(r.Context(), user.ID, id); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
