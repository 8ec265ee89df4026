package main

import (
	"net/http"

	"github.com/Simplici0/batchcost/internal/batch"
)

type recalculatedResponse struct {
	Recalculated int       `json:"recalculated"`
	Set          batch.Set `json:"set"`
}

func (s *server) handleCreateSet(w http.ResponseWriter, r *http.Request) {
	var req createSetRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	set, err := s.sets.Create(r.Context(), req.PartID, req.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, set)
}

func (s *server) handleGetSet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	set, err := s.sets.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, set)
}

func (s *server) handleAddSetBatch(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req addBatchRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	expected, err := expectedVersion(r, req.Version)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	b, err := s.sets.AddBatch(r.Context(), id, req.Quantity, expected)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (s *server) handleRemoveSetBatch(w http.ResponseWriter, r *http.Request) {
	id, expected, err := s.versioned(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	batchID, err := pathID(r, "batchID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.sets.RemoveBatch(r.Context(), id, batchID, expected); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deletedResponse{ID: batchID, Deleted: true})
}

func (s *server) handleFreezeSet(w http.ResponseWriter, r *http.Request) {
	id, expected, err := s.versioned(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	set, err := s.sets.Freeze(r.Context(), id, expected)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, set)
}

func (s *server) handleRecalculateSet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	n, err := s.sets.Recalculate(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	set, err := s.sets.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recalculatedResponse{Recalculated: n, Set: set})
}

func (s *server) handleCloneSet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	set, err := s.sets.Clone(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, set)
}

func (s *server) handleDeleteSet(w http.ResponseWriter, r *http.Request) {
	id, expected, err := s.versioned(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.sets.Delete(r.Context(), id, expected); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deletedResponse{ID: id, Deleted: true})
}

func (s *server) handleSetCosts(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	costs, err := s.sets.EffectiveCosts(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, costs)
}
