package main

import (
	"net/http"

	"github.com/Simplici0/batchcost/internal/batch"
)

func (s *server) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	var req createBatchRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	b, err := s.batches.Create(r.Context(), req.PartID, req.Quantity)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (s *server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	b, err := s.batches.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *server) handleUpdateBatch(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req updateBatchRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	expected, err := expectedVersion(r, req.Version)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	b, err := s.batches.Update(r.Context(), id, batch.UpdateInput{Quantity: req.Quantity}, expected)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *server) handleRecalculateBatch(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	b, err := s.batches.Recalculate(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *server) handleFreezeBatch(w http.ResponseWriter, r *http.Request) {
	id, expected, err := s.versioned(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	b, err := s.batches.Freeze(r.Context(), id, expected)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *server) handleCloneBatch(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	b, err := s.batches.Clone(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (s *server) handleDeleteBatch(w http.ResponseWriter, r *http.Request) {
	id, expected, err := s.versioned(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.batches.Delete(r.Context(), id, expected); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deletedResponse{ID: id, Deleted: true})
}

func (s *server) handleBatchCosts(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	costs, err := s.batches.EffectiveCosts(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, costs)
}

type deletedResponse struct {
	ID      int64 `json:"id"`
	Deleted bool  `json:"deleted"`
}

// versioned reads the {id} path parameter and the expected version of a
// state transition from If-Match or the body.
func (s *server) versioned(r *http.Request) (int64, int64, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return 0, 0, err
	}
	var req versionRequest
	if err := decode(r, &req); err != nil {
		return 0, 0, err
	}
	expected, err := expectedVersion(r, req.Version)
	if err != nil {
		return 0, 0, err
	}
	return id, expected, nil
}
