package main

import (
	"net/http"

	"github.com/Simplici0/batchcost/internal/technology"
)

func (s *server) handleCreatePart(w http.ResponseWriter, r *http.Request) {
	var req partRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	in, err := req.input()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.tech.CreatePart(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writePart(w, r, http.StatusCreated, p.ID)
}

func (s *server) handleGetPart(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writePart(w, r, http.StatusOK, id)
}

func (s *server) handleUpdatePart(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req partRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	expected, err := expectedVersion(r, req.Version)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	in, err := req.input()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, err := s.tech.UpdatePart(r.Context(), id, in, expected); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writePart(w, r, http.StatusOK, id)
}

// writePart responds with the part, its stock and its live technology.
func (s *server) writePart(w http.ResponseWriter, r *http.Request, status int, id int64) {
	d, err := s.tech.PartDetail(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, status, d)
}

func (s *server) handleCreateOperation(w http.ResponseWriter, r *http.Request) {
	partID, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req operationRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	op, err := s.tech.CreateOperation(r.Context(), partID, req.input())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, op)
}

func (s *server) handleUpdateOperation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req operationRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	expected, err := expectedVersion(r, req.Version)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	op, err := s.tech.UpdateOperation(r.Context(), id, req.input(), expected)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, op)
}

func (s *server) handleDeleteOperation(w http.ResponseWriter, r *http.Request) {
	id, expected, err := s.versioned(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.tech.DeleteOperation(r.Context(), id, expected); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deletedResponse{ID: id, Deleted: true})
}

func (s *server) handleCreateFeature(w http.ResponseWriter, r *http.Request) {
	partID, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req featureRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	f, err := s.tech.CreateFeature(r.Context(), partID, req.input())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

func (s *server) handleUpdateFeature(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req featureRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	expected, err := expectedVersion(r, req.Version)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	f, err := s.tech.UpdateFeature(r.Context(), id, req.input(), expected)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *server) handleDeleteFeature(w http.ResponseWriter, r *http.Request) {
	id, expected, err := s.versioned(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.tech.DeleteFeature(r.Context(), id, expected); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deletedResponse{ID: id, Deleted: true})
}

func (s *server) handleCreateMaterialGroup(w http.ResponseWriter, r *http.Request) {
	var req materialGroupRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	g, err := s.tech.CreateMaterialGroup(r.Context(), technology.MaterialGroupInput{Name: req.Name, Density: req.Density})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

func (s *server) handleUpdateMaterialGroup(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req materialGroupRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	expected, err := expectedVersion(r, req.Version)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	g, err := s.tech.UpdateMaterialGroup(r.Context(), id, technology.MaterialGroupInput{Name: req.Name, Density: req.Density}, expected)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *server) handleCreateMaterial(w http.ResponseWriter, r *http.Request) {
	var req materialRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	m, err := s.tech.CreateMaterial(r.Context(), technology.MaterialInput{GroupID: req.GroupID, Name: req.Name, PricePerKg: req.PricePerKg})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (s *server) handleUpdateMaterial(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req materialRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	expected, err := expectedVersion(r, req.Version)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	m, err := s.tech.UpdateMaterial(r.Context(), id, technology.MaterialInput{GroupID: req.GroupID, Name: req.Name, PricePerKg: req.PricePerKg}, expected)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *server) handleCreateMachine(w http.ResponseWriter, r *http.Request) {
	var req machineRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	m, err := s.tech.CreateMachine(r.Context(), technology.MachineInput{Name: req.Name, HourlyRate: req.HourlyRate})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (s *server) handleUpdateMachine(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req machineRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	expected, err := expectedVersion(r, req.Version)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	m, err := s.tech.UpdateMachine(r.Context(), id, technology.MachineInput{Name: req.Name, HourlyRate: req.HourlyRate}, expected)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}
