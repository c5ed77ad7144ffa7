package api

import (
	"net/http"

	"github.com/okian/cupcakes/internal/adapters/repository"
	"github.com/okian/cupcakes/pkg/logger"
	"github.com/okian/cupcakes/pkg/metrics"
)

// CupcakesHandler serves the /api/cupcakes resource.
type CupcakesHandler struct {
	store  repository.Store
	logger logger.Logger
}

// NewCupcakesHandler creates a new cupcakes handler.
func NewCupcakesHandler(store repository.Store, l logger.Logger) *CupcakesHandler {
	return &CupcakesHandler{store: store, logger: l}
}

// HandleList handles GET /api/cupcakes.
func (h *CupcakesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_cupcakes"
	cs, err := h.store.List(r.Context())
	if err != nil {
		writeFailure(w, r, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, cupcakesResponse{Cupcakes: toWireList(cs)})
}

// HandleGet handles GET /api/cupcakes/{id}.
func (h *CupcakesHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_cupcake"
	id, ok := pathID(r)
	if !ok {
		writeFailure(w, r, h.logger, op, ErrNotFound)
		return
	}
	c, err := h.store.Get(r.Context(), id)
	if err != nil {
		writeFailure(w, r, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, cupcakeResponse{Cupcake: toWire(c)})
}

// HandleCreate handles POST /api/cupcakes.
func (h *CupcakesHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_cupcake"
	p, err := decodeCreate(r.Body)
	if err != nil {
		writeFailure(w, r, h.logger, op, err)
		return
	}
	c, err := h.store.Create(r.Context(), p)
	if err != nil {
		writeFailure(w, r, h.logger, op, err)
		return
	}
	metrics.RecordCupcakeMutation("create")
	h.logger.Debug(r.Context(), "cupcake created", logger.Int64("id", c.ID))
	writeJSON(w, http.StatusCreated, cupcakeResponse{Cupcake: toWire(c)})
}

// HandleUpdate handles PATCH /api/cupcakes/{id}. Only keys present in the
// body change; a body with no known keys returns the record unchanged.
func (h *CupcakesHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	const op = "api.update_cupcake"
	id, ok := pathID(r)
	if !ok {
		writeFailure(w, r, h.logger, op, ErrNotFound)
		return
	}
	p, err := decodeUpdate(r.Body)
	if err != nil {
		writeFailure(w, r, h.logger, op, err)
		return
	}
	c, err := h.store.Update(r.Context(), id, p)
	if err != nil {
		writeFailure(w, r, h.logger, op, err)
		return
	}
	if !p.IsEmpty() {
		metrics.RecordCupcakeMutation("update")
	}
	writeJSON(w, http.StatusOK, cupcakeResponse{Cupcake: toWire(c)})
}

// HandleDelete handles DELETE /api/cupcakes/{id}.
func (h *CupcakesHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	const op = "api.delete_cupcake"
	id, ok := pathID(r)
	if !ok {
		writeFailure(w, r, h.logger, op, ErrNotFound)
		return
	}
	if err := h.store.Delete(r.Context(), id); err != nil {
		writeFailure(w, r, h.logger, op, err)
		return
	}
	metrics.RecordCupcakeMutation("delete")
	h.logger.Debug(r.Context(), "cupcake deleted", logger.Int64("id", id))
	writeJSON(w, http.StatusOK, messageResponse{Message: "deleted"})
}
