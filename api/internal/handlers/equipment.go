package handlers

import (
	"net/http"
	"time"

	"facility-compliance-system/api/internal/lifecycle"
	"facility-compliance-system/shared/httpx"
)

func (h *Handler) createEquipment(w http.ResponseWriter, r *http.Request) {
	var in lifecycle.NewEquipment
	if !decode(w, r, &in, false) {
		return
	}
	eq, err := h.Engine.CreateEquipment(r.Context(), in)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, eq)
}

func (h *Handler) listEquipment(w http.ResponseWriter, r *http.Request) {
	p, err := pageParams(r)
	if err != nil {
		badRequest(w, r, err)
		return
	}
	status, err := enumParam(r, "status", lifecycle.EquipmentTransitions.States())
	if err != nil {
		badRequest(w, r, err)
		return
	}
	q := r.URL.Query()
	items, err := h.Engine.ListEquipment(r.Context(), lifecycle.EquipmentFilter{
		Status:   status,
		Location: q.Get("location"),
		Limit:    p.limit,
		Offset:   p.offset,
	})
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeList(w, items)
}

func (h *Handler) getEquipment(w http.ResponseWriter, r *http.Request) {
	eq, err := h.Engine.GetEquipment(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, eq)
}

func (h *Handler) deleteEquipment(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.DeleteEquipment(r.Context(), r.PathValue("id")); err != nil {
		h.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type transitionRequest struct {
	Status lifecycle.EquipmentStatus `json:"status"`
}

func (h *Handler) transitionEquipment(w http.ResponseWriter, r *http.Request) {
	var in transitionRequest
	if !decode(w, r, &in, false) {
		return
	}
	tr, err := h.Engine.TransitionEquipment(r.Context(), r.PathValue("id"), in.Status, httpx.Actor(r))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, tr)
}

type inspectionRequest struct {
	InspectedAt *time.Time `json:"inspected_at,omitempty"`
}

func (h *Handler) recordInspection(w http.ResponseWriter, r *http.Request) {
	var in inspectionRequest
	if !decode(w, r, &in, true) {
		return
	}
	at := h.Engine.Now()
	if in.InspectedAt != nil {
		at = *in.InspectedAt
	}
	eq, err := h.Engine.RecordInspection(r.Context(), r.PathValue("id"), at)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, eq)
}
