package handlers

import (
	"net/http"

	"facility-compliance-system/api/internal/lifecycle"
	"facility-compliance-system/shared/httpx"
)

func (h *Handler) raiseAlert(w http.ResponseWriter, r *http.Request) {
	var in lifecycle.NewAlert
	if !decode(w, r, &in, false) {
		return
	}
	in.ReportedBy = orActor(r, in.ReportedBy)
	a, err := h.Engine.RaiseAlert(r.Context(), in)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, a)
}

func (h *Handler) listAlerts(w http.ResponseWriter, r *http.Request) {
	p, err := pageParams(r)
	if err != nil {
		badRequest(w, r, err)
		return
	}
	status, err := enumParam(r, "status", lifecycle.AlertTransitions.States())
	if err != nil {
		badRequest(w, r, err)
		return
	}
	severity, err := enumParam(r, "severity", lifecycle.AllSeverities())
	if err != nil {
		badRequest(w, r, err)
		return
	}
	q := r.URL.Query()
	items, err := h.Engine.ListAlerts(r.Context(), lifecycle.AlertFilter{
		Status:      status,
		Severity:    severity,
		EquipmentID: q.Get("equipment_id"),
		Limit:       p.limit,
		Offset:      p.offset,
	})
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeList(w, items)
}

func (h *Handler) getAlert(w http.ResponseWriter, r *http.Request) {
	a, err := h.Engine.GetAlert(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, a)
}

type acknowledgeRequest struct {
	AcknowledgedBy string  `json:"acknowledged_by"`
	Notes          *string `json:"notes,omitempty"`
}

func (h *Handler) acknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	var in acknowledgeRequest
	if !decode(w, r, &in, true) {
		return
	}
	a, err := h.Engine.AcknowledgeAlert(r.Context(), r.PathValue("id"), orActor(r, in.AcknowledgedBy), in.Notes)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, a)
}

func (h *Handler) resolveAlert(w http.ResponseWriter, r *http.Request) {
	var in lifecycle.ResolveAlertInput
	if !decode(w, r, &in, false) {
		return
	}
	in.ResolvedBy = orActor(r, in.ResolvedBy)
	a, err := h.Engine.ResolveAlert(r.Context(), r.PathValue("id"), in)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, a)
}
