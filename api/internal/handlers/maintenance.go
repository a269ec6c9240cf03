package handlers

import (
	"context"
	"net/http"

	"facility-compliance-system/api/internal/lifecycle"
	"facility-compliance-system/shared/httpx"
)

func (h *Handler) createTask(w http.ResponseWriter, r *http.Request) {
	var in lifecycle.NewMaintenanceTask
	if !decode(w, r, &in, false) {
		return
	}
	in.CreatedBy = orActor(r, in.CreatedBy)
	view, err := h.Engine.CreateMaintenanceTask(r.Context(), in)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, view)
}

func (h *Handler) listTasks(w http.ResponseWriter, r *http.Request) {
	p, err := pageParams(r)
	if err != nil {
		badRequest(w, r, err)
		return
	}
	status, err := enumParam(r, "status", lifecycle.TaskTransitions.States())
	if err != nil {
		badRequest(w, r, err)
		return
	}
	q := r.URL.Query()
	items, err := h.Engine.ListMaintenanceTasks(r.Context(), lifecycle.TaskFilter{
		Status:      status,
		EquipmentID: q.Get("equipment_id"),
		AssignedTo:  q.Get("assigned_to"),
		Limit:       p.limit,
		Offset:      p.offset,
	})
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeList(w, items)
}

func (h *Handler) getTask(w http.ResponseWriter, r *http.Request) {
	view, err := h.Engine.GetMaintenanceTask(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) taskCommand(cmd lifecycle.TaskCommand) http.HandlerFunc {
	run := map[lifecycle.TaskCommand]func(context.Context, string, lifecycle.TaskCommandInput) (lifecycle.TaskView, error){
		lifecycle.TaskStart:    h.Engine.StartMaintenanceTask,
		lifecycle.TaskComplete: h.Engine.CompleteMaintenanceTask,
		lifecycle.TaskCancel:   h.Engine.CancelMaintenanceTask,
	}[cmd]
	return func(w http.ResponseWriter, r *http.Request) {
		var in lifecycle.TaskCommandInput
		if !decode(w, r, &in, true) {
			return
		}
		in.Actor = orActor(r, in.Actor)
		view, err := run(r.Context(), r.PathValue("id"), in)
		if err != nil {
			h.writeErr(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, view)
	}
}
