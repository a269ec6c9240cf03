package handlers

import (
	"net/http"

	"facility-compliance-system/api/internal/lifecycle"
	"facility-compliance-system/shared/httpx"
)

func (h *Handler) createPermit(w http.ResponseWriter, r *http.Request) {
	var in lifecycle.NewPermit
	if !decode(w, r, &in, false) {
		return
	}
	in.RequestedBy = orActor(r, in.RequestedBy)
	view, err := h.Engine.CreatePermit(r.Context(), in)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, view)
}

func (h *Handler) listPermits(w http.ResponseWriter, r *http.Request) {
	p, err := pageParams(r)
	if err != nil {
		badRequest(w, r, err)
		return
	}
	status, err := enumParam(r, "status", lifecycle.PermitTransitions.States())
	if err != nil {
		badRequest(w, r, err)
		return
	}
	q := r.URL.Query()
	items, err := h.Engine.ListPermits(r.Context(), lifecycle.PermitFilter{
		Status:      status,
		RequestedBy: q.Get("requested_by"),
		Limit:       p.limit,
		Offset:      p.offset,
	})
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeList(w, items)
}

func (h *Handler) getPermit(w http.ResponseWriter, r *http.Request) {
	view, err := h.Engine.GetPermit(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) reviewPermit(cmd lifecycle.PermitCommand) http.HandlerFunc {
	review := h.Engine.ApprovePermit
	if cmd == lifecycle.PermitReject {
		review = h.Engine.RejectPermit
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var in lifecycle.ReviewPermitInput
		if !decode(w, r, &in, true) {
			return
		}
		in.Reviewer = orActor(r, in.Reviewer)
		view, err := review(r.Context(), r.PathValue("id"), in)
		if err != nil {
			h.writeErr(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, view)
	}
}
