package handlers

import (
	"net/http"
	"time"

	"facility-compliance-system/api/internal/lifecycle"
	"facility-compliance-system/shared/httpx"
)

func (h *Handler) createTraining(w http.ResponseWriter, r *http.Request) {
	var in lifecycle.NewTrainingRequirement
	if !decode(w, r, &in, false) {
		return
	}
	view, err := h.Engine.CreateTrainingRequirement(r.Context(), in)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, view)
}

func (h *Handler) listTraining(w http.ResponseWriter, r *http.Request) {
	p, err := pageParams(r)
	if err != nil {
		badRequest(w, r, err)
		return
	}
	status, err := enumParam(r, "status", lifecycle.AllTrainingStatuses())
	if err != nil {
		badRequest(w, r, err)
		return
	}
	q := r.URL.Query()
	items, err := h.Engine.ListTraining(r.Context(), lifecycle.TrainingFilter{
		UserID:     q.Get("user_id"),
		TrainingID: q.Get("training_id"),
		Limit:      p.limit,
		Offset:     p.offset,
	}, status)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeList(w, items)
}

func (h *Handler) getTraining(w http.ResponseWriter, r *http.Request) {
	view, err := h.Engine.GetTrainingRequirement(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, view)
}

type completeTrainingRequest struct {
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (h *Handler) completeTraining(w http.ResponseWriter, r *http.Request) {
	var in completeTrainingRequest
	if !decode(w, r, &in, true) {
		return
	}
	at := h.Engine.Now()
	if in.CompletedAt != nil {
		at = *in.CompletedAt
	}
	view, err := h.Engine.CompleteTraining(r.Context(), r.PathValue("id"), at)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) issueCertificate(w http.ResponseWriter, r *http.Request) {
	var in lifecycle.NewCertificate
	if !decode(w, r, &in, false) {
		return
	}
	cert, err := h.Engine.IssueCertificate(r.Context(), r.PathValue("id"), in)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, cert)
}

func (h *Handler) renewTraining(w http.ResponseWriter, r *http.Request) {
	view, err := h.Engine.RenewTraining(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, view)
}
