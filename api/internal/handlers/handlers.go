package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"facility-compliance-system/api/internal/lifecycle"
	"facility-compliance-system/api/internal/models"
	"facility-compliance-system/shared/httpx"
	"facility-compliance-system/shared/influxx"
	"facility-compliance-system/shared/logx"
	"facility-compliance-system/shared/workflow"
)

type NotificationReader interface {
	ListForUser(ctx context.Context, userID string, limit int) ([]lifecycle.NotificationRecord, error)
}

type HistoryReader interface {
	List(ctx context.Context, aggregateType string, aggregateID string, limit int) ([]models.LifecycleEvent, error)
}

type SnapshotReader interface {
	Snapshots(ctx context.Context, window time.Duration) ([]influxx.Record, error)
}

// Handler exposes the lifecycle engine over JSON. The optional readers are nil when the
// backing store does not provide them.
type Handler struct {
	Engine        *lifecycle.Engine
	Notifications NotificationReader
	History       HistoryReader
	Snapshots     SnapshotReader
	Logger        logx.Logger
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/equipment", h.createEquipment)
	mux.HandleFunc("GET /api/v1/equipment", h.listEquipment)
	mux.HandleFunc("GET /api/v1/equipment/{id}", h.getEquipment)
	mux.HandleFunc("DELETE /api/v1/equipment/{id}", h.deleteEquipment)
	mux.HandleFunc("POST /api/v1/equipment/{id}/transition", h.transitionEquipment)
	mux.HandleFunc("POST /api/v1/equipment/{id}/inspections", h.recordInspection)

	mux.HandleFunc("POST /api/v1/alerts", h.raiseAlert)
	mux.HandleFunc("GET /api/v1/alerts", h.listAlerts)
	mux.HandleFunc("GET /api/v1/alerts/{id}", h.getAlert)
	mux.HandleFunc("POST /api/v1/alerts/{id}/acknowledge", h.acknowledgeAlert)
	mux.HandleFunc("POST /api/v1/alerts/{id}/resolve", h.resolveAlert)

	mux.HandleFunc("POST /api/v1/maintenance", h.createTask)
	mux.HandleFunc("GET /api/v1/maintenance", h.listTasks)
	mux.HandleFunc("GET /api/v1/maintenance/{id}", h.getTask)
	mux.HandleFunc("POST /api/v1/maintenance/{id}/start", h.taskCommand(lifecycle.TaskStart))
	mux.HandleFunc("POST /api/v1/maintenance/{id}/complete", h.taskCommand(lifecycle.TaskComplete))
	mux.HandleFunc("POST /api/v1/maintenance/{id}/cancel", h.taskCommand(lifecycle.TaskCancel))

	mux.HandleFunc("POST /api/v1/permits", h.createPermit)
	mux.HandleFunc("GET /api/v1/permits", h.listPermits)
	mux.HandleFunc("GET /api/v1/permits/{id}", h.getPermit)
	mux.HandleFunc("POST /api/v1/permits/{id}/approve", h.reviewPermit(lifecycle.PermitApprove))
	mux.HandleFunc("POST /api/v1/permits/{id}/reject", h.reviewPermit(lifecycle.PermitReject))

	mux.HandleFunc("POST /api/v1/training", h.createTraining)
	mux.HandleFunc("GET /api/v1/training", h.listTraining)
	mux.HandleFunc("GET /api/v1/training/{id}", h.getTraining)
	mux.HandleFunc("POST /api/v1/training/{id}/complete", h.completeTraining)
	mux.HandleFunc("POST /api/v1/training/{id}/certificates", h.issueCertificate)
	mux.HandleFunc("POST /api/v1/training/{id}/renew", h.renewTraining)

	mux.HandleFunc("GET /api/v1/compliance/summary", h.summary)
	mux.HandleFunc("GET /api/v1/compliance/history", h.snapshotHistory)
	mux.HandleFunc("GET /api/v1/notifications", h.listNotifications)

	for resource, aggregate := range map[string]string{
		"equipment":   lifecycle.EntityEquipment,
		"alerts":      lifecycle.EntityAlert,
		"maintenance": lifecycle.EntityMaintenanceTask,
		"permits":     lifecycle.EntityPermit,
		"training":    lifecycle.EntityTraining,
	} {
		mux.HandleFunc("GET /api/v1/"+resource+"/{id}/history", h.history(aggregate))
	}
}

var errorCodes = map[lifecycle.Kind]struct {
	status int
	code   string
}{
	lifecycle.KindNotFound:               {http.StatusNotFound, "NOT_FOUND"},
	lifecycle.KindInvalidTransition:      {http.StatusConflict, "INVALID_TRANSITION"},
	lifecycle.KindAlreadyResolved:        {http.StatusConflict, "ALREADY_RESOLVED"},
	lifecycle.KindPermitExpired:          {http.StatusConflict, "PERMIT_EXPIRED"},
	lifecycle.KindConcurrentModification: {http.StatusConflict, "CONCURRENT_MODIFICATION"},
	lifecycle.KindValidation:             {http.StatusBadRequest, "INVALID_ARGUMENT"},
}

func (h *Handler) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	kind := lifecycle.KindOf(err)
	mapped, ok := errorCodes[kind]
	if !ok {
		if errors.Is(err, context.DeadlineExceeded) {
			httpx.WriteError(w, r, http.StatusGatewayTimeout, "TIMEOUT", "request timeout", nil)
			return
		}
		h.Logger.Error(r.Context(), "request_failed", "unexpected error",
			slog.String("error_code", "INTERNAL_ERROR"),
			slog.String("error", err.Error()),
		)
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error", nil)
		return
	}
	var details any
	if fields := lifecycle.FieldErrors(err); len(fields) > 0 {
		details = map[string]any{"fields": fields}
	}
	httpx.WriteError(w, r, mapped.status, mapped.code, err.Error(), details)
}

// enumParam reads an optional query value, normalized, and rejects anything outside allowed.
func enumParam[S ~string](r *http.Request, name string, allowed []S) (S, error) {
	v := workflow.Normalize(S(r.URL.Query().Get(name)))
	if v == "" || slices.Contains(allowed, v) {
		return v, nil
	}
	names := make([]string, len(allowed))
	for i, a := range allowed {
		names[i] = string(a)
	}
	return "", fmt.Errorf("%s must be one of %s", name, strings.Join(names, ", "))
}

func badRequest(w http.ResponseWriter, r *http.Request, err error) {
	httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), nil)
}

// decode reads the body into dst. Commands whose fields are all optional accept an empty body.
func decode(w http.ResponseWriter, r *http.Request, dst any, optional bool) bool {
	if optional && r.ContentLength == 0 {
		return true
	}
	if err := httpx.DecodeJSON(w, r, dst); err != nil {
		badRequest(w, r, err)
		return false
	}
	return true
}

type page struct {
	limit  int
	offset int
}

func pageParams(r *http.Request) (page, error) {
	var p page
	for name, dst := range map[string]*int{"limit": &p.limit, "offset": &p.offset} {
		raw := strings.TrimSpace(r.URL.Query().Get(name))
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return page{}, errors.New(name + " must be a non-negative integer")
		}
		*dst = v
	}
	return p, nil
}

// orActor fills an empty identity field from the actor header.
func orActor(r *http.Request, v string) string {
	if strings.TrimSpace(v) != "" {
		return v
	}
	return httpx.Actor(r)
}

type listResponse[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count"`
}

func writeList[T any](w http.ResponseWriter, items []T) {
	if items == nil {
		items = []T{}
	}
	httpx.WriteJSON(w, http.StatusOK, listResponse[T]{Items: items, Count: len(items)})
}

func (h *Handler) history(aggregate string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.History == nil {
			httpx.WriteError(w, r, http.StatusNotImplemented, "UNIMPLEMENTED", "history requires the postgres store", nil)
			return
		}
		p, err := pageParams(r)
		if err != nil {
			badRequest(w, r, err)
			return
		}
		items, err := h.History.List(r.Context(), aggregate, r.PathValue("id"), p.limit)
		if err != nil {
			h.writeErr(w, r, err)
			return
		}
		writeList(w, items)
	}
}

func (h *Handler) listNotifications(w http.ResponseWriter, r *http.Request) {
	if h.Notifications == nil {
		httpx.WriteError(w, r, http.StatusNotImplemented, "UNIMPLEMENTED", "notification listing is not available", nil)
		return
	}
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		userID = httpx.Actor(r)
	}
	if userID == "" {
		badRequest(w, r, errors.New("user_id is required"))
		return
	}
	p, err := pageParams(r)
	if err != nil {
		badRequest(w, r, err)
		return
	}
	items, err := h.Notifications.ListForUser(r.Context(), userID, p.limit)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeList(w, items)
}
