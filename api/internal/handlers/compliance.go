package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"facility-compliance-system/shared/httpx"
)

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	var (
		sum any
		err error
	)
	if r.URL.Query().Get("fresh") == "true" {
		sum, err = h.Engine.BuildSummary(r.Context())
	} else {
		sum, err = h.Engine.Summary(r.Context())
	}
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, sum)
}

func (h *Handler) snapshotHistory(w http.ResponseWriter, r *http.Request) {
	if h.Snapshots == nil {
		httpx.WriteError(w, r, http.StatusNotImplemented, "UNIMPLEMENTED", "snapshot history requires influxdb", nil)
		return
	}
	days := 30
	if raw := strings.TrimSpace(r.URL.Query().Get("days")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 || v > 366 {
			badRequest(w, r, errors.New("days must be between 1 and 366"))
			return
		}
		days = v
	}
	records, err := h.Snapshots.Snapshots(r.Context(), time.Duration(days)*24*time.Hour)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeList(w, records)
}
