// Package snapshots turns compliance summaries into time series and reads them back.
package snapshots

import (
	"context"
	"sort"
	"time"

	"facility-compliance-system/api/internal/lifecycle"
	"facility-compliance-system/shared/influxx"
)

const (
	MeasurementCompliance = "compliance_snapshot"
	MeasurementAlerts     = "open_alerts"
	MeasurementEquipment  = "equipment_status"
)

// Points flattens one summary. Map-backed series are emitted in sorted tag order.
func Points(sum lifecycle.ComplianceSummary, env string) []influxx.Point {
	tags := map[string]string{"env": env}
	at := sum.GeneratedAt
	points := []influxx.Point{{
		Measurement: MeasurementCompliance,
		Tags:        tags,
		Time:        at,
		Fields: map[string]any{
			"completion_rate":     sum.CompletionRate,
			"training_total":      sum.Training.Total(),
			"not_started":         sum.Training.NotStarted,
			"in_progress":         sum.Training.InProgress,
			"overdue":             sum.Training.Overdue,
			"completed":           sum.Training.Completed,
			"due_this_week":       sum.DueThisWeek,
			"due_this_month":      sum.DueThisMonth,
			"due_this_quarter":    sum.DueThisQuarter,
			"inspections_overdue": sum.InspectionsOverdue,
			"open_tasks":          sum.OpenTasks,
			"orphaned_tasks":      sum.OrphanedTasks,
			"pending_permits":     sum.PendingPermits,
			"expired_permits":     sum.ExpiredPermits,
		},
	}}

	severities := make([]string, 0, len(sum.OpenBySeverity))
	for s := range sum.OpenBySeverity {
		severities = append(severities, string(s))
	}
	sort.Strings(severities)
	for _, s := range severities {
		points = append(points, influxx.Point{
			Measurement: MeasurementAlerts,
			Tags:        map[string]string{"env": env, "severity": s},
			Fields:      map[string]any{"count": sum.OpenBySeverity[lifecycle.Severity(s)]},
			Time:        at,
		})
	}

	statuses := make([]string, 0, len(sum.Equipment))
	for s := range sum.Equipment {
		statuses = append(statuses, string(s))
	}
	sort.Strings(statuses)
	for _, s := range statuses {
		points = append(points, influxx.Point{
			Measurement: MeasurementEquipment,
			Tags:        map[string]string{"env": env, "status": s},
			Fields:      map[string]any{"count": sum.Equipment[lifecycle.EquipmentStatus(s)]},
			Time:        at,
		})
	}
	return points
}

type Writer interface {
	WritePoints(ctx context.Context, points ...influxx.Point) error
}

func Write(ctx context.Context, w Writer, sum lifecycle.ComplianceSummary, env string) error {
	return w.WritePoints(ctx, Points(sum, env)...)
}

// Reader serves the compliance snapshot series for the trailing window.
type Reader struct {
	Client *influxx.Client
}

func (r Reader) Snapshots(ctx context.Context, window time.Duration) ([]influxx.Record, error) {
	return r.Client.QueryRecords(ctx, influxx.RangeFlux(r.Client.Bucket(), MeasurementCompliance, window))
}
