package snapshots

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facility-compliance-system/api/internal/lifecycle"
	"facility-compliance-system/shared/influxx"
)

type capture struct{ points []influxx.Point }

func (c *capture) WritePoints(_ context.Context, points ...influxx.Point) error {
	c.points = append(c.points, points...)
	return nil
}

func TestPoints(t *testing.T) {
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	sum := lifecycle.ComplianceSummary{
		GeneratedAt:    at,
		Training:       lifecycle.StatusCounts{NotStarted: 1, Overdue: 2, Completed: 1},
		CompletionRate: 25,
		OpenBySeverity: map[lifecycle.Severity]int{lifecycle.SeverityHigh: 2, lifecycle.SeverityCritical: 1},
		Equipment:      map[lifecycle.EquipmentStatus]int{lifecycle.EquipmentOperational: 4},
	}
	c := &capture{}
	require.NoError(t, Write(context.Background(), c, sum, "test"))
	require.Len(t, c.points, 4)

	head := c.points[0]
	assert.Equal(t, MeasurementCompliance, head.Measurement)
	assert.Equal(t, 25, head.Fields["completion_rate"])
	assert.Equal(t, 4, head.Fields["training_total"])
	assert.Equal(t, at, head.Time)

	assert.Equal(t, "critical", c.points[1].Tags["severity"])
	assert.Equal(t, "high", c.points[2].Tags["severity"])
	assert.Equal(t, MeasurementEquipment, c.points[3].Measurement)
	assert.Equal(t, 4, c.points[3].Fields["count"])
}
