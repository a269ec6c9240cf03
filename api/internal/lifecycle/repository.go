package lifecycle

import (
	"context"
	"time"
)

// Repositories own persistence. Save is conflict-aware: the entity's Version must equal the
// stored version, otherwise the call fails with ConcurrentModification. A successful Save
// returns the entity with its new Version.

type EquipmentFilter struct {
	Status   EquipmentStatus
	Location string
	Limit    int
	Offset   int
}

type EquipmentRepository interface {
	Get(ctx context.Context, id string) (Equipment, error)
	Create(ctx context.Context, e Equipment) (Equipment, error)
	Save(ctx context.Context, e Equipment) (Equipment, error)
	Delete(ctx context.Context, id string) error
	Query(ctx context.Context, f EquipmentFilter) ([]Equipment, error)
}

type AlertFilter struct {
	Status      AlertStatus
	Severity    Severity
	EquipmentID string
	Limit       int
	Offset      int
}

type AlertRepository interface {
	Get(ctx context.Context, id string) (Alert, error)
	Create(ctx context.Context, a Alert) (Alert, error)
	Save(ctx context.Context, a Alert) (Alert, error)
	Query(ctx context.Context, f AlertFilter) ([]Alert, error)
}

type TaskFilter struct {
	Status      TaskStatus
	EquipmentID string
	AssignedTo  string
	Limit       int
	Offset      int
}

type MaintenanceRepository interface {
	Get(ctx context.Context, id string) (MaintenanceTask, error)
	Create(ctx context.Context, t MaintenanceTask) (MaintenanceTask, error)
	Save(ctx context.Context, t MaintenanceTask) (MaintenanceTask, error)
	Query(ctx context.Context, f TaskFilter) ([]MaintenanceTask, error)
}

type PermitFilter struct {
	Status      PermitStatus
	RequestedBy string
	Limit       int
	Offset      int
}

type PermitRepository interface {
	Get(ctx context.Context, id string) (WorkPermit, error)
	Create(ctx context.Context, p WorkPermit) (WorkPermit, error)
	Save(ctx context.Context, p WorkPermit) (WorkPermit, error)
	Query(ctx context.Context, f PermitFilter) ([]WorkPermit, error)
}

type TrainingFilter struct {
	UserID     string
	TrainingID string
	DueBefore  *time.Time
	Limit      int
	Offset     int
}

// TrainingRepository stores requirements together with their certificates. Certificates
// already stored are never rewritten by Save; only new ones are appended.
type TrainingRepository interface {
	Get(ctx context.Context, id string) (TrainingRequirement, error)
	Create(ctx context.Context, r TrainingRequirement) (TrainingRequirement, error)
	Save(ctx context.Context, r TrainingRequirement) (TrainingRequirement, error)
	Query(ctx context.Context, f TrainingFilter) ([]TrainingRequirement, error)
}

type Repositories struct {
	Equipment   EquipmentRepository
	Alerts      AlertRepository
	Maintenance MaintenanceRepository
	Permits     PermitRepository
	Training    TrainingRepository
}

// Locker provides an optional per-entity writer lock. acquired is false when another
// writer holds the key.
type Locker interface {
	TryLock(ctx context.Context, key string) (unlock func(context.Context) error, acquired bool, err error)
}

// JSONCache backs cached read models such as the compliance summary.
type JSONCache interface {
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

const defaultPageSize = 100

// paginate applies offset and limit to rows already filtered in memory, with the same
// defaults the repositories use.
func paginate[T any](rows []T, offset int, limit int) []T {
	if limit <= 0 {
		limit = defaultPageSize
	}
	offset = max(offset, 0)
	if offset >= len(rows) {
		return rows[:0]
	}
	return rows[offset:min(offset+limit, len(rows))]
}
