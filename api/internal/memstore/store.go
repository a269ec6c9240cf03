package memstore

import (
	"context"
	"strings"
	"sync"
	"time"

	"facility-compliance-system/api/internal/lifecycle"
)

type Store struct {
	equipment   *table[lifecycle.Equipment]
	alerts      *table[lifecycle.Alert]
	maintenance *table[lifecycle.MaintenanceTask]
	permits     *table[lifecycle.WorkPermit]
	training    *table[lifecycle.TrainingRequirement]
	certMu      sync.Mutex
}

func New() *Store {
	return &Store{
		equipment: newTable(lifecycle.EntityEquipment,
			func(e lifecycle.Equipment) string { return e.ID },
			func(e lifecycle.Equipment) int64 { return e.Version },
			func(e lifecycle.Equipment, v int64) lifecycle.Equipment { e.Version = v; return e },
			func(e lifecycle.Equipment) time.Time { return e.CreatedAt },
		),
		alerts: newTable(lifecycle.EntityAlert,
			func(a lifecycle.Alert) string { return a.ID },
			func(a lifecycle.Alert) int64 { return a.Version },
			func(a lifecycle.Alert, v int64) lifecycle.Alert { a.Version = v; return a },
			func(a lifecycle.Alert) time.Time { return a.CreatedAt },
		),
		maintenance: newTable(lifecycle.EntityMaintenanceTask,
			func(t lifecycle.MaintenanceTask) string { return t.ID },
			func(t lifecycle.MaintenanceTask) int64 { return t.Version },
			func(t lifecycle.MaintenanceTask, v int64) lifecycle.MaintenanceTask { t.Version = v; return t },
			func(t lifecycle.MaintenanceTask) time.Time { return t.CreatedAt },
		),
		permits: newTable(lifecycle.EntityPermit,
			func(p lifecycle.WorkPermit) string { return p.ID },
			func(p lifecycle.WorkPermit) int64 { return p.Version },
			func(p lifecycle.WorkPermit, v int64) lifecycle.WorkPermit { p.Version = v; return p },
			func(p lifecycle.WorkPermit) time.Time { return p.CreatedAt },
		),
		training: newTable(lifecycle.EntityTraining,
			func(r lifecycle.TrainingRequirement) string { return r.ID },
			func(r lifecycle.TrainingRequirement) int64 { return r.Version },
			func(r lifecycle.TrainingRequirement, v int64) lifecycle.TrainingRequirement { r.Version = v; return r },
			func(r lifecycle.TrainingRequirement) time.Time { return r.CreatedAt },
		),
	}
}

func (s *Store) Repositories() lifecycle.Repositories {
	return lifecycle.Repositories{
		Equipment:   EquipmentRepo{s},
		Alerts:      AlertRepo{s},
		Maintenance: MaintenanceRepo{s},
		Permits:     PermitRepo{s},
		Training:    TrainingRepo{s},
	}
}

type EquipmentRepo struct{ s *Store }

func (r EquipmentRepo) Get(_ context.Context, id string) (lifecycle.Equipment, error) {
	return r.s.equipment.get(id)
}

func (r EquipmentRepo) Create(_ context.Context, e lifecycle.Equipment) (lifecycle.Equipment, error) {
	return r.s.equipment.create(e)
}

func (r EquipmentRepo) Save(_ context.Context, e lifecycle.Equipment) (lifecycle.Equipment, error) {
	return r.s.equipment.save(e)
}

func (r EquipmentRepo) Delete(_ context.Context, id string) error {
	return r.s.equipment.delete(id)
}

func (r EquipmentRepo) Query(_ context.Context, f lifecycle.EquipmentFilter) ([]lifecycle.Equipment, error) {
	return r.s.equipment.query(func(e lifecycle.Equipment) bool {
		if f.Status != "" && e.Status != f.Status {
			return false
		}
		if f.Location != "" && !strings.EqualFold(e.Location, f.Location) {
			return false
		}
		return true
	}, f.Limit, f.Offset), nil
}

type AlertRepo struct{ s *Store }

func (r AlertRepo) Get(_ context.Context, id string) (lifecycle.Alert, error) {
	return r.s.alerts.get(id)
}

func (r AlertRepo) Create(_ context.Context, a lifecycle.Alert) (lifecycle.Alert, error) {
	return r.s.alerts.create(a)
}

func (r AlertRepo) Save(_ context.Context, a lifecycle.Alert) (lifecycle.Alert, error) {
	return r.s.alerts.save(a)
}

func (r AlertRepo) Query(_ context.Context, f lifecycle.AlertFilter) ([]lifecycle.Alert, error) {
	return r.s.alerts.query(func(a lifecycle.Alert) bool {
		if f.Status != "" && a.Status != f.Status {
			return false
		}
		if f.Severity != "" && a.Severity != f.Severity {
			return false
		}
		if f.EquipmentID != "" && (a.EquipmentID == nil || *a.EquipmentID != f.EquipmentID) {
			return false
		}
		return true
	}, f.Limit, f.Offset), nil
}

type MaintenanceRepo struct{ s *Store }

func (r MaintenanceRepo) Get(_ context.Context, id string) (lifecycle.MaintenanceTask, error) {
	return r.s.maintenance.get(id)
}

func (r MaintenanceRepo) Create(_ context.Context, t lifecycle.MaintenanceTask) (lifecycle.MaintenanceTask, error) {
	return r.s.maintenance.create(t)
}

func (r MaintenanceRepo) Save(_ context.Context, t lifecycle.MaintenanceTask) (lifecycle.MaintenanceTask, error) {
	return r.s.maintenance.save(t)
}

func (r MaintenanceRepo) Query(_ context.Context, f lifecycle.TaskFilter) ([]lifecycle.MaintenanceTask, error) {
	return r.s.maintenance.query(func(t lifecycle.MaintenanceTask) bool {
		if f.Status != "" && t.Status != f.Status {
			return false
		}
		if f.EquipmentID != "" && t.EquipmentID != f.EquipmentID {
			return false
		}
		if f.AssignedTo != "" && (t.AssignedTo == nil || *t.AssignedTo != f.AssignedTo) {
			return false
		}
		return true
	}, f.Limit, f.Offset), nil
}

type PermitRepo struct{ s *Store }

func (r PermitRepo) Get(_ context.Context, id string) (lifecycle.WorkPermit, error) {
	return r.s.permits.get(id)
}

func (r PermitRepo) Create(_ context.Context, p lifecycle.WorkPermit) (lifecycle.WorkPermit, error) {
	return r.s.permits.create(p)
}

func (r PermitRepo) Save(_ context.Context, p lifecycle.WorkPermit) (lifecycle.WorkPermit, error) {
	return r.s.permits.save(p)
}

func (r PermitRepo) Query(_ context.Context, f lifecycle.PermitFilter) ([]lifecycle.WorkPermit, error) {
	return r.s.permits.query(func(p lifecycle.WorkPermit) bool {
		if f.Status != "" && p.Status != f.Status {
			return false
		}
		if f.RequestedBy != "" && p.RequestedBy != f.RequestedBy {
			return false
		}
		return true
	}, f.Limit, f.Offset), nil
}

type TrainingRepo struct{ s *Store }

func (r TrainingRepo) Get(_ context.Context, id string) (lifecycle.TrainingRequirement, error) {
	return r.s.training.get(id)
}

func (r TrainingRepo) Create(_ context.Context, req lifecycle.TrainingRequirement) (lifecycle.TrainingRequirement, error) {
	req.Certificates = nil
	return r.s.training.create(req)
}

// Save keeps stored certificates as they are and appends only ones it has not seen.
func (r TrainingRepo) Save(_ context.Context, req lifecycle.TrainingRequirement) (lifecycle.TrainingRequirement, error) {
	r.s.certMu.Lock()
	defer r.s.certMu.Unlock()
	cur, err := r.s.training.get(req.ID)
	if err != nil {
		return lifecycle.TrainingRequirement{}, err
	}
	known := make(map[string]bool, len(cur.Certificates))
	certs := make([]lifecycle.CertificateRecord, 0, len(req.Certificates))
	for _, c := range cur.Certificates {
		known[c.ID] = true
		certs = append(certs, c)
	}
	for _, c := range req.Certificates {
		if !known[c.ID] {
			certs = append(certs, c)
		}
	}
	req.Certificates = certs
	return r.s.training.save(req)
}

func (r TrainingRepo) Query(_ context.Context, f lifecycle.TrainingFilter) ([]lifecycle.TrainingRequirement, error) {
	return r.s.training.query(func(req lifecycle.TrainingRequirement) bool {
		if f.UserID != "" && req.UserID != f.UserID {
			return false
		}
		if f.TrainingID != "" && req.TrainingID != f.TrainingID {
			return false
		}
		if f.DueBefore != nil && !req.RequiredByDate.Before(*f.DueBefore) {
			return false
		}
		return true
	}, f.Limit, f.Offset), nil
}

// BumpAlert advances the stored alert version as if another writer had saved it.
func (s *Store) BumpAlert(a lifecycle.Alert) { s.alerts.overwrite(a) }
