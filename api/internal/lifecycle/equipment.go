package lifecycle

import (
	"time"

	"facility-compliance-system/shared/workflow"
)

const (
	EntityEquipment       = "equipment"
	EntityAlert           = "alert"
	EntityMaintenanceTask = "maintenance_task"
	EntityPermit          = "work_permit"
	EntityTraining        = "training_requirement"
	EntityCertificate     = "certificate"
)

type EquipmentStatus string

const (
	EquipmentOperational EquipmentStatus = "operational"
	EquipmentMaintenance EquipmentStatus = "maintenance"
	EquipmentFault       EquipmentStatus = "fault"
	EquipmentRetired     EquipmentStatus = "retired"
)

type EquipmentCommand string

const (
	EquipmentMarkOperational  EquipmentCommand = "mark_operational"
	EquipmentStartMaintenance EquipmentCommand = "start_maintenance"
	EquipmentReportFault      EquipmentCommand = "report_fault"
	EquipmentRetire           EquipmentCommand = "retire"
)

type Equipment struct {
	ID                  string          `json:"id"`
	Name                string          `json:"name"`
	Category            string          `json:"category"`
	Status              EquipmentStatus `json:"status"`
	Location            string          `json:"location"`
	InspectionFrequency string          `json:"inspection_frequency,omitempty"`
	LastInspectionDate  *time.Time      `json:"last_inspection_date,omitempty"`
	NextInspectionDate  *time.Time      `json:"next_inspection_date,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
	Version             int64           `json:"version"`
}

var equipmentTargets = map[EquipmentCommand]EquipmentStatus{
	EquipmentMarkOperational:  EquipmentOperational,
	EquipmentStartMaintenance: EquipmentMaintenance,
	EquipmentReportFault:      EquipmentFault,
	EquipmentRetire:           EquipmentRetired,
}

// Operator driven: every live state may move to every other state; retired is final.
var EquipmentTransitions = buildEquipmentTable()

func buildEquipmentTable() *workflow.Table[EquipmentStatus, EquipmentCommand] {
	live := []EquipmentStatus{EquipmentOperational, EquipmentMaintenance, EquipmentFault}
	var rows []workflow.Transition[EquipmentStatus, EquipmentCommand]
	for _, from := range live {
		for cmd, to := range equipmentTargets {
			if to == from {
				continue
			}
			rows = append(rows, workflow.Transition[EquipmentStatus, EquipmentCommand]{
				From:      from,
				Command:   cmd,
				To:        to,
				EventType: "equipment_" + string(to),
			})
		}
	}
	return workflow.NewTable(EntityEquipment,
		append(live, EquipmentRetired),
		[]EquipmentStatus{EquipmentRetired},
		rows...,
	)
}

// EquipmentCommandFor maps a requested target status to the command that reaches it.
func EquipmentCommandFor(target EquipmentStatus) (EquipmentCommand, bool) {
	target = workflow.Normalize(target)
	for cmd, to := range equipmentTargets {
		if to == target {
			return cmd, true
		}
	}
	return "", false
}

// EquipmentTransition is the outcome of one equipment command. FaultEntered is the input an
// alert-raising collaborator looks at; no alert is created here.
type EquipmentTransition struct {
	Equipment    Equipment       `json:"equipment"`
	From         EquipmentStatus `json:"from"`
	Command      string          `json:"command"`
	FaultEntered bool            `json:"fault_entered"`
}

func ApplyEquipmentCommand(e Equipment, cmd EquipmentCommand, now time.Time) (EquipmentTransition, error) {
	if EquipmentTransitions.IsTerminal(e.Status) {
		return EquipmentTransition{}, InvalidTransition(EntityEquipment, e.ID, "equipment is retired")
	}
	row, ok := EquipmentTransitions.Next(e.Status, cmd)
	if !ok {
		return EquipmentTransition{}, InvalidTransition(EntityEquipment, e.ID, "cannot %s from %s", cmd, e.Status)
	}
	from := e.Status
	e.Status = row.To
	e.UpdatedAt = now
	return EquipmentTransition{
		Equipment:    e,
		From:         from,
		Command:      string(cmd),
		FaultEntered: row.To == EquipmentFault,
	}, nil
}

// RecordEquipmentInspection stamps the inspection date and schedules the next one.
func RecordEquipmentInspection(e Equipment, at time.Time, now time.Time) (Equipment, bool, error) {
	if EquipmentTransitions.IsTerminal(e.Status) {
		return Equipment{}, false, InvalidTransition(EntityEquipment, e.ID, "equipment is retired")
	}
	if at.IsZero() {
		return Equipment{}, false, Validation(EntityEquipment, FieldError{Field: "inspected_at", Message: "is required"})
	}
	if at.After(now) {
		return Equipment{}, false, Validation(EntityEquipment, FieldError{Field: "inspected_at", Message: "must not be in the future"})
	}
	next, known := NextDueDate(e.InspectionFrequency, at)
	e.LastInspectionDate = &at
	e.NextInspectionDate = &next
	e.UpdatedAt = now
	return e, known, nil
}
