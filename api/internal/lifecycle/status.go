package lifecycle

import "time"

type TrainingStatus string

const (
	TrainingNotStarted TrainingStatus = "not_started"
	TrainingInProgress TrainingStatus = "in_progress"
	TrainingOverdue    TrainingStatus = "overdue"
	TrainingCompleted  TrainingStatus = "completed"
)

// DefaultApproachingWindow marks a requirement as in_progress once its due date is this close.
const DefaultApproachingWindow = 30 * 24 * time.Hour

func AllTrainingStatuses() []TrainingStatus {
	return []TrainingStatus{TrainingNotStarted, TrainingInProgress, TrainingOverdue, TrainingCompleted}
}

func DeriveTrainingStatus(due time.Time, completion *time.Time, now time.Time) TrainingStatus {
	return DeriveTrainingStatusWithin(due, completion, now, DefaultApproachingWindow)
}

// DeriveTrainingStatusWithin is DeriveTrainingStatus with a configurable approaching window.
// A recorded completion wins over every date comparison.
func DeriveTrainingStatusWithin(due time.Time, completion *time.Time, now time.Time, window time.Duration) TrainingStatus {
	switch {
	case completion != nil && !completion.IsZero():
		return TrainingCompleted
	case now.After(due):
		return TrainingOverdue
	case due.Sub(now) <= window:
		return TrainingInProgress
	default:
		return TrainingNotStarted
	}
}

func AlertDisplayStatus(a Alert) AlertStatus {
	return a.Status
}
