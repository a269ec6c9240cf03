package lifecycle

import (
	"context"
	"log/slog"
	"sort"
	"time"
)

const (
	SummaryCacheKey   = "compliance:summary"
	summaryScanLimit  = 10000
	summaryOverdueCap = 50
)

type SummaryPeriods struct {
	Week    Period `json:"week"`
	Month   Period `json:"month"`
	Quarter Period `json:"quarter"`
}

type ComplianceSummary struct {
	GeneratedAt    time.Time      `json:"generated_at"`
	// ValidUntil is the first instant at which a time-derived figure would change.
	ValidUntil     time.Time      `json:"valid_until"`
	Periods        SummaryPeriods `json:"periods"`
	Training       StatusCounts   `json:"training"`
	CompletionRate int            `json:"completion_rate"`
	Overdue        []TrainingView `json:"overdue"`
	DueThisWeek    int            `json:"due_this_week"`
	DueThisMonth   int            `json:"due_this_month"`
	DueThisQuarter int            `json:"due_this_quarter"`

	Alerts         map[AlertStatus]int `json:"alerts"`
	OpenBySeverity map[Severity]int    `json:"open_by_severity"`

	Equipment          map[EquipmentStatus]int `json:"equipment"`
	InspectionsOverdue int                     `json:"inspections_overdue"`

	OpenTasks     int `json:"open_tasks"`
	OrphanedTasks int `json:"orphaned_tasks"`

	PendingPermits int `json:"pending_permits"`
	ExpiredPermits int `json:"expired_permits"`
}

// FreshAt reports whether every derived figure still holds at now.
func (s ComplianceSummary) FreshAt(now time.Time) bool {
	return !s.ValidUntil.IsZero() && now.Before(s.ValidUntil)
}

// CacheTTL is ceiling shortened to the summary's validity as seen from now. ok is false when
// the summary is already stale and must not be cached.
func (s ComplianceSummary) CacheTTL(now time.Time, ceiling time.Duration) (ttl time.Duration, ok bool) {
	if !s.FreshAt(now) {
		return 0, false
	}
	ttl = s.ValidUntil.Sub(now)
	if ceiling > 0 && ceiling < ttl {
		ttl = ceiling
	}
	return ttl, true
}

// Summary returns the cached compliance summary, building and caching it on a miss or once
// the clock has passed the cached entry's ValidUntil. Cache failures fall back to a fresh
// build.
func (e *Engine) Summary(ctx context.Context) (ComplianceSummary, error) {
	if e.cache != nil {
		var cached ComplianceSummary
		ok, err := e.cache.GetJSON(ctx, SummaryCacheKey, &cached)
		if err != nil {
			e.logger.Warn(ctx, "summary_cache_read_failed", "compliance summary cache read failed", slog.String("error", err.Error()))
		} else if ok && cached.FreshAt(e.clock.Now()) {
			return cached, nil
		}
	}
	s, err := e.BuildSummary(ctx)
	if err != nil {
		return ComplianceSummary{}, err
	}
	if ttl, ok := s.CacheTTL(e.clock.Now(), e.summaryTTL); e.cache != nil && ok {
		if err := e.cache.SetJSON(ctx, SummaryCacheKey, s, ttl); err != nil {
			e.logger.Warn(ctx, "summary_cache_write_failed", "compliance summary cache write failed", slog.String("error", err.Error()))
		}
	}
	return s, nil
}

// BuildSummary computes every figure from stored facts at the current clock reading. All
// training figures go through the same status derivation used by per-record views.
func (e *Engine) BuildSummary(ctx context.Context) (ComplianceSummary, error) {
	ctx, span := tracer.Start(ctx, "compliance.summary")
	defer span.End()

	now := e.clock.Now()
	s := ComplianceSummary{
		GeneratedAt: now,
		Periods: SummaryPeriods{
			Week:    WeekRange(now),
			Month:   MonthRange(now),
			Quarter: QuarterRange(now),
		},
		Overdue:        []TrainingView{},
		Alerts:         map[AlertStatus]int{},
		OpenBySeverity: map[Severity]int{},
		Equipment:      map[EquipmentStatus]int{},
	}

	// Every figure below is derived at now; the summary stays valid until the earliest
	// instant at which one of them would change.
	s.ValidUntil = earliest(s.Periods.Week.End, s.Periods.Month.End, s.Periods.Quarter.End)
	changesAt := func(t time.Time) {
		if t.After(now) && t.Before(s.ValidUntil) {
			s.ValidUntil = t
		}
	}

	reqs, err := e.repos.Training.Query(ctx, TrainingFilter{Limit: summaryScanLimit})
	if err != nil {
		return ComplianceSummary{}, err
	}
	s.Training = AggregateTraining(reqs, now, e.window)
	for _, r := range reqs {
		v := NewTrainingView(r, now, e.window)
		if v.Status == TrainingCompleted {
			continue
		}
		changesAt(r.RequiredByDate.Add(-e.window))
		changesAt(r.RequiredByDate.Add(time.Nanosecond))
		if v.Status == TrainingOverdue {
			s.Overdue = append(s.Overdue, v)
		}
		if s.Periods.Week.Contains(r.RequiredByDate) {
			s.DueThisWeek++
		}
		if s.Periods.Month.Contains(r.RequiredByDate) {
			s.DueThisMonth++
		}
		if s.Periods.Quarter.Contains(r.RequiredByDate) {
			s.DueThisQuarter++
		}
	}
	s.CompletionRate = CalculateCompletionRate(s.Training.Completed, s.Training.Total())
	sort.Slice(s.Overdue, func(i, j int) bool {
		return s.Overdue[i].Requirement.RequiredByDate.Before(s.Overdue[j].Requirement.RequiredByDate)
	})
	if len(s.Overdue) > summaryOverdueCap {
		s.Overdue = s.Overdue[:summaryOverdueCap]
	}
	if len(s.Overdue) > 0 {
		// days_until_due on the listed views moves at midnight.
		changesAt(startOfDay(now).AddDate(0, 0, 1))
	}

	alerts, err := e.repos.Alerts.Query(ctx, AlertFilter{Limit: summaryScanLimit})
	if err != nil {
		return ComplianceSummary{}, err
	}
	for _, a := range alerts {
		status := AlertDisplayStatus(a)
		s.Alerts[status]++
		if status != AlertResolved {
			s.OpenBySeverity[a.Severity]++
		}
	}

	equipment, err := e.repos.Equipment.Query(ctx, EquipmentFilter{Limit: summaryScanLimit})
	if err != nil {
		return ComplianceSummary{}, err
	}
	known := make(map[string]bool, len(equipment))
	for _, eq := range equipment {
		known[eq.ID] = true
		s.Equipment[eq.Status]++
		if eq.Status != EquipmentRetired && eq.NextInspectionDate != nil {
			if now.After(*eq.NextInspectionDate) {
				s.InspectionsOverdue++
			}
			changesAt(eq.NextInspectionDate.Add(time.Nanosecond))
		}
	}

	tasks, err := e.repos.Maintenance.Query(ctx, TaskFilter{Limit: summaryScanLimit})
	if err != nil {
		return ComplianceSummary{}, err
	}
	for _, t := range tasks {
		if !TaskTransitions.IsTerminal(t.Status) {
			s.OpenTasks++
		}
		if !known[t.EquipmentID] {
			s.OrphanedTasks++
		}
	}

	permits, err := e.repos.Permits.Query(ctx, PermitFilter{Limit: summaryScanLimit})
	if err != nil {
		return ComplianceSummary{}, err
	}
	for _, p := range permits {
		if p.Status == PermitPending {
			changesAt(p.ValidUntil.Add(time.Nanosecond))
		}
		switch EffectivePermitStatus(p, now) {
		case PermitPending:
			s.PendingPermits++
		case PermitExpiredStatus:
			s.ExpiredPermits++
		}
	}
	return s, nil
}

func earliest(first time.Time, rest ...time.Time) time.Time {
	for _, t := range rest {
		if t.Before(first) {
			first = t
		}
	}
	return first
}

func (e *Engine) invalidateSummary(ctx context.Context) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Delete(ctx, SummaryCacheKey); err != nil {
		e.logger.Warn(ctx, "summary_cache_invalidate_failed", "compliance summary cache delete failed", slog.String("error", err.Error()))
	}
}
