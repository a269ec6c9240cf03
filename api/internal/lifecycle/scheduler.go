package lifecycle

import (
	"math"
	"strings"
	"time"
)

type Frequency string

const (
	FrequencyMonthly    Frequency = "monthly"
	FrequencyQuarterly  Frequency = "quarterly"
	FrequencySemiannual Frequency = "semiannual"
	FrequencyAnnual     Frequency = "annual"
	FrequencyBiennial   Frequency = "biennial"
)

type interval struct {
	years  int
	months int
}

var frequencyIntervals = map[Frequency]interval{
	FrequencyMonthly:    {months: 1},
	FrequencyQuarterly:  {months: 3},
	FrequencySemiannual: {months: 6},
	FrequencyAnnual:     {years: 1},
	FrequencyBiennial:   {years: 2},
}

var frequencyAliases = map[string]Frequency{
	"semi-annual": FrequencySemiannual,
	"semi_annual": FrequencySemiannual,
	"yearly":      FrequencyAnnual,
	"annually":    FrequencyAnnual,
	"biannual":    FrequencySemiannual,
}

// ParseFrequency reports whether label names a known recurrence interval.
func ParseFrequency(label string) (Frequency, bool) {
	key := strings.ToLower(strings.TrimSpace(label))
	if _, ok := frequencyIntervals[Frequency(key)]; ok {
		return Frequency(key), true
	}
	if f, ok := frequencyAliases[key]; ok {
		return f, true
	}
	return "", false
}

// NextDueDate is CalculateNextDueDate plus whether the label was recognised.
func NextDueDate(frequency string, last time.Time) (time.Time, bool) {
	f, ok := ParseFrequency(frequency)
	if !ok {
		return AddInterval(last, 1, 0), false
	}
	iv := frequencyIntervals[f]
	return AddInterval(last, iv.years, iv.months), true
}

// CalculateNextDueDate falls back to one year for unrecognised labels.
func CalculateNextDueDate(frequency string, last time.Time) time.Time {
	next, _ := NextDueDate(frequency, last)
	return next
}

// CalculateCompletionRate returns a whole percentage; an empty population is 0%.
func CalculateCompletionRate(completed int, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(completed) * 100 / float64(total)))
}

type StatusCounts struct {
	NotStarted int `json:"not_started"`
	InProgress int `json:"in_progress"`
	Overdue    int `json:"overdue"`
	Completed  int `json:"completed"`
}

func (c StatusCounts) Total() int {
	return c.NotStarted + c.InProgress + c.Overdue + c.Completed
}

func (c *StatusCounts) add(s TrainingStatus) {
	switch s {
	case TrainingNotStarted:
		c.NotStarted++
	case TrainingInProgress:
		c.InProgress++
	case TrainingOverdue:
		c.Overdue++
	case TrainingCompleted:
		c.Completed++
	}
}

// AggregateTraining buckets every requirement by its derived status. The buckets do not
// overlap, so the counts always sum to len(reqs).
func AggregateTraining(reqs []TrainingRequirement, now time.Time, window time.Duration) StatusCounts {
	var counts StatusCounts
	for _, r := range reqs {
		counts.add(r.Status(now, window))
	}
	return counts
}
