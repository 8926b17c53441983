package domain

import (
	"fmt"
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const dateLayout = "2006-01-02"

var ErrInvalidDate = newValidationError("Data inválida, use o formato AAAA-MM-DD")

// WorkoutCompletion is a client's attendance record for one session on one date.
// (SessionID, ClientID, Date) is unique.
type WorkoutCompletion struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SessionID primitive.ObjectID `bson:"session" json:"session"`
	ClientID  primitive.ObjectID `bson:"client" json:"client"`
	Date      time.Time          `bson:"date" json:"date"`
	Completed bool               `bson:"completed" json:"completed"`
	Reason    string             `bson:"reason,omitempty" json:"reason,omitempty"`
	Proof     string             `bson:"proof,omitempty" json:"proof,omitempty"`
	ProofKey  string             `bson:"proofKey,omitempty" json:"-"`
	Notes     string             `bson:"notes,omitempty" json:"notes,omitempty"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// CompletionInput is what a client reports for a date.
type CompletionInput struct {
	Completed bool
	Reason    string
	ProofURL  string
	ProofKey  string
	Notes     string
}

// CompletionRange filters completions by date, both bounds inclusive.
type CompletionRange struct {
	Start *time.Time
	End   *time.Time
}

// CalendarDay truncates t to midnight UTC of its own calendar day.
func CalendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate reads "YYYY-MM-DD" (or RFC3339) into a calendar day.
func ParseDate(s string) (time.Time, error) {
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return CalendarDay(t), nil
}

// FormatDate renders a calendar day as "YYYY-MM-DD".
func FormatDate(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

// StatsPeriod selects the statistics window.
type StatsPeriod string

const (
	PeriodWeek  StatsPeriod = "week"
	PeriodMonth StatsPeriod = "month"
)

var ErrInvalidPeriod = newValidationError("Período inválido, use week ou month")

// ParseStatsPeriod defaults to week when s is empty.
func ParseStatsPeriod(s string) (StatsPeriod, error) {
	switch StatsPeriod(s) {
	case "", PeriodWeek:
		return PeriodWeek, nil
	case PeriodMonth:
		return PeriodMonth, nil
	}
	return "", ErrInvalidPeriod
}

// WindowStart returns the first calendar day that falls inside the period
// ending at now: the last seven days, or the last calendar month.
func (p StatsPeriod) WindowStart(now time.Time) time.Time {
	start := now.AddDate(0, 0, -7)
	if p == PeriodMonth {
		start = monthBefore(now)
	}
	day := CalendarDay(start)
	if day.Before(start) {
		day = day.AddDate(0, 0, 1)
	}
	return day
}

// monthBefore steps back one calendar month, clamping to the shorter month's
// last day (Mar 31 -> Feb 29) instead of overflowing forward.
func monthBefore(t time.Time) time.Time {
	y, m, d := t.Date()
	if last := time.Date(y, m, 0, 0, 0, 0, 0, t.Location()).Day(); d > last {
		d = last
	}
	return time.Date(y, m-1, d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// WeekStats counts one ISO week.
type WeekStats struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// CompletionStats summarises completions over a window.
type CompletionStats struct {
	Total          int                  `json:"total"`
	Completed      int                  `json:"completed"`
	Missed         int                  `json:"missed"`
	CompletionRate float64              `json:"completionRate"`
	ByWeek         map[string]WeekStats `json:"byWeek"`
}

// ISOWeekLabel formats the Thursday-anchored ISO week of t as "YYYY-W<n>".
func ISOWeekLabel(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%d", year, week)
}

// ComputeStats aggregates completions. The rate is a percentage with one
// decimal and is 0 when there is nothing to count.
func ComputeStats(completions []WorkoutCompletion) CompletionStats {
	stats := CompletionStats{ByWeek: make(map[string]WeekStats)}
	for _, c := range completions {
		stats.Total++
		label := ISOWeekLabel(c.Date)
		week := stats.ByWeek[label]
		week.Total++
		if c.Completed {
			stats.Completed++
			week.Completed++
		} else {
			stats.Missed++
		}
		stats.ByWeek[label] = week
	}
	if stats.Total > 0 {
		rate := float64(stats.Completed) / float64(stats.Total) * 100
		stats.CompletionRate = math.Round(rate*10) / 10
	}
	return stats
}
