package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	MaxExercisesPerSession = 10
	// MaxSessionWindowMinutes bounds the spread of exercise times in a session.
	MaxSessionWindowMinutes = 300
)

var (
	ErrTooManyExercises      = newValidationError("Máximo de 10 exercícios por sessão")
	ErrSessionWindowExceeded = newValidationError("Os exercícios de uma sessão devem caber numa janela de 5 horas")
	ErrInvalidTimeFormat     = newValidationError("Hora inválida, use o formato HH:mm")
	ErrInvalidDayOfWeek      = newValidationError("Dia da semana inválido")
	ErrSessionTimeOrder      = newValidationError("A hora de fim deve ser posterior à hora de início")
	ErrExerciseNameRequired  = newValidationError("Cada exercício precisa de um nome")
)

// DayOfWeek is stored by its English name.
type DayOfWeek string

const (
	Monday    DayOfWeek = "Monday"
	Tuesday   DayOfWeek = "Tuesday"
	Wednesday DayOfWeek = "Wednesday"
	Thursday  DayOfWeek = "Thursday"
	Friday    DayOfWeek = "Friday"
	Saturday  DayOfWeek = "Saturday"
	Sunday    DayOfWeek = "Sunday"
)

var weekOrder = map[DayOfWeek]int{
	Monday: 1, Tuesday: 2, Wednesday: 3, Thursday: 4, Friday: 5, Saturday: 6, Sunday: 7,
}

// ParseDayOfWeek accepts any casing of the English day name.
func ParseDayOfWeek(s string) (DayOfWeek, error) {
	for d := range weekOrder {
		if strings.EqualFold(string(d), strings.TrimSpace(s)) {
			return d, nil
		}
	}
	return "", ErrInvalidDayOfWeek
}

// Index returns 1 for Monday through 7 for Sunday.
func (d DayOfWeek) Index() int {
	return weekOrder[d]
}

// Exercise is an ordered entry inside a session.
type Exercise struct {
	Name         string `bson:"name" json:"name"`
	Sets         int    `bson:"sets" json:"sets"`
	Reps         int    `bson:"reps" json:"reps"`
	Order        int    `bson:"order" json:"order"`
	Time         string `bson:"time,omitempty" json:"time,omitempty"` // HH:mm, defaults to the session start
	Img          string `bson:"img,omitempty" json:"img,omitempty"`
	Instructions string `bson:"instructions,omitempty" json:"instructions,omitempty"`
	VideoLink    string `bson:"videoLink,omitempty" json:"videoLink,omitempty"`
}

// WorkoutSession is one weekly-recurring slot of a plan. There is one per (plan, day).
type WorkoutSession struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	PlanID    primitive.ObjectID `bson:"plan" json:"plan"`
	DayOfWeek DayOfWeek          `bson:"dayOfWeek" json:"dayOfWeek"`
	StartTime string             `bson:"startTime" json:"startTime"`
	EndTime   string             `bson:"endTime" json:"endTime"`
	Exercises []Exercise         `bson:"exercises" json:"exercises"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// SessionInput is the replaceable part of a session.
type SessionInput struct {
	StartTime string
	EndTime   string
	Exercises []Exercise
}

// ParseClock converts "HH:mm" into minutes since midnight.
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, ErrInvalidTimeFormat
	}
	return t.Hour()*60 + t.Minute(), nil
}

// FormatClock is the inverse of ParseClock.
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// Normalize validates the input and returns it with exercises ordered.
// Exercises without an explicit order keep their position.
func (in SessionInput) Normalize() (SessionInput, error) {
	if len(in.Exercises) > MaxExercisesPerSession {
		return in, ErrTooManyExercises
	}

	start, err := ParseClock(in.StartTime)
	if err != nil {
		return in, err
	}
	if in.EndTime != "" {
		end, err := ParseClock(in.EndTime)
		if err != nil {
			return in, err
		}
		if end <= start {
			return in, ErrSessionTimeOrder
		}
	}

	exercises := make([]Exercise, len(in.Exercises))
	copy(exercises, in.Exercises)
	for i := range exercises {
		exercises[i].Name = strings.TrimSpace(exercises[i].Name)
		if exercises[i].Name == "" {
			return in, ErrExerciseNameRequired
		}
		if exercises[i].Time != "" {
			m, err := ParseClock(exercises[i].Time)
			if err != nil {
				return in, err
			}
			exercises[i].Time = FormatClock(m)
		}
		if exercises[i].Order <= 0 {
			exercises[i].Order = i + 1
		}
	}
	sort.SliceStable(exercises, func(i, j int) bool { return exercises[i].Order < exercises[j].Order })

	if err := checkWindow(start, exercises); err != nil {
		return in, err
	}

	in.StartTime = FormatClock(start)
	if in.EndTime != "" {
		end, _ := ParseClock(in.EndTime)
		in.EndTime = FormatClock(end)
	}
	in.Exercises = exercises
	return in, nil
}

// checkWindow enforces max(time)-min(time) < MaxSessionWindowMinutes,
// where an exercise without its own time is placed at the session start.
func checkWindow(start int, exercises []Exercise) error {
	if len(exercises) < 2 {
		return nil
	}
	lo, hi := -1, -1
	for _, ex := range exercises {
		at := start
		if ex.Time != "" {
			m, err := ParseClock(ex.Time)
			if err != nil {
				return err
			}
			at = m
		}
		if lo == -1 || at < lo {
			lo = at
		}
		if hi == -1 || at > hi {
			hi = at
		}
	}
	if hi-lo >= MaxSessionWindowMinutes {
		return ErrSessionWindowExceeded
	}
	return nil
}

// SortSessions orders sessions Monday to Sunday, then by start time.
func SortSessions(sessions []WorkoutSession) {
	sort.SliceStable(sessions, func(i, j int) bool {
		di, dj := sessions[i].DayOfWeek.Index(), sessions[j].DayOfWeek.Index()
		if di != dj {
			return di < dj
		}
		return sessions[i].StartTime < sessions[j].StartTime
	})
}
