package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	DefaultWeeklyFrequency = 3
	MinWeeklyFrequency     = 1
	MaxWeeklyFrequency     = 7
)

// WorkoutPlan is the trainer-authored weekly schedule for one client.
// A client has at most one active plan; inactive plans are history.
type WorkoutPlan struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	TrainerID       primitive.ObjectID `bson:"trainer" json:"trainer"`
	ClientID        primitive.ObjectID `bson:"client" json:"client"`
	WeeklyFrequency int                `bson:"weeklyFrequency" json:"weeklyFrequency"`
	Name            string             `bson:"name" json:"name"`
	Goal            string             `bson:"goal,omitempty" json:"goal,omitempty"`
	Notes           string             `bson:"notes,omitempty" json:"notes,omitempty"`
	StartDate       time.Time          `bson:"startDate" json:"startDate"`
	EndDate         *time.Time         `bson:"endDate,omitempty" json:"endDate,omitempty"`
	Active          bool               `bson:"active" json:"active"`
	CreatedAt       time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// PlanUpdate is the whitelist of fields a plan edit may touch.
type PlanUpdate struct {
	Name            *string
	Goal            *string
	Notes           *string
	Active          *bool
	WeeklyFrequency *int
}

// ValidWeeklyFrequency reports whether n sessions per week is allowed.
func ValidWeeklyFrequency(n int) bool {
	return n >= MinWeeklyFrequency && n <= MaxWeeklyFrequency
}
