package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ChatMessage is append-only; only Read ever changes.
type ChatMessage struct {
	ID             primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	SenderID       primitive.ObjectID  `bson:"sender" json:"sender"`
	ReceiverID     primitive.ObjectID  `bson:"receiver" json:"receiver"`
	Message        string              `bson:"message,omitempty" json:"message,omitempty"`
	Image          string              `bson:"image,omitempty" json:"image,omitempty"`
	Read           bool                `bson:"read" json:"read"`
	IsAlert        bool                `bson:"isAlert" json:"isAlert"`
	RelatedWorkout *primitive.ObjectID `bson:"relatedWorkout,omitempty" json:"relatedWorkout,omitempty"`
	CreatedAt      time.Time           `bson:"createdAt" json:"createdAt"`
}

// Counterpart returns the other participant of the message from userID's view.
func (m *ChatMessage) Counterpart(userID primitive.ObjectID) primitive.ObjectID {
	if m.SenderID == userID {
		return m.ReceiverID
	}
	return m.SenderID
}

// ContactSummary is one entry of a contact list.
type ContactSummary struct {
	UserID       primitive.ObjectID `json:"userId"`
	Name         string             `json:"name"`
	ProfileImage string             `json:"profileImage,omitempty"`
	Role         RoleName           `json:"role,omitempty"`
	LastMessage  *ChatMessage       `json:"lastMessage,omitempty"`
	UnreadCount  int                `json:"unreadCount"`
}
