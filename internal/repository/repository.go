package repository

import (
	"context"
	"time"

	"gymflow/gym-api/internal/domain"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrNotFound     = RepositoryError("not found")
	ErrDuplicate    = RepositoryError("duplicate key")
	ErrUpdateFailed = RepositoryError("update failed")
)

// RepositoryError helps distinguish repository errors
type RepositoryError string

func (e RepositoryError) Error() string {
	return string(e)
}

// UserFilter narrows ListUsers. Zero values mean "any".
type UserFilter struct {
	Role      domain.RoleName
	CreatedBy *primitive.ObjectID
	Trainer   *primitive.ObjectID
}

// UserRepository defines the interface for interacting with user data.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) (primitive.ObjectID, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.User, error)
	GetByIDs(ctx context.Context, ids []primitive.ObjectID) ([]domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByNameKey(ctx context.Context, nameKey string) (*domain.User, error)
	GetByInviteCode(ctx context.Context, code string) (*domain.User, error)
	GetByResetToken(ctx context.Context, tokenHash string, now time.Time) (*domain.User, error)
	List(ctx context.Context, filter UserFilter) ([]domain.User, error)
	// ListClientsOf returns users whose trainer or createdBy is trainerID.
	ListClientsOf(ctx context.Context, trainerID primitive.ObjectID) ([]domain.User, error)
	CountByRole(ctx context.Context, role domain.RoleName) (int64, error)
	// Update replaces every mutable field of the stored document with user's.
	Update(ctx context.Context, user *domain.User) error
	SetInviteCode(ctx context.Context, id primitive.ObjectID, code string) error
	// SetTrainer fails with ErrUpdateFailed when the user already has a trainer.
	SetTrainer(ctx context.Context, id, trainerID primitive.ObjectID) error
	// ClearTrainer unsets trainer, and createdBy too when it still equals trainerID.
	ClearTrainer(ctx context.Context, id, trainerID primitive.ObjectID) error
	SetResetToken(ctx context.Context, id primitive.ObjectID, tokenHash string, expires time.Time) error
	SetPassword(ctx context.Context, id primitive.ObjectID, passwordHash string) error
	Delete(ctx context.Context, id primitive.ObjectID) error
}

// DisassociationRepository stores disassociation requests.
type DisassociationRepository interface {
	// Create fails with ErrDuplicate when the user already has a pending request.
	Create(ctx context.Context, req *domain.DisassociationRequest) (primitive.ObjectID, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.DisassociationRequest, error)
	GetPendingByUser(ctx context.Context, userID primitive.ObjectID) (*domain.DisassociationRequest, error)
	List(ctx context.Context, status domain.RequestStatus) ([]domain.DisassociationRequest, error)
	ListByUser(ctx context.Context, userID primitive.ObjectID) ([]domain.DisassociationRequest, error)
	// Resolve moves a pending request to status. It returns ErrUpdateFailed
	// when the request is no longer pending.
	Resolve(ctx context.Context, id primitive.ObjectID, status domain.RequestStatus, by primitive.ObjectID, at time.Time) (*domain.DisassociationRequest, error)
	// Reopen moves a request still in status back to pending. It returns
	// ErrUpdateFailed when the request has moved on.
	Reopen(ctx context.Context, id primitive.ObjectID, status domain.RequestStatus) error
}

// WorkoutPlanRepository defines the interface for interacting with plan data.
type WorkoutPlanRepository interface {
	// Create inserts the plan; an active plan deactivates the client's other
	// active plans in the same transaction.
	Create(ctx context.Context, plan *domain.WorkoutPlan) (primitive.ObjectID, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.WorkoutPlan, error)
	GetActiveByClient(ctx context.Context, clientID primitive.ObjectID) (*domain.WorkoutPlan, error)
	ListByTrainer(ctx context.Context, trainerID primitive.ObjectID) ([]domain.WorkoutPlan, error)
	ListInactiveByClient(ctx context.Context, clientID primitive.ObjectID) ([]domain.WorkoutPlan, error)
	ListIDsByClient(ctx context.Context, clientID primitive.ObjectID, trainerID *primitive.ObjectID) ([]primitive.ObjectID, error)
	Update(ctx context.Context, id primitive.ObjectID, upd domain.PlanUpdate) (*domain.WorkoutPlan, error)
	// Activate makes id the only active plan of its client, atomically.
	Activate(ctx context.Context, id primitive.ObjectID) (*domain.WorkoutPlan, error)
	Deactivate(ctx context.Context, id primitive.ObjectID) (*domain.WorkoutPlan, error)
	Delete(ctx context.Context, id primitive.ObjectID) error
	DeleteMany(ctx context.Context, ids []primitive.ObjectID) (int64, error)
}

// WorkoutSessionRepository defines the interface for interacting with session data.
type WorkoutSessionRepository interface {
	// Upsert is an atomic find-or-create keyed by (planID, day).
	Upsert(ctx context.Context, planID primitive.ObjectID, day domain.DayOfWeek, in domain.SessionInput) (*domain.WorkoutSession, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.WorkoutSession, error)
	GetByIDs(ctx context.Context, ids []primitive.ObjectID) ([]domain.WorkoutSession, error)
	ListByPlan(ctx context.Context, planID primitive.ObjectID) ([]domain.WorkoutSession, error)
	Delete(ctx context.Context, id primitive.ObjectID) error
	DeleteByPlans(ctx context.Context, planIDs []primitive.ObjectID) (int64, error)
}

// CompletionRepository stores workout completions.
type CompletionRepository interface {
	// Upsert is an atomic find-or-create keyed by (sessionID, clientID, date).
	Upsert(ctx context.Context, sessionID, clientID primitive.ObjectID, date time.Time, in domain.CompletionInput) (*domain.WorkoutCompletion, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.WorkoutCompletion, error)
	SetProof(ctx context.Context, id primitive.ObjectID, url, key string) error
	// ListByClient returns completions newest first.
	ListByClient(ctx context.Context, clientID primitive.ObjectID, rng domain.CompletionRange, missedOnly bool) ([]domain.WorkoutCompletion, error)
}

// MessageRepository stores chat messages.
type MessageRepository interface {
	Create(ctx context.Context, msg *domain.ChatMessage) (primitive.ObjectID, error)
	// Conversation returns messages between a and b, oldest first.
	Conversation(ctx context.Context, a, b primitive.ObjectID) ([]domain.ChatMessage, error)
	MarkRead(ctx context.Context, readerID, senderID primitive.ObjectID) (int64, error)
	// Summaries returns one entry per counterparty of userID, most recent conversation first.
	Summaries(ctx context.Context, userID primitive.ObjectID) ([]MessageSummary, error)
}

// MessageSummary is the per-counterparty aggregate behind a contact list.
type MessageSummary struct {
	CounterpartID primitive.ObjectID `bson:"_id"`
	LastMessage   domain.ChatMessage `bson:"lastMessage"`
	UnreadCount   int                `bson:"unreadCount"`
}
