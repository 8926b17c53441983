package service

import (
	"context"
	"io"
	"time"

	"gymflow/gym-api/internal/domain"
	"gymflow/gym-api/internal/mail"
	"gymflow/gym-api/internal/notify"
	"gymflow/gym-api/internal/storage"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Publisher is the Notification Relay as seen by the services.
type Publisher interface {
	PublishToUsers(evt notify.Event, userIDs ...string)
	PublishToAdmins(evt notify.Event)
}

// Mailer delivers transactional mail.
type Mailer interface {
	Send(ctx context.Context, msg mail.Message) error
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID     primitive.ObjectID
	Name   string
	Scopes []domain.Scope
}

func (a Actor) IsAdmin() bool   { return domain.HasAnyScope(a.Scopes, domain.ScopeAdmin) }
func (a Actor) IsTrainer() bool { return domain.HasAnyScope(a.Scopes, domain.ScopeTrainer) }

// Upload is a file received from a client.
type Upload struct {
	Body        io.Reader
	Size        int64
	ContentType string
}

// validateImage checks presence, type and size of an upload.
func validateImage(u *Upload, maxBytes int64) error {
	if u == nil || u.Body == nil || u.Size == 0 {
		return ErrFileRequired
	}
	if !storage.IsImage(u.ContentType) {
		return ErrInvalidImageType
	}
	if maxBytes > 0 && u.Size > maxBytes {
		return ErrFileTooLarge
	}
	return nil
}

// userPayload is the denormalized user snapshot carried by admin events.
func userPayload(kind string, u *domain.User) map[string]interface{} {
	return map[string]interface{}{
		"type": kind,
		"user": map[string]interface{}{
			"id":    u.ID.Hex(),
			"name":  u.Name,
			"email": u.Email,
			"role":  u.Role.Name,
		},
	}
}

type clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }

// sanitizeUser strips secrets before a user leaves the service layer.
func sanitizeUser(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	out := *u
	out.PasswordHash = ""
	out.ResetPasswordToken = ""
	out.ResetPasswordExpires = nil
	return &out
}

func sanitizeUsers(users []domain.User) []domain.User {
	out := make([]domain.User, len(users))
	for i := range users {
		out[i] = *sanitizeUser(&users[i])
	}
	return out
}

func primitiveID(hex string) (primitive.ObjectID, error) {
	return primitive.ObjectIDFromHex(hex)
}
