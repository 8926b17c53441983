package service

import (
	"context"
	"errors"

	"gymflow/gym-api/internal/domain"
	"gymflow/gym-api/internal/repository"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// getUser maps a missing user to ErrUserNotFound.
func getUser(ctx context.Context, users repository.UserRepository, id primitive.ObjectID) (*domain.User, error) {
	user, err := users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// trainsClient reports whether trainerID is the client's trainer or creator.
func trainsClient(client *domain.User, trainerID primitive.ObjectID) bool {
	if client.HasTrainer() && *client.Trainer == trainerID {
		return true
	}
	return client.CreatedBy != nil && *client.CreatedBy == trainerID
}

// authorizeClientAccess lets the client, their trainer and admins through.
func authorizeClientAccess(ctx context.Context, users repository.UserRepository, actor Actor, clientID primitive.ObjectID) (*domain.User, error) {
	client, err := getUser(ctx, users, clientID)
	if err != nil {
		return nil, err
	}
	switch {
	case actor.IsAdmin(), actor.ID == clientID:
		return client, nil
	case actor.IsTrainer() && trainsClient(client, actor.ID):
		return client, nil
	}
	return nil, ErrForbidden
}

// effectiveTrainer resolves the trainer of a client: the trainer reference,
// or the creator when that account is a trainer.
func effectiveTrainer(ctx context.Context, users repository.UserRepository, user *domain.User) (primitive.ObjectID, bool, error) {
	if user.HasTrainer() {
		return *user.Trainer, true, nil
	}
	if user.CreatedBy == nil || user.CreatedBy.IsZero() {
		return primitive.NilObjectID, false, nil
	}
	creator, err := users.GetByID(ctx, *user.CreatedBy)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return primitive.NilObjectID, false, nil
		}
		return primitive.NilObjectID, false, err
	}
	if !creator.IsTrainer() {
		return primitive.NilObjectID, false, nil
	}
	return creator.ID, true, nil
}
