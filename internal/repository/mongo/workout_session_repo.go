package mongo

import (
	"context"
	"errors"
	"time"

	"gymflow/gym-api/internal/domain"
	"gymflow/gym-api/internal/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const workoutSessionCollectionName = "workout_sessions"

type mongoWorkoutSessionRepository struct {
	collection *mongo.Collection
}

// NewMongoWorkoutSessionRepository creates a new WorkoutSession repository.
func NewMongoWorkoutSessionRepository(db *mongo.Database) repository.WorkoutSessionRepository {
	return &mongoWorkoutSessionRepository{
		collection: db.Collection(workoutSessionCollectionName),
	}
}

// Upsert replaces the times and exercises of the (plan, day) session, creating
// it when missing. The unique index makes concurrent creates collapse into one.
func (r *mongoWorkoutSessionRepository) Upsert(ctx context.Context, planID primitive.ObjectID, day domain.DayOfWeek, in domain.SessionInput) (*domain.WorkoutSession, error) {
	now := time.Now().UTC()
	exercises := in.Exercises
	if exercises == nil {
		exercises = []domain.Exercise{}
	}
	filter := bson.M{"plan": planID, "dayOfWeek": day}
	update := bson.M{
		"$set": bson.M{
			"startTime": in.StartTime,
			"endTime":   in.EndTime,
			"exercises": exercises,
			"updatedAt": now,
		},
		"$setOnInsert": bson.M{"createdAt": now},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var session domain.WorkoutSession
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&session)
	if mongo.IsDuplicateKeyError(err) {
		// Lost the insert race; the document now exists, so update it.
		err = r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&session)
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// GetByID retrieves a session by its ID.
func (r *mongoWorkoutSessionRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.WorkoutSession, error) {
	var session domain.WorkoutSession
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&session); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &session, nil
}

func (r *mongoWorkoutSessionRepository) find(ctx context.Context, filter bson.M) ([]domain.WorkoutSession, error) {
	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	sessions := []domain.WorkoutSession{}
	if err = cursor.All(ctx, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// GetByIDs retrieves every session in ids; missing ones are absent.
func (r *mongoWorkoutSessionRepository) GetByIDs(ctx context.Context, ids []primitive.ObjectID) ([]domain.WorkoutSession, error) {
	if len(ids) == 0 {
		return []domain.WorkoutSession{}, nil
	}
	return r.find(ctx, bson.M{"_id": bson.M{"$in": ids}})
}

// ListByPlan returns the sessions of a plan ordered Monday to Sunday.
func (r *mongoWorkoutSessionRepository) ListByPlan(ctx context.Context, planID primitive.ObjectID) ([]domain.WorkoutSession, error) {
	sessions, err := r.find(ctx, bson.M{"plan": planID})
	if err != nil {
		return nil, err
	}
	domain.SortSessions(sessions)
	return sessions, nil
}

// Delete removes a session.
func (r *mongoWorkoutSessionRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeleteByPlans removes every session belonging to one of planIDs.
func (r *mongoWorkoutSessionRepository) DeleteByPlans(ctx context.Context, planIDs []primitive.ObjectID) (int64, error) {
	if len(planIDs) == 0 {
		return 0, nil
	}
	result, err := r.collection.DeleteMany(ctx, bson.M{"plan": bson.M{"$in": planIDs}})
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}

// EnsureWorkoutSessionIndexes creates necessary indexes. Call during startup.
func EnsureWorkoutSessionIndexes(ctx context.Context, collection *mongo.Collection) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "plan", Value: 1}, {Key: "dayOfWeek", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}
