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

const workoutPlanCollectionName = "workout_plans"

// mongoWorkoutPlanRepository implements repository.WorkoutPlanRepository
type mongoWorkoutPlanRepository struct {
	collection *mongo.Collection
}

// NewMongoWorkoutPlanRepository creates a new WorkoutPlan repository.
func NewMongoWorkoutPlanRepository(db *mongo.Database) repository.WorkoutPlanRepository {
	return &mongoWorkoutPlanRepository{
		collection: db.Collection(workoutPlanCollectionName),
	}
}

// withTransaction runs fn inside a multi-document transaction.
func (r *mongoWorkoutPlanRepository) withTransaction(ctx context.Context, fn func(sc mongo.SessionContext) error) error {
	session, err := r.collection.Database().Client().StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

// deactivateOthers archives every active plan of clientID except keep.
func (r *mongoWorkoutPlanRepository) deactivateOthers(ctx context.Context, clientID, keep primitive.ObjectID) error {
	filter := bson.M{
		"client": clientID,
		"active": true,
		"_id":    bson.M{"$ne": keep},
	}
	update := bson.M{"$set": bson.M{"active": false, "updatedAt": time.Now().UTC()}}
	_, err := r.collection.UpdateMany(ctx, filter, update)
	return err
}

// Create inserts a new plan. An active plan replaces the client's current one.
func (r *mongoWorkoutPlanRepository) Create(ctx context.Context, plan *domain.WorkoutPlan) (primitive.ObjectID, error) {
	if plan.ClientID.IsZero() || plan.TrainerID.IsZero() {
		return primitive.NilObjectID, errors.New("plan requires client and trainer")
	}
	plan.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	plan.CreatedAt = now
	plan.UpdatedAt = now

	err := r.withTransaction(ctx, func(sc mongo.SessionContext) error {
		if plan.Active {
			if err := r.deactivateOthers(sc, plan.ClientID, plan.ID); err != nil {
				return err
			}
		}
		_, err := r.collection.InsertOne(sc, plan)
		return err
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return primitive.NilObjectID, repository.ErrDuplicate
		}
		return primitive.NilObjectID, err
	}
	return plan.ID, nil
}

func (r *mongoWorkoutPlanRepository) findOne(ctx context.Context, filter bson.M) (*domain.WorkoutPlan, error) {
	var plan domain.WorkoutPlan
	if err := r.collection.FindOne(ctx, filter).Decode(&plan); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &plan, nil
}

func (r *mongoWorkoutPlanRepository) find(ctx context.Context, filter bson.M, opts ...*options.FindOptions) ([]domain.WorkoutPlan, error) {
	cursor, err := r.collection.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	plans := []domain.WorkoutPlan{}
	if err = cursor.All(ctx, &plans); err != nil {
		return nil, err
	}
	return plans, nil
}

// GetByID retrieves a single plan by its ID.
func (r *mongoWorkoutPlanRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.WorkoutPlan, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

// GetActiveByClient retrieves the active plan of a client.
func (r *mongoWorkoutPlanRepository) GetActiveByClient(ctx context.Context, clientID primitive.ObjectID) (*domain.WorkoutPlan, error) {
	return r.findOne(ctx, bson.M{"client": clientID, "active": true})
}

// ListByTrainer retrieves all plans authored by a trainer, newest first.
func (r *mongoWorkoutPlanRepository) ListByTrainer(ctx context.Context, trainerID primitive.ObjectID) ([]domain.WorkoutPlan, error) {
	return r.find(ctx, bson.M{"trainer": trainerID}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
}

// ListInactiveByClient retrieves the archived plans of a client, newest first.
func (r *mongoWorkoutPlanRepository) ListInactiveByClient(ctx context.Context, clientID primitive.ObjectID) ([]domain.WorkoutPlan, error) {
	return r.find(ctx, bson.M{"client": clientID, "active": false}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
}

// ListIDsByClient retrieves plan ids of a client, optionally only those of one trainer.
func (r *mongoWorkoutPlanRepository) ListIDsByClient(ctx context.Context, clientID primitive.ObjectID, trainerID *primitive.ObjectID) ([]primitive.ObjectID, error) {
	filter := bson.M{"client": clientID}
	if trainerID != nil {
		filter["trainer"] = *trainerID
	}
	plans, err := r.find(ctx, filter, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, err
	}
	ids := make([]primitive.ObjectID, len(plans))
	for i, p := range plans {
		ids[i] = p.ID
	}
	return ids, nil
}

// Update merges the whitelisted fields. Setting Active=true goes through the
// same exclusive activation as Activate.
func (r *mongoWorkoutPlanRepository) Update(ctx context.Context, id primitive.ObjectID, upd domain.PlanUpdate) (*domain.WorkoutPlan, error) {
	set := bson.M{"updatedAt": time.Now().UTC()}
	if upd.Name != nil {
		set["name"] = *upd.Name
	}
	if upd.Goal != nil {
		set["goal"] = *upd.Goal
	}
	if upd.Notes != nil {
		set["notes"] = *upd.Notes
	}
	if upd.WeeklyFrequency != nil {
		set["weeklyFrequency"] = *upd.WeeklyFrequency
	}
	if upd.Active != nil {
		set["active"] = *upd.Active
	}

	var updated *domain.WorkoutPlan
	err := r.withTransaction(ctx, func(sc mongo.SessionContext) error {
		current, err := r.GetByID(sc, id)
		if err != nil {
			return err
		}
		if upd.Active != nil && *upd.Active {
			if err := r.deactivateOthers(sc, current.ClientID, id); err != nil {
				return err
			}
		}
		updated, err = r.findOneAndSet(sc, id, set)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *mongoWorkoutPlanRepository) findOneAndSet(ctx context.Context, id primitive.ObjectID, set bson.M) (*domain.WorkoutPlan, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var plan domain.WorkoutPlan
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&plan)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		if mongo.IsDuplicateKeyError(err) {
			return nil, repository.ErrDuplicate
		}
		return nil, err
	}
	return &plan, nil
}

// Activate deactivates the client's other plans and activates id in one transaction.
func (r *mongoWorkoutPlanRepository) Activate(ctx context.Context, id primitive.ObjectID) (*domain.WorkoutPlan, error) {
	active := true
	return r.Update(ctx, id, domain.PlanUpdate{Active: &active})
}

// Deactivate archives a plan.
func (r *mongoWorkoutPlanRepository) Deactivate(ctx context.Context, id primitive.ObjectID) (*domain.WorkoutPlan, error) {
	return r.findOneAndSet(ctx, id, bson.M{"active": false, "updatedAt": time.Now().UTC()})
}

// Delete removes a single plan. Sessions are removed by the caller.
func (r *mongoWorkoutPlanRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeleteMany removes every plan in ids.
func (r *mongoWorkoutPlanRepository) DeleteMany(ctx context.Context, ids []primitive.ObjectID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result, err := r.collection.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}

// EnsureWorkoutPlanIndexes creates necessary indexes. Call during startup.
func EnsureWorkoutPlanIndexes(ctx context.Context, collection *mongo.Collection) error {
	indexes := []mongo.IndexModel{
		{
			// Backstop for the one-active-plan-per-client rule.
			Keys: bson.D{{Key: "client", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetName("client_active_unique").
				SetPartialFilterExpression(bson.M{"active": true}),
		},
		{
			Keys: bson.D{{Key: "trainer", Value: 1}, {Key: "client", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "client", Value: 1}, {Key: "createdAt", Value: -1}},
		},
	}
	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}
