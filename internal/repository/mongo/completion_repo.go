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

const completionCollectionName = "workout_completions"

type mongoCompletionRepository struct {
	collection *mongo.Collection
}

// NewMongoCompletionRepository creates a new WorkoutCompletion repository.
func NewMongoCompletionRepository(db *mongo.Database) repository.CompletionRepository {
	return &mongoCompletionRepository{
		collection: db.Collection(completionCollectionName),
	}
}

// Upsert writes the completion for (session, client, date). An existing proof
// is kept unless in carries a new one; reason is dropped once completed.
func (r *mongoCompletionRepository) Upsert(ctx context.Context, sessionID, clientID primitive.ObjectID, date time.Time, in domain.CompletionInput) (*domain.WorkoutCompletion, error) {
	now := time.Now().UTC()
	day := domain.CalendarDay(date)

	set := bson.M{
		"completed": in.Completed,
		"updatedAt": now,
	}
	unset := bson.M{}
	setOrUnset(set, unset, "reason", in.Reason, !in.Completed && in.Reason != "")
	setOrUnset(set, unset, "notes", in.Notes, in.Notes != "")
	if in.ProofURL != "" {
		set["proof"] = in.ProofURL
		set["proofKey"] = in.ProofKey
	}

	update := bson.M{
		"$set":         set,
		"$setOnInsert": bson.M{"createdAt": now},
	}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	filter := bson.M{"session": sessionID, "client": clientID, "date": day}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var completion domain.WorkoutCompletion
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&completion)
	if mongo.IsDuplicateKeyError(err) {
		err = r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&completion)
	}
	if err != nil {
		return nil, err
	}
	return &completion, nil
}

// GetByID retrieves a completion by its ID.
func (r *mongoCompletionRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.WorkoutCompletion, error) {
	var completion domain.WorkoutCompletion
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&completion); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &completion, nil
}

// SetProof stores the proof image of a completion.
func (r *mongoCompletionRepository) SetProof(ctx context.Context, id primitive.ObjectID, url, key string) error {
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"proof": url, "proofKey": key, "updatedAt": time.Now().UTC()},
	})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ListByClient returns the client's completions inside rng, newest first.
// completionFilter bounds stored calendar days by the range, both inclusive.
func completionFilter(clientID primitive.ObjectID, rng domain.CompletionRange, missedOnly bool) bson.M {
	filter := bson.M{"client": clientID}
	dates := bson.M{}
	if rng.Start != nil {
		dates["$gte"] = domain.CalendarDay(*rng.Start)
	}
	if rng.End != nil {
		dates["$lte"] = domain.CalendarDay(*rng.End)
	}
	if len(dates) > 0 {
		filter["date"] = dates
	}
	if missedOnly {
		filter["completed"] = false
	}
	return filter
}

func (r *mongoCompletionRepository) ListByClient(ctx context.Context, clientID primitive.ObjectID, rng domain.CompletionRange, missedOnly bool) ([]domain.WorkoutCompletion, error) {
	filter := completionFilter(clientID, rng, missedOnly)

	opts := options.Find().SetSort(bson.D{{Key: "date", Value: -1}, {Key: "createdAt", Value: -1}})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	completions := []domain.WorkoutCompletion{}
	if err = cursor.All(ctx, &completions); err != nil {
		return nil, err
	}
	return completions, nil
}

// EnsureCompletionIndexes creates necessary indexes. Call during startup.
func EnsureCompletionIndexes(ctx context.Context, collection *mongo.Collection) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "session", Value: 1},
				{Key: "client", Value: 1},
				{Key: "date", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "client", Value: 1}, {Key: "date", Value: -1}},
		},
	}
	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}
