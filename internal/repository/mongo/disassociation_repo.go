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

const disassociationCollectionName = "disassociation_requests"

// mongoDisassociationRepository implements repository.DisassociationRepository
type mongoDisassociationRepository struct {
	collection *mongo.Collection
}

// NewMongoDisassociationRepository creates a new disassociation request repository.
func NewMongoDisassociationRepository(db *mongo.Database) repository.DisassociationRepository {
	return &mongoDisassociationRepository{
		collection: db.Collection(disassociationCollectionName),
	}
}

// Create inserts a request. The partial unique index on pending requests
// turns a concurrent second request into ErrDuplicate.
func (r *mongoDisassociationRepository) Create(ctx context.Context, req *domain.DisassociationRequest) (primitive.ObjectID, error) {
	if req.UserID.IsZero() || req.TrainerID.IsZero() {
		return primitive.NilObjectID, errors.New("request requires user and trainer")
	}
	req.ID = primitive.NewObjectID()
	req.CreatedAt = time.Now().UTC()
	if req.Status == "" {
		req.Status = domain.RequestPending
	}

	if _, err := r.collection.InsertOne(ctx, req); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return primitive.NilObjectID, repository.ErrDuplicate
		}
		return primitive.NilObjectID, err
	}
	return req.ID, nil
}

func (r *mongoDisassociationRepository) findOne(ctx context.Context, filter bson.M) (*domain.DisassociationRequest, error) {
	var req domain.DisassociationRequest
	if err := r.collection.FindOne(ctx, filter).Decode(&req); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &req, nil
}

func (r *mongoDisassociationRepository) find(ctx context.Context, filter bson.M) ([]domain.DisassociationRequest, error) {
	cursor, err := r.collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	reqs := []domain.DisassociationRequest{}
	if err = cursor.All(ctx, &reqs); err != nil {
		return nil, err
	}
	return reqs, nil
}

// GetByID retrieves a request by id.
func (r *mongoDisassociationRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.DisassociationRequest, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

// GetPendingByUser retrieves the pending request of a user, if any.
func (r *mongoDisassociationRepository) GetPendingByUser(ctx context.Context, userID primitive.ObjectID) (*domain.DisassociationRequest, error) {
	return r.findOne(ctx, bson.M{"user": userID, "status": domain.RequestPending})
}

// List retrieves requests, optionally by status, newest first.
func (r *mongoDisassociationRepository) List(ctx context.Context, status domain.RequestStatus) ([]domain.DisassociationRequest, error) {
	filter := bson.M{}
	if status != "" {
		filter["status"] = status
	}
	return r.find(ctx, filter)
}

// ListByUser retrieves every request a user has made, newest first.
func (r *mongoDisassociationRepository) ListByUser(ctx context.Context, userID primitive.ObjectID) ([]domain.DisassociationRequest, error) {
	return r.find(ctx, bson.M{"user": userID})
}

// Resolve is a conditional update on status=pending, so a request is resolved once.
func (r *mongoDisassociationRepository) Resolve(ctx context.Context, id primitive.ObjectID, status domain.RequestStatus, by primitive.ObjectID, at time.Time) (*domain.DisassociationRequest, error) {
	filter := bson.M{"_id": id, "status": domain.RequestPending}
	update := bson.M{"$set": bson.M{
		"status":     status,
		"resolvedAt": at,
		"resolvedBy": by,
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var req domain.DisassociationRequest
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&req)
	if err == nil {
		return &req, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, err
	}
	// Distinguish "never existed" from "already resolved".
	if _, getErr := r.GetByID(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, repository.ErrUpdateFailed
}

// reopenUpdate clears the resolution fields of a claimed request.
func reopenUpdate() bson.M {
	return bson.M{
		"$set":   bson.M{"status": domain.RequestPending},
		"$unset": bson.M{"resolvedAt": "", "resolvedBy": ""},
	}
}

// Reopen releases a claim taken by Resolve.
func (r *mongoDisassociationRepository) Reopen(ctx context.Context, id primitive.ObjectID, status domain.RequestStatus) error {
	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": id, "status": status}, reopenUpdate())
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrDuplicate
		}
		return err
	}
	if res.MatchedCount == 0 {
		return repository.ErrUpdateFailed
	}
	return nil
}

// EnsureDisassociationIndexes creates necessary indexes. Call during startup.
func EnsureDisassociationIndexes(ctx context.Context, collection *mongo.Collection) error {
	indexes := []mongo.IndexModel{
		{
			// At most one pending request per user.
			Keys: bson.D{{Key: "user", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetName("user_pending_unique").
				SetPartialFilterExpression(bson.M{"status": domain.RequestPending}),
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: -1}},
		},
	}
	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}
