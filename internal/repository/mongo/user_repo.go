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

const userCollectionName = "users"

// mongoUserRepository implements the repository.UserRepository interface using MongoDB.
type mongoUserRepository struct {
	collection *mongo.Collection
}

// NewMongoUserRepository creates a new instance of mongoUserRepository.
// It expects a connected *mongo.Database instance.
func NewMongoUserRepository(db *mongo.Database) repository.UserRepository {
	return &mongoUserRepository{
		collection: db.Collection(userCollectionName),
	}
}

// Create inserts a new user into the database.
func (r *mongoUserRepository) Create(ctx context.Context, user *domain.User) (primitive.ObjectID, error) {
	if user.Email == "" || user.PasswordHash == "" || user.Role.Name == "" {
		return primitive.NilObjectID, errors.New("user email, password hash, and role are required")
	}

	user.ID = primitive.NewObjectID()
	user.NameKey = domain.NameKey(user.Name)
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	if _, err := r.collection.InsertOne(ctx, user); err != nil {
		// Unique indexes on email and nameKey close the check-then-insert race.
		if mongo.IsDuplicateKeyError(err) {
			return primitive.NilObjectID, repository.ErrDuplicate
		}
		return primitive.NilObjectID, err
	}
	return user.ID, nil
}

func (r *mongoUserRepository) findOne(ctx context.Context, filter bson.M) (*domain.User, error) {
	var user domain.User
	err := r.collection.FindOne(ctx, filter).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *mongoUserRepository) find(ctx context.Context, filter bson.M, opts ...*options.FindOptions) ([]domain.User, error) {
	cursor, err := r.collection.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	users := []domain.User{}
	if err = cursor.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// GetByID retrieves a user by their MongoDB ObjectID.
func (r *mongoUserRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

// GetByIDs retrieves every user in ids; missing ones are simply absent.
func (r *mongoUserRepository) GetByIDs(ctx context.Context, ids []primitive.ObjectID) ([]domain.User, error) {
	if len(ids) == 0 {
		return []domain.User{}, nil
	}
	return r.find(ctx, bson.M{"_id": bson.M{"$in": ids}})
}

// GetByEmail retrieves a user by their email address.
func (r *mongoUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"email": domain.NormalizeEmail(email)})
}

// GetByNameKey retrieves a user by the lower-cased name.
func (r *mongoUserRepository) GetByNameKey(ctx context.Context, nameKey string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"nameKey": nameKey})
}

// GetByInviteCode retrieves the trainer owning an invite code.
func (r *mongoUserRepository) GetByInviteCode(ctx context.Context, code string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"inviteCode": code, "role.name": domain.RoleTrainer})
}

// GetByResetToken retrieves the user holding a non-expired reset token hash.
func (r *mongoUserRepository) GetByResetToken(ctx context.Context, tokenHash string, now time.Time) (*domain.User, error) {
	return r.findOne(ctx, bson.M{
		"resetPasswordToken":   tokenHash,
		"resetPasswordExpires": bson.M{"$gt": now},
	})
}

// List retrieves users matching filter, newest first.
func (r *mongoUserRepository) List(ctx context.Context, filter repository.UserFilter) ([]domain.User, error) {
	q := bson.M{}
	if filter.Role != "" {
		q["role.name"] = filter.Role
	}
	if filter.CreatedBy != nil {
		q["createdBy"] = *filter.CreatedBy
	}
	if filter.Trainer != nil {
		q["trainer"] = *filter.Trainer
	}
	return r.find(ctx, q, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
}

// ListClientsOf retrieves users associated with or created by a trainer.
func (r *mongoUserRepository) ListClientsOf(ctx context.Context, trainerID primitive.ObjectID) ([]domain.User, error) {
	filter := bson.M{
		"_id": bson.M{"$ne": trainerID},
		"$or": bson.A{
			bson.M{"trainer": trainerID},
			bson.M{"createdBy": trainerID},
		},
	}
	return r.find(ctx, filter, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
}

// CountByRole counts users with a role.
func (r *mongoUserRepository) CountByRole(ctx context.Context, role domain.RoleName) (int64, error) {
	return r.collection.CountDocuments(ctx, bson.M{"role.name": role})
}

// Update writes the editable fields of user back to the store.
func (r *mongoUserRepository) Update(ctx context.Context, user *domain.User) error {
	if user.ID == primitive.NilObjectID {
		return errors.New("user ID is required for update")
	}
	user.NameKey = domain.NameKey(user.Name)
	user.UpdatedAt = time.Now().UTC()

	set := bson.M{
		"name":      user.Name,
		"nameKey":   user.NameKey,
		"email":     user.Email,
		"role":      user.Role,
		"address":   user.Address,
		"country":   user.Country,
		"updatedAt": user.UpdatedAt,
	}
	unset := bson.M{}
	setOrUnset(set, unset, "birthDate", user.BirthDate, user.BirthDate != nil)
	setOrUnset(set, unset, "profileImage", user.ProfileImage, user.ProfileImage != "")
	setOrUnset(set, unset, "profileImageKey", user.ProfileImageKey, user.ProfileImageKey != "")
	setOrUnset(set, unset, "inviteCode", user.InviteCode, user.InviteCode != "")

	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	return r.updateOne(ctx, bson.M{"_id": user.ID}, update)
}

// setOrUnset routes a field to $set when present, $unset otherwise, so
// sparse unique indexes never see empty values.
func setOrUnset(set, unset bson.M, field string, value interface{}, present bool) {
	if present {
		set[field] = value
		return
	}
	unset[field] = ""
}

func (r *mongoUserRepository) updateOne(ctx context.Context, filter, update bson.M) error {
	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrDuplicate
		}
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// SetInviteCode stores a trainer's invite code, replacing any previous one.
func (r *mongoUserRepository) SetInviteCode(ctx context.Context, id primitive.ObjectID, code string) error {
	return r.updateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"inviteCode": code, "updatedAt": time.Now().UTC()},
	})
}

// SetTrainer associates a client with a trainer (trainer and createdBy). It
// only matches users without a trainer and returns ErrUpdateFailed otherwise.
func (r *mongoUserRepository) SetTrainer(ctx context.Context, id, trainerID primitive.ObjectID) error {
	filter := bson.M{
		"_id": id,
		"$or": bson.A{
			bson.M{"trainer": bson.M{"$exists": false}},
			bson.M{"trainer": nil},
		},
	}
	err := r.updateOne(ctx, filter, bson.M{
		"$set": bson.M{
			"trainer":   trainerID,
			"createdBy": trainerID,
			"updatedAt": time.Now().UTC(),
		},
	})
	if errors.Is(err, repository.ErrNotFound) {
		if _, getErr := r.GetByID(ctx, id); getErr == nil {
			return repository.ErrUpdateFailed
		}
	}
	return err
}

// ClearTrainer removes the association. createdBy is only cleared while it
// still points at trainerID; both updates target one document so a single
// pipeline update keeps them atomic.
// clearTrainerPipeline unsets trainer and drops createdBy only while it
// still names trainerID.
func clearTrainerPipeline(trainerID primitive.ObjectID, now time.Time) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"updatedAt": now,
			"createdBy": bson.M{"$cond": bson.A{
				bson.M{"$eq": bson.A{"$createdBy", trainerID}},
				"$$REMOVE",
				"$createdBy",
			}},
		}}},
		{{Key: "$unset", Value: "trainer"}},
	}
}

func (r *mongoUserRepository) ClearTrainer(ctx context.Context, id, trainerID primitive.ObjectID) error {
	pipeline := clearTrainerPipeline(trainerID, time.Now().UTC())
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, pipeline)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// SetResetToken stores the hash of a password reset token and its expiry.
func (r *mongoUserRepository) SetResetToken(ctx context.Context, id primitive.ObjectID, tokenHash string, expires time.Time) error {
	return r.updateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{
			"resetPasswordToken":   tokenHash,
			"resetPasswordExpires": expires,
			"updatedAt":            time.Now().UTC(),
		},
	})
}

// SetPassword replaces the password hash and clears any pending reset.
func (r *mongoUserRepository) SetPassword(ctx context.Context, id primitive.ObjectID, passwordHash string) error {
	return r.updateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set":   bson.M{"passwordHash": passwordHash, "updatedAt": time.Now().UTC()},
		"$unset": bson.M{"resetPasswordToken": "", "resetPasswordExpires": ""},
	})
}

// Delete hard-deletes a user.
func (r *mongoUserRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// EnsureUserIndexes creates necessary indexes for the users collection.
// Call this once during application startup.
func EnsureUserIndexes(ctx context.Context, collection *mongo.Collection) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "nameKey", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			// Sparse because only trainers carry a code.
			Keys:    bson.D{{Key: "inviteCode", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true),
		},
		{
			Keys: bson.D{{Key: "role.name", Value: 1}},
		},
		{
			Keys:    bson.D{{Key: "trainer", Value: 1}},
			Options: options.Index().SetSparse(true),
		},
		{
			Keys:    bson.D{{Key: "createdBy", Value: 1}},
			Options: options.Index().SetSparse(true),
		},
		{
			Keys:    bson.D{{Key: "resetPasswordToken", Value: 1}},
			Options: options.Index().SetSparse(true),
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}
