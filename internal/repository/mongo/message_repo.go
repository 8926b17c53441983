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

const messageCollectionName = "chat_messages"

type mongoMessageRepository struct {
	collection *mongo.Collection
}

// NewMongoMessageRepository creates a new ChatMessage repository.
func NewMongoMessageRepository(db *mongo.Database) repository.MessageRepository {
	return &mongoMessageRepository{
		collection: db.Collection(messageCollectionName),
	}
}

// Create appends a message.
func (r *mongoMessageRepository) Create(ctx context.Context, msg *domain.ChatMessage) (primitive.ObjectID, error) {
	if msg.SenderID.IsZero() || msg.ReceiverID.IsZero() {
		return primitive.NilObjectID, errors.New("message sender and receiver are required")
	}
	msg.ID = primitive.NewObjectID()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	if _, err := r.collection.InsertOne(ctx, msg); err != nil {
		return primitive.NilObjectID, err
	}
	return msg.ID, nil
}

// Conversation returns every message exchanged by a and b, oldest first.
func (r *mongoMessageRepository) Conversation(ctx context.Context, a, b primitive.ObjectID) ([]domain.ChatMessage, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"sender": a, "receiver": b},
		bson.M{"sender": b, "receiver": a},
	}}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	messages := []domain.ChatMessage{}
	if err = cursor.All(ctx, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// MarkRead flags every unread message from senderID to readerID as read.
func (r *mongoMessageRepository) MarkRead(ctx context.Context, readerID, senderID primitive.ObjectID) (int64, error) {
	result, err := r.collection.UpdateMany(ctx,
		bson.M{"sender": senderID, "receiver": readerID, "read": false},
		bson.M{"$set": bson.M{"read": true}},
	)
	if err != nil {
		return 0, err
	}
	return result.ModifiedCount, nil
}

// Summaries groups userID's history by counterparty.
// summariesPipeline groups userID's messages by counterparty, keeping the
// newest message and counting the unread ones addressed to userID.
func summariesPipeline(userID primitive.ObjectID) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"$or": bson.A{
			bson.M{"sender": userID},
			bson.M{"receiver": userID},
		}}}},
		{{Key: "$sort", Value: bson.D{{Key: "createdAt", Value: -1}}}},
		{{Key: "$group", Value: bson.M{
			"_id": bson.M{"$cond": bson.A{
				bson.M{"$eq": bson.A{"$sender", userID}},
				"$receiver",
				"$sender",
			}},
			"lastMessage": bson.M{"$first": "$$ROOT"},
			"unreadCount": bson.M{"$sum": bson.M{"$cond": bson.A{
				bson.M{"$and": bson.A{
					bson.M{"$eq": bson.A{"$receiver", userID}},
					bson.M{"$eq": bson.A{"$read", false}},
				}},
				1,
				0,
			}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "lastMessage.createdAt", Value: -1}}}},
	}
}

func (r *mongoMessageRepository) Summaries(ctx context.Context, userID primitive.ObjectID) ([]repository.MessageSummary, error) {
	cursor, err := r.collection.Aggregate(ctx, summariesPipeline(userID))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	summaries := []repository.MessageSummary{}
	if err = cursor.All(ctx, &summaries); err != nil {
		return nil, err
	}
	return summaries, nil
}

// EnsureMessageIndexes creates necessary indexes. Call during startup.
func EnsureMessageIndexes(ctx context.Context, collection *mongo.Collection) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "sender", Value: 1}, {Key: "receiver", Value: 1}, {Key: "createdAt", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "receiver", Value: 1}, {Key: "read", Value: 1}},
		},
	}
	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}
