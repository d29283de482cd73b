package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"voxareflect/internal/database"
	"voxareflect/internal/models"
)

// MongoStore keeps each user document in the reflection_documents collection.
type MongoStore struct {
	collection *mongo.Collection
	now        func() time.Time
}

// NewMongoStore uses the reflection documents collection of db.
func NewMongoStore(db *database.MongoDB) *MongoStore {
	return &MongoStore{
		collection: db.Collection(database.CollectionReflectionDocuments),
		now:        time.Now,
	}
}

func (s *MongoStore) Load(ctx context.Context, username string) (*models.UserDocument, error) {
	var doc models.UserDocument
	err := s.collection.FindOne(ctx, bson.M{"username": username}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return emptyDocument(username), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load document for %s: %w", username, err)
	}
	if doc.Conversations == nil {
		doc.Conversations = []*models.Conversation{}
	}
	return &doc, nil
}

func (s *MongoStore) Save(ctx context.Context, doc *models.UserDocument) error {
	now := s.now().UTC()
	conversations := doc.Conversations
	if conversations == nil {
		conversations = []*models.Conversation{}
	}

	if doc.Version == 0 {
		_, err := s.collection.InsertOne(ctx, bson.M{
			"username":      doc.Username,
			"conversations": conversations,
			"version":       int64(1),
			"updatedAt":     now,
		})
		if mongo.IsDuplicateKeyError(err) {
			return ErrVersionConflict
		}
		if err != nil {
			return fmt.Errorf("failed to insert document for %s: %w", doc.Username, err)
		}
	} else {
		result, err := s.collection.UpdateOne(ctx,
			bson.M{"username": doc.Username, "version": doc.Version},
			bson.M{
				"$set": bson.M{"conversations": conversations, "updatedAt": now},
				"$inc": bson.M{"version": int64(1)},
			},
		)
		if err != nil {
			return fmt.Errorf("failed to update document for %s: %w", doc.Username, err)
		}
		if result.MatchedCount == 0 {
			return ErrVersionConflict
		}
	}

	doc.Version++
	doc.UpdatedAt = now
	return nil
}
