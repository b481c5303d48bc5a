package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const usersCollection = "users"

// MongoRepository implements Repository on a MongoDB collection with a
// unique index on username.
type MongoRepository struct {
	coll *mongo.Collection
}

type userDocument struct {
	ID        string    `bson:"_id"`
	Username  string    `bson:"username"`
	Password  string    `bson:"password"`
	CreatedAt time.Time `bson:"created_at"`
}

// NewMongoRepository ensures the unique username index and returns the repository.
func NewMongoRepository(ctx context.Context, db *mongo.Database) (*MongoRepository, error) {
	coll := db.Collection(usersCollection)
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("users_username_key"),
	})
	if err != nil {
		return nil, fmt.Errorf("create users index: %w", err)
	}
	return &MongoRepository{coll: coll}, nil
}

// Create inserts a new user document.
func (r *MongoRepository) Create(ctx context.Context, user User) error {
	_, err := r.coll.InsertOne(ctx, toDocument(user))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrUserExists
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// FindByUsername fetches a user document by username.
func (r *MongoRepository) FindByUsername(ctx context.Context, username string) (User, error) {
	var doc userDocument
	if err := r.coll.FindOne(ctx, bson.D{{Key: "username", Value: username}}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return fromDocument(doc), nil
}

func toDocument(user User) userDocument {
	return userDocument{
		ID:        user.ID,
		Username:  user.Username,
		Password:  user.PasswordHash,
		CreatedAt: user.CreatedAt.UTC(),
	}
}

func fromDocument(doc userDocument) User {
	return User{
		ID:           doc.ID,
		Username:     doc.Username,
		PasswordHash: doc.Password,
		CreatedAt:    doc.CreatedAt.UTC(),
	}
}
