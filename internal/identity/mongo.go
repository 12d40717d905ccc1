package identity

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/gavelworks/gavel/internal/common"
)

// MongoAccounts stores accounts in the "accounts" collection.
type MongoAccounts struct {
	collection *mongo.Collection
}

func NewMongoAccounts(db *mongo.Database) *MongoAccounts {
	return &MongoAccounts{collection: db.Collection("accounts")}
}

func (r *MongoAccounts) Insert(ctx context.Context, a Account) error {
	// Existence check first; a unique index on username backs this up at
	// the store level.
	err := r.collection.FindOne(ctx, bson.M{"username": a.Username}).Err()
	if err == nil {
		return fmt.Errorf("username %q taken: %w", a.Username, common.ErrConflict)
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("failed to check username %q: %w", a.Username, err)
	}

	if _, err := r.collection.InsertOne(ctx, a); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("username %q taken: %w", a.Username, common.ErrConflict)
		}
		return fmt.Errorf("failed to insert account: %w", err)
	}
	return nil
}

func (r *MongoAccounts) Find(ctx context.Context, username string) (Account, error) {
	var a Account
	err := r.collection.FindOne(ctx, bson.M{"username": username}).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Account{}, fmt.Errorf("account %q: %w", username, common.ErrNotFound)
	}
	if err != nil {
		return Account{}, fmt.Errorf("failed to find account %q: %w", username, err)
	}
	return a, nil
}

func (r *MongoAccounts) Update(ctx context.Context, a Account) error {
	res, err := r.collection.ReplaceOne(ctx, bson.M{"username": a.Username}, a)
	if err != nil {
		return fmt.Errorf("failed to update account %q: %w", a.Username, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("account %q: %w", a.Username, common.ErrNotFound)
	}
	return nil
}
