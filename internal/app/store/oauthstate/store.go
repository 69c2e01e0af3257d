// internal/app/store/oauthstate/store.go
package oauthstate

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// State is a pending Google sign-in. The state value doubles as the _id,
// which makes it unique without a separate index; expiry is enforced by the
// TTL index on expires_at (see system/indexes) and re-checked on Consume.
type State struct {
	State     string    `bson:"_id"`
	Verifier  string    `bson:"verifier"`              // PKCE code verifier
	ReturnURL string    `bson:"return_url,omitempty"` // client path to land on after sign-in
	ExpiresAt time.Time `bson:"expires_at"`
	CreatedAt time.Time `bson:"created_at"`
}

// Store manages OAuth2 state tokens in MongoDB.
type Store struct {
	c *mongo.Collection
}

// New creates a new OAuth state Store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("oauth_states")}
}

// Save stores a state token.
func (s *Store) Save(ctx context.Context, st State) error {
	if st.CreatedAt.IsZero() {
		st.CreatedAt = time.Now().UTC()
	}
	_, err := s.c.InsertOne(ctx, st)
	return err
}

// Consume deletes and returns the state if it exists and has not expired
// at now. A state can only be consumed once.
func (s *Store) Consume(ctx context.Context, state string, now time.Time) (State, bool, error) {
	var st State
	err := s.c.FindOneAndDelete(ctx, bson.M{
		"_id":        state,
		"expires_at": bson.M{"$gt": now.UTC()},
	}).Decode(&st)

	if errors.Is(err, mongo.ErrNoDocuments) {
		return State{}, false, nil
	}
	if err != nil {
		return State{}, false, err
	}
	return st, true, nil
}

// CleanupExpired removes expired state tokens.
// This is a backup for when TTL index cleanup is delayed.
func (s *Store) CleanupExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.c.DeleteMany(ctx, bson.M{
		"expires_at": bson.M{"$lte": now.UTC()},
	})
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}
