package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/smallbiznis/smallbiznis-checkout/internal/domain"
)

const (
	credentialCollection = "pesapal_tokens"
	currentCredentialID  = "current"
)

type mongoCredential struct {
	ID             string    `bson:"_id"`
	AccessToken    string    `bson:"accessToken"`
	ExpiresAt      time.Time `bson:"expiresAt"`
	NotificationID string    `bson:"notificationId,omitempty"`
	UpdatedAt      time.Time `bson:"updatedAt"`
}

func (d mongoCredential) toDomain() domain.Credential {
	return domain.Credential{
		AccessToken:    d.AccessToken,
		ExpiresAt:      d.ExpiresAt,
		NotificationID: d.NotificationID,
		UpdatedAt:      d.UpdatedAt,
	}
}

// MongoCredentialRepo implements CredentialRepository on a MongoDB collection.
// All writes target a fixed document id so the collection never grows past one row.
type MongoCredentialRepo struct {
	coll *mongo.Collection
}

func NewMongoCredentialRepo(db *mongo.Database) *MongoCredentialRepo {
	return &MongoCredentialRepo{coll: db.Collection(credentialCollection)}
}

func (r *MongoCredentialRepo) Get(ctx context.Context) (domain.Credential, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "expiresAt", Value: -1}})

	var doc mongoCredential
	err := r.coll.FindOne(ctx, bson.D{}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Credential{}, ErrCredentialNotFound
	}
	if err != nil {
		return domain.Credential{}, fmt.Errorf("%w: get credential: %w", domain.ErrStorageUnavailable, err)
	}
	return doc.toDomain(), nil
}

func (r *MongoCredentialRepo) Put(ctx context.Context, token string, expiresAt, previous time.Time) (domain.Credential, error) {
	now := time.Now().UTC()

	if previous.IsZero() {
		doc := mongoCredential{
			ID:          currentCredentialID,
			AccessToken: token,
			ExpiresAt:   expiresAt.UTC(),
			UpdatedAt:   now,
		}
		if _, err := r.coll.InsertOne(ctx, doc); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return domain.Credential{}, ErrCredentialConflict
			}
			return domain.Credential{}, fmt.Errorf("%w: insert credential: %w", domain.ErrStorageUnavailable, err)
		}
		return doc.toDomain(), nil
	}

	filter := bson.D{
		{Key: "_id", Value: currentCredentialID},
		{Key: "expiresAt", Value: previous.UTC()},
	}
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "accessToken", Value: token},
		{Key: "expiresAt", Value: expiresAt.UTC()},
		{Key: "updatedAt", Value: now},
	}}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc mongoCredential
	err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Credential{}, ErrCredentialConflict
	}
	if err != nil {
		return domain.Credential{}, fmt.Errorf("%w: update credential: %w", domain.ErrStorageUnavailable, err)
	}
	return doc.toDomain(), nil
}
