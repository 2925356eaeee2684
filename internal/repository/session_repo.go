package repository

import (
	"codecollab/internal/model"
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SessionRepo is the durable store for session buffers. It sits behind the
// live Redis state: written best-effort after changes, read only to seed a
// session that is no longer cached.
type SessionRepo interface {
	Upsert(ctx context.Context, record *model.SessionRecord) error

	// UpsertCode writes only the buffer and timestamp, leaving the
	// language untouched (the write-behind path after a code change)
	UpsertCode(ctx context.Context, id, code string, updatedAt int64) error

	GetByID(ctx context.Context, id string) (*model.SessionRecord, error)
	Delete(ctx context.Context, id string) error
}

type sessionRepo struct {
	collection *mongo.Collection
}

// NewSessionRepo creates a new session repository
func NewSessionRepo(db *mongo.Database) SessionRepo {
	return &sessionRepo{
		collection: db.Collection("sessions"),
	}
}

func (r *sessionRepo) Upsert(ctx context.Context, record *model.SessionRecord) error {
	filter := bson.M{"_id": record.ID}
	update := bson.M{"$set": bson.M{
		"code":      record.Code,
		"language":  record.Language,
		"updatedAt": record.UpdatedAt,
	}}
	opts := options.Update().SetUpsert(true)
	_, err := r.collection.UpdateOne(ctx, filter, update, opts)
	return err
}

func (r *sessionRepo) UpsertCode(ctx context.Context, id, code string, updatedAt int64) error {
	filter := bson.M{"_id": id}
	update := bson.M{"$set": bson.M{
		"code":      code,
		"updatedAt": updatedAt,
	}}
	opts := options.Update().SetUpsert(true)
	_, err := r.collection.UpdateOne(ctx, filter, update, opts)
	return err
}

func (r *sessionRepo) GetByID(ctx context.Context, id string) (*model.SessionRecord, error) {
	var record model.SessionRecord
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&record)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil // Session was never persisted
		}
		return nil, err
	}
	return &record, nil
}

func (r *sessionRepo) Delete(ctx context.Context, id string) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	return err
}
