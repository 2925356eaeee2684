package repository

import (
	"codecollab/internal/model"
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ParticipantRepo records who was in a session and when they were last
// seen. Audit-only: never read on the synchronization path.
type ParticipantRepo interface {
	UpsertSeen(ctx context.Context, p *model.Participant) error
	TouchSeen(ctx context.Context, userID string, lastSeen int64) error
	ListBySession(ctx context.Context, sessionID string) ([]model.Participant, error)
}

type participantRepo struct {
	collection *mongo.Collection
}

// NewParticipantRepo creates a new participant repository
func NewParticipantRepo(db *mongo.Database) ParticipantRepo {
	return &participantRepo{
		collection: db.Collection("participants"),
	}
}

func (r *participantRepo) UpsertSeen(ctx context.Context, p *model.Participant) error {
	filter := bson.M{"sessionId": p.SessionID, "userId": p.UserID}
	update := bson.M{"$set": bson.M{
		"username": p.Username,
		"lastSeen": p.LastSeen,
	}}
	opts := options.Update().SetUpsert(true)
	_, err := r.collection.UpdateOne(ctx, filter, update, opts)
	return err
}

func (r *participantRepo) TouchSeen(ctx context.Context, userID string, lastSeen int64) error {
	filter := bson.M{"userId": userID}
	update := bson.M{"$set": bson.M{"lastSeen": lastSeen}}
	_, err := r.collection.UpdateMany(ctx, filter, update)
	return err
}

func (r *participantRepo) ListBySession(ctx context.Context, sessionID string) ([]model.Participant, error) {
	cur, err := r.collection.Find(ctx, bson.M{"sessionId": sessionID})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var participants []model.Participant
	if err := cur.All(ctx, &participants); err != nil {
		return nil, err
	}
	return participants, nil
}
