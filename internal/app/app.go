package app

import (
	"codecollab/internal/broker"
	"codecollab/internal/cache"
	"codecollab/internal/repository"

	redisbroker "codecollab/internal/broker/redis"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

// App bundles the infrastructure layer: durable repositories, the shared
// session store, and the fan-out broker
type App struct {
	SessionRepo     repository.SessionRepo
	ParticipantRepo repository.ParticipantRepo
	SessionCache    cache.SessionCache
	PresenceCache   cache.PresenceCache
	Broker          broker.Broker
}

// New assembles the infrastructure layer on connected clients
func New(db *mongo.Database, rdb *redis.Client) *App {
	return &App{
		SessionRepo:     repository.NewSessionRepo(db),
		ParticipantRepo: repository.NewParticipantRepo(db),
		SessionCache:    cache.NewSessionCache(rdb),
		PresenceCache:   cache.NewPresenceCache(rdb),
		Broker:          redisbroker.New(rdb),
	}
}
