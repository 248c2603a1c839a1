package app

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/attune-backend/internal/clients/redis"
	"github.com/yungbote/attune-backend/internal/platform/logger"
	"github.com/yungbote/attune-backend/internal/platform/neo4jdb"
	"github.com/yungbote/attune-backend/internal/platform/openai"
)

// Clients holds external connections. Redis and Neo4j are optional; without Redis the locks,
// the risk cache and the event bus fall back to in-process implementations.
type Clients struct {
	Redis  *goredis.Client
	Neo4j  *neo4jdb.Client
	OpenAI openai.Client

	Locker redis.Locker
	Cache  redis.KV
	Events redis.EventBus
}

func wireClients(log *logger.Logger) (Clients, error) {
	log.Info("Wiring clients...")

	// Redis
	rdb, err := redis.NewClientFromEnv(log)
	if err != nil {
		return Clients{}, fmt.Errorf("init redis: %w", err)
	}
	var (
		locker redis.Locker
		cache  redis.KV
	)
	if rdb != nil {
		locker = redis.NewRedisLocker(rdb)
		cache = redis.NewRedisKV(rdb)
	} else {
		log.Warn("REDIS_ADDR not set; using in-process locks and cache")
		locker = redis.NewLocalLocker()
		cache = redis.NewMemoryKV()
	}

	// Neo4j
	graphDB, err := neo4jdb.NewFromEnv(log)
	if err != nil {
		if rdb != nil {
			_ = rdb.Close()
		}
		return Clients{}, fmt.Errorf("init neo4j: %w", err)
	}

	// Openai
	ai, err := openai.NewClient(log)
	if err != nil {
		if rdb != nil {
			_ = rdb.Close()
		}
		_ = graphDB.Close(context.Background())
		return Clients{}, fmt.Errorf("init openai client: %w", err)
	}

	return Clients{
		Redis:  rdb,
		Neo4j:  graphDB,
		OpenAI: ai,
		Locker: locker,
		Cache:  cache,
		Events: redis.NewEventBus(rdb, log),
	}, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Neo4j != nil {
		_ = c.Neo4j.Close(context.Background())
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
}
