// Package container implements the explicit dependency-injection container
// spec §9 DESIGN NOTES calls for: typed construction where every component
// receives its DB, VectorStore, Embedder, EventBus and Clock explicitly and
// never imports a sibling domain package directly.
package container

import (
	"context"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/openmemory/core/internal/cache"
	"github.com/openmemory/core/internal/classifier"
	omclock "github.com/openmemory/core/internal/clock"
	"github.com/openmemory/core/internal/config"
	"github.com/openmemory/core/internal/dynamics"
	"github.com/openmemory/core/internal/embedder"
	"github.com/openmemory/core/internal/errs"
	"github.com/openmemory/core/internal/events"
	"github.com/openmemory/core/internal/hsg"
	"github.com/openmemory/core/internal/lock"
	"github.com/openmemory/core/internal/memorycore"
	"github.com/openmemory/core/internal/persistence"
	"github.com/openmemory/core/internal/scheduler"
	"github.com/openmemory/core/internal/temporal"
	"github.com/openmemory/core/internal/vectorstore"
	"github.com/openmemory/core/internal/waypoint"
)

// Container owns every long-lived collaborator openmemoryd wires together.
// It is built once at startup and threaded through the process; nothing
// outside this package constructs repositories or domain engines directly.
type Container struct {
	Cfg   *config.Config
	Log   zerolog.Logger
	Clock omclock.Clock

	DB        *persistence.DB
	Tables    *persistence.TableNames
	PgPool    *pgxpool.Pool // nil unless VectorBackend==postgres
	Redis     *redis.Client // nil unless any backend uses redis

	Bus        *events.Bus
	Classifier *classifier.Classifier
	Embedder   embedder.Embedder
	Vectors    vectorstore.Store
	Cache      cache.Cache
	Lock       lock.Locker
	Scheduler  *scheduler.Scheduler

	Memories  *memorycore.Core
	Waypoints *waypoint.Graph
	Temporal  *temporal.Graph
	HSG       *hsg.Engine
	Dynamics  *dynamics.Dynamics
}

// Build assembles the full container from a validated Config (.env loading
// is config.Load's job, not Build's).
func Build(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	c := &Container{Cfg: cfg, Log: log, Clock: omclock.Real{}}

	dialect := persistence.DialectSQLite
	if cfg.MetadataBackend == config.BackendPostgres {
		dialect = persistence.DialectPostgres
	}
	tables, err := persistence.NewTableNames(dialect, cfg.PgSchema, cfg.PgTable)
	if err != nil {
		return nil, err
	}
	c.Tables = tables

	db, err := openMetadataDB(cfg, dialect, log)
	if err != nil {
		return nil, err
	}
	c.DB = db

	if err := persistence.Init(context.Background(), db, tables); err != nil {
		return nil, err
	}

	if needsRedis(cfg) {
		c.Redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	}
	if cfg.VectorBackend == config.BackendPostgres {
		pool, err := pgxpool.New(context.Background(), cfg.PostgresDSN)
		if err != nil {
			return nil, errs.Storage("failed to open pgvector pool", err)
		}
		c.PgPool = pool
	}

	memRepo := persistence.NewMemoryRepo(db, tables.Memories)
	vecRepo := persistence.NewVectorRepo(db, tables.Vectors)
	wpRepo := persistence.NewWaypointRepo(db, tables.Waypoints)
	factRepo := persistence.NewFactRepo(db, tables.Facts)
	edgeRepo := persistence.NewEdgeRepo(db, tables.Edges)
	userRepo := persistence.NewUserRepo(db, tables.Users)

	vecCache := vectorstore.NewCache(cfg.TierProfile.CacheSegments*1000, 64<<20)
	c.Vectors = buildVectorStore(cfg, vecRepo, tables.Memories, tables.Vectors, vecCache, c.PgPool, c.Redis)

	c.Bus = events.New(cfg.EventMaxListeners, log)
	c.Classifier = classifier.New(cfg.ClassifierOverrideThreshold)
	c.Embedder = buildEmbedder(cfg)
	c.Cache = cache.NewAuto(c.Redis, c.Clock)
	c.Lock = lock.NewAuto(c.Redis, db, tables.Locks)
	c.Scheduler = scheduler.New(log)

	c.Memories = memorycore.New(memRepo, c.Vectors, wpRepo, db, c.Classifier, c.Embedder, c.Bus, c.Clock, cfg)
	c.Waypoints = waypoint.New(wpRepo, cfg)
	c.Temporal = temporal.New(factRepo, edgeRepo, db, c.Bus, cfg)
	c.HSG = hsg.New(memRepo, c.Vectors, c.Waypoints, c.Classifier, c.Embedder, c.Bus, c.Clock, cfg)
	c.Dynamics = dynamics.New(memRepo, c.Vectors, c.Waypoints, userRepo, c.Clock, cfg)

	return c, nil
}

func openMetadataDB(cfg *config.Config, dialect persistence.Dialect, log zerolog.Logger) (*persistence.DB, error) {
	if dialect == persistence.DialectPostgres {
		return persistence.OpenPostgres(cfg.PostgresDSN, log)
	}
	return persistence.OpenSQLite(cfg.SQLitePath, log)
}

func needsRedis(cfg *config.Config) bool {
	return cfg.MetadataBackend == config.BackendValkey || cfg.VectorBackend == config.BackendValkey
}

func buildVectorStore(cfg *config.Config, repo *persistence.VectorRepo, memoriesTable, vectorsTable string, vecCache *vectorstore.Cache, pool *pgxpool.Pool, redisClient *redis.Client) vectorstore.Store {
	switch cfg.VectorBackend {
	case config.BackendPostgres:
		return vectorstore.NewPgVectorStore(pool, vectorsTable, memoriesTable, repo, vecCache)
	case config.BackendValkey:
		return vectorstore.NewRedisStore(redisClient, vecCache)
	default:
		return vectorstore.NewSQLiteStore(repo, vecCache, memoriesTable)
	}
}

// buildEmbedder wires the configured embedding backend (spec §6.1). Model
// hosting is out of scope (spec §1 Non-goals), so "local" without an
// OM_EMBEDDER_HOST falls back to a deterministic fake so the rest of the
// pipeline is still exercisable without a live embedding service.
func buildEmbedder(cfg *config.Config) embedder.Embedder {
	host := os.Getenv("OM_EMBEDDER_HOST")
	if host == "" {
		return embedder.NewFake(cfg.TierProfile.VecDim)
	}
	apiKey := os.Getenv("OM_EMBEDDER_API_KEY")
	model := os.Getenv("OM_EMBEDDER_MODEL")
	if model == "" {
		model = "text-embedding-3-small"
	}
	return embedder.NewHTTPEmbedder(host, apiKey, model)
}

// Close releases every resource the container opened. Scheduler tasks
// should be stopped via Scheduler.StopAll before calling Close.
func (c *Container) Close(ctx context.Context) error {
	if c.PgPool != nil {
		c.PgPool.Close()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	return c.DB.Close()
}
