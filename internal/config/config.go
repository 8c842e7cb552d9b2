// Package config assembles a validated, immutable runtime configuration
// from the environment (spec §4.1): defaults are applied eagerly and the
// whole config is validated once at load time, failing fast with a
// ConfigError wherever a required setting is missing or out of range.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pterm/pterm"

	"github.com/openmemory/core/internal/errs"
)

// Tier selects a profile of {vecDim, cacheSegments, maxActive}.
type Tier string

const (
	TierFast   Tier = "fast"
	TierSmart  Tier = "smart"
	TierDeep   Tier = "deep"
	TierHybrid Tier = "hybrid"
)

// Backend selects which storage driver a concern is bound to.
type Backend string

const (
	BackendSQLite   Backend = "sqlite"
	BackendPostgres Backend = "postgres"
	BackendValkey   Backend = "valkey"
)

// TierProfile is the resolved {dim, cacheSegments, maxActive} for a Tier.
type TierProfile struct {
	VecDim        int
	CacheSegments int
	MaxActive     int
}

var tierProfiles = map[Tier]TierProfile{
	TierFast:   {VecDim: 768, CacheSegments: 2, MaxActive: 32},
	TierSmart:  {VecDim: 768, CacheSegments: 5, MaxActive: 64},
	TierDeep:   {VecDim: 1024, CacheSegments: 10, MaxActive: 128},
	TierHybrid: {VecDim: 768, CacheSegments: 8, MaxActive: 100},
}

// DecayLambdas holds the per-sector decay rate (spec §4.1).
type DecayLambdas struct {
	Episodic   float64
	Semantic   float64
	Procedural float64
	Emotional  float64
	Reflective float64
}

// DynamicsCoefficients are the dynamics subsystem's named coefficients (spec §4.1, §4.6).
type DynamicsCoefficients struct {
	AlphaRecall       float64 // α: salience boost per recall
	BetaEmotional     float64 // β: emotional sector weighting
	GammaGraph        float64 // γ: spreading-activation propagation factor
	ThetaConsolidate  float64 // θ: consolidation trigger coefficient
	Eta               float64 // η: waypoint reinforcement increment
	TauEnergy         float64 // τ: spreading-activation termination threshold
	TauRecencySeconds float64 // τ_recency: HSG recency decay constant (seconds)
}

// ScoringWeights are the HSG composite-score weights (spec §4.1, §4.8).
type ScoringWeights struct {
	Similarity float64
	Overlap    float64
	Waypoint   float64
	Recency    float64
	TagMatch   float64
	Salience   float64
	Keyword    float64
}

// ReinforcementConfig holds the clamps and increments used by §4.6.
type ReinforcementConfig struct {
	MaxSalience       float64
	MaxWaypointWeight float64
	PruneThreshold    float64
	SalienceBoost     float64
	WaypointBoost     float64
}

// DecayConfig governs the scheduled decay sweep (spec §4.6).
type DecayConfig struct {
	ColdThreshold float64
	Ratio         float64 // fraction of total rows processed per sweep
	BatchSize     int
	SleepMs       int
}

// EncryptionConfig is spec §4.4 step 5 / §4.1.
type EncryptionConfig struct {
	Enabled bool
	Key     string
	Salt    string
}

// Config is the fully validated, immutable runtime configuration.
type Config struct {
	Tier            Tier
	TierProfile     TierProfile
	MetadataBackend Backend
	VectorBackend   Backend

	SQLitePath string
	PostgresDSN string
	PgSchema    string
	PgTable     string
	RedisAddr   string

	DecayLambdas   DecayLambdas
	Dynamics       DynamicsCoefficients
	Scoring        ScoringWeights
	Reinforcement  ReinforcementConfig
	Decay          DecayConfig
	Encryption     EncryptionConfig

	MinVectorDim   int
	MaxVectorDim   int
	MaxPayloadSize int
	MinScore       float64

	ClassifierOverrideThreshold float64

	EmbedderKind string // e.g. "local", "aws"

	MaxRetries    int
	EventMaxListeners int
	BatchConcurrency  int
}

// Load reads environment variables (optionally loading a .env file first
// via joho/godotenv) and returns a validated Config, or a *errs.Error
// with Kind==KindConfig.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			pterm.Warning.Printf("could not load env file %s: %v\n", envFile, err)
		}
	}

	c := &Config{
		Tier:            Tier(getEnv("OM_TIER", "smart")),
		MetadataBackend: Backend(getEnv("OM_METADATA_BACKEND", "sqlite")),
		VectorBackend:   Backend(getEnv("OM_VECTOR_BACKEND", "sqlite")),
		SQLitePath:      getEnv("OM_SQLITE_PATH", "./data/openmemory.sqlite"),
		PostgresDSN:     getEnv("OM_POSTGRES_DSN", ""),
		PgSchema:        getEnv("OM_PG_SCHEMA", "public"),
		PgTable:         getEnv("OM_PG_TABLE", "openmemory_memories"),
		RedisAddr:       getEnv("OM_REDIS_ADDR", "localhost:6379"),

		DecayLambdas: DecayLambdas{
			Episodic:   getEnvFloat("OM_DECAY_EPISODIC", 0.015),
			Semantic:   getEnvFloat("OM_DECAY_SEMANTIC", 0.005),
			Procedural: getEnvFloat("OM_DECAY_PROCEDURAL", 0.008),
			Emotional:  getEnvFloat("OM_DECAY_EMOTIONAL", 0.02),
			Reflective: getEnvFloat("OM_DECAY_REFLECTIVE", 0.001),
		},
		Dynamics: DynamicsCoefficients{
			AlphaRecall:       getEnvFloat("OM_DYN_ALPHA", 0.05),
			BetaEmotional:     getEnvFloat("OM_DYN_BETA", 0.1),
			GammaGraph:        getEnvFloat("OM_DYN_GAMMA", 0.4),
			ThetaConsolidate:  getEnvFloat("OM_DYN_THETA", 0.3),
			Eta:               getEnvFloat("OM_DYN_ETA", 0.1),
			TauEnergy:         getEnvFloat("OM_DYN_TAU", 0.01),
			TauRecencySeconds: getEnvFloat("OM_DYN_TAU_RECENCY", 86400*3),
		},
		Scoring: ScoringWeights{
			Similarity: getEnvFloat("OM_W_SIMILARITY", 1.0),
			Overlap:    getEnvFloat("OM_W_OVERLAP", 0.5),
			Waypoint:   getEnvFloat("OM_W_WAYPOINT", 0.3),
			Recency:    getEnvFloat("OM_W_RECENCY", 0.2),
			TagMatch:   getEnvFloat("OM_W_TAGMATCH", 0.4),
			Salience:   getEnvFloat("OM_W_SALIENCE", 0.1),
			Keyword:    getEnvFloat("OM_W_KEYWORD", 0.05),
		},
		Reinforcement: ReinforcementConfig{
			MaxSalience:       getEnvFloat("OM_REINF_MAX_SALIENCE", 1.0),
			MaxWaypointWeight: getEnvFloat("OM_REINF_MAX_WAYPOINT_WEIGHT", 1.0),
			PruneThreshold:    getEnvFloat("OM_REINF_PRUNE_THRESHOLD", 0.02),
			SalienceBoost:     getEnvFloat("OM_REINF_SALIENCE_BOOST", 0.05),
			WaypointBoost:     getEnvFloat("OM_REINF_WAYPOINT_BOOST", 0.05),
		},
		Decay: DecayConfig{
			ColdThreshold: getEnvFloat("OM_DECAY_COLD_THRESHOLD", 0.05),
			Ratio:         getEnvFloat("OM_DECAY_RATIO", 0.2),
			BatchSize:     getEnvInt("OM_DECAY_BATCH_SIZE", 500),
			SleepMs:       getEnvInt("OM_DECAY_SLEEP_MS", 10),
		},
		Encryption: EncryptionConfig{
			Enabled: getEnvBool("OM_ENCRYPTION_ENABLED", false),
			Key:     getEnv("OM_ENCRYPTION_KEY", ""),
			Salt:    getEnv("OM_ENCRYPTION_SALT", ""),
		},

		MinVectorDim:   getEnvInt("OM_MIN_VECTOR_DIM", 8),
		MaxVectorDim:   getEnvInt("OM_MAX_VECTOR_DIM", 4096),
		MaxPayloadSize: getEnvInt("OM_MAX_PAYLOAD_SIZE", 64*1024),
		MinScore:       getEnvFloat("OM_MIN_SCORE", 0.05),

		ClassifierOverrideThreshold: getEnvFloat("OM_CLASSIFIER_OVERRIDE_THRESHOLD", 0.6),

		EmbedderKind: getEnv("OM_EMBEDDER_KIND", "local"),

		MaxRetries:        getEnvInt("OM_MAX_RETRIES", 3),
		EventMaxListeners: getEnvInt("OM_EVENT_MAX_LISTENERS", 100),
		BatchConcurrency:  getEnvInt("OM_BATCH_CONCURRENCY", 5),
	}

	profile, ok := tierProfiles[c.Tier]
	if !ok {
		return nil, errs.Config(fmt.Sprintf("invalid tier %q", c.Tier), nil)
	}
	c.TierProfile = profile

	if err := validate(c); err != nil {
		return nil, err
	}

	pterm.Success.Printf("openmemory config loaded: tier=%s metadata=%s vector=%s\n", c.Tier, c.MetadataBackend, c.VectorBackend)
	return c, nil
}

var validIdentifier = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

func validate(c *Config) error {
	switch c.MetadataBackend {
	case BackendSQLite, BackendPostgres, BackendValkey:
	default:
		return errs.Config(fmt.Sprintf("invalid metadataBackend %q", c.MetadataBackend), nil)
	}
	switch c.VectorBackend {
	case BackendSQLite, BackendPostgres, BackendValkey:
	default:
		return errs.Config(fmt.Sprintf("invalid vectorBackend %q", c.VectorBackend), nil)
	}
	if c.Encryption.Enabled {
		if c.Encryption.Key == "" || c.Encryption.Salt == "" {
			return errs.Config("encryption enabled without both key and salt", nil)
		}
		if c.Encryption.Key == "default" || c.Encryption.Salt == "default" {
			return errs.Config("encryption key/salt must not be the default placeholder", nil)
		}
	}
	if c.EmbedderKind == "aws" {
		if os.Getenv("AWS_ACCESS_KEY_ID") == "" || os.Getenv("AWS_SECRET_ACCESS_KEY") == "" {
			return errs.Config("embKind=aws requires AWS credentials in the environment", nil)
		}
	}
	for _, name := range []string{c.PgSchema, c.PgTable} {
		if !validIdentifier.MatchString(name) {
			return errs.Config(fmt.Sprintf("table/schema name %q contains characters outside [A-Za-z0-9_]", name), nil)
		}
	}
	if c.MinVectorDim <= 0 || c.MaxVectorDim < c.MinVectorDim {
		return errs.Config("invalid vector dim bounds", nil)
	}
	return nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
