package config

import (
	"time"

	"github.com/quietpage/proactive-engagement/pkg/detector"
	"github.com/quietpage/proactive-engagement/pkg/executor"
	"github.com/quietpage/proactive-engagement/pkg/guard"
	"github.com/quietpage/proactive-engagement/pkg/scheduler"
)

// Config holds all application configuration loaded from environment
// variables via github.com/caarlos0/env struct tags.
type Config struct {
	// Server configuration
	OpsPort     int    `env:"OPS_PORT" envDefault:"8080"`
	Environment string `env:"ENVIRONMENT" envDefault:"dev"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"quietpage-engagement"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogJSON     bool   `env:"LOG_JSON" envDefault:"false"`

	// Redis configuration
	RedisHost           string        `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort           string        `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword       string        `env:"REDIS_PASSWORD"`
	RedisConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"30s"`

	// Scheduler job intervals
	MainInterval      time.Duration `env:"MAIN_CYCLE_INTERVAL" envDefault:"5m"`
	ImmediateInterval time.Duration `env:"IMMEDIATE_CYCLE_INTERVAL" envDefault:"1m"`
	AnalyticsInterval time.Duration `env:"ANALYTICS_CYCLE_INTERVAL" envDefault:"15m"`
	CleanupSchedule   string        `env:"CLEANUP_SCHEDULE" envDefault:"0 3 * * *"`
	MaxUsersPerCycle  int           `env:"MAX_USERS_PER_CYCLE" envDefault:"50"`
	TopOpportunities  int           `env:"TOP_OPPORTUNITIES" envDefault:"3"`
	AnalyticsWindow   time.Duration `env:"ANALYTICS_WINDOW" envDefault:"24h"`
	Retention         time.Duration `env:"RECORD_RETENTION" envDefault:"2160h"`

	// Immediate cycle
	ImmediateEnabled  bool          `env:"IMMEDIATE_CYCLE_ENABLED" envDefault:"true"`
	ImmediateUserCap  int           `env:"IMMEDIATE_USER_CAP" envDefault:"10"`
	ImmediateLookback time.Duration `env:"IMMEDIATE_LOOKBACK" envDefault:"10m"`

	// Opportunity detection
	MinInitialDelay        time.Duration `env:"MIN_INITIAL_DELAY" envDefault:"5m"`
	InitialDelayMin        time.Duration `env:"INITIAL_DELAY_MIN" envDefault:"10m"`
	InitialDelayMax        time.Duration `env:"INITIAL_DELAY_MAX" envDefault:"2h"`
	CollaborativeDelay     time.Duration `env:"COLLABORATIVE_DELAY" envDefault:"30m"`
	SecondPerspectiveDelay time.Duration `env:"SECOND_PERSPECTIVE_DELAY" envDefault:"1h"`
	PatternWindow          time.Duration `env:"PATTERN_WINDOW" envDefault:"4h"`
	SimilarityThreshold    float64       `env:"SIMILARITY_THRESHOLD" envDefault:"0.3"`
	PatternDetection       bool          `env:"PATTERN_DETECTION_ENABLED" envDefault:"true"`

	// Bombardment prevention
	BombardmentWindow time.Duration `env:"BOMBARDMENT_WINDOW" envDefault:"30m"`
	OverridePriority  int           `env:"OVERRIDE_PRIORITY" envDefault:"8"`

	// Executor timeouts
	GenerateTimeout time.Duration `env:"GENERATE_TIMEOUT" envDefault:"30s"`
	PersistTimeout  time.Duration `env:"PERSIST_TIMEOUT" envDefault:"5s"`

	// Response generation service
	GeneratorURL string `env:"GENERATOR_URL" envDefault:"http://localhost:9090/generate"`

	// Engagement policy
	PolicyPath    string `env:"POLICY_PATH"`
	DayBoundaryTZ string `env:"DAY_BOUNDARY_TZ" envDefault:"UTC"`
}

// RedisAddr returns the host:port address of the Redis backing store.
func (c *Config) RedisAddr() string {
	return c.RedisHost + ":" + c.RedisPort
}

// DetectorConfig maps the env fields to the detector's config.
func (c *Config) DetectorConfig() detector.Config {
	return detector.Config{
		MinInitialDelay:        c.MinInitialDelay,
		InitialDelayMin:        c.InitialDelayMin,
		InitialDelayMax:        c.InitialDelayMax,
		CollaborativeDelay:     c.CollaborativeDelay,
		SecondPerspectiveDelay: c.SecondPerspectiveDelay,
		PatternWindow:          c.PatternWindow,
		SimilarityThreshold:    c.SimilarityThreshold,
		PatternDetection:       c.PatternDetection,
	}
}

// GuardConfig maps the env fields to the bombardment guard's config.
func (c *Config) GuardConfig() guard.Config {
	return guard.Config{
		Window:           c.BombardmentWindow,
		OverridePriority: c.OverridePriority,
	}
}

// ExecutorConfig maps the env fields to the executor's config.
func (c *Config) ExecutorConfig() executor.Config {
	return executor.Config{
		GenerateTimeout: c.GenerateTimeout,
		PersistTimeout:  c.PersistTimeout,
	}
}

// SchedulerConfig maps the env fields to the scheduler's config.
func (c *Config) SchedulerConfig() scheduler.Config {
	return scheduler.Config{
		MainInterval:      c.MainInterval,
		ImmediateInterval: c.ImmediateInterval,
		AnalyticsInterval: c.AnalyticsInterval,
		CleanupSchedule:   c.CleanupSchedule,
		MaxUsersPerCycle:  c.MaxUsersPerCycle,
		TopK:              c.TopOpportunities,
		ImmediateEnabled:  c.ImmediateEnabled,
		ImmediateUserCap:  c.ImmediateUserCap,
		ImmediateLookback: c.ImmediateLookback,
		Retention:         c.Retention,
		AnalyticsWindow:   c.AnalyticsWindow,
	}
}
