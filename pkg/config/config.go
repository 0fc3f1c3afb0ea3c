// Package config loads pipeline settings from defaults, an optional YAML file
// and CHURN_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Environments understood by ENV.
const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

// DefaultTrackingURI is the tracking server used outside production when no
// URI is configured.
const DefaultTrackingURI = "http://localhost:5000"

// Config holds all configuration for the churn pipeline.
type Config struct {
	Env      string         `mapstructure:"env"`
	Source   SourceConfig   `mapstructure:"source"`
	Database DatabaseConfig `mapstructure:"database"`
	Paths    PathsConfig    `mapstructure:"paths"`
	Features FeatureConfig  `mapstructure:"features"`
	Training TrainingConfig `mapstructure:"training"`
	Tracking TrackingConfig `mapstructure:"tracking"`
	Events   EventsConfig   `mapstructure:"events"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// SourceConfig selects where raw observations are read from.
type SourceConfig struct {
	Kind      string `mapstructure:"kind"` // "csv" or "postgres"
	Path      string `mapstructure:"path"`
	Table     string `mapstructure:"table"`
	StartDate string `mapstructure:"start_date"`
}

// DatabaseConfig holds PostgreSQL connection parameters for the postgres source.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// DSN returns a PostgreSQL connection string.
func (c DatabaseConfig) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslMode)
}

// PathsConfig holds the files each stage reads and writes.
type PathsConfig struct {
	Train       string `mapstructure:"train"`
	Test        string `mapstructure:"test"`
	Predict     string `mapstructure:"predict"`
	Predictions string `mapstructure:"predictions"`
	Report      string `mapstructure:"report"`
	Directory   string `mapstructure:"directory"`
}

// FeatureConfig holds the feature engineering rules.
type FeatureConfig struct {
	MinTenure         float64  `mapstructure:"min_tenure"`
	MaxInactiveMonths float64  `mapstructure:"max_inactive_months"`
	MinRevenue        float64  `mapstructure:"min_revenue"`
	Numerical         []string `mapstructure:"numerical"`
	Decimals          int32    `mapstructure:"decimals"`
}

// TrainingConfig holds the boosting parameters and registry naming.
type TrainingConfig struct {
	Label               string  `mapstructure:"label"`
	Experiment          string  `mapstructure:"experiment"`
	ModelName           string  `mapstructure:"model_name"`
	NEstimators         int     `mapstructure:"n_estimators"`
	MaxDepth            int     `mapstructure:"max_depth"`
	LearningRate        float64 `mapstructure:"learning_rate"`
	MinChildWeight      float64 `mapstructure:"min_child_weight"`
	Lambda              float64 `mapstructure:"lambda"`
	Gamma               float64 `mapstructure:"gamma"`
	Subsample           float64 `mapstructure:"subsample"`
	ColsampleByTree     float64 `mapstructure:"colsample_bytree"`
	EarlyStoppingRounds int     `mapstructure:"early_stopping_rounds"`
	Seed                int64   `mapstructure:"seed"`
	OversampleSeed      int64   `mapstructure:"oversample_seed"`
	ValidationFraction  float64 `mapstructure:"validation_fraction"`
	Threshold           float64 `mapstructure:"threshold"`
}

// TrackingConfig points at the experiment tracking backend.
type TrackingConfig struct {
	URI     string        `mapstructure:"uri"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// EventsConfig holds Kafka settings. No brokers disables publishing.
type EventsConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
}

// ServerConfig holds the scoring server settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxRecords      int           `mapstructure:"max_records"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables. An empty
// configPath means defaults and environment only.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CHURN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("env", "CHURN_ENV", "ENV"); err != nil {
		return nil, fmt.Errorf("config: bind env: %w", err)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", configPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	cfg.applyEnvironment()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}
	return &cfg, nil
}

// Default returns the configuration with only defaults applied.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	cfg.applyEnvironment()
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", EnvLocal)

	v.SetDefault("source.kind", "csv")
	v.SetDefault("source.path", "data/observations.csv")
	v.SetDefault("source.table", "customer_observations")
	v.SetDefault("source.start_date", "2017-01-01")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "churn")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "churn")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 4)

	v.SetDefault("paths.train", "train_df.csv")
	v.SetDefault("paths.test", "test_df.csv")
	v.SetDefault("paths.predict", "predict_df.csv")
	v.SetDefault("paths.predictions", "results/predictions.csv")
	v.SetDefault("paths.report", "results/churn_report.csv")
	v.SetDefault("paths.directory", "")

	v.SetDefault("features.min_tenure", 6.0)
	v.SetDefault("features.max_inactive_months", 9.0)
	v.SetDefault("features.min_revenue", 300.0)
	v.SetDefault("features.numerical", []string{
		"tenure", "age_business", "frequency", "inactive_months",
		"revenue_total", "revenue_12_months", "revenue_6_months",
		"revenue_growth", "transactions_evolution",
	})
	v.SetDefault("features.decimals", 2)

	v.SetDefault("training.label", "churn")
	v.SetDefault("training.experiment", "churn")
	v.SetDefault("training.model_name", "xgb_churn")
	v.SetDefault("training.n_estimators", 100)
	v.SetDefault("training.max_depth", 6)
	v.SetDefault("training.learning_rate", 0.3)
	v.SetDefault("training.min_child_weight", 1.0)
	v.SetDefault("training.lambda", 1.0)
	v.SetDefault("training.gamma", 0.0)
	v.SetDefault("training.subsample", 1.0)
	v.SetDefault("training.colsample_bytree", 1.0)
	v.SetDefault("training.early_stopping_rounds", 10)
	v.SetDefault("training.seed", 0)
	v.SetDefault("training.oversample_seed", 0)
	v.SetDefault("training.validation_fraction", 0.2)
	v.SetDefault("training.threshold", 0.5)

	v.SetDefault("tracking.uri", "")
	v.SetDefault("tracking.timeout", "30s")

	v.SetDefault("events.brokers", []string{})
	v.SetDefault("events.topic", "churn.events")

	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.job", "churn_pipeline")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.max_records", 1000)
	v.SetDefault("server.max_body_bytes", 1<<20)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// applyEnvironment fills values whose defaults depend on ENV.
func (c *Config) applyEnvironment() {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	if c.Tracking.URI == "" && (c.Env == EnvLocal || c.Env == EnvDev) {
		c.Tracking.URI = DefaultTrackingURI
	}
	if c.Env == EnvProd && c.Logging.Format == "console" {
		c.Logging.Format = "json"
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Env {
	case EnvLocal, EnvDev, EnvProd:
	default:
		return fmt.Errorf("unknown env %q", c.Env)
	}
	switch c.Source.Kind {
	case "csv":
		if c.Source.Path == "" {
			return fmt.Errorf("source.path is required for csv source")
		}
	case "postgres":
		if c.Source.Table == "" {
			return fmt.Errorf("source.table is required for postgres source")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			return fmt.Errorf("invalid database port: %d", c.Database.Port)
		}
	default:
		return fmt.Errorf("unknown source kind %q", c.Source.Kind)
	}
	if _, err := time.Parse("2006-01-02", c.Source.StartDate); err != nil {
		return fmt.Errorf("source.start_date: %w", err)
	}
	if c.Tracking.URI == "" {
		return fmt.Errorf("tracking.uri is required in %s", c.Env)
	}
	if c.Features.MinTenure < 0 {
		return fmt.Errorf("features.min_tenure must not be negative")
	}
	if len(c.Features.Numerical) == 0 {
		return fmt.Errorf("features.numerical must list at least one feature")
	}
	if c.Training.Label == "" || c.Training.ModelName == "" {
		return fmt.Errorf("training.label and training.model_name are required")
	}
	if c.Training.NEstimators <= 0 {
		return fmt.Errorf("training.n_estimators must be positive")
	}
	if c.Training.LearningRate <= 0 {
		return fmt.Errorf("training.learning_rate must be positive")
	}
	if c.Training.Subsample <= 0 || c.Training.Subsample > 1 {
		return fmt.Errorf("training.subsample must be in (0, 1]")
	}
	if c.Training.ColsampleByTree <= 0 || c.Training.ColsampleByTree > 1 {
		return fmt.Errorf("training.colsample_bytree must be in (0, 1]")
	}
	if c.Training.ValidationFraction <= 0 || c.Training.ValidationFraction >= 1 {
		return fmt.Errorf("training.validation_fraction must be in (0, 1)")
	}
	if c.Training.Threshold <= 0 || c.Training.Threshold >= 1 {
		return fmt.Errorf("training.threshold must be in (0, 1)")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	return nil
}

// StartDate returns the parsed start of the observation history.
func (c *Config) StartDate() time.Time {
	t, _ := time.Parse("2006-01-02", c.Source.StartDate)
	return t
}
