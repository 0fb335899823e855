// Package config loads settings for the controller, workers and CLI from
// defaults, an optional YAML file and environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Queue backends.
const (
	QueueNATS     = "nats"
	QueuePostgres = "postgres"
)

// Config holds all configuration values for the application.
type Config struct {
	DatabaseURL string
	HTTPPort    int
	MetricsPort int

	// URL of the control plane, used by the CLI.
	ControllerURL string

	QueueBackend       string
	NATSURL            string
	GenerationStream   string
	GenerationSubject  string
	GenerationConsumer string
	ExecutionStream    string
	ExecutionSubject   string
	ExecutionConsumer  string
	QueueBlockTimeout  time.Duration
	QueueBatchSize     int
	QueueErrorBackoff  time.Duration
	QueueAckWait       time.Duration
	WorkerMaxBackoff   time.Duration

	LLMProvider   string
	LLMBaseURL    string
	LLMModel      string
	LLMAPIKey     string
	LLMNumPredict int
	LLMNumCtx     int

	BrowserDriver  string
	BrowserTimeout time.Duration

	ArtifactsRoot      string
	StorageBackend     string
	KeepLocalArtifacts bool
	MinioEndpoint      string
	MinioAccessKey     string
	MinioSecretKey     string
	MinioBucket        string
	MinioRegion        string
	MinioUseSSL        bool
	PresignTTL         time.Duration

	PlanMaxSteps      int
	PlanMaxAssertions int

	OTELEndpoint   string
	RateLimit      float64
	RateLimitBurst int
	LogLevel       string
}

// envAliases maps keys whose environment variable is not simply the upper
// cased key.
var envAliases = map[string]string{
	"http_port":     "PORT",
	"otel_endpoint": "OTEL_EXPORTER_OTLP_ENDPOINT",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_port", 6161)
	v.SetDefault("metrics_port", 6162)
	v.SetDefault("controller_url", "http://localhost:6161")

	v.SetDefault("queue_backend", QueueNATS)
	v.SetDefault("nats_url", "nats://localhost:4222")
	v.SetDefault("generation_stream", "TESTPLANE_GENERATION")
	v.SetDefault("generation_subject", "testplane.generation")
	v.SetDefault("generation_consumer", "llm-workers")
	v.SetDefault("execution_stream", "TESTPLANE_EXECUTION")
	v.SetDefault("execution_subject", "testplane.execution")
	v.SetDefault("execution_consumer", "runner-workers")
	v.SetDefault("queue_block_timeout", 5*time.Second)
	v.SetDefault("queue_batch_size", 1)
	v.SetDefault("queue_error_backoff", 2*time.Second)
	v.SetDefault("queue_ack_wait", 10*time.Minute)
	v.SetDefault("worker_max_backoff", 30*time.Second)

	v.SetDefault("llm_provider", "ollama")
	v.SetDefault("llm_base_url", "http://localhost:11434")
	v.SetDefault("llm_model", "llama3.1")
	v.SetDefault("llm_num_predict", 2048)
	v.SetDefault("llm_num_ctx", 8192)

	v.SetDefault("browser_driver", "playwright")
	v.SetDefault("browser_timeout", 15*time.Second)

	v.SetDefault("artifacts_root", "./artifacts")
	v.SetDefault("storage_backend", "local")
	v.SetDefault("keep_local_artifacts", false)
	v.SetDefault("minio_bucket", "testplane-artifacts")
	v.SetDefault("minio_region", "us-east-1")
	v.SetDefault("presign_ttl", 30*time.Minute)

	v.SetDefault("plan_max_steps", 60)
	v.SetDefault("plan_max_assertions", 40)

	v.SetDefault("otel_endpoint", "localhost:4317")
	v.SetDefault("rate_limit", 100.0)
	v.SetDefault("rate_limit_burst", 200)
	v.SetDefault("log_level", "info")
}

// Load reads configuration. Precedence, lowest first: defaults, the YAML
// file at path (or testplane.yaml in the working directory when path is
// empty and the file exists), environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("testplane")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envAliases {
		if err := v.BindEnv(key, env); err != nil {
			return nil, err
		}
	}

	cfg := &Config{
		DatabaseURL:   v.GetString("database_url"),
		HTTPPort:      v.GetInt("http_port"),
		MetricsPort:   v.GetInt("metrics_port"),
		ControllerURL: v.GetString("controller_url"),

		QueueBackend:       strings.ToLower(v.GetString("queue_backend")),
		NATSURL:            v.GetString("nats_url"),
		GenerationStream:   v.GetString("generation_stream"),
		GenerationSubject:  v.GetString("generation_subject"),
		GenerationConsumer: v.GetString("generation_consumer"),
		ExecutionStream:    v.GetString("execution_stream"),
		ExecutionSubject:   v.GetString("execution_subject"),
		ExecutionConsumer:  v.GetString("execution_consumer"),
		QueueBlockTimeout:  v.GetDuration("queue_block_timeout"),
		QueueBatchSize:     v.GetInt("queue_batch_size"),
		QueueErrorBackoff:  v.GetDuration("queue_error_backoff"),
		QueueAckWait:       v.GetDuration("queue_ack_wait"),
		WorkerMaxBackoff:   v.GetDuration("worker_max_backoff"),

		LLMProvider:   strings.ToLower(v.GetString("llm_provider")),
		LLMBaseURL:    v.GetString("llm_base_url"),
		LLMModel:      v.GetString("llm_model"),
		LLMAPIKey:     v.GetString("llm_api_key"),
		LLMNumPredict: v.GetInt("llm_num_predict"),
		LLMNumCtx:     v.GetInt("llm_num_ctx"),

		BrowserDriver:  strings.ToLower(v.GetString("browser_driver")),
		BrowserTimeout: v.GetDuration("browser_timeout"),

		ArtifactsRoot:      v.GetString("artifacts_root"),
		StorageBackend:     strings.ToLower(v.GetString("storage_backend")),
		KeepLocalArtifacts: v.GetBool("keep_local_artifacts"),
		MinioEndpoint:      v.GetString("minio_endpoint"),
		MinioAccessKey:     v.GetString("minio_access_key"),
		MinioSecretKey:     v.GetString("minio_secret_key"),
		MinioBucket:        v.GetString("minio_bucket"),
		MinioRegion:        v.GetString("minio_region"),
		MinioUseSSL:        v.GetBool("minio_use_ssl"),
		PresignTTL:         v.GetDuration("presign_ttl"),

		PlanMaxSteps:      v.GetInt("plan_max_steps"),
		PlanMaxAssertions: v.GetInt("plan_max_assertions"),

		OTELEndpoint:   v.GetString("otel_endpoint"),
		RateLimit:      v.GetFloat64("rate_limit"),
		RateLimitBurst: v.GetInt("rate_limit_burst"),
		LogLevel:       strings.ToLower(v.GetString("log_level")),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func oneOf(key, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("invalid %s %q (allowed: %s)", key, value, strings.Join(allowed, ", "))
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database_url is required (env: DATABASE_URL)")
	}
	checks := []error{
		oneOf("queue_backend", c.QueueBackend, QueueNATS, QueuePostgres),
		oneOf("llm_provider", c.LLMProvider, "ollama", "openai"),
		oneOf("browser_driver", c.BrowserDriver, "playwright", "chromedp"),
		oneOf("storage_backend", c.StorageBackend, "local", "minio"),
		oneOf("log_level", c.LogLevel, "debug", "info", "warn", "error"),
	}
	if err := errors.Join(checks...); err != nil {
		return err
	}
	if c.StorageBackend == "minio" && c.MinioEndpoint == "" {
		return errors.New("minio_endpoint is required when storage_backend is minio")
	}
	if c.QueueBatchSize <= 0 {
		return fmt.Errorf("queue_batch_size must be positive, got %d", c.QueueBatchSize)
	}
	return nil
}
