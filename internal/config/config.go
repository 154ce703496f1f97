// Package config loads the core's configuration from a YAML file overlaid
// with environment variables, the way go-services/shared does it.
package config

import (
	"os"

	"github.com/spf13/viper"
)

// Config aggregates the settings for every subsystem the core wires up.
type Config struct {
	Service     ServiceConfig     `mapstructure:"service"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
	ModelCache  ModelCacheConfig  `mapstructure:"model_cache"`
	Stream      StreamConfig      `mapstructure:"stream"`
	Broadcaster BroadcasterConfig `mapstructure:"broadcaster"`
	Store       StoreConfig       `mapstructure:"store"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
}

type ServiceConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
	Version     string `mapstructure:"version"`
}

// SchedulerConfig configures the Inference Scheduler (spec §4.1, §6).
type SchedulerConfig struct {
	MaxQueueDepth    int `mapstructure:"max_queue_depth"`
	MaxWorkers       int `mapstructure:"max_workers"`
	JobTTLSeconds    int `mapstructure:"job_ttl_seconds"`
	DispatchTimeoutS int `mapstructure:"dispatch_timeout_seconds"`
}

// ModelCacheConfig configures the Model Cache (spec §4.2, §6).
type ModelCacheConfig struct {
	MaxEntries      int   `mapstructure:"max_entries"`
	MaxBytes        int64 `mapstructure:"max_bytes"`
	LoadTimeoutS    int   `mapstructure:"load_timeout_seconds"`
	RedisAddr       string `mapstructure:"redis_addr"`
	RedisDB         int    `mapstructure:"redis_db"`
}

// StreamConfig configures the Camera Stream Pipeline (spec §4.3, §6).
type StreamConfig struct {
	FrameQueueCapacity     int     `mapstructure:"frame_queue_capacity"`
	FrameBufferCapacity    int     `mapstructure:"frame_buffer_capacity"`
	MotionThreshold        int     `mapstructure:"motion_threshold"`
	MaxReconnectAttempts   int     `mapstructure:"max_reconnect_attempts"`
	ReconnectDelaySeconds  float64 `mapstructure:"reconnect_delay_seconds"`
	JPEGQuality            int     `mapstructure:"jpeg_quality"`
	DefaultFPS             float64 `mapstructure:"default_fps"`
}

// BroadcasterConfig configures the Dashboard Broadcaster (spec §4.5, §6).
type BroadcasterConfig struct {
	SnapshotIntervalSeconds int    `mapstructure:"snapshot_interval_seconds"`
	SubscriberQueueDepth    int    `mapstructure:"subscriber_queue_depth"`
	NATSURL                 string `mapstructure:"nats_url"`
	NATSSubject             string `mapstructure:"nats_subject"`
}

// StoreConfig configures the document and object store adapters.
type StoreConfig struct {
	MongoURI       string `mapstructure:"mongo_uri"`
	MongoDB        string `mapstructure:"mongo_db"`
	EventsCollection string `mapstructure:"events_collection"`
	JobsCollection   string `mapstructure:"jobs_collection"`

	S3Endpoint string `mapstructure:"s3_endpoint"`
	S3Region   string `mapstructure:"s3_region"`
	S3UseSSL   bool   `mapstructure:"s3_use_ssl"`
}

type HTTPConfig struct {
	Port           string `mapstructure:"port"`
	ReadTimeoutS   int    `mapstructure:"read_timeout_seconds"`
	WriteTimeoutS  int    `mapstructure:"write_timeout_seconds"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load reads configuration from configPath (YAML) with environment overrides,
// falling back to defaults when the file is missing.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
	}
	v.SetEnvPrefix("CORE")
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
				return nil, err
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.name", "inference-core")
	v.SetDefault("service.environment", "development")
	v.SetDefault("service.log_level", "info")
	v.SetDefault("service.version", "dev")

	v.SetDefault("scheduler.max_queue_depth", 1000)
	v.SetDefault("scheduler.max_workers", 8)
	v.SetDefault("scheduler.job_ttl_seconds", 3600)
	v.SetDefault("scheduler.dispatch_timeout_seconds", 30)

	v.SetDefault("model_cache.max_entries", 5)
	v.SetDefault("model_cache.max_bytes", int64(4096*1024*1024))
	v.SetDefault("model_cache.load_timeout_seconds", 60)
	v.SetDefault("model_cache.redis_addr", "localhost:6379")
	v.SetDefault("model_cache.redis_db", 0)

	v.SetDefault("stream.frame_queue_capacity", 30)
	v.SetDefault("stream.frame_buffer_capacity", 60)
	v.SetDefault("stream.motion_threshold", 5000)
	v.SetDefault("stream.max_reconnect_attempts", 5)
	v.SetDefault("stream.reconnect_delay_seconds", 5.0)
	v.SetDefault("stream.jpeg_quality", 85)
	v.SetDefault("stream.default_fps", 15.0)

	v.SetDefault("broadcaster.snapshot_interval_seconds", 5)
	v.SetDefault("broadcaster.subscriber_queue_depth", 100)
	v.SetDefault("broadcaster.nats_url", "nats://localhost:4222")
	v.SetDefault("broadcaster.nats_subject", "dashboard.snapshot")

	v.SetDefault("store.mongo_uri", "mongodb://localhost:27017")
	v.SetDefault("store.mongo_db", "inference_core")
	v.SetDefault("store.events_collection", "camera_events")
	v.SetDefault("store.jobs_collection", "jobs_archive")
	v.SetDefault("store.s3_endpoint", "localhost:9000")
	v.SetDefault("store.s3_region", "us-east-1")
	v.SetDefault("store.s3_use_ssl", false)

	v.SetDefault("http.port", "8080")
	v.SetDefault("http.read_timeout_seconds", 30)
	v.SetDefault("http.write_timeout_seconds", 30)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}
