// Package config 提供 TOML 配置加载、环境变量覆盖与校验
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config 基础配置结构
type Config struct {
	// 服务名称
	ServiceName string `mapstructure:"service_name"`
	// 服务版本
	Version string `mapstructure:"version"`
	// 环境：dev, staging, prod
	Environment string `mapstructure:"environment"`
	// HTTP 服务配置
	HTTP HTTPConfig `mapstructure:"http"`
	// 数据库配置
	Database DatabaseConfig `mapstructure:"database"`
	// Redis 配置
	Redis RedisConfig `mapstructure:"redis"`
	// Kafka 配置
	Kafka KafkaConfig `mapstructure:"kafka"`
	// 日志配置
	Logger LoggerConfig `mapstructure:"logger"`
	// 追踪配置
	Tracing TracingConfig `mapstructure:"tracing"`
	// 指标配置
	Metrics MetricsConfig `mapstructure:"metrics"`
	// 限流配置
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	// 定价引擎配置
	Pricing PricingConfig `mapstructure:"pricing"`
}

// HTTPConfig HTTP 服务配置
type HTTPConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动：mysql, sqlite
	Driver             string `mapstructure:"driver"`
	DSN                string `mapstructure:"dsn"`
	MaxOpenConns       int    `mapstructure:"max_open_conns"`
	MaxIdleConns       int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime    int    `mapstructure:"conn_max_lifetime"`
	LogEnabled         bool   `mapstructure:"log_enabled"`
	SlowQueryThreshold int    `mapstructure:"slow_query_threshold"`
	AutoMigrate        bool   `mapstructure:"auto_migrate"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	MaxPoolSize  int    `mapstructure:"max_pool_size"`
	ConnTimeout  int    `mapstructure:"conn_timeout"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
	// 定价结果缓存 TTL（秒）
	ResultTTL int `mapstructure:"result_ttl"`
}

// KafkaConfig Kafka 配置
type KafkaConfig struct {
	Brokers        []string `mapstructure:"brokers"`
	GroupID        string   `mapstructure:"group_id"`
	SessionTimeout int      `mapstructure:"session_timeout"`
	MaxRetries     int      `mapstructure:"max_retries"`
	RetryBackoff   int      `mapstructure:"retry_backoff"`
	// 领域事件主题
	EventsTopic string `mapstructure:"events_topic"`
	// 波动率更新主题
	VolatilityTopic string `mapstructure:"volatility_topic"`
	// Outbox 轮询间隔（毫秒）与批量
	OutboxInterval  int `mapstructure:"outbox_interval"`
	OutboxBatchSize int `mapstructure:"outbox_batch_size"`
	// 已发送消息保留时长（小时）
	OutboxRetention int `mapstructure:"outbox_retention"`
}

// LoggerConfig 日志配置
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
	WithCaller bool   `mapstructure:"with_caller"`
}

// TracingConfig 追踪配置
type TracingConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// 导出器：stdout, none
	Exporter     string  `mapstructure:"exporter"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// RateLimitConfig HTTP 限流配置
type RateLimitConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// 后端：redis（多实例共享）, local
	Backend string `mapstructure:"backend"`
	QPS     int    `mapstructure:"qps"`
	Burst   int    `mapstructure:"burst"`
}

// PricingConfig 定价引擎默认参数，请求未指定时使用
type PricingConfig struct {
	FD FDConfig `mapstructure:"fd"`
	MC MCConfig `mapstructure:"mc"`
	// 批量定价并发度
	BatchConcurrency int `mapstructure:"batch_concurrency"`
}

// FDConfig 有限差分默认参数
type FDConfig struct {
	GridPoints int `mapstructure:"grid_points"`
	TimeSteps  int `mapstructure:"time_steps"`
}

// MCConfig 蒙特卡洛默认参数
type MCConfig struct {
	TimeStepsPerYear  int     `mapstructure:"time_steps_per_year"`
	BrownianBridge    bool    `mapstructure:"brownian_bridge"`
	AntitheticVariate bool    `mapstructure:"antithetic_variate"`
	RequiredSamples   int     `mapstructure:"required_samples"`
	RequiredTolerance float64 `mapstructure:"required_tolerance"`
	MaxSamples        int     `mapstructure:"max_samples"`
	Seed              uint64  `mapstructure:"seed"`
	Sequence          string  `mapstructure:"sequence"`
	Workers           int     `mapstructure:"workers"`
}

// Load 从 TOML 文件加载配置，文件必须存在
func Load(configPath string) (*Config, error) {
	v := newViper(configPath)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return unmarshal(v)
}

// LoadWithDefaults 从 TOML 文件加载配置，文件不存在时只使用默认值与环境变量
func LoadWithDefaults(configPath string) (*Config, error) {
	v := newViper(configPath)
	if err := v.ReadInConfig(); err != nil {
		// 文件存在但无法解析时报错
		if _, statErr := os.Stat(configPath); statErr == nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return unmarshal(v)
}

func newViper(configPath string) *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate 验证配置的有效性
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service_name is required")
	}
	if c.Environment == "" {
		c.Environment = "dev"
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTP.Port)
	}
	if c.Database.DSN == "" && c.Database.Driver != "sqlite" {
		return fmt.Errorf("database DSN is required for %s driver", c.Database.Driver)
	}
	if c.Pricing.FD.GridPoints < 3 {
		return fmt.Errorf("pricing.fd.grid_points must be at least 3, got %d", c.Pricing.FD.GridPoints)
	}
	if c.Pricing.FD.TimeSteps <= 0 {
		return fmt.Errorf("pricing.fd.time_steps must be positive, got %d", c.Pricing.FD.TimeSteps)
	}
	if c.RateLimit.Enabled && c.RateLimit.QPS <= 0 {
		return fmt.Errorf("rate_limit.qps must be positive when enabled, got %d", c.RateLimit.QPS)
	}
	mc := c.Pricing.MC
	if mc.TimeStepsPerYear <= 0 {
		return fmt.Errorf("pricing.mc.time_steps_per_year must be positive, got %d", mc.TimeStepsPerYear)
	}
	if mc.RequiredSamples < 0 || mc.RequiredTolerance < 0 || mc.MaxSamples < 0 || mc.Workers < 0 {
		return fmt.Errorf("pricing.mc sampling settings must not be negative")
	}
	return nil
}

// setDefaults 设置默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("service_name", "pricing")
	v.SetDefault("environment", "dev")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", 30)
	v.SetDefault("http.write_timeout", 30)

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 300)
	v.SetDefault("database.log_enabled", false)
	v.SetDefault("database.slow_query_threshold", 1000)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.max_pool_size", 10)
	v.SetDefault("redis.conn_timeout", 5)
	v.SetDefault("redis.read_timeout", 3)
	v.SetDefault("redis.write_timeout", 3)
	v.SetDefault("redis.result_ttl", 900)

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.group_id", "pricing-service")
	v.SetDefault("kafka.session_timeout", 10)
	v.SetDefault("kafka.max_retries", 3)
	v.SetDefault("kafka.retry_backoff", 100)
	v.SetDefault("kafka.events_topic", "pricing.events")
	v.SetDefault("kafka.volatility_topic", "pricing.volatility")
	v.SetDefault("kafka.outbox_interval", 2000)
	v.SetDefault("kafka.outbox_batch_size", 100)
	v.SetDefault("kafka.outbox_retention", 72)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.output", "stdout")
	v.SetDefault("logger.file_path", "logs/pricing.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 10)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.with_caller", true)

	v.SetDefault("tracing.enabled", true)
	v.SetDefault("tracing.exporter", "stdout")
	v.SetDefault("tracing.sampling_rate", 1.0)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.backend", "redis")
	v.SetDefault("rate_limit.qps", 100)
	v.SetDefault("rate_limit.burst", 200)

	v.SetDefault("pricing.fd.grid_points", 201)
	v.SetDefault("pricing.fd.time_steps", 400)
	v.SetDefault("pricing.mc.time_steps_per_year", 52)
	v.SetDefault("pricing.mc.brownian_bridge", false)
	v.SetDefault("pricing.mc.antithetic_variate", true)
	v.SetDefault("pricing.mc.required_samples", 0)
	v.SetDefault("pricing.mc.required_tolerance", 0.02)
	v.SetDefault("pricing.mc.max_samples", 1000000)
	v.SetDefault("pricing.mc.seed", 42)
	v.SetDefault("pricing.mc.sequence", "pseudorandom")
	v.SetDefault("pricing.mc.workers", 4)
	v.SetDefault("pricing.batch_concurrency", 4)
}
