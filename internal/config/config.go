package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config 全局配置结构体
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Log       LogConfig       `mapstructure:"log"`
}

// AppConfig 应用配置
type AppConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
	Mode    string `mapstructure:"mode"`
	Port    int    `mapstructure:"port"`

	MetricsPort int `mapstructure:"metrics_port"` // worker 的 /metrics 端口
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // 秒

	// 会话级超时（毫秒，0 表示不设置）：行锁等待超时后事务报错，交给重试逻辑
	LockTimeout      int `mapstructure:"lock_timeout"`
	StatementTimeout int `mapstructure:"statement_timeout"`
}

// DSN 返回PostgreSQL连接字符串，超时作为运行时参数随连接下发
func (d *DatabaseConfig) DSN() string {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
	if d.LockTimeout > 0 {
		dsn += fmt.Sprintf(" lock_timeout=%d", d.LockTimeout)
	}
	if d.StatementTimeout > 0 {
		dsn += fmt.Sprintf(" statement_timeout=%d", d.StatementTimeout)
	}
	return dsn
}

// RedisConfig Redis配置
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// Addr 返回Redis地址
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// KafkaConfig Kafka配置
type KafkaConfig struct {
	Brokers  []string          `mapstructure:"brokers"`
	Topics   map[string]string `mapstructure:"topics"`
	Consumer ConsumerConfig    `mapstructure:"consumer"`
}

// Topic 按逻辑名取 topic，未配置时返回 fallback
func (k *KafkaConfig) Topic(name, fallback string) string {
	if t, ok := k.Topics[name]; ok && t != "" {
		return t
	}
	return fallback
}

// ConsumerConfig 消费者配置
type ConsumerConfig struct {
	GroupID      string `mapstructure:"group_id"`
	Concurrency  int    `mapstructure:"concurrency"`   // 每个 topic 的 worker 数
	RetryBackoff int    `mapstructure:"retry_backoff"` // 毫秒
	MaxAttempts  int    `mapstructure:"max_attempts"`  // 同一条消息在进程内的处理次数，用尽后重新入组
}

// RetryBackoffDuration 返回重新加入消费组前的等待时间
func (c *ConsumerConfig) RetryBackoffDuration() time.Duration {
	return time.Duration(c.RetryBackoff) * time.Millisecond
}

// ReconcileConfig 对账任务配置
type ReconcileConfig struct {
	MaxRetryCount     int    `mapstructure:"max_retry_count"`
	PendingInterval   int    `mapstructure:"pending_interval"`   // 秒
	CancelledInterval int    `mapstructure:"cancelled_interval"` // 秒
	CleanupAt         string `mapstructure:"cleanup_at"`         // HH:MM，本地时间
	MutationTimeout   int    `mapstructure:"mutation_timeout"`   // 秒
	LockTTL           int    `mapstructure:"lock_ttl"`           // 秒
}

func (r *ReconcileConfig) PendingIntervalDuration() time.Duration {
	return time.Duration(r.PendingInterval) * time.Second
}

func (r *ReconcileConfig) CancelledIntervalDuration() time.Duration {
	return time.Duration(r.CancelledInterval) * time.Second
}

func (r *ReconcileConfig) MutationTimeoutDuration() time.Duration {
	return time.Duration(r.MutationTimeout) * time.Second
}

func (r *ReconcileConfig) LockTTLDuration() time.Duration {
	return time.Duration(r.LockTTL) * time.Second
}

// Validate 校验对账配置
func (r *ReconcileConfig) Validate() error {
	if r.MaxRetryCount < 1 {
		return fmt.Errorf("reconcile.max_retry_count must be positive, got %d", r.MaxRetryCount)
	}
	if r.PendingInterval < 1 || r.CancelledInterval < 1 {
		return fmt.Errorf("reconcile intervals must be positive")
	}
	if r.MutationTimeout < 1 {
		return fmt.Errorf("reconcile.mutation_timeout must be positive, got %d", r.MutationTimeout)
	}
	// 0 会让 redis 租约永不过期，实例崩溃后该步骤永远拿不到锁
	if r.LockTTL < 1 {
		return fmt.Errorf("reconcile.lock_ttl must be positive, got %d", r.LockTTL)
	}
	return nil
}

// JWTConfig JWT配置
type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

// ExpireDuration 返回过期时间
func (j *JWTConfig) ExpireDuration() time.Duration {
	return time.Duration(j.ExpireHours) * time.Hour
}

// LogConfig 日志配置
type LogConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	FilePath string `mapstructure:"file_path"`
}

// DefaultPath 默认配置文件路径，可用环境变量 FOLLOW_CONFIG 覆盖
const DefaultPath = "configs/config.yaml"

// ResolvePath 返回要加载的配置文件路径
func ResolvePath() string {
	if p := os.Getenv("FOLLOW_CONFIG"); p != "" {
		return p
	}
	return DefaultPath
}

// 全局配置实例
var globalConfig *Config

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "follow-go")
	v.SetDefault("app.mode", "release")
	v.SetDefault("app.port", 8000)
	v.SetDefault("app.metrics_port", 9100)

	v.SetDefault("kafka.topics.follower_increase", "follower-increase")
	v.SetDefault("kafka.topics.follower_decrease", "follower-decrease")
	v.SetDefault("kafka.consumer.group_id", "follow-go-follower-count")
	v.SetDefault("kafka.consumer.concurrency", 3)
	v.SetDefault("kafka.consumer.retry_backoff", 1000)
	v.SetDefault("kafka.consumer.max_attempts", 3)

	v.SetDefault("database.lock_timeout", 5000)
	v.SetDefault("database.statement_timeout", 30000)

	v.SetDefault("reconcile.max_retry_count", 3)
	v.SetDefault("reconcile.pending_interval", 300)
	v.SetDefault("reconcile.cancelled_interval", 300)
	v.SetDefault("reconcile.cleanup_at", "03:00")
	v.SetDefault("reconcile.mutation_timeout", 10)
	v.SetDefault("reconcile.lock_ttl", 600)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")
}

// Load 加载配置文件
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Reconcile.Validate(); err != nil {
		return nil, err
	}

	globalConfig = &cfg

	return &cfg, nil
}

// Get 获取全局配置
func Get() *Config {
	if globalConfig == nil {
		panic("config not loaded, please call Load() first")
	}
	return globalConfig
}

// GetJWT 获取JWT配置
func GetJWT() *JWTConfig {
	return &Get().JWT
}

// GetApp 获取应用配置
func GetApp() *AppConfig {
	return &Get().App
}
