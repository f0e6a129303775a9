package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	MySQL     MySQLConfig     `mapstructure:"mysql"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Lock      LockConfig      `mapstructure:"lock"`
	Admission AdmissionConfig `mapstructure:"admission"`
	Business  BusinessConfig  `mapstructure:"business"`
}

type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	Mode     string `mapstructure:"mode"` // gin 模式：debug/release/test
	WorkerID int64  `mapstructure:"worker_id"`

	// 允许跨域的来源，为空时不限制
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// 存储/锁/计数器的实现选择
const (
	DriverMySQL  = "mysql"
	DriverMemory = "memory"
	DriverRedis  = "redis"
	DriverLocal  = "local"
)

type StorageConfig struct {
	Driver string `mapstructure:"driver"` // mysql | memory
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	LogSQL       bool   `mapstructure:"log_sql"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Enabled       bool             `mapstructure:"enabled"`
	Brokers       []string         `mapstructure:"brokers"`
	ConsumerGroup string           `mapstructure:"consumer_group"`
	Topic         KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	Ledger     string `mapstructure:"ledger"`      // 流水入账事件
	Unbilled   string `mapstructure:"unbilled"`    // 无法计费话单
	CallEvents string `mapstructure:"call_events"` // 信令侧呼叫事件（消费）
}

type LockConfig struct {
	Driver        string        `mapstructure:"driver"` // redis | local
	TTL           time.Duration `mapstructure:"ttl"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
	MaxRetries    int           `mapstructure:"max_retries"`
}

type AdmissionConfig struct {
	Driver    string `mapstructure:"driver"` // redis | local
	KeyPrefix string `mapstructure:"key_prefix"`
}

type BusinessConfig struct {
	MaxRetryCount   int           `mapstructure:"max_retry_count"` // outbox 最大重试次数
	OutboxInterval  time.Duration `mapstructure:"outbox_interval"`
	OutboxBatchSize int           `mapstructure:"outbox_batch_size"`
	SessionMaxAge   time.Duration `mapstructure:"session_max_age"`
	ReaperInterval  time.Duration `mapstructure:"reaper_interval"`
	ReconcileCron   string        `mapstructure:"reconcile_cron"`
	RecentCallLimit int           `mapstructure:"recent_call_limit"`
	DefaultCurrency string        `mapstructure:"default_currency"`
	DefaultCallsCap int           `mapstructure:"default_calls_cap"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

var GlobalConfig *Config

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.worker_id", 1)

	v.SetDefault("storage.driver", DriverMySQL)
	v.SetDefault("mysql.max_open_conns", 50)
	v.SetDefault("mysql.max_idle_conns", 10)

	v.SetDefault("kafka.enabled", true)
	v.SetDefault("kafka.consumer_group", "voipbilling")
	v.SetDefault("kafka.topic.ledger", "ledger_posted")
	v.SetDefault("kafka.topic.unbilled", "call_unbilled")
	v.SetDefault("kafka.topic.call_events", "call_events")

	v.SetDefault("lock.driver", DriverRedis)
	v.SetDefault("lock.ttl", 30*time.Second)
	v.SetDefault("lock.retry_interval", 100*time.Millisecond)
	v.SetDefault("lock.max_retries", 30)

	v.SetDefault("admission.driver", DriverRedis)
	v.SetDefault("admission.key_prefix", "admission:account:")

	v.SetDefault("business.max_retry_count", 5)
	v.SetDefault("business.outbox_interval", 100*time.Millisecond)
	v.SetDefault("business.outbox_batch_size", 100)
	v.SetDefault("business.session_max_age", 4*time.Hour)
	v.SetDefault("business.reaper_interval", time.Minute)
	v.SetDefault("business.reconcile_cron", "0 0 3 * * *")
	v.SetDefault("business.recent_call_limit", 10)
	v.SetDefault("business.default_currency", "USD")
	v.SetDefault("business.default_calls_cap", 1)
	v.SetDefault("business.shutdown_timeout", 10*time.Second)
}

// Load 读取并校验配置，环境变量 VOIPBILLING_MYSQL_PASSWORD 等可覆盖文件中的值
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("voipbilling")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfig 加载配置文件，失败直接退出
func LoadConfig(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("%v", err)
	}
	GlobalConfig = cfg
	return cfg
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case DriverMySQL, DriverMemory:
	default:
		return fmt.Errorf("storage.driver 不支持: %q", c.Storage.Driver)
	}
	switch c.Lock.Driver {
	case DriverRedis, DriverLocal:
	default:
		return fmt.Errorf("lock.driver 不支持: %q", c.Lock.Driver)
	}
	switch c.Admission.Driver {
	case DriverRedis, DriverLocal:
	default:
		return fmt.Errorf("admission.driver 不支持: %q", c.Admission.Driver)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.enabled 为 true 时 kafka.brokers 不能为空")
	}
	if c.Business.DefaultCallsCap < 1 {
		return fmt.Errorf("business.default_calls_cap 必须 >= 1")
	}
	return nil
}

// NeedRedis 锁或并发计数使用 Redis 时才需要连接
func (c *Config) NeedRedis() bool {
	return c.Lock.Driver == DriverRedis || c.Admission.Driver == DriverRedis
}
