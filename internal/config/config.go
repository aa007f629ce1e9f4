package config

import (
	"time"

	"github.com/spf13/viper"

	pkgconfig "github.com/driftchat/delivery/pkg/config"
	"github.com/driftchat/delivery/pkg/database"
	pkglog "github.com/driftchat/delivery/pkg/log"
	"github.com/driftchat/delivery/pkg/pubsub"
)

type Config struct {
	Server    ServerConfig
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Redis     RedisConfig
	Cache     CacheConfig
	Offline   OfflineConfig
	Buffer    BufferConfig
	Delivery  DeliveryConfig
	Database  database.Config
	Bus       pubsub.Config
	Auth      AuthConfig
	Log       pkglog.Config
}

type ServerConfig struct {
	Host string
	Port int
}

type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
}

// RedisConfig is the shared redis instance backing the chat-list cache
// and the offline queue.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

type CacheConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type OfflineConfig struct {
	MaxLen    int64         `mapstructure:"max_len"`
	Retention time.Duration `mapstructure:"retention"`
}

type BufferConfig struct {
	Size     int           `mapstructure:"size"`
	Interval time.Duration `mapstructure:"interval"`
}

// DeliveryConfig tunes the send pipeline's chat-lookup retry.
type DeliveryConfig struct {
	LookupAttempts int           `mapstructure:"lookup_attempts"`
	LookupBackoff  time.Duration `mapstructure:"lookup_backoff"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config")
	if err != nil {
		return nil, err
	}

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8090)
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 4096)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("cache.ttl", "300s")
	v.SetDefault("offline.max_len", 500)
	v.SetDefault("offline.retention", "168h")
	v.SetDefault("buffer.size", 20)
	v.SetDefault("buffer.interval", "2s")
	v.SetDefault("delivery.lookup_attempts", 3)
	v.SetDefault("delivery.lookup_backoff", "100ms")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.file_path", "delivery.db")
	v.SetDefault("bus.driver", "redis")
	v.SetDefault("bus.redis.address", "localhost:6379")
	v.SetDefault("bus.kafka.brokers", "localhost:9092")
	v.SetDefault("bus.kafka.group_id", "delivery")
	v.SetDefault("bus.kafka.partitions", 8)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.service_name", "chat-delivery")

	// Environment overrides
	v.BindEnv("server.port", "PORT")
	v.BindEnv("redis.address", "REDIS_ADDRESS")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("database.driver", "DB_DRIVER")
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("bus.driver", "BUS_DRIVER")
	v.BindEnv("bus.redis.address", "BUS_REDIS_ADDRESS")
	v.BindEnv("bus.kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("auth.jwt_secret", "JWT_SECRET")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Durations arrive as strings from env overrides; re-parse with
	// defaults.
	cfg.WebSocket.PingInterval = parseDuration(v, "websocket.ping_interval", 30*time.Second)
	cfg.WebSocket.PongWait = parseDuration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = parseDuration(v, "websocket.write_wait", 10*time.Second)
	cfg.Cache.TTL = parseDuration(v, "cache.ttl", 300*time.Second)
	cfg.Offline.Retention = parseDuration(v, "offline.retention", 168*time.Hour)
	cfg.Buffer.Interval = parseDuration(v, "buffer.interval", 2*time.Second)
	cfg.Delivery.LookupBackoff = parseDuration(v, "delivery.lookup_backoff", 100*time.Millisecond)

	return &cfg, nil
}

func parseDuration(v *viper.Viper, key string, defaultVal time.Duration) time.Duration {
	d, err := time.ParseDuration(v.GetString(key))
	if err != nil {
		return defaultVal
	}
	return d
}
