// README: Config loader: viper defaults, optional YAML file, MEDBID_* env overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "MEDBID"

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DBConfig selects Postgres; an empty DSN keeps everything in memory.
type DBConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig selects the distributed locker, broadcast log and geo index; empty Addr stays in-process.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type MongoConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type EventsConfig struct {
	Buffer int `mapstructure:"buffer"`
}

type SweeperConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	AwardAttempts int           `mapstructure:"award_attempts"`
}

type RankingConfig struct {
	MaxDistanceKm  float64 `mapstructure:"max_distance_km"`
	BroadcastLimit int     `mapstructure:"broadcast_limit"`
}

type Config struct {
	HTTP    HTTPConfig    `mapstructure:"http"`
	DB      DBConfig      `mapstructure:"db"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	Mongo   MongoConfig   `mapstructure:"mongo"`
	Log     LogConfig     `mapstructure:"log"`
	Events  EventsConfig  `mapstructure:"events"`
	Sweeper SweeperConfig `mapstructure:"sweeper"`
	Ranking RankingConfig `mapstructure:"ranking"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.shutdown_timeout", 10*time.Second)
	v.SetDefault("db.dsn", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.lock_ttl", 30*time.Second)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "medbid.order-events")
	v.SetDefault("mongo.uri", "")
	v.SetDefault("mongo.database", "medbid")
	v.SetDefault("log.level", "info")
	v.SetDefault("events.buffer", 1024)
	v.SetDefault("sweeper.interval", 30*time.Second)
	v.SetDefault("sweeper.award_attempts", 3)
	v.SetDefault("ranking.max_distance_km", 50.0)
	v.SetDefault("ranking.broadcast_limit", 10)
}

// Load reads MEDBID_CONFIG when set, then applies MEDBID_* overrides
// (e.g. MEDBID_DB_DSN, MEDBID_SWEEPER_INTERVAL=1m).
func Load() (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := os.Getenv(envPrefix + "_CONFIG"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	// Comma-separated broker lists arrive from env as a single element.
	if len(cfg.Kafka.Brokers) == 1 && strings.Contains(cfg.Kafka.Brokers[0], ",") {
		cfg.Kafka.Brokers = strings.Split(cfg.Kafka.Brokers[0], ",")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}
	if c.Sweeper.Interval <= 0 {
		return fmt.Errorf("sweeper.interval must be positive")
	}
	if c.Events.Buffer <= 0 {
		return fmt.Errorf("events.buffer must be positive")
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return fmt.Errorf("kafka.topic is required when brokers are set")
	}
	return nil
}
