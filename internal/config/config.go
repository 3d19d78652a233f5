package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	DB        DBConfig        `mapstructure:"db"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Cron      CronConfig      `mapstructure:"cron"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Summary   SummaryConfig   `mapstructure:"summary"`
	Simulated SimulatedConfig `mapstructure:"simulated"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type CronConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	SummaryBatch  string `mapstructure:"summary_batch"`
	SymbolRefresh string `mapstructure:"symbol_refresh"`
	Reconcile     string `mapstructure:"reconcile"`
}

type RetrievalConfig struct {
	// MaxBatchSpan bounds the [from, to] window requested from a connector
	// in one run; zero means retrieve up to now in a single request.
	MaxBatchSpan time.Duration `mapstructure:"max_batch_span"`
	// UpsertBatchSize bounds rows per upsert statement; zero means one
	// statement for the whole dataset.
	UpsertBatchSize int `mapstructure:"upsert_batch_size"`
}

type SummaryConfig struct {
	UpsertBatchSize int `mapstructure:"upsert_batch_size"`
}

type SimulatedConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("AD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", "10m")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.summary_batch", "@every 1h")
	v.SetDefault("cron.symbol_refresh", "@every 6h")
	v.SetDefault("cron.reconcile", "@every 1m")
	v.SetDefault("retrieval.max_batch_span", "0s")
	v.SetDefault("retrieval.upsert_batch_size", 1000)
	v.SetDefault("summary.upsert_batch_size", 100)
	v.SetDefault("simulated.enabled", true)

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
