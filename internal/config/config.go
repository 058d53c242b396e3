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
	Jobs      JobsConfig      `mapstructure:"jobs"`
	Selection SelectionConfig `mapstructure:"selection"`
	Solana    SolanaConfig    `mapstructure:"solana"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	// Service is attached to every log line as the "service" field.
	Service           string `mapstructure:"service"`
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	// Driver is "postgres" (Supabase) or "sqlite".
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type CronConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	ProcessPeriod string `mapstructure:"process_period"`
}

type JobsConfig struct {
	CronSecret string        `mapstructure:"cron_secret"`
	LockTTL    time.Duration `mapstructure:"lock_ttl"`
}

type SelectionConfig struct {
	// Strategy is "aggregate" (single GROUP BY) or "fanout" (per-post counts).
	Strategy       string `mapstructure:"strategy"`
	MaxConcurrency int    `mapstructure:"max_concurrency"`
}

type SolanaConfig struct {
	RPCURL              string        `mapstructure:"rpc_url"`
	ProgramID           string        `mapstructure:"program_id"`
	AuthorityPrivateKey string        `mapstructure:"authority_private_key"`
	Commitment          string        `mapstructure:"commitment"`
	Timeout             time.Duration `mapstructure:"timeout"`
	ConfirmAttempts     uint          `mapstructure:"confirm_attempts"`
	ConfirmDelay        time.Duration `mapstructure:"confirm_delay"`
	SkipPreflight       bool          `mapstructure:"skip_preflight"`
}

type NotifyConfig struct {
	WebhookURL string        `mapstructure:"webhook_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

const DefaultProgramID = "8QYJMZkM5fExjczQxJa567F9c8fu5PqR8rN5jeR5MNFM"

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DEFESS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.service", "defess-rewards")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.driver", "postgres")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_open_conns", 10)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("db.auto_migrate", true)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("cron.enabled", false)
	v.SetDefault("cron.process_period", "10 0,30 * * * *")
	v.SetDefault("jobs.cron_secret", "")
	v.SetDefault("jobs.lock_ttl", "5m")
	v.SetDefault("selection.strategy", "aggregate")
	v.SetDefault("selection.max_concurrency", 8)
	v.SetDefault("solana.rpc_url", "https://api.devnet.solana.com")
	v.SetDefault("solana.program_id", DefaultProgramID)
	v.SetDefault("solana.authority_private_key", "")
	v.SetDefault("solana.commitment", "confirmed")
	v.SetDefault("solana.timeout", "45s")
	v.SetDefault("solana.confirm_attempts", 20)
	v.SetDefault("solana.confirm_delay", "1s")
	v.SetDefault("solana.skip_preflight", false)
	v.SetDefault("notify.webhook_url", "")
	v.SetDefault("notify.timeout", "5s")
	v.SetDefault("metrics.enabled", true)

	// Legacy names used by the web app deployment.
	_ = v.BindEnv("jobs.cron_secret", "DEFESS_JOBS_CRON_SECRET", "CRON_SECRET")
	_ = v.BindEnv("solana.authority_private_key", "DEFESS_SOLANA_AUTHORITY_PRIVATE_KEY", "SOLANA_AUTHORITY_PRIVATE_KEY")

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
