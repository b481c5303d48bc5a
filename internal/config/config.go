package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	defaultAppName        = "Calmly"
	defaultAppEnv         = "development"
	defaultPort           = "8000"
	defaultLogLevel       = "info"
	defaultLogFormat      = "json"
	defaultShutdownDelay  = 10 * time.Second
	defaultIdempotencyTTL = 24 * time.Hour
	defaultOTPTTL         = 300 * time.Second
	defaultLLMEndpoint    = "http://127.0.0.1:11434/v1/chat/completions"
	defaultLLMModel       = "llama3:8b"
	defaultLLMTimeout     = 60 * time.Second
	defaultWarmupTimeout  = 30 * time.Second
	defaultTranslatorURL  = "http://127.0.0.1:5000"
	defaultTranslateWait  = 15 * time.Second
	defaultMongoDatabase  = "calmly"
	defaultSMTPPort       = 587
	defaultDBMaxConns     = 10
	defaultDBMinConns     = 0
	defaultDBIdleTime     = 5 * time.Minute
	defaultConnectTimeout = 5 * time.Second
	defaultRedisPoolSize  = 10

	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
	StoreRedis    = "redis"
)

// Config captures application runtime configuration.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	LogFormat      string
	DatabaseURL    string
	RedisURL       string
	MongoURL       string
	MongoDatabase  string
	UserStore      string
	OTPStore       string
	OTPTTL         time.Duration
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration
	AllowOrigins   string
	Database       DatabaseConfig
	Redis          RedisConfig
	LLM            LLMConfig
	Translator     TranslatorConfig
	SMTP           SMTPConfig
	Chat           ChatConfig
}

// DatabaseConfig sizes the connection pool of the user store, Postgres or Mongo.
type DatabaseConfig struct {
	MaxConns        int32
	MinConns        int32
	MaxConnIdleTime time.Duration
	ConnectTimeout  time.Duration
}

// RedisConfig sizes the go-redis client.
type RedisConfig struct {
	PoolSize    int
	DialTimeout time.Duration
}

// LLMConfig points at an OpenAI-compatible chat completions endpoint.
type LLMConfig struct {
	Endpoint      string
	Model         string
	Timeout       time.Duration
	WarmupTimeout time.Duration
	Warmup        bool
	SystemPrompt  string
	Temperature   float64
	TopP          float64
}

// TranslatorConfig configures the LibreTranslate backend.
type TranslatorConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// SMTPConfig configures OTP mail delivery. An empty Host keeps delivery in the log.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// ChatConfig tunes the chat pipeline.
type ChatConfig struct {
	FallbackToEnglish bool
}

// Load reads configuration from defaults, an optional config file and the
// environment. Keys map to upper-cased env vars with dots replaced by
// underscores, e.g. llm.endpoint -> LLM_ENDPOINT.
func Load(configFile string) (Config, error) {
	v := viper.New()

	v.SetDefault("app_name", defaultAppName)
	v.SetDefault("app_env", defaultAppEnv)
	v.SetDefault("port", defaultPort)
	v.SetDefault("log_level", defaultLogLevel)
	v.SetDefault("log_format", defaultLogFormat)
	v.SetDefault("database_url", "")
	v.SetDefault("redis_url", "")
	v.SetDefault("mongo_url", "")
	v.SetDefault("mongo_database", defaultMongoDatabase)
	v.SetDefault("user_store", "")
	v.SetDefault("otp_store", "")
	v.SetDefault("otp_ttl", defaultOTPTTL)
	v.SetDefault("shutdown_timeout", defaultShutdownDelay)
	v.SetDefault("idempotency_ttl", defaultIdempotencyTTL)
	v.SetDefault("cors.allow_origins", "*")
	v.SetDefault("database.max_conns", defaultDBMaxConns)
	v.SetDefault("database.min_conns", defaultDBMinConns)
	v.SetDefault("database.max_conn_idle_time", defaultDBIdleTime)
	v.SetDefault("database.connect_timeout", defaultConnectTimeout)
	v.SetDefault("redis.pool_size", defaultRedisPoolSize)
	v.SetDefault("redis.dial_timeout", defaultConnectTimeout)
	v.SetDefault("llm.endpoint", defaultLLMEndpoint)
	v.SetDefault("llm.model", defaultLLMModel)
	v.SetDefault("llm.timeout", defaultLLMTimeout)
	v.SetDefault("llm.warmup_timeout", defaultWarmupTimeout)
	v.SetDefault("llm.warmup", true)
	v.SetDefault("llm.system_prompt", "")
	v.SetDefault("llm.temperature", 0.8)
	v.SetDefault("llm.top_p", 0.9)
	v.SetDefault("translator.url", defaultTranslatorURL)
	v.SetDefault("translator.api_key", "")
	v.SetDefault("translator.timeout", defaultTranslateWait)
	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", defaultSMTPPort)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "")
	v.SetDefault("chat.fallback_to_english", false)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("calmly")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/calmly")
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := Config{
		AppName:        v.GetString("app_name"),
		AppEnv:         v.GetString("app_env"),
		Port:           v.GetString("port"),
		LogLevel:       strings.ToLower(v.GetString("log_level")),
		LogFormat:      strings.ToLower(v.GetString("log_format")),
		DatabaseURL:    v.GetString("database_url"),
		RedisURL:       v.GetString("redis_url"),
		MongoURL:       v.GetString("mongo_url"),
		MongoDatabase:  v.GetString("mongo_database"),
		UserStore:      strings.ToLower(v.GetString("user_store")),
		OTPStore:       strings.ToLower(v.GetString("otp_store")),
		OTPTTL:         v.GetDuration("otp_ttl"),
		ShutdownPeriod: v.GetDuration("shutdown_timeout"),
		IdempotencyTTL: v.GetDuration("idempotency_ttl"),
		AllowOrigins:   v.GetString("cors.allow_origins"),
		Database: DatabaseConfig{
			MaxConns:        v.GetInt32("database.max_conns"),
			MinConns:        v.GetInt32("database.min_conns"),
			MaxConnIdleTime: v.GetDuration("database.max_conn_idle_time"),
			ConnectTimeout:  v.GetDuration("database.connect_timeout"),
		},
		Redis: RedisConfig{
			PoolSize:    v.GetInt("redis.pool_size"),
			DialTimeout: v.GetDuration("redis.dial_timeout"),
		},
		LLM: LLMConfig{
			Endpoint:      v.GetString("llm.endpoint"),
			Model:         v.GetString("llm.model"),
			Timeout:       v.GetDuration("llm.timeout"),
			WarmupTimeout: v.GetDuration("llm.warmup_timeout"),
			Warmup:        v.GetBool("llm.warmup"),
			SystemPrompt:  v.GetString("llm.system_prompt"),
			Temperature:   v.GetFloat64("llm.temperature"),
			TopP:          v.GetFloat64("llm.top_p"),
		},
		Translator: TranslatorConfig{
			URL:     v.GetString("translator.url"),
			APIKey:  v.GetString("translator.api_key"),
			Timeout: v.GetDuration("translator.timeout"),
		},
		SMTP: SMTPConfig{
			Host:     v.GetString("smtp.host"),
			Port:     v.GetInt("smtp.port"),
			Username: v.GetString("smtp.username"),
			Password: v.GetString("smtp.password"),
			From:     v.GetString("smtp.from"),
		},
		Chat: ChatConfig{
			FallbackToEnglish: v.GetBool("chat.fallback_to_english"),
		},
	}

	if cfg.UserStore == "" {
		cfg.UserStore = inferUserStore(cfg)
	}
	if cfg.OTPStore == "" {
		cfg.OTPStore = StoreMemory
		if cfg.RedisURL != "" {
			cfg.OTPStore = StoreRedis
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) validate() error {
	switch c.UserStore {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL must be set when USER_STORE=%s", c.UserStore)
		}
	case StoreMongo:
		if c.MongoURL == "" {
			return fmt.Errorf("MONGO_URL must be set when USER_STORE=%s", c.UserStore)
		}
	default:
		return fmt.Errorf("invalid USER_STORE %q", c.UserStore)
	}

	switch c.OTPStore {
	case StoreMemory:
	case StoreRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL must be set when OTP_STORE=%s", c.OTPStore)
		}
	default:
		return fmt.Errorf("invalid OTP_STORE %q", c.OTPStore)
	}

	if c.Database.MaxConns <= 0 || c.Database.MinConns < 0 || c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("invalid DATABASE_MAX_CONNS/DATABASE_MIN_CONNS: need 0 <= min <= max and max > 0")
	}
	if c.Database.ConnectTimeout <= 0 || c.Redis.DialTimeout <= 0 {
		return fmt.Errorf("invalid connect timeouts: must be positive")
	}
	if c.Redis.PoolSize <= 0 {
		return fmt.Errorf("invalid REDIS_POOL_SIZE: must be positive")
	}
	if c.OTPTTL <= 0 {
		return fmt.Errorf("invalid OTP_TTL: must be positive")
	}
	if c.LLM.Timeout <= 0 || c.LLM.WarmupTimeout <= 0 {
		return fmt.Errorf("invalid LLM timeouts: must be positive")
	}
	if c.Translator.Timeout <= 0 {
		return fmt.Errorf("invalid TRANSLATOR_TIMEOUT: must be positive")
	}
	if c.LLM.Endpoint == "" {
		return fmt.Errorf("LLM_ENDPOINT must be set")
	}
	return nil
}

func inferUserStore(c Config) string {
	switch {
	case c.DatabaseURL != "":
		return StorePostgres
	case c.MongoURL != "":
		return StoreMongo
	default:
		return StoreMemory
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// IsDev reports whether the service runs in a local development environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}
