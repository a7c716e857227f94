package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Realtime RealtimeConfig
	STT      STTConfig
	Limits   LimitsConfig
	LogLevel string
}

type ServerConfig struct {
	Host        string
	Port        int
	Env         string
	CORSOrigins []string
}

type DatabaseConfig struct {
	URL            string
	MaxConns       int
	MinConns       int
	MigrationsPath string // empty uses the migrations compiled into the binary
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	SupabaseURL        string
	SupabaseAnonKey    string
	SupabaseServiceKey string
	JWTSecret          string // when empty, tokens are verified against Supabase
	RequireRealtime    bool
}

type RealtimeConfig struct {
	OpenAIKey          string
	URL                string // default: "wss://api.openai.com/v1/realtime"
	TranscriptionModel string
	VADThreshold       float64
	PrefixPaddingMs    int
	SilenceDurationMs  int
	HandshakeTimeout   time.Duration
	PingInterval       time.Duration
	PingTimeout        time.Duration
	MaxMessageBytes    int64
}

type STTConfig struct {
	OpenAIKey       string
	OpenAIBaseURL   string
	GeminiKey       string
	GeminiBaseURL   string // default: "https://generativelanguage.googleapis.com/v1beta"
	DefaultProvider string // "gemini" or "openai"
}

type LimitsConfig struct {
	MaxAudioMB      int
	MaxAudioSeconds int
}

func Load() (*Config, error) {
	port, err := getEnvInt("SERVER_PORT", 8000)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	maxConns, err := getEnvInt("DB_MAX_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_CONNS: %w", err)
	}

	minConns, err := getEnvInt("DB_MIN_CONNS", 2)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MIN_CONNS: %w", err)
	}

	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	requireRealtime, err := getEnvBool("REALTIME_REQUIRE_AUTH", false)
	if err != nil {
		return nil, fmt.Errorf("invalid REALTIME_REQUIRE_AUTH: %w", err)
	}

	vadThreshold, err := getEnvFloat("REALTIME_VAD_THRESHOLD", 0.5)
	if err != nil {
		return nil, fmt.Errorf("invalid REALTIME_VAD_THRESHOLD: %w", err)
	}

	prefixPadding, err := getEnvInt("REALTIME_PREFIX_PADDING_MS", 300)
	if err != nil {
		return nil, fmt.Errorf("invalid REALTIME_PREFIX_PADDING_MS: %w", err)
	}

	silenceDuration, err := getEnvInt("REALTIME_SILENCE_DURATION_MS", 500)
	if err != nil {
		return nil, fmt.Errorf("invalid REALTIME_SILENCE_DURATION_MS: %w", err)
	}

	handshakeTimeout, err := getEnvDuration("REALTIME_HANDSHAKE_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid REALTIME_HANDSHAKE_TIMEOUT: %w", err)
	}

	pingInterval, err := getEnvDuration("REALTIME_PING_INTERVAL", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid REALTIME_PING_INTERVAL: %w", err)
	}

	pingTimeout, err := getEnvDuration("REALTIME_PING_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid REALTIME_PING_TIMEOUT: %w", err)
	}

	maxMessageKB, err := getEnvInt("REALTIME_MAX_MESSAGE_KB", 1024)
	if err != nil {
		return nil, fmt.Errorf("invalid REALTIME_MAX_MESSAGE_KB: %w", err)
	}

	maxAudioMB, err := getEnvInt("MAX_AUDIO_MB", 20)
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_AUDIO_MB: %w", err)
	}

	maxAudioSeconds, err := getEnvInt("MAX_AUDIO_SECONDS", 120)
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_AUDIO_SECONDS: %w", err)
	}

	supabaseURL := strings.TrimRight(getEnv("SUPABASE_URL", ""), "/")
	openAIKey := getEnv("OPENAI_API_KEY", "")

	cfg := &Config{
		Server: ServerConfig{
			Host:        getEnv("SERVER_HOST", "0.0.0.0"),
			Port:        port,
			Env:         getEnv("ENV", "dev"),
			CORSOrigins: splitList(getEnv("CORS_ORIGINS", "")),
		},
		Database: DatabaseConfig{
			URL:            getEnv("DATABASE_URL", ""),
			MaxConns:       maxConns,
			MinConns:       minConns,
			MigrationsPath: getEnv("MIGRATIONS_PATH", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Auth: AuthConfig{
			SupabaseURL:        supabaseURL,
			SupabaseAnonKey:    getEnv("SUPABASE_ANON_KEY", ""),
			SupabaseServiceKey: getEnv("SUPABASE_SERVICE_ROLE_KEY", ""),
			JWTSecret:          getEnv("SUPABASE_JWT_SECRET", ""),
			RequireRealtime:    requireRealtime,
		},
		Realtime: RealtimeConfig{
			OpenAIKey:          openAIKey,
			URL:                getEnv("REALTIME_URL", "wss://api.openai.com/v1/realtime"),
			TranscriptionModel: getEnv("REALTIME_TRANSCRIPTION_MODEL", "whisper-1"),
			VADThreshold:       vadThreshold,
			PrefixPaddingMs:    prefixPadding,
			SilenceDurationMs:  silenceDuration,
			HandshakeTimeout:   handshakeTimeout,
			PingInterval:       pingInterval,
			PingTimeout:        pingTimeout,
			MaxMessageBytes:    int64(maxMessageKB) * 1024,
		},
		STT: STTConfig{
			OpenAIKey:       openAIKey,
			OpenAIBaseURL:   getEnv("STT_OPENAI_BASE_URL", ""),
			GeminiKey:       getEnv("GEMINI_API_KEY", ""),
			GeminiBaseURL:   getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
			DefaultProvider: getEnv("DEFAULT_PROVIDER", "gemini"),
		},
		Limits: LimitsConfig{
			MaxAudioMB:      maxAudioMB,
			MaxAudioSeconds: maxAudioSeconds,
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Server.Env, "prod")
}

// MaxAudioBytes is the upload size limit for batch transcription.
func (c *Config) MaxAudioBytes() int64 {
	return int64(c.Limits.MaxAudioMB) * 1024 * 1024
}

// SlogLevel maps LOG_LEVEL onto a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c *Config) Validate() error {
	var problems []string
	if c.Auth.JWTSecret == "" && c.Auth.SupabaseURL == "" {
		problems = append(problems, "one of SUPABASE_JWT_SECRET or SUPABASE_URL is required")
	}
	if c.Auth.JWTSecret == "" && c.Auth.SupabaseURL != "" && c.Auth.SupabaseServiceKey == "" && c.Auth.SupabaseAnonKey == "" {
		problems = append(problems, "SUPABASE_SERVICE_ROLE_KEY or SUPABASE_ANON_KEY is required for remote token verification")
	}
	if c.Realtime.PingInterval > 0 && c.Realtime.PingTimeout <= 0 {
		problems = append(problems, "REALTIME_PING_TIMEOUT must be positive when pinging is enabled")
	}
	if c.Limits.MaxAudioMB <= 0 {
		problems = append(problems, "MAX_AUDIO_MB must be positive")
	}
	if c.Limits.MaxAudioSeconds <= 0 {
		problems = append(problems, "MAX_AUDIO_SECONDS must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(v, 64)
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseBool(v)
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return time.ParseDuration(v)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
