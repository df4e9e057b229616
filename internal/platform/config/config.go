package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/Atomars1/stroam-mvp/internal/playback"
)

// Config is the runtime configuration of the sync server.
type Config struct {
	Port           string
	LogLevel       string
	LogFormat      string
	DatabaseURL    string // empty keeps rooms in memory; "sqlite:<path>" or a postgres DSN
	RedisAddr      string // empty disables the shared title cache
	RedisPassword  string
	AMQPURL        string // empty disables room event publishing
	AMQPExchange   string
	JWTSecret      string // empty accepts unsigned viewer parameters
	DefaultVideo   string
	TitleCacheSize int
	ResolveTimeout time.Duration
	WriteTimeout   time.Duration
	RoomIdle       time.Duration // rooms without watchers close after this long
	ConvergeTick   time.Duration
	DriftTolerance float64
}

// Load reads the .env file from the current working directory and sets
// environment variables. If .env does not exist, Load returns an error but
// callers can ignore it and use system env or defaults. Pass one or more paths
// to load from specific files (e.g. ".env"); with no paths, ".env" is used.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// FromEnv builds a Config from the environment, applying defaults.
func FromEnv() Config {
	return Config{
		Port:           GetEnv("PORT", "8080"),
		LogLevel:       GetEnv("LOG_LEVEL", "info"),
		LogFormat:      GetEnv("LOG_FORMAT", "json"),
		DatabaseURL:    GetEnv("DATABASE_URL", ""),
		RedisAddr:      GetEnv("REDIS_ADDR", ""),
		RedisPassword:  GetEnv("REDIS_PASSWORD", ""),
		AMQPURL:        GetEnv("AMQP_URL", ""),
		AMQPExchange:   GetEnv("AMQP_EXCHANGE", "stroam.rooms"),
		JWTSecret:      GetEnv("JWT_SECRET", ""),
		DefaultVideo:   GetEnv("DEFAULT_VIDEO", playback.DefaultVideoRef),
		TitleCacheSize: GetEnvInt("TITLE_CACHE_SIZE", 1024),
		ResolveTimeout: GetEnvDuration("RESOLVE_TIMEOUT", 3*time.Second),
		WriteTimeout:   GetEnvDuration("STORE_WRITE_TIMEOUT", 5*time.Second),
		RoomIdle:       GetEnvDuration("ROOM_IDLE_TIMEOUT", 5*time.Minute),
		ConvergeTick:   GetEnvDuration("CONVERGE_TICK", time.Second),
		DriftTolerance: GetEnvFloat("DRIFT_TOLERANCE", 1.0),
	}
}

// GetEnv returns the value of the environment variable named by key, or fallback
// if the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// GetEnvInt returns the integer value of the environment variable named by key,
// or fallback if the variable is unset, empty, or not a valid integer.
func GetEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

func GetEnvFloat(key string, fallback float64) float64 {
	if s := os.Getenv(key); s != "" {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return fallback
}

func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	if s := os.Getenv(key); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			return d
		}
	}
	return fallback
}
