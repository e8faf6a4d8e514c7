package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	LiveKit  LiveKitConfig
	Storage  StorageConfig
	Room     RoomConfig
	Quiz     QuizConfig
	Worker   WorkerConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is (e.g. postgres://localhost:5432/linguahub?sslmode=disable)
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds platform auth token settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// LiveKitConfig holds LiveKit server API settings and access-token policy.
type LiveKitConfig struct {
	URL             string // server URL handed to clients, e.g. wss://livekit.example.com
	APIKey          string
	APISecret       string
	TokenTTLMinutes int // validity window for minted room credentials
}

// StorageConfig holds S3-compatible object storage settings. Endpoint may
// point at MinIO; empty means AWS.
type StorageConfig struct {
	Region             string
	Endpoint           string
	AccessKeyID        string
	SecretAccessKey    string
	RecordingsBucket   string
	PresignExpireHours int // playback URL validity
	ForcePathStyle     bool
}

// RoomConfig holds room lifecycle policy.
type RoomConfig struct {
	AllowEarlyJoin         bool // when false, joins are rejected before the early-join window opens
	EarlyJoinWindowMinutes int
	MinDurationMinutes     int
	MaxDurationMinutes     int
}

// QuizConfig holds quiz defaults.
type QuizConfig struct {
	DefaultPassingScore int
}

// WorkerConfig holds background worker settings.
type WorkerConfig struct {
	SummaryEndpoint string // external summary generator; empty disables forwarding
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "linguahub"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 24),
		},
		LiveKit: LiveKitConfig{
			URL:             getEnv("LIVEKIT_URL", "ws://localhost:7880"),
			APIKey:          getEnv("LIVEKIT_API_KEY", ""),
			APISecret:       getEnv("LIVEKIT_API_SECRET", ""),
			TokenTTLMinutes: getEnvInt("LIVEKIT_TOKEN_TTL_MINUTES", 120),
		},
		Storage: StorageConfig{
			Region:             getEnv("STORAGE_REGION", "us-east-1"),
			Endpoint:           getEnv("STORAGE_ENDPOINT", ""),
			AccessKeyID:        getEnv("STORAGE_ACCESS_KEY_ID", ""),
			SecretAccessKey:    getEnv("STORAGE_SECRET_ACCESS_KEY", ""),
			RecordingsBucket:   getEnv("STORAGE_RECORDINGS_BUCKET", "session-recordings"),
			PresignExpireHours: getEnvInt("STORAGE_PRESIGN_EXPIRE_HOURS", 24),
			ForcePathStyle:     getEnvBool("STORAGE_FORCE_PATH_STYLE", false),
		},
		Room: RoomConfig{
			AllowEarlyJoin:         getEnvBool("ROOM_ALLOW_EARLY_JOIN", true),
			EarlyJoinWindowMinutes: getEnvInt("ROOM_EARLY_JOIN_WINDOW_MINUTES", 15),
			MinDurationMinutes:     getEnvInt("ROOM_MIN_DURATION_MINUTES", 15),
			MaxDurationMinutes:     getEnvInt("ROOM_MAX_DURATION_MINUTES", 480),
		},
		Quiz: QuizConfig{
			DefaultPassingScore: getEnvInt("QUIZ_DEFAULT_PASSING_SCORE", 60),
		},
		Worker: WorkerConfig{
			SummaryEndpoint: getEnv("SUMMARY_ENDPOINT", ""),
		},
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
