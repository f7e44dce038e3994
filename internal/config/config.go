package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	MongoDB   MongoDBConfig
	Redis     RedisConfig
	Storage   StorageConfig
	Backend   BackendConfig
	Upload    UploadConfig
	RateLimit RateLimitConfig
	Keycloak  KeycloakConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type MongoDBConfig struct {
	URI        string
	Database   string
	Collection string
	Timeout    time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	// BatchTTL bounds how long finished batch snapshots stay readable.
	BatchTTL time.Duration
}

// StorageConfig selects and configures the object store behind the storage gateway.
type StorageConfig struct {
	Driver string // "minio" | "local"

	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOUseSSL    bool
	MinIORegion    string
	Bucket         string

	LocalRoot     string
	PublicURL     string
	SigningSecret string

	SignedURLTTL time.Duration
}

// BackendConfig points at the external indexing and answer service.
type BackendConfig struct {
	IndexerURL string
	AnswerURL  string
	Timeout    time.Duration
}

// MaxBatchLimit is the hard cap on files per batch submission.
const MaxBatchLimit = 10

type UploadConfig struct {
	MaxBatch   int
	MaxBytes   int64
	SniffBytes bool
}

type RateLimitConfig struct {
	Enabled       bool
	UseRedis      bool
	RPS           float64
	Burst         int
	WindowSeconds int
}

type KeycloakConfig struct {
	URL      string
	Realm    string
	ClientID string
}

// LoadConfig loads configuration from environment variables and an optional .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", "5001")
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_ENVIRONMENT", "development")
	viper.SetDefault("MONGODB_DATABASE", "contextforge")
	viper.SetDefault("MONGODB_COLLECTION", "documents")
	viper.SetDefault("MONGODB_TIMEOUT", 10)
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("REDIS_BATCH_TTL", 3600)
	viper.SetDefault("STORAGE_DRIVER", "local")
	viper.SetDefault("STORAGE_BUCKET", "contextforge")
	viper.SetDefault("MINIO_REGION", "us-east-1")
	viper.SetDefault("STORAGE_LOCAL_ROOT", "./data/blobs")
	viper.SetDefault("STORAGE_SIGNED_URL_TTL", 600)
	viper.SetDefault("BACKEND_URL", "http://localhost:8000")
	viper.SetDefault("BACKEND_TIMEOUT", 30)
	viper.SetDefault("UPLOAD_MAX_BATCH", MaxBatchLimit)
	viper.SetDefault("UPLOAD_MAX_BYTES", 50<<20)
	viper.SetDefault("UPLOAD_SNIFF", true)
	viper.SetDefault("RATE_LIMIT_ENABLED", false)
	viper.SetDefault("RATE_LIMIT_RPS", 5)
	viper.SetDefault("RATE_LIMIT_BURST", 10)
	viper.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 1)

	backendURL := strings.TrimRight(viper.GetString("BACKEND_URL"), "/")

	cfg := &Config{
		Server: ServerConfig{
			Port:         viper.GetString("SERVER_PORT"),
			Host:         viper.GetString("SERVER_HOST"),
			Environment:  viper.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
		MongoDB: MongoDBConfig{
			URI:        viper.GetString("MONGODB_URI"),
			Database:   viper.GetString("MONGODB_DATABASE"),
			Collection: viper.GetString("MONGODB_COLLECTION"),
			Timeout:    time.Duration(viper.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
			BatchTTL: time.Duration(viper.GetInt("REDIS_BATCH_TTL")) * time.Second,
		},
		Storage: StorageConfig{
			Driver:         strings.ToLower(viper.GetString("STORAGE_DRIVER")),
			MinIOEndpoint:  viper.GetString("MINIO_ENDPOINT"),
			MinIOAccessKey: viper.GetString("MINIO_ACCESS_KEY"),
			MinIOSecretKey: os.Getenv("MINIO_SECRET_KEY"),
			MinIOUseSSL:    viper.GetBool("MINIO_USE_SSL"),
			MinIORegion:    viper.GetString("MINIO_REGION"),
			Bucket:         viper.GetString("STORAGE_BUCKET"),
			LocalRoot:      viper.GetString("STORAGE_LOCAL_ROOT"),
			PublicURL:      strings.TrimRight(viper.GetString("STORAGE_PUBLIC_URL"), "/"),
			SigningSecret:  os.Getenv("STORAGE_SIGNING_SECRET"),
			SignedURLTTL:   time.Duration(viper.GetInt("STORAGE_SIGNED_URL_TTL")) * time.Second,
		},
		Backend: BackendConfig{
			IndexerURL: backendURL + "/ingest",
			AnswerURL:  backendURL + "/query",
			Timeout:    time.Duration(viper.GetInt("BACKEND_TIMEOUT")) * time.Second,
		},
		Upload: UploadConfig{
			MaxBatch:   viper.GetInt("UPLOAD_MAX_BATCH"),
			MaxBytes:   viper.GetInt64("UPLOAD_MAX_BYTES"),
			SniffBytes: viper.GetBool("UPLOAD_SNIFF"),
		},
		RateLimit: RateLimitConfig{
			Enabled:       viper.GetBool("RATE_LIMIT_ENABLED"),
			UseRedis:      viper.GetBool("RATE_LIMIT_USE_REDIS"),
			RPS:           viper.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         viper.GetInt("RATE_LIMIT_BURST"),
			WindowSeconds: viper.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
		Keycloak: KeycloakConfig{
			URL:      viper.GetString("KEYCLOAK_URL"),
			Realm:    viper.GetString("KEYCLOAK_REALM"),
			ClientID: viper.GetString("KEYCLOAK_CLIENT_ID"),
		},
	}

	if cfg.Server.Port == "" {
		return nil, fmt.Errorf("SERVER_PORT must not be empty")
	}
	switch cfg.Storage.Driver {
	case "minio":
		if cfg.Storage.MinIOEndpoint == "" {
			return nil, fmt.Errorf("MINIO_ENDPOINT is required when STORAGE_DRIVER=minio")
		}
	case "local":
		if cfg.Storage.PublicURL == "" {
			cfg.Storage.PublicURL = fmt.Sprintf("http://localhost:%s", cfg.Server.Port)
		}
		if cfg.Storage.SigningSecret == "" {
			log.Println("WARNING: STORAGE_SIGNING_SECRET is not set; signed URLs use an insecure development key")
			cfg.Storage.SigningSecret = "contextforge-dev-signing-key"
		}
	default:
		return nil, fmt.Errorf("unsupported STORAGE_DRIVER %q (want minio or local)", cfg.Storage.Driver)
	}
	if cfg.Storage.SignedURLTTL <= 0 {
		return nil, fmt.Errorf("STORAGE_SIGNED_URL_TTL must be positive")
	}
	if cfg.Upload.MaxBatch < 1 || cfg.Upload.MaxBatch > MaxBatchLimit {
		return nil, fmt.Errorf("UPLOAD_MAX_BATCH must be between 1 and %d, got %d", MaxBatchLimit, cfg.Upload.MaxBatch)
	}

	return cfg, nil
}
