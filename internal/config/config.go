package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	BackendSiYuan = "siyuan"
	BackendLocal  = "local"

	AssetBackendNotes = "notes"
	AssetBackendS3    = "s3"
)

// Config stores runtime configuration loaded from environment variables.
type Config struct {
	Port        string
	Environment string
	Database    string
	CORSOrigins string

	// Notes backend: the SiYuan kernel API or the built-in local store.
	NotesBackend string
	SiYuanURL    string
	SiYuanToken  string
	AssetDir     string

	// Asset uploads go to the notes backend unless S3 is selected.
	AssetBackend string
	AwsRegion    string
	AwsAccessKey string
	AwsSecretKey string
	S3Bucket     string
	S3Endpoint   string

	ProvidersFile     string
	OCRTimeoutSeconds int
}

// Load reads configuration from the environment, providing sensible defaults.
func Load() Config {
	// Load .env file if it exists (useful for development)
	_ = godotenv.Load()
	cfg := Config{
		Port:              getEnv("PORT", "6807"),
		Environment:       getEnv("ENVIRONMENT", "dev"),
		Database:          getEnv("DATABASE_PATH", "./data/siyuan-ocr.db"),
		CORSOrigins:       getEnv("CORS_ORIGINS", "http://127.0.0.1:6806,http://localhost:6806"),
		NotesBackend:      strings.ToLower(getEnv("NOTES_BACKEND", BackendSiYuan)),
		SiYuanURL:         getEnv("SIYUAN_URL", "http://127.0.0.1:6806"),
		SiYuanToken:       os.Getenv("SIYUAN_TOKEN"),
		AssetDir:          getEnv("ASSET_DIR", "./data/notes"),
		AssetBackend:      strings.ToLower(getEnv("ASSET_BACKEND", AssetBackendNotes)),
		AwsRegion:         getEnv("AWS_REGION", "us-east-1"),
		AwsAccessKey:      os.Getenv("AWS_ACCESS_KEY"),
		AwsSecretKey:      os.Getenv("AWS_SECRET_KEY"),
		S3Bucket:          os.Getenv("S3_BUCKET"),
		S3Endpoint:        os.Getenv("S3_ENDPOINT"),
		ProvidersFile:     os.Getenv("PROVIDERS_FILE"),
		OCRTimeoutSeconds: getEnvInt("OCR_TIMEOUT_SECONDS", 300),
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Database), 0o755); err != nil {
		log.Fatalf("failed to ensure database dir %s: %v", cfg.Database, err)
	}
	if cfg.NotesBackend == BackendLocal {
		if err := os.MkdirAll(cfg.AssetDir, 0o755); err != nil {
			log.Fatalf("failed to ensure asset dir %s: %v", cfg.AssetDir, err)
		}
	}

	return cfg
}

// Origins splits the comma separated CORS origin list.
func (c Config) Origins() []string {
	var out []string
	for _, origin := range strings.Split(c.CORSOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			out = append(out, origin)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		log.Printf("WARN: %s=%q not a positive int, using default %d", key, raw, fallback)
		return fallback
	}
	return n
}
