package config

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

type Config struct {
	ServerAddr string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	RedisAddr  string

	// Token configuration
	AccessTokenSecret  string
	AccessTokenTTL     time.Duration
	RefreshTokenSecret string
	RefreshTokenTTL    time.Duration
	BcryptCost         int

	// S3/MinIO configuration
	S3Endpoint     string
	S3Region       string
	S3AccessKey    string
	S3SecretKey    string
	S3Bucket       string
	S3UsePathStyle bool
	S3UseSSL       bool

	// MediaBaseURL is the public URL prefix under which uploaded
	// objects are served back to clients.
	MediaBaseURL string

	// CORSOrigins lists the origins allowed to call the API with
	// credentials. "*" echoes back any request origin.
	CORSOrigins []string
}

func Load() *Config {
	bcryptCost, _ := strconv.Atoi(getEnvOrDefault("BCRYPT_COST", "12"))
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = 12
	}

	s3UsePathStyle, _ := strconv.ParseBool(getEnvOrDefault("S3_USE_PATH_STYLE", "true"))
	s3UseSSL, _ := strconv.ParseBool(getEnvOrDefault("S3_USE_SSL", "false"))

	return &Config{
		ServerAddr: getEnvOrDefault("SERVER_ADDR", ":8080"),
		DBHost:     getEnvOrDefault("DB_HOST", "localhost"),
		DBPort:     getEnvOrDefault("DB_PORT", "5432"),
		DBUser:     getEnvOrDefault("DB_USER", "clipshare"),
		DBPassword: getEnvOrDefault("DB_PASSWORD", "clipshare_dev_password"),
		DBName:     getEnvOrDefault("DB_NAME", "clipshare"),
		RedisAddr:  getEnvOrDefault("REDIS_ADDR", "localhost:6379"),

		AccessTokenSecret:  getEnvOrDefault("ACCESS_TOKEN_SECRET", generateDefaultSecret()),
		AccessTokenTTL:     getEnvDuration("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenSecret: getEnvOrDefault("REFRESH_TOKEN_SECRET", generateDefaultSecret()),
		RefreshTokenTTL:    getEnvDuration("REFRESH_TOKEN_TTL", 10*24*time.Hour),
		BcryptCost:         bcryptCost,

		S3Endpoint:     getEnvOrDefault("S3_ENDPOINT", "http://localhost:9000"),
		S3Region:       getEnvOrDefault("S3_REGION", "us-east-1"),
		S3AccessKey:    getEnvOrDefault("S3_ACCESS_KEY", "minioadmin"),
		S3SecretKey:    getEnvOrDefault("S3_SECRET_KEY", "minioadmin"),
		S3Bucket:       getEnvOrDefault("S3_BUCKET", "user-media"),
		S3UsePathStyle: s3UsePathStyle,
		S3UseSSL:       s3UseSSL,

		MediaBaseURL: getEnvOrDefault("MEDIA_BASE_URL", "/api/v1/media"),
		CORSOrigins:  splitOrigins(getEnvOrDefault("CORS_ORIGIN", "*")),
	}
}

func splitOrigins(value string) []string {
	var origins []string
	for _, o := range strings.Split(value, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}

func generateDefaultSecret() string {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "dev-secret-change-in-production"
	}
	return hex.EncodeToString(bytes)
}
