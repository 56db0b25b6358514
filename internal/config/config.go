package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env  string
	Port int

	DBURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// queue + worker knobs
	QueueConcurrency int
	QueueMaxAttempts int
	DrainTimeout     time.Duration
	WorkerHealthAddr string

	// action wrapper policy
	RetryMaxAttempts       int
	RetryBaseDelay         time.Duration
	RetryMaxDelay          time.Duration
	RetryBackoffMultiplier float64
	RetryJitter            bool

	BreakerFailureThreshold int
	BreakerResetTimeout     time.Duration

	MetricsRetention int

	// auth
	JWTSecret     string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	AdminEmail    string
	AdminPassword string
	AdminName     string
	AdminRole     string

	OTLPEndpoint string
}

func Load() Config {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	return Config{
		Env:   getEnv("APP_ENV", "dev"),
		Port:  getEnvInt("PORT", 8080),
		DBURL: buildDBURL(),

		RedisAddr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		QueueConcurrency: getEnvInt("QUEUE_CONCURRENCY", 2),
		QueueMaxAttempts: getEnvInt("QUEUE_MAX_ATTEMPTS", 5),
		DrainTimeout:     getEnvDuration("WORKER_DRAIN_TIMEOUT", 10*time.Second),
		WorkerHealthAddr: getEnv("WORKER_HEALTH_ADDR", ":8081"),

		RetryMaxAttempts:       getEnvInt("RETRY_MAX_ATTEMPTS", 3),
		RetryBaseDelay:         getEnvDuration("RETRY_BASE_DELAY", 1*time.Second),
		RetryMaxDelay:          getEnvDuration("RETRY_MAX_DELAY", 30*time.Second),
		RetryBackoffMultiplier: getEnvFloat("RETRY_BACKOFF_MULTIPLIER", 2),
		RetryJitter:            getEnvBool("RETRY_JITTER", true),

		BreakerFailureThreshold: getEnvInt("BREAKER_FAILURE_THRESHOLD", 5),
		BreakerResetTimeout:     getEnvDuration("BREAKER_RESET_TIMEOUT", 60*time.Second),

		MetricsRetention: getEnvInt("METRICS_RETENTION", 100),

		JWTSecret:     getEnv("JWT_SECRET", "dev-secret-change-me"),
		AccessTTL:     getEnvDuration("ACCESS_TTL", 15*time.Minute),
		RefreshTTL:    getEnvDuration("REFRESH_TTL", 7*24*time.Hour),
		AdminEmail:    getEnv("ADMIN_EMAIL", ""),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),
		AdminName:     getEnv("ADMIN_NAME", "Peas Admin"),
		AdminRole:     getEnv("ADMIN_ROLE", "admin"),

		OTLPEndpoint: getEnv("OTLP_ENDPOINT", "localhost:4317"),
	}
}

func buildDBURL() string {
	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "peas")
	pass := getEnv("DB_PASSWORD", "peas")
	name := getEnv("DB_NAME", "peas")
	ssl := getEnv("DB_SSLMODE", "disable")

	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=" + ssl
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		num, err := strconv.Atoi(v)

		if err != nil {
			fmt.Println(err)
			return fallback
		}

		return num
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		num, err := strconv.ParseFloat(v, 64)

		if err != nil {
			fmt.Println(err)
			return fallback
		}

		return num
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)

		if err != nil {
			fmt.Println(err)
			return fallback
		}

		return b
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)

		if err != nil {
			fmt.Println(err)
			return fallback
		}

		return d
	}
	return fallback
}
