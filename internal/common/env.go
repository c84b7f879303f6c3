package common

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is read from the environment, optionally seeded from a .env file.
type Config struct {
	AppEnv   string // development / production
	HTTPAddr string // listen address of the API server
	LogPath  string // empty logs to stdout
	LogLevel string

	StoreBackend string // memory / mysql / sqlite / redis
	DBHost       string
	DBPort       int
	DBUser       string
	DBPassword   string
	DBName       string
	SQLitePath   string
	RedisAddr    string // host:port, also used by the task queue

	DispatchMode     string // local / queue
	QueueConcurrency int

	StagePolicyPath string
	StaleAfter      time.Duration // janitor fails processing pipelines idle this long
	JanitorSpec     string        // cron expression

	JWTSecret string // empty disables identity lookup

	PromptProvider string // openai / gemini
	ImageProvider  string // openai / ark
	OpenAIKey      string
	OpenAIBaseURL  string
	OpenAIModel    string
	OpenAIImage    string
	GeminiKey      string
	GeminiModel    string
	ArkKey         string
	ArkBaseURL     string
	ArkImageModel  string
	MeshyKey       string
	MeshyBaseURL   string

	PostProcessImage string // docker image run by the post-processing stage
	DockerHost       string

	StorageBackend string // passthrough / minio
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	AssetBaseURL   string

	AMQPURL      string // empty disables RabbitMQ events
	AMQPExchange string

	OtelExporter string // none / stdout / otlp
	OtelEndpoint string
}

// InitConf loads .env when present and reads every setting from the
// environment.
func InitConf() Config {
	_ = godotenv.Load()

	return Config{
		AppEnv:   getEnv("APP_ENV", "development"),
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
		LogPath:  getEnv("LOG_PATH", ""),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		StoreBackend: getEnv("STORE_BACKEND", "memory"),
		DBHost:       getEnv("DB_HOST", "localhost"),
		DBPort:       getEnvInt("DB_PORT", 3306),
		DBUser:       getEnv("DB_USER", ""),
		DBPassword:   getEnv("DB_PASSWORD", ""),
		DBName:       getEnv("DB_NAME", "forge"),
		SQLitePath:   getEnv("SQLITE_PATH", "./forge.db"),
		RedisAddr:    getEnv("REDIS_ADDR", "localhost:6379"),

		DispatchMode:     getEnv("DISPATCH_MODE", "local"),
		QueueConcurrency: getEnvInt("QUEUE_CONCURRENCY", 10),

		StagePolicyPath: getEnv("STAGE_POLICY_PATH", ""),
		StaleAfter:      getEnvDuration("STALE_AFTER", 45*time.Minute),
		JanitorSpec:     getEnv("JANITOR_SPEC", "@every 5m"),

		JWTSecret: getEnv("JWT_SECRET", ""),

		PromptProvider: getEnv("PROMPT_PROVIDER", "openai"),
		ImageProvider:  getEnv("IMAGE_PROVIDER", "openai"),
		OpenAIKey:      getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:  getEnv("OPENAI_BASE_URL", ""),
		OpenAIModel:    getEnv("OPENAI_MODEL", ""),
		OpenAIImage:    getEnv("OPENAI_IMAGE_MODEL", ""),
		GeminiKey:      getEnv("GEMINI_API_KEY", ""),
		GeminiModel:    getEnv("GEMINI_MODEL", ""),
		ArkKey:         getEnv("ARK_API_KEY", ""),
		ArkBaseURL:     getEnv("ARK_BASE_URL", ""),
		ArkImageModel:  getEnv("ARK_IMAGE_MODEL", ""),
		MeshyKey:       getEnv("MESHY_API_KEY", ""),
		MeshyBaseURL:   getEnv("MESHY_BASE_URL", ""),

		PostProcessImage: getEnv("POST_PROCESS_IMAGE", "forge/mesh-optimizer:latest"),
		DockerHost:       getEnv("DOCKER_HOST", ""),

		StorageBackend: getEnv("STORAGE_BACKEND", "passthrough"),
		MinioEndpoint:  getEnv("MINIO_ENDPOINT", ""),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getEnv("MINIO_BUCKET", "forge-assets"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),
		AssetBaseURL:   getEnv("ASSET_BASE_URL", ""),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "forge.events"),

		OtelExporter: getEnv("OTEL_EXPORTER", "none"),
		OtelEndpoint: getEnv("OTEL_ENDPOINT", "http://localhost:4318"),
	}
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}

func getEnvBool(key string, defaultValue bool) bool {
	v, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	v, err := time.ParseDuration(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}
