package config

import (
	"log"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	APIPort string        `env:"API_PORT" env-default:"8080"`
	JWTKey  string        `env:"JWT_SECRET" env-default:"defaultsecret"`
	JWTExp  time.Duration `env:"JWT_EXPIRATION" env-default:"72h"`

	LogLevel  string `env:"LOG_LEVEL" env-default:"info"`
	LogFormat string `env:"LOG_FORMAT" env-default:"text"`

	CORSOrigins []string `env:"CORS_ORIGINS" env-default:"http://localhost:3000" env-separator:","`

	DBHost     string `env:"DB_HOST" env-default:"localhost"`
	DBPort     string `env:"DB_PORT" env-default:"5432"`
	DBUser     string `env:"DB_USER" env-default:"user"`
	DBPassword string `env:"DB_PASSWORD" env-default:"password"`
	DBName     string `env:"DB_NAME" env-default:"tle_zone_judge"`
	DBSslMode  string `env:"DB_SSLMODE" env-default:"disable"`
	DBConnStr  string

	RedisAddr     string `env:"REDIS_ADDR" env-default:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD" env-default:""`
	RedisDB       int    `env:"REDIS_DB" env-default:"0"`

	QueuePrefix        string        `env:"QUEUE_PREFIX" env-default:"judge"`
	QueuePollTimeout   time.Duration `env:"QUEUE_POLL_TIMEOUT" env-default:"5s"`
	RunResultTTL       time.Duration `env:"RUN_RESULT_TTL" env-default:"10m"`
	SubmitWait         time.Duration `env:"SUBMIT_WAIT" env-default:"20s"`
	MaxInflightPerUser int           `env:"MAX_INFLIGHT_PER_USER" env-default:"2"`
	MaxInflightPremium int           `env:"MAX_INFLIGHT_PREMIUM" env-default:"5"`
	InflightSlotTTL    time.Duration `env:"INFLIGHT_SLOT_TTL" env-default:"10m"`
	MaxSourceBytes     int           `env:"MAX_SOURCE_BYTES" env-default:"65536"`

	WorkersNative int `env:"WORKERS_NATIVE" env-default:"2"`
	WorkersJVM    int `env:"WORKERS_JVM" env-default:"1"`
	WorkersScript int `env:"WORKERS_SCRIPT" env-default:"2"`

	SandboxBackend      string  `env:"SANDBOX_BACKEND" env-default:"container"`
	SandboxPoolSize     int     `env:"SANDBOX_POOL_SIZE" env-default:"4"`
	SandboxSafetyFactor float64 `env:"SANDBOX_SAFETY_FACTOR" env-default:"3"`
	// The process backend shares the host filesystem; it only starts with this set.
	SandboxAllowUnisolated bool   `env:"SANDBOX_ALLOW_UNISOLATED" env-default:"false"`
	SandboxOutputLimitKb   int    `env:"OUTPUT_LIMIT_KB" env-default:"65536"`
	LanguagesFile          string `env:"LANGUAGES_FILE" env-default:""`

	// A claimed job older than JobStaleAfter is given up as JudgeError.
	JobStaleAfter   time.Duration `env:"JOB_STALE_AFTER" env-default:"15m"`
	JobReapInterval time.Duration `env:"JOB_REAP_INTERVAL" env-default:"1m"`
	ObjectCacheMB   int           `env:"OBJECT_CACHE_MB" env-default:"256"`

	DefaultTimeLimitMs   int `env:"DEFAULT_TIME_LIMIT_MS" env-default:"2000"`
	DefaultMemoryLimitKb int `env:"DEFAULT_MEMORY_LIMIT_KB" env-default:"131072"`

	RatingMaxDelta int           `env:"RATING_MAX_DELTA" env-default:"150"`
	RatingLockTTL  time.Duration `env:"RATING_LOCK_TTL" env-default:"5m"`

	NotifyWebhookURL    string `env:"NOTIFY_WEBHOOK_URL" env-default:""`
	NotifyWebhookSecret string `env:"NOTIFY_WEBHOOK_SECRET" env-default:""`
	NATSURL             string `env:"NATS_URL" env-default:""`

	MinIOEndpoint  string `env:"MINIO_ENDPOINT" env-default:""`
	MinIOAccessKey string `env:"MINIO_ACCESS_KEY" env-default:""`
	MinIOSecretKey string `env:"MINIO_SECRET_KEY" env-default:""`
	MinIOBucket    string `env:"MINIO_BUCKET" env-default:"testcases"`
	MinIOUseSSL    bool   `env:"MINIO_USE_SSL" env-default:"false"`
}

var AppConfig *Config

func Load() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	cfg, err := Read()
	if err != nil {
		log.Fatalf("Error reading configuration: %v", err)
	}
	AppConfig = cfg
}

// Read builds a Config from the process environment without touching AppConfig.
func Read() (*Config, error) {
	cfg := &Config{}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, err
	}

	cfg.DBConnStr = "host=" + cfg.DBHost +
		" port=" + cfg.DBPort +
		" user=" + cfg.DBUser +
		" password=" + cfg.DBPassword +
		" dbname=" + cfg.DBName +
		" sslmode=" + cfg.DBSslMode
	return cfg, nil
}
