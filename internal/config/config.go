package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

type Config struct {
	Environment string
	LogLevel    string
	Storage     string
	DBDSN       string
	HTTPAddr    string

	JWTSecret string
	JWTTTL    time.Duration

	SSOMode      string
	PBLAPIURL    string
	PBLAPIKey    string
	PBLRateLimit float64
	RedisURL     string

	TimeZone           string
	Location           *time.Location
	PayloadAliasesFile string
	AssignmentPrune    bool
	FacultySyncCron    string
	CORSOrigins        []string

	// EnvFileLoaded сообщает, был ли прочитан .env файл
	EnvFileLoaded bool
}

// Load читает конфигурацию из окружения, предварительно подгрузив envFile (если он есть)
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	// Отсутствие файла не ошибка: переменные могут прийти из окружения
	loaded := godotenv.Load(envFile) == nil

	cfg := &Config{
		Environment:        getEnv("ENV", "development"),
		LogLevel:           os.Getenv("LOG_LEVEL"),
		Storage:            getEnv("STORAGE", StoragePostgres),
		DBDSN:              os.Getenv("DB_DSN"),
		HTTPAddr:           getEnv("HTTP_ADDR", ":8000"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		SSOMode:            getEnv("SSO_MODE", "mock"),
		PBLAPIURL:          os.Getenv("PBL_API_URL"),
		PBLAPIKey:          os.Getenv("PBL_API_KEY"),
		RedisURL:           os.Getenv("REDIS_URL"),
		TimeZone:           getEnv("TIME_ZONE", "UTC"),
		PayloadAliasesFile: os.Getenv("PAYLOAD_ALIASES_FILE"),
		CORSOrigins:        splitList(os.Getenv("CORS_ORIGINS")),
		EnvFileLoaded:      loaded,
	}

	// FACULTY_SYNC_CRON может быть задан пустым, чтобы отключить задачу
	if v, ok := os.LookupEnv("FACULTY_SYNC_CRON"); ok {
		cfg.FacultySyncCron = strings.TrimSpace(v)
	} else {
		cfg.FacultySyncCron = "0 3 * * *"
	}

	var err error
	if cfg.JWTTTL, err = getDuration("JWT_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.PBLRateLimit, err = getFloat("PBL_RATE_LIMIT", 5); err != nil {
		return nil, err
	}
	if cfg.AssignmentPrune, err = getBool("ASSIGNMENT_PRUNE", true); err != nil {
		return nil, err
	}
	if cfg.Location, err = time.LoadLocation(cfg.TimeZone); err != nil {
		return nil, fmt.Errorf("load TIME_ZONE %q: %w", cfg.TimeZone, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate проверяет обязательные поля
func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required but not set")
	}
	switch c.Storage {
	case StoragePostgres:
		if c.DBDSN == "" {
			return fmt.Errorf("DB_DSN is required but not set")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("unknown STORAGE %q", c.Storage)
	}
	switch c.SSOMode {
	case "mock":
	case "real":
		if c.PBLAPIURL == "" {
			return fmt.Errorf("PBL_API_URL is required when SSO_MODE=real")
		}
	default:
		return fmt.Errorf("unknown SSO_MODE %q", c.SSOMode)
	}
	if c.PBLRateLimit <= 0 {
		return fmt.Errorf("PBL_RATE_LIMIT must be positive")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func getFloat(key string, def float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return f, nil
}

func getBool(key string, def bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}
	return b, nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
