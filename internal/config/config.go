// Package config загружает конфигурацию CoFish из переменных окружения.
// Используется envconfig для маппинга переменных на поля структуры,
// локальный .env подхватывается через godotenv (если файл есть).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Драйверы хранилища
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config содержит ВСЕ настройки приложения.
type Config struct {
	// --- Storage ---
	StoreDriver string `envconfig:"STORE_DRIVER" default:"postgres"`

	// --- Database ---
	// Дефолт "postgres" (имя сервиса в docker-compose), для локалки DB_HOST=localhost.
	DBHost     string `envconfig:"DB_HOST" default:"postgres"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"cofish"`
	DBPassword string `envconfig:"DB_PASSWORD"`
	DBName     string `envconfig:"DB_NAME" default:"cofish"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxConns int32  `envconfig:"DB_MAX_CONNS" default:"25"`
	DBMinConns int32  `envconfig:"DB_MIN_CONNS" default:"5"`

	// --- Application ---
	AppEnv      string `envconfig:"APP_ENV" default:"development"`
	AppLogLevel string `envconfig:"APP_LOG_LEVEL" default:"debug"`
	AppTimezone string `envconfig:"APP_TIMEZONE" default:"UTC"`

	// --- HTTP API ---
	HTTPAddr          string        `envconfig:"HTTP_ADDR" default:":8080"`
	HTTPReadTimeout   time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"15s"`
	HTTPWriteTimeout  time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"30s"`
	HTTPShutdownGrace time.Duration `envconfig:"HTTP_SHUTDOWN_GRACE" default:"10s"`

	// --- Identity ---
	// Секрет HMAC для проверки JWT провайдера идентичности
	AuthJWTSecret string `envconfig:"AUTH_JWT_SECRET"`
	AuthJWTIssuer string `envconfig:"AUTH_JWT_ISSUER"`

	// --- Verification ---
	AliveThreshold      float64 `envconfig:"ALIVE_THRESHOLD" default:"0.7"`
	ConfidenceThreshold float64 `envconfig:"CONFIDENCE_THRESHOLD" default:"0.6"`
	SameUserSimilarity  float64 `envconfig:"SAME_USER_SIMILARITY" default:"0.75"`
	CrossUserSimilarity float64 `envconfig:"CROSS_USER_SIMILARITY" default:"0.85"`
	UniquenessCrossUser bool    `envconfig:"UNIQUENESS_CROSS_USER" default:"false"`
	UniquenessRefLimit  int     `envconfig:"UNIQUENESS_REFERENCE_LIMIT" default:"500"`

	// --- Points ---
	CatchBasePoints  int64         `envconfig:"CATCH_BASE_POINTS" default:"100"`
	KarmaPoints      int64         `envconfig:"KARMA_POINTS" default:"50"`
	KarmaRadiusMiles float64       `envconfig:"KARMA_RADIUS_MILES" default:"2"`
	KarmaWindow      time.Duration `envconfig:"KARMA_WINDOW" default:"168h"`

	// --- TargetZones ---
	PreviewDailyQuota  int           `envconfig:"PREVIEW_DAILY_QUOTA" default:"3"`
	PreviewRadiusMiles float64       `envconfig:"PREVIEW_RADIUS_MILES" default:"7.5"`
	PreviewWindow      time.Duration `envconfig:"PREVIEW_WINDOW" default:"168h"`
	PurchaseWindow     time.Duration `envconfig:"PURCHASE_WINDOW" default:"720h"`

	// --- Ledger ---
	LedgerPageLimit   int           `envconfig:"LEDGER_PAGE_LIMIT" default:"100"`
	LedgerMaxAttempts int           `envconfig:"LEDGER_MAX_ATTEMPTS" default:"5"`
	LedgerBaseBackoff time.Duration `envconfig:"LEDGER_BASE_BACKOFF" default:"20ms"`

	// --- Oracle ---
	OracleURL     string        `envconfig:"ORACLE_URL"`
	OracleAPIKey  string        `envconfig:"ORACLE_API_KEY"`
	OracleTimeout time.Duration `envconfig:"ORACLE_TIMEOUT" default:"30s"`

	// --- Events ---
	// Пустой AMQP_URL отключает публикацию событий
	AMQPURL      string `envconfig:"AMQP_URL"`
	AMQPExchange string `envconfig:"AMQP_EXCHANGE" default:"cofish.events"`

	// --- Rate Limiting ---
	RateLimitRequests int           `envconfig:"RATE_LIMIT_REQUESTS" default:"60"`
	RateLimitWindow   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`

	// --- Admin ---
	AdminPasswordHash string `envconfig:"ADMIN_PASSWORD_HASH"`
}

// DatabaseDSN возвращает строку подключения к PostgreSQL в формате DSN.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
			return fmt.Errorf("некорректные DB_MIN_CONNS/DB_MAX_CONNS")
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("неизвестный STORE_DRIVER %q", c.StoreDriver)
	}
	if c.AliveThreshold < 0 || c.AliveThreshold > 1 || c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("ALIVE_THRESHOLD и CONFIDENCE_THRESHOLD должны быть в [0,1]")
	}
	if c.SameUserSimilarity <= 0 || c.SameUserSimilarity > 1 || c.CrossUserSimilarity <= 0 || c.CrossUserSimilarity > 1 {
		return fmt.Errorf("пороги сходства должны быть в (0,1]")
	}
	if c.CatchBasePoints <= 0 || c.KarmaPoints <= 0 {
		return fmt.Errorf("CATCH_BASE_POINTS и KARMA_POINTS должны быть > 0")
	}
	if c.KarmaRadiusMiles <= 0 || c.KarmaWindow <= 0 {
		return fmt.Errorf("KARMA_RADIUS_MILES и KARMA_WINDOW должны быть > 0")
	}
	if c.PreviewDailyQuota <= 0 {
		return fmt.Errorf("PREVIEW_DAILY_QUOTA должен быть > 0")
	}
	if c.LedgerPageLimit <= 0 || c.LedgerMaxAttempts <= 0 {
		return fmt.Errorf("LEDGER_PAGE_LIMIT и LEDGER_MAX_ATTEMPTS должны быть > 0")
	}
	if c.RateLimitRequests <= 0 || c.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS и RATE_LIMIT_WINDOW должны быть > 0")
	}
	if _, err := time.LoadLocation(c.AppTimezone); err != nil {
		return fmt.Errorf("APP_TIMEZONE %q: %w", c.AppTimezone, err)
	}
	return nil
}

// ValidateServe проверяет то, без чего нельзя поднимать HTTP API.
func (c *Config) ValidateServe() error {
	if strings.TrimSpace(c.AuthJWTSecret) == "" {
		return fmt.Errorf("AUTH_JWT_SECRET не задан")
	}
	if c.StoreDriver == StoreDriverPostgres && c.DBPassword == "" {
		return fmt.Errorf("DB_PASSWORD не задан")
	}
	return nil
}

// Load читает .env (если есть) и переменные окружения и заполняет Config.
func Load() (*Config, error) {
	// Отсутствие .env не ошибка: в контейнере всё приходит из окружения
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("не удалось загрузить конфигурацию: %w", err)
	}
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
