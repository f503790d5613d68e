package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Security SecurityConfig
	Brokers  BrokersConfig
	Sync     SyncConfig
	Kafka    KafkaConfig
	Logging  LoggingConfig
}

// ServerConfig - настройки HTTP сервера
type ServerConfig struct {
	Port           int
	Host           string
	UseHTTPS       bool
	CertFile       string
	KeyFile        string
	AllowedOrigins []string // CORS, запросы идут с cookie

	// Basic auth для /metrics, пустые значения - без защиты
	MetricsUsername string
	MetricsPassword string
}

// DatabaseConfig - настройки подключения к БД
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// SecurityConfig - настройки безопасности
type SecurityConfig struct {
	JWTSecret      string
	EncryptionKey  string
	SessionTimeout int // секунды
}

// BrokersConfig - настройки интеграций с брокерами
type BrokersConfig struct {
	Upstox  UpstoxConfig
	Alpaca  AlpacaConfig
	Zerodha ZerodhaConfig

	HTTPTimeout time.Duration // таймаут исходящих запросов к API брокеров
	RateLimit   float64       // запросов в секунду на пару (брокер, пользователь)
	RateBurst   float64
}

// UpstoxConfig - OAuth приложение Upstox
type UpstoxConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	AuthBaseURL  string
	APIBaseURL   string
}

type AlpacaConfig struct {
	BaseURL string
}

type ZerodhaConfig struct {
	APIKey string
}

// SyncConfig - периодическая синхронизация сделок
type SyncConfig struct {
	Enabled  bool
	Schedule string // cron с секундами, например "0 */30 * * * *"
}

// KafkaConfig - публикация событий импорта (пустой список брокеров = выключено)
type KafkaConfig struct {
	Brokers  []string
	ClientID string
	Topic    string
}

// Enabled проверяет, настроена ли публикация событий
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level  string
	Format string
	Output string
}

// Load загружает конфигурацию из переменных окружения (и .env, если он есть)
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnvAsInt("SERVER_PORT", 8080),
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			UseHTTPS:       getEnvAsBool("USE_HTTPS", false),
			CertFile:       getEnv("CERT_FILE", ""),
			KeyFile:        getEnv("KEY_FILE", ""),
			AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),

			MetricsUsername: getEnv("METRICS_USERNAME", ""),
			MetricsPassword: getEnv("METRICS_PASSWORD", ""),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			Name:     getEnv("DB_NAME", "tradejournal"),
			User:     getEnv("DB_USER", "user"),
			Password: getEnv("DB_PASSWORD", "password"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Security: SecurityConfig{
			JWTSecret:      getEnv("JWT_SECRET", "change-me-in-production"),
			EncryptionKey:  getEnv("ENCRYPTION_KEY", ""),
			SessionTimeout: getEnvAsInt("SESSION_TIMEOUT", 86400),
		},
		Brokers: BrokersConfig{
			Upstox: UpstoxConfig{
				ClientID:     getEnv("UPSTOX_CLIENT_ID", ""),
				ClientSecret: getEnv("UPSTOX_CLIENT_SECRET", ""),
				RedirectURI:  getEnv("UPSTOX_REDIRECT_URI", "http://localhost:5173/settings?broker=upstox"),
				AuthBaseURL:  getEnv("UPSTOX_AUTH_URL", "https://api.upstox.com/v2/login/authorization/dialog"),
				APIBaseURL:   getEnv("UPSTOX_API_URL", "https://api.upstox.com"),
			},
			Alpaca: AlpacaConfig{
				BaseURL: getEnv("ALPACA_BASE_URL", "https://paper-api.alpaca.markets"),
			},
			Zerodha: ZerodhaConfig{
				APIKey: getEnv("ZERODHA_API_KEY", ""),
			},
			HTTPTimeout: getEnvAsDuration("BROKER_HTTP_TIMEOUT", 15*time.Second),
			RateLimit:   getEnvAsFloat("BROKER_RATE_LIMIT", 10),
			RateBurst:   getEnvAsFloat("BROKER_RATE_BURST", 20),
		},
		Sync: SyncConfig{
			Enabled:  getEnvAsBool("SYNC_ENABLED", false),
			Schedule: getEnv("SYNC_SCHEDULE", "0 */30 * * * *"),
		},
		Kafka: KafkaConfig{
			Brokers:  getEnvAsList("KAFKA_BROKERS", nil),
			ClientID: getEnv("KAFKA_CLIENT_ID", "tradejournal"),
			Topic:    getEnv("KAFKA_TOPIC", "trades.imported"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			Output: getEnv("LOG_OUTPUT", "stdout"),
		},
	}

	// Валидация критичных параметров безопасности
	if err := cfg.validateSecurity(); err != nil {
		return nil, err
	}

	// Валидация числовых диапазонов
	if err := cfg.validateRanges(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateSecurity проверяет параметры безопасности
func (c *Config) validateSecurity() error {
	// ENCRYPTION_KEY обязателен для шифрования учетных данных брокеров
	if c.Security.EncryptionKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required for encrypting broker credentials")
	}

	if len(c.Security.EncryptionKey) != 32 {
		return fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes for AES-256")
	}

	if c.Security.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required for authentication")
	}

	if c.Security.JWTSecret == "change-me-in-production" {
		return fmt.Errorf("JWT_SECRET must be changed from default value in production")
	}

	if len(c.Security.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters for security")
	}

	return nil
}

// validateRanges проверяет числовые диапазоны параметров
func (c *Config) validateRanges() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("DB_PORT must be between 1 and 65535, got %d", c.Database.Port)
	}

	if c.Security.SessionTimeout < 60 {
		return fmt.Errorf("SESSION_TIMEOUT must be at least 60 seconds, got %d", c.Security.SessionTimeout)
	}

	if c.Brokers.HTTPTimeout <= 0 {
		return fmt.Errorf("BROKER_HTTP_TIMEOUT must be positive, got %v", c.Brokers.HTTPTimeout)
	}

	if c.Brokers.RateLimit <= 0 {
		return fmt.Errorf("BROKER_RATE_LIMIT must be positive, got %v", c.Brokers.RateLimit)
	}

	if c.Brokers.RateBurst < c.Brokers.RateLimit {
		return fmt.Errorf("BROKER_RATE_BURST must be >= BROKER_RATE_LIMIT, got %v", c.Brokers.RateBurst)
	}

	if c.Sync.Enabled && c.Sync.Schedule == "" {
		return fmt.Errorf("SYNC_SCHEDULE is required when SYNC_ENABLED=true")
	}

	return nil
}

// SessionTTL возвращает время жизни сессии
func (s SecurityConfig) SessionTTL() time.Duration {
	return time.Duration(s.SessionTimeout) * time.Second
}

// DSN возвращает строку подключения к базе данных
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// DSNWithoutPassword возвращает строку подключения без пароля (для логирования)
func (d DatabaseConfig) DSNWithoutPassword() string {
	return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Name, d.SSLMode)
}

// Вспомогательные функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList читает список через запятую, пустые элементы отбрасываются
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	return result
}
