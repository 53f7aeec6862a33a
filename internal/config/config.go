package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"
	"time"

	"blog-web/internal/authcookie"
	"blog-web/shared/utils"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var validate = validator.New()

// Config - настройки edge-сервиса.
type Config struct {
	NodeEnv     string `envconfig:"NODE_ENV" default:"development"`
	VercelEnv   string `envconfig:"VERCEL_ENV"`
	VercelURL   string `envconfig:"NEXT_PUBLIC_VERCEL_URL"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogEncoding string `envconfig:"LOG_ENCODING" default:"json"`
	ServerPort  string `envconfig:"SERVER_PORT" default:"3000" validate:"required,numeric"`

	APIBaseURL      string        `envconfig:"NEXT_PUBLIC_API_BASE_URL" required:"true" validate:"required,url"`
	PageRendererURL string        `envconfig:"PAGE_RENDERER_URL" validate:"omitempty,url"`
	ClientTimeout   time.Duration `envconfig:"CLIENT_TIMEOUT" default:"30s"`

	// Куки
	CookieDomain string `envconfig:"COOKIE_DOMAIN"`
	CookieSecure bool   `envconfig:"COOKIE_SECURE" default:"true"`

	// Классы путей для Route Guard. Шаблоны с "*" на один сегмент.
	PublicPaths        []string `envconfig:"PUBLIC_PATHS" default:"/,/login,/signup,/posts,/posts/*"`
	AuthRequiredPaths  []string `envconfig:"AUTH_REQUIRED_PATHS" default:"/dashboard,/settings,/posts/new,/posts/*/edit"`
	AdminRequiredPaths []string `envconfig:"ADMIN_REQUIRED_PATHS" default:"/admin,/admin/*,/admin/*/*"`
	AuthPages          []string `envconfig:"AUTH_PAGES" default:"/login,/signup"`

	// Распознавание 401 "access token истёк"
	ExpiredTokenCodes  []string `envconfig:"EXPIRED_TOKEN_CODES" default:"J004"`
	LegacyMessageMatch bool     `envconfig:"LEGACY_EXPIRED_MESSAGE_MATCH" default:"true"`

	// Redis для кэша профилей. Пусто - кэш в памяти.
	RedisAddr       string        `envconfig:"REDIS_ADDR"`
	RedisDB         int           `envconfig:"REDIS_DB" default:"0"`
	ProfileCacheTTL time.Duration `envconfig:"PROFILE_CACHE_TTL" default:"5m"`
	RedisPassword   string

	// RabbitMQ для событий сессии. Пусто - события не публикуются.
	RabbitMQURL        string `envconfig:"RABBITMQ_URL"`
	SessionEventsQueue string `envconfig:"SESSION_EVENTS_QUEUE" default:"session_events"`

	CORSAllowedOrigins string `envconfig:"CORS_ALLOWED_ORIGINS"`

	// Лимит session-check на IP за окно
	SessionCheckRateLimit  uint          `envconfig:"SESSION_CHECK_RATE_LIMIT" default:"30"`
	SessionCheckRateWindow time.Duration `envconfig:"SESSION_CHECK_RATE_WINDOW" default:"1m"`

	// Секрет БЕЗ envconfig тега: JWT_SECRET_KEY или Docker secret jwt_secret
	JWTSecret string
}

// IsProduction - продакшн по VERCEL_ENV/NODE_ENV.
func (c *Config) IsProduction() bool {
	return authcookie.IsProduction(c.NodeEnv, c.VercelEnv)
}

// CookieAttributes - атрибуты auth-кук для этого окружения.
func (c *Config) CookieAttributes() authcookie.Attributes {
	return authcookie.NewAttributes(c.IsProduction(), c.CookieDomain, c.CookieSecure)
}

// SiteURL - публичный адрес сайта.
func (c *Config) SiteURL() string {
	return siteURL(c.VercelURL, c.ServerPort)
}

// GetAllowedOrigins - CORS_ALLOWED_ORIGINS списком; по умолчанию адрес сайта.
func (c *Config) GetAllowedOrigins() []string {
	if c.CORSAllowedOrigins == "" {
		return []string{c.SiteURL()}
	}
	return splitList(c.CORSAllowedOrigins)
}

func siteURL(vercelURL, port string) string {
	if vercelURL == "" {
		return "http://localhost:" + port
	}
	if strings.HasPrefix(vercelURL, "http://") || strings.HasPrefix(vercelURL, "https://") {
		return strings.TrimRight(vercelURL, "/")
	}
	return "https://" + strings.TrimRight(vercelURL, "/")
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// loadEnvFile подгружает .env, если он есть. Отсутствие файла - не ошибка.
func loadEnvFile(envFilePath string) {
	if envFilePath == "" {
		return
	}
	if _, err := os.Stat(envFilePath); err == nil {
		if err := godotenv.Load(envFilePath); err != nil {
			log.Printf("Warning: Could not load %s file: %v", envFilePath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Printf("Warning: Error checking %s file: %v", envFilePath, err)
	}
}

// LoadConfig загружает конфигурацию edge-сервиса из окружения и секретов.
func LoadConfig(envFilePath string) (*Config, error) {
	loadEnvFile(envFilePath)

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env vars: %w", err)
	}

	secret, err := utils.SecretFromEnvOrFile("JWT_SECRET_KEY", "jwt_secret")
	if err != nil {
		return nil, err
	}
	cfg.JWTSecret = secret

	// Необязательный секрет
	if redisPass, err := utils.SecretFromEnvOrFile("REDIS_PASSWORD", "redis_password"); err == nil {
		cfg.RedisPassword = redisPass
	}

	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// ClientConfig - настройки blogctl.
type ClientConfig struct {
	NodeEnv     string `envconfig:"NODE_ENV" default:"development"`
	VercelEnv   string `envconfig:"VERCEL_ENV"`
	VercelURL   string `envconfig:"NEXT_PUBLIC_VERCEL_URL"`
	LogLevel    string `envconfig:"BLOGCTL_LOG_LEVEL" default:"warn"`
	LogEncoding string `envconfig:"BLOGCTL_LOG_ENCODING" default:"console"`

	// SiteURL - edge-сервис (session-check). Пусто - из NEXT_PUBLIC_VERCEL_URL.
	SiteURL    string `envconfig:"BLOGCTL_SITE_URL" validate:"omitempty,url"`
	APIBaseURL string `envconfig:"NEXT_PUBLIC_API_BASE_URL" required:"true" validate:"required,url"`
	StateFile  string `envconfig:"BLOGCTL_STATE_FILE"`

	Timeout       time.Duration `envconfig:"BLOGCTL_TIMEOUT" default:"30s"`
	RefreshBuffer time.Duration `envconfig:"BLOGCTL_REFRESH_BUFFER" default:"60s"`
	MaxRetries    uint64        `envconfig:"BLOGCTL_MAX_RETRIES" default:"2"`

	CookieDomain       string   `envconfig:"COOKIE_DOMAIN"`
	ExpiredTokenCodes  []string `envconfig:"EXPIRED_TOKEN_CODES" default:"J004"`
	LegacyMessageMatch bool     `envconfig:"LEGACY_EXPIRED_MESSAGE_MATCH" default:"true"`
}

// IsProduction - продакшн по VERCEL_ENV/NODE_ENV.
func (c *ClientConfig) IsProduction() bool {
	return authcookie.IsProduction(c.NodeEnv, c.VercelEnv)
}

// CookieAttributes - атрибуты кук в jar. Secure зависит от схемы сайта:
// jar не отдаёт Secure-куки по http.
func (c *ClientConfig) CookieAttributes() authcookie.Attributes {
	secure := false
	if u, err := url.Parse(c.SiteURL); err == nil && u.Scheme == "https" {
		secure = true
	}
	return authcookie.NewAttributes(c.IsProduction(), c.CookieDomain, secure)
}

// LoadClientConfig загружает конфигурацию blogctl.
func LoadClientConfig(envFilePath string) (*ClientConfig, error) {
	loadEnvFile(envFilePath)

	var cfg ClientConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env vars: %w", err)
	}
	if cfg.SiteURL == "" {
		cfg.SiteURL = siteURL(cfg.VercelURL, "3000")
	}
	cfg.SiteURL = strings.TrimRight(cfg.SiteURL, "/")
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}
