package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	StoreDriverFirestore = "firestore"
	StoreDriverMemory    = "memory"

	accessTokenPlaceholder = "YOUR_MERCADO_PAGO_ACCESS_TOKEN"
)

var (
	ErrMissingAccessToken   = errors.New("MERCADO_PAGO_ACCESS_TOKEN is not configured")
	ErrMissingPublicBaseURL = errors.New("PUBLIC_BASE_URL is not configured")
)

type App struct {
	Env           string
	Port          string
	LogLevel      string
	Timezone      string
	PublicBaseURL string
	CookieSecure  bool
}

type Firebase struct {
	CredentialsPath string
	ProjectID       string
}

type MercadoPago struct {
	AccessToken   string
	BaseURL       string
	WebhookSecret string
	Timeout       time.Duration
	MaxAttempts   int
}

type SMTP struct {
	Host     string
	Port     string
	User     string
	Password string
	From     string
}

type Waha struct {
	BaseURL string
	APIKey  string
	Session string
}

type Worker struct {
	Interval time.Duration
}

// Config is the process configuration, read once at bootstrap.
type Config struct {
	App            App
	Firebase       Firebase
	StoreDriver    string
	MercadoPago    MercadoPago
	CommissionRate float64
	DatabaseURL    string
	RedisURL       string
	CatalogTTL     time.Duration
	SMTP           SMTP
	Waha           Waha
	Worker         Worker
}

// Load reads .env when present and then the process environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment")
	}
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() *Config {
	env := GetEnvString("APP_ENV", EnvDevelopment)
	return &Config{
		App: App{
			Env:           env,
			Port:          GetEnvString("PORT", "8080"),
			LogLevel:      GetEnvString("LOG_LEVEL", "info"),
			Timezone:      GetEnvString("APP_TIMEZONE", "America/Sao_Paulo"),
			PublicBaseURL: strings.TrimRight(GetEnvString("PUBLIC_BASE_URL", ""), "/"),
			CookieSecure:  env == EnvProduction,
		},
		Firebase: Firebase{
			CredentialsPath: GetEnvString("FIREBASE_CREDENTIALS_PATH", "./firebase-service-account.json"),
			ProjectID:       GetEnvString("FIREBASE_PROJECT_ID", ""),
		},
		StoreDriver: GetEnvString("STORE_DRIVER", StoreDriverFirestore),
		MercadoPago: MercadoPago{
			AccessToken:   GetEnvString("MERCADO_PAGO_ACCESS_TOKEN", ""),
			BaseURL:       strings.TrimRight(GetEnvString("MERCADO_PAGO_BASE_URL", "https://api.mercadopago.com"), "/"),
			WebhookSecret: GetEnvString("MP_WEBHOOK_SECRET", ""),
			Timeout:       GetEnvDuration("MERCADO_PAGO_TIMEOUT", 15*time.Second),
			MaxAttempts:   GetEnvInt("MERCADO_PAGO_MAX_ATTEMPTS", 3),
		},
		CommissionRate: GetEnvFloat("COMMISSION_RATE", 0.15),
		DatabaseURL:    GetEnvString("DATABASE_URL", ""),
		RedisURL:       GetEnvString("REDIS_URL", ""),
		CatalogTTL:     GetEnvDuration("CATALOG_CACHE_TTL", time.Minute),
		SMTP: SMTP{
			Host:     GetEnvString("SMTP_HOST", ""),
			Port:     GetEnvString("SMTP_PORT", ""),
			User:     GetEnvString("SMTP_USER", ""),
			Password: GetEnvString("SMTP_PASS", ""),
			From:     GetEnvString("EMAIL_FROM", ""),
		},
		Waha: Waha{
			BaseURL: GetEnvString("WAHA_BASE_URL", "http://waha:3000"),
			APIKey:  GetEnvString("WAHA_API_KEY", ""),
			Session: GetEnvString("WAHA_SESSION", "default"),
		},
		Worker: Worker{
			Interval: GetEnvDuration("WORKER_INTERVAL", 5*time.Minute),
		},
	}
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return c.App.Env == EnvProduction
}

// Location loads App.Timezone, falling back to UTC when it is unknown.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		log.Printf("Unknown APP_TIMEZONE %q, using UTC", c.App.Timezone)
		return time.UTC
	}
	return loc
}

// CheckAccessToken fails when the access token is missing or still the
// placeholder value.
func (m MercadoPago) CheckAccessToken() error {
	if m.AccessToken == "" || m.AccessToken == accessTokenPlaceholder {
		return ErrMissingAccessToken
	}
	return nil
}

// Check additionally requires a public base URL to receive notifications on.
func (m MercadoPago) Check(publicBaseURL string) error {
	if err := m.CheckAccessToken(); err != nil {
		return err
	}
	if publicBaseURL == "" {
		return ErrMissingPublicBaseURL
	}
	return nil
}

// NotificationURL is where the gateway posts payment notifications.
func (c *Config) NotificationURL() string {
	return fmt.Sprintf("%s/api/mp-webhook", c.App.PublicBaseURL)
}
