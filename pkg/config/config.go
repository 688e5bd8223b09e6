package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Notification drivers.
const (
	NotifyDriverConsole = "console"
	NotifyDriverLive    = "live"
)

type Config struct {
	Env           string
	Port          int
	APIPrefix     string
	InstituteName string

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Fees          FeesConfig
	Notifications NotificationsConfig
	Receipts      ReceiptsConfig
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret   string
	Issuer   string
	Audience []string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// FeesConfig tunes fee status caching and reminder delivery.
type FeesConfig struct {
	StatusCacheTTL  time.Duration
	ReminderChannel string
}

// NotificationsConfig holds channel credentials and dispatch tuning.
type NotificationsConfig struct {
	Driver                 string
	Timeout                time.Duration
	Workers                int
	Retries                int
	AbsenceGuardianChannel string

	SMS      SMSConfig
	WhatsApp WhatsAppConfig
	Email    EmailConfig
	Push     PushConfig
}

// SMSConfig describes the HTTP SMS gateway.
type SMSConfig struct {
	APIURL     string
	UserID     string
	Password   string
	SenderID   string
	TemplateID string
}

// WhatsAppConfig describes the WhatsApp gateway.
type WhatsAppConfig struct {
	APIURL string
	Token  string
}

// EmailConfig configures SendGrid delivery.
type EmailConfig struct {
	SendgridAPIKey string
	FromName       string
	FromAddress    string
}

// PushConfig configures Firebase Cloud Messaging.
type PushConfig struct {
	CredentialsFile string
	ProjectID       string
}

// ReceiptsConfig controls receipt storage and download links.
type ReceiptsConfig struct {
	PublicBaseURL   string
	StorageDir      string
	SignedURLSecret string
	SignedURLTTL    time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")
	cfg.InstituteName = v.GetString("INSTITUTE_NAME")

	cfg.Database = DatabaseConfig{
		Host:            v.GetString("DB_HOST"),
		Port:            v.GetInt("DB_PORT"),
		User:            v.GetString("DB_USER"),
		Password:        v.GetString("DB_PASSWORD"),
		Name:            v.GetString("DB_NAME"),
		SSLMode:         v.GetString("DB_SSL_MODE"),
		MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
		ConnMaxLifetime: v.GetDuration("DB_CONN_MAX_LIFETIME"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("ENABLE_REDIS"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:   v.GetString("JWT_SECRET"),
		Issuer:   v.GetString("JWT_ISSUER"),
		Audience: splitAndTrim(v.GetString("JWT_AUDIENCE")),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Fees = FeesConfig{
		StatusCacheTTL:  parseDuration(v.GetString("FEE_STATUS_CACHE_TTL"), 10*time.Minute),
		ReminderChannel: strings.ToUpper(v.GetString("FEE_REMINDER_CHANNEL")),
	}

	cfg.Notifications = NotificationsConfig{
		Driver:                 strings.ToLower(v.GetString("NOTIFY_DRIVER")),
		Timeout:                parseDuration(v.GetString("NOTIFY_TIMEOUT"), 10*time.Second),
		Workers:                v.GetInt("NOTIFY_WORKERS"),
		Retries:                v.GetInt("NOTIFY_RETRIES"),
		AbsenceGuardianChannel: strings.ToUpper(v.GetString("ABSENCE_GUARDIAN_CHANNEL")),
		SMS: SMSConfig{
			APIURL:     v.GetString("SMS_API_URL"),
			UserID:     v.GetString("SMS_API_USER_ID"),
			Password:   v.GetString("SMS_API_PASSWORD"),
			SenderID:   v.GetString("SMS_API_SENDER_ID"),
			TemplateID: v.GetString("SMS_TEMPLATE_ID"),
		},
		WhatsApp: WhatsAppConfig{
			APIURL: v.GetString("WHATSAPP_API_URL"),
			Token:  v.GetString("WHATSAPP_API_TOKEN"),
		},
		Email: EmailConfig{
			SendgridAPIKey: v.GetString("SENDGRID_API_KEY"),
			FromName:       v.GetString("MAIL_FROM_NAME"),
			FromAddress:    v.GetString("MAIL_FROM_ADDRESS"),
		},
		Push: PushConfig{
			CredentialsFile: v.GetString("FIREBASE_CREDENTIALS_FILE"),
			ProjectID:       v.GetString("FIREBASE_PROJECT_ID"),
		},
	}

	cfg.Receipts = ReceiptsConfig{
		PublicBaseURL:   strings.TrimRight(v.GetString("PUBLIC_BASE_URL"), "/"),
		StorageDir:      v.GetString("RECEIPTS_STORAGE_DIR"),
		SignedURLSecret: v.GetString("RECEIPTS_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("RECEIPTS_SIGNED_URL_TTL"), 30*time.Minute),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")
	v.SetDefault("INSTITUTE_NAME", "SMA Institute")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "sma_fees")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_CONN_MAX_LIFETIME", "1h")

	v.SetDefault("ENABLE_REDIS", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")
	v.SetDefault("JWT_AUDIENCE", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("FEE_STATUS_CACHE_TTL", "10m")
	v.SetDefault("FEE_REMINDER_CHANNEL", "SMS")

	v.SetDefault("NOTIFY_DRIVER", NotifyDriverConsole)
	v.SetDefault("NOTIFY_TIMEOUT", "10s")
	v.SetDefault("NOTIFY_WORKERS", 2)
	v.SetDefault("NOTIFY_RETRIES", 2)
	v.SetDefault("ABSENCE_GUARDIAN_CHANNEL", "SMS")
	v.SetDefault("SMS_API_URL", "")
	v.SetDefault("SMS_API_USER_ID", "")
	v.SetDefault("SMS_API_PASSWORD", "")
	v.SetDefault("SMS_API_SENDER_ID", "")
	v.SetDefault("SMS_TEMPLATE_ID", "")
	v.SetDefault("WHATSAPP_API_URL", "")
	v.SetDefault("WHATSAPP_API_TOKEN", "")
	v.SetDefault("SENDGRID_API_KEY", "")
	v.SetDefault("MAIL_FROM_NAME", "SMA Institute")
	v.SetDefault("MAIL_FROM_ADDRESS", "no-reply@example.com")
	v.SetDefault("FIREBASE_CREDENTIALS_FILE", "")
	v.SetDefault("FIREBASE_PROJECT_ID", "")

	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:8080")
	v.SetDefault("RECEIPTS_STORAGE_DIR", "./receipts")
	v.SetDefault("RECEIPTS_SIGNED_URL_SECRET", "dev_receipts_secret")
	v.SetDefault("RECEIPTS_SIGNED_URL_TTL", "30m")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
