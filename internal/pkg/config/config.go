package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ManuelReschke/Fulfillment/internal/pkg/env"
)

// Config is built once at startup and passed by value to constructors.
type Config struct {
	App          App
	Database     Database
	Cache        Cache
	Stripe       Stripe
	Notify       Notify
	Provisioning Provisioning
	Queue        Queue
	Schedule     Schedule
}

type App struct {
	Host           string `validate:"required"`
	Port           string `validate:"required,numeric"`
	Env            string `validate:"oneof=dev prod test"`
	InternalAPIKey string
	PublicURL      string
}

type Database struct {
	Host     string `validate:"required"`
	Port     string `validate:"required,numeric"`
	User     string
	Password string
	Name     string `validate:"required"`
}

// DSN returns the go-sql-driver/mysql connection string.
func (d Database) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type Cache struct {
	Host     string `validate:"required"`
	Port     string `validate:"required,numeric"`
	Password string
	DB       int `validate:"min=0,max=15"`
}

type Stripe struct {
	SecretKey     string
	WebhookSecret string `validate:"required"`
}

type SMTP struct {
	Host     string
	Port     string
	Username string
	Password string
	Sender   string
}

// Notify holds channel credentials and admin contacts.
type Notify struct {
	SMTP                    SMTP
	TelegramBotToken        string
	TelegramAPIURL          string `validate:"omitempty,url"`
	SignalAPIURL            string `validate:"omitempty,url"`
	SignalNumber            string
	FirebaseCredentialsFile string
	DefaultChannel          string `validate:"oneof=email telegram signal push"`
	AdminEmail              string `validate:"omitempty,email"`
	AdminTelegramChatID     string
	AdminSignalNumber       string
	AdminPushToken          string
	SendTimeout             time.Duration `validate:"min=1000000000"`
}

type Provisioning struct {
	Provider      string        `validate:"oneof=demo docker"`
	DockerImage   string        `validate:"required_if=Provider docker"`
	DockerNetwork string
	StaleAfter    time.Duration `validate:"min=60000000000"`
	CallTimeout   time.Duration `validate:"min=1000000000"`
}

type Queue struct {
	Workers    int `validate:"min=1,max=64"`
	MaxRetries int `validate:"min=1,max=10"`
}

// Schedule entries use robfig/cron spec syntax.
type Schedule struct {
	StaleSweep         string `validate:"required"`
	ExpiryCheck        string `validate:"required"`
	EventPrune         string `validate:"required"`
	EventRetentionDays int    `validate:"min=1"`
	ExpiryWarningDays  int    `validate:"min=1"`
}

// Load reads the configuration from the environment and validates it.
func Load() (Config, error) {
	cfg := Config{
		App: App{
			Host:           env.GetEnv("APP_HOST", "0.0.0.0"),
			Port:           env.GetEnv("APP_PORT", "4000"),
			Env:            env.GetEnv("APP_ENV", "prod"),
			InternalAPIKey: env.GetEnv("INTERNAL_API_KEY", ""),
			PublicURL:      env.GetEnv("PUBLIC_URL", "http://localhost:4000"),
		},
		Database: Database{
			Host:     env.GetEnv("DB_HOST", "127.0.0.1"),
			Port:     env.GetEnv("DB_PORT", "3306"),
			User:     env.GetEnv("DB_USER", ""),
			Password: env.GetEnv("DB_PASSWORD", ""),
			Name:     env.GetEnv("DB_NAME", "fulfillment"),
		},
		Cache: Cache{
			Host:     env.GetEnv("CACHE_HOST", "localhost"),
			Port:     env.GetEnv("CACHE_PORT", "6379"),
			Password: env.GetEnv("CACHE_PASSWORD", ""),
			DB:       env.GetEnvInt("CACHE_DB", 0),
		},
		Stripe: Stripe{
			SecretKey:     env.GetEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret: env.GetEnv("STRIPE_WEBHOOK_SECRET", ""),
		},
		Notify: Notify{
			SMTP: SMTP{
				Host:     env.GetEnv("SMTP_HOST", ""),
				Port:     env.GetEnv("SMTP_PORT", "587"),
				Username: env.GetEnv("SMTP_USERNAME", ""),
				Password: env.GetEnv("SMTP_PASSWORD", ""),
				Sender:   env.GetEnv("SMTP_SENDER", ""),
			},
			TelegramBotToken:        env.GetEnv("TELEGRAM_BOT_TOKEN", ""),
			TelegramAPIURL:          env.GetEnv("TELEGRAM_API_URL", "https://api.telegram.org"),
			SignalAPIURL:            env.GetEnv("SIGNAL_API_URL", ""),
			SignalNumber:            env.GetEnv("SIGNAL_NUMBER", ""),
			FirebaseCredentialsFile: env.GetEnv("FIREBASE_CREDENTIALS_FILE", ""),
			DefaultChannel:          env.GetEnv("NOTIFY_DEFAULT_CHANNEL", "email"),
			AdminEmail:              env.GetEnv("ADMIN_EMAIL", ""),
			AdminTelegramChatID:     env.GetEnv("ADMIN_TELEGRAM_CHAT_ID", ""),
			AdminSignalNumber:       env.GetEnv("ADMIN_SIGNAL_NUMBER", ""),
			AdminPushToken:          env.GetEnv("ADMIN_PUSH_TOKEN", ""),
			SendTimeout:             env.GetEnvDuration("NOTIFY_SEND_TIMEOUT", 15*time.Second),
		},
		Provisioning: Provisioning{
			Provider:      env.GetEnv("PROVISIONING_PROVIDER", "demo"),
			DockerImage:   env.GetEnv("PROVISIONING_DOCKER_IMAGE", "ubuntu:22.04"),
			DockerNetwork: env.GetEnv("PROVISIONING_DOCKER_NETWORK", ""),
			StaleAfter:    env.GetEnvDuration("PROVISIONING_STALE_AFTER", time.Hour),
			CallTimeout:   env.GetEnvDuration("PROVISIONING_CALL_TIMEOUT", 5*time.Minute),
		},
		Queue: Queue{
			Workers:    env.GetEnvInt("JOBQUEUE_WORKERS", 5),
			MaxRetries: env.GetEnvInt("JOBQUEUE_MAX_RETRIES", 3),
		},
		Schedule: Schedule{
			StaleSweep:         env.GetEnv("SCHEDULE_STALE_SWEEP", "@every 30m"),
			ExpiryCheck:        env.GetEnv("SCHEDULE_EXPIRY_CHECK", "@daily"),
			EventPrune:         env.GetEnv("SCHEDULE_EVENT_PRUNE", "@weekly"),
			EventRetentionDays: env.GetEnvInt("PAYMENT_EVENT_RETENTION_DAYS", 90),
			ExpiryWarningDays:  env.GetEnvInt("SUBSCRIPTION_EXPIRY_WARNING_DAYS", 3),
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
