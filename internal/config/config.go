package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Scheduler   SchedulerConfig
	Log         LogConfig
	AutoConfirm AutoConfirmConfig
	WhatsApp    WhatsAppConfig
}

type ServerConfig struct {
	Address string
}

type DatabaseConfig struct {
	PostgresURL string
}

type RedisConfig struct {
	Enabled  bool
	Address  string
	Password string
	DB       int
	TTL      time.Duration
}

type SchedulerConfig struct {
	Interval  time.Duration
	AutoStart bool
}

type LogConfig struct {
	Level  string
	Format string
}

// AutoConfirmConfig drives the confirmation sweep.
type AutoConfirmConfig struct {
	Enabled      bool
	Delay        time.Duration
	BatchSize    int
	Pause        time.Duration
	TemplateName string
	DryRun       bool
	// ClaimTTL is how long a claimed order stays hidden from other sweeps.
	// It must outlast one full sweep.
	ClaimTTL time.Duration
}

// WhatsAppConfig holds provider credentials. Token and PhoneNumberID may be
// empty; senders then report a configuration failure instead of sending.
type WhatsAppConfig struct {
	BaseURL       string
	APIVersion    string
	Token         string
	PhoneNumberID string
	VerifyToken   string
	Timeout       time.Duration
}

func (c WhatsAppConfig) Configured() bool {
	return c.Token != "" && c.PhoneNumberID != ""
}

func LoadAll() (*Config, error) {
	var errs []error

	pgURL, err := requireEnv("POSTGRES_URL")
	errs = appendErr(errs, err)

	intervalSec, err := getEnvInt("SCHED_INTERVAL_SECONDS", 300)
	errs = appendErr(errs, err)
	autoStart, err := getEnvBool("SCHED_AUTOSTART", true)
	errs = appendErr(errs, err)

	enabled, err := getEnvBool("WHATSAPP_AUTO_CONFIRM_ENABLED", false)
	errs = appendErr(errs, err)
	delayMin, err := getEnvInt("WHATSAPP_AUTO_CONFIRM_DELAY_MINUTES", 15)
	errs = appendErr(errs, err)
	batch, err := getEnvInt("WHATSAPP_AUTO_CONFIRM_BATCH_SIZE", 20)
	errs = appendErr(errs, err)
	pauseMs, err := getEnvInt("WHATSAPP_AUTO_CONFIRM_PAUSE_MS", 1000)
	errs = appendErr(errs, err)
	claimMin, err := getEnvInt("WHATSAPP_AUTO_CONFIRM_CLAIM_TTL_MINUTES", 10)
	errs = appendErr(errs, err)
	dryRun, err := getEnvBool("WHATSAPP_DRY_RUN", false)
	errs = appendErr(errs, err)
	timeoutSec, err := getEnvInt("WHATSAPP_TIMEOUT_SECONDS", 10)
	errs = appendErr(errs, err)

	redisCfg, err := loadRedisConfig()
	errs = appendErr(errs, err)

	cfg := &Config{
		Server: ServerConfig{
			Address: getEnv("SERVER_ADDRESS", ":8080"),
		},
		Database: DatabaseConfig{
			PostgresURL: pgURL,
		},
		Redis: redisCfg,
		Scheduler: SchedulerConfig{
			Interval:  time.Duration(intervalSec) * time.Second,
			AutoStart: autoStart,
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		AutoConfirm: AutoConfirmConfig{
			Enabled:      enabled,
			Delay:        time.Duration(delayMin) * time.Minute,
			BatchSize:    batch,
			Pause:        time.Duration(pauseMs) * time.Millisecond,
			TemplateName: getEnv("WHATSAPP_TEMPLATE_NAME", "order_confirmation"),
			DryRun:       dryRun,
			ClaimTTL:     time.Duration(claimMin) * time.Minute,
		},
		WhatsApp: WhatsAppConfig{
			BaseURL:       getEnv("WHATSAPP_API_BASE_URL", "https://graph.facebook.com"),
			APIVersion:    getEnv("WHATSAPP_API_VERSION", "v21.0"),
			Token:         os.Getenv("WHATSAPP_TOKEN"),
			PhoneNumberID: os.Getenv("WHATSAPP_PHONE_NUMBER_ID"),
			VerifyToken:   os.Getenv("WHATSAPP_VERIFY_TOKEN"),
			Timeout:       time.Duration(timeoutSec) * time.Second,
		},
	}

	if err := joinErrors(errs); err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadRedisConfig() (RedisConfig, error) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return RedisConfig{Enabled: false}, nil
	}

	var errs []error
	db, err := getEnvInt("REDIS_DB", 0)
	errs = appendErr(errs, err)
	ttl, err := getEnvInt("REDIS_TTL_SECONDS", 7*86400)
	errs = appendErr(errs, err)

	return RedisConfig{
		Enabled:  true,
		Address:  addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
		TTL:      time.Duration(ttl) * time.Second,
	}, joinErrors(errs)
}

func validate(cfg *Config) error {
	var errs []error
	if cfg.Scheduler.Interval <= 0 {
		errs = append(errs, errors.New("SCHED_INTERVAL_SECONDS must be > 0"))
	}
	if cfg.AutoConfirm.BatchSize <= 0 {
		errs = append(errs, errors.New("WHATSAPP_AUTO_CONFIRM_BATCH_SIZE must be > 0"))
	}
	if cfg.AutoConfirm.Delay < 0 {
		errs = append(errs, errors.New("WHATSAPP_AUTO_CONFIRM_DELAY_MINUTES must be >= 0"))
	}
	if cfg.AutoConfirm.Pause < 0 {
		errs = append(errs, errors.New("WHATSAPP_AUTO_CONFIRM_PAUSE_MS must be >= 0"))
	}
	if cfg.AutoConfirm.ClaimTTL <= 0 {
		errs = append(errs, errors.New("WHATSAPP_AUTO_CONFIRM_CLAIM_TTL_MINUTES must be > 0"))
	}
	if strings.TrimSpace(cfg.AutoConfirm.TemplateName) == "" {
		errs = append(errs, errors.New("WHATSAPP_TEMPLATE_NAME must not be empty"))
	}
	if cfg.WhatsApp.Timeout <= 0 {
		errs = append(errs, errors.New("WHATSAPP_TIMEOUT_SECONDS must be > 0"))
	}
	return joinErrors(errs)
}

func requireEnv(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("missing required env var: %s", key)
	}
	return val, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("invalid int for env %s: %q", key, v)
	}
	return i, nil
}

func getEnvBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("invalid bool for env %s: %q", key, v)
	}
	return b, nil
}

func appendErr(errs []error, err error) []error {
	if err != nil {
		return append(errs, err)
	}
	return errs
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}
