// internal/config/config.go
package config

import (
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/andresuchdata/autopo-engine/internal/lifecycle"
	"github.com/andresuchdata/autopo-engine/internal/pipeline/replenishment"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Cache     CacheConfig
	Engine    EngineConfig
	Reasoning ReasoningConfig
	Storage   StorageConfig
	Events    EventsConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port           string
	AdminPort      string
	Mode           string
	ReadTimeout    int
	WriteTimeout   int
	AllowedOrigins []string
}

type DatabaseConfig struct {
	URL             string
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxConcurrentTx int
}

type CacheConfig struct {
	Enabled          bool
	RedisURL         string
	RedisHost        string
	RedisPort        string
	RedisPassword    string
	RedisDB          int
	TraceTTLSeconds  int
	ReportTTLSeconds int
	LockTTLSeconds   int
}

// EngineConfig carries every tunable of the decision engine.
type EngineConfig struct {
	ProtectionWindowDays float64
	ServiceLevelZ        float64
	OverstockMultiple    float64
	CriticalCoverDays    float64
	RiskCoverDays        float64
	LowConfidenceDays    int
	HighConfidenceDays   int
	MaterialChangeRatio  float64
	MassFailureRatio     float64

	WorkerCount      int
	StoreConcurrency int

	VerifyWindowDays int
	VerifyMaxChecks  int

	ScheduleInterval time.Duration
	ScheduledStores  []int64
}

type ReasoningConfig struct {
	Enabled         bool
	URL             string
	CredentialsFile string
	Audience        string
	Timeout         time.Duration
	MaxAttempts     int
	Backoff         time.Duration
	MaxBackoff      time.Duration
}

type StorageConfig struct {
	Driver    string // local or minio
	LocalDir  string
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

type EventsConfig struct {
	Enabled     bool
	NATSURL     string
	CartSubject string
	ClientName  string
}

type LogConfig struct {
	Level  string
	Format string // console or json
}

var (
	once     sync.Once
	instance *Config
)

func Load() *Config {
	once.Do(func() {
		// Load .env file if it exists
		_ = godotenv.Load()

		setDefaults()

		// Read from environment variables
		viper.AutomaticEnv()

		instance = fromViper()

		if instance.Storage.Driver == "local" {
			ensureDir(instance.Storage.LocalDir)
		}
	})

	return instance
}

func setDefaults() {
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("ADMIN_PORT", "8081")
	viper.SetDefault("SERVER_MODE", "debug")
	viper.SetDefault("SERVER_READ_TIMEOUT", 15)
	viper.SetDefault("SERVER_WRITE_TIMEOUT", 30)
	viper.SetDefault("SERVER_ALLOWED_ORIGINS", []string{"*"})

	viper.SetDefault("DATABASE_URL", "")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_USER", "postgres")
	viper.SetDefault("DB_PASSWORD", "postgres")
	viper.SetDefault("DB_NAME", "autopo")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("DB_MAX_OPEN_CONNS", 25)
	viper.SetDefault("DB_MAX_CONCURRENT_TX", 10)

	viper.SetDefault("CACHE_ENABLED", false)
	viper.SetDefault("REDIS_URL", "")
	viper.SetDefault("REDIS_HOST", "127.0.0.1")
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("CACHE_TRACE_TTL_SECONDS", 3600)
	viper.SetDefault("CACHE_REPORT_TTL_SECONDS", 300)
	viper.SetDefault("CACHE_LOCK_TTL_SECONDS", 600)

	viper.SetDefault("ENGINE_PROTECTION_WINDOW_DAYS", 3.0)
	viper.SetDefault("ENGINE_SERVICE_LEVEL_Z", 1.65)
	viper.SetDefault("ENGINE_OVERSTOCK_MULTIPLE", 4.0)
	viper.SetDefault("ENGINE_CRITICAL_COVER_DAYS", 3.0)
	viper.SetDefault("ENGINE_RISK_COVER_DAYS", 7.0)
	viper.SetDefault("ENGINE_LOW_CONFIDENCE_DAYS", 7)
	viper.SetDefault("ENGINE_HIGH_CONFIDENCE_DAYS", 21)
	viper.SetDefault("ENGINE_MATERIAL_CHANGE_RATIO", 0.05)
	viper.SetDefault("ENGINE_MASS_FAILURE_RATIO", 0.5)
	viper.SetDefault("ENGINE_WORKER_COUNT", 8)
	viper.SetDefault("ENGINE_STORE_CONCURRENCY", 2)
	viper.SetDefault("ENGINE_VERIFY_WINDOW_DAYS", 7)
	viper.SetDefault("ENGINE_VERIFY_MAX_CHECKS", 7)
	viper.SetDefault("ENGINE_SCHEDULE_INTERVAL", "0s")
	viper.SetDefault("ENGINE_SCHEDULED_STORES", []string{})

	viper.SetDefault("REASONING_ENABLED", false)
	viper.SetDefault("REASONING_URL", "")
	viper.SetDefault("REASONING_CREDENTIALS_FILE", "")
	viper.SetDefault("REASONING_AUDIENCE", "")
	viper.SetDefault("REASONING_TIMEOUT", "10s")
	viper.SetDefault("REASONING_MAX_ATTEMPTS", 3)
	viper.SetDefault("REASONING_BACKOFF", "500ms")
	viper.SetDefault("REASONING_MAX_BACKOFF", "5s")

	viper.SetDefault("STORAGE_DRIVER", "local")
	viper.SetDefault("STORAGE_LOCAL_DIR", "./data/exports")
	viper.SetDefault("STORAGE_ENDPOINT", "")
	viper.SetDefault("STORAGE_ACCESS_KEY", "")
	viper.SetDefault("STORAGE_SECRET_KEY", "")
	viper.SetDefault("STORAGE_BUCKET", "autopo-engine")
	viper.SetDefault("STORAGE_REGION", "")
	viper.SetDefault("STORAGE_USE_SSL", true)

	viper.SetDefault("EVENTS_ENABLED", false)
	viper.SetDefault("NATS_URL", "nats://127.0.0.1:4222")
	viper.SetDefault("EVENTS_CART_SUBJECT", "procurement.cart.items")
	viper.SetDefault("EVENTS_CLIENT_NAME", "autopo-engine")

	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_FORMAT", "console")
}

func fromViper() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           viper.GetString("SERVER_PORT"),
			AdminPort:      viper.GetString("ADMIN_PORT"),
			Mode:           viper.GetString("SERVER_MODE"),
			ReadTimeout:    viper.GetInt("SERVER_READ_TIMEOUT"),
			WriteTimeout:   viper.GetInt("SERVER_WRITE_TIMEOUT"),
			AllowedOrigins: viper.GetStringSlice("SERVER_ALLOWED_ORIGINS"),
		},
		Database: DatabaseConfig{
			URL:             viper.GetString("DATABASE_URL"),
			Host:            viper.GetString("DB_HOST"),
			Port:            viper.GetString("DB_PORT"),
			User:            viper.GetString("DB_USER"),
			Password:        viper.GetString("DB_PASSWORD"),
			DBName:          viper.GetString("DB_NAME"),
			SSLMode:         viper.GetString("DB_SSLMODE"),
			MaxOpenConns:    viper.GetInt("DB_MAX_OPEN_CONNS"),
			MaxConcurrentTx: viper.GetInt("DB_MAX_CONCURRENT_TX"),
		},
		Cache: CacheConfig{
			Enabled:          viper.GetBool("CACHE_ENABLED"),
			RedisURL:         viper.GetString("REDIS_URL"),
			RedisHost:        viper.GetString("REDIS_HOST"),
			RedisPort:        viper.GetString("REDIS_PORT"),
			RedisPassword:    viper.GetString("REDIS_PASSWORD"),
			RedisDB:          viper.GetInt("REDIS_DB"),
			TraceTTLSeconds:  viper.GetInt("CACHE_TRACE_TTL_SECONDS"),
			ReportTTLSeconds: viper.GetInt("CACHE_REPORT_TTL_SECONDS"),
			LockTTLSeconds:   viper.GetInt("CACHE_LOCK_TTL_SECONDS"),
		},
		Engine: EngineConfig{
			ProtectionWindowDays: viper.GetFloat64("ENGINE_PROTECTION_WINDOW_DAYS"),
			ServiceLevelZ:        viper.GetFloat64("ENGINE_SERVICE_LEVEL_Z"),
			OverstockMultiple:    viper.GetFloat64("ENGINE_OVERSTOCK_MULTIPLE"),
			CriticalCoverDays:    viper.GetFloat64("ENGINE_CRITICAL_COVER_DAYS"),
			RiskCoverDays:        viper.GetFloat64("ENGINE_RISK_COVER_DAYS"),
			LowConfidenceDays:    viper.GetInt("ENGINE_LOW_CONFIDENCE_DAYS"),
			HighConfidenceDays:   viper.GetInt("ENGINE_HIGH_CONFIDENCE_DAYS"),
			MaterialChangeRatio:  viper.GetFloat64("ENGINE_MATERIAL_CHANGE_RATIO"),
			MassFailureRatio:     viper.GetFloat64("ENGINE_MASS_FAILURE_RATIO"),
			WorkerCount:          viper.GetInt("ENGINE_WORKER_COUNT"),
			StoreConcurrency:     viper.GetInt("ENGINE_STORE_CONCURRENCY"),
			VerifyWindowDays:     viper.GetInt("ENGINE_VERIFY_WINDOW_DAYS"),
			VerifyMaxChecks:      viper.GetInt("ENGINE_VERIFY_MAX_CHECKS"),
			ScheduleInterval:     viper.GetDuration("ENGINE_SCHEDULE_INTERVAL"),
			ScheduledStores:      parseStoreIDs(viper.GetStringSlice("ENGINE_SCHEDULED_STORES")),
		},
		Reasoning: ReasoningConfig{
			Enabled:         viper.GetBool("REASONING_ENABLED"),
			URL:             viper.GetString("REASONING_URL"),
			CredentialsFile: viper.GetString("REASONING_CREDENTIALS_FILE"),
			Audience:        viper.GetString("REASONING_AUDIENCE"),
			Timeout:         viper.GetDuration("REASONING_TIMEOUT"),
			MaxAttempts:     viper.GetInt("REASONING_MAX_ATTEMPTS"),
			Backoff:         viper.GetDuration("REASONING_BACKOFF"),
			MaxBackoff:      viper.GetDuration("REASONING_MAX_BACKOFF"),
		},
		Storage: StorageConfig{
			Driver:    viper.GetString("STORAGE_DRIVER"),
			LocalDir:  viper.GetString("STORAGE_LOCAL_DIR"),
			Endpoint:  viper.GetString("STORAGE_ENDPOINT"),
			AccessKey: viper.GetString("STORAGE_ACCESS_KEY"),
			SecretKey: viper.GetString("STORAGE_SECRET_KEY"),
			Bucket:    viper.GetString("STORAGE_BUCKET"),
			Region:    viper.GetString("STORAGE_REGION"),
			UseSSL:    viper.GetBool("STORAGE_USE_SSL"),
		},
		Events: EventsConfig{
			Enabled:     viper.GetBool("EVENTS_ENABLED"),
			NATSURL:     viper.GetString("NATS_URL"),
			CartSubject: viper.GetString("EVENTS_CART_SUBJECT"),
			ClientName:  viper.GetString("EVENTS_CLIENT_NAME"),
		},
		Log: LogConfig{
			Level:  viper.GetString("LOG_LEVEL"),
			Format: viper.GetString("LOG_FORMAT"),
		},
	}
}

// Replenishment maps the engine settings onto the calculator configuration.
func (e EngineConfig) Replenishment() replenishment.Config {
	return replenishment.Config{
		ProtectionWindowDays: e.ProtectionWindowDays,
		ServiceLevelZ:        e.ServiceLevelZ,
		OverstockMultiple:    e.OverstockMultiple,
		CriticalCoverDays:    e.CriticalCoverDays,
		RiskCoverDays:        e.RiskCoverDays,
		LowConfidenceDays:    e.LowConfidenceDays,
		HighConfidenceDays:   e.HighConfidenceDays,
		MaterialChangeRatio:  e.MaterialChangeRatio,
	}
}

func (e EngineConfig) OutcomePolicy() lifecycle.OutcomePolicy {
	policy := lifecycle.DefaultOutcomePolicy()
	if e.VerifyWindowDays > 0 {
		policy.WindowDays = e.VerifyWindowDays
	}
	if e.VerifyMaxChecks > 0 {
		policy.MaxChecks = e.VerifyMaxChecks
	}
	return policy
}

func parseStoreIDs(raw []string) []int64 {
	var ids []int64
	for _, s := range raw {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			log.Printf("ignoring invalid store id %q in ENGINE_SCHEDULED_STORES", s)
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func ensureDir(dir string) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("Failed to create directory %s: %v", dir, err)
		}
	}
}
