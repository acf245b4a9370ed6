package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"smartwake/common/config"
)

// Config edge service configuration
type Config struct {
	Database config.DatabaseConfig
	Redis    config.RedisConfig
	MQTT     config.MQTTConfig

	Device struct {
		ID       string
		Timezone string // IANA name; wake times are interpreted in this zone
	}

	Predictor struct {
		LocalModelPath string // yaml coefficients; empty uses built-in defaults
		Cloud          struct {
			Enabled    bool
			Endpoint   string
			APIKey     string
			Timeout    int // seconds
			RetryAfter int // seconds the cloud counts as unavailable after a failure
		}
	}

	History struct {
		Backend     string // "postgres" or "memory"
		RecentLimit int
	}

	Sync struct {
		QueueKey    string
		DrainBudget int // seconds one queue drain may hold the scheduler loop
	}

	Alarm struct {
		Enabled       bool
		WakeTime      string // "H:MM"
		WindowMinutes int
		SnoozeMinutes int
	}

	Twin struct {
		DesiredTopic     string
		ReportedTopic    string
		BreakerThreshold int
		BreakerWindow    int // seconds
		SendTimeout      int // seconds
		InboundBuffer    int
	}

	Telemetry struct {
		AlertsTopic      string
		PredictionsTopic string
		Stream           string
	}

	Features struct {
		Stream   string
		Group    string
		Consumer string
		Batch    int
	}

	Scheduler struct {
		PredictionInterval int // seconds
		SyncInterval       int // seconds
		MonitoringActive   bool
	}

	HTTP struct {
		Addr string
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load reads configuration from the environment
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Database.Host = "localhost"
	cfg.Database.Port = 5432
	cfg.Database.User = "postgres"
	cfg.Database.Password = "postgres"
	cfg.Database.Database = "smartwake"
	cfg.Database.SSLMode = "disable"
	cfg.Database.MaxConns = 5
	cfg.Database.LoadFromEnv("DB")

	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.Device.ID = getEnv("DEVICE_ID", "smartwake-edge-01")
	cfg.Device.Timezone = getEnv("DEVICE_TIMEZONE", "Local")

	cfg.MQTT.Broker = "tcp://localhost:1883"
	cfg.MQTT.ClientID = cfg.Device.ID
	cfg.MQTT.QoS = 1
	cfg.MQTT.ConnectTimeout = 5 * time.Second
	cfg.MQTT.LoadFromEnv("MQTT")

	cfg.Predictor.LocalModelPath = getEnv("LOCAL_MODEL_PATH", "")
	cfg.Predictor.Cloud.Enabled = getEnvBool("CLOUD_ENABLED", false)
	cfg.Predictor.Cloud.Endpoint = getEnv("CLOUD_ENDPOINT", "")
	cfg.Predictor.Cloud.APIKey = getEnv("CLOUD_API_KEY", "")
	cfg.Predictor.Cloud.Timeout = getEnvInt("CLOUD_TIMEOUT", 5)
	cfg.Predictor.Cloud.RetryAfter = getEnvInt("CLOUD_RETRY_AFTER", 30)

	cfg.History.Backend = strings.ToLower(getEnv("HISTORY_BACKEND", "postgres"))
	cfg.History.RecentLimit = getEnvInt("HISTORY_RECENT_LIMIT", 20)

	cfg.Sync.QueueKey = getEnv("SYNC_QUEUE_KEY", "smartwake:sync:pending")
	cfg.Sync.DrainBudget = getEnvInt("SYNC_DRAIN_BUDGET", 10)

	cfg.Alarm.Enabled = getEnvBool("ALARM_ENABLED", false)
	cfg.Alarm.WakeTime = getEnv("ALARM_WAKE_TIME", "7:00")
	cfg.Alarm.WindowMinutes = getEnvInt("ALARM_WINDOW_MINUTES", 30)
	cfg.Alarm.SnoozeMinutes = getEnvInt("ALARM_SNOOZE_MINUTES", 9)

	cfg.Twin.DesiredTopic = getEnv("TWIN_DESIRED_TOPIC", "smartwake/"+cfg.Device.ID+"/twin/desired")
	cfg.Twin.ReportedTopic = getEnv("TWIN_REPORTED_TOPIC", "smartwake/"+cfg.Device.ID+"/twin/reported")
	cfg.Twin.BreakerThreshold = getEnvInt("TWIN_BREAKER_THRESHOLD", 10)
	cfg.Twin.BreakerWindow = getEnvInt("TWIN_BREAKER_WINDOW", 60)
	cfg.Twin.SendTimeout = getEnvInt("TWIN_SEND_TIMEOUT", 5)
	cfg.Twin.InboundBuffer = getEnvInt("TWIN_INBOUND_BUFFER", 32)

	cfg.Telemetry.AlertsTopic = getEnv("ALERTS_TOPIC", "smartwake/"+cfg.Device.ID+"/alerts")
	cfg.Telemetry.PredictionsTopic = getEnv("PREDICTIONS_TOPIC", "smartwake/"+cfg.Device.ID+"/predictions")
	cfg.Telemetry.Stream = getEnv("TELEMETRY_STREAM", "smartwake:telemetry:readings")

	cfg.Features.Stream = getEnv("FEATURES_STREAM", "smartwake:features")
	cfg.Features.Group = getEnv("FEATURES_GROUP", "smartwake-edge")
	cfg.Features.Consumer = getEnv("FEATURES_CONSUMER", cfg.Device.ID)
	cfg.Features.Batch = getEnvInt("FEATURES_BATCH", 10)

	cfg.Scheduler.PredictionInterval = getEnvInt("PREDICTION_INTERVAL", 60)
	cfg.Scheduler.SyncInterval = getEnvInt("SYNC_INTERVAL", 60)
	cfg.Scheduler.MonitoringActive = getEnvBool("MONITORING_ACTIVE", true)

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8090")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values that would stall or disable the core loops
func (c *Config) Validate() error {
	if c.Scheduler.PredictionInterval <= 0 {
		return fmt.Errorf("invalid PREDICTION_INTERVAL %d", c.Scheduler.PredictionInterval)
	}
	if c.Scheduler.SyncInterval <= 0 {
		return fmt.Errorf("invalid SYNC_INTERVAL %d", c.Scheduler.SyncInterval)
	}
	if c.Sync.DrainBudget <= 0 || c.Sync.DrainBudget > c.Scheduler.PredictionInterval {
		return fmt.Errorf("invalid SYNC_DRAIN_BUDGET %d (must be 1..PREDICTION_INTERVAL)", c.Sync.DrainBudget)
	}
	if c.Alarm.WindowMinutes <= 0 {
		return fmt.Errorf("invalid ALARM_WINDOW_MINUTES %d", c.Alarm.WindowMinutes)
	}
	if c.Alarm.SnoozeMinutes <= 0 {
		return fmt.Errorf("invalid ALARM_SNOOZE_MINUTES %d", c.Alarm.SnoozeMinutes)
	}
	if c.Twin.BreakerThreshold <= 0 || c.Twin.BreakerWindow <= 0 {
		return fmt.Errorf("invalid twin breaker %d/%ds", c.Twin.BreakerThreshold, c.Twin.BreakerWindow)
	}
	if c.Twin.SendTimeout <= 0 {
		return fmt.Errorf("invalid TWIN_SEND_TIMEOUT %d", c.Twin.SendTimeout)
	}
	if c.Predictor.Cloud.Timeout <= 0 {
		return fmt.Errorf("invalid CLOUD_TIMEOUT %d", c.Predictor.Cloud.Timeout)
	}
	switch c.History.Backend {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unknown HISTORY_BACKEND %q", c.History.Backend)
	}
	return nil
}

// Location resolves Device.Timezone
func (c *Config) Location() (*time.Location, error) {
	if c.Device.Timezone == "" || c.Device.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Device.Timezone)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
