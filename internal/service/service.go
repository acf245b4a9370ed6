package service

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	"smartwake/common/database"
	mqttcommon "smartwake/common/mqtt"
	rediscommon "smartwake/common/redis"
	"smartwake/internal/alarm"
	"smartwake/internal/config"
	"smartwake/internal/consumer"
	"smartwake/internal/models"
	"smartwake/internal/predictor"
	"smartwake/internal/reconciler"
	"smartwake/internal/repository"
	"smartwake/internal/scheduler"
	"smartwake/internal/telemetry"
	"smartwake/internal/twin"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Notifier actuation and telemetry collaborator
type Notifier interface {
	NotifyTrigger(ctx context.Context, reason models.TriggerReason, scheduled time.Time) error
	NotifyAlarm(ctx context.Context, alertType string, fields map[string]interface{}) error
	SendReport(ctx context.Context, key string, value interface{}) error
	PublishReading(ctx context.Context, reading models.SleepReading) error
}

// Dependencies collaborators of the service
type Dependencies struct {
	Features  consumer.FeatureSource
	Local     predictor.Predictor
	Cloud     predictor.Predictor
	History   repository.ReadingRepository
	Events    repository.AlarmEventRepository
	Queue     repository.SyncQueue
	Sink      reconciler.TelemetrySink
	Notifier  Notifier
	Transport twin.Transport
}

// SmartWakeService wires the prediction pipeline, the alarm and the twin sync behind one scheduler loop.
// Fields below the scheduler are owned by the loop goroutine.
type SmartWakeService struct {
	config *config.Config
	logger *zap.Logger

	db          *sql.DB
	redisClient *redis.Client
	mqttClient  *mqttcommon.Client

	features  consumer.FeatureSource
	history   repository.ReadingRepository
	events    repository.AlarmEventRepository
	notifier  Notifier
	transport twin.Transport
	engine    *reconciler.Engine
	twinSync  *twin.Sync
	started   atomic.Bool
	scheduler *scheduler.Scheduler

	alarm            *alarm.Machine
	monitoringActive bool
	lastReading      *models.SleepReading
	lastPending      int64
}

var _ scheduler.Handler = (*SmartWakeService)(nil)
var _ twin.Applier = (*SmartWakeService)(nil)

// NewSmartWakeService connects infrastructure from cfg and builds the service
func NewSmartWakeService(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*SmartWakeService, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("invalid timezone: %w", err)
	}

	// 1. Redis: feature stream, sync queue, telemetry stream
	redisClient := rediscommon.NewRedisClient(&cfg.Redis)
	if err := rediscommon.Ping(ctx, redisClient); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	// 2. MQTT: twin and notifications
	mqttClient, err := mqttcommon.NewClient(&cfg.MQTT, logger)
	if err != nil {
		rediscommon.Close(redisClient)
		return nil, fmt.Errorf("failed to create mqtt client: %w", err)
	}

	// 3. history
	var (
		db      *sql.DB
		history repository.ReadingRepository
		events  repository.AlarmEventRepository
	)
	switch cfg.History.Backend {
	case "postgres":
		db, err = database.NewPostgresDB(ctx, &cfg.Database)
		if err == nil {
			err = repository.EnsureSchema(ctx, db)
		}
		if err != nil {
			database.Close(db)
			mqttClient.Disconnect()
			rediscommon.Close(redisClient)
			return nil, err
		}
		history = repository.NewPostgresReadingRepository(db, cfg.Device.ID, logger)
		events = repository.NewPostgresAlarmEventRepository(db, cfg.Device.ID, logger)
	default:
		history = repository.NewMemoryReadingRepository(cfg.History.RecentLimit)
		events = repository.NewMemoryAlarmEventRepository()
	}

	// 4. predictors
	var model *predictor.LinearModel
	if cfg.Predictor.LocalModelPath != "" {
		if model, err = predictor.LoadLinearModel(cfg.Predictor.LocalModelPath); err != nil {
			logger.Warn("Falling back to built-in local model", zap.Error(err))
			model = nil
		}
	}
	cloud := predictor.NewCloudPredictor(
		cfg.Predictor.Cloud.Endpoint,
		cfg.Predictor.Cloud.APIKey,
		time.Duration(cfg.Predictor.Cloud.Timeout)*time.Second,
		time.Duration(cfg.Predictor.Cloud.RetryAfter)*time.Second,
		logger,
	)

	deps := Dependencies{
		Features: consumer.NewStreamFeatureSource(redisClient, cfg.Features.Stream, cfg.Features.Group,
			cfg.Features.Consumer, cfg.Features.Batch, logger),
		Local:   predictor.NewLocalPredictor(model, logger),
		Cloud:   cloud,
		History: history,
		Events:  events,
		Queue:   repository.NewRedisSyncQueue(redisClient, cfg.Sync.QueueKey, logger),
		Sink:    telemetry.NewStreamSink(redisClient, cfg.Telemetry.Stream, logger),
		Notifier: telemetry.NewMQTTNotifier(mqttClient, cfg.Telemetry.AlertsTopic,
			cfg.Telemetry.PredictionsTopic, mqttClient.QoS(), logger),
		Transport: twin.NewMQTTTransport(mqttClient, cfg.Twin.DesiredTopic, cfg.Twin.ReportedTopic,
			mqttClient.QoS(), logger),
	}

	svc, err := New(cfg, deps, time.Now().In(loc), logger)
	if err != nil {
		database.Close(db)
		mqttClient.Disconnect()
		rediscommon.Close(redisClient)
		return nil, err
	}
	svc.db = db
	svc.redisClient = redisClient
	svc.mqttClient = mqttClient
	return svc, nil
}

// New builds the service from explicit collaborators
func New(cfg *config.Config, deps Dependencies, now time.Time, logger *zap.Logger) (*SmartWakeService, error) {
	wake, err := models.ParseClockTime(cfg.Alarm.WakeTime)
	if err != nil {
		return nil, err
	}
	alarmCfg := models.AlarmConfig{
		Enabled:       cfg.Alarm.Enabled,
		WakeTime:      wake,
		WindowMinutes: cfg.Alarm.WindowMinutes,
	}
	if err := alarmCfg.Validate(); err != nil {
		return nil, err
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("invalid timezone: %w", err)
	}

	s := &SmartWakeService{
		config:           cfg,
		logger:           logger,
		features:         deps.Features,
		history:          deps.History,
		events:           deps.Events,
		notifier:         deps.Notifier,
		transport:        deps.Transport,
		alarm:            alarm.NewMachine(alarmCfg, cfg.Alarm.SnoozeMinutes, now, logger),
		monitoringActive: cfg.Scheduler.MonitoringActive,
		lastPending:      -1,
	}

	s.engine = reconciler.NewEngine(
		deps.Local, deps.Cloud, deps.History, deps.Queue, deps.Sink,
		cfg.Predictor.Cloud.Enabled,
		time.Duration(cfg.Predictor.Cloud.Timeout)*time.Second,
		time.Duration(cfg.Sync.DrainBudget)*time.Second,
		logger,
	)

	breaker := twin.NewCircuitBreaker(twin.BreakerConfig{
		Threshold: cfg.Twin.BreakerThreshold,
		Window:    time.Duration(cfg.Twin.BreakerWindow) * time.Second,
	}, logger)
	s.twinSync = twin.NewSync(deps.Transport, breaker, time.Duration(cfg.Twin.SendTimeout)*time.Second, logger)

	s.scheduler = scheduler.New(s,
		time.Duration(cfg.Scheduler.PredictionInterval)*time.Second,
		time.Duration(cfg.Scheduler.SyncInterval)*time.Second,
		cfg.Twin.InboundBuffer,
		loc,
		logger,
	)

	return s, nil
}

// Start subscribes to the twin and runs the scheduler until ctx is cancelled
func (s *SmartWakeService) Start(ctx context.Context) error {
	s.logger.Info("Starting smart wake service",
		zap.String("device_id", s.config.Device.ID),
		zap.String("history_backend", s.config.History.Backend),
		zap.Bool("cloud_enabled", s.engine.CloudEnabled()),
	)

	if err := s.transport.OnDesiredChange(func(patch models.TwinPatch) {
		s.scheduler.Enqueue(patch)
	}); err != nil {
		return fmt.Errorf("failed to subscribe to twin: %w", err)
	}

	s.started.Store(true)
	return s.scheduler.Start(ctx)
}

// Stop waits for the scheduler loop to exit (its ctx must already be cancelled), then releases connections.
// If ctx expires first the connections are closed anyway.
func (s *SmartWakeService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping smart wake service")

	if s.started.Load() {
		select {
		case <-s.scheduler.Done():
		case <-ctx.Done():
			s.logger.Warn("Scheduler still running, closing connections anyway", zap.Error(ctx.Err()))
		}
	}

	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}
	if err := database.Close(s.db); err != nil {
		s.logger.Error("Failed to close database", zap.Error(err))
	}
	if s.redisClient != nil {
		if err := rediscommon.Close(s.redisClient); err != nil {
			s.logger.Error("Failed to close redis", zap.Error(err))
		}
	}
	return nil
}
