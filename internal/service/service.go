package service

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"sensorcap/internal/config"
	"sensorcap/internal/database"
	"sensorcap/internal/device"
	"sensorcap/internal/evaluator"
	"sensorcap/internal/normalizer"
	"sensorcap/internal/poller"
	"sensorcap/internal/reporter"
	"sensorcap/internal/repository"
	"sensorcap/internal/snapshot"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Service 采集守护进程的装配与生命周期管理
// 每台设备一个轮询协程，共享同一套存储与上报通道
type Service struct {
	cfg    *config.Config
	logger *zap.Logger

	db       *sql.DB
	redisCli *redis.Client
	mqtt     *reporter.MQTTPublisher
	reporter *reporter.Reporter
	pollers  []*poller.DevicePoller

	wg sync.WaitGroup
}

// New 创建服务并建立所有外部连接
func New(cfg *config.Config, logger *zap.Logger) (*Service, error) {
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	redisCli := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := redisCli.Ping(pingCtx).Err(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	svc := &Service{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		redisCli: redisCli,
	}

	readings := repository.NewReadingsRepository(db, logger)
	events := repository.NewEventsRepository(db, logger)
	store := snapshot.NewStore(snapshot.NewRedisKVStore(redisCli), logger)

	var publisher reporter.EventPublisher
	if cfg.MQTT.Broker != "" {
		mqttPub, err := reporter.NewMQTTPublisher(cfg.MQTT, logger)
		if err != nil {
			// MQTT 只是镜像通道，连不上时降级运行
			logger.Error("Failed to connect to MQTT broker, mirror disabled",
				zap.String("broker", cfg.MQTT.Broker),
				zap.Error(err),
			)
		} else {
			svc.mqtt = mqttPub
			publisher = mqttPub
		}
	}

	sender := reporter.NewSaaSClient(cfg.SaaS, logger)
	svc.reporter = reporter.New(sender, publisher, events, config.ReporterQueueSize, logger)

	norm := normalizer.New(logger)
	eval := evaluator.NewThresholdEvaluator(logger)
	drift := evaluator.NewDriftDetector(store, cfg.Thresholds, logger)

	for _, dev := range cfg.Devices {
		client := device.NewClient(dev, cfg.HTTPTimeout, logger)
		svc.pollers = append(svc.pollers, poller.NewDevicePoller(
			dev, client, norm, eval, drift, cfg.Thresholds,
			readings, events, svc.reporter, logger,
		))
	}

	return svc, nil
}

// Start 启动上报器和所有设备轮询器，阻塞到 ctx 取消且全部协程退出
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info("Service starting",
		zap.Int("device_count", len(s.pollers)),
	)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.reporter.Start(ctx)
	}()

	for i, p := range s.pollers {
		name := s.cfg.Devices[i].Name
		s.wg.Add(1)
		go func(p *poller.DevicePoller, name string) {
			defer s.wg.Done()
			s.runPoller(ctx, p, name)
		}(p, name)
	}

	<-ctx.Done()
	s.wg.Wait()
	s.logger.Info("Service stopped")
	return nil
}

// runPoller 带崩溃恢复地运行一个设备轮询器
// 连续崩溃超过上限后放弃该设备，其它设备不受影响
func (s *Service) runPoller(ctx context.Context, p *poller.DevicePoller, name string) {
	restarts := 0
	for {
		crashed := s.runOnce(ctx, p, name)
		if !crashed || ctx.Err() != nil {
			return
		}

		restarts++
		if restarts > config.MaxPollerRestarts {
			s.logger.Error("Device poller permanently failed",
				zap.String("device", name),
				zap.Int("restarts", restarts-1),
			)
			return
		}

		s.logger.Warn("Device poller crashed, restarting",
			zap.String("device", name),
			zap.Int("restart", restarts),
		)
		select {
		case <-ctx.Done():
			return
		case <-time.After(config.PollerRestartDelay):
		}
	}
}

func (s *Service) runOnce(ctx context.Context, p *poller.DevicePoller, name string) (crashed bool) {
	defer func() {
		if r := recover(); r != nil {
			crashed = true
			s.logger.Error("Device poller panicked",
				zap.String("device", name),
				zap.Any("panic", r),
			)
		}
	}()
	_ = p.Run(ctx)
	return false
}

// Stop 关闭所有外部连接，在 Start 返回后调用
func (s *Service) Stop() {
	if s.mqtt != nil {
		s.mqtt.Close()
	}
	if s.redisCli != nil {
		if err := s.redisCli.Close(); err != nil {
			s.logger.Error("Failed to close redis client", zap.Error(err))
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Failed to close database", zap.Error(err))
		}
	}
}
