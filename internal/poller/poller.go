package poller

import (
	"context"
	"errors"
	"time"

	"sensorcap/internal/config"
	"sensorcap/internal/evaluator"
	"sensorcap/internal/models"
	"sensorcap/internal/normalizer"

	"go.uber.org/zap"
)

// DeviceFetcher IO-Link master 数据获取接口（由 device.Client 实现）
type DeviceFetcher interface {
	FetchReadings(ctx context.Context) ([]models.RawReading, error)
	FetchSnapshot(ctx context.Context) (*models.ConfigSnapshot, error)
	FetchMasterStatus(ctx context.Context) (*models.MasterStatus, error)
}

// MetricsSink 测量值持久化接口（由 repository.ReadingsRepository 实现）
type MetricsSink interface {
	InsertReading(ctx context.Context, reading *models.Reading) error
	InsertMasterStatus(ctx context.Context, st *models.MasterStatus) error
}

// EventRecorder 事件持久化接口（由 repository.EventsRepository 实现）
type EventRecorder interface {
	CreateEvent(ctx context.Context, ev *models.Event) error
}

// EventReporter 事件上报接口（由 reporter.Reporter 实现）
type EventReporter interface {
	Enqueue(ev models.Event)
}

// DevicePoller 单设备轮询器
// 双节奏循环：每个 tick 取读数，每 RefreshCount 个 tick 额外取配置快照
// 和 master 健康数据。设备独占自己的 tick 计数和快照视图，不与其它
// 设备共享可变状态
type DevicePoller struct {
	device     config.DeviceConfig
	fetcher    DeviceFetcher
	normalizer *normalizer.Normalizer
	evaluator  *evaluator.ThresholdEvaluator
	drift      *evaluator.DriftDetector
	thresholds map[string]models.ThresholdSet
	sink       MetricsSink
	events     EventRecorder
	reporter   EventReporter
	logger     *zap.Logger

	tick uint64
}

// NewDevicePoller 创建设备轮询器
func NewDevicePoller(
	device config.DeviceConfig,
	fetcher DeviceFetcher,
	norm *normalizer.Normalizer,
	eval *evaluator.ThresholdEvaluator,
	drift *evaluator.DriftDetector,
	thresholds map[string]models.ThresholdSet,
	sink MetricsSink,
	events EventRecorder,
	reporter EventReporter,
	logger *zap.Logger,
) *DevicePoller {
	return &DevicePoller{
		device:     device,
		fetcher:    fetcher,
		normalizer: norm,
		evaluator:  eval,
		drift:      drift,
		thresholds: thresholds,
		sink:       sink,
		events:     events,
		reporter:   reporter,
		logger:     logger.With(zap.String("device", device.Name)),
	}
}

// Run 按墙钟间隔执行轮询循环，直到 ctx 取消
// 取消只在 tick 边界生效，进行中的 tick 会完整结束；
// 超时的 tick 不补发，下一个 tick 是全新的尝试
func (p *DevicePoller) Run(ctx context.Context) error {
	p.logger.Info("Device poller started",
		zap.Int("loop_interval", p.device.LoopInterval),
		zap.Int("refresh_count", p.device.RefreshCount),
	)

	ticker := time.NewTicker(time.Duration(p.device.LoopInterval) * time.Second)
	defer ticker.Stop()

	// 立即执行一次，不等第一个间隔
	p.runTick(ctx)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Device poller stopped",
				zap.Uint64("ticks", p.tick),
			)
			return nil
		case <-ticker.C:
			p.runTick(ctx)
		}
	}
}

// runTick 执行一个 tick：读数获取与配置刷新互相独立，
// 任何一半失败只跳过这一半，另一半照常进行
func (p *DevicePoller) runTick(ctx context.Context) {
	p.tick++

	p.pollReadings(ctx)

	if p.tick%uint64(p.device.RefreshCount) == 0 {
		p.pollConfiguration(ctx)
		p.pollMasterStatus(ctx)
	}
}

func (p *DevicePoller) pollReadings(ctx context.Context) {
	raws, err := p.fetcher.FetchReadings(ctx)
	if err != nil {
		p.logger.Error("Failed to fetch readings, tick skipped",
			zap.Uint64("tick", p.tick),
			zap.Error(err),
		)
		return
	}

	for _, raw := range raws {
		readings, err := p.normalizer.Normalize(raw)
		if err != nil {
			// 单条读数的问题不影响其它读数
			if errors.Is(err, normalizer.ErrUnsupportedSensorType) {
				p.logger.Warn("Unsupported sensor type, reading skipped",
					zap.Int("port", raw.Port),
					zap.Int("sensor_type", raw.SensorType),
				)
			} else {
				p.logger.Error("Failed to normalize reading, skipped",
					zap.Int("port", raw.Port),
					zap.Error(err),
				)
			}
			continue
		}

		for _, reading := range readings {
			if err := p.sink.InsertReading(ctx, &reading); err != nil {
				p.logger.Error("Failed to persist reading",
					zap.String("quantity", reading.Quantity),
					zap.Error(err),
				)
			}

			events := p.evaluator.Evaluate(reading, p.thresholds[reading.Sensor.Key()])
			p.handleEvents(ctx, events)
		}
	}
}

func (p *DevicePoller) pollConfiguration(ctx context.Context) {
	snap, err := p.fetcher.FetchSnapshot(ctx)
	if err != nil {
		p.logger.Error("Failed to fetch configuration snapshot, refresh skipped",
			zap.Uint64("tick", p.tick),
			zap.Error(err),
		)
		return
	}

	events, err := p.drift.Check(ctx, snap)
	if err != nil {
		p.logger.Error("Drift check incomplete",
			zap.Error(err),
		)
	}
	p.handleEvents(ctx, events)
}

func (p *DevicePoller) pollMasterStatus(ctx context.Context) {
	st, err := p.fetcher.FetchMasterStatus(ctx)
	if err != nil {
		p.logger.Error("Failed to fetch master status",
			zap.Error(err),
		)
		return
	}

	if err := p.sink.InsertMasterStatus(ctx, st); err != nil {
		p.logger.Error("Failed to persist master status",
			zap.Error(err),
		)
	}
}

// handleEvents 事件先持久化，ALERT 级别的再转发上报
func (p *DevicePoller) handleEvents(ctx context.Context, events []models.Event) {
	for _, ev := range events {
		if err := p.events.CreateEvent(ctx, &ev); err != nil {
			p.logger.Error("Failed to persist event",
				zap.String("event_id", ev.EventID),
				zap.Error(err),
			)
		}
		if ev.Severity == models.SeverityAlert {
			p.reporter.Enqueue(ev)
		}
	}
}
