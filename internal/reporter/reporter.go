package reporter

import (
	"context"

	"sensorcap/internal/models"

	"go.uber.org/zap"
)

// EventSender 事件上报接口（由 SaaSClient 实现）
type EventSender interface {
	SendEvent(ctx context.Context, ev models.Event) (*Receipt, error)
}

// ReceiptRecorder 回执持久化接口（由 repository.EventsRepository 实现）
type ReceiptRecorder interface {
	RecordReceipt(ctx context.Context, eventID, agentUUID, eventstamp string) error
}

// EventPublisher 事件镜像发布接口（由 MQTTPublisher 实现，可为空）
type EventPublisher interface {
	Publish(ev models.Event) error
}

// Reporter 事件上报器
// 有界队列把轮询协程与外部传输解耦：队列满时丢弃新事件，
// 绝不让慢的下游拖慢采集节奏
type Reporter struct {
	queue     chan models.Event
	sender    EventSender
	publisher EventPublisher
	receipts  ReceiptRecorder
	logger    *zap.Logger
	done      chan struct{}
}

// New 创建上报器
// publisher 与 receipts 允许为 nil（未启用 MQTT 镜像 / 无回执持久化）
func New(sender EventSender, publisher EventPublisher, receipts ReceiptRecorder, queueSize int, logger *zap.Logger) *Reporter {
	return &Reporter{
		queue:     make(chan models.Event, queueSize),
		sender:    sender,
		publisher: publisher,
		receipts:  receipts,
		logger:    logger,
		done:      make(chan struct{}),
	}
}

// Enqueue 非阻塞入队；队列满时记录并丢弃
func (r *Reporter) Enqueue(ev models.Event) {
	select {
	case r.queue <- ev:
	default:
		r.logger.Error("Reporter queue full, event dropped",
			zap.String("event_id", ev.EventID),
			zap.String("device", ev.Device),
			zap.String("kind", string(ev.Kind)),
		)
	}
}

// Start 启动调度协程，ctx 取消后退出
func (r *Reporter) Start(ctx context.Context) {
	defer close(r.done)

	r.logger.Info("Reporter started",
		zap.Int("queue_size", cap(r.queue)),
	)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Reporter stopped")
			return
		case ev := <-r.queue:
			r.dispatch(ctx, ev)
		}
	}
}

// Wait 等待调度协程退出
func (r *Reporter) Wait() {
	<-r.done
}

// dispatch 投递一条事件：SaaS 为主通道，MQTT 为可选镜像
// 任一失败都只记录后丢弃，没有本地持久化重试队列
func (r *Reporter) dispatch(ctx context.Context, ev models.Event) {
	receipt, err := r.sender.SendEvent(ctx, ev)
	if err != nil {
		r.logger.Error("Failed to report event, dropped",
			zap.String("event_id", ev.EventID),
			zap.String("device", ev.Device),
			zap.Error(err),
		)
	} else if r.receipts != nil {
		if err := r.receipts.RecordReceipt(ctx, ev.EventID, receipt.AgentUUID, receipt.Eventstamp); err != nil {
			r.logger.Error("Failed to record saas receipt",
				zap.String("event_id", ev.EventID),
				zap.Error(err),
			)
		}
	}

	if r.publisher != nil {
		if err := r.publisher.Publish(ev); err != nil {
			r.logger.Error("Failed to publish event to MQTT",
				zap.String("event_id", ev.EventID),
				zap.Error(err),
			)
		}
	}
}
