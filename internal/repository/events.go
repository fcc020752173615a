package repository

import (
	"context"
	"database/sql"
	"fmt"

	"sensorcap/internal/models"

	"go.uber.org/zap"
)

// EventsRepository 设备事件仓库（device_events / saas_receipts）
type EventsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewEventsRepository 创建事件仓库
func NewEventsRepository(db *sql.DB, logger *zap.Logger) *EventsRepository {
	return &EventsRepository{
		db:     db,
		logger: logger,
	}
}

// CreateEvent 写入一条违例或漂移事件
func (r *EventsRepository) CreateEvent(ctx context.Context, ev *models.Event) error {
	var vendorID sql.NullInt64
	var serial sql.NullString
	if ev.Sensor != nil {
		vendorID = sql.NullInt64{Int64: int64(ev.Sensor.VendorID), Valid: true}
		serial = sql.NullString{String: ev.Sensor.Serial, Valid: true}
	}

	query := `
		INSERT INTO device_events (
			event_id,
			kind,
			device,
			vendor_id,
			sensor_serial,
			port,
			quantity,
			value,
			limit_value,
			severity,
			description,
			ts
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.db.ExecContext(ctx, query,
		ev.EventID,
		string(ev.Kind),
		ev.Device,
		vendorID,
		serial,
		ev.Port,
		ev.Quantity,
		ev.Value,
		ev.Limit,
		string(ev.Severity),
		ev.Description,
		ev.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert device event: %w", err)
	}

	r.logger.Info("Device event persisted",
		zap.String("event_id", ev.EventID),
		zap.String("kind", string(ev.Kind)),
		zap.String("device", ev.Device),
		zap.String("severity", string(ev.Severity)),
	)
	return nil
}

// RecordReceipt 记录 SaaS 返回的 eventstamp 回执
func (r *EventsRepository) RecordReceipt(ctx context.Context, eventID, agentUUID, eventstamp string) error {
	query := `
		INSERT INTO saas_receipts (
			event_id,
			agent_uuid,
			eventstamp,
			received_at
		) VALUES ($1, $2, $3, NOW())
	`

	if _, err := r.db.ExecContext(ctx, query, eventID, agentUUID, eventstamp); err != nil {
		return fmt.Errorf("failed to insert saas receipt: %w", err)
	}
	return nil
}
