package repository

import (
	"context"
	"database/sql"
	"fmt"

	"sensorcap/internal/models"

	"go.uber.org/zap"
)

// ReadingsRepository 测量值时序表仓库（sensor_readings / master_status）
type ReadingsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewReadingsRepository 创建测量值仓库
func NewReadingsRepository(db *sql.DB, logger *zap.Logger) *ReadingsRepository {
	return &ReadingsRepository{
		db:     db,
		logger: logger,
	}
}

// InsertReading 写入一条归一化测量值
func (r *ReadingsRepository) InsertReading(ctx context.Context, reading *models.Reading) error {
	query := `
		INSERT INTO sensor_readings (
			device,
			vendor_id,
			sensor_serial,
			sensor_type,
			port,
			quantity,
			value,
			unit,
			ts
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.ExecContext(ctx, query,
		reading.Device,
		reading.Sensor.VendorID,
		reading.Sensor.Serial,
		reading.SensorType,
		reading.Port,
		reading.Quantity,
		reading.Value,
		reading.Unit,
		reading.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert sensor reading: %w", err)
	}

	r.logger.Debug("Sensor reading persisted",
		zap.String("device", reading.Device),
		zap.String("sensor", reading.Sensor.Key()),
		zap.String("quantity", reading.Quantity),
		zap.Float64("value", reading.Value),
	)
	return nil
}

// InsertMasterStatus 写入一条 master 健康记录
func (r *ReadingsRepository) InsertMasterStatus(ctx context.Context, st *models.MasterStatus) error {
	query := `
		INSERT INTO master_status (
			device,
			serial,
			vendor,
			family,
			product_code,
			temperature,
			milliampere,
			voltage,
			supervision,
			ts
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.ExecContext(ctx, query,
		st.Device,
		st.Serial,
		st.Vendor,
		st.Family,
		st.ProductCode,
		st.Temperature,
		st.Milliampere,
		st.Voltage,
		st.Supervision,
		st.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert master status: %w", err)
	}
	return nil
}
