package evaluator

import (
	"fmt"
	"math"

	"sensorcap/internal/models"
	"sensorcap/internal/normalizer"

	"go.uber.org/zap"
)

// ThresholdEvaluator 阈值评估器
// 无状态、无去抖：同一 (Reading, ThresholdSet) 输入总是产生相同结果，
// 重复告警的去重由上报侧负责
type ThresholdEvaluator struct {
	logger *zap.Logger
}

// NewThresholdEvaluator 创建阈值评估器
func NewThresholdEvaluator(logger *zap.Logger) *ThresholdEvaluator {
	return &ThresholdEvaluator{logger: logger}
}

// Evaluate 用传感器的阈值表检查一条测量值
// 每个 (测量值, 阈值名) 组合最多产生一条事件；未配置的量纲直接跳过
func (e *ThresholdEvaluator) Evaluate(reading models.Reading, thresholds models.ThresholdSet) []models.Event {
	if len(thresholds) == 0 {
		return nil
	}

	var events []models.Event
	switch reading.Quantity {
	case normalizer.QuantityTemperature:
		if limit, ok := thresholds[models.ThresholdTemperatureMin]; ok && reading.Value < limit {
			events = append(events, e.breach(reading, models.ThresholdTemperatureMin, limit,
				fmt.Sprintf("temperature %.1f%s below minimum threshold %.1f%s",
					reading.Value, reading.Unit, limit, reading.Unit)))
		}
		if limit, ok := thresholds[models.ThresholdTemperatureMax]; ok && reading.Value > limit {
			events = append(events, e.breach(reading, models.ThresholdTemperatureMax, limit,
				fmt.Sprintf("temperature %.1f%s exceeds maximum threshold %.1f%s",
					reading.Value, reading.Unit, limit, reading.Unit)))
		}
	case normalizer.QuantityAcceleration, normalizer.QuantityVelocity:
		if limit, ok := thresholds[reading.Quantity]; ok && math.Abs(reading.Value) > limit {
			events = append(events, e.breach(reading, reading.Quantity, limit,
				fmt.Sprintf("%s %.2f%s exceeds threshold %.2f%s",
					reading.Quantity, reading.Value, reading.Unit, limit, reading.Unit)))
		}
	}
	return events
}

func (e *ThresholdEvaluator) breach(reading models.Reading, name string, limit float64, description string) models.Event {
	e.logger.Warn("Threshold exceeded",
		zap.String("device", reading.Device),
		zap.String("sensor", reading.Sensor.Key()),
		zap.Int("port", reading.Port),
		zap.String("threshold", name),
		zap.Float64("value", reading.Value),
		zap.Float64("limit", limit),
	)

	sensor := reading.Sensor
	ev := models.NewEvent(models.EventThresholdExceeded, reading.Device, models.SeverityAlert, description)
	ev.Sensor = &sensor
	ev.Port = reading.Port
	ev.Quantity = name
	ev.Value = reading.Value
	ev.Limit = limit
	ev.Timestamp = reading.Timestamp
	return ev
}
