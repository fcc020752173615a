package normalizer

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"sensorcap/internal/models"

	"go.uber.org/zap"
)

// ErrUnsupportedSensorType 传感器类别不在已支持范围内
var ErrUnsupportedSensorType = errors.New("unsupported sensor type")

// 归一化后的量纲名称与单位
const (
	QuantityTemperature  = "temperature"
	QuantityAcceleration = "acceleration"
	QuantityVelocity     = "velocity"

	UnitCelsius     = "°C"
	UnitMilligravity = "mg"
	UnitMillimeterPerSecond = "mm/s"
)

// Normalizer 把端口原始 pdin 数据转换为带类型和单位的测量值
// 纯转换，不做任何量程裁剪，越界值交给阈值评估处理
type Normalizer struct {
	logger *zap.Logger
}

// New 创建归一化器
func New(logger *zap.Logger) *Normalizer {
	return &Normalizer{logger: logger}
}

// Normalize 按传感器类别解码原始读数
// 温度传感器产生 1 条测量值（摄氏度，1 位小数）；
// 振动传感器产生 2 条（加速度 mg、速度 mm/s，各 2 位小数）
func (n *Normalizer) Normalize(raw models.RawReading) ([]models.Reading, error) {
	switch models.ClassifySensor(raw.Sensor.VendorID, raw.SensorType) {
	case models.SensorClassTemperature:
		return n.normalizeTemperature(raw)
	case models.SensorClassVibration:
		return n.normalizeVibration(raw)
	default:
		return nil, fmt.Errorf("%w: vendor %d type %d",
			ErrUnsupportedSensorType, raw.Sensor.VendorID, raw.SensorType)
	}
}

// normalizeTemperature 温度帧：整个 pdin 按十六进制解码，单位 0.1°C
func (n *Normalizer) normalizeTemperature(raw models.RawReading) ([]models.Reading, error) {
	v, err := strconv.ParseInt(raw.ProcessData, 16, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed temperature process data %q: %w", raw.ProcessData, err)
	}
	temperature := round(float64(v)/10.0, 1)

	return []models.Reading{{
		Device:     raw.Device,
		Port:       raw.Port,
		Sensor:     raw.Sensor,
		SensorType: raw.SensorType,
		Quantity:   QuantityTemperature,
		Value:      temperature,
		Unit:       UnitCelsius,
		Timestamp:  raw.Timestamp,
	}}, nil
}

// normalizeVibration 振动帧布局（十六进制字符偏移）：
// [0:4] 加速度 0.01mg，[4:8] 速度 0.01mm/s，[8:10] 诊断位，[10:11] 配置位
func (n *Normalizer) normalizeVibration(raw models.RawReading) ([]models.Reading, error) {
	if len(raw.ProcessData) < 11 {
		return nil, fmt.Errorf("vibration process data too short: %q", raw.ProcessData)
	}

	acceleration, err := hexField(raw.ProcessData[0:4])
	if err != nil {
		return nil, fmt.Errorf("malformed acceleration field: %w", err)
	}
	velocity, err := hexField(raw.ProcessData[4:8])
	if err != nil {
		return nil, fmt.Errorf("malformed velocity field: %w", err)
	}

	// 诊断/配置位只用于排障输出，不进入测量流
	if diagnosis, err := hexField(raw.ProcessData[8:10]); err == nil {
		configuration, _ := hexField(raw.ProcessData[10:11])
		n.logger.Debug("Vibration frame status bits",
			zap.String("device", raw.Device),
			zap.Int("port", raw.Port),
			zap.Int64("diagnosis", diagnosis),
			zap.Int64("configuration", configuration),
		)
	}

	base := models.Reading{
		Device:     raw.Device,
		Port:       raw.Port,
		Sensor:     raw.Sensor,
		SensorType: raw.SensorType,
		Timestamp:  raw.Timestamp,
	}

	accReading := base
	accReading.Quantity = QuantityAcceleration
	accReading.Value = round(float64(acceleration)/100.0, 2)
	accReading.Unit = UnitMilligravity

	velReading := base
	velReading.Quantity = QuantityVelocity
	velReading.Value = round(float64(velocity)/100.0, 2)
	velReading.Unit = UnitMillimeterPerSecond

	return []models.Reading{accReading, velReading}, nil
}

func hexField(s string) (int64, error) {
	return strconv.ParseInt(s, 16, 64)
}

// round 四舍五入到指定小数位（远离零取整）
func round(v float64, decimals int) float64 {
	p := math.Pow10(decimals)
	return math.Round(v*p) / p
}
