package models

// 阈值名称（固定枚举，与传感器类别绑定）
const (
	ThresholdTemperatureMin = "temperaturemin"
	ThresholdTemperatureMax = "temperaturemax"
	ThresholdAcceleration   = "acceleration"
	ThresholdVelocity       = "velocity"
)

// ThresholdSet 单个传感器的阈值表（阈值名 -> 数值上下限）
type ThresholdSet map[string]float64

// KnownThreshold 判断阈值名是否属于固定枚举
func KnownThreshold(name string) bool {
	switch name {
	case ThresholdTemperatureMin, ThresholdTemperatureMax,
		ThresholdAcceleration, ThresholdVelocity:
		return true
	default:
		return false
	}
}
