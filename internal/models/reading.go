package models

import (
	"fmt"
	"time"
)

// VendorIFM ifm electronic gmbh 的 IO-Link vendor id
const VendorIFM = 310

// SensorClass 传感器类别（决定数值语义和精度）
type SensorClass int

const (
	SensorClassUnknown SensorClass = iota
	SensorClassTemperature
	SensorClassVibration
)

func (c SensorClass) String() string {
	switch c {
	case SensorClassTemperature:
		return "temperature"
	case SensorClassVibration:
		return "vibration"
	default:
		return "unknown"
	}
}

// ClassifySensor 根据 vendor id 和设备类型编码判断传感器类别
// ifm 设备类型编码：416/417 = 振动（JN2201/JN2202），446 = 温度（TA2xxx 系列）
func ClassifySensor(vendorID int, sensorType int) SensorClass {
	if vendorID != VendorIFM {
		return SensorClassUnknown
	}
	switch sensorType {
	case 416, 417:
		return SensorClassVibration
	case 446:
		return SensorClassTemperature
	default:
		return SensorClassUnknown
	}
}

// SensorIdentity 传感器标识（vendor id + 序列号的复合键）
type SensorIdentity struct {
	VendorID int    `json:"vendor_id"`
	Serial   string `json:"serial"`
}

// Key 返回阈值配置使用的键形式，如 "310@2729"
func (s SensorIdentity) Key() string {
	return fmt.Sprintf("%d@%s", s.VendorID, s.Serial)
}

// RawReading 从 IO-Link master 取回的单端口原始数据（pdin 十六进制串）
type RawReading struct {
	Device      string
	Port        int
	Sensor      SensorIdentity
	SensorType  int
	ProcessData string
	Timestamp   time.Time
}

// Reading 一次归一化后的测量值
// 每个 tick 产生、随即被评估和持久化，不保留
type Reading struct {
	Device     string
	Port       int
	Sensor     SensorIdentity
	SensorType int
	Quantity   string
	Value      float64
	Unit       string
	Timestamp  time.Time
}

// MasterStatus IO-Link master 自身的健康数据（刷新周期采集）
type MasterStatus struct {
	Device      string
	Serial      string
	Vendor      string
	Family      string
	ProductCode string
	Temperature float64
	Milliampere float64
	Voltage     float64
	Supervision int
	Timestamp   time.Time
}
