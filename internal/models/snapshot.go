package models

import "time"

// PortConfig 单个端口上挂接的传感器配置
type PortConfig struct {
	Port        int            `json:"port"`
	Sensor      SensorIdentity `json:"sensor"`
	SensorType  int            `json:"sensor_type"`
	LocalName   string         `json:"local_name,omitempty"`
	ProductName string         `json:"product_name,omitempty"`
}

// ConfigSnapshot 设备配置快照（端口号 -> 传感器配置）
// 每个设备同一时刻只有一份有效快照，由 snapshot.Store 整体替换
type ConfigSnapshot struct {
	Device  string             `json:"device"`
	TakenAt time.Time          `json:"taken_at"`
	Ports   map[int]PortConfig `json:"ports"`
}

// Port 返回指定端口的配置
func (s *ConfigSnapshot) Port(n int) (PortConfig, bool) {
	pc, ok := s.Ports[n]
	return pc, ok
}
