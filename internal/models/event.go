package models

import (
	"time"

	"github.com/google/uuid"
)

// EventKind 事件种类
type EventKind string

const (
	EventThresholdExceeded EventKind = "ThresholdExceeded"
	EventConfigDrift       EventKind = "ConfigDrift"
)

// Severity 事件级别
// WARNING 只记录，ALERT 会转发到 SaaS
type Severity string

const (
	SeverityWarning Severity = "WARNING"
	SeverityAlert   Severity = "ALERT"
)

// Event 一条违例或漂移事件，创建后不可变
type Event struct {
	EventID     string          `json:"event_id"`
	Kind        EventKind       `json:"kind"`
	Device      string          `json:"device"`
	Sensor      *SensorIdentity `json:"sensor,omitempty"`
	Port        int             `json:"port,omitempty"`
	Quantity    string          `json:"quantity,omitempty"`
	Value       float64         `json:"value,omitempty"`
	Limit       float64         `json:"limit,omitempty"`
	Severity    Severity        `json:"severity"`
	Description string          `json:"description"`
	Timestamp   time.Time       `json:"timestamp"`
}

// NewEvent 创建事件（自动分配 event id 和时间戳）
func NewEvent(kind EventKind, device string, severity Severity, description string) Event {
	return Event{
		EventID:     uuid.NewString(),
		Kind:        kind,
		Device:      device,
		Severity:    severity,
		Description: description,
		Timestamp:   time.Now().UTC(),
	}
}
