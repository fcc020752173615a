package evaluator

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"sensorcap/internal/models"
	"sensorcap/internal/snapshot"

	"go.uber.org/zap"
)

// DriftDetector 配置漂移检测器
// 把新取回的配置快照与存储中的上一份对比，端口新增/移除/传感器变化
// 各产生一条事件；对比后无条件替换存储的快照
type DriftDetector struct {
	store      *snapshot.Store
	thresholds map[string]models.ThresholdSet
	logger     *zap.Logger
}

// NewDriftDetector 创建漂移检测器
func NewDriftDetector(store *snapshot.Store, thresholds map[string]models.ThresholdSet, logger *zap.Logger) *DriftDetector {
	return &DriftDetector{
		store:      store,
		thresholds: thresholds,
		logger:     logger,
	}
}

// Check 对比快照并返回漂移事件
// 首次运行（无历史快照）只保存不产生事件：初次发现不算漂移
func (d *DriftDetector) Check(ctx context.Context, snap *models.ConfigSnapshot) ([]models.Event, error) {
	prior, err := d.store.Get(ctx, snap.Device)
	if err != nil {
		if errors.Is(err, snapshot.ErrNotFound) {
			d.logger.Info("First configuration snapshot stored",
				zap.String("device", snap.Device),
				zap.Int("port_count", len(snap.Ports)),
			)
			return nil, d.store.Replace(ctx, snap)
		}
		return nil, fmt.Errorf("failed to load prior snapshot: %w", err)
	}

	events := d.diff(prior, snap)

	// 无论有没有发现漂移都替换快照，后续对比始终基于最新现状
	if err := d.store.Replace(ctx, snap); err != nil {
		return events, fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return events, nil
}

func (d *DriftDetector) diff(prior, current *models.ConfigSnapshot) []models.Event {
	var events []models.Event

	for _, port := range sortedPorts(prior) {
		old := prior.Ports[port]
		now, ok := current.Ports[port]
		if !ok {
			// 端口整体消失总是值得上报
			ev := models.NewEvent(models.EventConfigDrift, current.Device, models.SeverityAlert,
				fmt.Sprintf("sensor %s (type %d) on port %d not found",
					old.Sensor.Key(), old.SensorType, port))
			ev.Sensor = &old.Sensor
			ev.Port = port
			events = append(events, d.logged(ev))
			continue
		}
		if old.Sensor != now.Sensor || old.SensorType != now.SensorType {
			severity := d.changeSeverity(old, now)
			ev := models.NewEvent(models.EventConfigDrift, current.Device, severity,
				fmt.Sprintf("sensor on port %d changed from %s (type %d) to %s (type %d)",
					port, old.Sensor.Key(), old.SensorType, now.Sensor.Key(), now.SensorType))
			ev.Sensor = &now.Sensor
			ev.Port = port
			events = append(events, d.logged(ev))
		}
	}

	for _, port := range sortedPorts(current) {
		now := current.Ports[port]
		if _, ok := prior.Ports[port]; ok {
			continue
		}
		ev := models.NewEvent(models.EventConfigDrift, current.Device, models.SeverityAlert,
			fmt.Sprintf("new sensor %s (type %d) detected on port %d",
				now.Sensor.Key(), now.SensorType, port))
		ev.Sensor = &now.Sensor
		ev.Port = port
		events = append(events, d.logged(ev))
	}

	return events
}

// changeSeverity 有阈值配置的传感器发生变化按 ALERT 上报，
// 未配置的传感器只按 WARNING 记录
func (d *DriftDetector) changeSeverity(old, now models.PortConfig) models.Severity {
	if _, ok := d.thresholds[old.Sensor.Key()]; ok {
		return models.SeverityAlert
	}
	if _, ok := d.thresholds[now.Sensor.Key()]; ok {
		return models.SeverityAlert
	}
	return models.SeverityWarning
}

func (d *DriftDetector) logged(ev models.Event) models.Event {
	d.logger.Warn("Configuration drift detected",
		zap.String("device", ev.Device),
		zap.Int("port", ev.Port),
		zap.String("severity", string(ev.Severity)),
		zap.String("description", ev.Description),
	)
	return ev
}

func sortedPorts(snap *models.ConfigSnapshot) []int {
	ports := make([]int, 0, len(snap.Ports))
	for p := range snap.Ports {
		ports = append(ports, p)
	}
	sort.Ints(ports)
	return ports
}
