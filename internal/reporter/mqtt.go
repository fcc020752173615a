package reporter

import (
	"encoding/json"
	"fmt"

	"sensorcap/internal/config"
	"sensorcap/internal/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// MQTTPublisher 把事件镜像发布到 MQTT broker（可选能力）
// topic 形如 sensorcap/events/<device>
type MQTTPublisher struct {
	client mqtt.Client
	qos    byte
	logger *zap.Logger
}

// NewMQTTPublisher 创建 MQTT 发布器并建立连接
func NewMQTTPublisher(cfg config.MQTTConfig, logger *zap.Logger) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return &MQTTPublisher{
		client: client,
		qos:    cfg.QoS,
		logger: logger,
	}, nil
}

// Publish 发布一条事件
func (p *MQTTPublisher) Publish(ev models.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	topic := "sensorcap/events/" + ev.Device
	token := p.client.Publish(topic, p.qos, false, payload)
	token.Wait()

	if token.Error() != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, token.Error())
	}
	return nil
}

// Close 断开连接
func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}
