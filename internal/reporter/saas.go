package reporter

import (
	"context"
	"fmt"

	"sensorcap/internal/config"
	"sensorcap/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Receipt SaaS 对一条事件的签收回执
type Receipt struct {
	AgentUUID  string `json:"uuid"`
	Eventstamp string `json:"eventstamp"`
}

// eventstampRequest SaaS eventstamp API 请求
type eventstampRequest struct {
	EventType string       `json:"event_type"`
	Data      models.Event `json:"data"`
}

// SaaSClient SaaS eventstamp 服务客户端
// 投递是尽力而为的 at-most-once，失败由调用方记录后丢弃
type SaaSClient struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewSaaSClient 创建 SaaS 客户端
func NewSaaSClient(cfg config.SaaSConfig, logger *zap.Logger) *SaaSClient {
	client := resty.New().
		SetBaseURL(cfg.URL).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	if cfg.Token != "" {
		client.SetAuthToken(cfg.Token)
	}

	return &SaaSClient{
		httpClient: client,
		logger:     logger,
	}
}

// SendEvent 上报一条事件并返回 eventstamp 回执
func (c *SaaSClient) SendEvent(ctx context.Context, ev models.Event) (*Receipt, error) {
	request := eventstampRequest{
		EventType: string(ev.Kind),
		Data:      ev,
	}

	var receipt Receipt
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(request).
		SetResult(&receipt).
		Post("/api/eventstamp")
	if err != nil {
		return nil, fmt.Errorf("failed to call eventstamp API: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("eventstamp API returned status %d", resp.StatusCode())
	}
	if receipt.AgentUUID == "" || receipt.Eventstamp == "" {
		return nil, fmt.Errorf("eventstamp API returned incomplete receipt")
	}

	c.logger.Info("Event reported to SaaS",
		zap.String("event_id", ev.EventID),
		zap.String("kind", string(ev.Kind)),
		zap.String("agent_uuid", receipt.AgentUUID),
	)
	return &receipt, nil
}
