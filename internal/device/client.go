package device

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"sensorcap/internal/config"
	"sensorcap/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// IO-Link master 的端口状态编码
const (
	PortStatusNotConnected = 0
	PortStatusPreoperate   = 1
	PortStatusOperate      = 2
	PortStatusWrong        = 3
)

// Client IO-Link master HTTP API 客户端
// 请求无凭证、超时受配置约束；失败不在客户端重试，由下一个 tick 自然恢复
type Client struct {
	http   *resty.Client
	device string
	logger *zap.Logger
}

// NewClient 创建设备客户端
func NewClient(cfg config.DeviceConfig, timeout time.Duration, logger *zap.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(fmt.Sprintf("http://%s:%d", cfg.IPAddress, cfg.Port)).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &Client{
		http:   httpClient,
		device: cfg.Name,
		logger: logger,
	}
}

// valueEnvelope 设备 API 的标准响应外壳 {"data":{"value":...}}
type valueEnvelope struct {
	Data struct {
		Value json.RawMessage `json:"value"`
	} `json:"data"`
}

// treeEnvelope /gettree 的能力树结构，用来确定端口数量
type treeEnvelope struct {
	Data struct {
		Subs []struct {
			Identifier string            `json:"identifier"`
			Subs       []json.RawMessage `json:"subs"`
		} `json:"subs"`
	} `json:"data"`
}

// FetchReadings 取回所有在运行状态端口的原始读数
// 单个端口的失败只跳过该端口，不中断整个 tick
func (c *Client) FetchReadings(ctx context.Context) ([]models.RawReading, error) {
	count, err := c.PortCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to discover ports: %w", err)
	}

	now := time.Now().UTC()
	var readings []models.RawReading
	for port := 1; port <= count; port++ {
		raw, err := c.fetchPortReading(ctx, port, now)
		if err != nil {
			c.logger.Warn("Failed to read port, skipped",
				zap.String("device", c.device),
				zap.Int("port", port),
				zap.Error(err),
			)
			continue
		}
		if raw != nil {
			readings = append(readings, *raw)
		}
	}
	return readings, nil
}

func (c *Client) fetchPortReading(ctx context.Context, port int, ts time.Time) (*models.RawReading, error) {
	status, err := c.portStatus(ctx, port)
	if err != nil {
		return nil, err
	}
	if status != PortStatusOperate {
		return nil, nil
	}

	vendorID, err := c.portInt(ctx, port, "vendorid")
	if err != nil {
		return nil, err
	}
	sensorType, err := c.portInt(ctx, port, "deviceid")
	if err != nil {
		return nil, err
	}
	serial, err := c.portString(ctx, port, "serial")
	if err != nil {
		return nil, err
	}
	pdin, err := c.portString(ctx, port, "pdin")
	if err != nil {
		return nil, err
	}

	return &models.RawReading{
		Device:      c.device,
		Port:        port,
		Sensor:      models.SensorIdentity{VendorID: vendorID, Serial: serial},
		SensorType:  sensorType,
		ProcessData: pdin,
		Timestamp:   ts,
	}, nil
}

// FetchSnapshot 取回端口 -> 传感器的配置快照（刷新周期调用）
func (c *Client) FetchSnapshot(ctx context.Context) (*models.ConfigSnapshot, error) {
	count, err := c.PortCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to discover ports: %w", err)
	}

	snap := &models.ConfigSnapshot{
		Device:  c.device,
		TakenAt: time.Now().UTC(),
		Ports:   make(map[int]models.PortConfig),
	}

	for port := 1; port <= count; port++ {
		status, err := c.portStatus(ctx, port)
		if err != nil {
			return nil, fmt.Errorf("failed to read status of port %d: %w", port, err)
		}
		if status != PortStatusOperate {
			continue
		}

		vendorID, err := c.portInt(ctx, port, "vendorid")
		if err != nil {
			return nil, err
		}
		sensorType, err := c.portInt(ctx, port, "deviceid")
		if err != nil {
			return nil, err
		}
		serial, err := c.portString(ctx, port, "serial")
		if err != nil {
			return nil, err
		}

		// 名称属于描述信息，取不到不影响快照
		localName, _ := c.portString(ctx, port, "applicationspecifictag")
		productName, _ := c.portString(ctx, port, "productname")

		snap.Ports[port] = models.PortConfig{
			Port:        port,
			Sensor:      models.SensorIdentity{VendorID: vendorID, Serial: serial},
			SensorType:  sensorType,
			LocalName:   localName,
			ProductName: productName,
		}
	}
	return snap, nil
}

// FetchMasterStatus 取回 master 自身的健康数据（刷新周期调用）
func (c *Client) FetchMasterStatus(ctx context.Context) (*models.MasterStatus, error) {
	st := &models.MasterStatus{
		Device:    c.device,
		Timestamp: time.Now().UTC(),
	}

	var err error
	if st.Temperature, err = c.getFloat(ctx, "/processdatamaster/temperature/getdata"); err != nil {
		return nil, err
	}
	if st.Milliampere, err = c.getFloat(ctx, "/processdatamaster/current/getdata"); err != nil {
		return nil, err
	}
	if st.Voltage, err = c.getFloat(ctx, "/processdatamaster/voltage/getdata"); err != nil {
		return nil, err
	}
	if st.Supervision, err = c.getInt(ctx, "/processdatamaster/supervisionstatus/getdata"); err != nil {
		return nil, err
	}
	if st.Serial, err = c.getString(ctx, "/deviceinfo/serialnumber/getdata"); err != nil {
		return nil, err
	}
	if st.Vendor, err = c.getString(ctx, "/deviceinfo/vendor/getdata"); err != nil {
		return nil, err
	}
	if st.Family, err = c.getString(ctx, "/deviceinfo/devicefamily/getdata"); err != nil {
		return nil, err
	}
	if st.ProductCode, err = c.getString(ctx, "/deviceinfo/productcode/getdata"); err != nil {
		return nil, err
	}
	return st, nil
}

// PortCount 通过能力树确定 master 的端口数量
func (c *Client) PortCount(ctx context.Context) (int, error) {
	resp, err := c.http.R().SetContext(ctx).Get("/gettree")
	if err != nil {
		return 0, fmt.Errorf("GET /gettree failed: %w", err)
	}
	if !resp.IsSuccess() {
		return 0, fmt.Errorf("GET /gettree returned status %d", resp.StatusCode())
	}

	var tree treeEnvelope
	if err := json.Unmarshal(resp.Body(), &tree); err != nil {
		return 0, fmt.Errorf("malformed capability tree: %w", err)
	}
	for _, sub := range tree.Data.Subs {
		if sub.Identifier == "iolinkmaster" {
			return len(sub.Subs), nil
		}
	}
	return 0, fmt.Errorf("capability tree has no iolinkmaster node")
}

func (c *Client) portStatus(ctx context.Context, port int) (int, error) {
	return c.getInt(ctx, portPath(port, "status"))
}

func (c *Client) portInt(ctx context.Context, port int, item string) (int, error) {
	return c.getInt(ctx, portPath(port, item))
}

func (c *Client) portString(ctx context.Context, port int, item string) (string, error) {
	return c.getString(ctx, portPath(port, item))
}

func portPath(port int, item string) string {
	return fmt.Sprintf("/iolinkmaster/port[%d]/iolinkdevice/%s/getdata", port, item)
}

// getValue 执行一次 GET 并剥掉 {"data":{"value":...}} 外壳
func (c *Client) getValue(ctx context.Context, path string) (json.RawMessage, error) {
	resp, err := c.http.R().SetContext(ctx).Get(path)
	if err != nil {
		return nil, fmt.Errorf("GET %s failed: %w", path, err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("GET %s returned status %d", path, resp.StatusCode())
	}

	var envelope valueEnvelope
	if err := json.Unmarshal(resp.Body(), &envelope); err != nil {
		return nil, fmt.Errorf("malformed response for %s: %w", path, err)
	}
	if envelope.Data.Value == nil {
		return nil, fmt.Errorf("response for %s has no value", path)
	}
	return envelope.Data.Value, nil
}

// 设备固件对同一字段有时返回数字有时返回字符串，解码时两种都接受

func (c *Client) getString(ctx context.Context, path string) (string, error) {
	raw, err := c.getValue(ctx, path)
	if err != nil {
		return "", err
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}
	return "", fmt.Errorf("value for %s is neither string nor number", path)
}

func (c *Client) getInt(ctx context.Context, path string) (int, error) {
	s, err := c.getString(ctx, path)
	if err != nil {
		return 0, err
	}
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return 0, fmt.Errorf("value for %s is not an integer: %q", path, s)
	}
	return n, nil
}

func (c *Client) getFloat(ctx context.Context, path string) (float64, error) {
	s, err := c.getString(ctx, path)
	if err != nil {
		return 0, err
	}
	var f float64
	if _, err := fmt.Sscanf(s, "%g", &f); err != nil {
		return 0, fmt.Errorf("value for %s is not numeric: %q", path, s)
	}
	return f, nil
}
