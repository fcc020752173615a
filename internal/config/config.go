package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"sensorcap/internal/models"
)

// 轮询节奏的合法区间，越界值在加载时收敛到边界而不是拒绝
const (
	MinLoopInterval = 5
	MaxLoopInterval = 200
	MinRefreshCount = 5
	MaxRefreshCount = 20

	// delay 属性无法解析时沿用的历史默认值
	DefaultLoopInterval = 10
	DefaultRefreshCount = 6
)

// 守护进程级别的固定参数
const (
	DefaultHTTPTimeout = time.Second
	ReporterQueueSize  = 256
	MaxPollerRestarts  = 5
	PollerRestartDelay = 10 * time.Second
)

// DeviceConfig 单台 IO-Link master 的连接与节奏配置
// 启动时构建一次，之后不可变
type DeviceConfig struct {
	Name         string
	IPAddress    string
	Port         int
	LoopInterval int // tick 间隔（秒），[5,200]
	RefreshCount int // 每多少个 tick 刷新一次配置快照，[5,20]
}

// DatabaseConfig 时序库（PostgreSQL）连接配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig 快照存储（Redis）连接配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// SaaSConfig 事件上报服务配置
type SaaSConfig struct {
	URL     string
	Token   string
	Timeout time.Duration
}

// MQTTConfig 可选的事件镜像发布配置，Broker 为空时禁用
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
}

// Config 守护进程完整配置
type Config struct {
	HTTPTimeout time.Duration
	Devices     []DeviceConfig
	Thresholds  map[string]models.ThresholdSet // "<vendor>@<serial>" -> 阈值表

	Database DatabaseConfig
	Redis    RedisConfig
	SaaS     SaaSConfig
	MQTT     MQTTConfig

	Log struct {
		File   string
		Level  string
		Format string
	}

	// 加载阶段收集的非致命问题（被忽略的阈值、被丢弃的设备条目等）
	// 由入口在 logger 就绪后统一输出
	Warnings []string
}

// Load 加载配置
// 路径来自 SENSORCAP_CONFIG 环境变量，默认 ./sensorcap.properties；
// 数据库/Redis/SaaS 的敏感项可用环境变量覆盖
func Load() (*Config, error) {
	path := getEnv("SENSORCAP_CONFIG", "./sensorcap.properties")

	props, err := loadProperties(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Thresholds: make(map[string]models.ThresholdSet),
	}

	cfg.HTTPTimeout = parseTimeout(props["httptimeout"], cfg)

	cfg.Log.File = props["logfile"]
	cfg.Log.Level = normalizeLevel(props["debuglevel"])
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	cfg.Database.Host = firstOf(props["dbhost"], getEnv("DB_HOST", "localhost"))
	cfg.Database.Port = parseIntDefault(props["dbport"], 5432)
	cfg.Database.User = firstOf(props["dbuser"], getEnv("DB_USER", "postgres"))
	cfg.Database.Password = firstOf(os.Getenv("DB_PASSWORD"), props["dbpassword"])
	cfg.Database.Database = firstOf(props["dbname"], getEnv("DB_NAME", "sensor"))
	cfg.Database.SSLMode = firstOf(props["dbsslmode"], "disable")

	cfg.Redis.Addr = firstOf(props["redisaddr"], getEnv("REDIS_ADDR", "localhost:6379"))
	cfg.Redis.Password = firstOf(os.Getenv("REDIS_PASSWORD"), props["redispassword"])
	cfg.Redis.DB = parseIntDefault(props["redisdb"], 0)

	cfg.SaaS.URL = props["saasurl"]
	cfg.SaaS.Token = firstOf(os.Getenv("SAAS_TOKEN"), props["saastoken"])
	cfg.SaaS.Timeout = 5 * time.Second

	cfg.MQTT.Broker = props["mqttbroker"]
	cfg.MQTT.ClientID = firstOf(props["mqttclientid"], "sensorcap")
	cfg.MQTT.Username = props["mqttusername"]
	cfg.MQTT.Password = props["mqttpassword"]
	cfg.MQTT.QoS = 1

	if err := parseDevices(props, cfg); err != nil {
		return nil, err
	}
	parseThresholds(props, cfg)

	return cfg, nil
}

// loadProperties 读取 key=value 格式的属性文件，# 开头的行为注释
func loadProperties(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("configuration file not found: %w", err)
	}
	defer f.Close()

	props := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		props[strings.TrimSpace(key)] = strings.Trim(strings.TrimSpace(value), `"`)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read configuration file: %w", err)
	}
	return props, nil
}

// parseDevices 解析 devicelist 与每台设备的连接属性
// 单台设备的配置错误只丢弃该设备，不影响其它设备
func parseDevices(props map[string]string, cfg *Config) error {
	devicelist := props["devicelist"]
	if devicelist == "" {
		return fmt.Errorf("devicelist not found in properties")
	}

	for _, name := range strings.Split(devicelist, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}

		dev, err := parseDevice(name, props, cfg)
		if err != nil {
			cfg.Warnings = append(cfg.Warnings,
				fmt.Sprintf("device %s dropped: %v", name, err))
			continue
		}
		cfg.Devices = append(cfg.Devices, dev)
	}

	if len(cfg.Devices) == 0 {
		return fmt.Errorf("no usable devices in devicelist")
	}
	return nil
}

func parseDevice(name string, props map[string]string, cfg *Config) (DeviceConfig, error) {
	dev := DeviceConfig{Name: name, Port: 80}

	seen := map[string]bool{}
	for key, value := range props {
		if !strings.HasPrefix(key, name+".") {
			continue
		}
		prop := key[len(name)+1:]
		seen[prop] = true

		switch prop {
		case "ipaddress":
			dev.IPAddress = value
		case "port":
			port, err := strconv.Atoi(value)
			if err != nil || port < 1 || port > 65535 {
				return dev, fmt.Errorf("invalid port %q", value)
			}
			dev.Port = port
		case "delay":
			dev.LoopInterval, dev.RefreshCount = parseDelay(name, value, cfg)
		default:
			return dev, fmt.Errorf("unrecognized device property %q", prop)
		}
	}

	if dev.IPAddress == "" {
		return dev, fmt.Errorf("ipaddress missing")
	}
	if !seen["delay"] {
		return dev, fmt.Errorf("delay missing")
	}
	return dev, nil
}

// parseDelay 解析 "interval,refreshCount" 形式的节奏配置
// 越界值收敛到边界；无法解析的部分回落到历史默认值
func parseDelay(device, value string, cfg *Config) (int, int) {
	interval := DefaultLoopInterval
	refresh := DefaultRefreshCount

	intervalPart, refreshPart, _ := strings.Cut(value, ",")

	if v, err := strconv.Atoi(strings.TrimSpace(intervalPart)); err == nil {
		interval = clamp(v, MinLoopInterval, MaxLoopInterval)
	} else {
		cfg.Warnings = append(cfg.Warnings,
			fmt.Sprintf("device %s: non-numeric loop interval %q, defaulted", device, intervalPart))
	}

	if v, err := strconv.Atoi(strings.TrimSpace(refreshPart)); err == nil {
		refresh = clamp(v, MinRefreshCount, MaxRefreshCount)
	} else {
		cfg.Warnings = append(cfg.Warnings,
			fmt.Sprintf("device %s: non-numeric refresh count %q, defaulted", device, refreshPart))
	}

	return interval, refresh
}

// parseThresholds 解析 "<vendor>@<serial>@<name>=<value>" 形式的阈值配置
// 未识别的阈值名只告警不报错
func parseThresholds(props map[string]string, cfg *Config) {
	for key, value := range props {
		parts := strings.Split(key, "@")
		if len(parts) != 3 {
			continue
		}
		vendor, serial, name := parts[0], parts[1], parts[2]

		if _, err := strconv.Atoi(vendor); err != nil {
			cfg.Warnings = append(cfg.Warnings,
				fmt.Sprintf("threshold %s ignored: non-numeric vendor id", key))
			continue
		}
		if !models.KnownThreshold(name) {
			cfg.Warnings = append(cfg.Warnings,
				fmt.Sprintf("threshold %s ignored: unrecognized threshold name %q", key, name))
			continue
		}
		limit, err := strconv.ParseFloat(value, 64)
		if err != nil {
			cfg.Warnings = append(cfg.Warnings,
				fmt.Sprintf("threshold %s ignored: non-numeric limit %q", key, value))
			continue
		}

		sensorKey := vendor + "@" + serial
		if cfg.Thresholds[sensorKey] == nil {
			cfg.Thresholds[sensorKey] = make(models.ThresholdSet)
		}
		cfg.Thresholds[sensorKey][name] = limit
	}
}

func parseTimeout(value string, cfg *Config) time.Duration {
	if value == "" {
		return DefaultHTTPTimeout
	}
	secs, err := strconv.ParseFloat(value, 64)
	if err != nil || secs <= 0 {
		cfg.Warnings = append(cfg.Warnings,
			fmt.Sprintf("invalid httptimeout %q, defaulted", value))
		return DefaultHTTPTimeout
	}
	return time.Duration(secs * float64(time.Second))
}

// normalizeLevel 把历史配置里的大写日志级别映射到 zap 级别名
func normalizeLevel(level string) string {
	switch strings.ToLower(level) {
	case "debug", "info", "warn", "error":
		return strings.ToLower(level)
	case "critical":
		return "error"
	default:
		return "info"
	}
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func parseIntDefault(value string, defaultValue int) int {
	v, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return defaultValue
	}
	return v
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
