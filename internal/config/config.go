package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

// Config 网关配置
type Config struct {
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Topics  TopicsConfig  `yaml:"topics"`
	Gateway GatewayConfig `yaml:"gateway"`
	Sink    SinkConfig    `yaml:"sink"`
	HTTP    HTTPConfig    `yaml:"http"`
	Log     LogConfig     `yaml:"log"`
}

// MQTTConfig MQTT配置
type MQTTConfig struct {
	Broker               string        `yaml:"broker"`
	ClientID             string        `yaml:"clientId"`
	Username             string        `yaml:"username"`
	Password             string        `yaml:"password"`
	QoS                  byte          `yaml:"qos"`
	MaxReconnectInterval time.Duration `yaml:"maxReconnectInterval"`
}

// TopicsConfig 主题配置
type TopicsConfig struct {
	Motion      string `yaml:"motion"`      // 订阅：可穿戴设备的运动数据
	CloudMotion string `yaml:"cloudMotion"` // 发布：原样转发给云端消费者
	Camera      string `yaml:"camera"`      // 发布：视觉采样结果
	Environment string `yaml:"environment"` // 发布：环境采样结果
	Emergency   string `yaml:"emergency"`   // 发布：紧急状态变化通知
}

// GatewayConfig 网关核心配置
type GatewayConfig struct {
	GForceThreshold     float64       `yaml:"gForceThreshold"`     // 触发紧急协议的g值阈值
	EnvInterval         time.Duration `yaml:"envInterval"`         // 环境采样周期
	VisionInterval      time.Duration `yaml:"visionInterval"`      // 视觉采样周期
	EmergencyReset      time.Duration `yaml:"emergencyReset"`      // 紧急状态自动复位时长
	SensorRetryAttempts int           `yaml:"sensorRetryAttempts"` // 单次传感器读取的重试次数
	SensorRetryBackoff  time.Duration `yaml:"sensorRetryBackoff"`  // 重试间隔
	ForwardQueueSize    int           `yaml:"forwardQueueSize"`    // 持久化转发队列容量
}

// SinkConfig 时序库配置
type SinkConfig struct {
	URL    string `yaml:"url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
}

// HTTPConfig 只读状态API配置
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load 加载配置：默认值 -> 可选YAML文件(CONFIG_FILE) -> 环境变量覆盖
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func defaults() *Config {
	cfg := &Config{}

	cfg.MQTT.Broker = "tcp://localhost:1883"
	cfg.MQTT.ClientID = "eldersafe-gateway"
	cfg.MQTT.QoS = 1
	cfg.MQTT.MaxReconnectInterval = 60 * time.Second

	cfg.Topics.Motion = "elder/sensor/motion"
	cfg.Topics.CloudMotion = "elder/cloud/motion"
	cfg.Topics.Camera = "elder/sensor/cam"
	cfg.Topics.Environment = "sensor/env"
	cfg.Topics.Emergency = "elder/emergency/status"

	cfg.Gateway.GForceThreshold = 2.5
	cfg.Gateway.EnvInterval = 5 * time.Second
	cfg.Gateway.VisionInterval = 10 * time.Second
	cfg.Gateway.EmergencyReset = 60 * time.Second
	cfg.Gateway.SensorRetryAttempts = 3
	cfg.Gateway.SensorRetryBackoff = 500 * time.Millisecond
	cfg.Gateway.ForwardQueueSize = 256

	cfg.Sink.URL = "http://localhost:8086"
	cfg.Sink.Token = ""
	cfg.Sink.Org = "eldersafe"
	cfg.Sink.Bucket = "eldersafe"

	cfg.HTTP.Addr = ":5000"

	cfg.Log.Level = "info"
	cfg.Log.Format = "json"

	return cfg
}

// loadFromEnv 从环境变量覆盖配置
func (c *Config) loadFromEnv() {
	c.MQTT.Broker = getEnv("MQTT_BROKER", c.MQTT.Broker)
	c.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", c.MQTT.ClientID)
	c.MQTT.Username = getEnv("MQTT_USERNAME", c.MQTT.Username)
	c.MQTT.Password = getEnv("MQTT_PASSWORD", c.MQTT.Password)
	c.MQTT.QoS = byte(getEnvInt("MQTT_QOS", int(c.MQTT.QoS)))
	c.MQTT.MaxReconnectInterval = getEnvDuration("MQTT_MAX_RECONNECT_INTERVAL", c.MQTT.MaxReconnectInterval)

	c.Topics.Motion = getEnv("TOPIC_MOTION", c.Topics.Motion)
	c.Topics.CloudMotion = getEnv("TOPIC_CLOUD_MOTION", c.Topics.CloudMotion)
	c.Topics.Camera = getEnv("TOPIC_CAM", c.Topics.Camera)
	c.Topics.Environment = getEnv("TOPIC_ENV", c.Topics.Environment)
	c.Topics.Emergency = getEnv("TOPIC_EMERGENCY", c.Topics.Emergency)

	c.Gateway.GForceThreshold = getEnvFloat("G_FORCE_LIMIT", c.Gateway.GForceThreshold)
	c.Gateway.EnvInterval = getEnvDuration("ENV_INTERVAL", c.Gateway.EnvInterval)
	c.Gateway.VisionInterval = getEnvDuration("CAM_INTERVAL", c.Gateway.VisionInterval)
	c.Gateway.EmergencyReset = getEnvDuration("EMERGENCY_RESET", c.Gateway.EmergencyReset)
	c.Gateway.SensorRetryAttempts = getEnvInt("SENSOR_RETRY_ATTEMPTS", c.Gateway.SensorRetryAttempts)
	c.Gateway.SensorRetryBackoff = getEnvDuration("SENSOR_RETRY_BACKOFF", c.Gateway.SensorRetryBackoff)
	c.Gateway.ForwardQueueSize = getEnvInt("FORWARD_QUEUE_SIZE", c.Gateway.ForwardQueueSize)

	c.Sink.URL = getEnv("INFLUX_URL", c.Sink.URL)
	c.Sink.Token = getEnv("INFLUX_TOKEN", c.Sink.Token)
	c.Sink.Org = getEnv("INFLUX_ORG", c.Sink.Org)
	c.Sink.Bucket = getEnv("INFLUX_BUCKET", c.Sink.Bucket)

	c.HTTP.Addr = getEnv("HTTP_ADDR", c.HTTP.Addr)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
}

// Validate 校验配置合法性
func (c *Config) Validate() error {
	if c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt broker is required")
	}
	if c.Gateway.GForceThreshold <= 0 {
		return fmt.Errorf("g-force threshold must be positive, got %v", c.Gateway.GForceThreshold)
	}
	if c.Gateway.EnvInterval <= 0 || c.Gateway.VisionInterval <= 0 {
		return fmt.Errorf("sampling intervals must be positive")
	}
	if c.Gateway.EmergencyReset <= 0 {
		return fmt.Errorf("emergency reset duration must be positive")
	}
	if c.Gateway.SensorRetryAttempts < 1 {
		return fmt.Errorf("sensor retry attempts must be at least 1")
	}
	if c.Gateway.ForwardQueueSize < 1 {
		return fmt.Errorf("forward queue size must be at least 1")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
