package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"eldersafe-gateway/internal/config"
	"eldersafe-gateway/internal/models"
	"eldersafe-gateway/internal/mqtt"
	"eldersafe-gateway/internal/state"
)

// Evaluator 紧急评估能力（由紧急状态机实现）
type Evaluator interface {
	HandleMotion(r models.MotionReading) bool
}

// MotionForwarder 运动读数转发能力（由持久化转发器实现）
type MotionForwarder interface {
	ForwardMotion(r models.MotionReading, raw []byte)
}

// MQTTConsumer 遥测摄取器
// 按主题解码总线消息为类型化读数并路由：写共享状态、交给状态机评估、
// 交给转发器持久化。解码失败的消息丢弃不重试（总线消息没有重放语义）
type MQTTConsumer struct {
	config     *config.Config
	mqttClient *mqtt.Client
	store      *state.Store
	evaluator  Evaluator
	forwarder  MotionForwarder
	logger     *zap.Logger
}

// NewMQTTConsumer 创建遥测摄取器
func NewMQTTConsumer(
	cfg *config.Config,
	mqttClient *mqtt.Client,
	store *state.Store,
	evaluator Evaluator,
	forwarder MotionForwarder,
	logger *zap.Logger,
) *MQTTConsumer {
	return &MQTTConsumer{
		config:     cfg,
		mqttClient: mqttClient,
		store:      store,
		evaluator:  evaluator,
		forwarder:  forwarder,
		logger:     logger,
	}
}

// Start 启动摄取器
func (c *MQTTConsumer) Start(ctx context.Context) error {
	if err := c.mqttClient.Subscribe(c.config.Topics.Motion, c.config.MQTT.QoS, c.HandleMotionMessage); err != nil {
		return fmt.Errorf("failed to subscribe to motion topic: %w", err)
	}

	c.logger.Info("Telemetry consumer started",
		zap.String("topic", c.config.Topics.Motion),
	)

	<-ctx.Done()
	return nil
}

// Stop 停止摄取器
func (c *MQTTConsumer) Stop(ctx context.Context) error {
	if err := c.mqttClient.Unsubscribe(c.config.Topics.Motion); err != nil {
		c.logger.Error("Failed to unsubscribe", zap.Error(err))
	}

	c.logger.Info("Telemetry consumer stopped")
	return nil
}

// HandleMotionMessage 处理一条运动主题消息
// 接受的消息恰好更新一次共享状态、至多触发一次紧急评估、
// 移交转发器一次；解码错误只影响这一条消息
func (c *MQTTConsumer) HandleMotionMessage(topic string, payload []byte) error {
	reading, err := c.decodeMotion(payload)
	if err != nil {
		c.logger.Error("Dropping malformed motion message",
			zap.String("topic", topic),
			zap.Error(err),
		)
		return fmt.Errorf("decode error: %w", err)
	}

	c.store.SetMotion(reading)

	if triggered := c.evaluator.HandleMotion(reading); triggered {
		c.logger.Debug("Motion reading triggered emergency evaluation",
			zap.Float64("g_force", reading.GForce),
		)
	}

	c.forwarder.ForwardMotion(reading, payload)

	return nil
}

// decodeMotion 解码并校验运动负载
func (c *MQTTConsumer) decodeMotion(payload []byte) (models.MotionReading, error) {
	var p models.MotionPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return models.MotionReading{}, fmt.Errorf("failed to unmarshal motion payload: %w", err)
	}

	if p.GForce == nil {
		return models.MotionReading{}, fmt.Errorf("missing required field g_force")
	}
	if p.Mic == nil {
		return models.MotionReading{}, fmt.Errorf("missing required field mic")
	}
	if *p.GForce < 0 {
		return models.MotionReading{}, fmt.Errorf("g_force out of range: %v", *p.GForce)
	}
	if *p.Mic < 0 {
		return models.MotionReading{}, fmt.Errorf("mic out of range: %v", *p.Mic)
	}

	return models.MotionReading{
		GForce:     *p.GForce,
		MicLevel:   *p.Mic,
		ReceivedAt: time.Now(),
	}, nil
}
