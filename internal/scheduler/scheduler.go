package scheduler

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"eldersafe-gateway/internal/config"
	"eldersafe-gateway/internal/hardware"
	"eldersafe-gateway/internal/models"
	"eldersafe-gateway/internal/state"
	"eldersafe-gateway/internal/vision"
)

// Publisher 消息发布能力（由MQTT客户端实现）
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// ReadingForwarder 读数转发能力（由持久化转发器实现）
type ReadingForwarder interface {
	ForwardEnvironment(r models.EnvironmentReading)
	ForwardVision(r models.VisionReading)
}

// Scheduler 后台循环调度器
// 环境采样与视觉采样各跑各的节拍，互不共享可变状态；
// 一边的故障只记录日志，下一个自然节拍照常重试
type Scheduler struct {
	config     *config.Config
	store      *state.Store
	forwarder  ReadingForwarder
	pub        Publisher
	sensors    hardware.SensorReader
	frames     vision.FrameSource
	classifier vision.Classifier
	logger     *zap.Logger

	wg sync.WaitGroup

	// 环境任务的最近一次成功读数（仅环境协程访问）
	lastTemp    *float64
	lastTempAt  time.Time
	lastHum     *float64
	lastHumAt   time.Time
	lastSmoke   *float64
	lastSmokeAt time.Time
}

// NewScheduler 创建调度器
func NewScheduler(
	cfg *config.Config,
	store *state.Store,
	forwarder ReadingForwarder,
	pub Publisher,
	sensors hardware.SensorReader,
	frames vision.FrameSource,
	classifier vision.Classifier,
	logger *zap.Logger,
) *Scheduler {
	return &Scheduler{
		config:     cfg,
		store:      store,
		forwarder:  forwarder,
		pub:        pub,
		sensors:    sensors,
		frames:     frames,
		classifier: classifier,
		logger:     logger,
	}
}

// Start 启动两个独立的采样循环
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(2)
	go s.runEnvironmentLoop(ctx)
	go s.runVisionLoop(ctx)

	s.logger.Info("Background loops started",
		zap.Duration("env_interval", s.config.Gateway.EnvInterval),
		zap.Duration("vision_interval", s.config.Gateway.VisionInterval),
	)
}

// Stop 等待两个循环退出（需先取消Start传入的上下文）
func (s *Scheduler) Stop() {
	s.wg.Wait()
	s.logger.Info("Background loops stopped")
}

func (s *Scheduler) runEnvironmentLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Gateway.EnvInterval)
	defer ticker.Stop()

	s.sampleEnvironment()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sampleEnvironment()
		}
	}
}

func (s *Scheduler) runVisionLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Gateway.VisionInterval)
	defer ticker.Stop()

	s.sampleVision()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sampleVision()
		}
	}
}

// sampleEnvironment 环境采样：读温湿度/烟雾，更新状态、转发并发布
func (s *Scheduler) sampleEnvironment() {
	now := time.Now()

	temp := s.sampleSensor(hardware.SensorTemperature, &s.lastTemp, &s.lastTempAt, now)
	hum := s.sampleSensor(hardware.SensorHumidity, &s.lastHum, &s.lastHumAt, now)
	smokeVal := s.sampleSensor(hardware.SensorSmoke, &s.lastSmoke, &s.lastSmokeAt, now)

	smoke := 0
	if smokeVal != nil && *smokeVal >= 1 {
		smoke = 1
	}

	reading := models.EnvironmentReading{
		Temperature: temp,
		Humidity:    hum,
		Smoke:       smoke,
		SampledAt:   now,
	}

	s.store.SetEnvironment(reading)
	s.forwarder.ForwardEnvironment(reading)

	payload := models.EnvPayload{
		Temp:      temp,
		Humidity:  hum,
		Smoke:     smoke,
		Timestamp: now.Unix(),
	}
	s.publish(s.config.Topics.Environment, payload)
}

// sampleSensor 读一个传感器：小额重试预算，耗尽后在一个采样周期内
// 回退到最近一次成功值，再旧就返回nil（"unavailable"，不用过期数据）
func (s *Scheduler) sampleSensor(id hardware.SensorID, last **float64, lastAt *time.Time, now time.Time) *float64 {
	value, err := s.readSensorRetry(id)
	if err == nil {
		*last = &value
		*lastAt = now
		v := value
		return &v
	}

	staleLimit := s.config.Gateway.EnvInterval + s.config.Gateway.EnvInterval/2
	if *last != nil && now.Sub(*lastAt) <= staleLimit {
		s.logger.Warn("Sensor read failed, using last known value",
			zap.String("sensor", string(id)),
			zap.Error(err),
		)
		v := **last
		return &v
	}

	s.logger.Warn("Sensor unavailable",
		zap.String("sensor", string(id)),
		zap.Error(err),
	)
	return nil
}

// readSensorRetry 带固定次数重试和短退避的传感器读取
func (s *Scheduler) readSensorRetry(id hardware.SensorID) (float64, error) {
	var lastErr error
	for attempt := 0; attempt < s.config.Gateway.SensorRetryAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(s.config.Gateway.SensorRetryBackoff)
		}
		value, err := s.sensors.ReadSensor(id)
		if err == nil {
			return value, nil
		}
		lastErr = err
	}
	return 0, lastErr
}

// sampleVision 视觉采样：取帧、分类、更新状态、转发并发布
// 任一步失败只跳过本次节拍
func (s *Scheduler) sampleVision() {
	frame, err := s.frames.Capture()
	if err != nil {
		s.logger.Warn("Frame capture failed, skipping vision cycle", zap.Error(err))
		return
	}

	label, err := s.classifier.Classify(frame)
	if err != nil {
		s.logger.Warn("Classification failed, skipping vision cycle", zap.Error(err))
		return
	}

	reading := models.VisionReading{
		EmotionLabel: label,
		SampledAt:    time.Now(),
	}

	s.store.SetVision(reading)
	s.forwarder.ForwardVision(reading)

	// fall_detected 固定为 "0"：跌倒判定早已不走视觉路径，字段仅为线上兼容保留
	payload := models.CamPayload{
		FallDetected: "0",
		Emotions:     label,
	}
	s.publish(s.config.Topics.Camera, payload)
}

func (s *Scheduler) publish(topic string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("Failed to marshal payload", zap.String("topic", topic), zap.Error(err))
		return
	}
	if err := s.pub.Publish(topic, s.config.MQTT.QoS, false, data); err != nil {
		s.logger.Error("Failed to publish reading",
			zap.String("topic", topic),
			zap.Error(err),
		)
	}
}
