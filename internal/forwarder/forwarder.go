package forwarder

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"eldersafe-gateway/internal/config"
	"eldersafe-gateway/internal/models"
	"eldersafe-gateway/internal/repository"
	"eldersafe-gateway/internal/state"
)

// Publisher 消息发布能力（由MQTT客户端实现）
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// 写入超时：慢sink只影响后台排空速度，不影响入列方
const writeTimeout = 5 * time.Second

// job 一次转发任务：一个sink写入点，运动读数附带一次云端转发
type job struct {
	measurement      string
	tags             map[string]string
	fields           map[string]interface{}
	ts               time.Time
	republishTopic   string
	republishPayload []byte
}

// Forwarder 持久化转发器
// 有界队列 + 后台排空协程：sink不可用或变慢时丢点并计数，
// 绝不反压采集路径
type Forwarder struct {
	config *config.Config
	sink   repository.SinkWriter
	pub    Publisher
	store  *state.Store
	logger *zap.Logger

	jobs         chan job
	wg           sync.WaitGroup
	droppedQueue atomic.Uint64
	failedWrites atomic.Uint64
}

// New 创建转发器
func New(cfg *config.Config, sink repository.SinkWriter, pub Publisher, store *state.Store, logger *zap.Logger) *Forwarder {
	return &Forwarder{
		config: cfg,
		sink:   sink,
		pub:    pub,
		store:  store,
		logger: logger,
		jobs:   make(chan job, cfg.Gateway.ForwardQueueSize),
	}
}

// Start 启动后台排空协程
func (f *Forwarder) Start(ctx context.Context) {
	f.wg.Add(1)
	go f.run(ctx)
}

// Stop 等待排空协程退出（需先取消Start传入的上下文）
func (f *Forwarder) Stop() {
	f.wg.Wait()
}

func (f *Forwarder) run(ctx context.Context) {
	defer f.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case j := <-f.jobs:
			f.process(j)
		}
	}
}

func (f *Forwarder) process(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := f.sink.WritePoint(ctx, j.measurement, j.tags, j.fields, j.ts); err != nil {
		// 丢点不重试：计数并记录，调用方不受影响
		f.failedWrites.Add(1)
		f.logger.Error("Failed to write point to sink",
			zap.String("measurement", j.measurement),
			zap.Error(err),
		)
	}

	if j.republishTopic != "" {
		if err := f.pub.Publish(j.republishTopic, f.config.MQTT.QoS, false, j.republishPayload); err != nil {
			f.logger.Error("Failed to republish motion payload",
				zap.String("topic", j.republishTopic),
				zap.Error(err),
			)
		}
	}
}

// enqueue 非阻塞入列，队列满则丢弃并计数
func (f *Forwarder) enqueue(j job) {
	select {
	case f.jobs <- j:
	default:
		f.droppedQueue.Add(1)
		f.logger.Warn("Forward queue full, dropping point",
			zap.String("measurement", j.measurement),
		)
	}
}

// ForwardMotion 转发运动读数：写motion/cloud_motion两个measurement，
// 并将原始负载原样转发到云端主题
func (f *Forwarder) ForwardMotion(r models.MotionReading, raw []byte) {
	fields := map[string]interface{}{
		"g_force": r.GForce,
		"mic":     r.MicLevel,
	}
	tags := map[string]string{"sensor": "esp32"}

	f.enqueue(job{
		measurement:      "cloud_motion",
		tags:             tags,
		fields:           fields,
		ts:               r.ReceivedAt,
		republishTopic:   f.config.Topics.CloudMotion,
		republishPayload: raw,
	})
	f.enqueue(job{
		measurement: "motion",
		tags:        tags,
		fields:      fields,
		ts:          r.ReceivedAt,
	})
}

// ForwardEnvironment 转发环境读数
func (f *Forwarder) ForwardEnvironment(r models.EnvironmentReading) {
	fields := map[string]interface{}{
		"smoke": r.Smoke,
	}
	// 传感器不可用时不写对应字段（与"unavailable"语义一致）
	if r.Temperature != nil {
		fields["temperature"] = *r.Temperature
	}
	if r.Humidity != nil {
		fields["humidity"] = *r.Humidity
	}

	f.enqueue(job{
		measurement: "environment",
		tags:        map[string]string{"sensor": "dht"},
		fields:      fields,
		ts:          r.SampledAt,
	})
}

// ForwardVision 转发视觉读数
func (f *Forwarder) ForwardVision(r models.VisionReading) {
	f.enqueue(job{
		measurement: "camera",
		tags:        map[string]string{"sensor": "picam"},
		fields: map[string]interface{}{
			"fall_detected": 0,
			"emotion":       r.EmotionLabel,
		},
		ts: r.SampledAt,
	})
}

// ForwardEmergency 转发紧急事件（触发与归档各一条）
// 触发时额外写一个camera跌倒点，供面板的跌倒序列展示
func (f *Forwarder) ForwardEmergency(ev models.EmergencyEvent) {
	f.enqueue(job{
		measurement: "emergency",
		tags:        map[string]string{"event_id": ev.ID},
		fields: map[string]interface{}{
			"g_force": ev.TriggerReading.GForce,
			"state":   string(ev.State),
		},
		ts: time.Now(),
	})

	if ev.State != models.EmergencyActive {
		return
	}
	emotion := "Neutral"
	if v := f.store.Status().Vision; v != nil {
		emotion = v.EmotionLabel
	}
	f.enqueue(job{
		measurement: "camera",
		tags:        map[string]string{"sensor": "picam"},
		fields: map[string]interface{}{
			"fall_detected": 1,
			"emotion":       emotion,
		},
		ts: ev.StartedAt,
	})
}

// DroppedQueue 因队列满而丢弃的点数
func (f *Forwarder) DroppedQueue() uint64 {
	return f.droppedQueue.Load()
}

// FailedWrites sink写入失败的点数
func (f *Forwarder) FailedWrites() uint64 {
	return f.failedWrites.Load()
}
