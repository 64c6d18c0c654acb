package emergency

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"eldersafe-gateway/internal/config"
	"eldersafe-gateway/internal/hardware"
	"eldersafe-gateway/internal/models"
	"eldersafe-gateway/internal/state"
)

// State 状态机状态
type State int

const (
	StateIdle State = iota
	StateActive
)

// Publisher 状态通知发布能力
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// EventSink 紧急事件归档能力（由持久化转发器实现）
type EventSink interface {
	ForwardEmergency(ev models.EmergencyEvent)
}

// StateMachine 紧急状态机
// 安全关键核心：阈值判断与状态迁移在同一把锁下完成，
// 两条几乎同时到达的触发读数不会产生两个并存的紧急事件；
// 复位定时器可取消可重臂，重臂覆盖而不叠加
type StateMachine struct {
	threshold  float64
	resetAfter time.Duration
	topic      string
	qos        byte

	hw     hardware.Controller
	pub    Publisher
	events EventSink
	store  *state.Store
	logger *zap.Logger

	mu      sync.Mutex
	state   State
	current *models.EmergencyEvent
	timer   *time.Timer
	armGen  uint64 // 定时器代号：旧代定时器触发时识别为过期，严格无副作用
}

// NewStateMachine 创建紧急状态机
func NewStateMachine(
	cfg *config.Config,
	hw hardware.Controller,
	pub Publisher,
	events EventSink,
	store *state.Store,
	logger *zap.Logger,
) *StateMachine {
	return &StateMachine{
		threshold:  cfg.Gateway.GForceThreshold,
		resetAfter: cfg.Gateway.EmergencyReset,
		topic:      cfg.Topics.Emergency,
		qos:        cfg.MQTT.QoS,
		hw:         hw,
		pub:        pub,
		events:     events,
		store:      store,
		logger:     logger,
		state:      StateIdle,
	}
}

// exceedsThreshold 触发判定谓词
// 只看g值，与视觉分类路径无结构耦合
func (m *StateMachine) exceedsThreshold(r models.MotionReading) bool {
	return r.GForce > m.threshold
}

// HandleMotion 评估一条运动读数，返回是否触发/延续了紧急状态
func (m *StateMachine) HandleMotion(r models.MotionReading) bool {
	if !m.exceedsThreshold(r) {
		return false
	}

	m.mu.Lock()
	now := time.Now()

	if m.state == StateActive {
		// 持续活动期间重触发：不产生新事件，复位期限延到满额（覆盖，不叠加）
		m.current.ResetDeadline = now.Add(m.resetAfter)
		m.rearmLocked()
		deadline := m.current.ResetDeadline
		m.mu.Unlock()

		m.logger.Info("Emergency retriggered, reset deadline extended",
			zap.Float64("g_force", r.GForce),
			zap.Time("reset_deadline", deadline),
		)
		return true
	}

	ev := &models.EmergencyEvent{
		ID:             uuid.NewString(),
		TriggerReading: r,
		StartedAt:      now,
		State:          models.EmergencyActive,
		ResetDeadline:  now.Add(m.resetAfter),
	}
	m.state = StateActive
	m.current = ev

	// 执行器失败也照常进入ACTIVE：报警通知路径优先于物理执行器的确认成功
	m.engageLocked()
	m.rearmLocked()

	evCopy := *ev
	// 共享标志与事件移交在锁内完成：与复位回调竞争时不会被旧一代的
	// 写入覆盖，归档/触发事件也保持迁移顺序（两者都不阻塞，允许持锁）
	m.store.SetEmergencyActive(true)
	m.events.ForwardEmergency(evCopy)
	m.mu.Unlock()

	m.logger.Warn("High impact detected, emergency protocol engaged",
		zap.String("event_id", evCopy.ID),
		zap.Float64("g_force", r.GForce),
		zap.Time("reset_deadline", evCopy.ResetDeadline),
	)

	m.publishStatus(evCopy, "fall")

	return true
}

// rearmLocked 重臂复位定时器（持锁调用）
// 先停掉旧定时器并递增代号，旧代的待触发即使已出队也会被识别为过期
func (m *StateMachine) rearmLocked() {
	m.armGen++
	gen := m.armGen

	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = time.AfterFunc(m.resetAfter, func() {
		m.onResetTimer(gen)
	})
}

// onResetTimer 复位定时器到期回调
func (m *StateMachine) onResetTimer(gen uint64) {
	m.mu.Lock()
	if gen != m.armGen || m.state != StateActive {
		// 过期或重复触发：严格无操作
		m.mu.Unlock()
		return
	}

	m.disengageLocked()

	ev := m.current
	ev.State = models.EmergencyArchived
	m.state = StateIdle
	m.current = nil
	m.timer = nil

	evCopy := *ev
	m.store.SetEmergencyActive(false)
	m.events.ForwardEmergency(evCopy)
	m.mu.Unlock()

	m.logger.Info("Emergency reset, actuators disengaged",
		zap.String("event_id", evCopy.ID),
	)

	m.publishStatus(evCopy, "reset")
}

// engageLocked 接通全部执行器（持锁调用，执行器为本地能力不会长阻塞）
func (m *StateMachine) engageLocked() {
	m.setActuator(hardware.ActuatorBuzzer, true)
	m.setActuator(hardware.ActuatorDoorLock, true)
	m.setIndicator(hardware.IndicatorAlert)
}

// disengageLocked 断开全部执行器
func (m *StateMachine) disengageLocked() {
	m.setActuator(hardware.ActuatorBuzzer, false)
	m.setActuator(hardware.ActuatorDoorLock, false)
	m.setIndicator(hardware.IndicatorOff)
}

// setActuator 设置执行器，失败记一次故障并重试一次，仍失败则放弃（fail-open）
func (m *StateMachine) setActuator(id hardware.ActuatorID, on bool) {
	err := m.hw.SetActuator(id, on)
	if err == nil {
		return
	}
	m.logger.Warn("Actuator fault, retrying once",
		zap.String("actuator", string(id)),
		zap.Bool("on", on),
		zap.Error(err),
	)
	m.hw.SetActuator(id, on)
}

func (m *StateMachine) setIndicator(color hardware.IndicatorColor) {
	err := m.hw.SetIndicator(color)
	if err == nil {
		return
	}
	m.logger.Warn("Indicator fault, retrying once",
		zap.String("color", string(color)),
		zap.Error(err),
	)
	m.hw.SetIndicator(color)
}

// publishStatus 发布紧急状态变化通知（进入/退出ACTIVE各一条）
func (m *StateMachine) publishStatus(ev models.EmergencyEvent, event string) {
	payload := models.EmergencyStatusPayload{
		Event:     event,
		EventID:   ev.ID,
		State:     string(ev.State),
		GForce:    ev.TriggerReading.GForce,
		Timestamp: time.Now().Unix(),
	}

	data, err := json.Marshal(payload)
	if err != nil {
		m.logger.Error("Failed to marshal emergency status", zap.Error(err))
		return
	}

	if err := m.pub.Publish(m.topic, m.qos, false, data); err != nil {
		m.logger.Error("Failed to publish emergency status",
			zap.String("topic", m.topic),
			zap.Error(err),
		)
	}
}

// Active 当前是否处于紧急状态
func (m *StateMachine) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateActive
}

// CurrentEvent 当前紧急事件的副本（IDLE时返回nil）
func (m *StateMachine) CurrentEvent() *models.EmergencyEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	ev := *m.current
	return &ev
}

// Shutdown 停止待触发的复位定时器（进程退出时调用）
func (m *StateMachine) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.armGen++
}
