package models

import "time"

// MotionReading 运动传感器读数（来自可穿戴设备的一条MQTT消息）
// 构造后不可变
type MotionReading struct {
	GForce     float64   `json:"g_force"`
	MicLevel   float64   `json:"mic"`
	ReceivedAt time.Time `json:"received_at"`
}

// EnvironmentReading 环境传感器读数（每个采样周期整体替换）
// Temperature/Humidity 为 nil 表示传感器不可用（不使用过期数据）
type EnvironmentReading struct {
	Temperature *float64  `json:"temp"`
	Humidity    *float64  `json:"humidity"`
	Smoke       int       `json:"smoke"`
	SampledAt   time.Time `json:"sampled_at"`
}

// VisionReading 视觉采样读数（纯观测信号，不参与报警判断）
type VisionReading struct {
	EmotionLabel string    `json:"emotion_label"`
	SampledAt    time.Time `json:"sampled_at"`
}

// EmergencyState 紧急事件状态
type EmergencyState string

const (
	EmergencyActive   EmergencyState = "ACTIVE"
	EmergencyArchived EmergencyState = "ARCHIVED"
)

// EmergencyEvent 紧急事件（由状态机独占持有）
type EmergencyEvent struct {
	ID             string         `json:"id"`
	TriggerReading MotionReading  `json:"trigger_reading"`
	StartedAt      time.Time      `json:"started_at"`
	State          EmergencyState `json:"state"`
	ResetDeadline  time.Time      `json:"reset_deadline"`
}

// GatewayStatus 网关当前状态快照（读一致：不会观察到写了一半的读数）
type GatewayStatus struct {
	Motion          *MotionReading      `json:"motion"`
	Environment     *EnvironmentReading `json:"environment"`
	Vision          *VisionReading      `json:"vision"`
	EmergencyActive bool                `json:"emergency_active"`
}
