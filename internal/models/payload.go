package models

// MotionPayload 运动主题的线上格式 {"g_force": 2.8, "mic": 512}
// 指针字段用于区分"缺失"和"零值"
type MotionPayload struct {
	GForce *float64 `json:"g_force"`
	Mic    *float64 `json:"mic"`
}

// EnvPayload 环境主题的发布格式
type EnvPayload struct {
	Temp      *float64 `json:"temp"`
	Humidity  *float64 `json:"humidity"`
	Smoke     int      `json:"smoke"`
	Timestamp int64    `json:"timestamp"`
}

// CamPayload 摄像头主题的发布格式
// fall_detected 保留为字符串 "0"/"1" 以兼容旧消费者，本网关不再读取
type CamPayload struct {
	FallDetected string `json:"fall_detected"`
	Emotions     string `json:"emotions"`
}

// EmergencyStatusPayload 紧急状态主题的发布格式（进入/退出ACTIVE时各发一条）
type EmergencyStatusPayload struct {
	Event     string  `json:"event"`
	EventID   string  `json:"event_id"`
	State     string  `json:"state"`
	GForce    float64 `json:"g_force"`
	Timestamp int64   `json:"ts"`
}
