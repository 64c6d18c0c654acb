package state

import (
	"sync"

	"eldersafe-gateway/internal/models"
)

// Store 网关共享状态存储
// 字段按写入方划分：运动读数由消费者写，环境/视觉由采样循环写，
// 紧急标志由状态机写；读取方拿到的是深拷贝快照
type Store struct {
	mu              sync.RWMutex
	motion          *models.MotionReading
	environment     *models.EnvironmentReading
	vision          *models.VisionReading
	emergencyActive bool
}

// NewStore 创建状态存储
func NewStore() *Store {
	return &Store{}
}

// SetMotion 更新最新运动读数
func (s *Store) SetMotion(r models.MotionReading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.motion = &r
}

// SetEnvironment 更新最新环境读数
func (s *Store) SetEnvironment(r models.EnvironmentReading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.environment = &r
}

// SetVision 更新最新视觉读数
func (s *Store) SetVision(r models.VisionReading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vision = &r
}

// SetEmergencyActive 更新紧急标志（仅状态机调用）
func (s *Store) SetEmergencyActive(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emergencyActive = active
}

// Status 返回当前状态快照
func (s *Store) Status() models.GatewayStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := models.GatewayStatus{
		EmergencyActive: s.emergencyActive,
	}
	if s.motion != nil {
		m := *s.motion
		status.Motion = &m
	}
	if s.environment != nil {
		e := *s.environment
		if s.environment.Temperature != nil {
			t := *s.environment.Temperature
			e.Temperature = &t
		}
		if s.environment.Humidity != nil {
			h := *s.environment.Humidity
			e.Humidity = &h
		}
		status.Environment = &e
	}
	if s.vision != nil {
		v := *s.vision
		status.Vision = &v
	}
	return status
}
