package hardware

import (
	"fmt"
	"math/rand"
	"sync"

	"go.uber.org/zap"
)

// SimulatedController 模拟执行器（非树莓派环境下的降级实现）
type SimulatedController struct {
	mu        sync.Mutex
	actuators map[ActuatorID]bool
	indicator IndicatorColor
	logger    *zap.Logger
}

// NewSimulatedController 创建模拟执行器
func NewSimulatedController(logger *zap.Logger) *SimulatedController {
	return &SimulatedController{
		actuators: make(map[ActuatorID]bool),
		indicator: IndicatorOff,
		logger:    logger,
	}
}

// SetActuator 设置执行器状态
func (c *SimulatedController) SetActuator(id ActuatorID, on bool) error {
	c.mu.Lock()
	c.actuators[id] = on
	c.mu.Unlock()

	c.logger.Info("Actuator state changed",
		zap.String("actuator", string(id)),
		zap.Bool("on", on),
	)
	return nil
}

// SetIndicator 设置指示灯颜色
func (c *SimulatedController) SetIndicator(color IndicatorColor) error {
	c.mu.Lock()
	c.indicator = color
	c.mu.Unlock()

	c.logger.Info("Indicator changed", zap.String("color", string(color)))
	return nil
}

// ActuatorState 查询执行器当前状态
func (c *SimulatedController) ActuatorState(id ActuatorID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.actuators[id]
}

// SimulatedSensorReader 模拟传感器（返回合理范围内的随机读数）
type SimulatedSensorReader struct{}

// NewSimulatedSensorReader 创建模拟传感器
func NewSimulatedSensorReader() *SimulatedSensorReader {
	return &SimulatedSensorReader{}
}

// ReadSensor 读取模拟传感器值
func (r *SimulatedSensorReader) ReadSensor(id SensorID) (float64, error) {
	switch id {
	case SensorTemperature:
		return 18 + rand.Float64()*10, nil
	case SensorHumidity:
		return 30 + rand.Float64()*40, nil
	case SensorSmoke:
		// 偶发烟雾信号
		if rand.Intn(20) == 0 {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("unknown sensor: %s", id)
	}
}
