package hardware

// 硬件能力接口
// 实际的执行器/传感器驱动（脉宽、总线协议）由外部实现提供，
// 网关只依赖这里的窄接口

// ActuatorID 执行器标识
type ActuatorID string

const (
	ActuatorBuzzer   ActuatorID = "buzzer"    // 报警蜂鸣器
	ActuatorDoorLock ActuatorID = "door_lock" // 门锁舵机（on=解锁开门）
)

// IndicatorColor 状态指示灯颜色
type IndicatorColor string

const (
	IndicatorOff   IndicatorColor = "off"
	IndicatorAlert IndicatorColor = "red"
)

// SensorID 传感器标识
type SensorID string

const (
	SensorTemperature SensorID = "temperature"
	SensorHumidity    SensorID = "humidity"
	SensorSmoke       SensorID = "smoke"
)

// Controller 执行器控制能力
// 执行器由紧急状态机独占驱动，其他组件不得调用
type Controller interface {
	SetActuator(id ActuatorID, on bool) error
	SetIndicator(color IndicatorColor) error
}

// SensorReader 传感器读取能力
type SensorReader interface {
	ReadSensor(id SensorID) (float64, error)
}
