package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"eldersafe-gateway/internal/config"
	"eldersafe-gateway/internal/hardware"
	"eldersafe-gateway/internal/models"
	"eldersafe-gateway/internal/state"
	"eldersafe-gateway/internal/vision"
)

// fakeSensorReader 可编程的假传感器
type fakeSensorReader struct {
	mu       sync.Mutex
	values   map[hardware.SensorID]float64
	failures map[hardware.SensorID]int // 故障剩余次数，-1为永久故障
	calls    map[hardware.SensorID]int
}

func newFakeSensorReader() *fakeSensorReader {
	return &fakeSensorReader{
		values:   make(map[hardware.SensorID]float64),
		failures: make(map[hardware.SensorID]int),
		calls:    make(map[hardware.SensorID]int),
	}
}

func (f *fakeSensorReader) ReadSensor(id hardware.SensorID) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[id]++
	if n := f.failures[id]; n != 0 {
		if n > 0 {
			f.failures[id] = n - 1
		}
		return 0, errors.New("sensor read failed")
	}
	return f.values[id], nil
}

func (f *fakeSensorReader) setFailures(id hardware.SensorID, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[id] = n
}

func (f *fakeSensorReader) callCount(id hardware.SensorID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

// fakeFrameSource 可编程的假帧源
type fakeFrameSource struct {
	mu   sync.Mutex
	fail bool
}

func (f *fakeFrameSource) Capture() (vision.Frame, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errors.New("camera unavailable")
	}
	return vision.Frame{}, nil
}

// fakeClassifier 固定标签的假分类器
type fakeClassifier struct {
	label string
}

func (f *fakeClassifier) Classify(_ vision.Frame) (string, error) {
	return f.label, nil
}

// fakeReadingForwarder 记录转发读数的假转发器
type fakeReadingForwarder struct {
	mu     sync.Mutex
	envs   []models.EnvironmentReading
	visual []models.VisionReading
}

func (f *fakeReadingForwarder) ForwardEnvironment(r models.EnvironmentReading) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.envs = append(f.envs, r)
}

func (f *fakeReadingForwarder) ForwardVision(r models.VisionReading) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.visual = append(f.visual, r)
}

func (f *fakeReadingForwarder) envCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.envs)
}

func (f *fakeReadingForwarder) visionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.visual)
}

// fakePublisher 记录发布的假MQTT客户端
type fakePublisher struct {
	mu     sync.Mutex
	topics []string
}

func (f *fakePublisher) Publish(topic string, qos byte, retained bool, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topics = append(f.topics, topic)
	return nil
}

func testConfig(envInterval, visionInterval time.Duration) *config.Config {
	cfg := &config.Config{}
	cfg.Gateway.EnvInterval = envInterval
	cfg.Gateway.VisionInterval = visionInterval
	cfg.Gateway.SensorRetryAttempts = 3
	cfg.Gateway.SensorRetryBackoff = time.Millisecond
	cfg.Topics.Environment = "sensor/env"
	cfg.Topics.Camera = "elder/sensor/cam"
	cfg.MQTT.QoS = 1
	return cfg
}

func setupScheduler(cfg *config.Config) (*Scheduler, *state.Store, *fakeReadingForwarder, *fakeSensorReader, *fakeFrameSource) {
	store := state.NewStore()
	fwd := &fakeReadingForwarder{}
	pub := &fakePublisher{}
	sensors := newFakeSensorReader()
	frames := &fakeFrameSource{}
	classifier := &fakeClassifier{label: vision.EmotionNeutral}

	s := NewScheduler(cfg, store, fwd, pub, sensors, frames, classifier, zap.NewNop())
	return s, store, fwd, sensors, frames
}

func TestSampleEnvironment_Success(t *testing.T) {
	cfg := testConfig(100*time.Millisecond, 100*time.Millisecond)
	s, store, fwd, sensors, _ := setupScheduler(cfg)
	sensors.values[hardware.SensorTemperature] = 21.5
	sensors.values[hardware.SensorHumidity] = 48.0
	sensors.values[hardware.SensorSmoke] = 1

	s.sampleEnvironment()

	status := store.Status()
	require.NotNil(t, status.Environment)
	require.NotNil(t, status.Environment.Temperature)
	assert.Equal(t, 21.5, *status.Environment.Temperature)
	require.NotNil(t, status.Environment.Humidity)
	assert.Equal(t, 48.0, *status.Environment.Humidity)
	assert.Equal(t, 1, status.Environment.Smoke)
	assert.Equal(t, 1, fwd.envCount())
}

func TestSampleEnvironment_RetryThenSuccess(t *testing.T) {
	cfg := testConfig(100*time.Millisecond, 100*time.Millisecond)
	s, store, _, sensors, _ := setupScheduler(cfg)
	sensors.values[hardware.SensorTemperature] = 23.0
	sensors.setFailures(hardware.SensorTemperature, 2) // 前两次失败，第三次成功

	s.sampleEnvironment()

	status := store.Status()
	require.NotNil(t, status.Environment.Temperature)
	assert.Equal(t, 23.0, *status.Environment.Temperature)
	assert.Equal(t, 3, sensors.callCount(hardware.SensorTemperature))
}

func TestSampleEnvironment_FallbackThenUnavailable(t *testing.T) {
	cfg := testConfig(50*time.Millisecond, time.Hour)
	cfg.Gateway.SensorRetryAttempts = 1
	s, store, _, sensors, _ := setupScheduler(cfg)
	sensors.values[hardware.SensorTemperature] = 21.0

	// 第一次采样成功
	s.sampleEnvironment()
	require.NotNil(t, store.Status().Environment.Temperature)

	// 随后传感器持续故障：一个周期内回退到最近成功值
	sensors.setFailures(hardware.SensorTemperature, -1)
	s.sampleEnvironment()
	require.NotNil(t, store.Status().Environment.Temperature)
	assert.Equal(t, 21.0, *store.Status().Environment.Temperature)

	// 超过一个错过的周期后：显式"unavailable"，不再用过期数据
	time.Sleep(120 * time.Millisecond)
	s.sampleEnvironment()
	assert.Nil(t, store.Status().Environment.Temperature)
}

func TestScheduler_LoopsRunIndependently(t *testing.T) {
	cfg := testConfig(20*time.Millisecond, 20*time.Millisecond)
	cfg.Gateway.SensorRetryAttempts = 1
	s, _, fwd, sensors, _ := setupScheduler(cfg)

	// 环境传感器永久故障，视觉循环不受任何影响
	sensors.setFailures(hardware.SensorTemperature, -1)
	sensors.setFailures(hardware.SensorHumidity, -1)
	sensors.setFailures(hardware.SensorSmoke, -1)

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)

	require.Eventually(t, func() bool {
		return fwd.visionCount() >= 3 && fwd.envCount() >= 3
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	s.Stop()
}

func TestSampleVision_Success(t *testing.T) {
	cfg := testConfig(time.Hour, time.Hour)
	s, store, fwd, _, _ := setupScheduler(cfg)

	s.sampleVision()

	status := store.Status()
	require.NotNil(t, status.Vision)
	assert.Equal(t, vision.EmotionNeutral, status.Vision.EmotionLabel)
	assert.Equal(t, 1, fwd.visionCount())
}

func TestSampleVision_CaptureFault_SkipsCycle(t *testing.T) {
	cfg := testConfig(time.Hour, time.Hour)
	s, store, fwd, _, frames := setupScheduler(cfg)
	frames.fail = true

	// 取帧失败只跳过本次节拍，不更新状态也不转发
	s.sampleVision()
	assert.Nil(t, store.Status().Vision)
	assert.Equal(t, 0, fwd.visionCount())

	// 故障恢复后下一个节拍照常工作
	frames.fail = false
	s.sampleVision()
	assert.NotNil(t, store.Status().Vision)
	assert.Equal(t, 1, fwd.visionCount())
}
