package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"eldersafe-gateway/internal/config"
	"eldersafe-gateway/internal/models"
	"eldersafe-gateway/internal/state"
)

// fakeQuerier 可编程的假时序库查询端
type fakeQuerier struct {
	series map[string][]models.SeriesPoint
	fail   bool
}

func (f *fakeQuerier) QueryRange(_ context.Context, measurement, field string, _ time.Duration) ([]models.SeriesPoint, error) {
	if f.fail {
		return nil, errors.New("sink unreachable")
	}
	return f.series[measurement+"/"+field], nil
}

func setupServer(store *state.Store, querier *fakeQuerier) *Server {
	cfg := &config.Config{}
	cfg.HTTP.Addr = ":0"
	return NewServer(cfg, store, querier, zap.NewNop())
}

func TestHandleStatus_Empty(t *testing.T) {
	s := setupServer(state.NewStore(), &fakeQuerier{})

	rec := httptest.NewRecorder()
	s.handleStatus(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	// 无任何读数时温湿度为"N/A"，状态为正常
	assert.Equal(t, "N/A", body["temperature"])
	assert.Equal(t, "N/A", body["humidity"])
	assert.Equal(t, "SMOKE_OK", body["smoke_status"])
	assert.Equal(t, "ALERT_OK", body["critical_alert"])
	assert.Equal(t, 0.0, body["g_force_latest"])
}

func TestHandleStatus_WithReadings(t *testing.T) {
	store := state.NewStore()
	temp := 22.5
	hum := 55.0
	store.SetEnvironment(models.EnvironmentReading{Temperature: &temp, Humidity: &hum, Smoke: 1, SampledAt: time.Now()})
	store.SetMotion(models.MotionReading{GForce: 3.1, MicLevel: 640, ReceivedAt: time.Now()})
	store.SetVision(models.VisionReading{EmotionLabel: "Sad", SampledAt: time.Now()})
	store.SetEmergencyActive(true)

	s := setupServer(store, &fakeQuerier{})

	rec := httptest.NewRecorder()
	s.handleStatus(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	assert.Equal(t, 22.5, body["temperature"])
	assert.Equal(t, 55.0, body["humidity"])
	assert.Equal(t, "SMOKE_DETECTED", body["smoke_status"])
	assert.Equal(t, "FALL DETECTED", body["critical_alert"])
	assert.Equal(t, 3.1, body["g_force_latest"])
	assert.Equal(t, "Sad", body["expression"])
}

func TestHandleStatus_MethodNotAllowed(t *testing.T) {
	s := setupServer(state.NewStore(), &fakeQuerier{})

	rec := httptest.NewRecorder()
	s.handleStatus(rec, httptest.NewRequest(http.MethodPost, "/api/status", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleDashboard_EmotionMapping(t *testing.T) {
	now := time.Now()
	querier := &fakeQuerier{series: map[string][]models.SeriesPoint{
		"environment/temperature": {{Time: now, Value: 21.0}},
		"camera/emotion": {
			{Time: now, Value: "Happy"},
			{Time: now, Value: "No Face"},
			{Time: now, Value: "Unknown"},
		},
		"camera/fall_detected": {
			{Time: now.Add(-time.Minute), Value: int64(0)},
			{Time: now, Value: int64(1)},
		},
	}}
	s := setupServer(state.NewStore(), querier)

	rec := httptest.NewRecorder()
	s.handleDashboard(rec, httptest.NewRequest(http.MethodGet, "/api/dashboard", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		TempData    []models.SeriesPoint `json:"temp_data"`
		EmotionData []models.SeriesPoint `json:"emotion_data"`
		FallData    []models.SeriesPoint `json:"fall_data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	require.Len(t, body.TempData, 1)
	assert.Equal(t, 21.0, body.TempData[0].Value)

	// 表情映射为数值编码，未知表情为-1
	require.Len(t, body.EmotionData, 3)
	assert.Equal(t, 1.0, body.EmotionData[0].Value)
	assert.Equal(t, -1.0, body.EmotionData[1].Value)
	assert.Equal(t, -1.0, body.EmotionData[2].Value)

	// 跌倒序列原样透出，触发点的1可被面板看到
	require.Len(t, body.FallData, 2)
	assert.Equal(t, 0.0, body.FallData[0].Value)
	assert.Equal(t, 1.0, body.FallData[1].Value)
}

func TestHandleDashboard_SinkFailure(t *testing.T) {
	s := setupServer(state.NewStore(), &fakeQuerier{fail: true})

	rec := httptest.NewRecorder()
	s.handleDashboard(rec, httptest.NewRequest(http.MethodGet, "/api/dashboard", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}
