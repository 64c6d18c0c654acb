package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"eldersafe-gateway/internal/config"
	"eldersafe-gateway/internal/models"
	"eldersafe-gateway/internal/repository"
	"eldersafe-gateway/internal/state"
)

// 面板上表情到数值编码的映射，保证前端画图的一致性
var emotionCodes = map[string]int{
	"Neutral":   0,
	"Happy":     1,
	"Sad":       2,
	"Surprised": 3,
	"No Face":   -1,
}

// Server 只读状态API
// 仅暴露共享状态快照和时序库的时间范围查询，不渲染任何界面
type Server struct {
	config     *config.Config
	store      *state.Store
	sink       repository.SinkQuerier
	logger     *zap.Logger
	httpServer *http.Server
}

// NewServer 创建只读API服务
func NewServer(cfg *config.Config, store *state.Store, sink repository.SinkQuerier, logger *zap.Logger) *Server {
	s := &Server{
		config: cfg,
		store:  store,
		sink:   sink,
		logger: logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/dashboard", s.handleDashboard)

	s.httpServer = &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s
}

// Start 启动HTTP服务
func (s *Server) Start() {
	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", s.config.HTTP.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()
}

// Stop 优雅关闭HTTP服务
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// handleStatus 当前网关状态快照
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := s.store.Status()

	var temperature, humidity interface{} = "N/A", "N/A"
	smokeStatus := "SMOKE_OK"
	if status.Environment != nil {
		if status.Environment.Temperature != nil {
			temperature = *status.Environment.Temperature
		}
		if status.Environment.Humidity != nil {
			humidity = *status.Environment.Humidity
		}
		if status.Environment.Smoke == 1 {
			smokeStatus = "SMOKE_DETECTED"
		}
	}

	criticalAlert := "ALERT_OK"
	if status.EmergencyActive {
		criticalAlert = "FALL DETECTED"
	}

	var gForce float64
	if status.Motion != nil {
		gForce = status.Motion.GForce
	}

	expression := "Neutral"
	if status.Vision != nil {
		expression = status.Vision.EmotionLabel
	}

	s.writeJSON(w, map[string]interface{}{
		"temperature":    temperature,
		"humidity":       humidity,
		"smoke_status":   smokeStatus,
		"critical_alert": criticalAlert,
		"g_force_latest": gForce,
		"expression":     expression,
	})
}

// handleDashboard 最近24小时的历史序列（来自时序库）
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	window := 24 * time.Hour

	tempData, err := s.querySeries(ctx, "environment", "temperature", window)
	if err != nil {
		http.Error(w, "sink query failed", http.StatusBadGateway)
		return
	}
	humData, err := s.querySeries(ctx, "environment", "humidity", window)
	if err != nil {
		http.Error(w, "sink query failed", http.StatusBadGateway)
		return
	}
	gForceData, err := s.querySeries(ctx, "motion", "g_force", window)
	if err != nil {
		http.Error(w, "sink query failed", http.StatusBadGateway)
		return
	}
	fallData, err := s.querySeries(ctx, "camera", "fall_detected", window)
	if err != nil {
		http.Error(w, "sink query failed", http.StatusBadGateway)
		return
	}
	emotionRaw, err := s.querySeries(ctx, "camera", "emotion", window)
	if err != nil {
		http.Error(w, "sink query failed", http.StatusBadGateway)
		return
	}

	// 表情字符串映射为数值编码，未知表情记为-1
	emotionData := make([]models.SeriesPoint, 0, len(emotionRaw))
	for _, p := range emotionRaw {
		code := -1
		if label, ok := p.Value.(string); ok {
			if mapped, ok := emotionCodes[label]; ok {
				code = mapped
			}
		}
		emotionData = append(emotionData, models.SeriesPoint{Time: p.Time, Value: code})
	}

	s.writeJSON(w, map[string]interface{}{
		"temp_data":    tempData,
		"hum_data":     humData,
		"g_force_data": gForceData,
		"fall_data":    fallData,
		"emotion_data": emotionData,
	})
}

func (s *Server) querySeries(ctx context.Context, measurement, field string, window time.Duration) ([]models.SeriesPoint, error) {
	points, err := s.sink.QueryRange(ctx, measurement, field, window)
	if err != nil {
		s.logger.Error("Dashboard query failed",
			zap.String("measurement", measurement),
			zap.String("field", field),
			zap.Error(err),
		)
		return nil, fmt.Errorf("query %s/%s: %w", measurement, field, err)
	}
	if points == nil {
		points = []models.SeriesPoint{}
	}
	return points, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}
