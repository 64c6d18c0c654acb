package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"eldersafe-gateway/internal/config"
	"eldersafe-gateway/internal/consumer"
	"eldersafe-gateway/internal/emergency"
	"eldersafe-gateway/internal/forwarder"
	"eldersafe-gateway/internal/hardware"
	"eldersafe-gateway/internal/mqtt"
	"eldersafe-gateway/internal/repository"
	"eldersafe-gateway/internal/scheduler"
	"eldersafe-gateway/internal/server"
	"eldersafe-gateway/internal/state"
	"eldersafe-gateway/internal/vision"
)

// GatewayService 网关服务
type GatewayService struct {
	config     *config.Config
	logger     *zap.Logger
	sink       *repository.InfluxSink
	mqttClient *mqtt.Client
	store      *state.Store
	machine    *emergency.StateMachine
	forwarder  *forwarder.Forwarder
	scheduler  *scheduler.Scheduler
	consumer   *consumer.MQTTConsumer
	httpServer *server.Server

	cancel context.CancelFunc
}

// NewGatewayService 创建网关服务
func NewGatewayService(cfg *config.Config, logger *zap.Logger) (*GatewayService, error) {
	// 初始化时序库
	sink := repository.NewInfluxSink(&cfg.Sink, logger)

	// 初始化MQTT（首连失败则启动失败：网关离开总线无法工作）
	mqttClient, err := mqtt.NewClient(&cfg.MQTT, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT: %w", err)
	}

	store := state.NewStore()

	// 转发器先于状态机：状态机要向它归档紧急事件
	fwd := forwarder.New(cfg, sink, mqttClient, store, logger)

	// 硬件与视觉能力（无真实硬件时使用模拟实现）
	controller := hardware.NewSimulatedController(logger)
	sensors := hardware.NewSimulatedSensorReader()
	frames := vision.NewSimulatedFrameSource()
	classifier := vision.NewSimulatedClassifier()

	machine := emergency.NewStateMachine(cfg, controller, mqttClient, fwd, store, logger)

	sched := scheduler.NewScheduler(cfg, store, fwd, mqttClient, sensors, frames, classifier, logger)

	mqttConsumer := consumer.NewMQTTConsumer(cfg, mqttClient, store, machine, fwd, logger)

	httpServer := server.NewServer(cfg, store, sink, logger)

	return &GatewayService{
		config:     cfg,
		logger:     logger,
		sink:       sink,
		mqttClient: mqttClient,
		store:      store,
		machine:    machine,
		forwarder:  fwd,
		scheduler:  sched,
		consumer:   mqttConsumer,
		httpServer: httpServer,
	}, nil
}

// Start 启动服务
func (s *GatewayService) Start(ctx context.Context) error {
	s.logger.Info("Starting gateway components")

	ctx, s.cancel = context.WithCancel(ctx)

	s.forwarder.Start(ctx)
	s.scheduler.Start(ctx)
	s.httpServer.Start()

	// 消费者最后启动：阻塞到上下文取消
	if err := s.consumer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start telemetry consumer: %w", err)
	}

	return nil
}

// Stop 停止服务
func (s *GatewayService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping gateway service")

	if s.cancel != nil {
		s.cancel()
	}

	if s.consumer != nil {
		if err := s.consumer.Stop(ctx); err != nil {
			s.logger.Error("Error stopping consumer", zap.Error(err))
		}
	}

	if s.httpServer != nil {
		if err := s.httpServer.Stop(ctx); err != nil {
			s.logger.Error("Error stopping HTTP server", zap.Error(err))
		}
	}

	if s.scheduler != nil {
		s.scheduler.Stop()
	}

	if s.machine != nil {
		s.machine.Shutdown()
	}

	if s.forwarder != nil {
		s.forwarder.Stop()
	}

	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}

	if s.sink != nil {
		s.sink.Close()
	}

	s.logger.Info("Gateway service stopped")
	return nil
}
