package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"eldersafe-gateway/internal/config"
	"eldersafe-gateway/internal/logger"
	"eldersafe-gateway/internal/service"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化Logger
	zapLogger, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "eldersafe-gateway")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting eldersafe-gateway",
		zap.String("mqtt_broker", cfg.MQTT.Broker),
		zap.Float64("g_force_threshold", cfg.Gateway.GForceThreshold),
		zap.Duration("emergency_reset", cfg.Gateway.EmergencyReset),
	)

	// 创建服务
	gatewayService, err := service.NewGatewayService(cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to create gateway service", zap.Error(err))
	}

	// 启动服务
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serviceErrChan := make(chan error, 1)
	go func() {
		if err := gatewayService.Start(ctx); err != nil {
			serviceErrChan <- err
		}
	}()

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		zapLogger.Info("Received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-serviceErrChan:
		zapLogger.Error("Service error", zap.Error(err))
	}

	// 优雅关闭
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := gatewayService.Stop(shutdownCtx); err != nil {
		zapLogger.Error("Error during shutdown", zap.Error(err))
	}

	zapLogger.Info("Service stopped")
}
