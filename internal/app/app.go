package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dushixiang/pulse/internal/config"
	"github.com/dushixiang/pulse/internal/handler"
	"github.com/dushixiang/pulse/internal/models"
	"github.com/dushixiang/pulse/internal/scheduler"
	"github.com/dushixiang/pulse/internal/service"
	"github.com/glebarez/sqlite"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Run 启动服务端，阻塞直到收到退出信号
func Run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Log)
	defer logger.Sync()

	db, err := openDatabase(cfg.Database)
	if err != nil {
		return fmt.Errorf("打开数据库失败: %w", err)
	}

	if err := db.AutoMigrate(
		&models.Device{},
		&models.HeartbeatEvent{},
		&models.LoginSample{},
	); err != nil {
		return fmt.Errorf("数据库迁移失败: %w", err)
	}

	// 服务装配
	geoipService := service.NewGeoIPService(logger, cfg.GeoIP)
	defer geoipService.Close()

	presenceService := service.NewPresenceService(logger, db, geoipService, cfg.Presence)
	uptimeService := service.NewUptimeService(logger, db, cfg.Presence)
	deviceService := service.NewDeviceService(logger, db, presenceService, uptimeService)
	retentionService := service.NewRetentionService(logger, db, cfg.Retention)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 后台清理任务
	cleanupScheduler := scheduler.NewCleanupScheduler(retentionService, cfg.Retention.IntervalHours, logger)
	if err := cleanupScheduler.Start(ctx); err != nil {
		return err
	}
	defer cleanupScheduler.Stop()

	e := newEcho(logger, presenceService, deviceService)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	go func() {
		logger.Info("服务启动", zap.String("addr", addr))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("服务异常退出", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("收到退出信号，正在关闭...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("关闭 HTTP 服务失败", zap.Error(err))
	}

	return nil
}

// newEcho 组装路由
func newEcho(logger *zap.Logger, presenceService *service.PresenceService, deviceService *service.DeviceService) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	heartbeatHandler := handler.NewHeartbeatHandler(logger, presenceService)
	deviceHandler := handler.NewDeviceHandler(logger, deviceService)

	e.POST("/heartbeat", heartbeatHandler.Receive)

	api := e.Group("/api")
	api.GET("/overview", deviceHandler.Overview)
	api.GET("/devices", deviceHandler.List)
	api.GET("/devices/archived", deviceHandler.ListArchived)
	api.GET("/devices/:name/uptime", deviceHandler.WeeklyUptime)
	api.GET("/devices/:name/logins", deviceHandler.LoginStatistics)
	api.GET("/logins/recent", deviceHandler.RecentLogins)
	api.POST("/devices/order", deviceHandler.ReorderAll)
	api.POST("/devices/:name/order", deviceHandler.ReorderOne)
	api.DELETE("/devices/:name", deviceHandler.Archive)
	api.POST("/devices/:name/restore", deviceHandler.Restore)
	api.DELETE("/devices/:name/permanent", deviceHandler.PermanentDelete)

	return e
}

// openDatabase 按配置打开数据库，默认 sqlite
func openDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	}

	switch cfg.Type {
	case "", "sqlite":
		path := cfg.Path
		if path == "" {
			path = "pulse.db"
		}
		return gorm.Open(sqlite.Open(path), gormConfig)
	case "postgres":
		return gorm.Open(postgres.Open(cfg.DSN), gormConfig)
	default:
		return nil, fmt.Errorf("不支持的数据库类型: %s", cfg.Type)
	}
}

// newLogger 初始化 zap 日志，配置了日志文件时使用 lumberjack 滚动
func newLogger(cfg config.LogConfig) *zap.Logger {
	level := zapcore.InfoLevel
	if err := level.Set(cfg.Level); err != nil {
		level = zapcore.InfoLevel
	}

	var sink zapcore.WriteSyncer
	if cfg.File != "" {
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		})
	} else {
		sink = zapcore.AddSync(os.Stdout)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000")
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), sink, level)
	return zap.New(core, zap.AddCaller())
}
