package scheduler

import (
	"context"
	"fmt"

	"github.com/dushixiang/pulse/internal/service"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// CleanupScheduler 历史数据清理调度器
// 独立后台任务，不阻塞心跳接收；单次失败只记录日志，下个周期重试
type CleanupScheduler struct {
	cron             *cron.Cron
	retentionService *service.RetentionService
	intervalHours    int
	logger           *zap.Logger
	ctx              context.Context
	cancel           context.CancelFunc
}

func NewCleanupScheduler(retentionService *service.RetentionService, intervalHours int, logger *zap.Logger) *CleanupScheduler {
	if intervalHours <= 0 {
		intervalHours = 24
	}
	return &CleanupScheduler{
		cron:             cron.New(),
		retentionService: retentionService,
		intervalHours:    intervalHours,
		logger:           logger,
	}
}

// Start 启动调度器
func (s *CleanupScheduler) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	spec := fmt.Sprintf("@every %dh", s.intervalHours)
	if _, err := s.cron.AddFunc(spec, s.sweep); err != nil {
		return fmt.Errorf("添加清理任务失败: %w", err)
	}

	s.cron.Start()
	s.logger.Info("历史数据清理调度器已启动", zap.Int("intervalHours", s.intervalHours))
	return nil
}

// Stop 停止调度器，等待进行中的任务结束
func (s *CleanupScheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}

	ctx := s.cron.Stop()
	<-ctx.Done()

	s.logger.Info("历史数据清理调度器已停止")
}

func (s *CleanupScheduler) sweep() {
	if err := s.retentionService.Sweep(s.ctx); err != nil {
		s.logger.Error("历史数据清理失败，等待下个周期重试", zap.Error(err))
	}
}
