package service

import (
	"context"
	"time"

	"github.com/dushixiang/pulse/internal/config"
	"github.com/dushixiang/pulse/internal/repo"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RetentionService 历史数据清理
type RetentionService struct {
	logger          *zap.Logger
	heartbeatRepo   *repo.HeartbeatRepo
	loginSampleRepo *repo.LoginSampleRepo
	cfg             config.RetentionConfig
}

func NewRetentionService(logger *zap.Logger, db *gorm.DB, cfg config.RetentionConfig) *RetentionService {
	return &RetentionService{
		logger:          logger,
		heartbeatRepo:   repo.NewHeartbeatRepo(db),
		loginSampleRepo: repo.NewLoginSampleRepo(db),
		cfg:             cfg,
	}
}

// Horizon 数据保留期限
func (s *RetentionService) Horizon() time.Duration {
	days := s.cfg.Days
	if days <= 0 {
		days = 7
	}
	return time.Duration(days) * 24 * time.Hour
}

// Sweep 删除保留期限之前的心跳事件（及可选的登录样本）
func (s *RetentionService) Sweep(ctx context.Context) error {
	cutoff := time.Now().Add(-s.Horizon()).UnixMilli()

	deleted, err := s.heartbeatRepo.DeleteBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	s.logger.Info("过期心跳清理完成",
		zap.Int64("deleted", deleted),
		zap.Int64("cutoff", cutoff))

	if s.cfg.PruneLoginSamples {
		deleted, err := s.loginSampleRepo.DeleteBefore(ctx, cutoff)
		if err != nil {
			return err
		}
		s.logger.Info("过期登录样本清理完成", zap.Int64("deleted", deleted))
	}

	return nil
}
