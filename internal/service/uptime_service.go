package service

import (
	"context"
	"math"
	"time"

	"github.com/dushixiang/pulse/internal/config"
	"github.com/dushixiang/pulse/internal/repo"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 每日状态分级
const (
	DayStatusOperational = "operational" // >= 95%
	DayStatusDegraded    = "degraded"    // >= 50%
	DayStatusOutage      = "outage"      // < 50%
)

// DayBlock 单日在线率汇总（用于日历视图）
type DayBlock struct {
	Date        string  `json:"date"`    // 2006-01-02
	DayName     string  `json:"dayName"` // Monday / Tuesday / ...
	Uptime      float64 `json:"uptime"`  // 在线率（百分比，1 位小数）
	Status      string  `json:"status"`
	HoursOnline float64 `json:"hoursOnline"` // 折算在线小时数
}

// UptimeService 在线率计算器
// 心跳频率来自配置，不把 1 次/分钟写死在计算里
type UptimeService struct {
	logger        *zap.Logger
	heartbeatRepo *repo.HeartbeatRepo
	cfg           config.PresenceConfig
}

func NewUptimeService(logger *zap.Logger, db *gorm.DB, cfg config.PresenceConfig) *UptimeService {
	return &UptimeService{
		logger:        logger,
		heartbeatRepo: repo.NewHeartbeatRepo(db),
		cfg:           cfg,
	}
}

// perHour 每小时期望的心跳数量
func (s *UptimeService) perHour() float64 {
	interval := s.cfg.HeartbeatIntervalSeconds
	if interval <= 0 {
		interval = 60
	}
	return 3600.0 / float64(interval)
}

// RollingUptime 计算最近 windowHours 小时的在线率，结果限制在 [0, 100]
func (s *UptimeService) RollingUptime(ctx context.Context, deviceName string, windowHours int) (float64, error) {
	if windowHours <= 0 {
		return 0.0, nil
	}

	since := time.Now().Add(-time.Duration(windowHours) * time.Hour).UnixMilli()
	actual, err := s.heartbeatRepo.CountSince(ctx, deviceName, since)
	if err != nil {
		return 0, err
	}

	expected := float64(windowHours) * s.perHour()
	return clampPct(float64(actual) / expected * 100), nil
}

// WeeklyBlocks 计算本周（最近的周一至今天）每日在线率分块及整周平均值
func (s *UptimeService) WeeklyBlocks(ctx context.Context, deviceName string) ([]DayBlock, float64, error) {
	return s.weeklyBlocksAt(ctx, deviceName, time.Now())
}

func (s *UptimeService) weeklyBlocksAt(ctx context.Context, deviceName string, now time.Time) ([]DayBlock, float64, error) {
	perHour := s.perHour()
	monday := startOfWeek(now)

	var blocks []DayBlock
	var sum float64

	for day := monday; !day.After(now); day = day.AddDate(0, 0, 1) {
		dayStart := day
		dayEnd := day.AddDate(0, 0, 1)

		// 今天只统计已经过去的部分
		rangeEnd := dayEnd
		expectedHours := 24.0
		if dayEnd.After(now) {
			rangeEnd = now
			expectedHours = now.Sub(dayStart).Hours()
		}

		actual, err := s.heartbeatRepo.CountInRange(ctx, deviceName, dayStart.UnixMilli(), rangeEnd.UnixMilli())
		if err != nil {
			return nil, 0, err
		}

		uptime := 0.0
		if expected := expectedHours * perHour; expected > 0 {
			uptime = clampPct(float64(actual) / expected * 100)
		}

		blocks = append(blocks, DayBlock{
			Date:        dayStart.Format("2006-01-02"),
			DayName:     dayStart.Weekday().String(),
			Uptime:      uptime,
			Status:      dayStatus(uptime),
			HoursOnline: math.Round(float64(actual)/perHour*10) / 10,
		})
		sum += uptime
	}

	average := 0.0
	if len(blocks) > 0 {
		average = math.Round(sum/float64(len(blocks))*10) / 10
	}
	return blocks, average, nil
}

// startOfWeek 返回 now 所在周的周一零点
func startOfWeek(now time.Time) time.Time {
	offset := int(now.Weekday()) - int(time.Monday)
	if offset < 0 {
		offset += 7 // 周日
	}
	day := now.AddDate(0, 0, -offset)
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
}

// dayStatus 在线率分级
func dayStatus(uptime float64) string {
	switch {
	case uptime >= 95:
		return DayStatusOperational
	case uptime >= 50:
		return DayStatusDegraded
	default:
		return DayStatusOutage
	}
}

// clampPct 限制为 [0, 100] 并保留 1 位小数
func clampPct(pct float64) float64 {
	if pct > 100 {
		return 100.0
	}
	if pct < 0 {
		return 0.0
	}
	return math.Round(pct*10) / 10
}
