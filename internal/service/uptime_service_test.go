package service

import (
	"context"
	"testing"
	"time"

	"github.com/dushixiang/pulse/internal/config"
	"github.com/dushixiang/pulse/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestUptimeService(t *testing.T, db *gorm.DB, intervalSeconds int) *UptimeService {
	t.Helper()
	return NewUptimeService(zap.NewNop(), db, config.PresenceConfig{
		HeartbeatIntervalSeconds: intervalSeconds,
	})
}

// insertHeartbeats 从 start 开始按 step 间隔写入 count 条心跳事件
func insertHeartbeats(t *testing.T, db *gorm.DB, deviceName string, start time.Time, step time.Duration, count int) {
	t.Helper()

	events := make([]models.HeartbeatEvent, 0, count)
	for i := 0; i < count; i++ {
		events = append(events, models.HeartbeatEvent{
			DeviceName: deviceName,
			Timestamp:  start.Add(time.Duration(i) * step).UnixMilli(),
		})
	}
	if err := db.CreateInBatches(events, 500).Error; err != nil {
		t.Fatalf("写入心跳事件失败: %v", err)
	}
}

func TestRollingUptime(t *testing.T) {
	db := newTestDB(t)
	s := newTestUptimeService(t, db, 60)
	ctx := context.Background()

	// 最近 12 小时每分钟一条，共 720 条，相对 24 小时窗口正好 50%
	insertHeartbeats(t, db, "half", time.Now().Add(-12*time.Hour), time.Minute, 720)

	got, err := s.RollingUptime(ctx, "half", 24)
	if err != nil {
		t.Fatalf("RollingUptime() 失败: %v", err)
	}
	if got != 50.0 {
		t.Errorf("RollingUptime(24h) = %v, want 50.0", got)
	}

	t.Run("无心跳", func(t *testing.T) {
		got, err := s.RollingUptime(ctx, "silent", 24)
		if err != nil {
			t.Fatalf("RollingUptime() 失败: %v", err)
		}
		if got != 0.0 {
			t.Errorf("RollingUptime() = %v, want 0.0", got)
		}
	})

	t.Run("窗口为零", func(t *testing.T) {
		got, err := s.RollingUptime(ctx, "half", 0)
		if err != nil {
			t.Fatalf("RollingUptime() 失败: %v", err)
		}
		if got != 0.0 {
			t.Errorf("RollingUptime(0h) = %v, want 0.0", got)
		}
	})

	t.Run("超量上报封顶100", func(t *testing.T) {
		// 1 小时窗口期望 60 条，写入 120 条
		insertHeartbeats(t, db, "noisy", time.Now().Add(-30*time.Minute), 15*time.Second, 120)

		got, err := s.RollingUptime(ctx, "noisy", 1)
		if err != nil {
			t.Fatalf("RollingUptime() 失败: %v", err)
		}
		if got != 100.0 {
			t.Errorf("RollingUptime() = %v, want 100.0", got)
		}
	})
}

func TestRollingUptime_ConfigurableInterval(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	// 同样 120 条心跳，间隔 30 秒的配置下 1 小时期望 120 条
	insertHeartbeats(t, db, "fast", time.Now().Add(-59*time.Minute), 29*time.Second, 120)

	s := newTestUptimeService(t, db, 30)
	got, err := s.RollingUptime(ctx, "fast", 1)
	if err != nil {
		t.Fatalf("RollingUptime() 失败: %v", err)
	}
	if got != 100.0 {
		t.Errorf("间隔 30 秒时 RollingUptime() = %v, want 100.0", got)
	}

	s = newTestUptimeService(t, db, 60)
	got, err = s.RollingUptime(ctx, "fast", 1)
	if err != nil {
		t.Fatalf("RollingUptime() 失败: %v", err)
	}
	if got != 100.0 {
		t.Errorf("间隔 60 秒时 RollingUptime() = %v, want 100.0 (封顶)", got)
	}
}

func TestWeeklyBlocks(t *testing.T) {
	db := newTestDB(t)
	s := newTestUptimeService(t, db, 60)
	ctx := context.Background()

	// 固定在周三中午，避免测试结果随运行时间漂移
	now := time.Date(2025, 9, 3, 12, 0, 0, 0, time.Local)
	monday := time.Date(2025, 9, 1, 0, 0, 0, 0, time.Local)

	// 周一全天在线，周二在线一半，周三（今天）无心跳
	insertHeartbeats(t, db, "branch", monday, time.Minute, 1440)
	insertHeartbeats(t, db, "branch", monday.AddDate(0, 0, 1), time.Minute, 720)

	blocks, average, err := s.weeklyBlocksAt(ctx, "branch", now)
	if err != nil {
		t.Fatalf("weeklyBlocksAt() 失败: %v", err)
	}
	if len(blocks) != 3 {
		t.Fatalf("分块数量 = %d, want 3", len(blocks))
	}

	want := []struct {
		dayName string
		uptime  float64
		status  string
	}{
		{"Monday", 100.0, DayStatusOperational},
		{"Tuesday", 50.0, DayStatusDegraded},
		{"Wednesday", 0.0, DayStatusOutage},
	}
	for i, w := range want {
		if blocks[i].DayName != w.dayName {
			t.Errorf("blocks[%d].DayName = %s, want %s", i, blocks[i].DayName, w.dayName)
		}
		if blocks[i].Uptime != w.uptime {
			t.Errorf("blocks[%d].Uptime = %v, want %v", i, blocks[i].Uptime, w.uptime)
		}
		if blocks[i].Status != w.status {
			t.Errorf("blocks[%d].Status = %s, want %s", i, blocks[i].Status, w.status)
		}
	}

	if average != 50.0 {
		t.Errorf("整周平均在线率 = %v, want 50.0", average)
	}
}

func TestStartOfWeek(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			"周三",
			time.Date(2025, 9, 3, 12, 30, 0, 0, time.Local),
			time.Date(2025, 9, 1, 0, 0, 0, 0, time.Local),
		},
		{
			"周一当天",
			time.Date(2025, 9, 1, 8, 0, 0, 0, time.Local),
			time.Date(2025, 9, 1, 0, 0, 0, 0, time.Local),
		},
		{
			"周日归属上一个周一",
			time.Date(2025, 9, 7, 23, 0, 0, 0, time.Local),
			time.Date(2025, 9, 1, 0, 0, 0, 0, time.Local),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := startOfWeek(tt.now); !got.Equal(tt.want) {
				t.Errorf("startOfWeek() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDayStatus(t *testing.T) {
	tests := []struct {
		uptime float64
		want   string
	}{
		{100, DayStatusOperational},
		{95, DayStatusOperational},
		{94.9, DayStatusDegraded},
		{50, DayStatusDegraded},
		{49.9, DayStatusOutage},
		{0, DayStatusOutage},
	}
	for _, tt := range tests {
		if got := dayStatus(tt.uptime); got != tt.want {
			t.Errorf("dayStatus(%v) = %s, want %s", tt.uptime, got, tt.want)
		}
	}
}
