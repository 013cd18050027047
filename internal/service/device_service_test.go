package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dushixiang/pulse/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestDeviceService(t *testing.T, db *gorm.DB) *DeviceService {
	t.Helper()

	presence := newTestPresenceService(t, db)
	uptime := newTestUptimeService(t, db, 60)
	return NewDeviceService(zap.NewNop(), db, presence, uptime)
}

func seedDevice(t *testing.T, db *gorm.DB, name string, weight int) {
	t.Helper()

	now := time.Now().UnixMilli()
	device := models.Device{
		Name:            name,
		FirstSeen:       now,
		LastSeen:        now,
		TotalHeartbeats: 1,
		Weight:          weight,
		Status:          models.DeviceStatusActive,
	}
	if err := db.Create(&device).Error; err != nil {
		t.Fatalf("写入设备失败: %v", err)
	}
}

func TestListDevices_Order(t *testing.T) {
	db := newTestDB(t)
	s := newTestDeviceService(t, db)
	ctx := context.Background()

	// 权重 0 表示未排序，应排在最后；其余按权重升序
	seedDevice(t, db, "zeta", 0)
	seedDevice(t, db, "beta", 2)
	seedDevice(t, db, "alpha", 1)

	items, err := s.ListDevices(ctx, models.DeviceStatusActive)
	if err != nil {
		t.Fatalf("ListDevices() 失败: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("设备数量 = %d, want 3", len(items))
	}

	want := []string{"alpha", "beta", "zeta"}
	for i, name := range want {
		if items[i].Name != name {
			t.Errorf("items[%d].Name = %s, want %s", i, items[i].Name, name)
		}
	}
	if items[0].Status != "online" {
		t.Errorf("刚上报过的设备状态 = %s, want online", items[0].Status)
	}
}

func TestReorderAll_Idempotent(t *testing.T) {
	db := newTestDB(t)
	s := newTestDeviceService(t, db)
	ctx := context.Background()

	seedDevice(t, db, "a", 0)
	seedDevice(t, db, "b", 0)
	seedDevice(t, db, "c", 0)

	names := []string{"c", "a", "b"}
	for i := 0; i < 2; i++ {
		if err := s.ReorderAll(ctx, names); err != nil {
			t.Fatalf("第 %d 次 ReorderAll() 失败: %v", i+1, err)
		}
	}

	items, err := s.ListDevices(ctx, models.DeviceStatusActive)
	if err != nil {
		t.Fatalf("ListDevices() 失败: %v", err)
	}
	got := make([]string, 0, len(items))
	for _, item := range items {
		got = append(got, item.Name)
	}
	for i, name := range names {
		if got[i] != name {
			t.Errorf("重复提交后顺序 = %v, want %v", got, names)
			break
		}
	}
}

func TestReorderOne_NotFound(t *testing.T) {
	db := newTestDB(t)
	s := newTestDeviceService(t, db)

	err := s.ReorderOne(context.Background(), "ghost", 1)
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("ReorderOne() 错误 = %v, want ErrDeviceNotFound", err)
	}
}

func TestWeeklyUptime_UnknownDevice(t *testing.T) {
	db := newTestDB(t)
	s := newTestDeviceService(t, db)
	ctx := context.Background()

	// 未知名称不返回一排 0% 的假数据
	if _, _, err := s.WeeklyUptime(ctx, "ghost"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("WeeklyUptime() 错误 = %v, want ErrDeviceNotFound", err)
	}

	// 已知设备即使没有心跳也正常返回分块
	seedDevice(t, db, "quiet", 1)
	blocks, _, err := s.WeeklyUptime(ctx, "quiet")
	if err != nil {
		t.Fatalf("WeeklyUptime() 失败: %v", err)
	}
	if len(blocks) == 0 {
		t.Error("已知设备应返回本周分块")
	}
}

func TestArchiveAndRestore(t *testing.T) {
	db := newTestDB(t)
	s := newTestDeviceService(t, db)
	ctx := context.Background()

	seedDevice(t, db, "branch", 1)
	insertHeartbeats(t, db, "branch", time.Now().Add(-time.Hour), time.Minute, 60)

	// 先预热缓存，归档必须立即反映到列表里
	if _, err := s.ListDevices(ctx, models.DeviceStatusActive); err != nil {
		t.Fatalf("ListDevices() 失败: %v", err)
	}

	if err := s.Archive(ctx, "branch"); err != nil {
		t.Fatalf("Archive() 失败: %v", err)
	}

	active, err := s.ListDevices(ctx, models.DeviceStatusActive)
	if err != nil {
		t.Fatalf("ListDevices() 失败: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("归档后活跃列表应为空，实际 %d 个", len(active))
	}

	archived, err := s.ListDevices(ctx, models.DeviceStatusArchived)
	if err != nil {
		t.Fatalf("ListDevices() 失败: %v", err)
	}
	if len(archived) != 1 {
		t.Fatalf("归档列表数量 = %d, want 1", len(archived))
	}

	if err := s.Restore(ctx, "branch"); err != nil {
		t.Fatalf("Restore() 失败: %v", err)
	}

	active, err = s.ListDevices(ctx, models.DeviceStatusActive)
	if err != nil {
		t.Fatalf("ListDevices() 失败: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("恢复后活跃列表数量 = %d, want 1", len(active))
	}

	// 历史数据在归档和恢复过程中保持不变
	var events int64
	db.Model(&models.HeartbeatEvent{}).Where("device_name = ?", "branch").Count(&events)
	if events != 60 {
		t.Errorf("心跳事件数量 = %d, want 60", events)
	}
}

func TestPermanentDelete(t *testing.T) {
	db := newTestDB(t)
	s := newTestDeviceService(t, db)
	ctx := context.Background()

	seedDevice(t, db, "doomed", 1)
	insertHeartbeats(t, db, "doomed", time.Now().Add(-time.Hour), time.Minute, 10)
	sample := models.LoginSample{
		ID:         uuid.NewString(),
		DeviceName: "doomed",
		SourceIP:   "203.0.113.10",
		Timestamp:  time.Now().UnixMilli(),
	}
	if err := db.Create(&sample).Error; err != nil {
		t.Fatalf("写入登录样本失败: %v", err)
	}

	if err := s.PermanentDelete(ctx, "doomed"); err != nil {
		t.Fatalf("PermanentDelete() 失败: %v", err)
	}

	var devices, events, samples int64
	db.Model(&models.Device{}).Where("name = ?", "doomed").Count(&devices)
	db.Model(&models.HeartbeatEvent{}).Where("device_name = ?", "doomed").Count(&events)
	db.Model(&models.LoginSample{}).Where("device_name = ?", "doomed").Count(&samples)
	if devices != 0 || events != 0 || samples != 0 {
		t.Errorf("永久删除后仍有残留: devices=%d events=%d samples=%d", devices, events, samples)
	}

	if err := s.PermanentDelete(ctx, "doomed"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("重复删除应返回 ErrDeviceNotFound，实际 %v", err)
	}
}

func TestSummarizeLogins(t *testing.T) {
	newSample := func(ip, city, country string, latency int) models.LoginSample {
		return models.LoginSample{
			ID:        uuid.NewString(),
			SourceIP:  ip,
			Geo:       models.NewGeoJSON(models.GeoLocation{City: city, Country: country}),
			LatencyMs: latency,
		}
	}

	t.Run("常规汇总", func(t *testing.T) {
		samples := []models.LoginSample{
			newSample("203.0.113.1", "Shanghai", "China", 20),
			newSample("203.0.113.1", "Shanghai", "China", 40),
			newSample("203.0.113.2", "Beijing", "China", 33),
		}

		summary := summarizeLogins(samples)
		if summary.AveragePingMs != 31.0 {
			t.Errorf("平均延迟 = %v, want 31.0", summary.AveragePingMs)
		}
		if summary.UniqueIPs != 2 {
			t.Errorf("去重 IP 数 = %d, want 2", summary.UniqueIPs)
		}
		if summary.UniqueLocations != 2 {
			t.Errorf("去重位置数 = %d, want 2", summary.UniqueLocations)
		}
		if summary.MostCommonLocation != "Shanghai, China" {
			t.Errorf("最常见位置 = %s, want Shanghai, China", summary.MostCommonLocation)
		}
	})

	t.Run("并列取字典序最小", func(t *testing.T) {
		samples := []models.LoginSample{
			newSample("203.0.113.1", "Shanghai", "China", 0),
			newSample("203.0.113.2", "Beijing", "China", 0),
		}

		summary := summarizeLogins(samples)
		if summary.MostCommonLocation != "Beijing, China" {
			t.Errorf("并列时应取字典序最小，实际 %s", summary.MostCommonLocation)
		}
		if summary.AveragePingMs != 0 {
			t.Errorf("无有效延迟时平均值应为 0，实际 %v", summary.AveragePingMs)
		}
	})

	t.Run("空样本", func(t *testing.T) {
		summary := summarizeLogins(nil)
		if summary.MostCommonLocation != "" || summary.UniqueIPs != 0 {
			t.Errorf("空样本的汇总应为零值: %+v", summary)
		}
	})
}
