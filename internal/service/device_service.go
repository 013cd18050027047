package service

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/dushixiang/pulse/internal/models"
	"github.com/dushixiang/pulse/internal/repo"
	"github.com/dustin/go-humanize"
	"github.com/go-orz/cache"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrDeviceNotFound 设备不存在
var ErrDeviceNotFound = errors.New("设备不存在")

// statusCacheTTL 设备状态列表缓存时长，与仪表盘 30 秒轮询对齐
const statusCacheTTL = 30 * time.Second

// DeviceStatus 设备状态视图（列表投影）
type DeviceStatus struct {
	Name              string  `json:"device_name"`
	HardwareID        string  `json:"hardware_id,omitempty"`
	Status            string  `json:"status"` // online / offline
	LastSeen          string  `json:"last_seen"`
	LastSeenTimestamp int64   `json:"last_seen_timestamp,omitempty"`
	FirstSeen         int64   `json:"first_seen"`
	TotalHeartbeats   int64   `json:"total_heartbeats"`
	Uptime24h         float64 `json:"uptime_24h"`
	Weight            int     `json:"weight"`
}

// LoginSummary 登录统计汇总
type LoginSummary struct {
	AveragePingMs      float64 `json:"average_ping_ms"`
	UniqueIPs          int     `json:"unique_ips"`
	UniqueLocations    int     `json:"unique_locations"`
	MostCommonLocation string  `json:"most_common_location"`
}

// LoginStats 设备登录统计
type LoginStats struct {
	TotalLogins int64                `json:"total_logins"`
	Statistics  []models.LoginSample `json:"statistics"`
	Summary     LoginSummary         `json:"summary"`
}

// DeviceService 设备注册表查询与维护
type DeviceService struct {
	logger          *zap.Logger
	db              *gorm.DB
	deviceRepo      *repo.DeviceRepo
	loginSampleRepo *repo.LoginSampleRepo
	presenceService *PresenceService
	uptimeService   *UptimeService

	// 状态列表缓存，变更操作按键清除
	statusCache cache.Cache[string, []DeviceStatus]
}

func NewDeviceService(logger *zap.Logger, db *gorm.DB, presenceService *PresenceService, uptimeService *UptimeService) *DeviceService {
	return &DeviceService{
		logger:          logger,
		db:              db,
		deviceRepo:      repo.NewDeviceRepo(db),
		loginSampleRepo: repo.NewLoginSampleRepo(db),
		presenceService: presenceService,
		uptimeService:   uptimeService,
		statusCache:     cache.New[string, []DeviceStatus](statusCacheTTL),
	}
}

// invalidate 清除状态列表缓存
func (s *DeviceService) invalidate() {
	s.statusCache.Delete("devices:" + models.DeviceStatusActive)
	s.statusCache.Delete("devices:" + models.DeviceStatusArchived)
}

// ListDevices 列出指定状态的设备及其计算属性（在线状态、24h 在线率）
func (s *DeviceService) ListDevices(ctx context.Context, status string) ([]DeviceStatus, error) {
	cacheKey := "devices:" + status
	if cached, ok := s.statusCache.Get(cacheKey); ok {
		return cached, nil
	}

	devices, err := s.deviceRepo.List(ctx, status)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	items := make([]DeviceStatus, 0, len(devices))
	for i := range devices {
		device := &devices[i]

		uptime, err := s.uptimeService.RollingUptime(ctx, device.Name, 24)
		if err != nil {
			return nil, err
		}

		item := DeviceStatus{
			Name:            device.Name,
			HardwareID:      device.HardwareID,
			Status:          "offline",
			LastSeen:        "Never",
			FirstSeen:       device.FirstSeen,
			TotalHeartbeats: device.TotalHeartbeats,
			Uptime24h:       uptime,
			Weight:          device.Weight,
		}
		if s.presenceService.IsOnline(device, now) {
			item.Status = "online"
		}
		if device.LastSeen > 0 {
			item.LastSeen = humanize.Time(time.UnixMilli(device.LastSeen))
			item.LastSeenTimestamp = device.LastSeen
		}
		items = append(items, item)
	}

	s.statusCache.Set(cacheKey, items, statusCacheTTL)
	return items, nil
}

// Overview 全局统计：设备总数、在线数、离线数
func (s *DeviceService) Overview(ctx context.Context) (map[string]interface{}, error) {
	devices, err := s.ListDevices(ctx, models.DeviceStatusActive)
	if err != nil {
		return nil, err
	}

	online := 0
	for _, device := range devices {
		if device.Status == "online" {
			online++
		}
	}

	return map[string]interface{}{
		"total":   len(devices),
		"online":  online,
		"offline": len(devices) - online,
	}, nil
}

// mustFind 查找设备，不存在时返回 ErrDeviceNotFound
func (s *DeviceService) mustFind(ctx context.Context, name string) (*models.Device, error) {
	device, err := s.deviceRepo.FindByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if device == nil {
		return nil, ErrDeviceNotFound
	}
	return device, nil
}

// ReorderOne 修改单个设备的排序权重
func (s *DeviceService) ReorderOne(ctx context.Context, name string, weight int) error {
	if _, err := s.mustFind(ctx, name); err != nil {
		return err
	}
	if err := s.deviceRepo.UpdateWeight(ctx, name, weight); err != nil {
		return err
	}
	s.invalidate()
	return nil
}

// ReorderAll 按名称数组整体排序，数组下标即新权重（从 1 开始）
// 重复提交同一数组结果相同；任意一个名称不存在则整体回滚
func (s *DeviceService) ReorderAll(ctx context.Context, names []string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		deviceRepo := repo.NewDeviceRepo(tx)
		for i, name := range names {
			device, err := deviceRepo.FindByName(ctx, name)
			if err != nil {
				return err
			}
			if device == nil {
				return ErrDeviceNotFound
			}
			if err := deviceRepo.UpdateWeight(ctx, name, i+1); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.invalidate()
	return nil
}

// Archive 归档设备（软删除，历史数据保留）
func (s *DeviceService) Archive(ctx context.Context, name string) error {
	if _, err := s.mustFind(ctx, name); err != nil {
		return err
	}
	if err := s.deviceRepo.UpdateStatus(ctx, name, models.DeviceStatusArchived); err != nil {
		return err
	}
	s.invalidate()
	s.logger.Info("设备已归档", zap.String("deviceName", name))
	return nil
}

// Restore 恢复已归档的设备
func (s *DeviceService) Restore(ctx context.Context, name string) error {
	if _, err := s.mustFind(ctx, name); err != nil {
		return err
	}
	if err := s.deviceRepo.UpdateStatus(ctx, name, models.DeviceStatusActive); err != nil {
		return err
	}
	s.invalidate()
	s.logger.Info("设备已恢复", zap.String("deviceName", name))
	return nil
}

// PermanentDelete 永久删除设备及其所有心跳事件和登录样本
func (s *DeviceService) PermanentDelete(ctx context.Context, name string) error {
	if _, err := s.mustFind(ctx, name); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.NewHeartbeatRepo(tx).DeleteByDeviceName(ctx, name); err != nil {
			return err
		}
		if err := repo.NewLoginSampleRepo(tx).DeleteByDeviceName(ctx, name); err != nil {
			return err
		}
		return repo.NewDeviceRepo(tx).DeleteByName(ctx, name)
	})
	if err != nil {
		return err
	}

	s.invalidate()
	s.logger.Info("设备已永久删除", zap.String("deviceName", name))
	return nil
}

// WeeklyUptime 设备本周每日在线率分块
// 未知名称返回 ErrDeviceNotFound，而不是一排 0% 的假数据
func (s *DeviceService) WeeklyUptime(ctx context.Context, name string) ([]DayBlock, float64, error) {
	if _, err := s.mustFind(ctx, name); err != nil {
		return nil, 0, err
	}
	return s.uptimeService.WeeklyBlocks(ctx, name)
}

// LoginStatistics 设备的登录统计：样本列表、平均延迟、去重 IP/位置、最常见位置
func (s *DeviceService) LoginStatistics(ctx context.Context, name string, limit int) (*LoginStats, error) {
	if _, err := s.mustFind(ctx, name); err != nil {
		return nil, err
	}

	total, err := s.loginSampleRepo.CountByDeviceName(ctx, name)
	if err != nil {
		return nil, err
	}

	samples, err := s.loginSampleRepo.ListByDeviceName(ctx, name, limit)
	if err != nil {
		return nil, err
	}

	return &LoginStats{
		TotalLogins: total,
		Statistics:  samples,
		Summary:     summarizeLogins(samples),
	}, nil
}

// RecentLogins 所有设备最近的登录样本
func (s *DeviceService) RecentLogins(ctx context.Context, limit int) ([]models.LoginSample, error) {
	return s.loginSampleRepo.ListRecent(ctx, limit)
}

// summarizeLogins 汇总登录样本
// 最常见位置按出现次数取最大，并列时取字典序最小的，保证结果确定
func summarizeLogins(samples []models.LoginSample) LoginSummary {
	summary := LoginSummary{}
	if len(samples) == 0 {
		return summary
	}

	var pingSum, pingCount int64
	ips := make(map[string]struct{})
	locations := make(map[string]int)

	for i := range samples {
		sample := &samples[i]
		if sample.LatencyMs > 0 {
			pingSum += int64(sample.LatencyMs)
			pingCount++
		}
		if sample.SourceIP != "" {
			ips[sample.SourceIP] = struct{}{}
		}
		if location := sample.Location(); location != "" {
			locations[location]++
		}
	}

	if pingCount > 0 {
		summary.AveragePingMs = math.Round(float64(pingSum)/float64(pingCount)*10) / 10
	}
	summary.UniqueIPs = len(ips)
	summary.UniqueLocations = len(locations)

	keys := make([]string, 0, len(locations))
	for location := range locations {
		keys = append(keys, location)
	}
	sort.Strings(keys)
	best := ""
	bestCount := 0
	for _, location := range keys {
		if locations[location] > bestCount {
			best = location
			bestCount = locations[location]
		}
	}
	summary.MostCommonLocation = best

	return summary
}
