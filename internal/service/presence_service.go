package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dushixiang/pulse/internal/config"
	"github.com/dushixiang/pulse/internal/models"
	"github.com/dushixiang/pulse/internal/repo"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// HeartbeatRequest 心跳上报请求
type HeartbeatRequest struct {
	DeviceName string `json:"device_name"`
	HardwareID string `json:"hardware_id,omitempty"`
	Timestamp  string `json:"timestamp,omitempty"` // 仅供参考，服务端时间为准
	PingMs     int    `json:"ping_ms,omitempty"`
}

// HeartbeatResult 心跳处理结果
type HeartbeatResult struct {
	DeviceName string // 处理后的设备名称（改名后为新名称）
	ServerTime int64  // 服务端接收时间（毫秒）
	IsNewLogin bool   // 是否为新登录
}

// PresenceService 在线状态引擎：心跳分类、新登录检测、注册表维护
type PresenceService struct {
	logger          *zap.Logger
	db              *gorm.DB
	loginSampleRepo *repo.LoginSampleRepo
	geoipService    *GeoIPService
	cfg             config.PresenceConfig

	// 同一设备的心跳必须串行处理，避免并发丢失计数或重复判定新登录
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewPresenceService(logger *zap.Logger, db *gorm.DB, geoipService *GeoIPService, cfg config.PresenceConfig) *PresenceService {
	return &PresenceService{
		logger:          logger,
		db:              db,
		loginSampleRepo: repo.NewLoginSampleRepo(db),
		geoipService:    geoipService,
		cfg:             cfg,
		locks:           make(map[string]*sync.Mutex),
	}
}

// OfflineThreshold 离线判定阈值
func (s *PresenceService) OfflineThreshold() time.Duration {
	minutes := s.cfg.OfflineThresholdMinutes
	if minutes <= 0 {
		minutes = 5
	}
	return time.Duration(minutes) * time.Minute
}

// loginGap 新登录判定间隔
func (s *PresenceService) loginGap() time.Duration {
	minutes := s.cfg.LoginGapMinutes
	if minutes <= 0 {
		minutes = 10
	}
	return time.Duration(minutes) * time.Minute
}

// IsOnline 判断设备当前是否在线：最后上报时间距 now 不超过离线阈值
func (s *PresenceService) IsOnline(device *models.Device, now time.Time) bool {
	if device.LastSeen == 0 {
		return false
	}
	return now.UnixMilli()-device.LastSeen <= s.OfflineThreshold().Milliseconds()
}

// lockDevice 按名称和硬件标识各取一把设备锁，返回解锁函数
// 两把锁都要拿：只带其中一个标识的并发心跳也必须互斥；按键排序后加锁避免死锁
func (s *PresenceService) lockDevice(name, hardwareID string) func() {
	keys := []string{"name:" + name}
	if hardwareID != "" {
		keys = append(keys, "hw:"+hardwareID)
	}
	sort.Strings(keys)

	s.mu.Lock()
	locks := make([]*sync.Mutex, 0, len(keys))
	for _, key := range keys {
		lock, ok := s.locks[key]
		if !ok {
			lock = &sync.Mutex{}
			s.locks[key] = lock
		}
		locks = append(locks, lock)
	}
	s.mu.Unlock()

	for _, lock := range locks {
		lock.Lock()
	}
	return func() {
		for i := len(locks) - 1; i >= 0; i-- {
			locks[i].Unlock()
		}
	}
}

// HandleHeartbeat 处理一次心跳上报
// 流程：按硬件身份改名（如需要）→ 新登录判定 → 注册表更新 + 事件追加（同一事务）→ 异步采集登录样本
func (s *PresenceService) HandleHeartbeat(ctx context.Context, req *HeartbeatRequest, sourceIP string) (*HeartbeatResult, error) {
	name := strings.TrimSpace(req.DeviceName)
	hardwareID := strings.TrimSpace(req.HardwareID)

	unlock := s.lockDevice(name, hardwareID)
	defer unlock()

	now := time.Now()
	nowMilli := now.UnixMilli()

	var isNewLogin bool
	var finalName string

	// 注册表更新和事件追加要么同时提交要么同时回滚，事务内的仓库全部绑定 tx 句柄
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		deviceRepo := repo.NewDeviceRepo(tx)
		heartbeatRepo := repo.NewHeartbeatRepo(tx)

		device, err := s.resolveDevice(ctx, deviceRepo, name, hardwareID)
		if err != nil {
			return err
		}

		if device == nil {
			// 首次见到的设备：建档并视为新登录
			isNewLogin = true
			finalName = name
			device = &models.Device{
				Name:            name,
				HardwareID:      hardwareID,
				FirstSeen:       nowMilli,
				LastSeen:        nowMilli,
				TotalHeartbeats: 1,
				Status:          models.DeviceStatusActive,
				CreatedAt:       nowMilli,
			}
			if err := deviceRepo.Create(ctx, device); err != nil {
				return err
			}
		} else {
			// 判定基于更新前的 last_seen
			isNewLogin = device.LastSeen == 0 ||
				nowMilli-device.LastSeen > s.loginGap().Milliseconds()
			finalName = device.Name

			if device.HardwareID == "" && hardwareID != "" {
				device.HardwareID = hardwareID
				if err := deviceRepo.Save(ctx, device); err != nil {
					return err
				}
			}
			if err := deviceRepo.Touch(ctx, device.Name, nowMilli); err != nil {
				return err
			}
		}

		return heartbeatRepo.Create(ctx, &models.HeartbeatEvent{
			DeviceName: finalName,
			Timestamp:  nowMilli,
		})
	})
	if err != nil {
		return nil, err
	}

	if isNewLogin {
		s.recordLoginSample(finalName, hardwareID, sourceIP, req.PingMs, nowMilli)
	}

	return &HeartbeatResult{
		DeviceName: finalName,
		ServerTime: nowMilli,
		IsNewLogin: isNewLogin,
	}, nil
}

// resolveDevice 解析心跳对应的设备，硬件标识优先作为真实身份
// 已知硬件标识携带新名称时先执行改名，保证历史连续性跟随硬件身份
// 改名涉及三张表，调用方保证 deviceRepo 绑定在事务句柄上
func (s *PresenceService) resolveDevice(ctx context.Context, deviceRepo *repo.DeviceRepo, name, hardwareID string) (*models.Device, error) {
	if hardwareID != "" {
		device, err := deviceRepo.FindByHardwareID(ctx, hardwareID)
		if err != nil {
			return nil, err
		}
		if device != nil {
			if device.Name != name {
				occupied, err := deviceRepo.FindByName(ctx, name)
				if err != nil {
					return nil, err
				}
				if occupied != nil {
					// 新名称已被其他设备占用，保持原名继续上报
					s.logger.Warn("设备改名冲突，保持原名称",
						zap.String("hardwareId", hardwareID),
						zap.String("oldName", device.Name),
						zap.String("newName", name))
					return device, nil
				}
				if err := deviceRepo.Rename(ctx, device.Name, name); err != nil {
					return nil, err
				}
				s.logger.Info("设备按硬件身份改名",
					zap.String("hardwareId", hardwareID),
					zap.String("oldName", device.Name),
					zap.String("newName", name))
				device.Name = name
			}
			return device, nil
		}
	}
	return deviceRepo.FindByName(ctx, name)
}

// recordLoginSample 异步采集登录样本
// 地理位置查询有超时保护，失败只影响样本质量，不影响心跳结果
func (s *PresenceService) recordLoginSample(deviceName, hardwareID, sourceIP string, pingMs int, timestamp int64) {
	go func() {
		timeout := s.geoipService.httpClient.Timeout + 2*time.Second
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		geo := s.geoipService.Lookup(ctx, sourceIP)

		sample := &models.LoginSample{
			ID:         uuid.NewString(),
			DeviceName: deviceName,
			HardwareID: hardwareID,
			SourceIP:   sourceIP,
			Geo:        models.NewGeoJSON(geo),
			LatencyMs:  pingMs,
			Timestamp:  timestamp,
		}
		if err := s.loginSampleRepo.Create(ctx, sample); err != nil {
			s.logger.Error("保存登录样本失败",
				zap.String("deviceName", deviceName),
				zap.Error(err))
			return
		}

		s.logger.Info("新登录已记录",
			zap.String("deviceName", deviceName),
			zap.String("sourceIp", sourceIP),
			zap.String("location", sample.Location()))
	}()
}
