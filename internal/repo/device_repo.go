package repo

import (
	"context"

	"github.com/dushixiang/pulse/internal/models"
	"gorm.io/gorm"
)

// DeviceRepo 设备注册表数据访问层
type DeviceRepo struct {
	db *gorm.DB
}

func NewDeviceRepo(db *gorm.DB) *DeviceRepo {
	return &DeviceRepo{db: db}
}

// FindByName 根据名称查找设备
func (r *DeviceRepo) FindByName(ctx context.Context, name string) (*models.Device, error) {
	var device models.Device
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&device).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	return &device, err
}

// FindByHardwareID 根据硬件标识查找设备
func (r *DeviceRepo) FindByHardwareID(ctx context.Context, hardwareID string) (*models.Device, error) {
	if hardwareID == "" {
		return nil, nil
	}
	var device models.Device
	err := r.db.WithContext(ctx).Where("hardware_id = ?", hardwareID).First(&device).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	return &device, err
}

// Create 创建设备
func (r *DeviceRepo) Create(ctx context.Context, device *models.Device) error {
	return r.db.WithContext(ctx).Create(device).Error
}

// Save 保存设备（全字段更新）
func (r *DeviceRepo) Save(ctx context.Context, device *models.Device) error {
	return r.db.WithContext(ctx).Save(device).Error
}

// Touch 记录一次心跳：更新最后上报时间并原子递增计数
func (r *DeviceRepo) Touch(ctx context.Context, name string, now int64) error {
	return r.db.WithContext(ctx).Model(&models.Device{}).
		Where("name = ?", name).
		Updates(map[string]interface{}{
			"last_seen":        now,
			"total_heartbeats": gorm.Expr("total_heartbeats + 1"),
			"updated_at":       now,
		}).Error
}

// List 列出设备，按权重升序、名称升序排列；权重为 0 的排在最后
func (r *DeviceRepo) List(ctx context.Context, status string) ([]models.Device, error) {
	var devices []models.Device
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("CASE WHEN weight = 0 THEN 1 ELSE 0 END, weight ASC, name ASC").
		Find(&devices).Error
	return devices, err
}

// UpdateWeight 更新单个设备的排序权重
func (r *DeviceRepo) UpdateWeight(ctx context.Context, name string, weight int) error {
	return r.db.WithContext(ctx).Model(&models.Device{}).
		Where("name = ?", name).
		Update("weight", weight).Error
}

// UpdateStatus 更新设备状态（归档/恢复）
func (r *DeviceRepo) UpdateStatus(ctx context.Context, name string, status string) error {
	return r.db.WithContext(ctx).Model(&models.Device{}).
		Where("name = ?", name).
		Update("status", status).Error
}

// Rename 设备改名：更新注册表名称，并把历史心跳和登录样本整体迁移到新名称
// 必须在事务中调用，保证三张表的一致性
func (r *DeviceRepo) Rename(ctx context.Context, oldName, newName string) error {
	db := r.db.WithContext(ctx)
	if err := db.Model(&models.Device{}).
		Where("name = ?", oldName).
		Update("name", newName).Error; err != nil {
		return err
	}
	if err := db.Model(&models.HeartbeatEvent{}).
		Where("device_name = ?", oldName).
		Update("device_name", newName).Error; err != nil {
		return err
	}
	return db.Model(&models.LoginSample{}).
		Where("device_name = ?", oldName).
		Update("device_name", newName).Error
}

// DeleteByName 删除设备记录（级联删除由服务层在事务中完成）
func (r *DeviceRepo) DeleteByName(ctx context.Context, name string) error {
	return r.db.WithContext(ctx).Where("name = ?", name).Delete(&models.Device{}).Error
}
