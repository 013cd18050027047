package repo

import (
	"context"

	"github.com/dushixiang/pulse/internal/models"
	"gorm.io/gorm"
)

// HeartbeatRepo 心跳事件数据访问层
type HeartbeatRepo struct {
	db *gorm.DB
}

func NewHeartbeatRepo(db *gorm.DB) *HeartbeatRepo {
	return &HeartbeatRepo{db: db}
}

// Create 追加一条心跳事件
func (r *HeartbeatRepo) Create(ctx context.Context, event *models.HeartbeatEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

// CountSince 统计设备自指定时间以来的心跳数量
func (r *HeartbeatRepo) CountSince(ctx context.Context, deviceName string, since int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.HeartbeatEvent{}).
		Where("device_name = ? AND timestamp >= ?", deviceName, since).
		Count(&count).Error
	return count, err
}

// CountInRange 统计设备在 [start, end) 时间范围内的心跳数量
func (r *HeartbeatRepo) CountInRange(ctx context.Context, deviceName string, start, end int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.HeartbeatEvent{}).
		Where("device_name = ? AND timestamp >= ? AND timestamp < ?", deviceName, start, end).
		Count(&count).Error
	return count, err
}

// DeleteBefore 删除指定时间之前的心跳事件（用于数据清理），返回删除数量
func (r *HeartbeatRepo) DeleteBefore(ctx context.Context, cutoff int64) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("timestamp < ?", cutoff).
		Delete(&models.HeartbeatEvent{})
	return result.RowsAffected, result.Error
}

// DeleteByDeviceName 删除设备的所有心跳事件
func (r *HeartbeatRepo) DeleteByDeviceName(ctx context.Context, deviceName string) error {
	return r.db.WithContext(ctx).
		Where("device_name = ?", deviceName).
		Delete(&models.HeartbeatEvent{}).Error
}
