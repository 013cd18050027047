package repo

import (
	"context"

	"github.com/dushixiang/pulse/internal/models"
	"gorm.io/gorm"
)

// LoginSampleRepo 登录样本数据访问层
type LoginSampleRepo struct {
	db *gorm.DB
}

func NewLoginSampleRepo(db *gorm.DB) *LoginSampleRepo {
	return &LoginSampleRepo{db: db}
}

// Create 创建登录样本
func (r *LoginSampleRepo) Create(ctx context.Context, sample *models.LoginSample) error {
	return r.db.WithContext(ctx).Create(sample).Error
}

// ListByDeviceName 查询设备的登录样本（按时间倒序，限制条数）
func (r *LoginSampleRepo) ListByDeviceName(ctx context.Context, deviceName string, limit int) ([]models.LoginSample, error) {
	var samples []models.LoginSample
	err := r.db.WithContext(ctx).
		Where("device_name = ?", deviceName).
		Order("timestamp DESC").
		Limit(limit).
		Find(&samples).Error
	return samples, err
}

// ListRecent 查询所有设备最近的登录样本
func (r *LoginSampleRepo) ListRecent(ctx context.Context, limit int) ([]models.LoginSample, error) {
	var samples []models.LoginSample
	err := r.db.WithContext(ctx).
		Order("timestamp DESC").
		Limit(limit).
		Find(&samples).Error
	return samples, err
}

// CountByDeviceName 统计设备的登录样本数量
func (r *LoginSampleRepo) CountByDeviceName(ctx context.Context, deviceName string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.LoginSample{}).
		Where("device_name = ?", deviceName).
		Count(&count).Error
	return count, err
}

// DeleteBefore 删除指定时间之前的登录样本，返回删除数量
func (r *LoginSampleRepo) DeleteBefore(ctx context.Context, cutoff int64) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("timestamp < ?", cutoff).
		Delete(&models.LoginSample{})
	return result.RowsAffected, result.Error
}

// DeleteByDeviceName 删除设备的所有登录样本
func (r *LoginSampleRepo) DeleteByDeviceName(ctx context.Context, deviceName string) error {
	return r.db.WithContext(ctx).
		Where("device_name = ?", deviceName).
		Delete(&models.LoginSample{}).Error
}
