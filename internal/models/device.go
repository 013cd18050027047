package models

// 设备状态
const (
	DeviceStatusActive   = "active"   // 正常
	DeviceStatusArchived = "archived" // 已归档（软删除）
)

// Device 被监控的设备（注册表）
type Device struct {
	ID              uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Name            string `gorm:"uniqueIndex;not null" json:"name"`  // 设备名称（显示标识，唯一）
	HardwareID      string `gorm:"index" json:"hardwareId,omitempty"` // 硬件标识（如 MAC 地址，可选，一旦设置不可变）
	FirstSeen       int64  `json:"firstSeen"`                         // 首次上报时间（毫秒）
	LastSeen        int64  `json:"lastSeen"`                          // 最后上报时间（毫秒）
	TotalHeartbeats int64  `json:"totalHeartbeats"`                   // 累计心跳次数
	Weight          int    `json:"weight"`                            // 排序权重（0 表示未排序，列表中排在最后）
	Status          string `gorm:"index;default:active" json:"status"`
	CreatedAt       int64  `json:"createdAt"` // 创建时间（毫秒）
	UpdatedAt       int64  `gorm:"autoUpdateTime:milli" json:"updatedAt"`
}

func (Device) TableName() string {
	return "devices"
}

// Archived 是否已归档
func (d *Device) Archived() bool {
	return d.Status == DeviceStatusArchived
}
