package models

// HeartbeatEvent 心跳事件（仅追加，用于在线率计算）
type HeartbeatEvent struct {
	ID         uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	DeviceName string `gorm:"index;not null" json:"deviceName"` // 设备名称（改名时会整体迁移到新名称）
	Timestamp  int64  `gorm:"index" json:"timestamp"`           // 服务端接收时间（毫秒），不信任客户端时钟
}

func (HeartbeatEvent) TableName() string {
	return "heartbeat_events"
}
