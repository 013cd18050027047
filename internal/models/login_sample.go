package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// GeoLocation 地理位置信息
type GeoLocation struct {
	Country   string  `json:"country"`
	Region    string  `json:"region"`
	City      string  `json:"city"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	ISP       string  `json:"isp"`
}

// LoginSample 新登录样本（每个连续在线会话最多一条）
type LoginSample struct {
	ID         string                              `gorm:"primaryKey" json:"id"`             // 样本ID (UUID)
	DeviceName string                              `gorm:"index;not null" json:"deviceName"` // 设备名称
	HardwareID string                              `json:"hardwareId,omitempty"`             // 硬件标识
	SourceIP   string                              `gorm:"index" json:"sourceIp"`            // 来源IP
	Geo        datatypes.JSONType[GeoLocation]     `json:"geo"`                              // 地理位置
	LatencyMs  int                                 `json:"latencyMs"`                        // 客户端上报的延迟（毫秒）
	Timestamp  int64                               `gorm:"index" json:"timestamp"`           // 登录时间（毫秒）
	CreatedAt  int64                               `json:"createdAt"`                        // 记录创建时间（毫秒）
}

func (LoginSample) TableName() string {
	return "login_samples"
}

// NewGeoJSON 包装地理位置为 JSON 字段
func NewGeoJSON(geo GeoLocation) datatypes.JSONType[GeoLocation] {
	return datatypes.NewJSONType(geo)
}

// BeforeCreate GORM钩子：设置创建时间
func (s *LoginSample) BeforeCreate(tx *gorm.DB) error {
	if s.CreatedAt == 0 {
		s.CreatedAt = time.Now().UnixMilli()
	}
	return nil
}

// Location 返回 "城市, 国家" 形式的位置标识
func (s *LoginSample) Location() string {
	geo := s.Geo.Data()
	if geo.City == "" && geo.Country == "" {
		return ""
	}
	if geo.City == "" {
		return geo.Country
	}
	return geo.City + ", " + geo.Country
}
