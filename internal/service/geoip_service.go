package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/dushixiang/pulse/internal/config"
	"github.com/dushixiang/pulse/internal/models"
	"github.com/oschwald/geoip2-golang"
	"go.uber.org/zap"
)

const (
	UnknownLocation = "Unknown"
	LocalNetwork    = "Local Network"
)

// GeoIPService IP 地理位置查询服务
// 优先使用本地 MaxMind 数据库，未配置时走 HTTP 接口，两者都失败返回 Unknown 占位
type GeoIPService struct {
	logger     *zap.Logger
	cfg        config.GeoIPConfig
	reader     *geoip2.Reader
	httpClient *http.Client
}

func NewGeoIPService(logger *zap.Logger, cfg config.GeoIPConfig) *GeoIPService {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	s := &GeoIPService{
		logger: logger,
		cfg:    cfg,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}

	if cfg.DBPath != "" {
		reader, err := geoip2.Open(cfg.DBPath)
		if err != nil {
			logger.Warn("打开 GeoIP 数据库失败，降级为 HTTP 查询",
				zap.String("dbPath", cfg.DBPath),
				zap.Error(err))
		} else {
			s.reader = reader
		}
	}

	return s
}

// Close 关闭本地数据库
func (s *GeoIPService) Close() error {
	if s.reader != nil {
		return s.reader.Close()
	}
	return nil
}

// Lookup 查询 IP 的地理位置
// 内网地址直接返回本地网络占位，不发起外部请求；查询失败返回 Unknown 占位，不向上传播错误
func (s *GeoIPService) Lookup(ctx context.Context, ip string) models.GeoLocation {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return unknownLocation()
	}

	if isPrivateIP(parsed) {
		return models.GeoLocation{
			Country: LocalNetwork,
			Region:  LocalNetwork,
			City:    LocalNetwork,
			ISP:     UnknownLocation,
		}
	}

	if s.reader != nil {
		if geo, err := s.lookupLocal(parsed); err == nil {
			return geo
		} else {
			s.logger.Warn("本地 GeoIP 查询失败", zap.String("ip", ip), zap.Error(err))
		}
	}

	geo, err := s.lookupHTTP(ctx, ip)
	if err != nil {
		s.logger.Warn("HTTP 地理位置查询失败", zap.String("ip", ip), zap.Error(err))
		return unknownLocation()
	}
	return geo
}

// lookupLocal 查询本地 MaxMind 数据库
func (s *GeoIPService) lookupLocal(ip net.IP) (models.GeoLocation, error) {
	record, err := s.reader.City(ip)
	if err != nil {
		return models.GeoLocation{}, err
	}

	geo := models.GeoLocation{
		Country:   record.Country.Names["en"],
		City:      record.City.Names["en"],
		Latitude:  record.Location.Latitude,
		Longitude: record.Location.Longitude,
		ISP:       UnknownLocation, // City 库不含 ISP 信息
	}
	if len(record.Subdivisions) > 0 {
		geo.Region = record.Subdivisions[0].Names["en"]
	}
	if geo.Country == "" {
		geo.Country = UnknownLocation
	}
	if geo.Region == "" {
		geo.Region = UnknownLocation
	}
	if geo.City == "" {
		geo.City = UnknownLocation
	}
	return geo, nil
}

// lookupHTTP 通过外部 HTTP 接口查询
func (s *GeoIPService) lookupHTTP(ctx context.Context, ip string) (models.GeoLocation, error) {
	url := fmt.Sprintf(s.cfg.APIURL, ip)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.GeoLocation{}, err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return models.GeoLocation{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.GeoLocation{}, fmt.Errorf("地理位置接口返回状态码 %d", resp.StatusCode)
	}

	var result struct {
		Status  string  `json:"status"`
		Country string  `json:"country"`
		Region  string  `json:"regionName"`
		City    string  `json:"city"`
		Lat     float64 `json:"lat"`
		Lon     float64 `json:"lon"`
		ISP     string  `json:"isp"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return models.GeoLocation{}, err
	}

	if result.Status != "success" {
		return models.GeoLocation{}, fmt.Errorf("地理位置接口查询失败: %s", result.Status)
	}

	geo := models.GeoLocation{
		Country:   result.Country,
		Region:    result.Region,
		City:      result.City,
		Latitude:  result.Lat,
		Longitude: result.Lon,
		ISP:       result.ISP,
	}
	if geo.Country == "" {
		geo.Country = UnknownLocation
	}
	if geo.Region == "" {
		geo.Region = UnknownLocation
	}
	if geo.City == "" {
		geo.City = UnknownLocation
	}
	if geo.ISP == "" {
		geo.ISP = UnknownLocation
	}
	return geo, nil
}

func unknownLocation() models.GeoLocation {
	return models.GeoLocation{
		Country: UnknownLocation,
		Region:  UnknownLocation,
		City:    UnknownLocation,
		ISP:     UnknownLocation,
	}
}

// isPrivateIP 判断是否为内网/回环地址
func isPrivateIP(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified()
}
