package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/dushixiang/pulse/pkg/agent/config"
	"github.com/jpillora/backoff"
	probing "github.com/prometheus-community/pro-bing"
)

// heartbeatPayload 心跳上报内容
type heartbeatPayload struct {
	DeviceName string `json:"device_name"`
	HardwareID string `json:"hardware_id,omitempty"`
	Timestamp  string `json:"timestamp"` // 仅供参考，服务端以接收时间为准
	PingMs     int    `json:"ping_ms,omitempty"`
}

// heartbeatResponse 服务端响应
type heartbeatResponse struct {
	Status     string `json:"status"`
	DeviceName string `json:"device_name"`
	ServerTime string `json:"server_time"`
	IsNewLogin bool   `json:"is_new_login"`
}

// Reporter 心跳探针：按固定间隔上报，失败时指数退避重试
type Reporter struct {
	cfg        *config.Config
	httpClient *http.Client
	hardwareID string
	serverHost string
	count      int64
}

// NewReporter 创建探针
func NewReporter(cfg *config.Config) *Reporter {
	return &Reporter{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
		},
		hardwareID: macAddress(),
		serverHost: serverHost(cfg.Server.URL),
	}
}

// Start 启动上报循环，阻塞直到 ctx 取消
func (r *Reporter) Start(ctx context.Context) error {
	interval := time.Duration(r.cfg.Agent.IntervalSeconds) * time.Second

	slog.Info("心跳探针已启动",
		"deviceName", r.cfg.Agent.DeviceName,
		"server", r.cfg.Server.URL,
		"interval", interval,
		"hardwareId", r.hardwareID)

	// 失败时指数退避，成功后恢复固定间隔
	retry := &backoff.Backoff{
		Min:    interval,
		Max:    5 * time.Minute,
		Factor: 2,
		Jitter: true,
	}

	for {
		wait := interval
		if err := r.sendHeartbeat(ctx); err != nil {
			wait = retry.Duration()
			slog.Error("心跳上报失败", "error", err, "retryIn", wait)
		} else {
			retry.Reset()
			r.count++
			slog.Info("心跳上报成功", "count", r.count)
		}

		select {
		case <-ctx.Done():
			slog.Info("心跳探针已停止")
			return nil
		case <-time.After(wait):
		}
	}
}

// sendHeartbeat 发送一次心跳
func (r *Reporter) sendHeartbeat(ctx context.Context) error {
	payload := heartbeatPayload{
		DeviceName: r.cfg.Agent.DeviceName,
		HardwareID: r.hardwareID,
		Timestamp:  time.Now().Format("2006-01-02 15:04:05"),
	}
	if !r.cfg.Agent.DisablePing {
		payload.PingMs = r.measurePing()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		r.cfg.Server.URL+"/heartbeat", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("服务端返回状态码 %d", resp.StatusCode)
	}

	var result heartbeatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return err
	}
	if result.IsNewLogin {
		slog.Info("服务端判定为新登录", "serverTime", result.ServerTime)
	}
	return nil
}

// measurePing 向服务端发送一次 ICMP 探测，返回往返延迟（毫秒），失败返回 0
func (r *Reporter) measurePing() int {
	if r.serverHost == "" {
		return 0
	}

	pinger, err := probing.NewPinger(r.serverHost)
	if err != nil {
		return 0
	}
	pinger.Count = 1
	pinger.Timeout = 2 * time.Second
	pinger.SetPrivileged(false)

	if err := pinger.Run(); err != nil {
		// 非特权模式失败时尝试特权模式
		pinger.SetPrivileged(true)
		if err := pinger.Run(); err != nil {
			return 0
		}
	}

	stats := pinger.Statistics()
	if stats.PacketsRecv == 0 {
		return 0
	}
	return int(stats.AvgRtt.Milliseconds())
}

// macAddress 取第一块非回环网卡的 MAC 地址作为硬件标识
func macAddress() string {
	interfaces, err := net.Interfaces()
	if err != nil {
		return ""
	}
	for _, iface := range interfaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if addr := iface.HardwareAddr.String(); addr != "" {
			return addr
		}
	}
	return ""
}

// serverHost 从服务端地址中提取主机名，用于延迟探测
func serverHost(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
