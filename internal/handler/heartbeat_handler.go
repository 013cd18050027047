package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/dushixiang/pulse/internal/service"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// HeartbeatHandler 心跳接收处理器
type HeartbeatHandler struct {
	logger          *zap.Logger
	presenceService *service.PresenceService
}

func NewHeartbeatHandler(logger *zap.Logger, presenceService *service.PresenceService) *HeartbeatHandler {
	return &HeartbeatHandler{
		logger:          logger,
		presenceService: presenceService,
	}
}

// Receive 接收心跳上报
// POST /heartbeat
func (h *HeartbeatHandler) Receive(c echo.Context) error {
	var req service.HeartbeatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "请求参数错误",
		})
	}

	if strings.TrimSpace(req.DeviceName) == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "device_name is required",
		})
	}

	result, err := h.presenceService.HandleHeartbeat(c.Request().Context(), &req, c.RealIP())
	if err != nil {
		h.logger.Error("处理心跳失败",
			zap.String("deviceName", req.DeviceName),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "存储暂时不可用",
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":       "success",
		"device_name":  result.DeviceName,
		"server_time":  time.UnixMilli(result.ServerTime).Format(time.RFC3339),
		"is_new_login": result.IsNewLogin,
	})
}
