package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/dushixiang/pulse/internal/models"
	"github.com/dushixiang/pulse/internal/service"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// DeviceHandler 设备查询与维护处理器
type DeviceHandler struct {
	logger        *zap.Logger
	deviceService *service.DeviceService
}

func NewDeviceHandler(logger *zap.Logger, deviceService *service.DeviceService) *DeviceHandler {
	return &DeviceHandler{
		logger:        logger,
		deviceService: deviceService,
	}
}

// fail 统一错误响应：设备不存在返回 404，其余 500
func (h *DeviceHandler) fail(c echo.Context, err error, message string) error {
	if errors.Is(err, service.ErrDeviceNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": "设备不存在",
		})
	}
	h.logger.Error(message, zap.Error(err))
	return c.JSON(http.StatusInternalServerError, map[string]string{
		"error": message,
	})
}

// List 列出活跃设备及状态
// GET /api/devices
func (h *DeviceHandler) List(c echo.Context) error {
	devices, err := h.deviceService.ListDevices(c.Request().Context(), models.DeviceStatusActive)
	if err != nil {
		return h.fail(c, err, "查询设备列表失败")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"devices": devices,
		"total":   len(devices),
	})
}

// ListArchived 列出已归档设备
// GET /api/devices/archived
func (h *DeviceHandler) ListArchived(c echo.Context) error {
	devices, err := h.deviceService.ListDevices(c.Request().Context(), models.DeviceStatusArchived)
	if err != nil {
		return h.fail(c, err, "查询归档设备失败")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"devices": devices,
		"total":   len(devices),
	})
}

// Overview 全局统计
// GET /api/overview
func (h *DeviceHandler) Overview(c echo.Context) error {
	overview, err := h.deviceService.Overview(c.Request().Context())
	if err != nil {
		return h.fail(c, err, "查询全局统计失败")
	}
	return c.JSON(http.StatusOK, overview)
}

// WeeklyUptime 设备本周每日在线率分块
// GET /api/devices/:name/uptime
func (h *DeviceHandler) WeeklyUptime(c echo.Context) error {
	name := c.Param("name")

	blocks, average, err := h.deviceService.WeeklyUptime(c.Request().Context(), name)
	if err != nil {
		return h.fail(c, err, "查询在线率失败")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"device_name":    name,
		"blocks":         blocks,
		"average_uptime": average,
	})
}

// LoginStatistics 设备登录统计
// GET /api/devices/:name/logins
func (h *DeviceHandler) LoginStatistics(c echo.Context) error {
	name := c.Param("name")

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	stats, err := h.deviceService.LoginStatistics(c.Request().Context(), name, limit)
	if err != nil {
		return h.fail(c, err, "查询登录统计失败")
	}
	return c.JSON(http.StatusOK, stats)
}

// RecentLogins 所有设备最近的登录
// GET /api/logins/recent
func (h *DeviceHandler) RecentLogins(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 || limit > 500 {
		limit = 20
	}

	samples, err := h.deviceService.RecentLogins(c.Request().Context(), limit)
	if err != nil {
		return h.fail(c, err, "查询最近登录失败")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"logins": samples,
		"total":  len(samples),
	})
}

// ReorderOne 修改单个设备的排序
// POST /api/devices/:name/order
func (h *DeviceHandler) ReorderOne(c echo.Context) error {
	name := c.Param("name")

	var req struct {
		Order int `json:"order"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "请求参数错误",
		})
	}

	if err := h.deviceService.ReorderOne(c.Request().Context(), name, req.Order); err != nil {
		return h.fail(c, err, "修改排序失败")
	}
	return c.JSON(http.StatusOK, map[string]string{
		"message": "排序已更新",
	})
}

// ReorderAll 按数组顺序整体排序
// POST /api/devices/order
func (h *DeviceHandler) ReorderAll(c echo.Context) error {
	var req struct {
		Devices []string `json:"devices"`
	}
	if err := c.Bind(&req); err != nil || len(req.Devices) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "设备列表不能为空",
		})
	}

	if err := h.deviceService.ReorderAll(c.Request().Context(), req.Devices); err != nil {
		return h.fail(c, err, "整体排序失败")
	}
	return c.JSON(http.StatusOK, map[string]string{
		"message": "排序已更新",
	})
}

// Archive 归档设备
// DELETE /api/devices/:name
func (h *DeviceHandler) Archive(c echo.Context) error {
	if err := h.deviceService.Archive(c.Request().Context(), c.Param("name")); err != nil {
		return h.fail(c, err, "归档设备失败")
	}
	return c.JSON(http.StatusOK, map[string]string{
		"message": "设备已归档",
	})
}

// Restore 恢复已归档设备
// POST /api/devices/:name/restore
func (h *DeviceHandler) Restore(c echo.Context) error {
	if err := h.deviceService.Restore(c.Request().Context(), c.Param("name")); err != nil {
		return h.fail(c, err, "恢复设备失败")
	}
	return c.JSON(http.StatusOK, map[string]string{
		"message": "设备已恢复",
	})
}

// PermanentDelete 永久删除设备及其历史数据
// DELETE /api/devices/:name/permanent
func (h *DeviceHandler) PermanentDelete(c echo.Context) error {
	if err := h.deviceService.PermanentDelete(c.Request().Context(), c.Param("name")); err != nil {
		return h.fail(c, err, "删除设备失败")
	}
	return c.JSON(http.StatusOK, map[string]string{
		"message": "设备已永久删除",
	})
}
