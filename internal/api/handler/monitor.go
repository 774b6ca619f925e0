package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/halvard/modelwatch/internal/repository"
	"github.com/halvard/modelwatch/internal/service"
)

// MonitorHandler handles file-monitoring endpoints.
type MonitorHandler struct {
	monitor *service.FileMonitor
	files   *repository.FileRepository
}

// NewMonitorHandler creates a new monitor handler.
// Parameters:
//   - monitor: file monitor instance.
//   - files: monitored-file repository.
// Returns:
//   - *MonitorHandler: initialized handler.
func NewMonitorHandler(monitor *service.FileMonitor, files *repository.FileRepository) *MonitorHandler {
	return &MonitorHandler{
		monitor: monitor,
		files:   files,
	}
}

// Check handles POST /api/v1/monitor/check.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *MonitorHandler) Check(c *gin.Context) {
	result, err := h.monitor.CheckForChanges(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Change check failed: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, result)
}

// ListChanges handles GET /api/v1/monitor/changes.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *MonitorHandler) ListChanges(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	changes, err := h.monitor.RecentChanges(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list changes: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"changes": changes,
		"total":   len(changes),
	})
}

// ListFiles handles GET /api/v1/monitor/files.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *MonitorHandler) ListFiles(c *gin.Context) {
	files, err := h.files.ListActive(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list monitored files: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"files": files,
		"total": len(files),
	})
}
