package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/halvard/modelwatch/internal/domain"
	"github.com/halvard/modelwatch/internal/service"
)

// ExtractionHandler handles extraction run endpoints.
type ExtractionHandler struct {
	extractions *service.ExtractionService
}

// NewExtractionHandler creates a new extraction handler.
// Parameters:
//   - extractions: extraction orchestrator instance.
// Returns:
//   - *ExtractionHandler: initialized handler.
func NewExtractionHandler(extractions *service.ExtractionService) *ExtractionHandler {
	return &ExtractionHandler{
		extractions: extractions,
	}
}

type startRunRequest struct {
	Scope string `json:"scope"`
}

// StartRun handles POST /api/v1/extractions.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *ExtractionHandler) StartRun(c *gin.Context) {
	var req startRunRequest
	// Body is optional; an empty scope means the default scope.
	_ = c.ShouldBindJSON(&req)

	run, err := h.extractions.StartRun(c.Request.Context(), domain.TriggerManual, req.Scope)
	if err != nil {
		if errors.Is(err, service.ErrRunActive) {
			c.JSON(http.StatusConflict, gin.H{
				"error": err.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to start extraction run: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"run_id":           run.ID,
		"status":           run.Status,
		"files_discovered": run.FilesDiscovered,
	})
}

// GetRun handles GET /api/v1/extractions/:id.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *ExtractionHandler) GetRun(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Run ID is required",
		})
		return
	}

	info, err := h.extractions.GetStatus(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Extraction run not found",
		})
		return
	}

	c.JSON(http.StatusOK, info)
}

// ListRuns handles GET /api/v1/extractions.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *ExtractionHandler) ListRuns(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	runs, err := h.extractions.ListHistory(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list extraction runs: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"runs":  runs,
		"total": len(runs),
	})
}

// CancelRun handles POST /api/v1/extractions/:id/cancel.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *ExtractionHandler) CancelRun(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Run ID is required",
		})
		return
	}

	if err := h.extractions.Cancel(c.Request.Context(), id); err != nil {
		if errors.Is(err, domain.ErrRunTerminal) {
			c.JSON(http.StatusConflict, gin.H{
				"error": err.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to cancel extraction run: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"run_id": id,
		"status": "cancelling",
	})
}

// ResumeRun handles POST /api/v1/extractions/:id/resume.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *ExtractionHandler) ResumeRun(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Run ID is required",
		})
		return
	}

	run, err := h.extractions.Resume(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrRunTerminal) || errors.Is(err, service.ErrRunInFlight) {
			c.JSON(http.StatusConflict, gin.H{
				"error": err.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to resume extraction run: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"run_id": run.ID,
		"status": run.Status,
	})
}
