package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/carmandale/AIMS-sub000/internal/config"
	"github.com/carmandale/AIMS-sub000/internal/models"
	"github.com/carmandale/AIMS-sub000/internal/services"
)

// AnalyticsController exposes the analytics queries over HTTP.
type AnalyticsController struct {
	service  *services.AnalyticsService
	defaults config.AnalyticsConfig
	logger   *logrus.Logger
}

// NewAnalyticsController creates the controller.
func NewAnalyticsController(service *services.AnalyticsService, defaults config.AnalyticsConfig, logger *logrus.Logger) *AnalyticsController {
	return &AnalyticsController{
		service:  service,
		defaults: defaults,
		logger:   logger,
	}
}

// RegisterRoutes mounts the analytics endpoints on a router group.
func (c *AnalyticsController) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/:userId/metrics", c.GetMetrics)
	r.GET("/:userId/history", c.GetHistory)
	r.GET("/:userId/drawdown/current", c.GetCurrentDrawdown)
	r.GET("/:userId/drawdown/events", c.GetDrawdownEvents)
	r.GET("/:userId/drawdown/analysis", c.GetDrawdownAnalysis)
	r.GET("/:userId/alerts", c.GetAlerts)
}

// GetMetrics handles GET /:userId/metrics
func (c *AnalyticsController) GetMetrics(ctx *gin.Context) {
	userID, ok := c.userID(ctx)
	if !ok {
		return
	}

	period := ctx.DefaultQuery("period", c.defaults.DefaultPeriod)
	frequency := ctx.DefaultQuery("frequency", c.defaults.DefaultFrequency)
	benchmark := ctx.Query("benchmark")

	response, err := c.service.GetMetrics(ctx.Request.Context(), userID, period, frequency, benchmark)
	if err != nil {
		c.respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"success": true, "data": response})
}

// GetHistory handles GET /:userId/history
func (c *AnalyticsController) GetHistory(ctx *gin.Context) {
	userID, ok := c.userID(ctx)
	if !ok {
		return
	}

	period := ctx.DefaultQuery("period", c.defaults.DefaultPeriod)
	frequency := ctx.DefaultQuery("frequency", c.defaults.DefaultFrequency)
	start := ctx.Query("start")
	end := ctx.Query("end")

	response, err := c.service.GetHistory(ctx.Request.Context(), userID, period, start, end, frequency)
	if err != nil {
		c.respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"success": true, "data": response})
}

// GetCurrentDrawdown handles GET /:userId/drawdown/current
func (c *AnalyticsController) GetCurrentDrawdown(ctx *gin.Context) {
	userID, ok := c.userID(ctx)
	if !ok {
		return
	}

	response, err := c.service.GetCurrentDrawdown(ctx.Request.Context(), userID)
	if err != nil {
		c.respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"success": true, "data": response})
}

// GetDrawdownEvents handles GET /:userId/drawdown/events
func (c *AnalyticsController) GetDrawdownEvents(ctx *gin.Context) {
	userID, ok := c.userID(ctx)
	if !ok {
		return
	}

	period := ctx.DefaultQuery("period", "all")

	var minMagnitude *decimal.Decimal
	if raw := ctx.Query("min_magnitude"); raw != "" {
		value, err := decimal.NewFromString(raw)
		if err != nil || value.IsNegative() {
			ctx.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "min_magnitude must be a non-negative number"})
			return
		}
		minMagnitude = &value
	}

	response, err := c.service.GetDrawdownEvents(ctx.Request.Context(), userID, period, minMagnitude)
	if err != nil {
		c.respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"success": true, "data": response})
}

// GetDrawdownAnalysis handles GET /:userId/drawdown/analysis
func (c *AnalyticsController) GetDrawdownAnalysis(ctx *gin.Context) {
	userID, ok := c.userID(ctx)
	if !ok {
		return
	}

	period := ctx.DefaultQuery("period", "all")

	response, err := c.service.GetDrawdownAnalysis(ctx.Request.Context(), userID, period)
	if err != nil {
		c.respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"success": true, "data": response})
}

// GetAlerts handles GET /:userId/alerts
func (c *AnalyticsController) GetAlerts(ctx *gin.Context) {
	userID, ok := c.userID(ctx)
	if !ok {
		return
	}

	var overrides models.AlertThresholdConfig
	if raw := ctx.Query("thresholds"); raw != "" {
		parsed, err := models.ParseAlertThresholds(raw)
		if err != nil {
			c.respondError(ctx, err)
			return
		}
		overrides = parsed
	}

	response, err := c.service.GetAlerts(ctx.Request.Context(), userID, overrides)
	if err != nil {
		c.respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"success": true, "data": response})
}

// userID parses the path parameter, answering 400 itself on failure.
func (c *AnalyticsController) userID(ctx *gin.Context) (int64, bool) {
	userID, err := strconv.ParseInt(ctx.Param("userId"), 10, 64)
	if err != nil || userID <= 0 {
		ctx.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid user ID"})
		return 0, false
	}
	return userID, true
}

// respondError maps service errors to HTTP statuses: caller mistakes to 400,
// collaborator outages to 503, everything else to 500.
func (c *AnalyticsController) respondError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidPeriod),
		errors.Is(err, models.ErrUnknownBenchmark),
		errors.Is(err, models.ErrConfiguration):
		ctx.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
	case errors.Is(err, models.ErrCollaboratorUnavailable):
		c.logger.WithError(err).Warn("Collaborator unavailable")
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": err.Error()})
	default:
		c.logger.WithError(err).Error("Analytics request failed")
		ctx.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal error"})
	}
}
