// api/handlers/analytics_handlers.go
package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"pushlytics/api/analytics"
	"pushlytics/api/middleware"
	"pushlytics/api/models"
	"pushlytics/api/utils"
)

type AnalyticsHandlers struct {
	Analyzer analytics.Analyzer
	// Timeout bounds a whole analysis, fallback included. Zero leaves only the
	// request's own deadline.
	Timeout time.Duration
	now     func() time.Time
}

func NewAnalyticsHandlers(a analytics.Analyzer, timeout time.Duration) *AnalyticsHandlers {
	return &AnalyticsHandlers{Analyzer: a, Timeout: timeout, now: time.Now}
}

func (h *AnalyticsHandlers) analysisContext(c *gin.Context) (context.Context, context.CancelFunc) {
	if h.Timeout <= 0 {
		return context.WithCancel(c.Request.Context())
	}
	return context.WithTimeout(c.Request.Context(), h.Timeout)
}

// GetFunnelAnalysis handles GET /api/analytics/funnels/:id.
func (h *AnalyticsHandlers) GetFunnelAnalysis(c *gin.Context) {
	r, err := utils.ParseDateRange(c.Query("startDate"), c.Query("endDate"), c.Query("timeRange"), h.now())
	if err != nil {
		respondError(c, badRequest(err.Error()))
		return
	}

	req := analytics.FunnelRequest{
		OrgID:    c.GetString(middleware.ContextOrgID),
		FunnelID: c.Param("id"),
		Range:    r,
		SiteID:   c.Query("siteId"),
	}
	if raw := c.Query("windowHours"); raw != "" {
		hours, err := strconv.Atoi(raw)
		if err != nil || hours < 0 {
			respondError(c, badRequest("windowHours must be a non-negative integer"))
			return
		}
		req.WindowHours = &hours
	}

	ctx, cancel := h.analysisContext(c)
	defer cancel()

	result, err := h.Analyzer.AnalyzeFunnel(ctx, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// AnalyzeCohort handles POST /api/analytics/cohorts.
func (h *AnalyticsHandlers) AnalyzeCohort(c *gin.Context) {
	var body cohortRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, badRequest("Invalid request body: "+err.Error()))
		return
	}

	r, err := utils.ParseDateRange(body.StartDate, body.EndDate, body.TimeRange, h.now())
	if err != nil {
		respondError(c, badRequest(err.Error()))
		return
	}
	def, err := body.definition(r)
	if err != nil {
		respondError(c, badRequest(err.Error()))
		return
	}

	ctx, cancel := h.analysisContext(c)
	defer cancel()

	result, err := h.Analyzer.AnalyzeCohort(ctx, analytics.CohortRequest{
		OrgID:      c.GetString(middleware.ContextOrgID),
		Definition: def,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetPathAnalysis handles GET /api/analytics/paths.
func (h *AnalyticsHandlers) GetPathAnalysis(c *gin.Context) {
	r, err := utils.ParseDateRange(c.Query("startDate"), c.Query("endDate"), c.Query("timeRange"), h.now())
	if err != nil {
		respondError(c, badRequest(err.Error()))
		return
	}

	result, err := h.Analyzer.AnalyzePaths(c.Request.Context(), analytics.PathRequest{
		OrgID:      c.GetString(middleware.ContextOrgID),
		Range:      r,
		StartEvent: models.EventMatcher{EventType: c.Query("eventType"), EventName: c.Query("eventName")},
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
