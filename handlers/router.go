package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pushlytics/api/analytics"
	"pushlytics/api/middleware"
	"pushlytics/api/store"
)

type RouterDeps struct {
	Analyzer analytics.Analyzer
	// Events receives tracked events; nil disables POST /api/track.
	Events          store.EventWriter
	Breaker         BreakerReporter
	Auth            middleware.AuthConfig
	CORSOrigins     []string
	AnalysisTimeout time.Duration
}

func NewRouter(d RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.RequestLogger(), middleware.CORSMiddleware(d.CORSOrigins))

	r.GET("/health", HealthCheck(d.Breaker))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	analyticsHandlers := NewAnalyticsHandlers(d.Analyzer, d.AnalysisTimeout)

	api := r.Group("/api")
	api.Use(middleware.AuthRequired(d.Auth))
	{
		if d.Events != nil {
			api.POST("/track", NewTrackHandlers(d.Events).TrackEvent)
		}

		analyticsGroup := api.Group("/analytics")
		{
			analyticsGroup.GET("/funnels/:id", analyticsHandlers.GetFunnelAnalysis)
			analyticsGroup.POST("/cohorts", analyticsHandlers.AnalyzeCohort)
			analyticsGroup.GET("/paths", analyticsHandlers.GetPathAnalysis)
		}
	}
	return r
}
