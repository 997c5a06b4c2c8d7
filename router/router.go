package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/TripCarbon/trip-carbon-backend/config"
	"github.com/TripCarbon/trip-carbon-backend/handlers"
	"github.com/TripCarbon/trip-carbon-backend/logger"
	"github.com/TripCarbon/trip-carbon-backend/middleware"
	"github.com/TripCarbon/trip-carbon-backend/services"
)

// Dependencies holds everything route setup needs.
type Dependencies struct {
	Config          *config.Config
	JWTValidator    middleware.Validator
	RateLimiter     services.RateLimiter
	HealthHandler   *handlers.HealthHandler
	AnalysisHandler *handlers.AnalysisHandler
}

// SetupRouter configures and returns the main Gin engine with all routes
// defined.
func SetupRouter(deps Dependencies) *gin.Engine {
	r := gin.Default()

	if err := r.SetTrustedProxies(deps.Config.Server.TrustedProxies); err != nil {
		logger.GetLogger().Warnw("Invalid trusted proxy list, ignoring proxy headers", "error", err)
		_ = r.SetTrustedProxies(nil)
	}

	// Global middleware
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(&deps.Config.Server))
	r.Use(middleware.SecurityHeadersMiddleware(deps.Config))

	// Health and metrics routes stay unauthenticated so probes and scrapers
	// need no tokens.
	r.GET("/health", deps.HealthHandler.LivenessCheck)
	r.GET("/health/db", deps.HealthHandler.ReadinessCheck)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Versioned API group. Everything under /v1 requires a valid token.
	v1 := r.Group("/v1")
	v1.Use(middleware.AuthMiddleware(deps.JWTValidator))
	v1.Use(middleware.RateLimitMiddleware(deps.RateLimiter, deps.Config.Server.RateLimitPerMinute))
	{
		analysisRoutes := v1.Group("/analysis")
		{
			analysisRoutes.GET("/summary", deps.AnalysisHandler.GetSummary)
			analysisRoutes.GET("/largest-trip", deps.AnalysisHandler.GetLargestTrips)
			analysisRoutes.GET("/buckets/:kind", deps.AnalysisHandler.GetBucketBreakdown)
			analysisRoutes.GET("/monthly-totals", deps.AnalysisHandler.GetMonthlyTotals)
		}
	}

	return r
}
