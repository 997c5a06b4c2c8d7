package handlers

import (
	"net/http"

	apperrors "github.com/TripCarbon/trip-carbon-backend/errors"
	"github.com/TripCarbon/trip-carbon-backend/types"
	"github.com/gin-gonic/gin"
)

// AnalysisHandler exposes the enriched-table aggregates over HTTP.
type AnalysisHandler struct {
	analysis AnalysisAPI
}

func NewAnalysisHandler(analysis AnalysisAPI) *AnalysisHandler {
	return &AnalysisHandler{analysis: analysis}
}

// GetSummary godoc
// @Summary Get the full analysis summary
// @Description Returns the largest trips, bucket extremes and monthly totals for every cab type in one response
// @Tags analysis
// @Produce json
// @Success 200 {object} types.AnalysisSummary "Analysis summary"
// @Failure 401 {object} middleware.ErrorResponse "Unauthorized - missing or invalid token"
// @Failure 500 {object} middleware.ErrorResponse "Internal server error"
// @Router /analysis/summary [get]
// @Security BearerAuth
func (h *AnalysisHandler) GetSummary(c *gin.Context) {
	summary, err := h.analysis.Summary(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		c.Abort()
		return
	}

	c.JSON(http.StatusOK, summary)
}

// GetLargestTrips godoc
// @Summary Get the highest-CO2 trip per cab type
// @Description Returns the single most CO2-heavy enriched trip for each cab type
// @Tags analysis
// @Produce json
// @Success 200 {array} types.LargestTrip "Largest trip per cab type"
// @Failure 401 {object} middleware.ErrorResponse "Unauthorized - missing or invalid token"
// @Failure 404 {object} middleware.ErrorResponse "Not found - no enriched trips exist yet"
// @Failure 500 {object} middleware.ErrorResponse "Internal server error"
// @Router /analysis/largest-trip [get]
// @Security BearerAuth
func (h *AnalysisHandler) GetLargestTrips(c *gin.Context) {
	trips, err := h.analysis.LargestTrips(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		c.Abort()
		return
	}

	if len(trips) == 0 {
		_ = c.Error(apperrors.NewError(
			apperrors.NotFoundError,
			"no_enriched_trips",
			"No enriched trips found",
			http.StatusNotFound,
		))
		c.Abort()
		return
	}

	c.JSON(http.StatusOK, trips)
}

// GetBucketBreakdown godoc
// @Summary Get bucket extremes for one calendar grouping
// @Description Returns the heaviest and lightest average-CO2 bucket of the given kind (day_of_week, hour_of_day or week_of_year) for every cab type
// @Tags analysis
// @Produce json
// @Param kind path string true "Bucket kind"
// @Success 200 {array} types.BucketExtremes "Bucket extremes per cab type"
// @Failure 400 {object} middleware.ErrorResponse "Bad request - unknown bucket kind"
// @Failure 401 {object} middleware.ErrorResponse "Unauthorized - missing or invalid token"
// @Failure 500 {object} middleware.ErrorResponse "Internal server error"
// @Router /analysis/buckets/{kind} [get]
// @Security BearerAuth
func (h *AnalysisHandler) GetBucketBreakdown(c *gin.Context) {
	kind := types.BucketKind(c.Param("kind"))

	extremes, err := h.analysis.BucketBreakdown(c.Request.Context(), kind)
	if err != nil {
		_ = c.Error(err)
		c.Abort()
		return
	}

	c.JSON(http.StatusOK, extremes)
}

// GetMonthlyTotals godoc
// @Summary Get monthly CO2 totals per cab type
// @Description Returns a January through December CO2 totals series for each cab type
// @Tags analysis
// @Produce json
// @Success 200 {array} types.MonthlySeries "Monthly totals per cab type"
// @Failure 401 {object} middleware.ErrorResponse "Unauthorized - missing or invalid token"
// @Failure 500 {object} middleware.ErrorResponse "Internal server error"
// @Router /analysis/monthly-totals [get]
// @Security BearerAuth
func (h *AnalysisHandler) GetMonthlyTotals(c *gin.Context) {
	series, err := h.analysis.MonthlyTotals(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		c.Abort()
		return
	}

	c.JSON(http.StatusOK, series)
}
