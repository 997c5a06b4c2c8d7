package services

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/TripCarbon/trip-carbon-backend/logger"
	"github.com/TripCarbon/trip-carbon-backend/types"
)

// DatabasePool is the subset of pgxpool.Pool the health checks need,
// narrowed so tests can substitute a fake.
type DatabasePool interface {
	Ping(ctx context.Context) error
	Stat() *pgxpool.Stat
}

type HealthService struct {
	dbPool      DatabasePool
	redisClient *redis.Client
	version     string
	startTime   time.Time
	log         *zap.SugaredLogger
}

// NewHealthService builds the health checker. redisClient may be nil when
// the analysis cache is not configured; the cache component then reports UP
// with a note instead of failing the whole check.
func NewHealthService(dbPool DatabasePool, redisClient *redis.Client, version string) *HealthService {
	return &HealthService{
		dbPool:      dbPool,
		redisClient: redisClient,
		version:     version,
		startTime:   time.Now(),
		log:         logger.GetLogger().Named("health"),
	}
}

func (h *HealthService) CheckHealth(ctx context.Context) types.HealthCheck {
	components := make(map[string]types.HealthComponent)
	overallStatus := types.HealthStatusUp

	dbStatus := h.checkDatabase(ctx)
	components["database"] = dbStatus
	if dbStatus.Status == types.HealthStatusDown {
		overallStatus = types.HealthStatusDown
	} else if dbStatus.Status == types.HealthStatusDegraded {
		overallStatus = types.HealthStatusDegraded
	}

	cacheStatus := h.checkRedis(ctx)
	components["cache"] = cacheStatus
	if cacheStatus.Status == types.HealthStatusDown {
		overallStatus = types.HealthStatusDown
	} else if cacheStatus.Status == types.HealthStatusDegraded && overallStatus != types.HealthStatusDown {
		overallStatus = types.HealthStatusDegraded
	}

	return types.HealthCheck{
		Status:     overallStatus,
		Components: components,
		Version:    h.version,
		Uptime:     time.Since(h.startTime).Round(time.Second).String(),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
}

// CheckLiveness reports whether the process itself is responsive, without
// touching any dependency. Suitable for restart-deciding probes.
func (h *HealthService) CheckLiveness() types.HealthCheck {
	return types.HealthCheck{
		Status:    types.HealthStatusUp,
		Version:   h.version,
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

func (h *HealthService) checkDatabase(ctx context.Context) types.HealthComponent {
	if err := h.dbPool.Ping(ctx); err != nil {
		h.log.Errorw("Database health check failed", "error", err)
		return types.HealthComponent{
			Status:  types.HealthStatusDown,
			Details: "Database connection failed",
		}
	}

	// Current usage, not the cumulative acquire count.
	if stat := h.dbPool.Stat(); stat != nil && stat.TotalConns() > 0 {
		if float64(stat.AcquiredConns())/float64(stat.TotalConns()) > 0.9 {
			return types.HealthComponent{
				Status:  types.HealthStatusDegraded,
				Details: "Connection pool near capacity",
			}
		}
	}

	return types.HealthComponent{
		Status: types.HealthStatusUp,
	}
}

func (h *HealthService) checkRedis(ctx context.Context) types.HealthComponent {
	if h.redisClient == nil {
		return types.HealthComponent{
			Status:  types.HealthStatusUp,
			Details: "Cache not configured",
		}
	}

	if err := h.redisClient.Ping(ctx).Err(); err != nil {
		h.log.Errorw("Redis health check failed", "error", err)
		return types.HealthComponent{
			Status:  types.HealthStatusDown,
			Details: "Redis connection failed",
		}
	}

	return types.HealthComponent{
		Status: types.HealthStatusUp,
	}
}
