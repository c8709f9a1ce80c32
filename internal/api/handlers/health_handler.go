package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/keyvault-service/keyvault_service/internal/domain/services/oracle"
	"github.com/keyvault-service/keyvault_service/internal/infrastructure/cache"
	"github.com/keyvault-service/keyvault_service/internal/infrastructure/database"
)

// HealthHandler reports readiness of the bot's dependencies.
type HealthHandler struct {
	db     *sqlx.DB
	cursor cache.CursorStore
	oracle *oracle.Service
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(db *sqlx.DB, cursor cache.CursorStore, oracle *oracle.Service) *HealthHandler {
	return &HealthHandler{
		db:     db,
		cursor: cursor,
		oracle: oracle,
	}
}

// Health returns 200 when all dependencies are reachable and the exchange
// rate is initialized, 503 otherwise.
func (h *HealthHandler) Health(c *gin.Context) {
	checks := gin.H{
		"database": "ok",
		"redis":    "ok",
		"price":    "ok",
	}
	healthy := true

	if err := database.HealthCheck(h.db); err != nil {
		checks["database"] = err.Error()
		healthy = false
	}
	if err := h.cursor.Ping(c.Request.Context()); err != nil {
		checks["redis"] = err.Error()
		healthy = false
	}
	if !h.oracle.Ready() {
		checks["price"] = "exchange rate not initialized"
		healthy = false
	}

	status := http.StatusOK
	overall := "healthy"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "unhealthy"
	}

	c.JSON(status, gin.H{"status": overall, "checks": checks})
}
