package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/keyvault-service/keyvault_service/internal/domain/services/registry"
	"github.com/keyvault-service/keyvault_service/pkg/logger"
)

// CustomerHandler serves customer lookups for the trade gateway, which asks
// for a deposit address whenever a counterparty requests one in chat.
type CustomerHandler struct {
	registry *registry.Service
	logger   *logger.Logger
}

// NewCustomerHandler creates a new customer handler.
func NewCustomerHandler(registry *registry.Service, logger *logger.Logger) *CustomerHandler {
	return &CustomerHandler{
		registry: registry,
		logger:   logger,
	}
}

// DepositAddress returns the identity's deposit address, minting one on
// first contact.
func (h *CustomerHandler) DepositAddress(c *gin.Context) {
	identity := c.Param("identity")
	if identity == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "identity required"})
		return
	}

	address, err := h.registry.GetOrCreateAddress(c.Request.Context(), identity)
	if err != nil {
		h.logger.Error("failed to resolve deposit address", "identity", identity, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not resolve deposit address"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"identity": identity, "deposit_address": address})
}
