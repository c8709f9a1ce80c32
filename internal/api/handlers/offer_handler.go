package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/keyvault-service/keyvault_service/internal/adapters/tradenet"
	"github.com/keyvault-service/keyvault_service/internal/domain/entities"
	"github.com/keyvault-service/keyvault_service/internal/domain/services/settlement"
	"github.com/keyvault-service/keyvault_service/pkg/logger"
)

// OfferHandler receives offer events from the trade gateway.
type OfferHandler struct {
	settlement *settlement.Service
	gateway    *tradenet.Client
	logger     *logger.Logger
}

// NewOfferHandler creates a new offer handler.
func NewOfferHandler(settlement *settlement.Service, gateway *tradenet.Client, logger *logger.Logger) *OfferHandler {
	return &OfferHandler{
		settlement: settlement,
		gateway:    gateway,
		logger:     logger,
	}
}

type offerItemPayload struct {
	CategoryID int64  `json:"category_id"`
	Name       string `json:"name"`
}

type offerEventPayload struct {
	ID             string             `json:"id" binding:"required"`
	Partner        string             `json:"partner" binding:"required"`
	ItemsToGive    []offerItemPayload `json:"items_to_give"`
	ItemsToReceive []offerItemPayload `json:"items_to_receive"`
	Message        string             `json:"message"`
	EscrowEnds     *time.Time         `json:"escrow_ends"`
	Glitched       bool               `json:"glitched"`
}

// HandleOfferEvent settles one incoming offer. A non-2xx response makes the
// gateway redeliver the event, which gives transport-level failures their
// next-tick retry.
func (h *OfferHandler) HandleOfferEvent(c *gin.Context) {
	var payload offerEventPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid offer payload"})
		return
	}

	snapshot := &entities.OfferSnapshot{
		ID:             payload.ID,
		Partner:        payload.Partner,
		ItemsToGive:    toTradeItems(payload.ItemsToGive),
		ItemsToReceive: toTradeItems(payload.ItemsToReceive),
		Message:        payload.Message,
		EscrowEnds:     payload.EscrowEnds,
		Glitched:       payload.Glitched,
	}

	offer := tradenet.NewLiveOffer(h.gateway, snapshot)
	if err := h.settlement.HandleOffer(c.Request.Context(), offer); err != nil {
		h.logger.Error("offer handling failed", "offer_id", payload.ID, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "offer handling failed"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "handled"})
}

func toTradeItems(items []offerItemPayload) []entities.TradeItem {
	if len(items) == 0 {
		return nil
	}
	result := make([]entities.TradeItem, len(items))
	for i, item := range items {
		result[i] = entities.TradeItem{CategoryID: item.CategoryID, Name: item.Name}
	}
	return result
}
