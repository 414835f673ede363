package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"fundflow/middleware"
	"fundflow/pkg/logger"
	"fundflow/wallet"
)

type WalletHandler struct {
	wallets *wallet.Service
}

func NewWalletHandler(wallets *wallet.Service) *WalletHandler {
	return &WalletHandler{wallets: wallets}
}

type transferRequest struct {
	ReceiverID string `json:"receiver_id"`
	Amount     int64  `json:"amount"`
	Reference  string `json:"reference"`
}

// Transfer moves funds from the caller's wallet to another user's wallet.
func (h *WalletHandler) Transfer(c *gin.Context) {
	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	result, err := h.wallets.Transfer(c.Request.Context(), wallet.TransferParams{
		SenderID:   middleware.GetUserID(c),
		ReceiverID: req.ReceiverID,
		Amount:     req.Amount,
		Reference:  req.Reference,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	logger.Info(c.Request.Context(), "funds transferred",
		"receipt_id", result.Receipt.ID,
		"amount", result.Receipt.Amount,
	)

	c.JSON(http.StatusOK, gin.H{
		"receipt": receiptView(result.Receipt),
		"balance": result.SenderBalance,
	})
}

// Balance returns the caller's current balance.
func (h *WalletHandler) Balance(c *gin.Context) {
	balance, err := h.wallets.Balance(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"balance": balance})
}

// Receipts returns the caller's transfer history, newest first.
func (h *WalletHandler) Receipts(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	receipts, total, err := h.wallets.Receipts(c.Request.Context(), middleware.GetUserID(c), page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]gin.H, 0, len(receipts))
	for _, rec := range receipts {
		out = append(out, receiptView(rec))
	}

	c.JSON(http.StatusOK, gin.H{
		"receipts":  out,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

func receiptView(rec wallet.Receipt) gin.H {
	return gin.H{
		"id":          rec.ID,
		"sender_id":   rec.SenderID,
		"receiver_id": rec.ReceiverID,
		"amount":      rec.Amount,
		"reference":   rec.Reference,
		"created_at":  rec.CreatedAt.Format(time.RFC3339),
	}
}
