package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"coinbank/pkg/response"
)

type buyCryptoRequest struct {
	UserID int64  `json:"user_id" binding:"required,gt=0"`
	Symbol string `json:"symbol" binding:"required"`
	Spend  int64  `json:"spend" binding:"required,gt=0"`
}

// BuyCrypto 买入加密货币
// POST /api/v1/wallet/buy
func (h *Handler) BuyCrypto(c *gin.Context) {
	var req buyCryptoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	holding, err := h.cryptoService.Buy(c.Request.Context(), req.UserID, req.Symbol, req.Spend)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, holding)
}

type sellCryptoRequest struct {
	UserID   int64   `json:"user_id" binding:"required,gt=0"`
	Symbol   string  `json:"symbol" binding:"required"`
	Quantity float64 `json:"quantity" binding:"required,gt=0"`
}

// SellCrypto 卖出加密货币
// POST /api/v1/wallet/sell
func (h *Handler) SellCrypto(c *gin.Context) {
	var req sellCryptoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	proceeds, err := h.cryptoService.Sell(c.Request.Context(), req.UserID, req.Symbol, req.Quantity)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{"proceeds": proceeds})
}

// GetPortfolio 查询持仓
// GET /api/v1/wallet/portfolio/:userId
func (h *Handler) GetPortfolio(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("userId"), 10, 64)
	if err != nil || userID <= 0 {
		response.ParamError(c, "用户ID不合法")
		return
	}

	items, err := h.cryptoService.Portfolio(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, items)
}

// GetPrices 全量币种报价
// GET /api/v1/wallet/prices
func (h *Handler) GetPrices(c *gin.Context) {
	response.Success(c, h.cryptoService.Prices())
}
