package handler

import (
	"github.com/gin-gonic/gin"

	"coinbank/pkg/response"
)

type createDepositRequest struct {
	UserID     int64  `json:"user_id" binding:"required,gt=0"`
	Amount     int64  `json:"amount" binding:"required,gt=0"`
	PayerEmail string `json:"payer_email" binding:"required,email"`
}

// CreateDeposit 发起PIX充值，返回收款二维码
// POST /api/v1/payment/deposit
func (h *Handler) CreateDeposit(c *gin.Context) {
	var req createDepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	deposit, err := h.depositService.CreatePixDeposit(c.Request.Context(), req.UserID, req.Amount, req.PayerEmail)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, deposit)
}

type pixCallbackRequest struct {
	TransactionID string `json:"transactionId" binding:"required"`
	Status        string `json:"status" binding:"required"`
}

// PixCallback 支付网关回调，按网关交易号幂等
// POST /api/v1/payment/callback
func (h *Handler) PixCallback(c *gin.Context) {
	var req pixCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.depositService.HandleCallback(c.Request.Context(), req.TransactionID, req.Status); err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, nil)
}

// CheckDepositStatus 查询充值单支付状态，供前端轮询
// GET /api/v1/payment/check-status/:transactionNo
func (h *Handler) CheckDepositStatus(c *gin.Context) {
	transactionNo := c.Param("transactionNo")
	if transactionNo == "" {
		response.ParamError(c, "充值单号不能为空")
		return
	}

	status, err := h.depositService.GetStatus(c.Request.Context(), transactionNo)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, status)
}
