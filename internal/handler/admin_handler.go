package handler

import (
	"github.com/gin-gonic/gin"

	"coinbank/pkg/response"
)

type adminAdjustRequest struct {
	UserID int64  `json:"user_id" binding:"required,gt=0"`
	Bucket string `json:"bucket" binding:"required"`
	Op     string `json:"op" binding:"required,oneof=add subtract set"`
	Amount int64  `json:"amount" binding:"gte=0"`
	Reason string `json:"reason" binding:"required"`
}

// AdminAdjustBalance 管理员调账
// POST /api/v1/admin/account/adjust
func (h *Handler) AdminAdjustBalance(c *gin.Context) {
	var req adminAdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	admin := c.GetString(ctxKeyAdminUser)
	account, err := h.accountService.AdminAdjust(c.Request.Context(), req.UserID, req.Bucket, req.Op, req.Amount, admin, req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, account)
}

// AdminDashboard 管理后台统计
// GET /api/v1/admin/dashboard
func (h *Handler) AdminDashboard(c *gin.Context) {
	stats, err := h.accountService.GetDashboardStats(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, stats)
}
