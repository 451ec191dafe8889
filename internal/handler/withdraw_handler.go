package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"coinbank/pkg/response"
)

type createWithdrawRequest struct {
	UserID int64  `json:"user_id" binding:"required,gt=0"`
	Bucket string `json:"bucket" binding:"required"`
	Amount int64  `json:"amount" binding:"required,gt=0"`
}

// CreateWithdraw 创建提现申请
// POST /api/v1/withdraw
func (h *Handler) CreateWithdraw(c *gin.Context) {
	var req createWithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	request, err := h.withdrawService.Create(c.Request.Context(), req.UserID, req.Bucket, req.Amount)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, request)
}

// GetWithdraw 查询单个提现申请
// GET /api/v1/withdraw/:requestNo
func (h *Handler) GetWithdraw(c *gin.Context) {
	request, err := h.withdrawService.Get(c.Request.Context(), c.Param("requestNo"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, request)
}

// ListUserWithdraws 查询用户提现记录
// GET /api/v1/withdraw/user/:userId
func (h *Handler) ListUserWithdraws(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("userId"), 10, 64)
	if err != nil || userID <= 0 {
		response.ParamError(c, "用户ID不合法")
		return
	}

	list, err := h.withdrawService.ListByUser(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, list)
}

// CompleteWithdraw 管理员审批通过
// POST /api/v1/admin/withdraw/:requestNo/complete
func (h *Handler) CompleteWithdraw(c *gin.Context) {
	actor := c.GetString(ctxKeyAdminUser)
	if err := h.withdrawService.Complete(c.Request.Context(), c.Param("requestNo"), actor); err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, nil)
}

// RejectWithdraw 管理员驳回
// POST /api/v1/admin/withdraw/:requestNo/reject
func (h *Handler) RejectWithdraw(c *gin.Context) {
	actor := c.GetString(ctxKeyAdminUser)
	if err := h.withdrawService.Reject(c.Request.Context(), c.Param("requestNo"), actor); err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, nil)
}

// ListWithdrawsByStatus 管理后台按状态查询提现申请
// GET /api/v1/admin/withdraw?status=PENDING&page=1&page_size=20
func (h *Handler) ListWithdrawsByStatus(c *gin.Context) {
	status := c.DefaultQuery("status", "PENDING")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	list, total, err := h.withdrawService.ListByStatus(c.Request.Context(), status, page, pageSize)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{
		"list":      list,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}
