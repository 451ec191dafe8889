package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"coinbank/pkg/response"
)

// GetAccount 查询账户余额
// GET /api/v1/account/:userId
func (h *Handler) GetAccount(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("userId"), 10, 64)
	if err != nil || userID <= 0 {
		response.ParamError(c, "用户ID不合法")
		return
	}

	account, err := h.accountService.GetAccount(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, account)
}

// ListTransactions 分页查询账户流水
// GET /api/v1/account/:userId/transactions?page=1&page_size=20
func (h *Handler) ListTransactions(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("userId"), 10, 64)
	if err != nil || userID <= 0 {
		response.ParamError(c, "用户ID不合法")
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	list, total, err := h.accountService.ListTransactions(c.Request.Context(), userID, page, pageSize)
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

// ListActivities 查询用户活动流（流水 + 提现申请合并，按时间倒序）
// GET /api/v1/account/:userId/activities?limit=50
func (h *Handler) ListActivities(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("userId"), 10, 64)
	if err != nil || userID <= 0 {
		response.ParamError(c, "用户ID不合法")
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	activities, err := h.accountService.ListActivities(c.Request.Context(), userID, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, activities)
}
