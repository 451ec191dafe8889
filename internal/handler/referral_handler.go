package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"coinbank/pkg/response"
)

// GenerateReferralCode 获取或生成邀请码
// POST /api/v1/referral/code/:userId
func (h *Handler) GenerateReferralCode(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("userId"), 10, 64)
	if err != nil || userID <= 0 {
		response.ParamError(c, "用户ID不合法")
		return
	}

	referral, err := h.referralService.GenerateCode(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, referral)
}

// ValidateReferralCode 校验邀请码
// GET /api/v1/referral/validate/:code
func (h *Handler) ValidateReferralCode(c *gin.Context) {
	referral, err := h.referralService.Validate(c.Request.Context(), c.Param("code"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{"valid": true, "referrer_id": referral.UserID})
}

type bindReferralRequest struct {
	Code   string `json:"code" binding:"required"`
	UserID int64  `json:"user_id" binding:"required,gt=0"`
}

// BindReferral 新用户绑定邀请码
// POST /api/v1/referral/bind
func (h *Handler) BindReferral(c *gin.Context) {
	var req bindReferralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.referralService.Bind(c.Request.Context(), req.Code, req.UserID); err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, nil)
}

// GetReferralInfo 查询邀请详情
// GET /api/v1/referral/info/:userId
func (h *Handler) GetReferralInfo(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("userId"), 10, 64)
	if err != nil || userID <= 0 {
		response.ParamError(c, "用户ID不合法")
		return
	}

	info, err := h.referralService.Info(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, info)
}

// ReferralLeaderboard 邀请排行榜
// GET /api/v1/referral/top?limit=10
func (h *Handler) ReferralLeaderboard(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	top, err := h.referralService.TopStats(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, top)
}
