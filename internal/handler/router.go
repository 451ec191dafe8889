package handler

import (
	"github.com/gin-gonic/gin"

	"coinbank/internal/config"
)

// SetupRouter 配置路由
func SetupRouter(h *Handler, cfg *config.Config) *gin.Engine {
	// 设置 gin 为发布模式（减少日志输出）
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// 注册中间件
	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	// API 路由组
	api := r.Group("/api/v1")
	{
		// 账户相关
		account := api.Group("/account")
		{
			account.GET("/:userId", h.GetAccount)
			account.GET("/:userId/transactions", h.ListTransactions)
			account.GET("/:userId/activities", h.ListActivities)
		}

		// 提现相关
		withdraw := api.Group("/withdraw")
		{
			withdraw.POST("", h.CreateWithdraw)
			withdraw.GET("/user/:userId", h.ListUserWithdraws)
			withdraw.GET("/:requestNo", h.GetWithdraw)
		}

		// 充值相关（回调由支付网关调用）
		payment := api.Group("/payment")
		{
			payment.POST("/deposit", h.CreateDeposit)
			payment.POST("/callback", h.PixCallback)
			payment.GET("/check-status/:transactionNo", h.CheckDepositStatus)
		}

		// 邀请相关
		referral := api.Group("/referral")
		{
			referral.POST("/code/:userId", h.GenerateReferralCode)
			referral.GET("/validate/:code", h.ValidateReferralCode)
			referral.POST("/bind", h.BindReferral)
			referral.GET("/info/:userId", h.GetReferralInfo)
			referral.GET("/top", h.ReferralLeaderboard)
		}

		// 加密货币钱包
		wallet := api.Group("/wallet")
		{
			wallet.GET("/prices", h.GetPrices)
			wallet.POST("/buy", h.BuyCrypto)
			wallet.POST("/sell", h.SellCrypto)
			wallet.GET("/portfolio/:userId", h.GetPortfolio)
		}

		// 管理后台
		admin := api.Group("/admin")
		admin.Use(AdminAuthMiddleware(&cfg.Admin))
		{
			admin.GET("/dashboard", h.AdminDashboard)
			admin.POST("/account/adjust", h.AdminAdjustBalance)
			admin.GET("/withdraw", h.ListWithdrawsByStatus)
			admin.POST("/withdraw/:requestNo/complete", h.CompleteWithdraw)
			admin.POST("/withdraw/:requestNo/reject", h.RejectWithdraw)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
