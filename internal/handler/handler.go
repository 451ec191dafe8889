package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"coinbank/internal/infrastructure/lock"
	"coinbank/internal/repository"
	"coinbank/internal/service"
	"coinbank/pkg/response"
)

// Handler 聚合所有HTTP处理器依赖
type Handler struct {
	accountService  *service.AccountService
	withdrawService *service.WithdrawService
	depositService  *service.DepositService
	referralService *service.ReferralService
	cryptoService   *service.CryptoService
}

func NewHandler(
	accountService *service.AccountService,
	withdrawService *service.WithdrawService,
	depositService *service.DepositService,
	referralService *service.ReferralService,
	cryptoService *service.CryptoService,
) *Handler {
	return &Handler{
		accountService:  accountService,
		withdrawService: withdrawService,
		depositService:  depositService,
		referralService: referralService,
		cryptoService:   cryptoService,
	}
}

// writeError 业务错误统一映射为响应码
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrAccountNotFound):
		response.BusinessError(c, response.CodeAccountNotFound, err.Error())
	case errors.Is(err, repository.ErrBalanceNotEnough):
		response.BusinessError(c, response.CodeBalanceNotEnough, err.Error())
	case errors.Is(err, repository.ErrWithdrawNotFound):
		response.BusinessError(c, response.CodeWithdrawNotFound, err.Error())
	case errors.Is(err, repository.ErrAlreadyProcessed):
		response.BusinessError(c, response.CodeAlreadyProcessed, err.Error())
	case errors.Is(err, service.ErrRequestExpired):
		response.BusinessError(c, response.CodeRequestExpired, err.Error())
	case errors.Is(err, repository.ErrReferralNotFound):
		response.BusinessError(c, response.CodeReferralNotFound, err.Error())
	case errors.Is(err, repository.ErrAlreadyReferred):
		response.BusinessError(c, response.CodeAlreadyReferred, err.Error())
	case errors.Is(err, service.ErrSymbolNotFound):
		response.BusinessError(c, response.CodeSymbolNotFound, err.Error())
	case errors.Is(err, service.ErrHoldingNotEnough):
		response.BusinessError(c, response.CodeHoldingNotEnough, err.Error())
	case errors.Is(err, repository.ErrTransactionNotFound):
		response.BusinessError(c, response.CodeTransNotFound, err.Error())
	case errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrInvalidBucket),
		errors.Is(err, service.ErrInvalidOperation),
		errors.Is(err, service.ErrSelfReferral):
		response.ParamError(c, err.Error())
	case errors.Is(err, lock.ErrLockFailed):
		response.ServerError(c, "系统繁忙，请稍后重试")
	default:
		response.ServerError(c, err.Error())
	}
}
