package service

import "errors"

var (
	ErrInvalidAmount    = errors.New("金额必须大于0")
	ErrInvalidBucket    = errors.New("余额桶类型不合法")
	ErrInvalidOperation = errors.New("调账操作类型不合法")

	// ErrRequestExpired 提现申请已超时
	// 返回该错误时，申请已经被系统自动拒绝并完成退款
	ErrRequestExpired = errors.New("提现申请已超时")

	ErrSymbolNotFound   = errors.New("币种不存在")
	ErrHoldingNotEnough = errors.New("持仓不足")

	ErrSelfReferral = errors.New("不能使用自己的邀请码")
)
