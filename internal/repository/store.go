package repository

import (
	"context"
	"errors"
	"time"

	"coinbank/internal/model"
)

var (
	ErrAccountNotFound  = errors.New("账户不存在")
	ErrBalanceNotEnough = errors.New("余额不足")
	ErrOptimisticLock   = errors.New("乐观锁冲突，请重试")

	ErrTransactionNotFound = errors.New("流水不存在")
	ErrAlreadyFinalized    = errors.New("流水状态已终结")

	ErrWithdrawNotFound = errors.New("提现申请不存在")
	ErrAlreadyProcessed = errors.New("申请已处理")

	ErrReferralNotFound = errors.New("邀请关系不存在")
	ErrAlreadyReferred  = errors.New("用户已被邀请")
)

// Store 聚合所有仓储，并提供事务边界
// MySQL 实现用于线上，内存实现用于测试，两者的条件更新语义保持一致
type Store interface {
	Accounts() AccountRepo
	Transactions() TransactionRepo
	Withdrawals() WithdrawRepo
	Referrals() ReferralRepo
	Holdings() HoldingRepo
	Outbox() OutboxRepo

	// Transaction 在单个事务内执行 fn，fn 返回错误则整体回滚
	// fn 收到的 Store 已绑定事务，内部所有仓储操作要么全部生效要么全部不生效
	Transaction(ctx context.Context, fn func(Store) error) error
}

// AccountRepo 账户仓储，余额变更的唯一入口
type AccountRepo interface {
	Create(ctx context.Context, account *model.Account) error
	GetByUserID(ctx context.Context, userID int64) (*model.Account, error)
	GetByUserIDForUpdate(ctx context.Context, userID int64) (*model.Account, error)
	GetOrCreate(ctx context.Context, userID int64) (*model.Account, error)

	// Deduct 按版本号 CAS 扣减指定桶余额
	// 余额不足返回 ErrBalanceNotEnough，版本号过期返回 ErrOptimisticLock，
	// 两种情况都不会产生任何变更，余额永远不会被扣成负数
	Deduct(ctx context.Context, userID int64, bucket string, amount int64, version int) error

	// Increase 无条件增加指定桶余额（退款、到账、佣金）
	Increase(ctx context.Context, userID int64, bucket string, amount int64) error

	// SetBucket 将指定桶余额直接设置为目标值（管理员 set 操作），须在行锁事务内调用
	SetBucket(ctx context.Context, userID int64, bucket string, target int64) error

	SumBalances(ctx context.Context) (int64, error)
	CountAccounts(ctx context.Context) (int64, error)
}

// TransactionRepo 流水仓储，只追加
type TransactionRepo interface {
	Create(ctx context.Context, trans *model.Transaction) error
	GetByTransactionNo(ctx context.Context, transactionNo string) (*model.Transaction, error)
	// GetByExternalID 按网关交易号查询，未找到返回 (nil, nil)
	GetByExternalID(ctx context.Context, externalID string) (*model.Transaction, error)

	// Finalize 执行唯一一次 PENDING -> COMPLETED/FAILED 状态迁移
	// 已终结的流水返回 ErrAlreadyFinalized
	Finalize(ctx context.Context, transactionNo string, toStatus string) error

	ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.Transaction, int64, error)
	SumCompletedByType(ctx context.Context, transType string) (int64, error)
}

// WithdrawRepo 提现申请仓储
type WithdrawRepo interface {
	Create(ctx context.Context, req *model.WithdrawRequest) error
	GetByRequestNo(ctx context.Context, requestNo string) (*model.WithdrawRequest, error)
	GetByRequestNoForUpdate(ctx context.Context, requestNo string) (*model.WithdrawRequest, error)

	// MarkCompleted 条件更新 PENDING -> COMPLETED，竞争失败返回 ErrAlreadyProcessed
	MarkCompleted(ctx context.Context, requestNo string, actor string, processedAt time.Time) error

	// MarkRejected 条件更新 PENDING -> REJECTED 并置 refunded=true
	// status 与 refunded 的检查和写入在同一条语句内完成，保证退款至多发生一次
	MarkRejected(ctx context.Context, requestNo string, actor string, processedAt time.Time) error

	// GetExpiredPending 查询 now 时刻已超时的 PENDING 申请，供后台扫描
	GetExpiredPending(ctx context.Context, now time.Time, limit int) ([]*model.WithdrawRequest, error)

	ListByUserID(ctx context.Context, userID int64) ([]*model.WithdrawRequest, error)
	ListByStatus(ctx context.Context, status string, page, pageSize int) ([]*model.WithdrawRequest, int64, error)

	// PurgeRefunded 清理 before 之前处理完且已退款的 REJECTED 申请，返回删除行数
	PurgeRefunded(ctx context.Context, before time.Time, limit int) (int64, error)
}

// ReferralRepo 邀请关系仓储
type ReferralRepo interface {
	Create(ctx context.Context, referral *model.Referral) error
	GetByUserID(ctx context.Context, userID int64) (*model.Referral, error)
	GetByCode(ctx context.Context, code string) (*model.Referral, error)
	GetByID(ctx context.Context, id int64) (*model.Referral, error)

	// AddReferredUser 登记被邀请用户并累加邀请计数，重复邀请返回 ErrAlreadyReferred
	AddReferredUser(ctx context.Context, referred *model.ReferredUser) error

	// GetReferredUser 按被邀请人ID单行索引查询，未找到返回 (nil, nil)
	GetReferredUser(ctx context.Context, userID int64) (*model.ReferredUser, error)

	// MarkCommissionPaid 条件更新 commission_paid=false -> true，
	// 同时置 has_deposited；已支付过返回 ErrAlreadyProcessed
	MarkCommissionPaid(ctx context.Context, referredUserID int64, paidAt time.Time) error

	// AddEarnings 累加邀请人的佣金总额
	AddEarnings(ctx context.Context, referralID int64, amount int64) error

	ListReferredUsers(ctx context.Context, referralID int64) ([]*model.ReferredUser, error)
	TopByEarnings(ctx context.Context, limit int) ([]*model.Referral, error)
	SumReferrals(ctx context.Context) (int64, error)
}

// HoldingRepo 加密货币持仓仓储
type HoldingRepo interface {
	// GetByUserAndSymbol 未找到返回 (nil, nil)
	GetByUserAndSymbol(ctx context.Context, userID int64, symbol string) (*model.CryptoHolding, error)
	Save(ctx context.Context, holding *model.CryptoHolding) error
	Delete(ctx context.Context, id int64) error
	ListByUserID(ctx context.Context, userID int64) ([]*model.CryptoHolding, error)
}

// OutboxRepo 事务性发件箱仓储
type OutboxRepo interface {
	Create(ctx context.Context, msg *model.OutboxMessage) error
	GetPendingMessages(ctx context.Context, limit int) ([]*model.OutboxMessage, error)
	UpdateStatus(ctx context.Context, id int64, status string) error
	IncrementRetryCount(ctx context.Context, id int64) error
	MarkAsFailed(ctx context.Context, id int64) error
}
