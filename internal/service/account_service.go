package service

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"coinbank/internal/config"
	"coinbank/internal/infrastructure/lock"
	"coinbank/internal/model"
	"coinbank/internal/repository"
	"coinbank/pkg/idgen"
)

// 管理员调账操作类型
const (
	AdjustOpAdd      = "add"
	AdjustOpSubtract = "subtract"
	AdjustOpSet      = "set"
)

// AccountService 账户服务
// 提供账户查询、流水查询和管理员调账能力
type AccountService struct {
	store  repository.Store
	locker lock.Locker
	cfg    *config.BusinessConfig
}

func NewAccountService(store repository.Store, locker lock.Locker, cfg *config.BusinessConfig) *AccountService {
	return &AccountService{
		store:  store,
		locker: locker,
		cfg:    cfg,
	}
}

// GetAccount 查询账户，不存在时自动开户（余额为0）
func (s *AccountService) GetAccount(ctx context.Context, userID int64) (*model.Account, error) {
	return s.store.Accounts().GetOrCreate(ctx, userID)
}

// AdminAdjust 管理员调账
//
// 三种操作：
//   - add:      目标桶余额增加 amount
//   - subtract: 目标桶余额减少 amount，不足时减到0为止（不报错、不穿负）
//   - set:      目标桶余额直接设置为 amount
//
// 无论哪种操作都会落一条 ADMIN_ADJUST 流水，记录实际发生的变动量和调账原因
func (s *AccountService) AdminAdjust(ctx context.Context, userID int64, bucket, op string, amount int64, adminUser, reason string) (*model.Account, error) {
	if !model.ValidBucket(bucket) {
		return nil, ErrInvalidBucket
	}
	if amount < 0 {
		return nil, ErrInvalidAmount
	}
	if op != AdjustOpAdd && op != AdjustOpSubtract && op != AdjustOpSet {
		return nil, ErrInvalidOperation
	}

	var result *model.Account
	err := s.locker.WithLock(ctx, lock.BalanceKey(userID), func() error {
		return s.store.Transaction(ctx, func(tx repository.Store) error {
			account, err := tx.Accounts().GetOrCreate(ctx, userID)
			if err != nil {
				return err
			}
			// 调账在行锁事务内直接写目标值，不走 CAS
			account, err = tx.Accounts().GetByUserIDForUpdate(ctx, userID)
			if err != nil {
				return err
			}

			current := account.BucketBalance(bucket)
			var target int64
			switch op {
			case AdjustOpAdd:
				target = current + amount
			case AdjustOpSubtract:
				target = current - amount
				if target < 0 {
					target = 0
				}
			case AdjustOpSet:
				target = amount
			}

			if err := tx.Accounts().SetBucket(ctx, userID, bucket, target); err != nil {
				return err
			}

			applied := target - current
			if applied < 0 {
				applied = -applied
			}
			trans := &model.Transaction{
				TransactionNo: idgen.GenerateTransactionNo(),
				UserID:        userID,
				Type:          model.TransactionTypeAdminAdjust,
				Amount:        applied,
				Status:        model.TransactionStatusCompleted,
				Description:   fmt.Sprintf("管理员调账: %s %s by %s: %s", op, bucket, adminUser, reason),
			}
			if err := tx.Transactions().Create(ctx, trans); err != nil {
				return err
			}

			account.UpdateBucket(bucket, target)
			result = account
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[AccountService] 管理员调账完成: userID=%d bucket=%s op=%s amount=%d by=%s",
		userID, bucket, op, amount, adminUser)
	return result, nil
}

// ListTransactions 分页查询用户流水，按创建时间倒序
func (s *AccountService) ListTransactions(ctx context.Context, userID int64, page, pageSize int) ([]*model.Transaction, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return s.store.Transactions().ListByUserID(ctx, userID, page, pageSize)
}

// 活动流条目类型
const (
	ActivityKindTransaction = "TRANSACTION"
	ActivityKindWithdraw    = "WITHDRAW"
)

// ActivityItem 用户活动流条目，流水和提现申请的统一视图
type ActivityItem struct {
	Kind        string    `json:"kind"`
	ReferenceNo string    `json:"reference_no"`
	Category    string    `json:"category"` // 流水类型或提现来源桶
	Amount      int64     `json:"amount"`
	Status      string    `json:"status"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// ListActivities 合并账户流水和提现申请，按创建时间倒序返回最近 limit 条
// 提现申请的状态按当前时刻折算（超时未落库的显示为 REJECTED）
func (s *AccountService) ListActivities(ctx context.Context, userID int64, limit int) ([]*ActivityItem, error) {
	if limit < 1 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	transactions, _, err := s.store.Transactions().ListByUserID(ctx, userID, 1, limit)
	if err != nil {
		return nil, err
	}
	withdrawals, err := s.store.Withdrawals().ListByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	items := make([]*ActivityItem, 0, len(transactions)+len(withdrawals))
	for _, trans := range transactions {
		items = append(items, &ActivityItem{
			Kind:        ActivityKindTransaction,
			ReferenceNo: trans.TransactionNo,
			Category:    trans.Type,
			Amount:      trans.Amount,
			Status:      trans.Status,
			Description: trans.Description,
			CreatedAt:   trans.CreatedAt,
		})
	}
	now := time.Now()
	for _, req := range withdrawals {
		items = append(items, &ActivityItem{
			Kind:        ActivityKindWithdraw,
			ReferenceNo: req.RequestNo,
			Category:    req.BucketType,
			Amount:      req.Amount,
			Status:      req.EffectiveStatus(now),
			Description: fmt.Sprintf("提现申请 %s", req.RequestNo),
			CreatedAt:   req.CreatedAt,
		})
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// DashboardStats 管理后台统计数据
type DashboardStats struct {
	TotalAccounts  int64 `json:"total_accounts"`
	TotalBalance   int64 `json:"total_balance"`
	TotalDeposits  int64 `json:"total_deposits"`
	TotalWithdraws int64 `json:"total_withdraws"`
	TotalReferrals int64 `json:"total_referrals"`
}

// GetDashboardStats 汇总平台数据，供管理后台首页展示
func (s *AccountService) GetDashboardStats(ctx context.Context) (*DashboardStats, error) {
	accounts, err := s.store.Accounts().CountAccounts(ctx)
	if err != nil {
		return nil, err
	}
	balance, err := s.store.Accounts().SumBalances(ctx)
	if err != nil {
		return nil, err
	}
	deposits, err := s.store.Transactions().SumCompletedByType(ctx, model.TransactionTypeDeposit)
	if err != nil {
		return nil, err
	}
	withdraws, err := s.store.Transactions().SumCompletedByType(ctx, model.TransactionTypeWithdraw)
	if err != nil {
		return nil, err
	}
	referrals, err := s.store.Referrals().SumReferrals(ctx)
	if err != nil {
		return nil, err
	}
	return &DashboardStats{
		TotalAccounts:  accounts,
		TotalBalance:   balance,
		TotalDeposits:  deposits,
		TotalWithdraws: withdraws,
		TotalReferrals: referrals,
	}, nil
}
