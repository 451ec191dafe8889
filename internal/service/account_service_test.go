package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"coinbank/internal/config"
	"coinbank/internal/infrastructure/lock"
	"coinbank/internal/model"
	"coinbank/internal/repository"
)

func newAccountFixture(t *testing.T) (*repository.MemoryStore, *AccountService) {
	t.Helper()
	store := repository.NewMemoryStore()
	cfg := &config.BusinessConfig{BalanceRetryCount: 3}
	return store, NewAccountService(store, lock.NewLocalLocker(), cfg)
}

func TestGetAccountAutoCreates(t *testing.T) {
	_, svc := newAccountFixture(t)
	ctx := context.Background()

	account, err := svc.GetAccount(ctx, 42)
	if err != nil {
		t.Fatalf("查询账户失败: %v", err)
	}
	if account.UserID != 42 || account.Balance != 0 || account.CommissionBalance != 0 {
		t.Fatalf("新账户应为零余额: %+v", account)
	}

	again, err := svc.GetAccount(ctx, 42)
	if err != nil {
		t.Fatalf("二次查询失败: %v", err)
	}
	if again.ID != account.ID {
		t.Fatalf("不应重复开户: %d vs %d", again.ID, account.ID)
	}
}

func TestAdminAdjustAdd(t *testing.T) {
	store, svc := newAccountFixture(t)
	ctx := context.Background()

	account, err := svc.AdminAdjust(ctx, 1, model.BucketBalance, AdjustOpAdd, 5000, "root", "测试调账")
	if err != nil {
		t.Fatalf("加款失败: %v", err)
	}
	if account.Balance != 5000 {
		t.Fatalf("加款后余额应为 5000, got %d", account.Balance)
	}

	list, _, _ := store.Transactions().ListByUserID(ctx, 1, 1, 10)
	if len(list) != 1 || list[0].Type != model.TransactionTypeAdminAdjust || list[0].Amount != 5000 {
		t.Fatalf("应落一条调账流水: %+v", list)
	}
}

func TestAdminAdjustSubtractClamped(t *testing.T) {
	store, svc := newAccountFixture(t)
	ctx := context.Background()

	if _, err := svc.AdminAdjust(ctx, 1, model.BucketBalance, AdjustOpAdd, 3000, "root", "测试调账"); err != nil {
		t.Fatalf("加款失败: %v", err)
	}

	// 减款超过余额时减到0为止，不报错不穿负
	account, err := svc.AdminAdjust(ctx, 1, model.BucketBalance, AdjustOpSubtract, 10000, "root", "测试调账")
	if err != nil {
		t.Fatalf("减款失败: %v", err)
	}
	if account.Balance != 0 {
		t.Fatalf("减款应截止到 0, got %d", account.Balance)
	}

	// 流水记录的是实际发生的变动量
	list, _, _ := store.Transactions().ListByUserID(ctx, 1, 1, 10)
	if list[0].Amount != 3000 {
		t.Fatalf("调账流水应记录实际扣减 3000, got %d", list[0].Amount)
	}
}

func TestAdminAdjustSet(t *testing.T) {
	_, svc := newAccountFixture(t)
	ctx := context.Background()

	account, err := svc.AdminAdjust(ctx, 1, model.BucketCommission, AdjustOpSet, 7777, "root", "测试调账")
	if err != nil {
		t.Fatalf("设值失败: %v", err)
	}
	if account.CommissionBalance != 7777 {
		t.Fatalf("佣金余额应为 7777, got %d", account.CommissionBalance)
	}
	if account.Balance != 0 {
		t.Fatalf("可用余额不应受影响, got %d", account.Balance)
	}
}

func TestAdminAdjustInvalidInput(t *testing.T) {
	_, svc := newAccountFixture(t)
	ctx := context.Background()

	if _, err := svc.AdminAdjust(ctx, 1, "SAVINGS", AdjustOpAdd, 100, "root", "测试调账"); !errors.Is(err, ErrInvalidBucket) {
		t.Fatalf("非法桶应报错, got %v", err)
	}
	if _, err := svc.AdminAdjust(ctx, 1, model.BucketBalance, "multiply", 100, "root", "测试调账"); !errors.Is(err, ErrInvalidOperation) {
		t.Fatalf("非法操作应报错, got %v", err)
	}
	if _, err := svc.AdminAdjust(ctx, 1, model.BucketBalance, AdjustOpAdd, -1, "root", "测试调账"); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("负金额应报错, got %v", err)
	}
}

func TestDashboardStats(t *testing.T) {
	store, svc := newAccountFixture(t)
	ctx := context.Background()

	svc.AdminAdjust(ctx, 1, model.BucketBalance, AdjustOpAdd, 5000, "root", "测试调账")
	svc.AdminAdjust(ctx, 2, model.BucketCommission, AdjustOpAdd, 3000, "root", "测试调账")
	store.Transactions().Create(ctx, &model.Transaction{
		TransactionNo: "TXN-stat-1",
		UserID:        1,
		Type:          model.TransactionTypeDeposit,
		Amount:        8000,
		Status:        model.TransactionStatusCompleted,
	})

	stats, err := svc.GetDashboardStats(ctx)
	if err != nil {
		t.Fatalf("统计失败: %v", err)
	}
	if stats.TotalAccounts != 2 {
		t.Fatalf("账户数应为 2, got %d", stats.TotalAccounts)
	}
	if stats.TotalBalance != 8000 {
		t.Fatalf("总余额应为 8000, got %d", stats.TotalBalance)
	}
	if stats.TotalDeposits != 8000 {
		t.Fatalf("总充值应为 8000, got %d", stats.TotalDeposits)
	}
}

func TestListActivitiesMergedNewestFirst(t *testing.T) {
	store, svc := newAccountFixture(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	store.Transactions().Create(ctx, &model.Transaction{
		TransactionNo: "TXN-act-1",
		UserID:        1,
		Type:          model.TransactionTypeDeposit,
		Amount:        5000,
		Status:        model.TransactionStatusCompleted,
		CreatedAt:     base,
	})
	store.Withdrawals().Create(ctx, &model.WithdrawRequest{
		RequestNo:  "WDR-act-1",
		UserID:     1,
		Amount:     2000,
		BucketType: model.BucketBalance,
		Status:     model.WithdrawStatusPending,
		ExpiredAt:  time.Now().Add(time.Hour),
		CreatedAt:  base.Add(time.Minute),
	})
	store.Transactions().Create(ctx, &model.Transaction{
		TransactionNo: "TXN-act-2",
		UserID:        1,
		Type:          model.TransactionTypeCryptoBuy,
		Amount:        1000,
		Status:        model.TransactionStatusCompleted,
		CreatedAt:     base.Add(2 * time.Minute),
	})
	// 已超时未落库的申请，活动流里应显示为 REJECTED
	store.Withdrawals().Create(ctx, &model.WithdrawRequest{
		RequestNo:  "WDR-act-2",
		UserID:     1,
		Amount:     3000,
		BucketType: model.BucketCommission,
		Status:     model.WithdrawStatusPending,
		ExpiredAt:  time.Now().Add(-time.Minute),
		CreatedAt:  base.Add(3 * time.Minute),
	})
	// 其他用户的记录不应出现
	store.Transactions().Create(ctx, &model.Transaction{
		TransactionNo: "TXN-act-other",
		UserID:        2,
		Type:          model.TransactionTypeDeposit,
		Amount:        9000,
		Status:        model.TransactionStatusCompleted,
		CreatedAt:     base,
	})

	activities, err := svc.ListActivities(ctx, 1, 0)
	if err != nil {
		t.Fatalf("查询活动流失败: %v", err)
	}
	if len(activities) != 4 {
		t.Fatalf("应返回4条活动, got %d", len(activities))
	}
	wantOrder := []string{"WDR-act-2", "TXN-act-2", "WDR-act-1", "TXN-act-1"}
	for i, want := range wantOrder {
		if activities[i].ReferenceNo != want {
			t.Fatalf("第%d条应为 %s, got %s", i, want, activities[i].ReferenceNo)
		}
	}
	if activities[0].Kind != ActivityKindWithdraw || activities[0].Status != model.WithdrawStatusRejected {
		t.Fatalf("超时申请应显示为 REJECTED: %+v", activities[0])
	}
	if activities[2].Kind != ActivityKindWithdraw || activities[2].Status != model.WithdrawStatusPending {
		t.Fatalf("未超时申请应保持 PENDING: %+v", activities[2])
	}
	if activities[1].Kind != ActivityKindTransaction || activities[1].Category != model.TransactionTypeCryptoBuy {
		t.Fatalf("流水条目类型不符: %+v", activities[1])
	}

	limited, err := svc.ListActivities(ctx, 1, 2)
	if err != nil {
		t.Fatalf("限量查询失败: %v", err)
	}
	if len(limited) != 2 || limited[0].ReferenceNo != "WDR-act-2" {
		t.Fatalf("limit 截断不符: %+v", limited)
	}
}
