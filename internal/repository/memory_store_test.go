package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"coinbank/internal/model"
)

func seedAccount(t *testing.T, store Store, userID, balance int64) *model.Account {
	t.Helper()
	ctx := context.Background()
	account, err := store.Accounts().GetOrCreate(ctx, userID)
	if err != nil {
		t.Fatalf("开户失败: %v", err)
	}
	if balance > 0 {
		if err := store.Accounts().Increase(ctx, userID, model.BucketBalance, balance); err != nil {
			t.Fatalf("初始化余额失败: %v", err)
		}
		account, _ = store.Accounts().GetByUserID(ctx, userID)
	}
	return account
}

func TestDeductCASSemantics(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	account := seedAccount(t, store, 1, 10000)

	// 版本号过期
	err := store.Accounts().Deduct(ctx, 1, model.BucketBalance, 1000, account.Version-1)
	if !errors.Is(err, ErrOptimisticLock) {
		t.Fatalf("过期版本号应返回乐观锁冲突, got %v", err)
	}

	// 余额不足
	err = store.Accounts().Deduct(ctx, 1, model.BucketBalance, 99999, account.Version)
	if !errors.Is(err, ErrBalanceNotEnough) {
		t.Fatalf("应返回余额不足, got %v", err)
	}

	// 两种失败都不应产生变更
	got, _ := store.Accounts().GetByUserID(ctx, 1)
	if got.Balance != 10000 || got.Version != account.Version {
		t.Fatalf("失败扣减不应变更账户: %+v", got)
	}

	// 正常扣减递增版本号
	if err := store.Accounts().Deduct(ctx, 1, model.BucketBalance, 1000, account.Version); err != nil {
		t.Fatalf("扣减失败: %v", err)
	}
	got, _ = store.Accounts().GetByUserID(ctx, 1)
	if got.Balance != 9000 || got.Version != account.Version+1 {
		t.Fatalf("扣减结果不符: %+v", got)
	}

	// 旧版本号再扣必须失败
	err = store.Accounts().Deduct(ctx, 1, model.BucketBalance, 1000, account.Version)
	if !errors.Is(err, ErrOptimisticLock) {
		t.Fatalf("旧版本号重放应失败, got %v", err)
	}
}

func TestDeductMissingAccount(t *testing.T) {
	store := NewMemoryStore()
	err := store.Accounts().Deduct(context.Background(), 404, model.BucketBalance, 100, 0)
	if !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("应返回账户不存在, got %v", err)
	}
}

func TestMarkRejectedBarrier(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	req := &model.WithdrawRequest{
		RequestNo:  "WDR-barrier",
		UserID:     1,
		Amount:     1000,
		BucketType: model.BucketBalance,
		Status:     model.WithdrawStatusPending,
		ExpiredAt:  now.Add(time.Hour),
	}
	if err := store.Withdrawals().Create(ctx, req); err != nil {
		t.Fatalf("创建失败: %v", err)
	}

	if err := store.Withdrawals().MarkRejected(ctx, "WDR-barrier", "admin", now); err != nil {
		t.Fatalf("首次拒绝失败: %v", err)
	}
	// 第二次必须被屏障挡住
	if err := store.Withdrawals().MarkRejected(ctx, "WDR-barrier", "system", now); !errors.Is(err, ErrAlreadyProcessed) {
		t.Fatalf("重复拒绝应返回已处理, got %v", err)
	}
	// 拒绝后也不允许再标记完成
	if err := store.Withdrawals().MarkCompleted(ctx, "WDR-barrier", "admin", now); !errors.Is(err, ErrAlreadyProcessed) {
		t.Fatalf("终态后标记完成应失败, got %v", err)
	}

	got, _ := store.Withdrawals().GetByRequestNo(ctx, "WDR-barrier")
	if !got.Refunded || got.ProcessedBy != "admin" {
		t.Fatalf("首次处理的信息应保留: %+v", got)
	}
}

func TestFinalizeBarrier(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	trans := &model.Transaction{
		TransactionNo: "TXN-final",
		UserID:        1,
		Type:          model.TransactionTypeDeposit,
		Amount:        1000,
		Status:        model.TransactionStatusPending,
	}
	if err := store.Transactions().Create(ctx, trans); err != nil {
		t.Fatalf("创建失败: %v", err)
	}

	if err := store.Transactions().Finalize(ctx, "TXN-final", model.TransactionStatusCompleted); err != nil {
		t.Fatalf("首次终结失败: %v", err)
	}
	if err := store.Transactions().Finalize(ctx, "TXN-final", model.TransactionStatusFailed); !errors.Is(err, ErrAlreadyFinalized) {
		t.Fatalf("重复终结应失败, got %v", err)
	}

	got, _ := store.Transactions().GetByTransactionNo(ctx, "TXN-final")
	if got.Status != model.TransactionStatusCompleted {
		t.Fatalf("状态应保持 COMPLETED, got %s", got.Status)
	}
}

func TestMarkCommissionPaidBarrier(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	referral := &model.Referral{UserID: 1, ReferralCode: "ABCD2345"}
	if err := store.Referrals().Create(ctx, referral); err != nil {
		t.Fatalf("创建邀请关系失败: %v", err)
	}
	if err := store.Referrals().AddReferredUser(ctx, &model.ReferredUser{ReferralID: referral.ID, UserID: 2}); err != nil {
		t.Fatalf("登记被邀请人失败: %v", err)
	}

	if err := store.Referrals().MarkCommissionPaid(ctx, 2, time.Now()); err != nil {
		t.Fatalf("首次标记失败: %v", err)
	}
	if err := store.Referrals().MarkCommissionPaid(ctx, 2, time.Now()); !errors.Is(err, ErrAlreadyProcessed) {
		t.Fatalf("重复标记应失败, got %v", err)
	}
}

func TestTransactionRollback(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	seedAccount(t, store, 1, 10000)

	boom := errors.New("boom")
	err := store.Transaction(ctx, func(tx Store) error {
		if err := tx.Accounts().Increase(ctx, 1, model.BucketBalance, 5000); err != nil {
			return err
		}
		if err := tx.Transactions().Create(ctx, &model.Transaction{
			TransactionNo: "TXN-rollback",
			UserID:        1,
			Type:          model.TransactionTypeDeposit,
			Amount:        5000,
			Status:        model.TransactionStatusCompleted,
		}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("事务应返回内部错误, got %v", err)
	}

	// 全部回滚
	account, _ := store.Accounts().GetByUserID(ctx, 1)
	if account.Balance != 10000 {
		t.Fatalf("余额应回滚到 10000, got %d", account.Balance)
	}
	if _, err := store.Transactions().GetByTransactionNo(ctx, "TXN-rollback"); !errors.Is(err, ErrTransactionNotFound) {
		t.Fatalf("流水应回滚, got %v", err)
	}
}

func TestTransactionCommit(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	seedAccount(t, store, 1, 10000)

	err := store.Transaction(ctx, func(tx Store) error {
		return tx.Accounts().Increase(ctx, 1, model.BucketBalance, 5000)
	})
	if err != nil {
		t.Fatalf("事务失败: %v", err)
	}
	account, _ := store.Accounts().GetByUserID(ctx, 1)
	if account.Balance != 15000 {
		t.Fatalf("事务应提交, got %d", account.Balance)
	}
}

func TestAddReferredUserUnique(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	referral := &model.Referral{UserID: 1, ReferralCode: "WXYZ2345"}
	store.Referrals().Create(ctx, referral)

	if err := store.Referrals().AddReferredUser(ctx, &model.ReferredUser{ReferralID: referral.ID, UserID: 2}); err != nil {
		t.Fatalf("首次登记失败: %v", err)
	}
	if err := store.Referrals().AddReferredUser(ctx, &model.ReferredUser{ReferralID: referral.ID, UserID: 2}); !errors.Is(err, ErrAlreadyReferred) {
		t.Fatalf("重复登记应失败, got %v", err)
	}

	got, _ := store.Referrals().GetByID(ctx, referral.ID)
	if got.TotalReferrals != 1 {
		t.Fatalf("邀请计数应为 1, got %d", got.TotalReferrals)
	}
}
