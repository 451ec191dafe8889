package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"coinbank/internal/config"
	"coinbank/internal/model"
	"coinbank/internal/repository"
)

func newReferralFixture(t *testing.T) (*repository.MemoryStore, *ReferralService) {
	t.Helper()
	store := repository.NewMemoryStore()
	cfg := &config.BusinessConfig{
		ReferralCommission: 4000,
		ReferralMinDeposit: 3000,
	}
	return store, NewReferralService(store, cfg)
}

func TestGenerateCodeIdempotent(t *testing.T) {
	_, svc := newReferralFixture(t)
	ctx := context.Background()

	first, err := svc.GenerateCode(ctx, 1)
	if err != nil {
		t.Fatalf("生成邀请码失败: %v", err)
	}
	if len(first.ReferralCode) != referralCodeLength {
		t.Fatalf("邀请码长度应为 %d, got %q", referralCodeLength, first.ReferralCode)
	}

	second, err := svc.GenerateCode(ctx, 1)
	if err != nil {
		t.Fatalf("二次获取失败: %v", err)
	}
	if second.ReferralCode != first.ReferralCode {
		t.Fatalf("同一用户邀请码应稳定: %s vs %s", first.ReferralCode, second.ReferralCode)
	}
}

func TestBindReferral(t *testing.T) {
	store, svc := newReferralFixture(t)
	ctx := context.Background()

	referral, _ := svc.GenerateCode(ctx, 1)

	// 自己邀请自己
	if err := svc.Bind(ctx, referral.ReferralCode, 1); !errors.Is(err, ErrSelfReferral) {
		t.Fatalf("自邀应报错, got %v", err)
	}

	// 非法邀请码
	if err := svc.Bind(ctx, "NOSUCHCD", 2); !errors.Is(err, repository.ErrReferralNotFound) {
		t.Fatalf("非法邀请码应报错, got %v", err)
	}

	if err := svc.Bind(ctx, referral.ReferralCode, 2); err != nil {
		t.Fatalf("绑定失败: %v", err)
	}

	// 同一用户不能被邀请两次
	if err := svc.Bind(ctx, referral.ReferralCode, 2); !errors.Is(err, repository.ErrAlreadyReferred) {
		t.Fatalf("重复绑定应报错, got %v", err)
	}

	updated, _ := store.Referrals().GetByUserID(ctx, 1)
	if updated.TotalReferrals != 1 {
		t.Fatalf("邀请计数应为 1, got %d", updated.TotalReferrals)
	}
}

func TestCommissionPaidExactlyOnce(t *testing.T) {
	store, svc := newReferralFixture(t)
	ctx := context.Background()

	referral, _ := svc.GenerateCode(ctx, 1)
	if err := svc.Bind(ctx, referral.ReferralCode, 2); err != nil {
		t.Fatalf("绑定失败: %v", err)
	}

	// 并发触发结算，佣金恰好一次
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := svc.ProcessFirstDepositCommission(ctx, 2, 3000); err != nil {
				t.Errorf("结算失败: %v", err)
			}
		}()
	}
	wg.Wait()

	referrer, _ := store.Accounts().GetByUserID(ctx, 1)
	if referrer.CommissionBalance != 4000 {
		t.Fatalf("佣金应恰好发放一次, got %d", referrer.CommissionBalance)
	}

	// 佣金记入佣金桶，且有对应流水
	list, _, _ := store.Transactions().ListByUserID(ctx, 1, 1, 10)
	bonusCount := 0
	for _, trans := range list {
		if trans.Type == model.TransactionTypeReferralBonus {
			bonusCount++
			if trans.Amount != 4000 {
				t.Fatalf("佣金流水金额应为 4000, got %d", trans.Amount)
			}
		}
	}
	if bonusCount != 1 {
		t.Fatalf("佣金流水应恰好一条, got %d", bonusCount)
	}

	referred, _ := store.Referrals().GetReferredUser(ctx, 2)
	if !referred.HasDeposited || !referred.CommissionPaid {
		t.Fatalf("被邀请人状态未更新: %+v", referred)
	}
}

func TestCommissionNoReferralNoop(t *testing.T) {
	store, svc := newReferralFixture(t)
	ctx := context.Background()

	// 没被任何人邀请的用户充值，结算应静默跳过
	if err := svc.ProcessFirstDepositCommission(ctx, 99, 10000); err != nil {
		t.Fatalf("无邀请关系应无操作: %v", err)
	}
	count, _ := store.Accounts().CountAccounts(ctx)
	if count != 0 {
		t.Fatalf("不应产生任何账户, got %d", count)
	}
}

func TestCommissionBelowThreshold(t *testing.T) {
	store, svc := newReferralFixture(t)
	ctx := context.Background()

	referral, _ := svc.GenerateCode(ctx, 1)
	if err := svc.Bind(ctx, referral.ReferralCode, 2); err != nil {
		t.Fatalf("绑定失败: %v", err)
	}

	if err := svc.ProcessFirstDepositCommission(ctx, 2, 2999); err != nil {
		t.Fatalf("低于门槛应无操作: %v", err)
	}
	referred, _ := store.Referrals().GetReferredUser(ctx, 2)
	if referred.CommissionPaid {
		t.Fatal("低于门槛不应消耗首充资格")
	}
}

func TestReferralInfoAndLeaderboard(t *testing.T) {
	_, svc := newReferralFixture(t)
	ctx := context.Background()

	r1, _ := svc.GenerateCode(ctx, 1)
	svc.GenerateCode(ctx, 2)
	if err := svc.Bind(ctx, r1.ReferralCode, 3); err != nil {
		t.Fatalf("绑定失败: %v", err)
	}
	if err := svc.ProcessFirstDepositCommission(ctx, 3, 5000); err != nil {
		t.Fatalf("结算失败: %v", err)
	}

	info, err := svc.Info(ctx, 1)
	if err != nil {
		t.Fatalf("查询邀请详情失败: %v", err)
	}
	if len(info.ReferredUsers) != 1 || info.Referral.TotalEarnings != 4000 {
		t.Fatalf("邀请详情不符: users=%d earnings=%d", len(info.ReferredUsers), info.Referral.TotalEarnings)
	}

	top, err := svc.TopStats(ctx, 10)
	if err != nil {
		t.Fatalf("查询排行榜失败: %v", err)
	}
	if len(top) != 2 || top[0].UserID != 1 {
		t.Fatalf("排行榜应以用户1居首: %+v", top)
	}
}
