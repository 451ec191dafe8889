package model

import (
	"testing"
	"time"
)

func TestCanWithdrawTransitionTo(t *testing.T) {
	cases := []struct {
		from, to string
		want     bool
	}{
		{WithdrawStatusPending, WithdrawStatusCompleted, true},
		{WithdrawStatusPending, WithdrawStatusRejected, true},
		{WithdrawStatusCompleted, WithdrawStatusRejected, false},
		{WithdrawStatusCompleted, WithdrawStatusPending, false},
		{WithdrawStatusRejected, WithdrawStatusCompleted, false},
		{WithdrawStatusRejected, WithdrawStatusPending, false},
		{"UNKNOWN", WithdrawStatusCompleted, false},
	}
	for _, c := range cases {
		if got := CanWithdrawTransitionTo(c.from, c.to); got != c.want {
			t.Errorf("%s -> %s: want %v got %v", c.from, c.to, c.want, got)
		}
	}
}

func TestEffectiveStatus(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	req := &WithdrawRequest{
		Status:    WithdrawStatusPending,
		ExpiredAt: base.Add(time.Hour),
	}

	if got := req.EffectiveStatus(base); got != WithdrawStatusPending {
		t.Fatalf("未超时应为 PENDING, got %s", got)
	}
	// 恰好到期时刻不算超时
	if got := req.EffectiveStatus(base.Add(time.Hour)); got != WithdrawStatusPending {
		t.Fatalf("到期时刻应仍为 PENDING, got %s", got)
	}
	if got := req.EffectiveStatus(base.Add(time.Hour + time.Second)); got != WithdrawStatusRejected {
		t.Fatalf("过期后应折算为 REJECTED, got %s", got)
	}

	// 终态不受墙上时钟影响
	req.Status = WithdrawStatusCompleted
	if got := req.EffectiveStatus(base.Add(24 * time.Hour)); got != WithdrawStatusCompleted {
		t.Fatalf("终态不应被折算, got %s", got)
	}
	if req.ExpiredBy(base.Add(24 * time.Hour)) {
		t.Fatal("终态申请不应判定为超时")
	}
}

func TestValidBucket(t *testing.T) {
	if !ValidBucket(BucketBalance) || !ValidBucket(BucketCommission) {
		t.Fatal("内置桶类型应合法")
	}
	if ValidBucket("SAVINGS") || ValidBucket("") {
		t.Fatal("未知桶类型应非法")
	}
}

func TestAccountBucketHelpers(t *testing.T) {
	account := &Account{Balance: 100, CommissionBalance: 200}
	if account.BucketBalance(BucketBalance) != 100 || account.BucketBalance(BucketCommission) != 200 {
		t.Fatal("桶余额读取不符")
	}
	account.UpdateBucket(BucketCommission, 300)
	if account.CommissionBalance != 300 || account.Balance != 100 {
		t.Fatalf("桶余额更新不符: %+v", account)
	}
}
