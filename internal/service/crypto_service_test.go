package service

import (
	"context"
	"errors"
	"math"
	"testing"

	"coinbank/internal/config"
	"coinbank/internal/infrastructure/lock"
	"coinbank/internal/infrastructure/pricing"
	"coinbank/internal/model"
	"coinbank/internal/repository"
)

func newCryptoFixture(t *testing.T) (*repository.MemoryStore, *CryptoService) {
	t.Helper()
	store := repository.NewMemoryStore()
	cfg := &config.BusinessConfig{BalanceRetryCount: 3}
	svc := NewCryptoService(store, lock.NewLocalLocker(), pricing.NewStaticSource(), cfg)
	return store, svc
}

func seedBalance(t *testing.T, store *repository.MemoryStore, userID, amount int64) {
	t.Helper()
	ctx := context.Background()
	if _, err := store.Accounts().GetOrCreate(ctx, userID); err != nil {
		t.Fatalf("开户失败: %v", err)
	}
	if err := store.Accounts().Increase(ctx, userID, model.BucketBalance, amount); err != nil {
		t.Fatalf("初始化余额失败: %v", err)
	}
}

func TestBuyCrypto(t *testing.T) {
	store, svc := newCryptoFixture(t)
	seedBalance(t, store, 1, 1000000)
	ctx := context.Background()

	price, ok := svc.prices.Get("BTC")
	if !ok {
		t.Fatal("报价表应包含 BTC")
	}

	holding, err := svc.Buy(ctx, 1, "BTC", 500000)
	if err != nil {
		t.Fatalf("买入失败: %v", err)
	}
	wantQty := 500000 / float64(price.Price)
	if math.Abs(holding.Amount-wantQty) > 1e-12 {
		t.Fatalf("持仓数量不符: want %v got %v", wantQty, holding.Amount)
	}
	if holding.PurchasePrice != price.Price {
		t.Fatalf("首次买入价应为报价, got %d", holding.PurchasePrice)
	}

	account, _ := store.Accounts().GetByUserID(ctx, 1)
	if account.Balance != 500000 {
		t.Fatalf("买入后余额应为 500000, got %d", account.Balance)
	}

	list, _, _ := store.Transactions().ListByUserID(ctx, 1, 1, 10)
	if len(list) != 1 || list[0].Type != model.TransactionTypeCryptoBuy {
		t.Fatalf("应落一条买入流水: %+v", list)
	}
}

func TestBuyCryptoAveragesPrice(t *testing.T) {
	store, svc := newCryptoFixture(t)
	seedBalance(t, store, 1, 1000000)
	ctx := context.Background()

	first, err := svc.Buy(ctx, 1, "ETH", 300000)
	if err != nil {
		t.Fatalf("首次买入失败: %v", err)
	}
	second, err := svc.Buy(ctx, 1, "ETH", 300000)
	if err != nil {
		t.Fatalf("二次买入失败: %v", err)
	}
	if second.Amount <= first.Amount {
		t.Fatalf("持仓应累加: %v -> %v", first.Amount, second.Amount)
	}
	// 报价不变时加权平均价等于报价（浮点折算允许1分误差）
	if diff := second.PurchasePrice - first.PurchasePrice; diff < -1 || diff > 1 {
		t.Fatalf("同价加仓均价不应变化: %d vs %d", first.PurchasePrice, second.PurchasePrice)
	}
}

func TestBuyCryptoErrors(t *testing.T) {
	store, svc := newCryptoFixture(t)
	seedBalance(t, store, 1, 1000)
	ctx := context.Background()

	if _, err := svc.Buy(ctx, 1, "NOPE", 500); !errors.Is(err, ErrSymbolNotFound) {
		t.Fatalf("未知币种应报错, got %v", err)
	}
	if _, err := svc.Buy(ctx, 1, "BTC", 0); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("金额为0应报错, got %v", err)
	}
	if _, err := svc.Buy(ctx, 1, "BTC", 5000); !errors.Is(err, repository.ErrBalanceNotEnough) {
		t.Fatalf("余额不足应报错, got %v", err)
	}
	// 失败不应产生持仓
	holdings, _ := store.Holdings().ListByUserID(ctx, 1)
	if len(holdings) != 0 {
		t.Fatalf("失败买入不应留持仓, got %d", len(holdings))
	}
}

func TestSellCrypto(t *testing.T) {
	store, svc := newCryptoFixture(t)
	seedBalance(t, store, 1, 1000000)
	ctx := context.Background()

	holding, err := svc.Buy(ctx, 1, "BTC", 600000)
	if err != nil {
		t.Fatalf("买入失败: %v", err)
	}

	half := holding.Amount / 2
	proceeds, err := svc.Sell(ctx, 1, "BTC", half)
	if err != nil {
		t.Fatalf("卖出失败: %v", err)
	}
	// 报价不变，半仓回款约等于一半本金（浮点折算有舍入）
	if diff := proceeds - 300000; diff < -1 || diff > 1 {
		t.Fatalf("半仓回款应约为 300000, got %d", proceeds)
	}

	account, _ := store.Accounts().GetByUserID(ctx, 1)
	if want := 400000 + proceeds; account.Balance != want {
		t.Fatalf("卖出后余额应为 %d, got %d", want, account.Balance)
	}

	remaining, _ := store.Holdings().GetByUserAndSymbol(ctx, 1, "BTC")
	if remaining == nil || math.Abs(remaining.Amount-half) > 1e-12 {
		t.Fatalf("应剩余半仓: %+v", remaining)
	}
}

func TestSellCryptoAllClearsDust(t *testing.T) {
	store, svc := newCryptoFixture(t)
	seedBalance(t, store, 1, 1000000)
	ctx := context.Background()

	holding, _ := svc.Buy(ctx, 1, "SOL", 200000)
	if _, err := svc.Sell(ctx, 1, "SOL", holding.Amount); err != nil {
		t.Fatalf("清仓失败: %v", err)
	}

	remaining, _ := store.Holdings().GetByUserAndSymbol(ctx, 1, "SOL")
	if remaining != nil {
		t.Fatalf("清仓后持仓行应删除: %+v", remaining)
	}
}

func TestSellCryptoErrors(t *testing.T) {
	store, svc := newCryptoFixture(t)
	seedBalance(t, store, 1, 1000000)
	ctx := context.Background()

	if _, err := svc.Sell(ctx, 1, "BTC", 1); !errors.Is(err, ErrHoldingNotEnough) {
		t.Fatalf("无持仓卖出应报错, got %v", err)
	}

	holding, _ := svc.Buy(ctx, 1, "BTC", 100000)
	if _, err := svc.Sell(ctx, 1, "BTC", holding.Amount*2); !errors.Is(err, ErrHoldingNotEnough) {
		t.Fatalf("超量卖出应报错, got %v", err)
	}
	// 失败不应动余额
	account, _ := store.Accounts().GetByUserID(ctx, 1)
	if account.Balance != 900000 {
		t.Fatalf("失败卖出不应变动余额, got %d", account.Balance)
	}
}

func TestPortfolio(t *testing.T) {
	store, svc := newCryptoFixture(t)
	seedBalance(t, store, 1, 1000000)
	ctx := context.Background()

	svc.Buy(ctx, 1, "BTC", 300000)
	svc.Buy(ctx, 1, "ETH", 200000)

	items, err := svc.Portfolio(ctx, 1)
	if err != nil {
		t.Fatalf("查询持仓失败: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("应有2个持仓, got %d", len(items))
	}
	for _, item := range items {
		// 报价未变动时市值约等于本金，浮动盈亏约为0
		if item.ProfitLoss < -1 || item.ProfitLoss > 1 {
			t.Fatalf("%s 盈亏应约为0, got %d", item.Symbol, item.ProfitLoss)
		}
		if item.CurrentPrice <= 0 || item.MarketValue <= 0 {
			t.Fatalf("持仓明细不完整: %+v", item)
		}
	}
}
