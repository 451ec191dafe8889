package service

import (
	"context"
	"fmt"
	"log"

	"coinbank/internal/config"
	"coinbank/internal/infrastructure/lock"
	"coinbank/internal/infrastructure/pricing"
	"coinbank/internal/model"
	"coinbank/internal/repository"
	"coinbank/pkg/idgen"
)

// CryptoService 加密货币交易服务
// 买入从可用余额扣款，卖出回款到可用余额，持仓按用户+币种一行
type CryptoService struct {
	store  repository.Store
	locker lock.Locker
	prices pricing.PriceSource
	cfg    *config.BusinessConfig
}

func NewCryptoService(store repository.Store, locker lock.Locker, prices pricing.PriceSource, cfg *config.BusinessConfig) *CryptoService {
	return &CryptoService{
		store:  store,
		locker: locker,
		prices: prices,
		cfg:    cfg,
	}
}

// Buy 按报价买入，spend 是花费的余额金额（单位：分）
// 已有持仓时买入价按数量加权平均
func (s *CryptoService) Buy(ctx context.Context, userID int64, symbol string, spend int64) (*model.CryptoHolding, error) {
	if spend <= 0 {
		return nil, ErrInvalidAmount
	}
	price, ok := s.prices.Get(symbol)
	if !ok {
		return nil, ErrSymbolNotFound
	}
	quantity := float64(spend) / float64(price.Price)

	var result *model.CryptoHolding
	err := s.locker.WithLock(ctx, lock.BalanceKey(userID), func() error {
		return retryOnConflict(s.cfg.BalanceRetryCount, func() error {
			return s.store.Transaction(ctx, func(tx repository.Store) error {
				account, err := tx.Accounts().GetByUserID(ctx, userID)
				if err != nil {
					return err
				}
				if err := tx.Accounts().Deduct(ctx, userID, model.BucketBalance, spend, account.Version); err != nil {
					return err
				}

				holding, err := tx.Holdings().GetByUserAndSymbol(ctx, userID, symbol)
				if err != nil {
					return err
				}
				if holding == nil {
					holding = &model.CryptoHolding{
						UserID:        userID,
						Symbol:        symbol,
						Amount:        quantity,
						PurchasePrice: price.Price,
					}
				} else {
					total := holding.Amount + quantity
					avg := (holding.Amount*float64(holding.PurchasePrice) + quantity*float64(price.Price)) / total
					holding.Amount = total
					holding.PurchasePrice = int64(avg)
				}
				if err := tx.Holdings().Save(ctx, holding); err != nil {
					return err
				}

				trans := &model.Transaction{
					TransactionNo: idgen.GenerateTransactionNo(),
					UserID:        userID,
					Type:          model.TransactionTypeCryptoBuy,
					Amount:        spend,
					Status:        model.TransactionStatusCompleted,
					Description:   fmt.Sprintf("买入 %s %.8f @%d", symbol, quantity, price.Price),
				}
				if err := tx.Transactions().Create(ctx, trans); err != nil {
					return err
				}
				result = holding
				return nil
			})
		})
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[CryptoService] 买入成功: userID=%d symbol=%s spend=%d quantity=%.8f",
		userID, symbol, spend, quantity)
	return result, nil
}

// Sell 按报价卖出指定数量，回款计入可用余额
// 卖出后持仓低于粉尘阈值时整行清除
func (s *CryptoService) Sell(ctx context.Context, userID int64, symbol string, quantity float64) (int64, error) {
	if quantity <= 0 {
		return 0, ErrInvalidAmount
	}
	price, ok := s.prices.Get(symbol)
	if !ok {
		return 0, ErrSymbolNotFound
	}
	proceeds := int64(quantity * float64(price.Price))

	err := s.locker.WithLock(ctx, lock.BalanceKey(userID), func() error {
		return s.store.Transaction(ctx, func(tx repository.Store) error {
			holding, err := tx.Holdings().GetByUserAndSymbol(ctx, userID, symbol)
			if err != nil {
				return err
			}
			if holding == nil || holding.Amount < quantity {
				return ErrHoldingNotEnough
			}

			holding.Amount -= quantity
			if holding.Amount < model.DustThreshold {
				if err := tx.Holdings().Delete(ctx, holding.ID); err != nil {
					return err
				}
			} else {
				if err := tx.Holdings().Save(ctx, holding); err != nil {
					return err
				}
			}

			if err := tx.Accounts().Increase(ctx, userID, model.BucketBalance, proceeds); err != nil {
				return err
			}

			trans := &model.Transaction{
				TransactionNo: idgen.GenerateTransactionNo(),
				UserID:        userID,
				Type:          model.TransactionTypeCryptoSell,
				Amount:        proceeds,
				Status:        model.TransactionStatusCompleted,
				Description:   fmt.Sprintf("卖出 %s %.8f @%d", symbol, quantity, price.Price),
			}
			return tx.Transactions().Create(ctx, trans)
		})
	})
	if err != nil {
		return 0, err
	}

	log.Printf("[CryptoService] 卖出成功: userID=%d symbol=%s quantity=%.8f proceeds=%d",
		userID, symbol, quantity, proceeds)
	return proceeds, nil
}

// PortfolioItem 持仓明细，按当前报价折算市值和浮动盈亏
type PortfolioItem struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	Amount        float64 `json:"amount"`
	PurchasePrice int64   `json:"purchase_price"`
	CurrentPrice  int64   `json:"current_price"`
	MarketValue   int64   `json:"market_value"`
	ProfitLoss    int64   `json:"profit_loss"`
}

// Portfolio 查询用户全部持仓
func (s *CryptoService) Portfolio(ctx context.Context, userID int64) ([]*PortfolioItem, error) {
	holdings, err := s.store.Holdings().ListByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	items := make([]*PortfolioItem, 0, len(holdings))
	for _, h := range holdings {
		price, ok := s.prices.Get(h.Symbol)
		if !ok {
			// 报价表里下架的币种按买入价展示
			price = pricing.CoinPrice{Name: h.Symbol, Price: h.PurchasePrice}
		}
		value := int64(h.Amount * float64(price.Price))
		cost := int64(h.Amount * float64(h.PurchasePrice))
		items = append(items, &PortfolioItem{
			Symbol:        h.Symbol,
			Name:          price.Name,
			Amount:        h.Amount,
			PurchasePrice: h.PurchasePrice,
			CurrentPrice:  price.Price,
			MarketValue:   value,
			ProfitLoss:    value - cost,
		})
	}
	return items, nil
}

// Prices 全量报价表
func (s *CryptoService) Prices() map[string]pricing.CoinPrice {
	return s.prices.All()
}
