package repository

import (
	"context"

	"gorm.io/gorm"
)

// gormStore 基于 gorm + MySQL 的仓储实现
type gormStore struct {
	db *gorm.DB
}

// NewGormStore 创建 MySQL 仓储
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) Accounts() AccountRepo         { return &gormAccountRepo{db: s.db} }
func (s *gormStore) Transactions() TransactionRepo { return &gormTransactionRepo{db: s.db} }
func (s *gormStore) Withdrawals() WithdrawRepo     { return &gormWithdrawRepo{db: s.db} }
func (s *gormStore) Referrals() ReferralRepo       { return &gormReferralRepo{db: s.db} }
func (s *gormStore) Holdings() HoldingRepo         { return &gormHoldingRepo{db: s.db} }
func (s *gormStore) Outbox() OutboxRepo            { return &gormOutboxRepo{db: s.db} }

func (s *gormStore) Transaction(ctx context.Context, fn func(Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx})
	})
}
