package repository

import (
	"context"
	"errors"

	"coinbank/internal/model"

	"gorm.io/gorm"
)

type gormTransactionRepo struct {
	db *gorm.DB
}

func (r *gormTransactionRepo) Create(ctx context.Context, trans *model.Transaction) error {
	return r.db.WithContext(ctx).Create(trans).Error
}

func (r *gormTransactionRepo) GetByTransactionNo(ctx context.Context, transactionNo string) (*model.Transaction, error) {
	var trans model.Transaction
	err := r.db.WithContext(ctx).Where("transaction_no = ?", transactionNo).First(&trans).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &trans, nil
}

func (r *gormTransactionRepo) GetByExternalID(ctx context.Context, externalID string) (*model.Transaction, error) {
	var trans model.Transaction
	err := r.db.WithContext(ctx).Where("external_id = ?", externalID).First(&trans).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &trans, nil
}

// Finalize 流水终态迁移
// WHERE 带上 PENDING 条件，并发的重复回调只有一个能命中
func (r *gormTransactionRepo) Finalize(ctx context.Context, transactionNo string, toStatus string) error {
	if toStatus != model.TransactionStatusCompleted && toStatus != model.TransactionStatusFailed {
		return ErrAlreadyFinalized
	}

	result := r.db.WithContext(ctx).
		Model(&model.Transaction{}).
		Where("transaction_no = ? AND status = ?", transactionNo, model.TransactionStatusPending).
		Update("status", toStatus)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		if _, err := r.GetByTransactionNo(ctx, transactionNo); err != nil {
			return err
		}
		return ErrAlreadyFinalized
	}

	return nil
}

func (r *gormTransactionRepo) ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.Transaction, int64, error) {
	var transactions []*model.Transaction
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Transaction{}).Where("user_id = ?", userID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&transactions).Error

	return transactions, total, err
}

func (r *gormTransactionRepo) SumCompletedByType(ctx context.Context, transType string) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&model.Transaction{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("type = ? AND status = ?", transType, model.TransactionStatusCompleted).
		Scan(&total).Error
	return total, err
}
