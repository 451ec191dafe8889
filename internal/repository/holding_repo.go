package repository

import (
	"context"
	"errors"

	"coinbank/internal/model"

	"gorm.io/gorm"
)

type gormHoldingRepo struct {
	db *gorm.DB
}

func (r *gormHoldingRepo) GetByUserAndSymbol(ctx context.Context, userID int64, symbol string) (*model.CryptoHolding, error) {
	var holding model.CryptoHolding
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND symbol = ?", userID, symbol).
		First(&holding).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &holding, nil
}

func (r *gormHoldingRepo) Save(ctx context.Context, holding *model.CryptoHolding) error {
	return r.db.WithContext(ctx).Save(holding).Error
}

func (r *gormHoldingRepo) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Delete(&model.CryptoHolding{}, id).Error
}

func (r *gormHoldingRepo) ListByUserID(ctx context.Context, userID int64) ([]*model.CryptoHolding, error) {
	var holdings []*model.CryptoHolding
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("symbol ASC").
		Find(&holdings).Error
	return holdings, err
}
