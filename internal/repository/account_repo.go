package repository

import (
	"context"
	"errors"

	"coinbank/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type gormAccountRepo struct {
	db *gorm.DB
}

// bucketColumn 将余额桶映射到列名，非法桶一律按可用余额处理
func bucketColumn(bucket string) string {
	if bucket == model.BucketCommission {
		return "commission_balance"
	}
	return "balance"
}

func (r *gormAccountRepo) Create(ctx context.Context, account *model.Account) error {
	return r.db.WithContext(ctx).Create(account).Error
}

func (r *gormAccountRepo) GetByUserID(ctx context.Context, userID int64) (*model.Account, error) {
	var account model.Account
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

func (r *gormAccountRepo) GetByUserIDForUpdate(ctx context.Context, userID int64) (*model.Account, error) {
	var account model.Account
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

func (r *gormAccountRepo) GetOrCreate(ctx context.Context, userID int64) (*model.Account, error) {
	account, err := r.GetByUserID(ctx, userID)
	if err == nil {
		return account, nil
	}

	if !errors.Is(err, ErrAccountNotFound) {
		return nil, err
	}

	newAccount := &model.Account{
		UserID: userID,
	}

	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(newAccount).Error

	if err != nil {
		return nil, err
	}

	return r.GetByUserID(ctx, userID)
}

// Deduct CAS 扣减
// WHERE 条件同时校验余额充足和版本号，0 行命中时回查账户区分两种失败原因
func (r *gormAccountRepo) Deduct(ctx context.Context, userID int64, bucket string, amount int64, version int) error {
	column := bucketColumn(bucket)
	result := r.db.WithContext(ctx).
		Model(&model.Account{}).
		Where("user_id = ? AND "+column+" >= ? AND version = ?", userID, amount, version).
		Updates(map[string]interface{}{
			column:    gorm.Expr(column+" - ?", amount),
			"version": gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		account, err := r.GetByUserID(ctx, userID)
		if err != nil {
			return err
		}
		if account.BucketBalance(bucket) < amount {
			return ErrBalanceNotEnough
		}
		return ErrOptimisticLock
	}

	return nil
}

func (r *gormAccountRepo) Increase(ctx context.Context, userID int64, bucket string, amount int64) error {
	column := bucketColumn(bucket)
	result := r.db.WithContext(ctx).
		Model(&model.Account{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			column:    gorm.Expr(column+" + ?", amount),
			"version": gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}

	return nil
}

func (r *gormAccountRepo) SetBucket(ctx context.Context, userID int64, bucket string, target int64) error {
	column := bucketColumn(bucket)
	result := r.db.WithContext(ctx).
		Model(&model.Account{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			column:    target,
			"version": gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}

	return nil
}

func (r *gormAccountRepo) SumBalances(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&model.Account{}).
		Select("COALESCE(SUM(balance + commission_balance), 0)").
		Scan(&total).Error
	return total, err
}

func (r *gormAccountRepo) CountAccounts(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Account{}).Count(&count).Error
	return count, err
}
