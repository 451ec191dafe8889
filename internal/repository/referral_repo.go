package repository

import (
	"context"
	"errors"
	"time"

	"coinbank/internal/model"

	"gorm.io/gorm"
)

type gormReferralRepo struct {
	db *gorm.DB
}

func (r *gormReferralRepo) Create(ctx context.Context, referral *model.Referral) error {
	return r.db.WithContext(ctx).Create(referral).Error
}

func (r *gormReferralRepo) GetByUserID(ctx context.Context, userID int64) (*model.Referral, error) {
	var referral model.Referral
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&referral).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReferralNotFound
		}
		return nil, err
	}
	return &referral, nil
}

func (r *gormReferralRepo) GetByCode(ctx context.Context, code string) (*model.Referral, error) {
	var referral model.Referral
	err := r.db.WithContext(ctx).Where("referral_code = ?", code).First(&referral).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReferralNotFound
		}
		return nil, err
	}
	return &referral, nil
}

func (r *gormReferralRepo) GetByID(ctx context.Context, id int64) (*model.Referral, error) {
	var referral model.Referral
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&referral).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReferralNotFound
		}
		return nil, err
	}
	return &referral, nil
}

// AddReferredUser 登记被邀请用户
// 依赖 user_id 唯一索引兜底：先查后插在事务内完成，一个用户只能被邀请一次
func (r *gormReferralRepo) AddReferredUser(ctx context.Context, referred *model.ReferredUser) error {
	existing, err := r.GetReferredUser(ctx, referred.UserID)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrAlreadyReferred
	}

	if err := r.db.WithContext(ctx).Create(referred).Error; err != nil {
		return err
	}

	return r.db.WithContext(ctx).
		Model(&model.Referral{}).
		Where("id = ?", referred.ReferralID).
		UpdateColumn("total_referrals", gorm.Expr("total_referrals + 1")).Error
}

func (r *gormReferralRepo) GetReferredUser(ctx context.Context, userID int64) (*model.ReferredUser, error) {
	var referred model.ReferredUser
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&referred).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &referred, nil
}

// MarkCommissionPaid 佣金发放的幂等屏障
// WHERE 带上 commission_paid=false，重复的充值回调只有第一次能命中
func (r *gormReferralRepo) MarkCommissionPaid(ctx context.Context, referredUserID int64, paidAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&model.ReferredUser{}).
		Where("user_id = ? AND commission_paid = ?", referredUserID, false).
		Updates(map[string]interface{}{
			"has_deposited":      true,
			"commission_paid":    true,
			"first_deposit_at":   paidAt,
			"commission_paid_at": paidAt,
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrAlreadyProcessed
	}

	return nil
}

func (r *gormReferralRepo) AddEarnings(ctx context.Context, referralID int64, amount int64) error {
	return r.db.WithContext(ctx).
		Model(&model.Referral{}).
		Where("id = ?", referralID).
		UpdateColumn("total_earnings", gorm.Expr("total_earnings + ?", amount)).Error
}

func (r *gormReferralRepo) ListReferredUsers(ctx context.Context, referralID int64) ([]*model.ReferredUser, error) {
	var referred []*model.ReferredUser
	err := r.db.WithContext(ctx).
		Where("referral_id = ?", referralID).
		Order("created_at DESC").
		Find(&referred).Error
	return referred, err
}

func (r *gormReferralRepo) TopByEarnings(ctx context.Context, limit int) ([]*model.Referral, error) {
	var referrals []*model.Referral
	err := r.db.WithContext(ctx).
		Order("total_earnings DESC").
		Limit(limit).
		Find(&referrals).Error
	return referrals, err
}

func (r *gormReferralRepo) SumReferrals(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&model.Referral{}).
		Select("COALESCE(SUM(total_referrals), 0)").
		Scan(&total).Error
	return total, err
}
