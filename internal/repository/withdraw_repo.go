package repository

import (
	"context"
	"errors"
	"time"

	"coinbank/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type gormWithdrawRepo struct {
	db *gorm.DB
}

func (r *gormWithdrawRepo) Create(ctx context.Context, req *model.WithdrawRequest) error {
	return r.db.WithContext(ctx).Create(req).Error
}

func (r *gormWithdrawRepo) GetByRequestNo(ctx context.Context, requestNo string) (*model.WithdrawRequest, error) {
	var req model.WithdrawRequest
	err := r.db.WithContext(ctx).Where("request_no = ?", requestNo).First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWithdrawNotFound
		}
		return nil, err
	}
	return &req, nil
}

func (r *gormWithdrawRepo) GetByRequestNoForUpdate(ctx context.Context, requestNo string) (*model.WithdrawRequest, error) {
	var req model.WithdrawRequest
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("request_no = ?", requestNo).
		First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWithdrawNotFound
		}
		return nil, err
	}
	return &req, nil
}

func (r *gormWithdrawRepo) MarkCompleted(ctx context.Context, requestNo string, actor string, processedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&model.WithdrawRequest{}).
		Where("request_no = ? AND status = ?", requestNo, model.WithdrawStatusPending).
		Updates(map[string]interface{}{
			"status":       model.WithdrawStatusCompleted,
			"processed_at": processedAt,
			"processed_by": actor,
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		if _, err := r.GetByRequestNo(ctx, requestNo); err != nil {
			return err
		}
		return ErrAlreadyProcessed
	}

	return nil
}

// MarkRejected 拒绝并标记退款
// status 与 refunded 写在同一条 UPDATE 里：并发的管理员拒绝和超时自动拒绝
// 最多只有一个能命中，退款不可能发生两次
func (r *gormWithdrawRepo) MarkRejected(ctx context.Context, requestNo string, actor string, processedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&model.WithdrawRequest{}).
		Where("request_no = ? AND status = ? AND refunded = ?", requestNo, model.WithdrawStatusPending, false).
		Updates(map[string]interface{}{
			"status":       model.WithdrawStatusRejected,
			"refunded":     true,
			"processed_at": processedAt,
			"processed_by": actor,
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		if _, err := r.GetByRequestNo(ctx, requestNo); err != nil {
			return err
		}
		return ErrAlreadyProcessed
	}

	return nil
}

func (r *gormWithdrawRepo) GetExpiredPending(ctx context.Context, now time.Time, limit int) ([]*model.WithdrawRequest, error) {
	var requests []*model.WithdrawRequest
	err := r.db.WithContext(ctx).
		Where("status = ? AND expired_at < ?", model.WithdrawStatusPending, now).
		Limit(limit).
		Find(&requests).Error
	return requests, err
}

func (r *gormWithdrawRepo) ListByUserID(ctx context.Context, userID int64) ([]*model.WithdrawRequest, error) {
	var requests []*model.WithdrawRequest
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&requests).Error
	return requests, err
}

func (r *gormWithdrawRepo) ListByStatus(ctx context.Context, status string, page, pageSize int) ([]*model.WithdrawRequest, int64, error) {
	var requests []*model.WithdrawRequest
	var total int64

	query := r.db.WithContext(ctx).Model(&model.WithdrawRequest{}).Where("status = ?", status)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&requests).Error

	return requests, total, err
}

// PurgeRefunded 保留期之后清理已退款的拒绝单
// 只删除 refunded=true 的记录，资金安全不依赖这里
func (r *gormWithdrawRepo) PurgeRefunded(ctx context.Context, before time.Time, limit int) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("status = ? AND refunded = ? AND processed_at < ?",
			model.WithdrawStatusRejected, true, before).
		Limit(limit).
		Delete(&model.WithdrawRequest{})
	return result.RowsAffected, result.Error
}
