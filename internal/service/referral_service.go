package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math/big"
	"time"

	"coinbank/internal/config"
	"coinbank/internal/model"
	"coinbank/internal/repository"
	"coinbank/pkg/idgen"
)

// 邀请码字符集，去掉了易混淆的 0/O/1/I/L
const referralCodeCharset = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
const referralCodeLength = 8

// ReferralService 邀请佣金服务
//
// 佣金规则：被邀请用户完成首笔不低于门槛金额的充值时，邀请人
// 获得一笔固定佣金，计入佣金余额桶。每个被邀请用户至多触发一次，
// commission_paid 的条件更新是幂等屏障。
type ReferralService struct {
	store repository.Store
	cfg   *config.BusinessConfig
}

func NewReferralService(store repository.Store, cfg *config.BusinessConfig) *ReferralService {
	return &ReferralService{
		store: store,
		cfg:   cfg,
	}
}

// GenerateCode 获取用户的邀请码，没有则生成
// 生成时随机码撞库会重试，寿命内撞满视为异常
func (s *ReferralService) GenerateCode(ctx context.Context, userID int64) (*model.Referral, error) {
	existing, err := s.store.Referrals().GetByUserID(ctx, userID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repository.ErrReferralNotFound) {
		return nil, err
	}

	for i := 0; i < 5; i++ {
		code, err := randomCode()
		if err != nil {
			return nil, err
		}
		referral := &model.Referral{
			UserID:       userID,
			ReferralCode: code,
		}
		if err := s.store.Referrals().Create(ctx, referral); err != nil {
			// 唯一索引冲突有两种来源：邀请码撞了换码重试，
			// 用户并发调用则直接返回已生成的记录
			if existing, lookupErr := s.store.Referrals().GetByUserID(ctx, userID); lookupErr == nil {
				return existing, nil
			}
			continue
		}
		log.Printf("[ReferralService] 邀请码生成: userID=%d code=%s", userID, code)
		return referral, nil
	}
	return nil, fmt.Errorf("邀请码生成失败，请重试")
}

// Validate 校验邀请码是否有效
func (s *ReferralService) Validate(ctx context.Context, code string) (*model.Referral, error) {
	return s.store.Referrals().GetByCode(ctx, code)
}

// Bind 将新用户绑定到邀请码
// 不允许自己邀请自己，同一个用户只能被邀请一次
func (s *ReferralService) Bind(ctx context.Context, code string, userID int64) error {
	referral, err := s.store.Referrals().GetByCode(ctx, code)
	if err != nil {
		return err
	}
	if referral.UserID == userID {
		return ErrSelfReferral
	}

	referred := &model.ReferredUser{
		ReferralID: referral.ID,
		UserID:     userID,
	}
	if err := s.store.Referrals().AddReferredUser(ctx, referred); err != nil {
		return err
	}
	log.Printf("[ReferralService] 邀请绑定: code=%s referrer=%d referred=%d",
		code, referral.UserID, userID)
	return nil
}

// ReferralInfo 邀请详情
type ReferralInfo struct {
	Referral      *model.Referral       `json:"referral"`
	ReferredUsers []*model.ReferredUser `json:"referred_users"`
}

// Info 查询用户的邀请码、累计数据和被邀请人列表
func (s *ReferralService) Info(ctx context.Context, userID int64) (*ReferralInfo, error) {
	referral, err := s.store.Referrals().GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	users, err := s.store.Referrals().ListReferredUsers(ctx, referral.ID)
	if err != nil {
		return nil, err
	}
	return &ReferralInfo{Referral: referral, ReferredUsers: users}, nil
}

// ProcessFirstDepositCommission 充值到账后的佣金结算
//
// 幂等性依次由三层保证：
// 1. 没有邀请关系或已结算过，直接返回（快路径，无写操作）
// 2. MarkCommissionPaid 条件更新失败说明并发结算已经发生，同样返回成功
// 3. 标记、入账、流水、累计在同一个事务内，要么全部生效要么全部回滚
//
// 低于门槛的充值不触发结算，也不消耗首充资格
func (s *ReferralService) ProcessFirstDepositCommission(ctx context.Context, userID int64, depositAmount int64) error {
	if depositAmount < s.cfg.ReferralMinDeposit {
		return nil
	}

	referred, err := s.store.Referrals().GetReferredUser(ctx, userID)
	if err != nil {
		return err
	}
	if referred == nil || referred.CommissionPaid {
		return nil
	}

	referral, err := s.store.Referrals().GetByID(ctx, referred.ReferralID)
	if err != nil {
		return err
	}

	commission := s.cfg.ReferralCommission
	err = s.store.Transaction(ctx, func(tx repository.Store) error {
		if err := tx.Referrals().MarkCommissionPaid(ctx, userID, time.Now()); err != nil {
			return err
		}
		if _, err := tx.Accounts().GetOrCreate(ctx, referral.UserID); err != nil {
			return err
		}
		if err := tx.Accounts().Increase(ctx, referral.UserID, model.BucketCommission, commission); err != nil {
			return err
		}
		if err := tx.Referrals().AddEarnings(ctx, referral.ID, commission); err != nil {
			return err
		}
		trans := &model.Transaction{
			TransactionNo: idgen.GenerateTransactionNo(),
			UserID:        referral.UserID,
			Type:          model.TransactionTypeReferralBonus,
			Amount:        commission,
			Status:        model.TransactionStatusCompleted,
			Description:   fmt.Sprintf("邀请佣金: 用户%d完成首充", userID),
		}
		return tx.Transactions().Create(ctx, trans)
	})
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyProcessed) {
			return nil
		}
		return err
	}

	log.Printf("[ReferralService] 佣金结算完成: referrer=%d referred=%d commission=%d",
		referral.UserID, userID, commission)
	return nil
}

// TopStats 邀请排行榜
func (s *ReferralService) TopStats(ctx context.Context, limit int) ([]*model.Referral, error) {
	if limit < 1 || limit > 100 {
		limit = 10
	}
	return s.store.Referrals().TopByEarnings(ctx, limit)
}

func randomCode() (string, error) {
	code := make([]byte, referralCodeLength)
	max := big.NewInt(int64(len(referralCodeCharset)))
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		code[i] = referralCodeCharset[n.Int64()]
	}
	return string(code), nil
}
