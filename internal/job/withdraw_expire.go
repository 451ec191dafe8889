package job

import (
	"context"
	"log"
	"time"

	"coinbank/internal/service"
)

// WithdrawExpireJob 提现超时扫描任务
//
// 超时判定是纯状态推导，读路径不依赖这个任务也能看到正确状态。
// 任务的职责只是把"已超时"这个事实落库：走与管理员驳回相同的
// 拒绝+退款路径，与在线操作竞争时以先提交者为准。
// 顺带清理保留期之前的已退款记录。
type WithdrawExpireJob struct {
	withdrawService *service.WithdrawService
	stopCh          chan struct{}
	interval        time.Duration
	purgeInterval   time.Duration
	batchSize       int
}

func NewWithdrawExpireJob(withdrawService *service.WithdrawService) *WithdrawExpireJob {
	return &WithdrawExpireJob{
		withdrawService: withdrawService,
		stopCh:          make(chan struct{}),
		interval:        10 * time.Second,
		purgeInterval:   time.Hour,
		batchSize:       100,
	}
}

func (j *WithdrawExpireJob) Start(ctx context.Context) {
	log.Println("[WithdrawExpireJob] 提现超时任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	purgeTicker := time.NewTicker(j.purgeInterval)
	defer purgeTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[WithdrawExpireJob] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			log.Println("[WithdrawExpireJob] 任务停止")
			return
		case <-ticker.C:
			j.expireDue(ctx)
		case <-purgeTicker.C:
			j.purgeOld(ctx)
		}
	}
}

func (j *WithdrawExpireJob) Stop() {
	close(j.stopCh)
}

func (j *WithdrawExpireJob) expireDue(ctx context.Context) {
	count, err := j.withdrawService.ExpireDueRequests(ctx, j.batchSize)
	if err != nil {
		log.Printf("[WithdrawExpireJob] 超时扫描失败: %v", err)
		return
	}
	if count > 0 {
		log.Printf("[WithdrawExpireJob] 本次处理 %d 个超时申请", count)
	}
}

func (j *WithdrawExpireJob) purgeOld(ctx context.Context) {
	purged, err := j.withdrawService.PurgeProcessed(ctx, j.batchSize)
	if err != nil {
		log.Printf("[WithdrawExpireJob] 清理历史记录失败: %v", err)
		return
	}
	if purged > 0 {
		log.Printf("[WithdrawExpireJob] 清理 %d 条已退款历史记录", purged)
	}
}
