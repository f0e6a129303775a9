package job

import (
	"context"
	"fmt"
	"log"
	"time"

	"voipbilling/internal/repository"
	"voipbilling/internal/service"

	"github.com/robfig/cron/v3"
)

// ReconcileJob 定时回放所有账户流水，核对余额
type ReconcileJob struct {
	accounts  repository.AccountRepository
	ledger    *service.LedgerService
	cron      *cron.Cron
	spec      string
	batchSize int
}

func NewReconcileJob(accounts repository.AccountRepository, ledger *service.LedgerService, spec string) *ReconcileJob {
	return &ReconcileJob{
		accounts:  accounts,
		ledger:    ledger,
		cron:      cron.New(cron.WithSeconds()),
		spec:      spec,
		batchSize: 200,
	}
}

// ReconcileSummary 一次全量核对的结果
type ReconcileSummary struct {
	Checked    int
	Mismatched []int64
	Failed     int
}

// Start 注册定时任务，ctx 取消时停止调度并等待正在运行的任务结束
func (j *ReconcileJob) Start(ctx context.Context) error {
	_, err := j.cron.AddFunc(j.spec, func() {
		start := time.Now()
		summary := j.RunOnce(ctx)
		log.Printf("[ReconcileJob] 核对完成: checked=%d, mismatched=%d, failed=%d, cost=%s",
			summary.Checked, len(summary.Mismatched), summary.Failed, time.Since(start))
	})
	if err != nil {
		return fmt.Errorf("注册对账任务失败: spec=%s: %w", j.spec, err)
	}

	j.cron.Start()
	log.Printf("[ReconcileJob] 对账任务启动: spec=%s", j.spec)

	go func() {
		<-ctx.Done()
		<-j.cron.Stop().Done()
		log.Println("[ReconcileJob] 收到停止信号，任务退出")
	}()
	return nil
}

// RunOnce 按 ID 分批遍历所有账户
func (j *ReconcileJob) RunOnce(ctx context.Context) *ReconcileSummary {
	summary := &ReconcileSummary{}
	afterID := int64(0)
	for {
		ids, err := j.accounts.ListIDs(ctx, afterID, j.batchSize)
		if err != nil {
			log.Printf("[ReconcileJob] 查询账户失败: %v", err)
			summary.Failed++
			return summary
		}
		for _, id := range ids {
			if ctx.Err() != nil {
				return summary
			}
			afterID = id
			report, err := j.ledger.ReplayBalance(ctx, id)
			if err != nil {
				log.Printf("[ReconcileJob] 回放失败: accountID=%d, err=%v", id, err)
				summary.Failed++
				continue
			}
			summary.Checked++
			if !report.Consistent {
				summary.Mismatched = append(summary.Mismatched, id)
			}
		}
		if len(ids) < j.batchSize {
			return summary
		}
	}
}
