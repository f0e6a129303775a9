package job

import (
	"context"
	"log"
	"time"

	"voipbilling/internal/service"
)

// SessionReaperJob 补偿丢失的呼叫结束事件
// 准入后超过 maxAge 仍未释放的会话视为已结束，归还并发名额
type SessionReaperJob struct {
	admission *service.AdmissionService
	stopCh    chan struct{}
	interval  time.Duration
	maxAge    time.Duration
	batchSize int
}

func NewSessionReaperJob(admission *service.AdmissionService, interval, maxAge time.Duration) *SessionReaperJob {
	if interval <= 0 {
		interval = time.Minute
	}
	if maxAge <= 0 {
		maxAge = 4 * time.Hour
	}
	return &SessionReaperJob{
		admission: admission,
		stopCh:    make(chan struct{}),
		interval:  interval,
		maxAge:    maxAge,
		batchSize: 100,
	}
}

func (j *SessionReaperJob) Start(ctx context.Context) {
	log.Println("[SessionReaperJob] 过期会话清理任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[SessionReaperJob] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			log.Println("[SessionReaperJob] 任务停止")
			return
		case <-ticker.C:
			j.reap(ctx)
		}
	}
}

func (j *SessionReaperJob) Stop() {
	close(j.stopCh)
}

func (j *SessionReaperJob) reap(ctx context.Context) {
	before := time.Now().Add(-j.maxAge)
	n, err := j.admission.ReleaseStale(ctx, before, j.batchSize)
	if err != nil {
		log.Printf("[SessionReaperJob] 清理失败: %v", err)
		return
	}
	if n > 0 {
		log.Printf("[SessionReaperJob] 本次释放 %d 个过期会话", n)
	}
}
