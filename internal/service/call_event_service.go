package service

import (
	"context"
	"errors"
	"log"

	"voipbilling/internal/model"
)

// CallEventService 信令侧呼叫事件入口，Kafka 消费和 HTTP 共用
type CallEventService struct {
	rating    *RatingService
	admission *AdmissionService
}

func NewCallEventService(rating *RatingService, admission *AdmissionService) *CallEventService {
	return &CallEventService{rating: rating, admission: admission}
}

// Starting 呼叫开始前准入
func (s *CallEventService) Starting(ctx context.Context, ev *model.CallEvent) error {
	if ev.CallID == "" || ev.AccountID <= 0 {
		return invalidArg("call_id 和 account_id 不能为空")
	}
	return s.admission.TryAdmit(ctx, ev.AccountID, ev.CallID)
}

// Ended 呼叫结束，只释放并发名额，计费由 Terminated 完成
func (s *CallEventService) Ended(ctx context.Context, ev *model.CallEvent) error {
	if ev.CallID == "" {
		return invalidArg("call_id 不能为空")
	}
	err := s.admission.Release(ctx, ev.AccountID, ev.CallID)
	if errors.Is(err, ErrAdmissionUnderflow) {
		return nil
	}
	return err
}

// Terminated 计费，同时释放该呼叫占用的并发名额（会话不存在时为空操作）
func (s *CallEventService) Terminated(ctx context.Context, ev *model.CallEvent) (*RatingResult, error) {
	result, err := s.rating.HandleCallTerminated(ctx, ev)

	if ev != nil && ev.CallID != "" {
		if rerr := s.admission.Release(ctx, ev.AccountID, ev.CallID); rerr != nil && !errors.Is(rerr, ErrAdmissionUnderflow) {
			log.Printf("[CallEvent] 释放并发名额失败: callID=%s, err=%v", ev.CallID, rerr)
		}
	}
	return result, err
}

// Dispatch 按事件类型分发
func (s *CallEventService) Dispatch(ctx context.Context, ev *model.CallEvent) error {
	switch ev.Type {
	case model.CallEventStarting:
		return s.Starting(ctx, ev)
	case model.CallEventEnded:
		return s.Ended(ctx, ev)
	case model.CallEventTerminated:
		_, err := s.Terminated(ctx, ev)
		return err
	default:
		return invalidArg("未知的呼叫事件类型: %s", ev.Type)
	}
}
