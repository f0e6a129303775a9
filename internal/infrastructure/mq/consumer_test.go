package mq

import (
	"context"
	"errors"
	"testing"
	"time"

	"voipbilling/internal/model"

	"github.com/IBM/sarama"
)

var errTemporary = errors.New("temporary")

type fakeHandler struct {
	got  []*model.CallEvent
	err  error
	errs []error // 依次返回，用完后返回 err
}

func (h *fakeHandler) Dispatch(ctx context.Context, ev *model.CallEvent) error {
	h.got = append(h.got, ev)
	if len(h.errs) > 0 {
		err := h.errs[0]
		h.errs = h.errs[1:]
		return err
	}
	return h.err
}

func TestConsumerHandle(t *testing.T) {
	retryable := func(err error) bool { return errors.Is(err, errTemporary) }
	value := []byte(`{"type":"CALL_TERMINATED","call_id":"c1","account_id":7,"dialed_number":"1212","raw_duration_seconds":61}`)

	tests := []struct {
		name       string
		value      []byte
		handlerErr error
		wantMark   bool
		wantCalls  int
	}{
		{"成功", value, nil, true, 1},
		{"格式错误跳过", []byte("{bad"), nil, true, 0},
		{"业务错误跳过", value, errors.New("余额不足"), true, 1},
		{"临时错误重试", value, errTemporary, false, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &fakeHandler{err: tt.handlerErr}
			c := &CallEventConsumer{handler: h, retryable: retryable}

			mark := c.handle(context.Background(), &sarama.ConsumerMessage{Value: tt.value})
			if mark != tt.wantMark {
				t.Fatalf("mark = %v, want %v", mark, tt.wantMark)
			}
			if len(h.got) != tt.wantCalls {
				t.Fatalf("calls = %d, want %d", len(h.got), tt.wantCalls)
			}
			if tt.wantCalls == 1 && (h.got[0].CallID != "c1" || h.got[0].RawDurationSeconds != 61) {
				t.Fatalf("event = %+v", h.got[0])
			}
		})
	}
}

func TestConsumerRetriesUntilSuccess(t *testing.T) {
	h := &fakeHandler{errs: []error{errTemporary, errTemporary}}
	c := &CallEventConsumer{
		handler:    h,
		retryable:  func(err error) bool { return errors.Is(err, errTemporary) },
		minBackoff: time.Millisecond,
		maxBackoff: 2 * time.Millisecond,
	}
	msg := &sarama.ConsumerMessage{Value: []byte(`{"type":"CALL_ENDED","call_id":"c1","account_id":7}`)}

	if !c.process(context.Background(), msg) {
		t.Fatal("恢复后应提交位点")
	}
	if len(h.got) != 3 {
		t.Fatalf("calls = %d, want 3", len(h.got))
	}
}

func TestConsumerRetryStopsWithSession(t *testing.T) {
	h := &fakeHandler{err: errTemporary}
	c := &CallEventConsumer{
		handler:    h,
		retryable:  func(err error) bool { return errors.Is(err, errTemporary) },
		minBackoff: time.Millisecond,
		maxBackoff: time.Millisecond,
	}
	msg := &sarama.ConsumerMessage{Value: []byte(`{"type":"CALL_ENDED","call_id":"c1","account_id":7}`)}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if c.process(ctx, msg) {
		t.Fatal("session 结束时不应提交位点")
	}
	if len(h.got) < 2 {
		t.Fatalf("calls = %d, want >= 2", len(h.got))
	}
}
