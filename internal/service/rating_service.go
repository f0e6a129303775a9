package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"voipbilling/internal/config"
	"voipbilling/internal/metrics"
	"voipbilling/internal/model"
	"voipbilling/internal/repository"
	"voipbilling/pkg/money"

	"github.com/shopspring/decimal"
)

// RatingService 通话结束后的计费流程：选费率 -> 算费用 -> 扣费 + 落话单
type RatingService struct {
	store    repository.Store
	resolver *RateResolver
	ledger   *LedgerService
	cfg      *config.Config
}

func NewRatingService(store repository.Store, ledger *LedgerService, cfg *config.Config) *RatingService {
	return &RatingService{
		store:    store,
		resolver: NewRateResolver(store),
		ledger:   ledger,
		cfg:      cfg,
	}
}

// RatingResult Duplicate 为 true 表示该 CallID 已计费过，返回已有话单
type RatingResult struct {
	Record    *model.CallRecord `json:"record"`
	Duplicate bool              `json:"duplicate"`
}

// HandleCallTerminated 对一通结束的呼叫计费
//
// 以 CallID 幂等：重复事件返回已有话单，不会重复扣费。
// 无法定价（无费率卡/无费率/配置错误）或扣费被拒的呼叫写入 unbilled 队列，
// 不会按零费用放行。零时长或未接通的呼叫只落话单，不产生流水。
func (s *RatingService) HandleCallTerminated(ctx context.Context, ev *model.CallEvent) (*RatingResult, error) {
	m := metrics.GetMetrics()
	start := time.Now()
	defer func() {
		m.RatingDuration.Observe(time.Since(start).Seconds())
	}()

	if err := validateTerminated(ev); err != nil {
		m.RatingTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}
	if ev.Status == "" {
		ev.Status = model.CallStatusAnswered
	}
	if ev.StartedAt.IsZero() {
		ev.StartedAt = time.Now()
	}

	if existing, err := s.store.CallRecords().GetByCallID(ctx, ev.CallID); err != nil {
		return nil, storageErr("查询话单失败", err)
	} else if existing != nil {
		m.RatingTotal.WithLabelValues("duplicate").Inc()
		return &RatingResult{Record: existing, Duplicate: true}, nil
	}

	account, err := s.store.Accounts().GetByID(ctx, ev.AccountID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, storageErr("查询账户失败", err)
	}

	record := &model.CallRecord{
		CallID:             ev.CallID,
		AccountID:          ev.AccountID,
		DestinationNumber:  ev.DialedNumber,
		RawDurationSeconds: ev.RawDurationSeconds,
		CostAmount:         money.Zero,
		SellAmount:         money.Zero,
		Currency:           s.cfg.Business.DefaultCurrency,
		Status:             ev.Status,
		StartedAt:          ev.StartedAt,
	}

	cardID := ev.RateCardID
	if cardID == 0 && account.RateCardID != nil {
		cardID = *account.RateCardID
	}
	record.RateCardID = cardID

	// 未接通或零时长，没有费用
	if ev.Status != model.CallStatusAnswered || ev.RawDurationSeconds == 0 {
		return s.saveZeroCharge(ctx, record, "zero")
	}

	if cardID == 0 {
		s.escalate(ctx, ev, cardID, model.UnbilledReasonNoRateCard, "账户未分配费率卡")
		m.RatingTotal.WithLabelValues("unbilled").Inc()
		return nil, ErrNoRateCard
	}

	res, err := s.resolver.Resolve(ctx, cardID, ev.DialedNumber, ev.StartedAt)
	if err != nil {
		return nil, s.unratable(ctx, ev, cardID, err)
	}

	charge, err := Compute(ev.RawDurationSeconds, res.Rate, res.Card.PriceUnit)
	if err != nil {
		return nil, s.unratable(ctx, ev, cardID, err)
	}

	record.RateID = res.Rate.ID
	record.DestinationCode = res.Destination.Code
	record.Currency = res.Card.Currency
	record.BillableDurationSeconds = charge.BillableSeconds
	record.CostAmount = charge.Cost
	record.SellAmount = charge.Sell

	if charge.IsZero() {
		return s.saveZeroCharge(ctx, record, "zero")
	}

	// 扣费和话单在同一个事务内落库
	post, err := s.ledger.post(ctx, model.TransactionTypeDebit, &PostRequest{
		AccountID: ev.AccountID,
		Amount:    charge.Sell,
		Reference: CallReference(ev.CallID),
		Remark:    fmt.Sprintf("通话扣费 %s %ds", res.Destination.Code, charge.BillableSeconds),
	}, func(tx repository.Repositories, trans *model.AccountTransaction) error {
		record.TransactionNo = trans.TransactionNo
		if err := tx.CallRecords().Create(ctx, record); err != nil {
			return storageErr("记录话单失败", err)
		}
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInsufficientCredit):
			s.escalate(ctx, ev, cardID, model.UnbilledReasonInsufficientCredit, err.Error())
			m.RatingTotal.WithLabelValues("unbilled").Inc()
		case errors.Is(err, ErrIdempotencyConflict):
			s.escalate(ctx, ev, cardID, model.UnbilledReasonReferenceConflict, err.Error())
			m.RatingTotal.WithLabelValues("unbilled").Inc()
		default:
			m.RatingTotal.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	if post.Replayed {
		// 并发的重复事件已经完成计费
		existing, err := s.store.CallRecords().GetByCallID(ctx, ev.CallID)
		if err != nil {
			return nil, storageErr("查询话单失败", err)
		}
		if existing == nil {
			// 流水不是这通呼叫产生的，不能当作已计费
			err := fmt.Errorf("%w: 扣费流水 %s 已占用 reference=%s，但没有对应话单",
				ErrIdempotencyConflict, post.Transaction.TransactionNo, post.Transaction.Reference)
			s.escalate(ctx, ev, cardID, model.UnbilledReasonReferenceConflict, err.Error())
			m.RatingTotal.WithLabelValues("unbilled").Inc()
			return nil, err
		}
		m.RatingTotal.WithLabelValues("duplicate").Inc()
		return &RatingResult{Record: existing, Duplicate: true}, nil
	}

	m.RatingTotal.WithLabelValues("billed").Inc()
	log.Printf("[Rating] 计费完成: callID=%s, accountID=%d, dest=%s, raw=%ds, billable=%ds, sell=%s %s",
		record.CallID, record.AccountID, record.DestinationCode, record.RawDurationSeconds,
		record.BillableDurationSeconds, money.Format(record.SellAmount), record.Currency)
	return &RatingResult{Record: record}, nil
}

// CallReference 通话扣费流水的幂等键，与手工扣费的 reference 隔离
func CallReference(callID string) string {
	return "call:" + callID
}

func validateTerminated(ev *model.CallEvent) error {
	if ev == nil || ev.CallID == "" {
		return invalidArg("call_id 不能为空")
	}
	if ev.AccountID <= 0 {
		return invalidArg("account_id 无效")
	}
	if ev.RawDurationSeconds < 0 {
		return invalidArg("通话时长不能为负: %d", ev.RawDurationSeconds)
	}
	if ev.Status != "" && !model.IsValidCallStatus(ev.Status) {
		return invalidArg("未知的呼叫状态: %s", ev.Status)
	}
	return nil
}

func (s *RatingService) saveZeroCharge(ctx context.Context, record *model.CallRecord, result string) (*RatingResult, error) {
	if err := s.store.CallRecords().Create(ctx, record); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			existing, gerr := s.store.CallRecords().GetByCallID(ctx, record.CallID)
			if gerr != nil {
				return nil, storageErr("查询话单失败", gerr)
			}
			metrics.GetMetrics().RatingTotal.WithLabelValues("duplicate").Inc()
			return &RatingResult{Record: existing, Duplicate: true}, nil
		}
		return nil, storageErr("记录话单失败", err)
	}
	metrics.GetMetrics().RatingTotal.WithLabelValues(result).Inc()
	return &RatingResult{Record: record}, nil
}

// unratable 定价失败：业务原因上报 unbilled，存储错误直接返回给调用方重试
func (s *RatingService) unratable(ctx context.Context, ev *model.CallEvent, cardID int64, err error) error {
	var reason string
	switch {
	case errors.Is(err, ErrRateNotFound):
		reason = model.UnbilledReasonRateNotFound
	case errors.Is(err, ErrConfiguration):
		reason = model.UnbilledReasonConfiguration
	default:
		metrics.GetMetrics().RatingTotal.WithLabelValues("error").Inc()
		return err
	}
	s.escalate(ctx, ev, cardID, reason, err.Error())
	metrics.GetMetrics().RatingTotal.WithLabelValues("unbilled").Inc()
	return err
}

// escalate 写入 unbilled 队列由人工处理，写入失败只记日志
func (s *RatingService) escalate(ctx context.Context, ev *model.CallEvent, cardID int64, reason, detail string) {
	log.Printf("[Rating] 呼叫无法计费: callID=%s, accountID=%d, number=%s, rateCardID=%d, reason=%s, detail=%s",
		ev.CallID, ev.AccountID, ev.DialedNumber, cardID, reason, detail)

	msg, err := model.NewOutboxMessage(s.cfg.Kafka.Topic.Unbilled, ev.CallID, &model.UnbilledCallEvent{
		CallID:       ev.CallID,
		AccountID:    ev.AccountID,
		DialedNumber: ev.DialedNumber,
		RateCardID:   cardID,
		Reason:       reason,
		Detail:       detail,
		OccurredAt:   time.Now().Format(time.RFC3339),
	})
	if err != nil {
		log.Printf("[Rating] 序列化 unbilled 事件失败: callID=%s, err=%v", ev.CallID, err)
		return
	}
	if err := s.store.Outbox().Create(ctx, msg); err != nil {
		log.Printf("[Rating] 写入 unbilled 消息失败: callID=%s, err=%v", ev.CallID, err)
	}
}

// QuoteRequest 试算请求，不落库
type QuoteRequest struct {
	RateCardID      int64     `json:"rate_card_id" binding:"required"`
	DialedNumber    string    `json:"dialed_number" binding:"required"`
	DurationSeconds int64     `json:"duration_seconds"`
	At              time.Time `json:"at"`
}

type QuoteResult struct {
	DestinationCode string          `json:"destination_code"`
	DestinationName string          `json:"destination_name"`
	RateID          int64           `json:"rate_id"`
	PriceUnit       string          `json:"price_unit"`
	SellPrice       decimal.Decimal `json:"sell_price"`
	Currency        string          `json:"currency"`
	Charge          Charge          `json:"charge"`
}

// Quote 对号码和时长试算费用
func (s *RatingService) Quote(ctx context.Context, req *QuoteRequest) (*QuoteResult, error) {
	at := req.At
	if at.IsZero() {
		at = time.Now()
	}
	res, err := s.resolver.Resolve(ctx, req.RateCardID, req.DialedNumber, at)
	if err != nil {
		return nil, err
	}
	charge, err := Compute(req.DurationSeconds, res.Rate, res.Card.PriceUnit)
	if err != nil {
		return nil, err
	}
	return &QuoteResult{
		DestinationCode: res.Destination.Code,
		DestinationName: res.Destination.Name,
		RateID:          res.Rate.ID,
		PriceUnit:       res.Card.PriceUnit,
		SellPrice:       res.Rate.SellPrice,
		Currency:        res.Card.Currency,
		Charge:          charge,
	}, nil
}
