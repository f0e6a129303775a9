package service

import (
	"context"
	"testing"
	"time"

	"voipbilling/internal/admission"
	"voipbilling/internal/config"
	"voipbilling/internal/infrastructure/lock"
	"voipbilling/internal/model"
	"voipbilling/internal/repository/memory"
	"voipbilling/pkg/money"
)

type testEnv struct {
	store     *memory.Store
	cfg       *config.Config
	ledger    *LedgerService
	admission *AdmissionService
	ani       *AniService
	rating    *RatingService
	dests     *DestinationService
	cards     *RateCardService
	accounts  *AccountService
	summary   *SummaryService
	events    *CallEventService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := memory.NewStore()
	locker := lock.NewLocalLocker()
	cfg := &config.Config{
		Kafka: config.KafkaConfig{
			Topic: config.KafkaTopicConfig{
				Ledger:     "ledger_posted",
				Unbilled:   "call_unbilled",
				CallEvents: "call_events",
			},
		},
		Business: config.BusinessConfig{
			DefaultCurrency: "USD",
			RecentCallLimit: 10,
		},
	}

	env := &testEnv{store: store, cfg: cfg}
	env.ledger = NewLedgerService(store, locker, cfg)
	env.admission = NewAdmissionService(store, admission.NewLocalCounter())
	env.ani = NewAniService(store, locker)
	env.rating = NewRatingService(store, env.ledger, cfg)
	env.dests = NewDestinationService(store)
	env.cards = NewRateCardService(store, locker)
	env.accounts = NewAccountService(store)
	env.summary = NewSummaryService(store, cfg.Business.RecentCallLimit)
	env.events = NewCallEventService(env.rating, env.admission)
	return env
}

func (e *testEnv) mustDestination(t *testing.T, code, name string) *model.Destination {
	t.Helper()
	d, err := e.dests.Create(context.Background(), &DestinationRequest{Code: code, Name: name})
	if err != nil {
		t.Fatalf("创建目的地 %s 失败: %v", code, err)
	}
	return d
}

// mustActiveCard 创建并激活一张 PER_MINUTE 费率卡
func (e *testEnv) mustActiveCard(t *testing.T) *model.RateCard {
	t.Helper()
	ctx := context.Background()
	card, err := e.cards.CreateCard(ctx, &RateCardRequest{Name: "default", Currency: "USD"})
	if err != nil {
		t.Fatalf("创建费率卡失败: %v", err)
	}
	card, err = e.cards.ChangeStatus(ctx, card.ID, model.RateCardStatusActive)
	if err != nil {
		t.Fatalf("激活费率卡失败: %v", err)
	}
	return card
}

func (e *testEnv) mustRate(t *testing.T, cardID int64, code, sell string, increment, minimum int) *model.Rate {
	t.Helper()
	rate, err := e.cards.AddRate(context.Background(), cardID, &RateRequest{
		DestinationCode:  code,
		CostPrice:        money.MustParse(sell).Div(money.MustParse("2")).Round(4),
		SellPrice:        money.MustParse(sell),
		BillingIncrement: increment,
		MinimumDuration:  minimum,
	})
	if err != nil {
		t.Fatalf("新增费率 %s 失败: %v", code, err)
	}
	return rate
}

func (e *testEnv) mustAccount(t *testing.T, userID int64, creditLimit string, callsCap int, cardID *int64) *model.Account {
	t.Helper()
	a, err := e.accounts.CreateAccount(context.Background(), &AccountRequest{
		UserID:             userID,
		CreditLimit:        money.MustParse(creditLimit),
		ConcurrentCallsCap: callsCap,
		RateCardID:         cardID,
	})
	if err != nil {
		t.Fatalf("创建账户失败: %v", err)
	}
	return a
}

// mustAdmissible 有费率卡和授信额度、可以发起呼叫的账户
func (e *testEnv) mustAdmissible(t *testing.T, userID int64, callsCap int) *model.Account {
	t.Helper()
	card := e.mustActiveCard(t)
	return e.mustAccount(t, userID, "10", callsCap, &card.ID)
}

func (e *testEnv) balance(t *testing.T, accountID int64) string {
	t.Helper()
	a, err := e.accounts.GetAccount(context.Background(), accountID)
	if err != nil {
		t.Fatalf("查询账户失败: %v", err)
	}
	return money.Format(a.Balance)
}

func (e *testEnv) pendingTopics(t *testing.T) map[string]int {
	t.Helper()
	msgs, err := e.store.Outbox().GetPendingMessages(context.Background(), 0)
	if err != nil {
		t.Fatalf("查询 outbox 失败: %v", err)
	}
	topics := make(map[string]int)
	for _, m := range msgs {
		topics[m.Topic]++
	}
	return topics
}

func ptrTime(t time.Time) *time.Time {
	return &t
}
