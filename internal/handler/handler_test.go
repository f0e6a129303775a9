package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"voipbilling/internal/admission"
	"voipbilling/internal/config"
	"voipbilling/internal/infrastructure/lock"
	"voipbilling/internal/repository/memory"
	"voipbilling/internal/service"
	"voipbilling/pkg/response"

	"github.com/gin-gonic/gin"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestRouter(t *testing.T, checks ...HealthCheck) *gin.Engine {
	t.Helper()

	store := memory.NewStore()
	locker := lock.NewLocalLocker()
	cfg := &config.Config{
		Kafka: config.KafkaConfig{
			Topic: config.KafkaTopicConfig{Ledger: "ledger_posted", Unbilled: "call_unbilled"},
		},
		Business: config.BusinessConfig{DefaultCurrency: "USD", RecentCallLimit: 10},
	}

	ledger := service.NewLedgerService(store, locker, cfg)
	rating := service.NewRatingService(store, ledger, cfg)
	adm := service.NewAdmissionService(store, admission.NewLocalCounter())
	h := NewHandler(Services{
		Events:       service.NewCallEventService(rating, adm),
		Rating:       rating,
		Ledger:       ledger,
		Summary:      service.NewSummaryService(store, cfg.Business.RecentCallLimit),
		Destinations: service.NewDestinationService(store),
		RateCards:    service.NewRateCardService(store, locker),
		Accounts:     service.NewAccountService(store),
		Ani:          service.NewAniService(store, locker),
	})
	return SetupRouter(h, config.ServerConfig{Mode: gin.TestMode}, checks...)
}

func do(t *testing.T, r *gin.Engine, method, path string, body interface{}) envelope {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("%s %s: HTTP %d, body=%s", method, path, w.Code, w.Body.String())
	}
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: decode: %v", method, path, err)
	}
	return env
}

func mustOK(t *testing.T, env envelope, out interface{}) {
	t.Helper()
	if env.Code != response.CodeSuccess {
		t.Fatalf("code = %d, message = %s", env.Code, env.Message)
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			t.Fatalf("decode data: %v", err)
		}
	}
}

type idData struct {
	ID int64 `json:"id"`
}

// setupCatalog 目的地 + 已激活费率卡 + 费率 + 账户
func setupCatalog(t *testing.T, r *gin.Engine, creditLimit string, callsCap int) (cardID, accountID int64) {
	t.Helper()

	mustOK(t, do(t, r, "POST", "/api/v1/admin/destinations", gin.H{"code": "44", "name": "UK"}), nil)

	var card idData
	mustOK(t, do(t, r, "POST", "/api/v1/admin/rate-cards", gin.H{"name": "retail", "currency": "usd"}), &card)
	mustOK(t, do(t, r, "POST", fmt.Sprintf("/api/v1/admin/rate-cards/%d/status", card.ID), gin.H{"status": "ACTIVE"}), nil)
	mustOK(t, do(t, r, "POST", fmt.Sprintf("/api/v1/admin/rate-cards/%d/rates", card.ID), gin.H{
		"destination_code":  "44",
		"cost_price":        "0.01",
		"sell_price":        "0.02",
		"billing_increment": 60,
		"minimum_duration":  60,
	}), nil)

	var acc idData
	mustOK(t, do(t, r, "POST", "/api/v1/admin/accounts", gin.H{
		"user_id":              1001,
		"credit_limit":         creditLimit,
		"concurrent_calls_cap": callsCap,
		"rate_card_id":         card.ID,
	}), &acc)
	return card.ID, acc.ID
}

func TestCallLifecycleOverHTTP(t *testing.T) {
	r := newTestRouter(t)
	_, accountID := setupCatalog(t, r, "0", 1)

	mustOK(t, do(t, r, "POST", "/api/v1/ledger/credit", gin.H{
		"account_id": accountID, "amount": "10", "reference": "topup-1",
	}), nil)

	mustOK(t, do(t, r, "POST", "/api/v1/calls/starting", gin.H{"call_id": "c-1", "account_id": accountID}), nil)

	env := do(t, r, "POST", "/api/v1/calls/starting", gin.H{"call_id": "c-2", "account_id": accountID})
	if env.Code != response.CodeCapacityExceeded {
		t.Fatalf("second call code = %d, want %d", env.Code, response.CodeCapacityExceeded)
	}

	var rated struct {
		Record struct {
			CallID     string `json:"call_id"`
			SellAmount string `json:"sell_amount"`
		} `json:"record"`
		Duplicate bool `json:"duplicate"`
	}
	mustOK(t, do(t, r, "POST", "/api/v1/calls/terminated", gin.H{
		"call_id": "c-1", "account_id": accountID, "dialed_number": "+44 20 7946 0000", "raw_duration_seconds": 61,
	}), &rated)
	if rated.Duplicate || rated.Record.SellAmount != "0.04" {
		t.Fatalf("rated = %+v, want sell 0.04", rated)
	}

	// 名额已随计费释放
	mustOK(t, do(t, r, "POST", "/api/v1/calls/starting", gin.H{"call_id": "c-2", "account_id": accountID}), nil)

	var summary struct {
		Balance    string `json:"balance"`
		TotalCalls int64  `json:"total_calls"`
	}
	mustOK(t, do(t, r, "GET", fmt.Sprintf("/api/v1/account/summary?account_id=%d", accountID), nil), &summary)
	if summary.Balance != "9.96" || summary.TotalCalls != 1 {
		t.Fatalf("summary = %+v", summary)
	}

	var report struct {
		Consistent       bool  `json:"consistent"`
		TransactionCount int64 `json:"transaction_count"`
	}
	mustOK(t, do(t, r, "GET", fmt.Sprintf("/api/v1/account/reconcile?account_id=%d", accountID), nil), &report)
	if !report.Consistent || report.TransactionCount != 2 {
		t.Fatalf("report = %+v", report)
	}

	var page struct {
		Total int64 `json:"total"`
	}
	mustOK(t, do(t, r, "GET", fmt.Sprintf("/api/v1/account/transactions?account_id=%d&page=1", accountID), nil), &page)
	if page.Total != 2 {
		t.Fatalf("transactions total = %d, want 2", page.Total)
	}
}

func TestErrorCodes(t *testing.T) {
	r := newTestRouter(t)
	cardID, accountID := setupCatalog(t, r, "0", 5)

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		want   int
	}{
		{"缺少参数", "GET", "/api/v1/account/summary", nil, response.CodeParamError},
		{"非法时间", "GET", fmt.Sprintf("/api/v1/account/summary?account_id=%d&since=yesterday", accountID), nil, response.CodeParamError},
		{"账户不存在", "GET", "/api/v1/account/summary?account_id=999999", nil, response.CodeAccountNotFound},
		{"余额不足", "POST", "/api/v1/ledger/debit", gin.H{"account_id": accountID, "amount": "1", "reference": "d-1"}, response.CodeInsufficientCredit},
		{"金额非正", "POST", "/api/v1/ledger/credit", gin.H{"account_id": accountID, "amount": "0", "reference": "c-0"}, response.CodeParamError},
		{"无匹配费率", "POST", "/api/v1/rates/quote", gin.H{"rate_card_id": cardID, "dialed_number": "861380000", "duration_seconds": 30}, response.CodeRateNotFound},
		{"非法状态迁移", "POST", fmt.Sprintf("/api/v1/admin/rate-cards/%d/status", cardID), gin.H{"status": "DRAFT"}, response.CodeConflict},
		{"重复目的地", "POST", "/api/v1/admin/destinations", gin.H{"code": "44", "name": "UK again"}, response.CodeConflict},
		{"外呼任务不存在", "GET", "/api/v1/campaign/next-caller-id?campaign_id=42", nil, response.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := do(t, r, tt.method, tt.path, tt.body)
			if env.Code != tt.want {
				t.Fatalf("code = %d (%s), want %d", env.Code, env.Message, tt.want)
			}
		})
	}
}

func TestIdempotentCreditOverHTTP(t *testing.T) {
	r := newTestRouter(t)
	_, accountID := setupCatalog(t, r, "0", 1)

	body := gin.H{"account_id": accountID, "amount": "5", "reference": "topup-1"}
	mustOK(t, do(t, r, "POST", "/api/v1/ledger/credit", body), nil)

	var replay struct {
		Replayed bool `json:"replayed"`
	}
	mustOK(t, do(t, r, "POST", "/api/v1/ledger/credit", body), &replay)
	if !replay.Replayed {
		t.Fatal("second post with the same reference should be replayed")
	}

	env := do(t, r, "POST", "/api/v1/ledger/credit", gin.H{"account_id": accountID, "amount": "6", "reference": "topup-1"})
	if env.Code != response.CodeIdempotencyConflict {
		t.Fatalf("code = %d, want %d", env.Code, response.CodeIdempotencyConflict)
	}
}

func TestCampaignRotationOverHTTP(t *testing.T) {
	r := newTestRouter(t)

	mustOK(t, do(t, r, "POST", "/api/v1/admin/campaigns", gin.H{
		"campaign_id": 7, "rotation_enabled": true, "caller_id_prefix": "1555",
	}), nil)

	for _, want := range []string{"15550001", "15550002"} {
		var got struct {
			CallerID string `json:"caller_id"`
		}
		mustOK(t, do(t, r, "GET", "/api/v1/campaign/next-caller-id?campaign_id=7", nil), &got)
		if got.CallerID != want {
			t.Fatalf("caller_id = %s, want %s", got.CallerID, want)
		}
	}
}

func TestHealth(t *testing.T) {
	r := newTestRouter(t,
		HealthCheck{Name: "store", Check: func(context.Context) error { return nil }},
		HealthCheck{Name: "redis", Check: func(context.Context) error { return errors.New("connection refused") }},
	)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("HTTP %d, want 503", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("/metrics HTTP %d", w.Code)
	}
}

func TestCodeOfWrappedErrors(t *testing.T) {
	err := fmt.Errorf("扣费失败: %w", service.ErrInsufficientCredit)
	if got := codeOf(err); got != response.CodeInsufficientCredit {
		t.Fatalf("codeOf = %d", got)
	}
	if got := codeOf(errors.New("boom")); got != response.CodeServerError {
		t.Fatalf("codeOf unknown = %d", got)
	}
}
