package handler

import (
	"strconv"
	"time"

	"voipbilling/internal/model"
	"voipbilling/internal/service"
	"voipbilling/pkg/response"

	"github.com/gin-gonic/gin"
)

// Services 处理器依赖的全部服务
type Services struct {
	Events       *service.CallEventService
	Rating       *service.RatingService
	Ledger       *service.LedgerService
	Summary      *service.SummaryService
	Destinations *service.DestinationService
	RateCards    *service.RateCardService
	Accounts     *service.AccountService
	Ani          *service.AniService
}

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	events       *service.CallEventService
	rating       *service.RatingService
	ledger       *service.LedgerService
	summary      *service.SummaryService
	destinations *service.DestinationService
	rateCards    *service.RateCardService
	accounts     *service.AccountService
	ani          *service.AniService
}

// NewHandler 创建处理器实例
func NewHandler(s Services) *Handler {
	return &Handler{
		events:       s.Events,
		rating:       s.Rating,
		ledger:       s.Ledger,
		summary:      s.Summary,
		destinations: s.Destinations,
		rateCards:    s.RateCards,
		accounts:     s.Accounts,
		ani:          s.Ani,
	}
}

func queryInt64(c *gin.Context, name string) (int64, bool) {
	v, err := strconv.ParseInt(c.Query(name), 10, 64)
	if err != nil || v <= 0 {
		response.ParamError(c, name+" 参数错误")
		return 0, false
	}
	return v, true
}

func pathInt64(c *gin.Context, name string) (int64, bool) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || v <= 0 {
		response.ParamError(c, name+" 参数错误")
		return 0, false
	}
	return v, true
}

// queryIntDefault 参数缺省时返回 def
func queryIntDefault(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		response.ParamError(c, name+" 参数错误")
		return 0, false
	}
	return v, true
}

// ============================================================
// 呼叫事件接口
// ============================================================

func (h *Handler) bindCallEvent(c *gin.Context, eventType string) (*model.CallEvent, bool) {
	var ev model.CallEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return nil, false
	}
	ev.Type = eventType
	return &ev, true
}

// CallStarting 呼叫开始前并发准入
// POST /api/v1/calls/starting
func (h *Handler) CallStarting(c *gin.Context) {
	ev, ok := h.bindCallEvent(c, model.CallEventStarting)
	if !ok {
		return
	}
	if err := h.events.Starting(c.Request.Context(), ev); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"call_id": ev.CallID, "admitted": true})
}

// CallEnded 呼叫结束释放并发名额
// POST /api/v1/calls/ended
func (h *Handler) CallEnded(c *gin.Context) {
	ev, ok := h.bindCallEvent(c, model.CallEventEnded)
	if !ok {
		return
	}
	if err := h.events.Ended(c.Request.Context(), ev); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"call_id": ev.CallID, "released": true})
}

// CallTerminated 呼叫计费
// POST /api/v1/calls/terminated
func (h *Handler) CallTerminated(c *gin.Context) {
	ev, ok := h.bindCallEvent(c, model.CallEventTerminated)
	if !ok {
		return
	}
	result, err := h.events.Terminated(c.Request.Context(), ev)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, result)
}

// ============================================================
// 账务接口
// ============================================================

func (h *Handler) postLedger(c *gin.Context, post func(*gin.Context, *service.PostRequest) (*service.PostResult, error)) {
	var req service.PostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	result, err := post(c, &req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, result)
}

// Credit 充值入账
// POST /api/v1/ledger/credit
func (h *Handler) Credit(c *gin.Context) {
	h.postLedger(c, func(c *gin.Context, req *service.PostRequest) (*service.PostResult, error) {
		return h.ledger.PostCredit(c.Request.Context(), req)
	})
}

// Debit 手工扣费
// POST /api/v1/ledger/debit
func (h *Handler) Debit(c *gin.Context) {
	h.postLedger(c, func(c *gin.Context, req *service.PostRequest) (*service.PostResult, error) {
		return h.ledger.PostDebit(c.Request.Context(), req)
	})
}

// Refund 退款
// POST /api/v1/ledger/refund
func (h *Handler) Refund(c *gin.Context) {
	h.postLedger(c, func(c *gin.Context, req *service.PostRequest) (*service.PostResult, error) {
		return h.ledger.PostRefund(c.Request.Context(), req)
	})
}

// Adjustment 调账，amount 带符号
// POST /api/v1/ledger/adjustment
func (h *Handler) Adjustment(c *gin.Context) {
	h.postLedger(c, func(c *gin.Context, req *service.PostRequest) (*service.PostResult, error) {
		return h.ledger.PostAdjustment(c.Request.Context(), req)
	})
}

// ============================================================
// 账户查询接口
// ============================================================

// GetAccount 账户详情
// GET /api/v1/account/detail?account_id=xxx
func (h *Handler) GetAccount(c *gin.Context) {
	accountID, ok := queryInt64(c, "account_id")
	if !ok {
		return
	}
	account, err := h.accounts.GetAccount(c.Request.Context(), accountID)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, account)
}

// GetSummary 财务汇总，since 为 RFC3339 时间
// GET /api/v1/account/summary?account_id=xxx&since=2024-01-01T00:00:00Z
func (h *Handler) GetSummary(c *gin.Context) {
	accountID, ok := queryInt64(c, "account_id")
	if !ok {
		return
	}
	var since *time.Time
	if raw := c.Query("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.ParamError(c, "since 参数错误")
			return
		}
		since = &t
	}

	summary, err := h.summary.GetFinancialSummary(c.Request.Context(), accountID, since)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, summary)
}

// ListCalls 最近话单
// GET /api/v1/account/calls?account_id=xxx&limit=50
func (h *Handler) ListCalls(c *gin.Context) {
	accountID, ok := queryInt64(c, "account_id")
	if !ok {
		return
	}
	limit, ok := queryIntDefault(c, "limit", 0)
	if !ok {
		return
	}

	records, err := h.summary.GetCallHistory(c.Request.Context(), accountID, limit)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"calls": records})
}

// ListTransactions 流水分页
// GET /api/v1/account/transactions?account_id=xxx&page=1&page_size=20
func (h *Handler) ListTransactions(c *gin.Context) {
	accountID, ok := queryInt64(c, "account_id")
	if !ok {
		return
	}
	page, ok := queryIntDefault(c, "page", 1)
	if !ok {
		return
	}
	pageSize, ok := queryIntDefault(c, "page_size", 0)
	if !ok {
		return
	}

	result, err := h.summary.ListTransactions(c.Request.Context(), accountID, page, pageSize)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, result)
}

// Reconcile 回放流水核对余额
// GET /api/v1/account/reconcile?account_id=xxx
func (h *Handler) Reconcile(c *gin.Context) {
	accountID, ok := queryInt64(c, "account_id")
	if !ok {
		return
	}
	report, err := h.ledger.ReplayBalance(c.Request.Context(), accountID)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, report)
}

// ============================================================
// 费率与主叫号码
// ============================================================

// Quote 费用试算
// POST /api/v1/rates/quote
func (h *Handler) Quote(c *gin.Context) {
	var req service.QuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	result, err := h.rating.Quote(c.Request.Context(), &req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, result)
}

// NextCallerID 取外呼任务的下一个主叫号码
// GET /api/v1/campaign/next-caller-id?campaign_id=xxx
func (h *Handler) NextCallerID(c *gin.Context) {
	campaignID, ok := queryInt64(c, "campaign_id")
	if !ok {
		return
	}
	callerID, err := h.ani.NextCallerID(c.Request.Context(), campaignID)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{
		"campaign_id": campaignID,
		"caller_id":   callerID,
	})
}
