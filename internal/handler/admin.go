package handler

import (
	"voipbilling/internal/service"
	"voipbilling/pkg/response"

	"github.com/gin-gonic/gin"
)

// ============================================================
// 号码目的地
// ============================================================

// ListDestinations GET /api/v1/admin/destinations
func (h *Handler) ListDestinations(c *gin.Context) {
	list, err := h.destinations.List(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"list": list})
}

// LookupDestination 按号码做最长前缀匹配
// GET /api/v1/admin/destinations/lookup?number=xxx
func (h *Handler) LookupDestination(c *gin.Context) {
	number := c.Query("number")
	if number == "" {
		response.ParamError(c, "number 参数错误")
		return
	}
	dest, err := h.destinations.LookupByNumber(c.Request.Context(), number)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, dest)
}

// CreateDestination POST /api/v1/admin/destinations
func (h *Handler) CreateDestination(c *gin.Context) {
	var req service.DestinationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	dest, err := h.destinations.Create(c.Request.Context(), &req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, dest)
}

// UpdateDestination PUT /api/v1/admin/destinations/:id
func (h *Handler) UpdateDestination(c *gin.Context) {
	id, ok := pathInt64(c, "id")
	if !ok {
		return
	}
	var req service.DestinationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	dest, err := h.destinations.Update(c.Request.Context(), id, &req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, dest)
}

// DeleteDestination 仍被费率引用时拒绝删除
// DELETE /api/v1/admin/destinations/:id
func (h *Handler) DeleteDestination(c *gin.Context) {
	id, ok := pathInt64(c, "id")
	if !ok {
		return
	}
	if err := h.destinations.Delete(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"id": id})
}

// ============================================================
// 费率卡
// ============================================================

// ListRateCards GET /api/v1/admin/rate-cards
func (h *Handler) ListRateCards(c *gin.Context) {
	list, err := h.rateCards.ListCards(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"list": list})
}

// CreateRateCard 新建费率卡，初始为 DRAFT
// POST /api/v1/admin/rate-cards
func (h *Handler) CreateRateCard(c *gin.Context) {
	var req service.RateCardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	card, err := h.rateCards.CreateCard(c.Request.Context(), &req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, card)
}

type changeStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// ChangeRateCardStatus POST /api/v1/admin/rate-cards/:id/status
func (h *Handler) ChangeRateCardStatus(c *gin.Context) {
	id, ok := pathInt64(c, "id")
	if !ok {
		return
	}
	var req changeStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	card, err := h.rateCards.ChangeStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, card)
}

// ListRates GET /api/v1/admin/rate-cards/:id/rates
func (h *Handler) ListRates(c *gin.Context) {
	id, ok := pathInt64(c, "id")
	if !ok {
		return
	}
	list, err := h.rateCards.ListRates(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"list": list})
}

// AddRate 同一目的地的生效区间不能重叠
// POST /api/v1/admin/rate-cards/:id/rates
func (h *Handler) AddRate(c *gin.Context) {
	id, ok := pathInt64(c, "id")
	if !ok {
		return
	}
	var req service.RateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	rate, err := h.rateCards.AddRate(c.Request.Context(), id, &req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, rate)
}

// ============================================================
// 账户与外呼任务
// ============================================================

// CreateAccount POST /api/v1/admin/accounts
func (h *Handler) CreateAccount(c *gin.Context) {
	var req service.AccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	account, err := h.accounts.CreateAccount(c.Request.Context(), &req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, account)
}

// UpdateAccount 修改授信额度、并发上限、费率卡，不改余额
// PUT /api/v1/admin/accounts/:id
func (h *Handler) UpdateAccount(c *gin.Context) {
	id, ok := pathInt64(c, "id")
	if !ok {
		return
	}
	var req service.AccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	account, err := h.accounts.UpdateAccount(c.Request.Context(), id, &req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, account)
}

// ConfigureCampaign POST /api/v1/admin/campaigns
func (h *Handler) ConfigureCampaign(c *gin.Context) {
	var req service.CampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	state, err := h.ani.ConfigureCampaign(c.Request.Context(), &req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, state)
}
