package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"voipbilling/internal/infrastructure/lock"
	"voipbilling/internal/model"
	"voipbilling/internal/repository"
)

// AniService 外呼任务主叫号码轮换
type AniService struct {
	store  repository.Store
	locker lock.Locker
}

func NewAniService(store repository.Store, locker lock.Locker) *AniService {
	return &AniService{store: store, locker: locker}
}

type CampaignRequest struct {
	CampaignID      int64  `json:"campaign_id" binding:"required"`
	RotationEnabled bool   `json:"rotation_enabled"`
	StaticCallerID  string `json:"static_caller_id"`
	CallerIDPrefix  string `json:"caller_id_prefix"`
}

// ConfigureCampaign 新建或更新外呼任务的主叫配置，不影响已有的轮换计数
func (s *AniService) ConfigureCampaign(ctx context.Context, req *CampaignRequest) (*model.CampaignAniState, error) {
	if req.CampaignID <= 0 {
		return nil, invalidArg("campaign_id 无效")
	}
	state := &model.CampaignAniState{
		CampaignID:      req.CampaignID,
		RotationEnabled: req.RotationEnabled,
		StaticCallerID:  strings.TrimSpace(req.StaticCallerID),
		CallerIDPrefix:  normalizeNumber(req.CallerIDPrefix),
	}
	if state.RotationEnabled && state.CallerIDPrefix == "" {
		return nil, invalidArg("开启轮换时 caller_id_prefix 不能为空")
	}
	if !state.RotationEnabled && state.StaticCallerID == "" {
		return nil, invalidArg("关闭轮换时 static_caller_id 不能为空")
	}

	err := withLock(ctx, s.locker, "campaign", lock.CampaignKey(req.CampaignID), func() error {
		_, err := s.store.Campaigns().GetByCampaignID(ctx, req.CampaignID)
		switch {
		case errors.Is(err, repository.ErrCampaignNotFound):
			return s.store.Campaigns().Create(ctx, state)
		case err != nil:
			return err
		default:
			return s.store.Campaigns().UpdateConfig(ctx, state)
		}
	})
	if err != nil {
		return nil, classify("保存外呼任务失败", err)
	}
	return s.store.Campaigns().GetByCampaignID(ctx, req.CampaignID)
}

// NextCallerID 拨号前获取本次使用的主叫号码
// 关闭轮换时返回固定号码；开启时计数器 +1 取模 100，结果为 前缀 + 4 位计数
func (s *AniService) NextCallerID(ctx context.Context, campaignID int64) (string, error) {
	state, err := s.store.Campaigns().GetByCampaignID(ctx, campaignID)
	if err != nil {
		if errors.Is(err, repository.ErrCampaignNotFound) {
			return "", fmt.Errorf("%w: 外呼任务 %d", ErrNotFound, campaignID)
		}
		return "", storageErr("查询外呼任务失败", err)
	}
	if !state.RotationEnabled {
		return state.StaticCallerID, nil
	}

	var callerID string
	err = withLock(ctx, s.locker, "campaign", lock.CampaignKey(campaignID), func() error {
		return s.store.Transaction(ctx, func(tx repository.Repositories) error {
			current, err := tx.Campaigns().GetByCampaignIDForUpdate(ctx, campaignID)
			if err != nil {
				return err
			}
			if !current.RotationEnabled {
				callerID = current.StaticCallerID
				return nil
			}

			next := (current.RotationCounter + 1) % model.AniRotationModulo
			if err := tx.Campaigns().UpdateCounter(ctx, campaignID, current.RotationCounter, next); err != nil {
				return err
			}
			callerID = fmt.Sprintf("%s%04d", current.CallerIDPrefix, next)
			return nil
		})
	})
	if err != nil {
		return "", classify("轮换主叫号码失败", err)
	}
	return callerID, nil
}
