package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"voipbilling/internal/model"
	"voipbilling/internal/repository"
)

type DestinationService struct {
	store repository.Store
}

func NewDestinationService(store repository.Store) *DestinationService {
	return &DestinationService{store: store}
}

type DestinationRequest struct {
	Code    string `json:"code" binding:"required"`
	Name    string `json:"name" binding:"required"`
	Country string `json:"country"`
	Region  string `json:"region"`
}

func validateDestination(req *DestinationRequest) error {
	code := strings.TrimSpace(req.Code)
	if code == "" || len(code) > maxPrefixDigits || normalizeNumber(code) != code {
		return invalidArg("目的地编码必须为 1-%d 位数字: %q", maxPrefixDigits, req.Code)
	}
	if strings.TrimSpace(req.Name) == "" {
		return invalidArg("目的地名称不能为空")
	}
	return nil
}

func (s *DestinationService) Create(ctx context.Context, req *DestinationRequest) (*model.Destination, error) {
	if err := validateDestination(req); err != nil {
		return nil, err
	}
	d := &model.Destination{
		Code:    strings.TrimSpace(req.Code),
		Name:    strings.TrimSpace(req.Name),
		Country: req.Country,
		Region:  req.Region,
	}
	if err := s.store.Destinations().Create(ctx, d); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("%w: 目的地编码 %s 已存在", ErrConflict, d.Code)
		}
		return nil, storageErr("创建目的地失败", err)
	}
	return d, nil
}

// Update 已被费率引用的目的地不允许修改编码
func (s *DestinationService) Update(ctx context.Context, id int64, req *DestinationRequest) (*model.Destination, error) {
	if err := validateDestination(req); err != nil {
		return nil, err
	}
	d, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	code := strings.TrimSpace(req.Code)
	if code != d.Code {
		n, err := s.store.Rates().CountByDestination(ctx, id)
		if err != nil {
			return nil, storageErr("查询费率失败", err)
		}
		if n > 0 {
			return nil, fmt.Errorf("%w: 目的地 %s 已被 %d 条费率引用，编码不可修改", ErrConflict, d.Code, n)
		}
	}

	d.Code = code
	d.Name = strings.TrimSpace(req.Name)
	d.Country = req.Country
	d.Region = req.Region
	if err := s.store.Destinations().Update(ctx, d); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("%w: 目的地编码 %s 已存在", ErrConflict, d.Code)
		}
		return nil, classify("更新目的地失败", err)
	}
	return d, nil
}

// Delete 已被费率引用的目的地不允许删除
func (s *DestinationService) Delete(ctx context.Context, id int64) error {
	d, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	n, err := s.store.Rates().CountByDestination(ctx, id)
	if err != nil {
		return storageErr("查询费率失败", err)
	}
	if n > 0 {
		return fmt.Errorf("%w: 目的地 %s 已被 %d 条费率引用，不可删除", ErrConflict, d.Code, n)
	}
	if err := s.store.Destinations().Delete(ctx, id); err != nil {
		return classify("删除目的地失败", err)
	}
	return nil
}

func (s *DestinationService) List(ctx context.Context) ([]*model.Destination, error) {
	list, err := s.store.Destinations().List(ctx)
	if err != nil {
		return nil, storageErr("查询目的地失败", err)
	}
	return list, nil
}

// LookupByNumber 在目的地目录中做最长前缀匹配，不涉及费率
func (s *DestinationService) LookupByNumber(ctx context.Context, number string) (*model.Destination, error) {
	digits := normalizeNumber(number)
	if digits == "" {
		return nil, ErrNotFound
	}
	list, err := s.store.Destinations().ListByCodes(ctx, candidatePrefixes(digits))
	if err != nil {
		return nil, storageErr("查询目的地失败", err)
	}
	var best *model.Destination
	for _, d := range list {
		if best == nil || len(d.Code) > len(best.Code) {
			best = d
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return best, nil
}

func (s *DestinationService) get(ctx context.Context, id int64) (*model.Destination, error) {
	d, err := s.store.Destinations().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrDestinationNotFound) {
			return nil, fmt.Errorf("%w: 目的地 %d", ErrNotFound, id)
		}
		return nil, storageErr("查询目的地失败", err)
	}
	return d, nil
}
