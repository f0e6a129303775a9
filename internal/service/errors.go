package service

import (
	"errors"
	"fmt"
)

var (
	ErrRateNotFound        = errors.New("未找到适用费率")
	ErrNoRateCard          = errors.New("未分配费率卡")
	ErrInsufficientCredit  = errors.New("余额不足")
	ErrCapacityExceeded    = errors.New("并发呼叫数已达上限")
	ErrConfiguration       = errors.New("费率配置错误")
	ErrStorageUnavailable  = errors.New("存储暂不可用，请稍后重试")
	ErrIdempotencyConflict = errors.New("相同幂等键的请求参数不一致")
	ErrInvalidArgument     = errors.New("参数错误")
	ErrAccountNotFound     = errors.New("账户不存在")
	ErrAdmissionUnderflow  = errors.New("并发计数下溢")
	ErrNotFound            = errors.New("记录不存在")
	ErrConflict            = errors.New("记录冲突")
)

// storageErr 把存储层的非业务错误包装为可重试错误
func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}

func invalidArg(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
