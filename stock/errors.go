package stock

import (
	"errors"
	"fmt"
)

// 业务结果和基础设施故障分开：下面这些是可预期、可展示的业务结论，
// 其它错误（连接断、超时）原样向上传，由调用方决定是否重试
var (
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("invalid input")
	ErrNotPending      = errors.New("request is not pending")
	ErrAlreadyDecided  = errors.New("request already decided")
	ErrAlreadyReturned = errors.New("loan already returned")
	ErrForbidden       = errors.New("forbidden")
)

// InsufficientStockError 库存不足；带上拒绝那一刻看到的 available，
// 前端可以直接提示“还剩多少”
type InsufficientStockError struct {
	ComponentID string
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for component %s: requested %d, available %d",
		e.ComponentID, e.Requested, e.Available)
}

func IsInsufficientStock(err error) bool {
	var ise *InsufficientStockError
	return errors.As(err, &ise)
}
