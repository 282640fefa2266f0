package stock

import (
	"context"
	"time"

	"Gin_postgres_redis_lab_stock/models"
)

// Store 是引擎驱动的持久层契约。每个方法都是一步原子操作：
// 条件更新要么完整生效，要么返回对应的业务错误（零行生效 ≠ 基础设施故障）。
// 同一个元件上的 Debit/Credit 之间必须互相串行，不同元件之间不要求。
type Store interface {
	GetComponent(ctx context.Context, id string) (*models.Component, error)

	// DebitAvailable 原子执行 available -= qty（仅当 available >= qty），
	// 同一事务内追加审计；不够扣则返回 *InsufficientStockError
	DebitAvailable(ctx context.Context, componentID, actorID string, qty int, note string) error

	// CreditAvailable 原子执行 available = min(available+qty, quantity)，
	// clamp 生效时记入审计备注
	CreditAvailable(ctx context.Context, componentID, actorID string, qty int, note string) error

	// Restock 进货：quantity 和 available 同加 qty，追加审计
	Restock(ctx context.Context, componentID, actorID string, qty int) (*models.Component, error)

	CreateRequest(ctx context.Context, req *models.BorrowRequest) error
	GetRequest(ctx context.Context, id string) (*models.BorrowRequest, error)

	// DecideRequest 把 pending 的申请翻到终态（条件更新）；
	// 已经不是 pending 时返回 ErrNotPending
	DecideRequest(ctx context.Context, id, status, deciderID, note string, at time.Time) error

	CreateLoan(ctx context.Context, loan *models.Loan) error
	GetLoan(ctx context.Context, id string) (*models.Loan, error)

	// CloseLoan 把在借记录翻成已归还（条件更新 returned_at IS NULL）；
	// 翻转失败即已有人还过，返回 ErrAlreadyReturned
	CloseLoan(ctx context.Context, id, returnedBy string, at time.Time) error

	// ReopenLoan / RemoveLoan 只给引擎的补偿路径用：
	// 归还时 credit 落库失败要把 loan 翻回在借；
	// 批准时申请翻状态失败要撤掉刚建、尚未暴露给任何调用方的 loan
	ReopenLoan(ctx context.Context, id string) error
	RemoveLoan(ctx context.Context, id string) error
}
