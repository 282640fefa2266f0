package stock

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"Gin_postgres_redis_lab_stock/models"

	"github.com/google/uuid"
)

// 未指定归还时间时的默认借期
const DefaultLoanPeriod = 14 * 24 * time.Hour

// Engine 库存预约引擎：所有会动 available 的路径都从这里走。
// 批准 = 扣库存 → 建 loan → 翻申请状态，三步全有或全无；
// 中途失败由引擎自己补偿（把扣掉的加回去），调用方永远看不到
// “扣了库存却没有记录”的中间态。
type Engine struct {
	store      Store
	now        func() time.Time
	loanPeriod time.Duration
}

func NewEngine(store Store) *Engine {
	return &Engine{store: store, now: time.Now, loanPeriod: DefaultLoanPeriod}
}

type Decision string

const (
	Approve Decision = "approve"
	Reject  Decision = "reject"
)

type SubmitInput struct {
	RequesterID string
	ComponentID string
	Quantity    int
	DueAt       *time.Time
	Purpose     string
}

// SubmitRequest 提交申请。这里刻意不占库存：只在批准那一刻检查，
// 避免一堆搁置的 pending 把库存锁死
func (e *Engine) SubmitRequest(ctx context.Context, in SubmitInput) (*models.BorrowRequest, error) {
	if in.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}
	if in.RequesterID == "" || in.ComponentID == "" {
		return nil, fmt.Errorf("%w: requester and component are required", ErrValidation)
	}
	// 元件必须存在，提前报 404 比批准时才发现友好
	if _, err := e.store.GetComponent(ctx, in.ComponentID); err != nil {
		return nil, err
	}
	req := &models.BorrowRequest{
		ID:          uuid.NewString(),
		RequesterID: in.RequesterID,
		ComponentID: in.ComponentID,
		Quantity:    in.Quantity,
		DueAt:       in.DueAt,
		Purpose:     in.Purpose,
		Status:      models.RequestPending,
	}
	if err := e.store.CreateRequest(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

// CancelRequest 只在 pending 时允许，且只有申请人自己或管理员能取消。
// 取消不碰台账，和任何并发操作都安全
func (e *Engine) CancelRequest(ctx context.Context, requestID, byUserID string, isAdmin bool) error {
	req, err := e.store.GetRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if req.RequesterID != byUserID && !isAdmin {
		return ErrForbidden
	}
	return e.store.DecideRequest(ctx, requestID, models.RequestCancelled, byUserID, "", e.now())
}

type DecideInput struct {
	RequestID   string
	Decision    Decision
	ApproverID  string
	ApprovedQty int        // 0 = 按申请数量批；允许少批，不允许多批
	DueAt       *time.Time // 可覆盖申请里的归还时间
	Note        string
}

// DecideRequest 审批。驳回只翻状态；批准走扣库存 → 建 loan → 翻状态，
// 库存不够时整个操作不发生，申请保持 pending（不自动驳回），
// 由审批人改小数量重试或等归还
func (e *Engine) DecideRequest(ctx context.Context, in DecideInput) (*models.BorrowRequest, *models.Loan, error) {
	req, err := e.store.GetRequest(ctx, in.RequestID)
	if err != nil {
		return nil, nil, err
	}
	if !req.Pending() {
		return nil, nil, ErrAlreadyDecided
	}

	switch in.Decision {
	case Reject:
		if err := e.store.DecideRequest(ctx, req.ID, models.RequestRejected, in.ApproverID, in.Note, e.now()); err != nil {
			return nil, nil, decideErr(err)
		}
		req, err = e.store.GetRequest(ctx, req.ID)
		return req, nil, err
	case Approve:
		return e.approve(ctx, req, in)
	default:
		return nil, nil, fmt.Errorf("%w: unknown decision %q", ErrValidation, in.Decision)
	}
}

func (e *Engine) approve(ctx context.Context, req *models.BorrowRequest, in DecideInput) (*models.BorrowRequest, *models.Loan, error) {
	qty := in.ApprovedQty
	if qty == 0 {
		qty = req.Quantity
	}
	if qty < 0 || qty > req.Quantity {
		return nil, nil, fmt.Errorf("%w: approved quantity must be in 1..%d", ErrValidation, req.Quantity)
	}

	now := e.now()
	dueAt := in.DueAt
	if dueAt == nil {
		dueAt = req.DueAt
	}
	if dueAt == nil {
		d := now.Add(e.loanPeriod)
		dueAt = &d
	}

	// 1) 扣库存（原子检查 + 扣减）。不够扣就在这里停，什么都没发生
	if err := e.store.DebitAvailable(ctx, req.ComponentID, in.ApproverID, qty, "approve request "+req.ID); err != nil {
		return nil, nil, err
	}

	// 2) 建 loan。失败要把刚扣的加回去
	loan := &models.Loan{
		ID:          uuid.NewString(),
		RequestID:   &req.ID,
		ComponentID: req.ComponentID,
		BorrowerID:  req.RequesterID,
		Quantity:    qty,
		BorrowedAt:  now,
		DueAt:       dueAt,
		Note:        in.Note,
	}
	if err := e.store.CreateLoan(ctx, loan); err != nil {
		e.compensate(ctx, req.ComponentID, in.ApproverID, qty, "undo approve: loan create failed for request "+req.ID)
		return nil, nil, err
	}

	// 3) 翻申请状态。条件更新在这里兼做“只能决定一次”的闸门：
	//    输给并发的另一次决定时，撤 loan、退库存，报 AlreadyDecided
	if err := e.store.DecideRequest(ctx, req.ID, models.RequestApproved, in.ApproverID, in.Note, now); err != nil {
		if rmErr := e.store.RemoveLoan(ctx, loan.ID); rmErr != nil {
			log.Printf("stock: remove loan %s during undo failed: %v", loan.ID, rmErr)
		}
		e.compensate(ctx, req.ComponentID, in.ApproverID, qty, "undo approve: decide failed for request "+req.ID)
		return nil, nil, decideErr(err)
	}

	req, err := e.store.GetRequest(ctx, req.ID)
	if err != nil {
		return nil, loan, err
	}
	return req, loan, nil
}

// ReturnLoan 归还。先条件翻转 loan（这一步就是幂等闸门，第二次归还
// 在动台账之前就会输掉），再把数量加回 available；
// credit 落库失败时把 loan 翻回在借，让调用方安全重试
func (e *Engine) ReturnLoan(ctx context.Context, loanID, byUserID string, isAdmin bool) (*models.Loan, error) {
	loan, err := e.store.GetLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if loan.ReturnedAt != nil {
		return nil, ErrAlreadyReturned
	}
	if loan.BorrowerID != byUserID && !isAdmin {
		return nil, ErrForbidden
	}

	if err := e.store.CloseLoan(ctx, loanID, byUserID, e.now()); err != nil {
		return nil, err
	}
	if err := e.store.CreditAvailable(ctx, loan.ComponentID, byUserID, loan.Quantity, "return loan "+loan.ID); err != nil {
		if reErr := e.store.ReopenLoan(ctx, loanID); reErr != nil {
			log.Printf("stock: reopen loan %s during undo failed: %v", loanID, reErr)
		}
		return nil, err
	}
	return e.store.GetLoan(ctx, loanID)
}

type DirectLoanInput struct {
	AdminID     string
	BorrowerID  string
	ComponentID string
	Quantity    int
	DueAt       *time.Time
	Note        string
}

// RecordDirectLoan 管理员当面直接借出：当作一条“隐式申请 + 立即批准”，
// 和正常审批走完全相同的路径，台账只有一个入口
func (e *Engine) RecordDirectLoan(ctx context.Context, in DirectLoanInput) (*models.Loan, error) {
	req, err := e.SubmitRequest(ctx, SubmitInput{
		RequesterID: in.BorrowerID,
		ComponentID: in.ComponentID,
		Quantity:    in.Quantity,
		DueAt:       in.DueAt,
		Purpose:     in.Note,
	})
	if err != nil {
		return nil, err
	}
	_, loan, err := e.DecideRequest(ctx, DecideInput{
		RequestID:  req.ID,
		Decision:   Approve,
		ApproverID: in.AdminID,
		DueAt:      in.DueAt,
		Note:       in.Note,
	})
	if err != nil {
		// 隐式申请别留成 pending，挂在列表里没人认领
		if cErr := e.CancelRequest(ctx, req.ID, in.AdminID, true); cErr != nil {
			log.Printf("stock: cancel implicit request %s failed: %v", req.ID, cErr)
		}
		return nil, err
	}
	return loan, nil
}

// Restock 进货：总数和可借数同加，经台账记审计
func (e *Engine) Restock(ctx context.Context, componentID, actorID string, qty int) (*models.Component, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("%w: restock quantity must be positive", ErrValidation)
	}
	return e.store.Restock(ctx, componentID, actorID, qty)
}

// GetAvailability 读当前库存（available/quantity/threshold）
func (e *Engine) GetAvailability(ctx context.Context, componentID string) (*models.Component, error) {
	return e.store.GetComponent(ctx, componentID)
}

func (e *Engine) compensate(ctx context.Context, componentID, actorID string, qty int, note string) {
	if err := e.store.CreditAvailable(ctx, componentID, actorID, qty, note); err != nil {
		// 补偿都失败说明存储已经不可用；留日志供人工对账，审计表里有扣减记录
		log.Printf("stock: compensating credit of %d on %s failed: %v", qty, componentID, err)
	}
}

// 审批路径里把“不再 pending”翻译成 AlreadyDecided，取消路径保持 NotPending
func decideErr(err error) error {
	if errors.Is(err, ErrNotPending) {
		return ErrAlreadyDecided
	}
	return err
}
