package stock

import (
	"context"
	"errors"
	"testing"
	"time"

	"Gin_postgres_redis_lab_stock/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) (*Engine, *MemStore) {
	t.Helper()
	store := NewMemStore()
	return NewEngine(store), store
}

func seedComponent(t *testing.T, store *MemStore, qty, threshold int) string {
	t.Helper()
	c := &models.Component{
		Name:      "oscilloscope probe",
		Category:  "measurement",
		Quantity:  qty,
		Available: qty,
		Threshold: threshold,
		Condition: "good",
	}
	require.NoError(t, store.CreateComponent(context.Background(), c))
	return c.ID
}

func submit(t *testing.T, e *Engine, componentID, requester string, qty int) *models.BorrowRequest {
	t.Helper()
	req, err := e.SubmitRequest(context.Background(), SubmitInput{
		RequesterID: requester,
		ComponentID: componentID,
		Quantity:    qty,
	})
	require.NoError(t, err)
	return req
}

func TestSubmitValidation(t *testing.T) {
	e, store := newTestEngine(t)
	id := seedComponent(t, store, 5, 1)

	_, err := e.SubmitRequest(context.Background(), SubmitInput{RequesterID: "u1", ComponentID: id, Quantity: 0})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = e.SubmitRequest(context.Background(), SubmitInput{RequesterID: "u1", ComponentID: id, Quantity: -3})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = e.SubmitRequest(context.Background(), SubmitInput{RequesterID: "u1", ComponentID: "no-such-component", Quantity: 1})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSubmitDoesNotReserveStock(t *testing.T) {
	e, store := newTestEngine(t)
	id := seedComponent(t, store, 3, 0)

	// 申请量超过库存也允许提交，只在批准时检查
	req := submit(t, e, id, "u1", 10)
	assert.Equal(t, models.RequestPending, req.Status)

	c, err := e.GetAvailability(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 3, c.Available)

	// 批准时才发现不够，申请保持 pending
	_, _, err = e.DecideRequest(context.Background(), DecideInput{
		RequestID: req.ID, Decision: Approve, ApproverID: "admin",
	})
	var ise *InsufficientStockError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, 3, ise.Available)
	assert.Equal(t, 10, ise.Requested)

	got, err := store.GetRequest(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestPending, got.Status)
	assert.Empty(t, store.Loans())
}

func TestApproveThenReturnRoundTrip(t *testing.T) {
	e, store := newTestEngine(t)
	id := seedComponent(t, store, 4, 0)
	req := submit(t, e, id, "u1", 4)

	decided, loan, err := e.DecideRequest(context.Background(), DecideInput{
		RequestID: req.ID, Decision: Approve, ApproverID: "admin", Note: "lab session",
	})
	require.NoError(t, err)
	require.NotNil(t, loan)
	assert.Equal(t, models.RequestApproved, decided.Status)
	assert.Equal(t, 4, loan.Quantity)
	assert.Equal(t, "u1", loan.BorrowerID)
	require.NotNil(t, loan.DueAt)

	c, _ := e.GetAvailability(context.Background(), id)
	assert.Equal(t, 0, c.Available)
	assert.Equal(t, 4, c.Quantity)

	returned, err := e.ReturnLoan(context.Background(), loan.ID, "u1", false)
	require.NoError(t, err)
	require.NotNil(t, returned.ReturnedAt)

	c, _ = e.GetAvailability(context.Background(), id)
	assert.Equal(t, 4, c.Available)
}

func TestPartialApproval(t *testing.T) {
	e, store := newTestEngine(t)
	id := seedComponent(t, store, 10, 0)
	req := submit(t, e, id, "u1", 6)

	// 少批可以
	_, loan, err := e.DecideRequest(context.Background(), DecideInput{
		RequestID: req.ID, Decision: Approve, ApproverID: "admin", ApprovedQty: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, loan.Quantity)

	c, _ := e.GetAvailability(context.Background(), id)
	assert.Equal(t, 8, c.Available)

	// 多批不行
	req2 := submit(t, e, id, "u2", 3)
	_, _, err = e.DecideRequest(context.Background(), DecideInput{
		RequestID: req2.ID, Decision: Approve, ApproverID: "admin", ApprovedQty: 5,
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRejectHasNoLedgerEffect(t *testing.T) {
	e, store := newTestEngine(t)
	id := seedComponent(t, store, 5, 0)
	req := submit(t, e, id, "u1", 5)

	decided, loan, err := e.DecideRequest(context.Background(), DecideInput{
		RequestID: req.ID, Decision: Reject, ApproverID: "admin", Note: "no budget",
	})
	require.NoError(t, err)
	assert.Nil(t, loan)
	assert.Equal(t, models.RequestRejected, decided.Status)

	c, _ := e.GetAvailability(context.Background(), id)
	assert.Equal(t, 5, c.Available)
	assert.Empty(t, store.AuditEntries(id))
}

func TestDecideTwice(t *testing.T) {
	e, store := newTestEngine(t)
	id := seedComponent(t, store, 5, 0)
	req := submit(t, e, id, "u1", 2)

	_, loan, err := e.DecideRequest(context.Background(), DecideInput{
		RequestID: req.ID, Decision: Approve, ApproverID: "admin",
	})
	require.NoError(t, err)

	// 第二次决定必须失败，第一次建的 loan 不受影响
	_, _, err = e.DecideRequest(context.Background(), DecideInput{
		RequestID: req.ID, Decision: Reject, ApproverID: "admin2",
	})
	assert.ErrorIs(t, err, ErrAlreadyDecided)

	got, err := store.GetLoan(context.Background(), loan.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ReturnedAt)
	c, _ := e.GetAvailability(context.Background(), id)
	assert.Equal(t, 3, c.Available)
}

func TestCancelRules(t *testing.T) {
	e, store := newTestEngine(t)
	id := seedComponent(t, store, 5, 0)

	// 路人不能取消
	req := submit(t, e, id, "u1", 1)
	assert.ErrorIs(t, e.CancelRequest(context.Background(), req.ID, "u2", false), ErrForbidden)

	// 本人可以
	require.NoError(t, e.CancelRequest(context.Background(), req.ID, "u1", false))
	got, _ := store.GetRequest(context.Background(), req.ID)
	assert.Equal(t, models.RequestCancelled, got.Status)

	// 已决定的不能再取消
	assert.ErrorIs(t, e.CancelRequest(context.Background(), req.ID, "u1", false), ErrNotPending)

	// 管理员可以替别人取消
	req2 := submit(t, e, id, "u1", 1)
	require.NoError(t, e.CancelRequest(context.Background(), req2.ID, "boss", true))

	// 取消不碰台账
	c, _ := e.GetAvailability(context.Background(), id)
	assert.Equal(t, 5, c.Available)
	assert.Empty(t, store.AuditEntries(id))
}

func TestReturnTwice(t *testing.T) {
	e, store := newTestEngine(t)
	id := seedComponent(t, store, 5, 0)
	req := submit(t, e, id, "u1", 3)
	_, loan, err := e.DecideRequest(context.Background(), DecideInput{
		RequestID: req.ID, Decision: Approve, ApproverID: "admin",
	})
	require.NoError(t, err)

	_, err = e.ReturnLoan(context.Background(), loan.ID, "u1", false)
	require.NoError(t, err)

	_, err = e.ReturnLoan(context.Background(), loan.ID, "u1", false)
	assert.ErrorIs(t, err, ErrAlreadyReturned)

	// 只加回一次
	c, _ := e.GetAvailability(context.Background(), id)
	assert.Equal(t, 5, c.Available)
	assert.Equal(t, 0, store.ActiveQuantity(id))
}

func TestReturnPermissions(t *testing.T) {
	e, store := newTestEngine(t)
	id := seedComponent(t, store, 2, 0)
	req := submit(t, e, id, "u1", 2)
	_, loan, err := e.DecideRequest(context.Background(), DecideInput{
		RequestID: req.ID, Decision: Approve, ApproverID: "admin",
	})
	require.NoError(t, err)

	// 别人不能替你还
	_, err = e.ReturnLoan(context.Background(), loan.ID, "u2", false)
	assert.ErrorIs(t, err, ErrForbidden)

	// 管理员可以
	_, err = e.ReturnLoan(context.Background(), loan.ID, "admin", true)
	require.NoError(t, err)

	_, err = e.ReturnLoan(context.Background(), "no-such-loan", "admin", true)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDirectLoanSharesApprovalPath(t *testing.T) {
	e, store := newTestEngine(t)
	id := seedComponent(t, store, 5, 0)

	loan, err := e.RecordDirectLoan(context.Background(), DirectLoanInput{
		AdminID: "admin", BorrowerID: "u1", ComponentID: id, Quantity: 2, Note: "walk-in",
	})
	require.NoError(t, err)
	assert.Equal(t, "u1", loan.BorrowerID)

	// 背后有一条已批准的隐式申请
	require.NotNil(t, loan.RequestID)
	req, err := store.GetRequest(context.Background(), *loan.RequestID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestApproved, req.Status)

	c, _ := e.GetAvailability(context.Background(), id)
	assert.Equal(t, 3, c.Available)
}

func TestDirectLoanInsufficientLeavesNothingBehind(t *testing.T) {
	e, store := newTestEngine(t)
	id := seedComponent(t, store, 1, 0)

	_, err := e.RecordDirectLoan(context.Background(), DirectLoanInput{
		AdminID: "admin", BorrowerID: "u1", ComponentID: id, Quantity: 3,
	})
	require.True(t, IsInsufficientStock(err))

	// 隐式申请被取消，不留 pending；台账没动
	for _, r := range store.Requests() {
		assert.NotEqual(t, models.RequestPending, r.Status)
	}
	assert.Empty(t, store.Loans())
	c, _ := e.GetAvailability(context.Background(), id)
	assert.Equal(t, 1, c.Available)
}

func TestRestock(t *testing.T) {
	e, store := newTestEngine(t)
	id := seedComponent(t, store, 2, 1)

	c, err := e.Restock(context.Background(), id, "admin", 8)
	require.NoError(t, err)
	assert.Equal(t, 10, c.Quantity)
	assert.Equal(t, 10, c.Available)

	_, err = e.Restock(context.Background(), id, "admin", 0)
	assert.ErrorIs(t, err, ErrValidation)

	entries := store.AuditEntries(id)
	require.Len(t, entries, 1)
	assert.Equal(t, models.AuditRestock, entries[0].Action)
	assert.Equal(t, 8, entries[0].Delta)
}

func TestAuditTrailRecordsEveryMutation(t *testing.T) {
	e, store := newTestEngine(t)
	id := seedComponent(t, store, 5, 0)
	req := submit(t, e, id, "u1", 3)
	_, loan, err := e.DecideRequest(context.Background(), DecideInput{
		RequestID: req.ID, Decision: Approve, ApproverID: "admin",
	})
	require.NoError(t, err)
	_, err = e.ReturnLoan(context.Background(), loan.ID, "u1", false)
	require.NoError(t, err)

	entries := store.AuditEntries(id)
	require.Len(t, entries, 2)
	assert.Equal(t, models.AuditDebit, entries[0].Action)
	assert.Equal(t, -3, entries[0].Delta)
	assert.Equal(t, 5, entries[0].BeforeQty)
	assert.Equal(t, 2, entries[0].AfterQty)
	assert.Equal(t, models.AuditCredit, entries[1].Action)
	assert.Equal(t, 3, entries[1].Delta)
	// 前一条的 after 接上后一条的 before
	assert.Equal(t, entries[0].AfterQty, entries[1].BeforeQty)
}

func TestOverdueIsDerived(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	l := &models.Loan{DueAt: &past}
	assert.True(t, l.Overdue(now))
	assert.Equal(t, models.LoanOverdue, l.DisplayStatus(now))

	l.DueAt = &future
	assert.False(t, l.Overdue(now))
	assert.Equal(t, models.LoanActive, l.DisplayStatus(now))

	// 已归还的永远不算逾期
	l.DueAt = &past
	l.ReturnedAt = &now
	assert.False(t, l.Overdue(now))
	assert.Equal(t, models.LoanReturned, l.DisplayStatus(now))
}

// ---- 补偿路径：后半步失败时引擎要把台账退回去 ----

type flakyStore struct {
	Store
	failCreateLoan error
	failDecide     error
	failCredit     error
}

func (f *flakyStore) CreateLoan(ctx context.Context, loan *models.Loan) error {
	if f.failCreateLoan != nil {
		return f.failCreateLoan
	}
	return f.Store.CreateLoan(ctx, loan)
}

func (f *flakyStore) DecideRequest(ctx context.Context, id, status, deciderID, note string, at time.Time) error {
	if f.failDecide != nil {
		return f.failDecide
	}
	return f.Store.DecideRequest(ctx, id, status, deciderID, note, at)
}

func (f *flakyStore) CreditAvailable(ctx context.Context, componentID, actorID string, qty int, note string) error {
	if f.failCredit != nil {
		return f.failCredit
	}
	return f.Store.CreditAvailable(ctx, componentID, actorID, qty, note)
}

func TestApproveCompensatesWhenLoanCreateFails(t *testing.T) {
	mem := NewMemStore()
	id := seedComponent(t, mem, 5, 0)
	boom := errors.New("storage down")
	flaky := &flakyStore{Store: mem, failCreateLoan: boom}
	e := NewEngine(flaky)

	req := submit(t, e, id, "u1", 3)
	_, _, err := e.DecideRequest(context.Background(), DecideInput{
		RequestID: req.ID, Decision: Approve, ApproverID: "admin",
	})
	require.ErrorIs(t, err, boom)

	// 扣掉的加回来了，申请还是 pending，没有 loan
	c, _ := mem.GetComponent(context.Background(), id)
	assert.Equal(t, 5, c.Available)
	got, _ := mem.GetRequest(context.Background(), req.ID)
	assert.Equal(t, models.RequestPending, got.Status)
	assert.Empty(t, mem.Loans())

	// 补偿本身也进审计：一扣一补
	entries := mem.AuditEntries(id)
	require.Len(t, entries, 2)
	assert.Equal(t, -3, entries[0].Delta)
	assert.Equal(t, 3, entries[1].Delta)
}

func TestApproveCompensatesWhenDecideFails(t *testing.T) {
	mem := NewMemStore()
	id := seedComponent(t, mem, 5, 0)
	boom := errors.New("storage down")
	flaky := &flakyStore{Store: mem}
	e := NewEngine(flaky)

	req := submit(t, e, id, "u1", 2)
	flaky.failDecide = boom

	_, _, err := e.DecideRequest(context.Background(), DecideInput{
		RequestID: req.ID, Decision: Approve, ApproverID: "admin",
	})
	require.ErrorIs(t, err, boom)

	c, _ := mem.GetComponent(context.Background(), id)
	assert.Equal(t, 5, c.Available)
	assert.Empty(t, mem.Loans())
	got, _ := mem.GetRequest(context.Background(), req.ID)
	assert.Equal(t, models.RequestPending, got.Status)
}

func TestReturnCompensatesWhenCreditFails(t *testing.T) {
	mem := NewMemStore()
	id := seedComponent(t, mem, 5, 0)
	flaky := &flakyStore{Store: mem}
	e := NewEngine(flaky)

	req := submit(t, e, id, "u1", 3)
	_, loan, err := e.DecideRequest(context.Background(), DecideInput{
		RequestID: req.ID, Decision: Approve, ApproverID: "admin",
	})
	require.NoError(t, err)

	boom := errors.New("storage down")
	flaky.failCredit = boom
	_, err = e.ReturnLoan(context.Background(), loan.ID, "u1", false)
	require.ErrorIs(t, err, boom)

	// loan 翻回在借，台账没动：重试是安全的
	got, _ := mem.GetLoan(context.Background(), loan.ID)
	assert.Nil(t, got.ReturnedAt)
	c, _ := mem.GetComponent(context.Background(), id)
	assert.Equal(t, 2, c.Available)

	flaky.failCredit = nil
	returned, err := e.ReturnLoan(context.Background(), loan.ID, "u1", false)
	require.NoError(t, err)
	require.NotNil(t, returned.ReturnedAt)
	c, _ = mem.GetComponent(context.Background(), id)
	assert.Equal(t, 5, c.Available)
}

func TestCreditClampsAtQuantity(t *testing.T) {
	mem := NewMemStore()
	id := seedComponent(t, mem, 5, 0)

	// 模拟历史数据损坏后多还：clamp 到 quantity，审计里看得到
	require.NoError(t, mem.CreditAvailable(context.Background(), id, "admin", 3, "manual fix"))
	c, _ := mem.GetComponent(context.Background(), id)
	assert.Equal(t, 5, c.Available)

	entries := mem.AuditEntries(id)
	require.Len(t, entries, 1)
	assert.Equal(t, 0, entries[0].Delta)
	assert.Contains(t, entries[0].Note, "clamped")
}
