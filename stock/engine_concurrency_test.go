package stock

import (
	"context"
	"sync"
	"testing"

	"Gin_postgres_redis_lab_stock/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 两个管理员同时批同一元件：available=5，各批 3，只能成一个
func TestConcurrentApprovalsExactlyOneWins(t *testing.T) {
	e, store := newTestEngine(t)
	id := seedComponent(t, store, 5, 0)

	r1 := submit(t, e, id, "u1", 3)
	r2 := submit(t, e, id, "u2", 3)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, reqID := range []string{r1.ID, r2.ID} {
		wg.Add(1)
		go func(i int, reqID string) {
			defer wg.Done()
			_, _, errs[i] = e.DecideRequest(context.Background(), DecideInput{
				RequestID: reqID, Decision: Approve, ApproverID: "admin",
			})
		}(i, reqID)
	}
	wg.Wait()

	okCount, insufficient := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			okCount++
		case IsInsufficientStock(err):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, okCount)
	assert.Equal(t, 1, insufficient)

	c, _ := e.GetAvailability(context.Background(), id)
	assert.Equal(t, 2, c.Available)
	assert.Equal(t, 3, store.ActiveQuantity(id))
}

// 大量并发批准：成功的刚好把库存耗尽，其余全部拿库存不足，
// 任何时刻都读不到负数
func TestConcurrentApprovalsNeverOversell(t *testing.T) {
	e, store := newTestEngine(t)
	const total = 5
	const contenders = 40
	id := seedComponent(t, store, total, 0)

	reqs := make([]*models.BorrowRequest, contenders)
	for i := range reqs {
		reqs[i] = submit(t, e, id, "user", 1)
	}

	var wg sync.WaitGroup
	errs := make([]error, contenders)
	for i := range reqs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = e.DecideRequest(context.Background(), DecideInput{
				RequestID: reqs[i].ID, Decision: Approve, ApproverID: "admin",
			})
		}(i)
	}
	wg.Wait()

	okCount := 0
	for _, err := range errs {
		if err == nil {
			okCount++
		} else {
			require.True(t, IsInsufficientStock(err), "unexpected error: %v", err)
		}
	}
	assert.Equal(t, total, okCount)

	c, _ := e.GetAvailability(context.Background(), id)
	assert.Equal(t, 0, c.Available)
	assert.Equal(t, total, store.ActiveQuantity(id))

	// 审计重放：从初始值一路减下来，不会出现负数
	avail := total
	for _, entry := range store.AuditEntries(id) {
		assert.Equal(t, avail, entry.BeforeQty)
		avail += entry.Delta
		assert.Equal(t, avail, entry.AfterQty)
		assert.GreaterOrEqual(t, avail, 0)
	}
	assert.Equal(t, 0, avail)
}

// 归还和批准赛跑：总量守恒，最后对账必须平
func TestReturnsRacingApprovals(t *testing.T) {
	e, store := newTestEngine(t)
	const total = 10
	id := seedComponent(t, store, total, 0)

	// 先借走一半
	loans := make([]*models.Loan, 5)
	for i := range loans {
		req := submit(t, e, id, "u1", 1)
		_, loan, err := e.DecideRequest(context.Background(), DecideInput{
			RequestID: req.ID, Decision: Approve, ApproverID: "admin",
		})
		require.NoError(t, err)
		loans[i] = loan
	}

	// 一半人归还，同时另一批人抢着批新申请
	newReqs := make([]*models.BorrowRequest, 8)
	for i := range newReqs {
		newReqs[i] = submit(t, e, id, "u2", 1)
	}

	var wg sync.WaitGroup
	for _, l := range loans {
		wg.Add(1)
		go func(loanID string) {
			defer wg.Done()
			_, err := e.ReturnLoan(context.Background(), loanID, "u1", false)
			assert.NoError(t, err)
		}(l.ID)
	}
	for _, r := range newReqs {
		wg.Add(1)
		go func(reqID string) {
			defer wg.Done()
			_, _, err := e.DecideRequest(context.Background(), DecideInput{
				RequestID: reqID, Decision: Approve, ApproverID: "admin",
			})
			if err != nil {
				assert.True(t, IsInsufficientStock(err), "unexpected error: %v", err)
			}
		}(r.ID)
	}
	wg.Wait()

	c, _ := e.GetAvailability(context.Background(), id)
	assert.GreaterOrEqual(t, c.Available, 0)
	assert.LessOrEqual(t, c.Available, total)
	// quantity - available == 在借之和
	assert.Equal(t, total-c.Available, store.ActiveQuantity(id))
}

// 同一条申请被两个管理员同时决定：只能成一次
func TestConcurrentDecideSameRequest(t *testing.T) {
	e, store := newTestEngine(t)
	id := seedComponent(t, store, 5, 0)
	req := submit(t, e, id, "u1", 2)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = e.DecideRequest(context.Background(), DecideInput{
				RequestID: req.ID, Decision: Approve, ApproverID: "admin",
			})
		}(i)
	}
	wg.Wait()

	okCount := 0
	for _, err := range errs {
		if err == nil {
			okCount++
		} else {
			assert.ErrorIs(t, err, ErrAlreadyDecided)
		}
	}
	assert.Equal(t, 1, okCount)

	// 只扣了一次
	c, _ := e.GetAvailability(context.Background(), id)
	assert.Equal(t, 3, c.Available)
	assert.Equal(t, 2, store.ActiveQuantity(id))
}

// 同一笔借出被两个人同时归还：台账只加回一次
func TestConcurrentReturnsSameLoan(t *testing.T) {
	e, store := newTestEngine(t)
	id := seedComponent(t, store, 5, 0)
	req := submit(t, e, id, "u1", 2)
	_, loan, err := e.DecideRequest(context.Background(), DecideInput{
		RequestID: req.ID, Decision: Approve, ApproverID: "admin",
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.ReturnLoan(context.Background(), loan.ID, "admin", true)
		}(i)
	}
	wg.Wait()

	okCount := 0
	for _, err := range errs {
		if err == nil {
			okCount++
		} else {
			assert.ErrorIs(t, err, ErrAlreadyReturned)
		}
	}
	assert.Equal(t, 1, okCount)

	c, _ := e.GetAvailability(context.Background(), id)
	assert.Equal(t, 5, c.Available)
}
