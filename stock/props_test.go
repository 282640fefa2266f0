package stock

import (
	"context"
	"testing"

	"Gin_postgres_redis_lab_stock/models"

	"pgregory.net/rapid"
)

// 随机操作序列下台账的两条硬性质：
//   1. 0 <= available <= quantity
//   2. quantity - available == 在借 loan 的数量之和
func TestLedgerInvariantsUnderRandomOps(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		store := NewMemStore()
		e := NewEngine(store)

		nComponents := rapid.IntRange(1, 3).Draw(rt, "components")
		ids := make([]string, nComponents)
		for i := range ids {
			qty := rapid.IntRange(0, 10).Draw(rt, "quantity")
			c := &models.Component{Name: "part", Quantity: qty, Available: qty}
			if err := store.CreateComponent(ctx, c); err != nil {
				rt.Fatalf("seed component: %v", err)
			}
			ids[i] = c.ID
		}

		var pending []string
		var active []string

		checkInvariants := func() {
			for _, id := range ids {
				c, err := store.GetComponent(ctx, id)
				if err != nil {
					rt.Fatalf("get component: %v", err)
				}
				if c.Available < 0 || c.Available > c.Quantity {
					rt.Fatalf("available %d out of range [0,%d]", c.Available, c.Quantity)
				}
				if got := store.ActiveQuantity(id); c.Quantity-c.Available != got {
					rt.Fatalf("ledger drift: quantity %d - available %d != active loans %d",
						c.Quantity, c.Available, got)
				}
			}
		}

		steps := rapid.IntRange(1, 60).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			switch rapid.IntRange(0, 4).Draw(rt, "op") {
			case 0: // submit
				id := rapid.SampledFrom(ids).Draw(rt, "component")
				qty := rapid.IntRange(1, 4).Draw(rt, "qty")
				req, err := e.SubmitRequest(ctx, SubmitInput{
					RequesterID: "user", ComponentID: id, Quantity: qty,
				})
				if err != nil {
					rt.Fatalf("submit: %v", err)
				}
				pending = append(pending, req.ID)
			case 1: // approve or reject a pending request
				if len(pending) == 0 {
					continue
				}
				idx := rapid.IntRange(0, len(pending)-1).Draw(rt, "pick")
				reqID := pending[idx]
				decision := Approve
				if rapid.Bool().Draw(rt, "reject") {
					decision = Reject
				}
				_, loan, err := e.DecideRequest(ctx, DecideInput{
					RequestID: reqID, Decision: decision, ApproverID: "admin",
				})
				switch {
				case err == nil:
					pending = append(pending[:idx], pending[idx+1:]...)
					if loan != nil {
						active = append(active, loan.ID)
					}
				case IsInsufficientStock(err):
					// 申请留在 pending，稍后可能重试
				default:
					rt.Fatalf("decide: %v", err)
				}
			case 2: // return an active loan
				if len(active) == 0 {
					continue
				}
				idx := rapid.IntRange(0, len(active)-1).Draw(rt, "pick")
				if _, err := e.ReturnLoan(ctx, active[idx], "admin", true); err != nil {
					rt.Fatalf("return: %v", err)
				}
				active = append(active[:idx], active[idx+1:]...)
			case 3: // cancel a pending request
				if len(pending) == 0 {
					continue
				}
				idx := rapid.IntRange(0, len(pending)-1).Draw(rt, "pick")
				if err := e.CancelRequest(ctx, pending[idx], "admin", true); err != nil {
					rt.Fatalf("cancel: %v", err)
				}
				pending = append(pending[:idx], pending[idx+1:]...)
			case 4: // restock
				id := rapid.SampledFrom(ids).Draw(rt, "component")
				if _, err := e.Restock(ctx, id, "admin", rapid.IntRange(1, 5).Draw(rt, "qty")); err != nil {
					rt.Fatalf("restock: %v", err)
				}
			}
			checkInvariants()
		}

		// 收尾：全部归还后 available 回到 quantity
		for _, loanID := range active {
			if _, err := e.ReturnLoan(ctx, loanID, "admin", true); err != nil {
				rt.Fatalf("final return: %v", err)
			}
		}
		for _, id := range ids {
			c, _ := store.GetComponent(ctx, id)
			if c.Available != c.Quantity {
				rt.Fatalf("after returning everything available %d != quantity %d", c.Available, c.Quantity)
			}
		}
	})
}
