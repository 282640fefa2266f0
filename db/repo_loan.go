// db/repo_loan.go
package db

import (
	"Gin_postgres_redis_lab_stock/models"
	"Gin_postgres_redis_lab_stock/stock"
	"context"
	"time"
)

func (r *Repo) CreateLoan(ctx context.Context, loan *models.Loan) error {
	return r.DB.WithContext(ctx).Create(loan).Error
}

func (r *Repo) GetLoan(ctx context.Context, id string) (*models.Loan, error) {
	var l models.Loan
	if err := r.DB.WithContext(ctx).First(&l, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &l, nil
}

// 条件翻转是归还的幂等闸门：WHERE returned_at IS NULL，
// 输掉的那一次拿 AlreadyReturned，台账只会加回一次
func (r *Repo) CloseLoan(ctx context.Context, id, returnedBy string, at time.Time) error {
	res := r.DB.WithContext(ctx).Model(&models.Loan{}).
		Where("id = ? AND returned_at IS NULL", id).
		Updates(map[string]any{
			"returned_at": at,
			"returned_by": returnedBy,
			"updated_at":  at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var n int64
		if err := r.DB.WithContext(ctx).Model(&models.Loan{}).
			Where("id = ?", id).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return stock.ErrNotFound
		}
		return stock.ErrAlreadyReturned
	}
	return nil
}

// 补偿用：credit 落库失败后把 loan 翻回在借
func (r *Repo) ReopenLoan(ctx context.Context, id string) error {
	return r.DB.WithContext(ctx).Model(&models.Loan{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"returned_at": nil,
			"returned_by": nil,
			"updated_at":  time.Now().UTC(),
		}).Error
}

// 补偿用：撤掉从未暴露给调用方的 loan
func (r *Repo) RemoveLoan(ctx context.Context, id string) error {
	return r.DB.WithContext(ctx).Delete(&models.Loan{}, "id = ?", id).Error
}

type LoansQuery struct {
	BorrowerID  string
	ComponentID string
	Status      string // "", active, returned, overdue
	Page        int
	Size        int
}

type LoanRow struct {
	models.Loan
	ComponentName string `json:"componentName"`
	Overdue       bool   `json:"overdue"`
}

type PagedLoans struct {
	Total int64     `json:"total"`
	Items []LoanRow `json:"items"`
}

func (r *Repo) ListLoans(ctx context.Context, q LoansQuery) (*PagedLoans, error) {
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.Size <= 0 || q.Size > 200 {
		q.Size = 20
	}

	base := r.DB.WithContext(ctx).
		Table(models.LoanTable + " l").
		Joins("JOIN " + models.ComponentTable + " c ON c.id = l.component_id")

	if q.BorrowerID != "" {
		base = base.Where("l.borrower_id = ?", q.BorrowerID)
	}
	if q.ComponentID != "" {
		base = base.Where("l.component_id = ?", q.ComponentID)
	}
	switch q.Status {
	case models.LoanActive:
		base = base.Where("l.returned_at IS NULL")
	case models.LoanReturned:
		base = base.Where("l.returned_at IS NOT NULL")
	case models.LoanOverdue:
		// overdue 是推导出来的：在借且过了 due_at
		base = base.Where("l.returned_at IS NULL AND l.due_at IS NOT NULL AND l.due_at < NOW()")
	}

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, err
	}

	var rows []LoanRow
	if err := base.
		Select(`
			l.*,
			c.name AS component_name,
			CASE WHEN l.returned_at IS NULL AND l.due_at IS NOT NULL AND l.due_at < NOW()
			     THEN TRUE ELSE FALSE END AS overdue
		`).
		Order("l.borrowed_at DESC").
		Offset((q.Page - 1) * q.Size).
		Limit(q.Size).
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return &PagedLoans{Total: total, Items: rows}, nil
}

// 普通用户：自己手上的在借记录
func (r *Repo) ListMyOpenLoans(ctx context.Context, userID string, page, size int) (*PagedLoans, error) {
	return r.ListLoans(ctx, LoansQuery{
		BorrowerID: userID,
		Status:     models.LoanActive,
		Page:       page,
		Size:       size,
	})
}
