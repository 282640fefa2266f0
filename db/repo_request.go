// db/repo_request.go
package db

import (
	"Gin_postgres_redis_lab_stock/models"
	"Gin_postgres_redis_lab_stock/stock"
	"context"
	"time"
)

func (r *Repo) CreateRequest(ctx context.Context, req *models.BorrowRequest) error {
	return r.DB.WithContext(ctx).Create(req).Error
}

func (r *Repo) GetRequest(ctx context.Context, id string) (*models.BorrowRequest, error) {
	var req models.BorrowRequest
	if err := r.DB.WithContext(ctx).First(&req, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &req, nil
}

// 条件更新兼做单次决定的闸门：WHERE status = 'pending' 零行生效
// 说明已有别的决定先落库
func (r *Repo) DecideRequest(ctx context.Context, id, status, deciderID, note string, at time.Time) error {
	res := r.DB.WithContext(ctx).Model(&models.BorrowRequest{}).
		Where("id = ? AND status = ?", id, models.RequestPending).
		Updates(map[string]any{
			"status":        status,
			"decided_by":    deciderID,
			"decided_at":    at,
			"decision_note": note,
			"updated_at":    at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// 分清“不存在”和“已决定”
		var n int64
		if err := r.DB.WithContext(ctx).Model(&models.BorrowRequest{}).
			Where("id = ?", id).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return stock.ErrNotFound
		}
		return stock.ErrNotPending
	}
	return nil
}

type RequestsQuery struct {
	RequesterID string
	ComponentID string
	Status      string // "", pending/approved/rejected/cancelled
	Page        int
	Size        int
}

type PagedRequests struct {
	Total int64                  `json:"total"`
	Items []models.BorrowRequest `json:"items"`
}

func (r *Repo) ListRequests(ctx context.Context, q RequestsQuery) (*PagedRequests, error) {
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.Size <= 0 || q.Size > 200 {
		q.Size = 20
	}

	tx := r.DB.WithContext(ctx).Model(&models.BorrowRequest{})
	if q.RequesterID != "" {
		tx = tx.Where("requester_id = ?", q.RequesterID)
	}
	if q.ComponentID != "" {
		tx = tx.Where("component_id = ?", q.ComponentID)
	}
	if q.Status != "" {
		tx = tx.Where("status = ?", q.Status)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, err
	}

	var items []models.BorrowRequest
	if err := tx.Order("created_at DESC").
		Offset((q.Page - 1) * q.Size).
		Limit(q.Size).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return &PagedRequests{Total: total, Items: items}, nil
}
