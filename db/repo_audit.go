// db/repo_audit.go
package db

import (
	"Gin_postgres_redis_lab_stock/models"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 只在台账事务里调用，审计和扣/加同生共死
func appendAudit(tx *gorm.DB, componentID, actorID, action string, delta, before, after int, note string) error {
	entry := &models.AuditEntry{
		ID:          uuid.NewString(),
		ComponentID: componentID,
		ActorID:     actorID,
		Action:      action,
		Delta:       delta,
		BeforeQty:   before,
		AfterQty:    after,
		Note:        note,
		CreatedAt:   time.Now().UTC(),
	}
	if err := tx.Create(entry).Error; err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

type PagedAudit struct {
	Total int64               `json:"total"`
	Items []models.AuditEntry `json:"items"`
}

// 审计只读不改；按时间倒序翻页
func (r *Repo) ListAudit(ctx context.Context, componentID string, page, size int) (*PagedAudit, error) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 || size > 200 {
		size = 50
	}

	tx := r.DB.WithContext(ctx).Model(&models.AuditEntry{}).
		Where("component_id = ?", componentID)

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, err
	}

	var items []models.AuditEntry
	if err := tx.Order("created_at DESC").
		Offset((page - 1) * size).
		Limit(size).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return &PagedAudit{Total: total, Items: items}, nil
}
