// db/repo_component.go
package db

import (
	"Gin_postgres_redis_lab_stock/models"
	"Gin_postgres_redis_lab_stock/stock"
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Components

func (r *Repo) CreateComponent(ctx context.Context, c *models.Component) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return r.DB.WithContext(ctx).Create(c).Error
}

func (r *Repo) GetComponent(ctx context.Context, id string) (*models.Component, error) {
	var c models.Component
	if err := r.DB.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (r *Repo) ListComponents(ctx context.Context) ([]models.Component, error) {
	var cs []models.Component
	err := r.DB.WithContext(ctx).Order("created_at DESC").Find(&cs).Error
	return cs, err
}

// 台账：检查 + 扣减必须是一步。锁行拿 before 值，再用条件更新扣，
// 同一事务里追加审计；两个并发扣减在同一元件上天然串行，
// 不同元件互不影响（锁的是行，不是表）
func (r *Repo) DebitAvailable(ctx context.Context, componentID, actorID string, qty int, note string) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c models.Component
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&c, "id = ?", componentID).Error; err != nil {
			return notFound(err)
		}
		if qty > c.Available {
			return &stock.InsufficientStockError{ComponentID: componentID, Requested: qty, Available: c.Available}
		}
		res := tx.Model(&models.Component{}).
			Where("id = ? AND available >= ?", componentID, qty).
			Update("available", gorm.Expr("available - ?", qty))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// 行已锁住，正常到不了这里；纯防御
			return &stock.InsufficientStockError{ComponentID: componentID, Requested: qty, Available: c.Available}
		}
		return appendAudit(tx, componentID, actorID, models.AuditDebit, -qty, c.Available, c.Available-qty, note)
	})
}

func (r *Repo) CreditAvailable(ctx context.Context, componentID, actorID string, qty int, note string) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c models.Component
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&c, "id = ?", componentID).Error; err != nil {
			return notFound(err)
		}
		before := c.Available
		after := before + qty
		if after > c.Quantity {
			// clamp 到 quantity，不让坏数据放大；记日志 + 审计备注
			after = c.Quantity
			note = note + fmt.Sprintf(" (clamped +%d)", qty)
			log.Printf("db: credit of %d on component %s clamped at quantity %d", qty, componentID, c.Quantity)
		}
		if err := tx.Model(&models.Component{}).
			Where("id = ?", componentID).
			Update("available", gorm.Expr("LEAST(available + ?, quantity)", qty)).Error; err != nil {
			return err
		}
		return appendAudit(tx, componentID, actorID, models.AuditCredit, after-before, before, after, note)
	})
}

func (r *Repo) Restock(ctx context.Context, componentID, actorID string, qty int) (*models.Component, error) {
	var out models.Component
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c models.Component
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&c, "id = ?", componentID).Error; err != nil {
			return notFound(err)
		}
		if err := tx.Model(&models.Component{}).
			Where("id = ?", componentID).
			Updates(map[string]any{
				"quantity":  gorm.Expr("quantity + ?", qty),
				"available": gorm.Expr("available + ?", qty),
			}).Error; err != nil {
			return err
		}
		if err := appendAudit(tx, componentID, actorID, models.AuditRestock, qty, c.Available, c.Available+qty, ""); err != nil {
			return err
		}
		return tx.First(&out, "id = ?", componentID).Error
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// 管理列表：元件 + 在借汇总（件数 / 数量 / 是否有逾期），SQL 里算好

type ComponentRow struct {
	models.Component
	OpenLoans  int  `json:"openLoans"`
	OnLoan     int  `json:"onLoan"`
	HasOverdue bool `json:"hasOverdue"`
	LowStock   bool `json:"lowStock" gorm:"-"`
}

type AdminComponentsQuery struct {
	Q      string // 模糊搜索：name/category
	Status string // "", "low", "out"
	Page   int
	Size   int
}

type PagedComponents struct {
	Total int64          `json:"total"`
	Items []ComponentRow `json:"items"`
}

func (r *Repo) ListComponentsWithLoans(ctx context.Context, q AdminComponentsQuery) (*PagedComponents, error) {
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.Size <= 0 || q.Size > 200 {
		q.Size = 20
	}
	offset := (q.Page - 1) * q.Size

	db := r.DB.WithContext(ctx)

	// 子查询：每个元件的在借汇总
	sub := db.
		Table(models.LoanTable+" l").
		Select(`
			l.component_id,
			COUNT(*) AS open_loans,
			COALESCE(SUM(l.quantity), 0) AS on_loan,
			BOOL_OR(l.due_at IS NOT NULL AND l.due_at < NOW()) AS has_overdue
		`).
		Where("l.returned_at IS NULL").
		Group("l.component_id")

	filter := func(tx *gorm.DB) *gorm.DB {
		if s := strings.TrimSpace(q.Q); s != "" {
			pat := "%" + strings.ToLower(s) + "%"
			tx = tx.Where("LOWER(c.name) LIKE ? OR LOWER(c.category) LIKE ?", pat, pat)
		}
		switch q.Status {
		case "low":
			tx = tx.Where("c.available <= c.threshold")
		case "out":
			tx = tx.Where("c.available = 0")
		}
		return tx
	}

	var total int64
	if err := filter(db.Table(models.ComponentTable + " c")).Count(&total).Error; err != nil {
		return nil, err
	}

	qry := filter(db.
		Table(models.ComponentTable+" c").
		Select(`
			c.*,
			COALESCE(ol.open_loans, 0) AS open_loans,
			COALESCE(ol.on_loan, 0)    AS on_loan,
			COALESCE(ol.has_overdue, FALSE) AS has_overdue
		`).
		Joins("LEFT JOIN (?) AS ol ON ol.component_id = c.id", sub)).
		Order("c.created_at DESC").
		Offset(offset).
		Limit(q.Size)

	var rows []ComponentRow
	if err := qry.Scan(&rows).Error; err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].LowStock = rows[i].Component.LowStock()
	}
	return &PagedComponents{Total: total, Items: rows}, nil
}

// Reconciliation 对账：quantity - available 应等于在借数量之和
type Reconciliation struct {
	ComponentID string `json:"componentId"`
	Quantity    int    `json:"quantity"`
	Available   int    `json:"available"`
	OnLoan      int    `json:"onLoan"`
	Consistent  bool   `json:"consistent"`
}

func (r *Repo) ReconcileComponent(ctx context.Context, componentID string) (*Reconciliation, error) {
	c, err := r.GetComponent(ctx, componentID)
	if err != nil {
		return nil, err
	}
	var onLoan int
	if err := r.DB.WithContext(ctx).Model(&models.Loan{}).
		Select("COALESCE(SUM(quantity), 0)").
		Where("component_id = ? AND returned_at IS NULL", componentID).
		Scan(&onLoan).Error; err != nil {
		return nil, err
	}
	return &Reconciliation{
		ComponentID: componentID,
		Quantity:    c.Quantity,
		Available:   c.Available,
		OnLoan:      onLoan,
		Consistent:  c.Quantity-c.Available == onLoan,
	}, nil
}
