// models/component.go
package models

import "time"

const ComponentTable = "lsb_components"
const AuditTable = "lsb_audit_log"

// 台账动作类型，写入审计表
const (
	AuditDebit   = "debit"   // 批准借用，available 减少
	AuditCredit  = "credit"  // 归还，available 增加
	AuditRestock = "restock" // 进货，quantity/available 同时增加
)

// Component 可借用的实验元件（按数量管理，不是唯一件）
// available 只能经由台账操作变更，不允许其它代码路径直接写
type Component struct {
	ID        string `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string `gorm:"size:200;not null" json:"name"`
	Category  string `gorm:"size:100;index" json:"category,omitempty"`
	Quantity  int    `gorm:"not null" json:"quantity"`            // 总数
	Available int    `gorm:"not null" json:"available"`           // 当前可借
	Threshold int    `gorm:"not null;default:0" json:"threshold"` // 补货阈值
	Condition string `gorm:"size:50;not null;default:'good'" json:"condition"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Component) TableName() string { return ComponentTable }

// LowStock 低于（含）阈值时提示补货
func (c *Component) LowStock() bool { return c.Available <= c.Threshold }

// AuditEntry 台账审计：每次 available 变动记一条，只追加不修改
type AuditEntry struct {
	ID          string  `gorm:"type:uuid;primaryKey" json:"id"`
	ComponentID string  `gorm:"type:uuid;index;not null" json:"componentId"`
	ActorID     string  `gorm:"type:uuid" json:"actorId"`
	Action      string  `gorm:"size:40;not null" json:"action"`
	Delta       int     `gorm:"not null" json:"delta"` // 实际生效的变化量（含 clamp 之后）
	BeforeQty   int     `gorm:"not null" json:"before"`
	AfterQty    int     `gorm:"not null" json:"after"`
	Note        string  `gorm:"size:255" json:"note,omitempty"`

	CreatedAt time.Time `gorm:"index" json:"createdAt"`
}

func (AuditEntry) TableName() string { return AuditTable }
