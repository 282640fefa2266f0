// models/borrow.go
package models

import "time"

const RequestTable = "lsb_borrow_requests"
const LoanTable = "lsb_loans"

// 借用申请状态：pending 之后只允许一次跳转，落到终态后不再变
const (
	RequestPending   = "pending"
	RequestApproved  = "approved"
	RequestRejected  = "rejected"
	RequestCancelled = "cancelled"
)

// Loan 的展示状态（returned 落库，overdue 由 due_at 推导，不落库）
const (
	LoanActive   = "active"
	LoanReturned = "returned"
	LoanOverdue  = "overdue"
)

// BorrowRequest 用户的借用申请；提交时不占库存，批准时才扣
type BorrowRequest struct {
	ID          string     `gorm:"type:uuid;primaryKey" json:"id"`
	RequesterID string     `gorm:"type:uuid;index;not null" json:"requesterId"`
	ComponentID string     `gorm:"type:uuid;index;not null" json:"componentId"`
	Quantity    int        `gorm:"not null" json:"quantity"`
	DueAt       *time.Time `json:"dueAt,omitempty"`
	Purpose     string     `gorm:"size:255" json:"purpose,omitempty"`

	Status       string     `gorm:"size:20;not null;default:'pending';index" json:"status"`
	DecidedBy    *string    `gorm:"type:uuid" json:"decidedBy,omitempty"`
	DecidedAt    *time.Time `json:"decidedAt,omitempty"`
	DecisionNote string     `gorm:"size:255" json:"decisionNote,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (BorrowRequest) TableName() string { return RequestTable }

func (r *BorrowRequest) Pending() bool { return r.Status == RequestPending }

// Loan 实际借出记录：批准申请的副产物，数量已从 available 扣除
// returned_at IS NULL 即在借；记录永不删除，留作对账
type Loan struct {
	ID          string     `gorm:"type:uuid;primaryKey" json:"id"`
	RequestID   *string    `gorm:"type:uuid;index" json:"requestId,omitempty"`
	ComponentID string     `gorm:"type:uuid;index;not null" json:"componentId"`
	BorrowerID  string     `gorm:"type:uuid;index;not null" json:"borrowerId"`
	Quantity    int        `gorm:"not null" json:"quantity"`
	BorrowedAt  time.Time  `gorm:"index;not null" json:"borrowedAt"`
	DueAt       *time.Time `json:"dueAt,omitempty"`

	ReturnedAt *time.Time `gorm:"index" json:"returnedAt,omitempty"`
	ReturnedBy *string    `gorm:"type:uuid" json:"returnedBy,omitempty"`

	Note      string    `gorm:"size:255" json:"note,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Loan) TableName() string { return LoanTable }

func (l *Loan) Active() bool { return l.ReturnedAt == nil }

func (l *Loan) Overdue(now time.Time) bool {
	return l.ReturnedAt == nil && l.DueAt != nil && l.DueAt.Before(now)
}

// DisplayStatus 推导展示状态，overdue 不单独落库，避免和 due_at 漂移
func (l *Loan) DisplayStatus(now time.Time) string {
	switch {
	case l.ReturnedAt != nil:
		return LoanReturned
	case l.Overdue(now):
		return LoanOverdue
	default:
		return LoanActive
	}
}
