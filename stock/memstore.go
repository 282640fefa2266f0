package stock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"Gin_postgres_redis_lab_stock/models"

	"github.com/google/uuid"
)

// MemStore 内存版 Store：测试和无 Postgres 的本地跑用。
// 台账操作按元件各持一把锁，不同元件互不阻塞；
// 申请/借出表共用一把表锁（都是短临界区）。
type MemStore struct {
	mu         sync.Mutex
	components map[string]*models.Component
	requests   map[string]*models.BorrowRequest
	loans      map[string]*models.Loan
	audit      map[string][]models.AuditEntry // componentID → entries, append-only
	locks      map[string]*sync.Mutex
}

func NewMemStore() *MemStore {
	return &MemStore{
		components: map[string]*models.Component{},
		requests:   map[string]*models.BorrowRequest{},
		loans:      map[string]*models.Loan{},
		audit:      map[string][]models.AuditEntry{},
		locks:      map[string]*sync.Mutex{},
	}
}

// CreateComponent 入库登记；available 初始等于 quantity
func (s *MemStore) CreateComponent(ctx context.Context, c *models.Component) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if _, ok := s.components[c.ID]; ok {
		return fmt.Errorf("component %s already exists", c.ID)
	}
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	cp := *c
	s.components[c.ID] = &cp
	s.locks[c.ID] = &sync.Mutex{}
	return nil
}

// 取元件指针和它的台账锁；调用方负责加锁
func (s *MemStore) ledgerEntry(id string) (*sync.Mutex, *models.Component, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.components[id]
	if !ok {
		return nil, nil, ErrNotFound
	}
	return s.locks[id], c, nil
}

func (s *MemStore) GetComponent(ctx context.Context, id string) (*models.Component, error) {
	lk, c, err := s.ledgerEntry(id)
	if err != nil {
		return nil, err
	}
	lk.Lock()
	defer lk.Unlock()
	cp := *c
	return &cp, nil
}

func (s *MemStore) DebitAvailable(ctx context.Context, componentID, actorID string, qty int, note string) error {
	lk, c, err := s.ledgerEntry(componentID)
	if err != nil {
		return err
	}
	lk.Lock()
	defer lk.Unlock()
	if qty > c.Available {
		return &InsufficientStockError{ComponentID: componentID, Requested: qty, Available: c.Available}
	}
	before := c.Available
	c.Available -= qty
	c.UpdatedAt = time.Now()
	s.appendAudit(componentID, actorID, models.AuditDebit, -qty, before, c.Available, note)
	return nil
}

func (s *MemStore) CreditAvailable(ctx context.Context, componentID, actorID string, qty int, note string) error {
	lk, c, err := s.ledgerEntry(componentID)
	if err != nil {
		return err
	}
	lk.Lock()
	defer lk.Unlock()
	before := c.Available
	after := before + qty
	if after > c.Quantity {
		// clamp：防御之前的数据损坏，不让 available 超过 quantity
		after = c.Quantity
		note = note + fmt.Sprintf(" (clamped +%d)", qty)
	}
	c.Available = after
	c.UpdatedAt = time.Now()
	s.appendAudit(componentID, actorID, models.AuditCredit, after-before, before, after, note)
	return nil
}

func (s *MemStore) Restock(ctx context.Context, componentID, actorID string, qty int) (*models.Component, error) {
	lk, c, err := s.ledgerEntry(componentID)
	if err != nil {
		return nil, err
	}
	lk.Lock()
	defer lk.Unlock()
	before := c.Available
	c.Quantity += qty
	c.Available += qty
	c.UpdatedAt = time.Now()
	s.appendAudit(componentID, actorID, models.AuditRestock, qty, before, c.Available, "")
	cp := *c
	return &cp, nil
}

// 调用方必须已持有该元件的台账锁
func (s *MemStore) appendAudit(componentID, actorID, action string, delta, before, after int, note string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit[componentID] = append(s.audit[componentID], models.AuditEntry{
		ID:          uuid.NewString(),
		ComponentID: componentID,
		ActorID:     actorID,
		Action:      action,
		Delta:       delta,
		BeforeQty:   before,
		AfterQty:    after,
		Note:        note,
		CreatedAt:   time.Now(),
	})
}

func (s *MemStore) CreateRequest(ctx context.Context, req *models.BorrowRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req.CreatedAt = time.Now()
	req.UpdatedAt = req.CreatedAt
	cp := *req
	s.requests[req.ID] = &cp
	return nil
}

func (s *MemStore) GetRequest(ctx context.Context, id string) (*models.BorrowRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *req
	return &cp, nil
}

func (s *MemStore) DecideRequest(ctx context.Context, id, status, deciderID, note string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return ErrNotFound
	}
	if req.Status != models.RequestPending {
		return ErrNotPending
	}
	req.Status = status
	req.DecidedBy = &deciderID
	req.DecidedAt = &at
	req.DecisionNote = note
	req.UpdatedAt = at
	return nil
}

func (s *MemStore) CreateLoan(ctx context.Context, loan *models.Loan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	loan.CreatedAt = time.Now()
	loan.UpdatedAt = loan.CreatedAt
	cp := *loan
	s.loans[loan.ID] = &cp
	return nil
}

func (s *MemStore) GetLoan(ctx context.Context, id string) (*models.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	loan, ok := s.loans[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *loan
	return &cp, nil
}

func (s *MemStore) CloseLoan(ctx context.Context, id, returnedBy string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	loan, ok := s.loans[id]
	if !ok {
		return ErrNotFound
	}
	if loan.ReturnedAt != nil {
		return ErrAlreadyReturned
	}
	loan.ReturnedAt = &at
	loan.ReturnedBy = &returnedBy
	loan.UpdatedAt = at
	return nil
}

func (s *MemStore) ReopenLoan(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	loan, ok := s.loans[id]
	if !ok {
		return ErrNotFound
	}
	loan.ReturnedAt = nil
	loan.ReturnedBy = nil
	loan.UpdatedAt = time.Now()
	return nil
}

func (s *MemStore) RemoveLoan(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.loans, id)
	return nil
}

// ---- 快照读取，给测试和对账用 ----

func (s *MemStore) AuditEntries(componentID string) []models.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.AuditEntry, len(s.audit[componentID]))
	copy(out, s.audit[componentID])
	return out
}

func (s *MemStore) Loans() []models.Loan {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Loan, 0, len(s.loans))
	for _, l := range s.loans {
		out = append(out, *l)
	}
	return out
}

func (s *MemStore) Requests() []models.BorrowRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.BorrowRequest, 0, len(s.requests))
	for _, r := range s.requests {
		out = append(out, *r)
	}
	return out
}

// ActiveQuantity 某元件所有在借 loan 的数量之和
func (s *MemStore) ActiveQuantity(componentID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, l := range s.loans {
		if l.ComponentID == componentID && l.ReturnedAt == nil {
			total += l.Quantity
		}
	}
	return total
}

var _ Store = (*MemStore)(nil)
