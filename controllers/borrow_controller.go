// controllers/borrow_controller.go
package controllers

import (
	"net/http"
	"strconv"
	"time"

	"Gin_postgres_redis_lab_stock/app"
	"Gin_postgres_redis_lab_stock/db"
	"Gin_postgres_redis_lab_stock/stock"

	"github.com/gin-gonic/gin"
)

type BorrowController struct{ *Srv }

func NewBorrowController(s *Srv) *BorrowController { return &BorrowController{Srv: s} }

// 提交申请（不占库存，批准时才扣）
func (bc *BorrowController) SubmitRequest(c *gin.Context) {
	userID, _, ok := caller(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, app.H{"error": "unauthorized"})
		return
	}
	var in struct {
		ComponentID string     `json:"componentId" binding:"required"`
		Quantity    int        `json:"quantity" binding:"required"`
		DueAt       *time.Time `json:"dueAt"`
		Purpose     string     `json:"purpose"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, app.H{"error": err.Error()})
		return
	}
	req, err := bc.Engine.SubmitRequest(c.Request.Context(), stock.SubmitInput{
		RequesterID: userID,
		ComponentID: in.ComponentID,
		Quantity:    in.Quantity,
		DueAt:       in.DueAt,
		Purpose:     in.Purpose,
	})
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusCreated, req)
}

// 取消：本人或管理员，且必须还在 pending
func (bc *BorrowController) CancelRequest(c *gin.Context) {
	userID, isAdmin, ok := caller(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, app.H{"error": "unauthorized"})
		return
	}
	if err := bc.Engine.CancelRequest(c.Request.Context(), c.Param("id"), userID, isAdmin); err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true})
}

// 审批（仅管理员路由挂载）
func (bc *BorrowController) DecideRequest(c *gin.Context) {
	userID, _, ok := caller(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, app.H{"error": "unauthorized"})
		return
	}
	var in struct {
		Decision    string     `json:"decision" binding:"required,oneof=approve reject"`
		ApprovedQty int        `json:"approvedQty"` // 0 = 按申请数量
		DueAt       *time.Time `json:"dueAt"`
		Note        string     `json:"note"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, app.H{"error": err.Error()})
		return
	}
	req, loan, err := bc.Engine.DecideRequest(c.Request.Context(), stock.DecideInput{
		RequestID:   c.Param("id"),
		Decision:    stock.Decision(in.Decision),
		ApproverID:  userID,
		ApprovedQty: in.ApprovedQty,
		DueAt:       in.DueAt,
		Note:        in.Note,
	})
	if err != nil {
		writeEngineError(c, err)
		return
	}
	out := app.H{"request": req}
	if loan != nil {
		out["loan"] = loan
	}
	c.JSON(http.StatusOK, out)
}

// 归还
func (bc *BorrowController) ReturnLoan(c *gin.Context) {
	userID, isAdmin, ok := caller(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, app.H{"error": "unauthorized"})
		return
	}
	loan, err := bc.Engine.ReturnLoan(c.Request.Context(), c.Param("id"), userID, isAdmin)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, loan)
}

// 自己的申请列表
func (bc *BorrowController) ListMyRequests(c *gin.Context) {
	userID, _, ok := caller(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, app.H{"error": "unauthorized"})
		return
	}
	q := db.RequestsQuery{
		RequesterID: userID,
		Status:      c.Query("status"),
	}
	q.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	q.Size, _ = strconv.Atoi(c.DefaultQuery("size", "20"))

	res, err := bc.Repo.ListRequests(c.Request.Context(), q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, app.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, app.H{"total": res.Total, "items": res.Items})
}

// 管理员：全部申请 ?status=&userId=&componentId=
func (bc *BorrowController) ListRequestsAdmin(c *gin.Context) {
	q := db.RequestsQuery{
		RequesterID: c.Query("userId"),
		ComponentID: c.Query("componentId"),
		Status:      c.Query("status"),
	}
	q.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	q.Size, _ = strconv.Atoi(c.DefaultQuery("size", "20"))

	res, err := bc.Repo.ListRequests(c.Request.Context(), q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, app.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, app.H{"total": res.Total, "items": res.Items})
}

// 普通用户：自己手上的在借记录
func (bc *BorrowController) ListMyOpenLoans(c *gin.Context) {
	userID, _, ok := caller(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, app.H{"error": "unauthorized"})
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))

	res, err := bc.Repo.ListMyOpenLoans(c.Request.Context(), userID, page, size)
	if err != nil {
		c.JSON(http.StatusInternalServerError, app.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, app.H{"total": res.Total, "items": res.Items})
}

// 管理员：借还记录 ?status=active|returned|overdue&userId=&componentId=
func (bc *BorrowController) ListLoansAdmin(c *gin.Context) {
	q := db.LoansQuery{
		BorrowerID:  c.Query("userId"),
		ComponentID: c.Query("componentId"),
		Status:      c.Query("status"),
	}
	q.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	q.Size, _ = strconv.Atoi(c.DefaultQuery("size", "20"))

	res, err := bc.Repo.ListLoans(c.Request.Context(), q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, app.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, app.H{"total": res.Total, "items": res.Items})
}

type AdminDirectLoanReq struct {
	ComponentID string     `json:"componentId" binding:"required"`
	Username    string     `json:"username" binding:"required"`
	Quantity    int        `json:"quantity" binding:"required,gt=0"`
	DueAt       *time.Time `json:"dueAt,omitempty"`
	Note        string     `json:"note,omitempty"`
}

// 管理员当面直接借出：内部走“隐式申请 + 立即批准”，和审批同一条路径
func (bc *BorrowController) AdminDirectLoan(c *gin.Context) {
	adminID, _, ok := caller(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, app.H{"error": "unauthorized"})
		return
	}
	var req AdminDirectLoanReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, app.H{"error": "invalid request: " + err.Error()})
		return
	}

	// 先用 username 查 userId
	user, err := bc.Repo.FindUserByUsername(c.Request.Context(), req.Username)
	if err != nil {
		c.JSON(http.StatusNotFound, app.H{"error": "user not found"})
		return
	}

	loan, err := bc.Engine.RecordDirectLoan(c.Request.Context(), stock.DirectLoanInput{
		AdminID:     adminID,
		BorrowerID:  user.ID,
		ComponentID: req.ComponentID,
		Quantity:    req.Quantity,
		DueAt:       req.DueAt,
		Note:        req.Note,
	})
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusCreated, loan)
}
