// controllers/component_controller.go
package controllers

import (
	"net/http"
	"strconv"

	"Gin_postgres_redis_lab_stock/app"
	"Gin_postgres_redis_lab_stock/db"
	"Gin_postgres_redis_lab_stock/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type ComponentController struct{ *Srv }

func NewComponentController(s *Srv) *ComponentController { return &ComponentController{Srv: s} }

// 管理员登记新元件；available 初始 = quantity
func (cc *ComponentController) CreateComponent(c *gin.Context) {
	var in struct {
		Name      string `json:"name" binding:"required"`
		Category  string `json:"category"`
		Quantity  int    `json:"quantity" binding:"required,gt=0"`
		Threshold int    `json:"threshold" binding:"gte=0"`
		Condition string `json:"condition"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, app.H{"error": err.Error()})
		return
	}
	if in.Condition == "" {
		in.Condition = "good"
	}
	comp := &models.Component{
		ID:        uuid.NewString(),
		Name:      in.Name,
		Category:  in.Category,
		Quantity:  in.Quantity,
		Available: in.Quantity,
		Threshold: in.Threshold,
		Condition: in.Condition,
	}
	if err := cc.Repo.CreateComponent(c.Request.Context(), comp); err != nil {
		c.JSON(http.StatusInternalServerError, app.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, comp)
}

// 列表（所有登录用户可看）
func (cc *ComponentController) ListComponents(c *gin.Context) {
	items, err := cc.Repo.ListComponents(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, app.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, app.H{"items": items})
}

// 管理列表：带在借汇总 + 逾期标记
func (cc *ComponentController) ListComponentsAdmin(c *gin.Context) {
	q := db.AdminComponentsQuery{
		Q:      c.Query("q"),
		Status: c.Query("status"), // "", "low", "out"
	}
	q.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	q.Size, _ = strconv.Atoi(c.DefaultQuery("size", "20"))

	res, err := cc.Repo.ListComponentsWithLoans(c.Request.Context(), q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, app.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true, "total": res.Total, "items": res.Items})
}

// 当前库存：available / quantity / threshold
func (cc *ComponentController) GetAvailability(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, app.H{"error": "missing component id"})
		return
	}
	comp, err := cc.Engine.GetAvailability(c.Request.Context(), id)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{
		"componentId": comp.ID,
		"available":   comp.Available,
		"quantity":    comp.Quantity,
		"threshold":   comp.Threshold,
		"lowStock":    comp.LowStock(),
	})
}

// 进货
func (cc *ComponentController) Restock(c *gin.Context) {
	id := c.Param("id")
	var in struct {
		Quantity int `json:"quantity" binding:"required,gt=0"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, app.H{"error": err.Error()})
		return
	}
	userID, _, ok := caller(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, app.H{"error": "unauthorized"})
		return
	}
	comp, err := cc.Engine.Restock(c.Request.Context(), id, userID, in.Quantity)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, comp)
}

// 审计流水（只读）
func (cc *ComponentController) ListAudit(c *gin.Context) {
	id := c.Param("id")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "50"))

	res, err := cc.Repo.ListAudit(c.Request.Context(), id, page, size)
	if err != nil {
		c.JSON(http.StatusInternalServerError, app.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, app.H{"total": res.Total, "items": res.Items})
}

// 对账：quantity - available 对 在借之和
func (cc *ComponentController) Reconcile(c *gin.Context) {
	id := c.Param("id")
	rec, err := cc.Repo.ReconcileComponent(c.Request.Context(), id)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}
