// controllers/auth_controller.go
package controllers

import (
	"net/http"
	"time"

	"Gin_postgres_redis_lab_stock/app"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type AuthController struct{ *Srv }

func NewAuthController(s *Srv) *AuthController { return &AuthController{Srv: s} }

// POST /auth/redeem {token}
// 兑换一次性邀请令牌 → 建用户（不存在时）→ 发会话 Cookie。
// 密码/通行密钥之类的认证机制不在这个服务里，身份由令牌签发方背书
func (ac *AuthController) Redeem(c *gin.Context) {
	var in struct {
		Token string `json:"token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, app.H{"error": err.Error()})
		return
	}

	inv, err := ac.Repo.GetInviteByToken(c.Request.Context(), in.Token)
	if err != nil {
		c.JSON(http.StatusNotFound, app.H{"error": "invalid token"})
		return
	}
	if inv.UsedAt != nil || time.Now().After(inv.ExpiresAt) {
		c.JSON(http.StatusConflict, app.H{"error": "token used or expired"})
		return
	}

	u, err := ac.Repo.FindOrCreateUser(c.Request.Context(), inv.Email, uuid.NewString())
	if err != nil {
		c.JSON(http.StatusInternalServerError, app.H{"error": err.Error()})
		return
	}

	// 条件更新保证只兑换一次；输掉的请求拿 409
	if err := ac.Repo.MarkInviteUsed(c.Request.Context(), in.Token); err != nil {
		c.JSON(http.StatusConflict, app.H{"error": err.Error()})
		return
	}

	// bootstrap 邀请 → 第一位管理员
	if inv.CreatedBy == "bootstrap" {
		if err := ac.Repo.SetUserAdmin(c.Request.Context(), u.ID, true); err != nil {
			c.JSON(http.StatusInternalServerError, app.H{"error": err.Error()})
			return
		}
	}

	if err := ac.issueSession(c.Request.Context(), c.Writer, u.ID, c.ClientIP(), c.Request.UserAgent()); err != nil {
		c.JSON(http.StatusInternalServerError, app.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true, "user": u})
}

// GET /auth/whoami
func (ac *AuthController) WhoAmI(c *gin.Context) {
	userID, isAdmin, ok := caller(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, app.H{"error": "unauthorized"})
		return
	}
	v, _ := c.Get("username")
	username, _ := v.(string)
	c.JSON(http.StatusOK, app.H{
		"userID":   userID,
		"username": username,
		"isAdmin":  isAdmin,
	})
}

// POST /auth/logout：删 Redis 会话，Cookie 置空
func (ac *AuthController) Logout(c *gin.Context) {
	if ck, err := c.Request.Cookie(app.AppSessionCookie); err == nil && ck.Value != "" {
		_ = ac.AppSess.Delete(c.Request.Context(), ck.Value)
	}
	ac.setAppCookie(c.Writer, "", -time.Second)
	c.JSON(http.StatusOK, app.H{"ok": true})
}
