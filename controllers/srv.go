// controllers/srv.go
package controllers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"Gin_postgres_redis_lab_stock/app"
	"Gin_postgres_redis_lab_stock/db"
	"Gin_postgres_redis_lab_stock/session"
	"Gin_postgres_redis_lab_stock/stock"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Srv struct {
	Repo      *db.Repo
	Engine    *stock.Engine
	AppSess   *session.AppSessionStore
	WebOrigin string
	Cfg       app.Config
}

func GetSrv(a *app.App) *Srv {
	repo := db.NewRepo(a.DB)
	return &Srv{
		Repo:      repo,
		Engine:    stock.NewEngine(repo),
		AppSess:   a.AppSessions(),
		WebOrigin: a.Config.WebOrigin,
		Cfg:       a.Config,
	}
}

// --- helpers ---

// 统一设置业务会话 Cookie
func (s *Srv) setAppCookie(w http.ResponseWriter, sessionID string, maxAge time.Duration) {
	secure := strings.HasPrefix(s.WebOrigin, "https://")
	http.SetCookie(w, &http.Cookie{
		Name:     app.AppSessionCookie,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   secure,
		MaxAge:   int(maxAge / time.Second),
	})
}

// 登录成功：创建会话 + 触发登录快照
func (s *Srv) issueSession(ctx context.Context, w http.ResponseWriter, userID string, ip, ua string) error {
	_ = s.Repo.TouchUserLogin(ctx, userID, ip, ua) // 失败不阻塞登录
	id := uuid.NewString()
	if err := s.AppSess.Create(ctx, id, userID); err != nil {
		return err
	}
	s.setAppCookie(w, id, s.Cfg.SessionTTL)
	return nil
}

// 中间件放进 Context 的身份
func caller(c *gin.Context) (userID string, isAdmin bool, ok bool) {
	v, ok := c.Get("userID")
	if !ok {
		return "", false, false
	}
	userID, _ = v.(string)
	if a, found := c.Get("isAdmin"); found {
		isAdmin, _ = a.(bool)
	}
	return userID, isAdmin, userID != ""
}

// 引擎错误 → HTTP 状态码。业务结论给 4xx，其它一律当基础设施故障
func writeEngineError(c *gin.Context, err error) {
	var ise *stock.InsufficientStockError
	switch {
	case errors.As(err, &ise):
		c.JSON(http.StatusConflict, app.H{
			"error":     "insufficient stock",
			"available": ise.Available,
			"requested": ise.Requested,
		})
	case errors.Is(err, stock.ErrValidation):
		c.JSON(http.StatusBadRequest, app.H{"error": err.Error()})
	case errors.Is(err, stock.ErrNotFound):
		c.JSON(http.StatusNotFound, app.H{"error": "not found"})
	case errors.Is(err, stock.ErrForbidden):
		c.JSON(http.StatusForbidden, app.H{"error": "forbidden"})
	case errors.Is(err, stock.ErrAlreadyDecided),
		errors.Is(err, stock.ErrAlreadyReturned),
		errors.Is(err, stock.ErrNotPending):
		c.JSON(http.StatusConflict, app.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, app.H{"error": err.Error()})
	}
}
