package routes

import (
	"Gin_postgres_redis_lab_stock/app"
	"Gin_postgres_redis_lab_stock/controllers"
	"time"

	"github.com/gin-gonic/gin"
)

func RegisterRoutes(r *gin.Engine, a *app.App) {
	// 控制器与依赖
	s := controllers.GetSrv(a)
	authCtl := controllers.NewAuthController(s)
	userCtl := controllers.NewUserController(s)
	compCtl := controllers.NewComponentController(s)
	borrowCtl := controllers.NewBorrowController(s)
	inviteCtl := controllers.NewInviteController(s)

	// 复用的中间件
	authMW := app.AuthRequired(s.AppSess, s.Repo, a.Config)
	adminMW := app.AdminOnly()
	seenMW := app.TouchLastSeen(s.Repo, a.RDB, 5*time.Minute)

	// ------------------------------
	// 会话（公开 + 受保护）
	// ------------------------------
	auth := r.Group("/auth")
	{
		auth.POST("/redeem", authCtl.Redeem)
	}
	authed := auth.Group("", authMW, seenMW)
	{
		authed.GET("/whoami", authCtl.WhoAmI)
		authed.POST("/logout", authCtl.Logout)
	}

	// ------------------------------
	// 邀请（仅管理员）
	// ------------------------------
	admin := r.Group("/admin", authMW, adminMW)
	{
		admin.POST("/invites", inviteCtl.CreateInvite)
	}

	// ------------------------------
	// 用户管理（仅管理员）
	// ------------------------------
	users := r.Group("/api/users", authMW, adminMW)
	{
		users.GET("", userCtl.ListUsers) // ?q=&page=&size=
		users.GET("/:id", userCtl.GetUser)
		users.PATCH("/:id/admin", userCtl.SetAdmin)
		users.DELETE("/:id", userCtl.DeleteUser)
	}

	// ------------------------------
	// 元件：浏览 + 库存查询
	// ------------------------------
	comps := r.Group("/api/components", authMW, seenMW)
	{
		comps.GET("", compCtl.ListComponents)
		comps.GET("/:id/availability", compCtl.GetAvailability)
	}
	// 管理：登记 / 进货 / 审计 / 对账 / 管理列表
	compsAdmin := r.Group("/api/components", authMW, adminMW)
	{
		compsAdmin.POST("", compCtl.CreateComponent)
		compsAdmin.POST("/:id/restock", compCtl.Restock)
		compsAdmin.GET("/:id/audit", compCtl.ListAudit)
		compsAdmin.GET("/:id/reconcile", compCtl.Reconcile)
	}

	// ------------------------------
	// 借用申请
	// ------------------------------
	reqs := r.Group("/api/requests", authMW, seenMW)
	{
		reqs.POST("", borrowCtl.SubmitRequest)
		reqs.GET("", borrowCtl.ListMyRequests) // ?status=&page=&size=
		reqs.POST("/:id/cancel", borrowCtl.CancelRequest)
	}
	reqsAdmin := r.Group("/api/requests", authMW, adminMW)
	{
		reqsAdmin.POST("/:id/decide", borrowCtl.DecideRequest)
	}

	// ------------------------------
	// 借出 / 归还
	// ------------------------------
	loans := r.Group("/api/loans", authMW, seenMW)
	{
		loans.GET("/mine", borrowCtl.ListMyOpenLoans)
		loans.POST("/:id/return", borrowCtl.ReturnLoan)
	}

	// 管理面板
	adminAPI := r.Group("/api/admin", authMW, adminMW)
	{
		adminAPI.GET("/components", compCtl.ListComponentsAdmin) // ?q=&status=&page=&size=
		adminAPI.GET("/requests", borrowCtl.ListRequestsAdmin)
		adminAPI.GET("/loans", borrowCtl.ListLoansAdmin)
		adminAPI.POST("/loans", borrowCtl.AdminDirectLoan) // 当面直接借出
	}
}
