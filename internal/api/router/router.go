package router

import (
	"follow-go/internal/api/handler"
	"follow-go/internal/api/middleware"

	"github.com/gin-gonic/gin"
)

// Setup 注册所有业务路由
func Setup(
	r *gin.Engine,
	followHandler *handler.FollowHandler,
	reconcileHandler *handler.ReconcileHandler,
) {
	v1 := r.Group("/api/v1")

	// --- 关注模块 ---
	follows := v1.Group("/follows", middleware.AuthRequired())
	{
		follows.POST("/:id", followHandler.Follow)
		follows.DELETE("/:id", followHandler.Unfollow)
		follows.GET("/:id/status", followHandler.GetFollowStatus)
	}

	// --- 对账管理 ---
	admin := v1.Group("/admin", middleware.AuthRequired(), middleware.AdminRequired())
	{
		admin.GET("/reconcile", reconcileHandler.ListSteps)
		admin.POST("/reconcile/:step", reconcileHandler.RunStep)
	}
}
