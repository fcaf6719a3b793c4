package handler

import (
	"context"
	"errors"

	"follow-go/internal/api/response"
	"follow-go/internal/service"
	"follow-go/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// StepRunner 同步执行一次对账步骤
type StepRunner interface {
	Steps() []string
	RunStep(ctx context.Context, step string) (*service.StepReport, error)
}

type ReconcileHandler struct {
	runner StepRunner
}

func NewReconcileHandler(runner StepRunner) *ReconcileHandler {
	return &ReconcileHandler{runner: runner}
}

// ListSteps 列出可手动触发的对账步骤
// @Summary 对账步骤列表
// @Tags 对账管理
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response "获取成功"
// @Failure 403 {object} response.ErrorResponse "需要管理员权限"
// @Router /admin/reconcile [get]
func (h *ReconcileHandler) ListSteps(c *gin.Context) {
	response.OK(c, "获取对账步骤成功", gin.H{"steps": h.runner.Steps()})
}

// RunStep 管理员手动触发一次对账，返回本次统计
// @Summary 手动执行对账
// @Description 同步执行一个对账步骤并返回统计结果
// @Tags 对账管理
// @Produce json
// @Security BearerAuth
// @Param step path string true "步骤名" Enums(pending-increase, cancelled-decrease, failed-cleanup)
// @Success 200 {object} response.Response "对账完成"
// @Failure 403 {object} response.ErrorResponse "需要管理员权限"
// @Failure 404 {object} response.ErrorResponse "未知的对账步骤"
// @Failure 409 {object} response.ErrorResponse "该步骤正在其他实例执行"
// @Failure 500 {object} response.ErrorResponse "对账执行失败"
// @Router /admin/reconcile/{step} [post]
func (h *ReconcileHandler) RunStep(c *gin.Context) {
	step := c.Param("step")

	report, err := h.runner.RunStep(c.Request.Context(), step)
	switch {
	case errors.Is(err, service.ErrUnknownStep):
		response.NotFound(c, "未知的对账步骤: "+step)
	case errors.Is(err, service.ErrStepBusy):
		response.Conflict(c, "该对账步骤正在其他实例执行")
	case err != nil:
		logger.Error("Manual reconcile failed", zap.String("step", step), zap.Error(err))
		response.InternalError(c, "对账执行失败")
	default:
		response.OK(c, "对账完成", report)
	}
}
