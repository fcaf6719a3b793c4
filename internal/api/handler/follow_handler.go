package handler

import (
	"context"
	"errors"

	"follow-go/internal/api/dto"
	"follow-go/internal/api/middleware"
	"follow-go/internal/api/response"
	"follow-go/internal/service"
	"follow-go/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FollowUseCase 关注业务，由 service.FollowService 实现
type FollowUseCase interface {
	Follow(ctx context.Context, followerID, followeeID uuid.UUID) (*dto.FollowResult, error)
	Unfollow(ctx context.Context, followerID, followeeID uuid.UUID) (*dto.FollowResult, error)
	GetFollowStatus(ctx context.Context, followerID, followeeID uuid.UUID) (*dto.FollowStatusData, error)
}

type FollowHandler struct {
	followService FollowUseCase
}

func NewFollowHandler(followService FollowUseCase) *FollowHandler {
	return &FollowHandler{followService: followService}
}

// Follow 关注用户。关系立即生效（PENDING），粉丝数异步更新
// @Summary 关注用户
// @Description 关注指定用户，关系立即记为 PENDING，粉丝数异步更新
// @Tags 关注
// @Produce json
// @Security BearerAuth
// @Param id path string true "被关注用户ID (uuid)"
// @Success 201 {object} response.Response "关注成功"
// @Failure 400 {object} response.ErrorResponse "不能关注自己/已关注"
// @Failure 404 {object} response.ErrorResponse "用户不存在"
// @Failure 409 {object} response.ErrorResponse "取消关注处理中"
// @Router /follows/{id} [post]
func (h *FollowHandler) Follow(c *gin.Context) {
	currentUserID, _ := middleware.GetCurrentUserID(c)
	targetID, err := parseIDParam(c)
	if err != nil {
		response.BadRequest(c, "无效的用户ID")
		return
	}

	result, err := h.followService.Follow(c.Request.Context(), currentUserID, targetID)
	if err != nil {
		handleFollowError(c, err)
		return
	}

	response.Created(c, "关注成功", result)
}

// Unfollow 取消关注
// @Summary 取消关注
// @Description 取消关注指定用户，关系记为 CANCELLED，粉丝数异步扣减
// @Tags 关注
// @Produce json
// @Security BearerAuth
// @Param id path string true "被取消关注用户ID (uuid)"
// @Success 200 {object} response.Response "取消关注成功"
// @Failure 400 {object} response.ErrorResponse "未关注该用户"
// @Router /follows/{id} [delete]
func (h *FollowHandler) Unfollow(c *gin.Context) {
	currentUserID, _ := middleware.GetCurrentUserID(c)
	targetID, err := parseIDParam(c)
	if err != nil {
		response.BadRequest(c, "无效的用户ID")
		return
	}

	result, err := h.followService.Unfollow(c.Request.Context(), currentUserID, targetID)
	if err != nil {
		handleFollowError(c, err)
		return
	}

	response.OK(c, "取消关注成功", result)
}

// GetFollowStatus 查询当前用户是否关注了目标用户
// @Summary 查询关注状态
// @Description 查询当前用户对目标用户的关注状态，PENDING 与 CONFIRM 都算已关注
// @Tags 关注
// @Produce json
// @Security BearerAuth
// @Param id path string true "目标用户ID (uuid)"
// @Success 200 {object} response.Response "查询成功"
// @Failure 400 {object} response.ErrorResponse "无效的用户ID"
// @Router /follows/{id}/status [get]
func (h *FollowHandler) GetFollowStatus(c *gin.Context) {
	currentUserID, _ := middleware.GetCurrentUserID(c)
	targetID, err := parseIDParam(c)
	if err != nil {
		response.BadRequest(c, "无效的用户ID")
		return
	}

	data, err := h.followService.GetFollowStatus(c.Request.Context(), currentUserID, targetID)
	if err != nil {
		handleFollowError(c, err)
		return
	}

	response.OK(c, "查询关注状态成功", data)
}

func parseIDParam(c *gin.Context) (uuid.UUID, error) {
	return uuid.Parse(c.Param("id"))
}

func handleFollowError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrCannotFollowSelf),
		errors.Is(err, service.ErrAlreadyFollowed),
		errors.Is(err, service.ErrNotFollowed):
		response.BadRequest(c, err.Error())
	case errors.Is(err, service.ErrUnfollowInProgress):
		response.Conflict(c, err.Error())
	case errors.Is(err, service.ErrUserNotFound):
		response.NotFound(c, err.Error())
	default:
		logger.Error("Follow operation failed", zap.Error(err))
		response.InternalError(c, "操作失败，请稍后重试")
	}
}
