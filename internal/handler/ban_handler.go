package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"Pixel_Canvas/internal/middleware"
	"Pixel_Canvas/internal/service"
)

type BanHandler struct {
	svc *service.ModerationService
	now service.Clock
}

func NewBanHandler(svc *service.ModerationService, now service.Clock) *BanHandler {
	if now == nil {
		now = time.Now
	}
	return &BanHandler{svc: svc, now: now}
}

type banReq struct {
	UserID uint64 `json:"user_id" binding:"required"`
	Reason string `json:"reason" binding:"max=512"`
	// DurationSeconds 为 0 表示永久，上限十年，防止换算成 time.Duration 时溢出
	DurationSeconds int64 `json:"duration_seconds" binding:"min=0,max=315360000"`
}

func (h *BanHandler) Ban(c *gin.Context) {
	var req banReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid params")
		return
	}
	now := h.now()
	var expiresAt *time.Time
	if req.DurationSeconds != 0 {
		t := now.Add(time.Duration(req.DurationSeconds) * time.Second)
		expiresAt = &t
	}
	ban, err := h.svc.Ban(c.Request.Context(), req.UserID, middleware.UserID(c), req.Reason, expiresAt, now)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ban)
}

func (h *BanHandler) Unban(c *gin.Context) {
	target, err := strconv.ParseUint(c.Param("user"), 10, 64)
	if err != nil || target == 0 {
		badRequest(c, "invalid user id")
		return
	}
	if err = h.svc.Unban(c.Request.Context(), target, middleware.UserID(c), h.now()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"msg": "unbanned"})
}

func (h *BanHandler) List(c *gin.Context) {
	list, err := h.svc.ActiveBans(c.Request.Context(), middleware.UserID(c), h.now())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"list": list})
}
