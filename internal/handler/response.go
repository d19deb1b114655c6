package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"Pixel_Canvas/internal/model"
	"Pixel_Canvas/internal/service"
)

// writeError 把服务层错误映射成 HTTP 状态和 code，code 对应失败的环节
func writeError(c *gin.Context, err error) {
	_ = c.Error(err)
	body := gin.H{"msg": err.Error()}
	status := http.StatusInternalServerError
	code := "internal"

	var banned *service.BannedError
	var insufficient *service.InsufficientChargeError
	switch {
	case errors.As(err, &banned):
		status, code = http.StatusForbidden, "banned"
		body["reason"] = banned.Reason
		if banned.ExpiresAt != nil {
			body["expires_at"] = banned.ExpiresAt.UTC().Format(time.RFC3339)
		}
	case errors.Is(err, service.ErrBanned):
		status, code = http.StatusForbidden, "banned"
	case errors.Is(err, service.ErrWorldNotFound), errors.Is(err, service.ErrNoDefaultWorld):
		status, code = http.StatusNotFound, "world_not_found"
	case errors.Is(err, service.ErrUnknownColor):
		status, code = http.StatusBadRequest, "unknown_color"
	case errors.As(err, &insufficient):
		status, code = http.StatusTooManyRequests, "insufficient_charge"
		body["available"] = insufficient.Available
		if insufficient.NextRegenAt != nil {
			body["next_regen_at"] = insufficient.NextRegenAt.UTC().Format(time.RFC3339Nano)
			if wait := time.Until(*insufficient.NextRegenAt); wait > 0 {
				c.Header("Retry-After", formatSeconds(wait))
			}
		}
	case errors.Is(err, service.ErrStorageUnavailable):
		status, code = http.StatusServiceUnavailable, "storage_unavailable"
		body["retryable"] = true
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status, code = http.StatusRequestTimeout, "cancelled"
	case errors.Is(err, service.ErrLastWorld):
		status, code = http.StatusConflict, "last_world"
	case errors.Is(err, service.ErrInvalidBatch):
		status, code = http.StatusBadRequest, "invalid_batch"
	case errors.Is(err, service.ErrWorldExists):
		status, code = http.StatusConflict, "world_exists"
	case errors.Is(err, service.ErrInvalidWorldName):
		status, code = http.StatusBadRequest, "invalid_world_name"
	case errors.Is(err, service.ErrEmptyPalette),
		errors.Is(err, model.ErrInvalidHex),
		errors.Is(err, model.ErrPaletteIndexRange),
		errors.Is(err, model.ErrPaletteIndexRepeats):
		status, code = http.StatusBadRequest, "invalid_palette"
	case errors.Is(err, service.ErrForbidden):
		status, code = http.StatusForbidden, "forbidden"
	case errors.Is(err, service.ErrCannotBanAdmin):
		status, code = http.StatusConflict, "cannot_ban_admin"
	case errors.Is(err, service.ErrAlreadyBanned):
		status, code = http.StatusConflict, "already_banned"
	case errors.Is(err, service.ErrBanNotFound):
		status, code = http.StatusNotFound, "ban_not_found"
	case errors.Is(err, service.ErrInvalidDuration):
		status, code = http.StatusBadRequest, "invalid_duration"
	}
	body["code"] = code

	var pe *service.PlacementError
	if errors.As(err, &pe) {
		body["state"] = pe.State.String()
		body["gate"] = string(pe.Gate)
		body["retryable"] = pe.Retryable()
	}
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"code": "invalid_params", "msg": msg})
}

func formatSeconds(d time.Duration) string {
	secs := int64((d + time.Second - 1) / time.Second)
	return strconv.FormatInt(secs, 10)
}
