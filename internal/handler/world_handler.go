package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"Pixel_Canvas/internal/service"
)

type WorldHandler struct {
	svc *service.WorldService
}

func NewWorldHandler(svc *service.WorldService) *WorldHandler {
	return &WorldHandler{svc: svc}
}

type createWorldReq struct {
	Name    string   `json:"name" binding:"required"`
	Default bool     `json:"default"`
	Palette []string `json:"palette" binding:"required"`
}

func (h *WorldHandler) List(c *gin.Context) {
	list, err := h.svc.ListWorlds(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]gin.H, 0, len(list))
	for _, w := range list {
		out = append(out, gin.H{"id": w.ID, "name": w.Name, "default": w.IsDefault})
	}
	c.JSON(http.StatusOK, gin.H{"list": out})
}

// Palette 按索引升序返回
func (h *WorldHandler) Palette(c *gin.Context) {
	ctx := c.Request.Context()
	w, err := h.svc.FindWorld(ctx, c.Param("world"))
	if err != nil {
		writeError(c, err)
		return
	}
	p, err := h.svc.Palette(ctx, w.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	colors := make([]colorResp, 0, p.Len())
	for _, pc := range p.Colors() {
		colors = append(colors, colorResp{PaletteIndex: pc.PaletteIndex, Color: pc.Hex})
	}
	c.JSON(http.StatusOK, gin.H{"world": w.Name, "colors": colors})
}

// Create 管理员建世界
func (h *WorldHandler) Create(c *gin.Context) {
	var req createWorldReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid params")
		return
	}
	w, err := h.svc.CreateWorld(c.Request.Context(), req.Name, req.Default, req.Palette)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": w.ID, "name": w.Name, "default": w.IsDefault})
}

// Delete 级联删除画布和调色板
func (h *WorldHandler) Delete(c *gin.Context) {
	if err := h.svc.DeleteWorld(c.Request.Context(), c.Param("world")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"msg": "deleted"})
}
