package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"Pixel_Canvas/internal/middleware"
	"Pixel_Canvas/internal/model"
	"Pixel_Canvas/internal/service"
)

type CanvasHandler struct {
	placement *service.PlacementService
	canvas    *service.CanvasService
}

func NewCanvasHandler(placement *service.PlacementService, canvas *service.CanvasService) *CanvasHandler {
	return &CanvasHandler{placement: placement, canvas: canvas}
}

type placeReq struct {
	X            *int64 `json:"x" binding:"required"`
	Y            *int64 `json:"y" binding:"required"`
	PaletteIndex *int   `json:"palette_index" binding:"required"`
}

type colorResp struct {
	PaletteIndex uint8  `json:"palette_index"`
	Color        string `json:"color"`
}

type previousResp struct {
	PaletteIndex uint8     `json:"palette_index"`
	Color        string    `json:"color,omitempty"`
	AuthorID     uint64    `json:"author_id"`
	PlacedAt     time.Time `json:"placed_at"`
}

type placeResp struct {
	World       string        `json:"world"`
	X           int64         `json:"x"`
	Y           int64         `json:"y"`
	Color       colorResp     `json:"color"`
	Previous    *previousResp `json:"previous"`
	AuthorID    uint64        `json:"author_id"`
	PlacedAt    time.Time     `json:"placed_at"`
	Version     uint64        `json:"version"`
	ChargesLeft *int          `json:"charges_left"`
}

type batchReq struct {
	Pixels []placeReq `json:"pixels" binding:"required,min=1,max=1000,dive"`
}

// Place 落子接口
func (h *CanvasHandler) Place(c *gin.Context) {
	var req placeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid params")
		return
	}

	res, err := h.placement.Place(c.Request.Context(), service.PlacementRequest{
		World:        c.Param("world"),
		X:            *req.X,
		Y:            *req.Y,
		PaletteIndex: *req.PaletteIndex,
		UserID:       middleware.UserID(c),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	resp := toPlaceResp(res)
	if res.ChargesLeft >= 0 {
		left := res.ChargesLeft
		resp.ChargesLeft = &left
	}
	c.JSON(http.StatusOK, resp)
}

// PlaceBatch 批量落子，charge 一次性按像素数预留；中途写失败时已写入的像素照样返回
func (h *CanvasHandler) PlaceBatch(c *gin.Context) {
	var req batchReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid params")
		return
	}
	pixels := make([]service.PixelWrite, len(req.Pixels))
	for i, p := range req.Pixels {
		pixels[i] = service.PixelWrite{X: *p.X, Y: *p.Y, PaletteIndex: *p.PaletteIndex}
	}

	res, err := h.placement.PlaceBatch(c.Request.Context(), service.BatchRequest{
		World:  c.Param("world"),
		UserID: middleware.UserID(c),
		Pixels: pixels,
	})
	if err != nil && res == nil {
		writeError(c, err)
		return
	}

	placed := make([]placeResp, len(res.Placed))
	for i := range res.Placed {
		placed[i] = toPlaceResp(&res.Placed[i])
	}
	body := gin.H{"world": res.World.Name, "placed": placed, "count": len(placed), "charges_left": nil}
	if res.ChargesLeft >= 0 {
		body["charges_left"] = res.ChargesLeft
	}
	if err != nil {
		body["code"] = "storage_unavailable"
		body["msg"] = err.Error()
		body["retryable"] = true
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	c.JSON(http.StatusOK, body)
}

func toPlaceResp(res *service.PlacementResult) placeResp {
	resp := placeResp{
		World:    res.World.Name,
		X:        res.X,
		Y:        res.Y,
		Color:    colorResp{PaletteIndex: res.Color.PaletteIndex, Color: res.Color.Hex},
		AuthorID: res.AuthorID,
		PlacedAt: res.PlacedAt,
		Version:  res.Version,
	}
	if res.Previous != nil {
		resp.Previous = &previousResp{
			PaletteIndex: res.Previous.PaletteIndex,
			AuthorID:     res.Previous.AuthorID,
			PlacedAt:     res.Previous.PlacedAt,
		}
		if res.PreviousColor != nil {
			resp.Previous.Color = res.PreviousColor.Hex
		}
	}
	return resp
}

// GetPixel 像素详情，空白格返回 pixel=null
func (h *CanvasHandler) GetPixel(c *gin.Context) {
	x, err1 := strconv.ParseInt(c.Query("x"), 10, 64)
	y, err2 := strconv.ParseInt(c.Query("y"), 10, 64)
	if err1 != nil || err2 != nil {
		badRequest(c, "invalid x/y")
		return
	}
	px, err := h.canvas.Get(c.Request.Context(), c.Param("world"), x, y)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pixel": px})
}

// Snapshot 四个边界要么都给要么都不给；都不给返回整个世界
func (h *CanvasHandler) Snapshot(c *gin.Context) {
	rect := model.Unbounded
	keys := []string{"x0", "y0", "x1", "y1"}
	given := 0
	for _, k := range keys {
		if c.Query(k) != "" {
			given++
		}
	}
	switch given {
	case 0:
	case len(keys):
		var vals [4]int64
		for i, k := range keys {
			v, err := strconv.ParseInt(c.Query(k), 10, 64)
			if err != nil {
				badRequest(c, "invalid "+k)
				return
			}
			vals[i] = v
		}
		rect = model.Rect{
			MinX: min(vals[0], vals[2]),
			MinY: min(vals[1], vals[3]),
			MaxX: max(vals[0], vals[2]),
			MaxY: max(vals[1], vals[3]),
		}
	default:
		badRequest(c, "x0, y0, x1, y1 must be given together")
		return
	}

	w, pixels, err := h.canvas.Snapshot(c.Request.Context(), c.Param("world"), rect)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"world": w.Name, "pixels": pixels, "count": len(pixels)})
}

// Charges 当前可用 charge 和下一次恢复时间
func (h *CanvasHandler) Charges(c *gin.Context) {
	avail, next, err := h.placement.PeekCharges(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	resp := gin.H{"available": avail, "next_regen_at": nil}
	if next != nil {
		resp["next_regen_at"] = next.UTC().Format(time.RFC3339Nano)
	}
	c.JSON(http.StatusOK, resp)
}
