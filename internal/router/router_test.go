package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Pixel_Canvas/internal/model"
	"Pixel_Canvas/internal/pkg"
	"Pixel_Canvas/internal/repository/memory"
	"Pixel_Canvas/internal/router"
	"Pixel_Canvas/internal/service"
)

const (
	adminID = 1
	userID  = 42
)

type brokenCells struct {
	*memory.CellRepository
}

func (brokenCells) Swap(ctx context.Context, cell model.Cell) (*model.Cell, error) {
	return nil, errors.New("i/o timeout")
}

type app struct {
	engine  *gin.Engine
	charges *memory.ChargeRepository
	bans    *memory.BanRepository
}

func newApp(t *testing.T, cells service.CellStore) *app {
	t.Helper()
	gin.SetMode(gin.TestMode)
	pkg.SetAccessSecret("test-secret")

	log := zerolog.Nop()
	ctx := context.Background()
	if cells == nil {
		cells = memory.NewCellRepository()
	}
	a := &app{charges: memory.NewChargeRepository(), bans: memory.NewBanRepository()}
	roles := memory.NewRoleRepository()

	worlds := service.NewWorldService(memory.NewWorldRepository(), cells, log)
	require.NoError(t, worlds.SeedWorlds(ctx, []service.WorldSeed{{
		Name:    "main",
		Default: true,
		Palette: []string{"#FFFFFFFF", "#000000FF", "#FF0000FF", "#00FF00FF", "#0000FFFF", "#FFFF00FF"},
	}}))
	moderation := service.NewModerationService(a.bans, roles, log)
	require.NoError(t, moderation.AssignRole(ctx, adminID, model.RoleAdmin, 0))

	charges := service.NewChargeService(a.charges, model.DefaultChargePolicy(), log)
	canvas := service.NewCanvasService(cells, worlds)
	placement := service.NewPlacementService(moderation, worlds, charges, canvas, nil,
		service.PlacementOptions{StorageTimeout: time.Second}, time.Now, log)

	a.engine = router.InitRouter(router.Services{
		Worlds:     worlds,
		Canvas:     canvas,
		Placement:  placement,
		Moderation: moderation,
		Clock:      time.Now,
	}, log)
	return a
}

func token(t *testing.T, uid uint64) string {
	t.Helper()
	tok, err := pkg.GenerateAccess(uid, time.Minute)
	require.NoError(t, err)
	return tok
}

func (a *app) do(t *testing.T, method, path string, uid uint64, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if uid != 0 {
		req.Header.Set("Authorization", "Bearer "+token(t, uid))
	}
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)

	out := map[string]any{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w.Code, out
}

func TestPublicReads(t *testing.T) {
	a := newApp(t, nil)

	code, body := a.do(t, http.MethodGet, "/api/worlds", 0, nil)
	require.Equal(t, http.StatusOK, code)
	list := body["list"].([]any)
	require.Len(t, list, 1)
	assert.Equal(t, "main", list[0].(map[string]any)["name"])
	assert.Equal(t, true, list[0].(map[string]any)["default"])

	code, body = a.do(t, http.MethodGet, "/api/worlds/default/palette", 0, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "main", body["world"])
	assert.Len(t, body["colors"], 6)

	code, body = a.do(t, http.MethodGet, "/api/worlds/nowhere/palette", 0, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "world_not_found", body["code"])

	code, body = a.do(t, http.MethodGet, "/api/worlds/main/pixels?x=1&y=1", 0, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Nil(t, body["pixel"])

	code, _ = a.do(t, http.MethodGet, "/api/worlds/main/pixels?x=a&y=1", 0, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = a.do(t, http.MethodGet, "/api/worlds/main/snapshot?x0=0&y0=0", 0, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_params", body["code"])
}

func TestPlacePixel(t *testing.T) {
	a := newApp(t, nil)

	code, body := a.do(t, http.MethodPost, "/api/worlds/default/pixels", 0, map[string]any{"x": 10, "y": 10, "palette_index": 5})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "unauthorized", body["code"])

	code, body = a.do(t, http.MethodPost, "/api/worlds/default/pixels", userID, map[string]any{"x": 10, "y": 10, "palette_index": 5})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "main", body["world"])
	assert.Nil(t, body["previous"])
	assert.Equal(t, "#FFFF00FF", body["color"].(map[string]any)["color"])
	assert.EqualValues(t, 29, body["charges_left"])

	code, body = a.do(t, http.MethodPost, "/api/worlds/main/pixels", adminID, map[string]any{"x": 10, "y": 10, "palette_index": 0})
	require.Equal(t, http.StatusOK, code, body)
	prev := body["previous"].(map[string]any)
	assert.Equal(t, "#FFFF00FF", prev["color"])
	assert.EqualValues(t, userID, prev["author_id"])

	code, body = a.do(t, http.MethodGet, "/api/worlds/main/pixels?x=10&y=10", 0, nil)
	require.Equal(t, http.StatusOK, code)
	px := body["pixel"].(map[string]any)
	assert.Equal(t, "#FFFFFFFF", px["color"])
	assert.EqualValues(t, adminID, px["author_id"])

	code, body = a.do(t, http.MethodGet, "/api/worlds/main/snapshot?x0=0&y0=0&x1=20&y1=20", 0, nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["count"])

	code, body = a.do(t, http.MethodGet, "/api/charges", userID, nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 29, body["available"])
	assert.NotNil(t, body["next_regen_at"])

	code, _ = a.do(t, http.MethodPost, "/api/worlds/main/pixels", userID, map[string]any{"x": 1})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestPlacePixelRejections(t *testing.T) {
	a := newApp(t, nil)

	code, body := a.do(t, http.MethodPost, "/api/worlds/main/pixels", userID, map[string]any{"x": 0, "y": 0, "palette_index": 99})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "unknown_color", body["code"])
	assert.Equal(t, "color", body["gate"])
	assert.Equal(t, "rejected", body["state"])

	code, body = a.do(t, http.MethodPost, "/api/worlds/nowhere/pixels", userID, map[string]any{"x": 0, "y": 0, "palette_index": 1})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "world_not_found", body["code"])

	// 两次拒绝都没有扣 charge
	code, body = a.do(t, http.MethodGet, "/api/charges", userID, nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 30, body["available"])
	assert.Nil(t, body["next_regen_at"])

	a.charges.Put(model.ChargeState{UserID: 7, AvailableCharges: 0, ChargesUpdatedAt: time.Now()})
	code, body = a.do(t, http.MethodPost, "/api/worlds/main/pixels", 7, map[string]any{"x": 0, "y": 0, "palette_index": 1})
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, "insufficient_charge", body["code"])
	assert.NotEmpty(t, body["next_regen_at"])
	assert.Equal(t, false, body["retryable"])

	require.NoError(t, a.bans.Upsert(context.Background(), &model.Ban{UserID: 8, Reason: "spam", BannedAt: time.Now()}))
	code, body = a.do(t, http.MethodPost, "/api/worlds/main/pixels", 8, map[string]any{"x": 0, "y": 0, "palette_index": 1})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "banned", body["code"])
	assert.Equal(t, "spam", body["reason"])
}

func TestPlacePixelStorageUnavailable(t *testing.T) {
	a := newApp(t, brokenCells{memory.NewCellRepository()})

	code, body := a.do(t, http.MethodPost, "/api/worlds/main/pixels", userID, map[string]any{"x": 0, "y": 0, "palette_index": 1})
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "storage_unavailable", body["code"])
	assert.Equal(t, true, body["retryable"])
	assert.Equal(t, "rolled_back", body["state"])

	code, body = a.do(t, http.MethodGet, "/api/charges", userID, nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 30, body["available"])
}

func TestAdminRoutes(t *testing.T) {
	a := newApp(t, nil)

	code, body := a.do(t, http.MethodPost, "/api/admin/bans", userID, map[string]any{"user_id": 5})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "forbidden", body["code"])

	code, body = a.do(t, http.MethodPost, "/api/admin/bans", adminID, map[string]any{"user_id": 5, "reason": "spam", "duration_seconds": 3600})
	require.Equal(t, http.StatusCreated, code, body)
	assert.EqualValues(t, 5, body["user_id"])
	assert.NotNil(t, body["expires_at"])

	code, body = a.do(t, http.MethodPost, "/api/admin/bans", adminID, map[string]any{"user_id": 5})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "already_banned", body["code"])

	code, body = a.do(t, http.MethodPost, "/api/admin/bans", adminID, map[string]any{"user_id": adminID})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "cannot_ban_admin", body["code"])

	code, body = a.do(t, http.MethodGet, "/api/admin/bans", adminID, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["list"], 1)

	code, _ = a.do(t, http.MethodDelete, "/api/admin/bans/5", adminID, nil)
	assert.Equal(t, http.StatusOK, code)
	code, body = a.do(t, http.MethodDelete, "/api/admin/bans/5", adminID, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "ban_not_found", body["code"])

	code, body = a.do(t, http.MethodPost, "/api/admin/worlds", adminID, map[string]any{
		"name": "side", "default": true, "palette": []string{"#112233FF", "445566ff"},
	})
	require.Equal(t, http.StatusCreated, code, body)
	assert.Equal(t, true, body["default"])

	code, body = a.do(t, http.MethodPost, "/api/admin/worlds", adminID, map[string]any{
		"name": "side", "palette": []string{"#112233FF"},
	})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "world_exists", body["code"])

	code, body = a.do(t, http.MethodPost, "/api/admin/worlds", adminID, map[string]any{
		"name": "bad", "palette": []string{"#12"},
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_palette", body["code"])

	code, body = a.do(t, http.MethodGet, "/api/worlds/default/palette", 0, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "side", body["world"])

	code, _ = a.do(t, http.MethodDelete, "/api/admin/worlds/side", adminID, nil)
	assert.Equal(t, http.StatusOK, code)
	code, body = a.do(t, http.MethodGet, "/api/worlds/default/palette", 0, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "main", body["world"])

	code, body = a.do(t, http.MethodDelete, "/api/admin/worlds/main", adminID, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "last_world", body["code"])
	code, _ = a.do(t, http.MethodGet, "/api/worlds/main/palette", 0, nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestBanDurationBounds(t *testing.T) {
	a := newApp(t, nil)

	for _, secs := range []int64{1 << 62, -60} {
		code, body := a.do(t, http.MethodPost, "/api/admin/bans", adminID, map[string]any{"user_id": 5, "duration_seconds": secs})
		assert.Equal(t, http.StatusBadRequest, code, secs)
		assert.Equal(t, "invalid_params", body["code"], secs)
	}

	code, body := a.do(t, http.MethodPost, "/api/admin/bans", adminID, map[string]any{"user_id": 5, "duration_seconds": 315360000})
	require.Equal(t, http.StatusCreated, code, body)
	exp, err := time.Parse(time.RFC3339Nano, body["expires_at"].(string))
	require.NoError(t, err)
	assert.True(t, exp.After(time.Now().AddDate(9, 0, 0)))
}

func TestPlaceBatch(t *testing.T) {
	a := newApp(t, nil)
	pixels := []map[string]any{
		{"x": 0, "y": 0, "palette_index": 1},
		{"x": 1, "y": 0, "palette_index": 2},
		{"x": 0, "y": 0, "palette_index": 3},
	}

	code, body := a.do(t, http.MethodPost, "/api/worlds/main/pixels/batch", userID, map[string]any{"pixels": pixels})
	require.Equal(t, http.StatusOK, code, body)
	assert.EqualValues(t, 3, body["count"])
	assert.EqualValues(t, 27, body["charges_left"])
	placed := body["placed"].([]any)
	require.Len(t, placed, 3)
	assert.EqualValues(t, 2, placed[2].(map[string]any)["version"])

	code, body = a.do(t, http.MethodGet, "/api/worlds/main/pixels?x=0&y=0", 0, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "#00FF00FF", body["pixel"].(map[string]any)["color"])

	code, body = a.do(t, http.MethodPost, "/api/worlds/main/pixels/batch", userID, map[string]any{"pixels": []map[string]any{
		{"x": 5, "y": 5, "palette_index": 1},
		{"x": 6, "y": 5, "palette_index": 77},
	}})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "unknown_color", body["code"])

	code, body = a.do(t, http.MethodPost, "/api/worlds/main/pixels/batch", userID, map[string]any{"pixels": []map[string]any{}})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_params", body["code"])

	code, _ = a.do(t, http.MethodPost, "/api/worlds/main/pixels/batch", userID, map[string]any{"pixels": []map[string]any{{"x": 1}}})
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = a.do(t, http.MethodGet, "/api/charges", userID, nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 27, body["available"])
}

func TestPlaceBatchStorageUnavailable(t *testing.T) {
	a := newApp(t, brokenCells{memory.NewCellRepository()})

	code, body := a.do(t, http.MethodPost, "/api/worlds/main/pixels/batch", userID, map[string]any{"pixels": []map[string]any{
		{"x": 0, "y": 0, "palette_index": 1},
		{"x": 1, "y": 0, "palette_index": 1},
	}})
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "storage_unavailable", body["code"])
	assert.Equal(t, "rolled_back", body["state"])

	code, body = a.do(t, http.MethodGet, "/api/charges", userID, nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 30, body["available"])
}
