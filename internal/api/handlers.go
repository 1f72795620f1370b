package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/annel0/worldmap/internal/compositor"
	"github.com/annel0/worldmap/internal/dimension"
	"github.com/annel0/worldmap/internal/entity"
	"github.com/annel0/worldmap/internal/region"
	"github.com/annel0/worldmap/internal/storage"
	"github.com/annel0/worldmap/internal/toggles"
	"github.com/annel0/worldmap/internal/vec"
	"github.com/gin-gonic/gin"
)

// statusFor сопоставляет доменную ошибку HTTP-статусу
func statusFor(err error) int {
	switch {
	case errors.Is(err, compositor.ErrUnknownEntity), errors.Is(err, region.ErrUnknownRegion):
		return http.StatusNotFound
	case errors.Is(err, compositor.ErrNotDraggable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, compositor.ErrPatchInFlight), errors.Is(err, compositor.ErrNoEditSession),
		errors.Is(err, compositor.ErrEditInProgress):
		return http.StatusConflict
	case errors.Is(err, storage.ErrInvalidClient):
		return http.StatusBadRequest
	case errors.Is(err, compositor.ErrLoopStopped),
		errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (rs *RestServer) failWith(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		rs.log.Error("%s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	fail(c, status, err.Error())
}

func viewDimension(c *gin.Context) (dimension.Dimension, bool) {
	raw := c.Query("dimension")
	if raw == "" {
		return dimension.Overworld, true
	}
	d := dimension.Parse(raw)
	return d, d.Known()
}

// handleRender возвращает набор отрисовки с переключателями клиента
func (rs *RestServer) handleRender(c *gin.Context) {
	dim, known := viewDimension(c)
	if !known {
		fail(c, http.StatusBadRequest, "Неизвестное измерение")
		return
	}
	zoom, err := strconv.Atoi(c.DefaultQuery("zoom", "0"))
	if err != nil {
		fail(c, http.StatusBadRequest, "Неверный уровень масштаба")
		return
	}
	if rs.scheme != nil {
		zoom = rs.scheme.Bounds.Clamp(zoom)
	}
	editing, err := strconv.ParseBool(c.DefaultQuery("editing", "false"))
	if err != nil {
		fail(c, http.StatusBadRequest, "Неверный флаг editing")
		return
	}

	state, err := rs.toggles.LoadState(c.Request.Context(), clientID(c))
	if err != nil {
		rs.failWith(c, err)
		return
	}

	set, err := rs.loop.Render(c.Request.Context(), compositor.View{
		Points:    state.Points,
		Layers:    state.Layers,
		Zoom:      zoom,
		Dimension: dim,
		Editing:   editing,
	})
	if err != nil {
		rs.failWith(c, err)
		return
	}
	ok(c, http.StatusOK, "Набор отрисовки построен", set)
}

// === Переключатели ===

func knownToggleKey(key string) bool {
	for _, k := range toggles.Keys() {
		if k == key {
			return true
		}
	}
	return false
}

func (rs *RestServer) handleGetToggles(c *gin.Context) {
	state, err := rs.toggles.LoadState(c.Request.Context(), clientID(c))
	if err != nil {
		rs.failWith(c, err)
		return
	}
	ok(c, http.StatusOK, "Переключатели получены", state)
}

func (rs *RestServer) handlePutToggles(c *gin.Context) {
	key := c.Param("key")
	if !knownToggleKey(key) {
		fail(c, http.StatusNotFound, "Неизвестный набор переключателей")
		return
	}
	var changes []toggles.Stored
	if err := c.ShouldBindJSON(&changes); err != nil {
		fail(c, http.StatusBadRequest, "Неверный формат данных")
		return
	}
	set, err := rs.toggles.Update(c.Request.Context(), clientID(c), key, changes)
	if err != nil {
		rs.failWith(c, err)
		return
	}
	ok(c, http.StatusOK, "Переключатели сохранены", set)
}

func (rs *RestServer) handleResetToggles(c *gin.Context) {
	key := c.Param("key")
	if !knownToggleKey(key) {
		fail(c, http.StatusNotFound, "Неизвестный набор переключателей")
		return
	}
	if err := rs.toggles.Reset(c.Request.Context(), clientID(c), key); err != nil {
		rs.failWith(c, err)
		return
	}
	set, _ := toggles.Defaults(key)
	ok(c, http.StatusOK, "Переключатели сброшены", set)
}

// === Перенос маркеров ===

// handleBeginDrag начинает перенос. Вид сущности задаётся ?kind=, по умолчанию project.
func (rs *RestServer) handleBeginDrag(c *gin.Context) {
	kind, err := entity.ParseKind(c.DefaultQuery("kind", entity.KindProject.String()))
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := rs.loop.BeginDrag(c.Request.Context(), kind, c.Param("id")); err != nil {
		rs.failWith(c, err)
		return
	}
	ok(c, http.StatusOK, "Перенос начат", gin.H{"id": c.Param("id"), "kind": kind.String()})
}

// handleDrop принимает точку сброса {lat,lng}. Патч уходит асинхронно, итог приходит в /ws.
func (rs *RestServer) handleDrop(c *gin.Context) {
	var p vec.Vec2Float
	if err := c.ShouldBindJSON(&p); err != nil {
		fail(c, http.StatusBadRequest, "Неверный формат данных")
		return
	}
	req, err := rs.loop.Drop(c.Request.Context(), c.Param("id"), p)
	if err != nil {
		rs.failWith(c, err)
		return
	}
	ok(c, http.StatusAccepted, "Перенос отправлен", req)
}

// === Регионы ===

func (rs *RestServer) handleGetRegions(c *gin.Context) {
	dim := dimension.Unknown
	if raw := c.Query("dimension"); raw != "" {
		if dim = dimension.Parse(raw); !dim.Known() {
			fail(c, http.StatusBadRequest, "Неизвестное измерение")
			return
		}
	}
	regions := rs.regions.Regions(dim)
	ok(c, http.StatusOK, "Регионы получены", gin.H{
		"regions": regions,
		"total":   len(regions),
	})
}

func vertexIndex(c *gin.Context) (int, bool) {
	i, err := strconv.Atoi(c.Param("index"))
	if err != nil || i < 0 {
		fail(c, http.StatusBadRequest, "Неверный индекс вершины")
		return 0, false
	}
	return i, true
}

func (rs *RestServer) respondEdit(c *gin.Context, state compositor.EditState, err error) {
	if err != nil {
		rs.failWith(c, err)
		return
	}
	ok(c, http.StatusOK, "Правка применена", state)
}

func (rs *RestServer) handleBeginEdit(c *gin.Context) {
	state, err := rs.loop.BeginEdit(c.Request.Context(), editorID(c), c.Param("id"))
	rs.respondEdit(c, state, err)
}

func (rs *RestServer) handleEndEdit(c *gin.Context) {
	if err := rs.loop.EndEdit(c.Request.Context(), editorID(c)); err != nil {
		rs.failWith(c, err)
		return
	}
	ok(c, http.StatusOK, "Правка завершена", nil)
}

func (rs *RestServer) handleVertexMove(c *gin.Context) {
	i, valid := vertexIndex(c)
	if !valid {
		return
	}
	var p vec.Vec2Float
	if err := c.ShouldBindJSON(&p); err != nil {
		fail(c, http.StatusBadRequest, "Неверный формат данных")
		return
	}
	state, err := rs.loop.EditVertexMove(c.Request.Context(), editorID(c), c.Param("id"), i, p)
	rs.respondEdit(c, state, err)
}

func (rs *RestServer) handleVertexEnd(c *gin.Context) {
	if _, valid := vertexIndex(c); !valid {
		return
	}
	state, err := rs.loop.EditVertexEnd(c.Request.Context(), editorID(c), c.Param("id"))
	rs.respondEdit(c, state, err)
}

func (rs *RestServer) handleVertexRemove(c *gin.Context) {
	i, valid := vertexIndex(c)
	if !valid {
		return
	}
	state, err := rs.loop.EditVertexRemove(c.Request.Context(), editorID(c), c.Param("id"), i)
	rs.respondEdit(c, state, err)
}

func (rs *RestServer) handleEdgeClick(c *gin.Context) {
	var p vec.Vec2Float
	if err := c.ShouldBindJSON(&p); err != nil {
		fail(c, http.StatusBadRequest, "Неверный формат данных")
		return
	}
	state, err := rs.loop.EditEdgeClick(c.Request.Context(), editorID(c), c.Param("id"), p)
	rs.respondEdit(c, state, err)
}
