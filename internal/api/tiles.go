package api

import (
	"bytes"
	"image"
	"image/png"
	"net/http"
	"strconv"
	"sync"

	"github.com/annel0/worldmap/internal/dimension"
	"github.com/annel0/worldmap/internal/logging"
	"github.com/annel0/worldmap/internal/tiles"
	"github.com/gin-gonic/gin"
)

const tileSize = 256

var (
	blankOnce sync.Once
	blankPNG  []byte
)

// blankTile прозрачный тайл, который отдаётся вместо недоступного
func blankTile() []byte {
	blankOnce.Do(func() {
		var buf bytes.Buffer
		if err := png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, tileSize, tileSize))); err != nil {
			logging.Error("blank tile encode failed: %v", err)
			return
		}
		blankPNG = buf.Bytes()
	})
	return blankPNG
}

func tileLayer(c *gin.Context, raw string) (string, bool) {
	d := dimension.Parse(raw)
	if !d.Known() {
		fail(c, http.StatusBadRequest, "Неизвестный слой")
		return "", false
	}
	return d.String(), true
}

func intParams(c *gin.Context, get func(string) string, names ...string) ([]int, bool) {
	out := make([]int, len(names))
	for i, name := range names {
		v, err := strconv.Atoi(get(name))
		if err != nil {
			fail(c, http.StatusBadRequest, "Неверный параметр "+name)
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

// handleTileURL возвращает адрес нативного тайла у источника и во сколько раз
// слой рендера растягивает его для запрошенной клетки
func (rs *RestServer) handleTileURL(c *gin.Context) {
	layer, valid := tileLayer(c, c.Query("layer"))
	if !valid {
		return
	}
	v, valid := intParams(c, c.Query, "zoom", "x", "y")
	if !valid {
		return
	}
	native, inRange := rs.scheme.Bounds.NativeTile(tiles.Coord{Zoom: v[0], X: v[1], Y: v[2]})
	if !inRange {
		fail(c, http.StatusNotFound, "Уровень масштаба вне диапазона карты")
		return
	}
	ok(c, http.StatusOK, "Адрес тайла", gin.H{
		"url":    rs.scheme.URL(layer, native),
		"native": native,
		"scale":  1 << uint(v[0]-native.Zoom),
		"path":   tiles.Path(layer, v[0], v[1], v[2]),
	})
}

// handleTile проксирует тайл через кеш. Любая ошибка источника даёт пустой тайл.
func (rs *RestServer) handleTile(c *gin.Context) {
	layer, valid := tileLayer(c, c.Param("layer"))
	if !valid {
		return
	}
	v, valid := intParams(c, c.Param, "zoom", "xb", "yb", "x", "y")
	if !valid {
		return
	}
	zoom, xb, yb, x, y := v[0], v[1], v[2], v[3], v[4]
	if tiles.Bucket(x) != xb || tiles.Bucket(y) != yb {
		fail(c, http.StatusBadRequest, "Корзина не соответствует координатам тайла")
		return
	}

	// выше нативного уровня клиент сам растягивает нативный тайл; отдать его
	// под адресом дочерней клетки значило бы показать в ней чужое изображение
	if zoom > rs.scheme.Bounds.MaxNativeZoom {
		fail(c, http.StatusNotFound, "Тайлы выше нативного масштаба не отдаются")
		return
	}

	var data []byte
	if rs.scheme.Bounds.Valid(zoom) {
		data = rs.fetcher.Fetch(c.Request.Context(), rs.scheme.URL(layer, tiles.Coord{Zoom: zoom, X: x, Y: y}))
	}
	if data == nil {
		data = blankTile()
		c.Header("Cache-Control", "no-store")
	} else {
		c.Header("Cache-Control", "public, max-age=300")
	}
	c.Data(http.StatusOK, "image/png", data)
}
